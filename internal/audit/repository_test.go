package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nearclip/nearclip-core/internal/infrastructure/database"
	_ "github.com/nearclip/nearclip-core/migrations"
)

func setupTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	return NewSQLiteRepository(db.DB)
}

func TestRecord_FillsDefaults(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	e := &Entry{Action: ActionConnect, DeviceID: "mac-1", Subject: "alice", Source: SourceAPI}
	if err := repo.Record(ctx, e); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !strings.HasPrefix(e.ID, "aud-") {
		t.Errorf("ID = %q, want aud- prefix", e.ID)
	}
	if e.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
	if e.Outcome != OutcomeOK {
		t.Errorf("Outcome = %q, want %q", e.Outcome, OutcomeOK)
	}

	res, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 1 || len(res.Entries) != 1 {
		t.Fatalf("List() total = %d, entries = %d, want 1", res.Total, len(res.Entries))
	}
	got := res.Entries[0]
	if got.ID != e.ID || got.Action != ActionConnect || got.DeviceID != "mac-1" || got.Subject != "alice" {
		t.Errorf("List()[0] = %+v, want %+v", got, *e)
	}
	if !got.CreatedAt.Equal(e.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, e.CreatedAt)
	}
	if got.Details != nil {
		t.Errorf("Details = %v, want nil", got.Details)
	}
}

func TestRecord_Details(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	e := &Entry{
		Action:   ActionPair,
		DeviceID: "android-1",
		Source:   SourceAPI,
		Outcome:  OutcomeError,
		Details:  map[string]any{"error": "pairing rejected", "attempt": 2},
	}
	if err := repo.Record(ctx, e); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	res, err := repo.List(ctx, Filter{DeviceID: "android-1"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(res.Entries) != 1 {
		t.Fatalf("List() entries = %d, want 1", len(res.Entries))
	}
	details := res.Entries[0].Details
	if details["error"] != "pairing rejected" {
		t.Errorf("Details[error] = %v", details["error"])
	}
	// JSON numbers decode as float64.
	if details["attempt"] != float64(2) {
		t.Errorf("Details[attempt] = %v, want 2", details["attempt"])
	}
	if res.Entries[0].Outcome != OutcomeError {
		t.Errorf("Outcome = %q, want %q", res.Entries[0].Outcome, OutcomeError)
	}
}

func TestRecord_Invalid(t *testing.T) {
	repo := setupTestRepo(t)

	tests := []struct {
		name  string
		entry Entry
	}{
		{"missing action", Entry{Source: SourceAPI}},
		{"missing source", Entry{Action: ActionForget}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := tt.entry
			err := repo.Record(context.Background(), &e)
			if !errors.Is(err, ErrInvalidEntry) {
				t.Errorf("Record() error = %v, want ErrInvalidEntry", err)
			}
		})
	}
}

func TestList_FilterAndOrder(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	entries := []Entry{
		{Action: ActionConnect, DeviceID: "mac-1", Subject: "alice", CreatedAt: base},
		{Action: ActionDisconnect, DeviceID: "mac-1", Subject: "bob", CreatedAt: base.Add(time.Second)},
		{Action: ActionConnect, DeviceID: "win-1", Subject: "alice", CreatedAt: base.Add(2 * time.Second)},
		{Action: ActionDiscoveryStart, Subject: "alice", CreatedAt: base.Add(3 * time.Second)},
	}
	for i := range entries {
		entries[i].Source = SourceAPI
		if err := repo.Record(ctx, &entries[i]); err != nil {
			t.Fatalf("Record(%d) error = %v", i, err)
		}
	}

	tests := []struct {
		name    string
		filter  Filter
		wantIDs []string
	}{
		{"all newest first", Filter{}, []string{entries[3].ID, entries[2].ID, entries[1].ID, entries[0].ID}},
		{"by action", Filter{Action: ActionConnect}, []string{entries[2].ID, entries[0].ID}},
		{"by device", Filter{DeviceID: "mac-1"}, []string{entries[1].ID, entries[0].ID}},
		{"by subject", Filter{Subject: "bob"}, []string{entries[1].ID}},
		{"combined", Filter{Action: ActionConnect, Subject: "alice", DeviceID: "win-1"}, []string{entries[2].ID}},
		{"no match", Filter{Subject: "carol"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != len(tt.wantIDs) {
				t.Errorf("Total = %d, want %d", res.Total, len(tt.wantIDs))
			}
			if len(res.Entries) != len(tt.wantIDs) {
				t.Fatalf("entries = %d, want %d", len(res.Entries), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if res.Entries[i].ID != id {
					t.Errorf("entries[%d].ID = %s, want %s", i, res.Entries[i].ID, id)
				}
			}
		})
	}
}

func TestList_Pagination(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		e := &Entry{Action: ActionConnect, Source: SourceAPI, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := repo.Record(ctx, e); err != nil {
			t.Fatalf("Record(%d) error = %v", i, err)
		}
	}

	res, err := repo.List(ctx, Filter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 5 || len(res.Entries) != 2 {
		t.Fatalf("Total = %d, entries = %d, want 5 and 2", res.Total, len(res.Entries))
	}
	if want := base.Add(3 * time.Second); !res.Entries[0].CreatedAt.Equal(want) {
		t.Errorf("entries[0].CreatedAt = %v, want %v", res.Entries[0].CreatedAt, want)
	}
	if res.Limit != 2 || res.Offset != 1 {
		t.Errorf("Limit/Offset = %d/%d, want 2/1", res.Limit, res.Offset)
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultLimit},
		{-3, DefaultLimit},
		{10, 10},
		{MaxLimit, MaxLimit},
		{MaxLimit + 1, MaxLimit},
	}
	for _, tt := range tests {
		if got := clampLimit(tt.in); got != tt.want {
			t.Errorf("clampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
