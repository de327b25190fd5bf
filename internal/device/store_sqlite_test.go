package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nearclip/nearclip-core/internal/infrastructure/database"
	_ "github.com/nearclip/nearclip-core/migrations"
)

var baseTime = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

// setupTestDB opens a migrated in-memory database.
func setupTestDB(t *testing.T) *database.DB {
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
	return db
}

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store := NewSQLiteStore(setupTestDB(t).DB)
	t.Cleanup(store.Close)
	return store
}

// testDevice returns a record stamped at baseTime plus offset.
func testDevice(id string, offset time.Duration) Device {
	at := baseTime.Add(offset)
	return Device{
		ID:        id,
		Name:      "Device " + id,
		Type:      TypeMac,
		PublicKey: "pk-" + id,
		Status:    StatusDisconnected,
		LastSeen:  at,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func mustUpsert(t *testing.T, s Store, d Device) {
	t.Helper()
	if err := s.Upsert(context.Background(), d); err != nil {
		t.Fatalf("Upsert(%s) error = %v", d.ID, err)
	}
}

func mustGet(t *testing.T, s Store, id string) Device {
	t.Helper()
	d, found, err := s.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", id, err)
	}
	if !found {
		t.Fatalf("Get(%s) not found", id)
	}
	return d
}

func ids(devices []Device) []string {
	out := make([]string, len(devices))
	for i, d := range devices {
		out[i] = d.ID
	}
	return out
}

func TestSQLiteStore_UpsertReplaces(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	first := testDevice("dev-1", 0)
	mustUpsert(t, s, first)

	second := testDevice("dev-1", time.Minute)
	second.Name = "Renamed"
	second.CreatedAt = baseTime.Add(time.Minute)
	mustUpsert(t, s, second)

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("Count() = %d, want 1", n)
	}

	got := mustGet(t, s, "dev-1")
	if got.Name != "Renamed" {
		t.Errorf("Name = %q, want Renamed", got.Name)
	}
	if !got.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt = %v, want preserved %v", got.CreatedAt, first.CreatedAt)
	}
	if !got.UpdatedAt.Equal(second.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, second.UpdatedAt)
	}
}

func TestSQLiteStore_UpsertIgnoresOlderWrite(t *testing.T) {
	s := setupTestStore(t)

	newer := testDevice("dev-1", time.Hour)
	newer.Name = "newer"
	mustUpsert(t, s, newer)

	older := testDevice("dev-1", 0)
	older.Name = "older"
	mustUpsert(t, s, older)

	if got := mustGet(t, s, "dev-1"); got.Name != "newer" {
		t.Errorf("Name = %q, want newer", got.Name)
	}
}

func TestSQLiteStore_RoundTripsAllFields(t *testing.T) {
	s := setupTestStore(t)

	level := 42
	d := testDevice("mac-1", 0)
	d.Paired = true
	d.Status = StatusConnected
	d.Alias = "Desk"
	d.BatteryLevel = &level
	d.Capabilities = []Capability{CapabilityBLE, CapabilityClipboardWrite}
	mustUpsert(t, s, d)

	got := mustGet(t, s, "mac-1")
	if got.Name != d.Name || got.Type != TypeMac || got.PublicKey != "pk-mac-1" {
		t.Errorf("identity fields = %+v", got)
	}
	if !got.Paired || got.Status != StatusConnected {
		t.Errorf("Paired = %v, Status = %q", got.Paired, got.Status)
	}
	if got.Alias != "Desk" || got.BatteryLevel == nil || *got.BatteryLevel != 42 {
		t.Errorf("Alias = %q, BatteryLevel = %v", got.Alias, got.BatteryLevel)
	}
	if len(got.Capabilities) != 2 || !got.SupportsClipboard() {
		t.Errorf("Capabilities = %v", got.Capabilities)
	}
	if !got.LastSeen.Equal(d.LastSeen) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, d.LastSeen)
	}

	plain := testDevice("plain", 0)
	mustUpsert(t, s, plain)
	got = mustGet(t, s, "plain")
	if got.Alias != "" || got.BatteryLevel != nil || got.Capabilities != nil {
		t.Errorf("optional fields should be empty, got %+v", got)
	}
}

func TestSQLiteStore_UpsertValidates(t *testing.T) {
	s := setupTestStore(t)

	err := s.Upsert(context.Background(), Device{Name: "no id"})
	if !errors.Is(err, ErrInvalidDevice) {
		t.Errorf("Upsert() error = %v, want ErrInvalidDevice", err)
	}
}

func TestSQLiteStore_GetAbsent(t *testing.T) {
	s := setupTestStore(t)

	_, found, err := s.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get() error = %v, absence must not be an error", err)
	}
	if found {
		t.Error("Get() found = true for absent device")
	}
}

func TestSQLiteStore_Delete(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	mustUpsert(t, s, testDevice("dev-1", 0))

	if err := s.Delete(ctx, "dev-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, found, _ := s.Get(ctx, "dev-1"); found {
		t.Error("device still present after Delete()")
	}
	if err := s.Delete(ctx, "dev-1"); err != nil {
		t.Errorf("Delete() of absent device error = %v", err)
	}
}

func TestSQLiteStore_DeleteAll(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		mustUpsert(t, s, testDevice(fmt.Sprintf("dev-%d", i), 0))
	}
	if err := s.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll() error = %v", err)
	}
	if n, _ := s.Count(ctx); n != 0 {
		t.Errorf("Count() = %d after DeleteAll, want 0", n)
	}
}

func TestSQLiteStore_ListOrderingAndFilters(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	oldest := testDevice("c-oldest", 0)
	oldest.Paired = true

	tieB := testDevice("b-tie", time.Minute)
	tieB.Type = TypeAndroid
	tieB.Status = StatusConnected

	tieA := testDevice("a-tie", time.Minute)
	tieA.Status = StatusConnected
	tieA.Paired = true

	newest := testDevice("d-newest", time.Hour)
	newest.Type = TypeLinux

	for _, d := range []Device{oldest, tieB, tieA, newest} {
		mustUpsert(t, s, d)
	}

	tests := []struct {
		q    Query
		want []string
	}{
		{All(), []string{"d-newest", "a-tie", "b-tie", "c-oldest"}},
		{Connected(), []string{"a-tie", "b-tie"}},
		{Paired(), []string{"a-tie", "c-oldest"}},
		{ByType(TypeMac), []string{"a-tie", "c-oldest"}},
		{ByType(TypeWindows), []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.q.String(), func(t *testing.T) {
			got, err := s.List(ctx, tt.q)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if fmt.Sprint(ids(got)) != fmt.Sprint(tt.want) {
				t.Errorf("List(%s) = %v, want %v", tt.q, ids(got), tt.want)
			}
		})
	}
}

func TestSQLiteStore_UpdateConnectionStatus(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	mustUpsert(t, s, testDevice("dev-1", 0))

	t.Run("applies newer write", func(t *testing.T) {
		at := baseTime.Add(time.Minute)
		ok, err := s.UpdateConnectionStatus(ctx, "dev-1", StatusConnecting, at)
		if err != nil || !ok {
			t.Fatalf("UpdateConnectionStatus() = %v, %v", ok, err)
		}
		got := mustGet(t, s, "dev-1")
		if got.Status != StatusConnecting || !got.UpdatedAt.Equal(at) {
			t.Errorf("Status = %q, UpdatedAt = %v", got.Status, got.UpdatedAt)
		}
	})

	t.Run("discards older write", func(t *testing.T) {
		ok, err := s.UpdateConnectionStatus(ctx, "dev-1", StatusError, baseTime)
		if err != nil {
			t.Fatalf("UpdateConnectionStatus() error = %v", err)
		}
		if ok {
			t.Error("older write reported as applied")
		}
		if got := mustGet(t, s, "dev-1"); got.Status != StatusConnecting {
			t.Errorf("Status = %q, want CONNECTING", got.Status)
		}
	})

	t.Run("absent device", func(t *testing.T) {
		ok, err := s.UpdateConnectionStatus(ctx, "ghost", StatusConnected, baseTime)
		if err != nil || ok {
			t.Errorf("UpdateConnectionStatus(ghost) = %v, %v; want false, nil", ok, err)
		}
	})
}

func TestSQLiteStore_UpdateLastSeenNeverMovesBackwards(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	mustUpsert(t, s, testDevice("dev-1", 0))

	later := baseTime.Add(10 * time.Minute)
	if ok, err := s.UpdateLastSeen(ctx, "dev-1", later, later); err != nil || !ok {
		t.Fatalf("UpdateLastSeen() = %v, %v", ok, err)
	}
	if ok, err := s.UpdateLastSeen(ctx, "dev-1", baseTime.Add(time.Minute), baseTime.Add(time.Minute)); err != nil || !ok {
		t.Fatalf("UpdateLastSeen() older = %v, %v", ok, err)
	}

	got := mustGet(t, s, "dev-1")
	if !got.LastSeen.Equal(later) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, later)
	}
	if !got.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, later)
	}
}

func TestSQLiteStore_LastSeenDoesNotLoseStatus(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	mustUpsert(t, s, testDevice("dev-1", 0))

	statusAt := baseTime.Add(2 * time.Minute)
	if _, err := s.UpdateConnectionStatus(ctx, "dev-1", StatusConnected, statusAt); err != nil {
		t.Fatal(err)
	}
	// A discovery signal stamped before the status change lands afterwards.
	touchAt := baseTime.Add(time.Minute)
	if _, err := s.UpdateLastSeen(ctx, "dev-1", touchAt, touchAt); err != nil {
		t.Fatal(err)
	}

	got := mustGet(t, s, "dev-1")
	if got.Status != StatusConnected {
		t.Errorf("Status = %q, want CONNECTED", got.Status)
	}
	if !got.LastSeen.Equal(touchAt) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, touchAt)
	}
	if !got.UpdatedAt.Equal(statusAt) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, statusAt)
	}
}

func TestSQLiteStore_SetPaired(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	mustUpsert(t, s, testDevice("dev-1", 0))

	ok, err := s.SetPaired(ctx, "dev-1", true, baseTime.Add(time.Second))
	if err != nil || !ok {
		t.Fatalf("SetPaired() = %v, %v", ok, err)
	}
	if got := mustGet(t, s, "dev-1"); !got.Paired {
		t.Error("Paired = false after SetPaired(true)")
	}

	paired, err := s.List(ctx, Paired())
	if err != nil {
		t.Fatal(err)
	}
	if len(paired) != 1 {
		t.Errorf("List(paired) = %v", ids(paired))
	}
}

func TestSQLiteStore_LastConnected(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, found, err := s.LastConnected(ctx); err != nil || found {
		t.Fatalf("LastConnected() on empty = %v, %v", found, err)
	}

	a := testDevice("a", time.Minute)
	a.Status = StatusConnected
	b := testDevice("b", time.Hour)
	b.Status = StatusConnected
	c := testDevice("c", 2*time.Hour)
	for _, d := range []Device{a, b, c} {
		mustUpsert(t, s, d)
	}

	got, found, err := s.LastConnected(ctx)
	if err != nil || !found {
		t.Fatalf("LastConnected() = %v, %v", found, err)
	}
	if got.ID != "b" {
		t.Errorf("LastConnected() = %s, want b", got.ID)
	}
}

func TestSQLiteStore_ConcurrentSameIDLatestWins(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	mustUpsert(t, s, testDevice("dev-1", 0))

	statuses := AllConnectionStatuses()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			at := baseTime.Add(time.Duration(i+1) * time.Second)
			if _, err := s.UpdateConnectionStatus(ctx, "dev-1", statuses[i%len(statuses)], at); err != nil {
				t.Errorf("UpdateConnectionStatus() error = %v", err)
			}
		}()
	}
	wg.Wait()

	got := mustGet(t, s, "dev-1")
	want := statuses[49%len(statuses)]
	if got.Status != want {
		t.Errorf("Status = %q, want %q from the latest write", got.Status, want)
	}
	if !got.UpdatedAt.Equal(baseTime.Add(50 * time.Second)) {
		t.Errorf("UpdatedAt = %v", got.UpdatedAt)
	}
}

func TestSQLiteStore_StorageErrors(t *testing.T) {
	db := setupTestDB(t)
	s := NewSQLiteStore(db.DB)
	ctx := context.Background()

	db.Close() //nolint:errcheck // Closed on purpose

	checks := map[string]error{}
	_, _, checks["Get"] = s.Get(ctx, "dev-1")
	_, checks["List"] = s.List(ctx, All())
	_, checks["Count"] = s.Count(ctx)
	checks["Upsert"] = s.Upsert(ctx, testDevice("dev-1", 0))
	checks["DeleteAll"] = s.DeleteAll(ctx)

	for op, err := range checks {
		if !errors.Is(err, ErrStorage) {
			t.Errorf("%s error = %v, want ErrStorage", op, err)
		}
	}
}
