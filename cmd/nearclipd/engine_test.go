package main

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/nearclip/nearclip-core/internal/device"
	"github.com/nearclip/nearclip-core/internal/engine"
	"github.com/nearclip/nearclip-core/internal/infrastructure/database"
	"github.com/nearclip/nearclip-core/internal/lifecycle"
)

// okCore is a NativeCore whose calls always succeed.
type okCore struct{}

func (okCore) StartDiscovery(context.Context, func(lifecycle.Discovery)) error { return nil }
func (okCore) StopDiscovery() error                                            { return nil }
func (okCore) Connect(context.Context, device.Device) error                    { return nil }
func (okCore) Disconnect(context.Context, device.Device) error                 { return nil }
func (okCore) Pair(context.Context, device.Device) error                       { return nil }
func (okCore) SetConnectionLostHandler(func(string, time.Time))                {}

func TestDropLinks(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	store := device.NewSQLiteStore(db.DB)
	t.Cleanup(func() {
		store.Close()
		db.Close() //nolint:errcheck // Test cleanup
	})

	repo := device.NewRepository(store)
	manager := lifecycle.NewManager(repo, okCore{}, lifecycle.Config{})
	for _, id := range []string{"a", "b"} {
		if err := repo.InsertOrUpdate(ctx, device.Device{ID: id, Name: id}); err != nil {
			t.Fatalf("InsertOrUpdate(%s) error = %v", id, err)
		}
		if _, err := manager.Connect(ctx, id); err != nil {
			t.Fatalf("Connect(%s) error = %v", id, err)
		}
	}

	dropLinks(manager, time.Now().Add(time.Minute))

	if n := manager.View().Len(); n != 0 {
		t.Errorf("view length = %d, want 0", n)
	}
	connected, err := repo.Connected(ctx)
	if err != nil {
		t.Fatalf("Connected() error = %v", err)
	}
	if len(connected) != 0 {
		t.Errorf("connected devices = %d, want 0", len(connected))
	}
}

func TestWatchEngine(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	t.Run("gave up", func(t *testing.T) {
		sup := engine.NewSupervisor(engine.Config{Binary: sh, Args: []string{"-c", "exit 1"}})
		if err := sup.Start(context.Background()); err != nil {
			t.Fatalf("Start() error = %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := watchEngine(ctx, sup); !errors.Is(err, errEngineGaveUp) {
			t.Errorf("watchEngine() error = %v, want errEngineGaveUp", err)
		}
	})

	t.Run("daemon shutdown", func(t *testing.T) {
		sup := engine.NewSupervisor(engine.Config{Binary: sh, Args: []string{"-c", "sleep 30"}, GracefulTimeout: 2 * time.Second})
		ctx, cancel := context.WithCancel(context.Background())
		if err := sup.Start(ctx); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		cancel()

		if err := watchEngine(ctx, sup); err != nil {
			t.Errorf("watchEngine() error = %v, want nil", err)
		}
		<-sup.Done()
	})
}
