package device

import (
	"context"
	"fmt"
	"time"
)

// Logger defines the logging interface used by this package.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Repository is the façade the lifecycle manager, the API and sync logic use
// to read and write the catalog.
//
// Reads and live queries pass straight through to the Store. Writes are
// narrowed to domain actions and stamped with the repository clock, so
// UpdatedAt always reflects when the change was made.
//
// All methods are safe for concurrent use.
type Repository struct {
	store  Store
	now    func() time.Time
	logger Logger
}

// NewRepository creates a repository over store.
func NewRepository(store Store) *Repository {
	return &Repository{
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the repository.
func (r *Repository) SetLogger(logger Logger) {
	r.logger = logger
}

// SetClock replaces the clock used to stamp writes.
func (r *Repository) SetClock(now func() time.Time) {
	r.now = now
}

// Now returns the current time on the repository clock.
func (r *Repository) Now() time.Time {
	return r.now()
}

// InsertOrUpdate stores d, replacing any record with the same ID.
// UpdatedAt is stamped now; CreatedAt is stamped when unset and preserved
// by the store for existing records.
func (r *Repository) InsertOrUpdate(ctx context.Context, d Device) error {
	now := r.now()
	d.UpdatedAt = now
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if err := r.store.Upsert(ctx, d); err != nil {
		return fmt.Errorf("storing device %s: %w", d.ID, err)
	}
	return nil
}

// Remove deletes the record for id. Removing an unknown id is a no-op.
func (r *Repository) Remove(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("removing device %s: %w", id, err)
	}
	return nil
}

// SetStatus writes any connection state. This is the write the lifecycle
// manager drives its state machine through. It reports false when the
// device is unknown or was updated more recently.
func (r *Repository) SetStatus(ctx context.Context, id string, status ConnectionStatus) (bool, error) {
	if err := requireID(id); err != nil {
		return false, err
	}
	ok, err := r.store.UpdateConnectionStatus(ctx, id, status, r.now())
	if err != nil {
		return false, fmt.Errorf("setting status of %s: %w", id, err)
	}
	if !ok {
		r.logger.Debug("status write not applied", "device_id", id, "status", status)
	}
	return ok, nil
}

// SetConnectionStatus writes CONNECTED or DISCONNECTED. It is shorthand for
// SetStatus and cannot express the intermediate states.
func (r *Repository) SetConnectionStatus(ctx context.Context, id string, connected bool) (bool, error) {
	status := StatusDisconnected
	if connected {
		status = StatusConnected
	}
	return r.SetStatus(ctx, id, status)
}

// TouchLastSeen records a discovery or connection signal at ts.
func (r *Repository) TouchLastSeen(ctx context.Context, id string, ts time.Time) (bool, error) {
	if err := requireID(id); err != nil {
		return false, err
	}
	ok, err := r.store.UpdateLastSeen(ctx, id, ts, r.now())
	if err != nil {
		return false, fmt.Errorf("touching last seen of %s: %w", id, err)
	}
	return ok, nil
}

// SetPaired records the outcome of a pairing.
func (r *Repository) SetPaired(ctx context.Context, id string, paired bool) (bool, error) {
	if err := requireID(id); err != nil {
		return false, err
	}
	ok, err := r.store.SetPaired(ctx, id, paired, r.now())
	if err != nil {
		return false, fmt.Errorf("setting paired of %s: %w", id, err)
	}
	return ok, nil
}

// Get returns the device with id.
func (r *Repository) Get(ctx context.Context, id string) (Device, bool, error) {
	return r.store.Get(ctx, id)
}

// List returns the current result of q.
func (r *Repository) List(ctx context.Context, q Query) ([]Device, error) {
	return r.store.List(ctx, q)
}

// All returns every device, most recently seen first.
func (r *Repository) All(ctx context.Context) ([]Device, error) {
	return r.store.List(ctx, All())
}

// Connected returns the CONNECTED devices.
func (r *Repository) Connected(ctx context.Context) ([]Device, error) {
	return r.store.List(ctx, Connected())
}

// Paired returns the paired devices.
func (r *Repository) Paired(ctx context.Context) ([]Device, error) {
	return r.store.List(ctx, Paired())
}

// ByType returns the devices of one platform.
func (r *Repository) ByType(ctx context.Context, t DeviceType) ([]Device, error) {
	return r.store.List(ctx, ByType(t))
}

// Watch subscribes fn to q.
func (r *Repository) Watch(ctx context.Context, q Query, fn func([]Device)) (*Subscription, error) {
	return r.store.Watch(ctx, q, fn)
}

// WatchAll subscribes fn to every device.
func (r *Repository) WatchAll(ctx context.Context, fn func([]Device)) (*Subscription, error) {
	return r.store.Watch(ctx, All(), fn)
}

// WatchConnected subscribes fn to the CONNECTED devices.
func (r *Repository) WatchConnected(ctx context.Context, fn func([]Device)) (*Subscription, error) {
	return r.store.Watch(ctx, Connected(), fn)
}

// WatchPaired subscribes fn to the paired devices.
func (r *Repository) WatchPaired(ctx context.Context, fn func([]Device)) (*Subscription, error) {
	return r.store.Watch(ctx, Paired(), fn)
}

// WatchByType subscribes fn to the devices of one platform.
func (r *Repository) WatchByType(ctx context.Context, t DeviceType, fn func([]Device)) (*Subscription, error) {
	return r.store.Watch(ctx, ByType(t), fn)
}

// Count returns the number of devices.
func (r *Repository) Count(ctx context.Context) (int, error) {
	return r.store.Count(ctx)
}

// LastConnected returns the most recently seen CONNECTED device.
func (r *Repository) LastConnected(ctx context.Context) (Device, bool, error) {
	return r.store.LastConnected(ctx)
}

// Clear removes every device. Used for account reset and tests.
func (r *Repository) Clear(ctx context.Context) error {
	if err := r.store.DeleteAll(ctx); err != nil {
		return fmt.Errorf("clearing devices: %w", err)
	}
	r.logger.Info("device catalog cleared")
	return nil
}

func requireID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidDevice)
	}
	return nil
}
