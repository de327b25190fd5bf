package device

import (
	"context"
	"time"
)

// Store is durable keyed storage of Device records with live queries.
//
// Absence is reported through the found flag, never as an error. Every
// error returned by an implementation wraps ErrStorage or ErrInvalidDevice.
type Store interface {
	// Upsert inserts d or replaces the stored record with the same ID.
	// CreatedAt of an existing record is preserved. A write whose UpdatedAt
	// is older than the stored record's is discarded.
	Upsert(ctx context.Context, d Device) error

	// Get returns the record for id.
	Get(ctx context.Context, id string) (Device, bool, error)

	// Delete removes the record for id. Deleting an absent id is a no-op.
	Delete(ctx context.Context, id string) error

	// DeleteAll clears the catalog.
	DeleteAll(ctx context.Context) error

	// List returns the current result of q.
	List(ctx context.Context, q Query) ([]Device, error)

	// Watch subscribes fn to q. fn receives the current result once on
	// subscribe and again after every write that affects the result set.
	// The subscription ends on Cancel or when ctx is done.
	Watch(ctx context.Context, q Query, fn func([]Device)) (*Subscription, error)

	// UpdateConnectionStatus sets the status of id as of at. It reports
	// false when id is absent or the record was updated after at.
	UpdateConnectionStatus(ctx context.Context, id string, status ConnectionStatus, at time.Time) (bool, error)

	// UpdateLastSeen moves LastSeen of id forward to lastSeen. LastSeen and
	// UpdatedAt never move backwards. It reports false when id is absent.
	UpdateLastSeen(ctx context.Context, id string, lastSeen, updatedAt time.Time) (bool, error)

	// SetPaired sets the paired flag of id as of at, with the same guard as
	// UpdateConnectionStatus.
	SetPaired(ctx context.Context, id string, paired bool, at time.Time) (bool, error)

	// Count returns the number of records.
	Count(ctx context.Context) (int, error)

	// LastConnected returns the most recently seen CONNECTED device.
	LastConnected(ctx context.Context) (Device, bool, error)
}
