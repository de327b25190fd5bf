// Package device provides the device catalog for NearClip Core.
//
// The catalog records every peer this device has discovered: its identity,
// platform, credentials, connection state and pairing. Records are created
// on first discovery and removed only when the user forgets a device.
//
// # Architecture
//
//	┌──────────────────────┐      ┌──────────────────────┐
//	│      Repository      │─────▶│     SQLiteStore      │
//	│   (repository.go)    │      │  (store_sqlite.go)   │
//	│                      │      │                      │
//	│ • domain writes      │      │ • devices table      │
//	│ • clock stamping     │      │ • guarded writes     │
//	│ • query pass-through │      │ • live queries       │
//	└──────────────────────┘      └──────────────────────┘
//	           ▲                             │
//	           │                             ▼
//	  lifecycle manager, API        Subscription callbacks
//
// # Consistency
//
// Writes to one device ID are linearised. Status and pairing writes carry a
// timestamp and are discarded when the stored record is newer, so the most
// recent change wins regardless of arrival order. LastSeen only moves forward.
//
// # Live queries
//
// Watch registers a Query (All, Connected, Paired, ByType). The callback
// receives the full ordered result once on subscribe and once more for every
// write that touches a record inside the result set, before or after the
// write. Cancel stops delivery immediately.
//
// # Usage
//
//	store := device.NewSQLiteStore(db.DB)
//	repo := device.NewRepository(store)
//
//	sub, err := repo.WatchConnected(ctx, func(devices []device.Device) {
//	    render(devices)
//	})
//	if err != nil {
//	    return err
//	}
//	defer sub.Cancel()
package device
