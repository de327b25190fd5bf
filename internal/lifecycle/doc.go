// Package lifecycle drives devices through discovery, connection and
// pairing on top of the device catalog.
//
// The Manager is the only writer of connection state. Each operation takes
// the target device's lock, checks the current status, persists the new one
// through the catalog and then updates the ConnectionView and transition
// listeners. Native work that can block (connect, pair) is done with the
// lock released so that a Disconnect or a lost link can overtake it.
//
// Discovery events are queued from the native core's callbacks and applied
// by a single goroutine. They create unseen devices as DISCONNECTED and
// otherwise only refresh LastSeen.
//
// Usage:
//
//	mgr := lifecycle.NewManager(repo, core, lifecycle.Config{ConnectTimeout: 10 * time.Second})
//	mgr.SetLogger(log)
//	mgr.AddListener(func(t lifecycle.Transition) { ... })
//	if err := mgr.StartDiscovery(ctx, nil); err != nil { ... }
//	d, err := mgr.Connect(ctx, "dev-1")
package lifecycle
