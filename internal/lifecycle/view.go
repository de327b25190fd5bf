package lifecycle

import (
	"slices"
	"sync"

	"github.com/nearclip/nearclip-core/internal/device"
)

// ConnectionView is the in-memory read model of devices with a live link
// (CONNECTED or PAIRING), in the order they first appeared.
//
// Only the Manager writes the view, after a transition has been committed to
// the catalog. Everyone else reads a snapshot or subscribes with Watch.
type ConnectionView struct {
	// emitMu serialises mutation and delivery so watchers observe
	// snapshots in commit order.
	emitMu sync.Mutex

	mu       sync.RWMutex
	order    []string
	devices  map[string]device.Device
	watchers map[uint64]func([]device.Device)
	nextID   uint64
}

func newConnectionView() *ConnectionView {
	return &ConnectionView{
		devices:  make(map[string]device.Device),
		watchers: make(map[uint64]func([]device.Device)),
	}
}

// Snapshot returns the devices currently in the view.
func (v *ConnectionView) Snapshot() []device.Device {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.snapshotLocked()
}

// Get returns the view's copy of one device.
func (v *ConnectionView) Get(id string) (device.Device, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	d, ok := v.devices[id]
	if !ok {
		return device.Device{}, false
	}
	return d.Clone(), true
}

// Len returns the number of devices in the view.
func (v *ConnectionView) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.order)
}

// Watch calls fn with the current snapshot and again after every change.
// Calls are serialised. The returned function unsubscribes; it may be
// called from inside fn.
func (v *ConnectionView) Watch(fn func([]device.Device)) (cancel func()) {
	v.emitMu.Lock()
	defer v.emitMu.Unlock()

	v.mu.Lock()
	v.nextID++
	id := v.nextID
	v.watchers[id] = fn
	snap := v.snapshotLocked()
	v.mu.Unlock()

	fn(snap)

	return func() {
		v.mu.Lock()
		delete(v.watchers, id)
		v.mu.Unlock()
	}
}

// put inserts d or replaces the existing entry in place.
func (v *ConnectionView) put(d device.Device) {
	v.mutate(func() bool {
		if _, ok := v.devices[d.ID]; !ok {
			v.order = append(v.order, d.ID)
		}
		v.devices[d.ID] = d.Clone()
		return true
	})
}

// remove drops id from the view.
func (v *ConnectionView) remove(id string) {
	v.mutate(func() bool {
		if _, ok := v.devices[id]; !ok {
			return false
		}
		delete(v.devices, id)
		v.order = slices.DeleteFunc(v.order, func(s string) bool { return s == id })
		return true
	})
}

// mutate applies change and, when it reports a change, delivers the new
// snapshot to every watcher.
func (v *ConnectionView) mutate(change func() bool) {
	v.emitMu.Lock()
	defer v.emitMu.Unlock()

	v.mu.Lock()
	if !change() {
		v.mu.Unlock()
		return
	}
	snap := v.snapshotLocked()
	watchers := make([]func([]device.Device), 0, len(v.watchers))
	for _, fn := range v.watchers {
		watchers = append(watchers, fn)
	}
	v.mu.Unlock()

	for _, fn := range watchers {
		fn(slices.Clone(snap))
	}
}

func (v *ConnectionView) snapshotLocked() []device.Device {
	out := make([]device.Device, 0, len(v.order))
	for _, id := range v.order {
		out = append(out, v.devices[id].Clone())
	}
	return out
}
