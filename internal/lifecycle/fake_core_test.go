package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/nearclip/nearclip-core/internal/device"
)

// nativeCall is one blocked native operation. The test answers it on reply.
type nativeCall struct {
	ID    string
	reply chan error
}

// fakeCore is a scriptable NativeCore.
type fakeCore struct {
	mu sync.Mutex

	startErr   error
	connectErr error
	pairErr    error

	// connectGate, when set, blocks Connect until closed or the context ends.
	connectGate    chan struct{}
	connectStarted chan string

	// calls and pairCalls, when set, hand each Connect or Pair to the test
	// and return whatever it replies.
	calls     chan nativeCall
	pairCalls chan nativeCall

	// startGate, when set, blocks StartDiscovery after signalling
	// startEntered.
	startGate    chan struct{}
	startEntered chan struct{}

	onEvent func(Discovery)
	lost    func(id string, at time.Time)

	starts      int
	stops       int
	connects    []string
	disconnects []string
	pairs       []string
}

func newFakeCore() *fakeCore {
	return &fakeCore{connectStarted: make(chan string, 8)}
}

func (f *fakeCore) StartDiscovery(ctx context.Context, onEvent func(Discovery)) error {
	f.mu.Lock()
	gate, entered := f.startGate, f.startEntered
	f.mu.Unlock()
	if gate != nil {
		close(entered)
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.onEvent = onEvent
	return nil
}

func (f *fakeCore) StopDiscovery() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeCore) Connect(ctx context.Context, d device.Device) error {
	f.mu.Lock()
	f.connects = append(f.connects, d.ID)
	gate, err, calls := f.connectGate, f.connectErr, f.calls
	f.mu.Unlock()

	if calls != nil {
		return await(ctx, calls, d.ID)
	}
	f.connectStarted <- d.ID
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeCore) Disconnect(_ context.Context, d device.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects = append(f.disconnects, d.ID)
	return nil
}

func (f *fakeCore) Pair(ctx context.Context, d device.Device) error {
	f.mu.Lock()
	f.pairs = append(f.pairs, d.ID)
	err, calls := f.pairErr, f.pairCalls
	f.mu.Unlock()

	if calls != nil {
		return await(ctx, calls, d.ID)
	}
	return err
}

// await hands a call to the test and blocks for its reply.
func await(ctx context.Context, calls chan nativeCall, id string) error {
	c := nativeCall{ID: id, reply: make(chan error, 1)}
	select {
	case calls <- c:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-c.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeCore) SetConnectionLostHandler(fn func(id string, at time.Time)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lost = fn
}

// discover delivers an advertisement the way a native callback would.
func (f *fakeCore) discover(ev Discovery) {
	f.mu.Lock()
	fn := f.onEvent
	f.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (f *fakeCore) loseConnection(id string, at time.Time) {
	f.mu.Lock()
	fn := f.lost
	f.mu.Unlock()
	fn(id, at)
}

func (f *fakeCore) disconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.disconnects)
}

func (f *fakeCore) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}
