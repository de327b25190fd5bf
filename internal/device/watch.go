package device

import (
	"context"
	"sync"
	"sync/atomic"
)

// lister runs a one-shot query on behalf of a subscription.
type lister func(ctx context.Context, q Query) ([]Device, error)

// Subscription is a live query registered with Store.Watch.
//
// Each subscription owns a goroutine that re-runs the query once per
// notification and hands the full result to the callback. Callbacks for one
// subscription never run concurrently.
type Subscription struct {
	id     uint64
	query  Query
	fn     func([]Device)
	list   lister
	hub    *watchHub
	logger Logger

	pending   atomic.Int64
	cancelled atomic.Bool
	wake      chan struct{}
	stop      chan struct{}
	done      chan struct{}
	stopOnce  sync.Once

	// deliverMu is held from the final cancelled check until fn returns.
	deliverMu  sync.Mutex
	delivering atomic.Bool
}

// Query returns the filter this subscription evaluates.
func (s *Subscription) Query() Query {
	return s.query
}

// Cancel ends the subscription. No callback starts after Cancel returns and
// a result fetched but not yet delivered is dropped. Cancel is safe to call
// more than once and from inside the callback.
func (s *Subscription) Cancel() {
	s.cancelled.Store(true)
	// Wait out a delivery that passed its check before the store above.
	// While a callback runs, Cancel may be called from inside it.
	if !s.delivering.Load() {
		s.deliverMu.Lock()
		s.deliverMu.Unlock() //nolint:staticcheck // Barrier only
	}
	s.stopOnce.Do(func() {
		close(s.stop)
		s.hub.remove(s.id)
	})
}

// Done is closed when the subscription goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// signal records one notification and wakes the goroutine.
func (s *Subscription) signal() {
	if s.cancelled.Load() {
		return
	}
	s.pending.Add(1)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) run(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			s.Cancel()
			return
		case <-s.stop:
			return
		case <-s.wake:
		}

		for n := s.pending.Swap(0); n > 0; n-- {
			if !s.emit(ctx) {
				return
			}
		}
	}
}

// emit runs the query and delivers the result. It returns false once the
// subscription is cancelled.
func (s *Subscription) emit(ctx context.Context) bool {
	if s.cancelled.Load() {
		return false
	}

	devices, err := s.list(ctx, s.query)
	if err != nil {
		if s.cancelled.Load() {
			return false
		}
		s.logger.Warn("live query failed", "query", s.query.String(), "error", err)
		return true
	}

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if s.cancelled.Load() {
		return false
	}
	s.delivering.Store(true)
	defer s.delivering.Store(false)
	s.fn(devices)
	return true
}

// watchHub tracks the open subscriptions of a store.
type watchHub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*Subscription
	closed bool
}

func newWatchHub() *watchHub {
	return &watchHub{subs: make(map[uint64]*Subscription)}
}

// subscribe registers a subscription, starts its goroutine and queues the
// initial emission. It returns nil once the hub is closed.
func (h *watchHub) subscribe(ctx context.Context, q Query, fn func([]Device), list lister, logger Logger) *Subscription {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.nextID++
	s := &Subscription{
		id:     h.nextID,
		query:  q,
		fn:     fn,
		list:   list,
		hub:    h,
		logger: logger,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	h.subs[s.id] = s
	h.mu.Unlock()

	s.signal()
	go s.run(ctx)
	return s
}

func (h *watchHub) remove(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// notify wakes every subscription whose result set contained the record
// before the write or contains it after. A nil side means the record did
// not exist.
func (h *watchHub) notify(before, after *Device) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, s := range h.subs {
		if (before != nil && s.query.Matches(*before)) || (after != nil && s.query.Matches(*after)) {
			s.signal()
		}
	}
}

// notifyAll wakes every subscription.
func (h *watchHub) notifyAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, s := range h.subs {
		s.signal()
	}
}

// close cancels all subscriptions and refuses new ones.
func (h *watchHub) close() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.Cancel()
	}
}

// len returns the number of open subscriptions.
func (h *watchHub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
