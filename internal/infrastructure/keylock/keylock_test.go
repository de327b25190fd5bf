package keylock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLockSerialisesSameKey(t *testing.T) {
	var (
		l          Locker
		wg         sync.WaitGroup
		active     atomic.Int32
		violations atomic.Int32
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("dev-1")
			defer unlock()

			if active.Add(1) > 1 {
				violations.Add(1)
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
		}()
	}
	wg.Wait()

	if got := violations.Load(); got != 0 {
		t.Errorf("observed %d overlapping holders, want 0", got)
	}
	if l.Len() != 0 {
		t.Errorf("Len() = %d after all unlocks, want 0", l.Len())
	}
}

func TestLockDifferentKeysIndependent(t *testing.T) {
	var l Locker

	unlockA := l.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := l.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on key b blocked behind key a")
	}
}

func TestUnlockIdempotent(t *testing.T) {
	var l Locker

	unlock := l.Lock("a")
	unlock()
	unlock()

	if l.Len() != 0 {
		t.Errorf("Len() = %d, want 0", l.Len())
	}

	// The key is reusable after a double unlock.
	unlock = l.Lock("a")
	unlock()
}
