package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/nearclip/nearclip-core/internal/device"
)

// discoveryBuffer is how many native events may queue ahead of the loop.
const discoveryBuffer = 64

// discoveryLoop is one discovery session: native callbacks enqueue events
// and a single goroutine applies them.
type discoveryLoop struct {
	events  chan Discovery
	stop    chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	onFound func(device.Device)
}

// enqueue hands an event to the loop. It never blocks past StopDiscovery.
func (l *discoveryLoop) enqueue(ev Discovery) {
	select {
	case l.events <- ev:
	case <-l.stop:
	}
}

// StartDiscovery asks the native core for advertisements. Each one creates
// a DISCONNECTED, unpaired record for an unseen device or refreshes
// LastSeen of a known one; connection status is never touched. onFound, if
// not nil, receives the stored record after each event.
//
// Calling StartDiscovery while discovering is a no-op. onFound runs on the
// discovery goroutine and must not call StopDiscovery.
func (m *Manager) StartDiscovery(ctx context.Context, onFound func(device.Device)) error {
	m.discoveryMu.Lock()
	defer m.discoveryMu.Unlock()

	if m.discovery != nil {
		return nil
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l := &discoveryLoop{
		events:  make(chan Discovery, discoveryBuffer),
		stop:    make(chan struct{}),
		cancel:  cancel,
		onFound: onFound,
	}

	l.wg.Add(1)
	go m.runDiscovery(loopCtx, l)

	if err := m.core.StartDiscovery(ctx, l.enqueue); err != nil {
		close(l.stop)
		l.wg.Wait()
		cancel()
		return fmt.Errorf("%w: %w", ErrDiscovery, err)
	}

	m.discovery = l
	m.discovering.Store(true)
	m.logger.Info("discovery started")
	return nil
}

// StopDiscovery stops the native core and waits for the event loop to exit.
// No discovery-originated write happens after it returns. Calling it when
// not discovering is a no-op.
func (m *Manager) StopDiscovery() error {
	m.discoveryMu.Lock()
	defer m.discoveryMu.Unlock()

	l := m.discovery
	if l == nil {
		return nil
	}
	m.discovery = nil
	m.discovering.Store(false)

	close(l.stop)
	l.wg.Wait()
	l.cancel()

	if err := m.core.StopDiscovery(); err != nil {
		return fmt.Errorf("%w: stopping: %w", ErrDiscovery, err)
	}
	m.logger.Info("discovery stopped")
	return nil
}

// IsDiscovering reports whether a discovery session is active. It does not
// wait for a StartDiscovery or StopDiscovery in progress.
func (m *Manager) IsDiscovering() bool {
	return m.discovering.Load()
}

// Close stops discovery.
func (m *Manager) Close() error {
	return m.StopDiscovery()
}

func (m *Manager) runDiscovery(ctx context.Context, l *discoveryLoop) {
	defer l.wg.Done()

	for {
		select {
		case <-l.stop:
			return
		case ev := <-l.events:
			// Stop wins over queued events.
			select {
			case <-l.stop:
				return
			default:
			}

			d, ok := m.applyDiscovery(ctx, ev)
			if ok && l.onFound != nil {
				l.onFound(d)
			}
		}
	}
}

// applyDiscovery creates or touches the record for ev under the device lock.
func (m *Manager) applyDiscovery(ctx context.Context, ev Discovery) (device.Device, bool) {
	if ev.ID == "" {
		m.logger.Warn("discovery event without device id ignored", "name", ev.Name)
		return device.Device{}, false
	}

	unlock := m.devices.Lock(ev.ID)
	defer unlock()

	seenAt := ev.SeenAt
	if seenAt.IsZero() {
		seenAt = m.catalog.Now()
	}

	_, found, err := m.catalog.Get(ctx, ev.ID)
	if err != nil {
		m.logger.Error("loading discovered device", "device_id", ev.ID, "error", err)
		return device.Device{}, false
	}

	if found {
		if _, err := m.catalog.TouchLastSeen(ctx, ev.ID, seenAt); err != nil {
			m.logger.Error("touching discovered device", "device_id", ev.ID, "error", err)
			return device.Device{}, false
		}
	} else {
		d := device.Device{
			ID:           ev.ID,
			Name:         ev.Name,
			Type:         device.ParseDeviceType(string(ev.Type)),
			PublicKey:    ev.PublicKey,
			Status:       device.StatusDisconnected,
			Capabilities: ev.Capabilities,
			BatteryLevel: ev.BatteryLevel,
			LastSeen:     seenAt,
		}
		if err := m.catalog.InsertOrUpdate(ctx, d); err != nil {
			m.logger.Error("storing discovered device", "device_id", ev.ID, "error", err)
			return device.Device{}, false
		}
		m.logger.Info("new device discovered", "device_id", ev.ID, "name", ev.Name, "type", d.Type)
	}

	stored, found, err := m.catalog.Get(ctx, ev.ID)
	if err != nil || !found {
		return device.Device{}, false
	}
	return stored, true
}
