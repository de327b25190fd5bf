package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nearclip/nearclip-core/internal/device"
	"github.com/nearclip/nearclip-core/internal/infrastructure/keylock"
)

// Default bounds for native core operations.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultPairTimeout    = 30 * time.Second
)

// Logger defines the logging interface used by the Manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Catalog is the subset of *device.Repository the Manager writes through.
type Catalog interface {
	Get(ctx context.Context, id string) (device.Device, bool, error)
	All(ctx context.Context) ([]device.Device, error)
	InsertOrUpdate(ctx context.Context, d device.Device) error
	Remove(ctx context.Context, id string) error
	SetStatus(ctx context.Context, id string, status device.ConnectionStatus) (bool, error)
	SetPaired(ctx context.Context, id string, paired bool) (bool, error)
	TouchLastSeen(ctx context.Context, id string, ts time.Time) (bool, error)
	Now() time.Time
}

// Config bounds the long-running native operations.
type Config struct {
	ConnectTimeout time.Duration
	PairTimeout    time.Duration
}

// Cause names the operation that produced a transition.
type Cause string

// Transition causes.
const (
	CauseConnect        Cause = "connect"
	CausePair           Cause = "pair"
	CauseDisconnect     Cause = "disconnect"
	CauseConnectionLost Cause = "connection_lost"
	CauseForget         Cause = "forget"
)

// Transition is a committed change of a device's connection state.
type Transition struct {
	DeviceID string                  `json:"device_id"`
	From     device.ConnectionStatus `json:"from"`
	To       device.ConnectionStatus `json:"to"`
	Cause    Cause                   `json:"cause"`
	At       time.Time               `json:"at"`

	// Device is the record after the transition. For CauseForget it is the
	// last stored record.
	Device device.Device `json:"device"`

	// Error carries the native failure for transitions into ERROR.
	Error string `json:"error,omitempty"`
}

// Stats summarises the catalog by connection state.
type Stats struct {
	Total       int  `json:"total"`
	Connected   int  `json:"connected"`
	Connecting  int  `json:"connecting"`
	Pairing     int  `json:"pairing"`
	Failed      int  `json:"failed"`
	Paired      int  `json:"paired"`
	Discovering bool `json:"discovering"`
}

// linkState is the in-memory record of a device's last committed transition.
// gen identifies the transition; changedAt is when it was persisted.
type linkState struct {
	gen       uint64
	changedAt time.Time
}

// Manager owns the connection state machine of every device:
//
//	DISCONNECTED ──connect──▶ CONNECTING ──▶ CONNECTED ──pair──▶ PAIRING ──▶ CONNECTED (paired)
//	                              │                                  │
//	                              └──────────▶ ERROR ◀───────────────┘
//	any non-DISCONNECTED ──disconnect / connection lost──▶ DISCONNECTED
//
// Every transition for one device runs under that device's lock and is
// persisted through the Catalog before the ConnectionView and listeners see
// it. Native calls that may block (connect, pair) run outside the lock, so a
// disconnect can supersede them. An attempt only resumes when no other
// transition was committed for the device while its native call ran.
type Manager struct {
	catalog Catalog
	core    NativeCore
	cfg     Config
	view    *ConnectionView
	devices keylock.Locker
	logger  Logger

	listenersMu sync.RWMutex
	listeners   []func(Transition)

	seq      atomic.Uint64
	statesMu sync.Mutex
	states   map[string]linkState

	discoveryMu sync.Mutex
	discovery   *discoveryLoop
	discovering atomic.Bool
}

// NewManager creates a manager and registers it as the native core's
// connection-lost handler.
func NewManager(catalog Catalog, core NativeCore, cfg Config) *Manager {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.PairTimeout <= 0 {
		cfg.PairTimeout = DefaultPairTimeout
	}

	m := &Manager{
		catalog: catalog,
		core:    core,
		cfg:     cfg,
		view:    newConnectionView(),
		logger:  noopLogger{},
		states:  make(map[string]linkState),
	}
	core.SetConnectionLostHandler(m.HandleConnectionLost)
	return m
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// View returns the read model of devices with a live link.
func (m *Manager) View() *ConnectionView {
	return m.view
}

// AddListener registers fn to be called after every committed transition.
// fn runs while the device's lock is held and must not call back into the
// Manager for the same device.
func (m *Manager) AddListener(fn func(Transition)) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Connect drives id from a connectable state through CONNECTING to
// CONNECTED, or to ERROR when the native core fails.
//
// A Disconnect, Forget or newer Connect issued while the native call is in
// flight wins: the attempt is abandoned, a fresh link is torn down and
// ErrConnect is returned with the device as the winner left it.
func (m *Manager) Connect(ctx context.Context, id string) (device.Device, error) {
	unlock := m.devices.Lock(id)
	d, err := m.load(ctx, id)
	if err != nil {
		unlock()
		return device.Device{}, err
	}
	if !d.IsConnectable() {
		unlock()
		return d, fmt.Errorf("%w: cannot connect %s from %s", ErrInvalidStateTransition, id, d.Status)
	}
	d, err = m.transition(ctx, d, device.StatusConnecting, CauseConnect, nil)
	attempt := m.generation(id)
	unlock()
	if err != nil {
		return d, err
	}

	m.logger.Info("connecting to device", "device_id", id, "name", d.DisplayName())

	connectCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	nativeErr := m.core.Connect(connectCtx, d)
	cancel()

	// The attempt must finish even when the caller has gone away, so the
	// record never stays CONNECTING.
	ctx = context.WithoutCancel(ctx)

	unlock = m.devices.Lock(id)
	defer unlock()

	current, ok, err := m.resume(ctx, d, attempt, nativeErr == nil)
	if err != nil {
		return current, err
	}
	if !ok {
		return current, fmt.Errorf("%w: %s: attempt superseded", ErrConnect, id)
	}

	if nativeErr != nil {
		m.logger.Warn("connect failed", "device_id", id, "error", nativeErr)
		current, err = m.transition(ctx, current, device.StatusError, CauseConnect, nativeErr)
		if err != nil {
			m.logger.Error("recording connect failure", "device_id", id, "error", err)
		}
		return current, fmt.Errorf("%w: %s: %w", ErrConnect, id, nativeErr)
	}

	if _, err := m.catalog.TouchLastSeen(ctx, id, m.catalog.Now()); err != nil {
		return current, err
	}
	current, err = m.transition(ctx, current, device.StatusConnected, CauseConnect, nil)
	if err != nil {
		return current, err
	}
	m.logger.Info("device connected", "device_id", id)
	return current, nil
}

// Pair runs the pairing handshake with a CONNECTED device. On success the
// device is CONNECTED and paired; on failure it is ERROR.
func (m *Manager) Pair(ctx context.Context, id string) (device.Device, error) {
	unlock := m.devices.Lock(id)
	d, err := m.load(ctx, id)
	if err != nil {
		unlock()
		return device.Device{}, err
	}
	if d.Status != device.StatusConnected {
		unlock()
		return d, fmt.Errorf("%w: cannot pair %s from %s", ErrInvalidStateTransition, id, d.Status)
	}
	d, err = m.transition(ctx, d, device.StatusPairing, CausePair, nil)
	attempt := m.generation(id)
	unlock()
	if err != nil {
		return d, err
	}

	pairCtx, cancel := context.WithTimeout(ctx, m.cfg.PairTimeout)
	nativeErr := m.core.Pair(pairCtx, d)
	cancel()

	ctx = context.WithoutCancel(ctx)

	unlock = m.devices.Lock(id)
	defer unlock()

	current, ok, err := m.resume(ctx, d, attempt, false)
	if err != nil {
		return current, err
	}
	if !ok {
		return current, fmt.Errorf("%w: %s: attempt superseded", ErrPair, id)
	}

	if nativeErr != nil {
		m.logger.Warn("pairing failed", "device_id", id, "error", nativeErr)
		current, err = m.transition(ctx, current, device.StatusError, CausePair, nativeErr)
		if err != nil {
			m.logger.Error("recording pairing failure", "device_id", id, "error", err)
		}
		return current, fmt.Errorf("%w: %s: %w", ErrPair, id, nativeErr)
	}

	if _, err := m.catalog.SetPaired(ctx, id, true); err != nil {
		return current, err
	}
	current, err = m.transition(ctx, current, device.StatusConnected, CausePair, nil)
	if err != nil {
		return current, err
	}
	m.logger.Info("device paired", "device_id", id)
	return current, nil
}

// Disconnect drives id to DISCONNECTED from any other state. The paired
// flag is left unchanged. A native teardown failure is logged; the link is
// considered gone either way.
func (m *Manager) Disconnect(ctx context.Context, id string) (device.Device, error) {
	unlock := m.devices.Lock(id)
	defer unlock()

	d, err := m.load(ctx, id)
	if err != nil {
		return device.Device{}, err
	}
	if d.Status == device.StatusDisconnected {
		return d, fmt.Errorf("%w: %s is already disconnected", ErrInvalidStateTransition, id)
	}

	if hasLink(d.Status) {
		if err := m.core.Disconnect(ctx, d); err != nil {
			m.logger.Warn("native disconnect failed", "device_id", id, "error", err)
		}
	}

	d, err = m.transition(ctx, d, device.StatusDisconnected, CauseDisconnect, nil)
	if err != nil {
		return d, err
	}
	m.logger.Info("device disconnected", "device_id", id)
	return d, nil
}

// Forget removes id from the catalog whatever its status, tearing down any
// live link first. Forgetting an unknown device is a no-op.
func (m *Manager) Forget(ctx context.Context, id string) error {
	unlock := m.devices.Lock(id)
	defer unlock()

	d, found, err := m.catalog.Get(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	if hasLink(d.Status) {
		if err := m.core.Disconnect(ctx, d); err != nil {
			m.logger.Warn("native disconnect failed", "device_id", id, "error", err)
		}
	}
	if err := m.catalog.Remove(ctx, id); err != nil {
		return err
	}

	m.view.remove(id)
	m.forgetLinkState(id)
	m.emit(Transition{
		DeviceID: id,
		From:     d.Status,
		To:       device.StatusDisconnected,
		Cause:    CauseForget,
		At:       m.catalog.Now(),
		Device:   d,
	})
	m.logger.Info("device forgotten", "device_id", id)
	return nil
}

// HandleConnectionLost records that the native core lost the link to id at
// the given time. Signals older than the device's last committed transition
// refer to a previous link and are ignored. Discovery refreshes do not count
// as transitions. A zero time means now.
func (m *Manager) HandleConnectionLost(id string, at time.Time) {
	ctx := context.Background()

	unlock := m.devices.Lock(id)
	defer unlock()

	d, found, err := m.catalog.Get(ctx, id)
	if err != nil {
		m.logger.Error("loading device for connection lost", "device_id", id, "error", err)
		return
	}
	if !found || d.Status == device.StatusDisconnected {
		return
	}
	if st, known := m.lookupLinkState(id); known && !at.IsZero() && at.Before(st.changedAt) {
		m.logger.Debug("stale connection lost signal ignored",
			"device_id", id, "at", at, "changed_at", st.changedAt)
		return
	}

	if at.IsZero() {
		at = m.catalog.Now()
	}
	if _, err := m.catalog.TouchLastSeen(ctx, id, at); err != nil {
		m.logger.Error("touching last seen", "device_id", id, "error", err)
	}
	if _, err := m.transition(ctx, d, device.StatusDisconnected, CauseConnectionLost, nil); err != nil {
		m.logger.Error("recording connection lost", "device_id", id, "error", err)
		return
	}
	m.logger.Warn("connection lost", "device_id", id)
}

// Stats summarises the catalog by connection state.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	devices, err := m.catalog.All(ctx)
	if err != nil {
		return Stats{}, err
	}

	s := Stats{Total: len(devices), Discovering: m.IsDiscovering()}
	for _, d := range devices {
		switch d.Status {
		case device.StatusConnected:
			s.Connected++
		case device.StatusConnecting:
			s.Connecting++
		case device.StatusPairing:
			s.Pairing++
		case device.StatusError:
			s.Failed++
		}
		if d.Paired {
			s.Paired++
		}
	}
	return s, nil
}

// load returns the stored record for id or ErrDeviceNotFound.
func (m *Manager) load(ctx context.Context, id string) (device.Device, error) {
	d, found, err := m.catalog.Get(ctx, id)
	if err != nil {
		return device.Device{}, err
	}
	if !found {
		return device.Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return d, nil
}

// resume reloads attempted after a native call made outside the lock. ok is
// false when another transition was committed for the device meanwhile, so
// attempt is no longer the latest one. A link the native core just
// established is then torn down, unless a newer attempt owns the device.
func (m *Manager) resume(ctx context.Context, attempted device.Device, attempt uint64, linkUp bool) (device.Device, bool, error) {
	current, found, err := m.catalog.Get(ctx, attempted.ID)
	if err != nil {
		return attempted, false, err
	}
	latest, known := m.lookupLinkState(attempted.ID)
	if found && known && latest.gen == attempt && current.Status == attempted.Status {
		return current, true, nil
	}

	m.logger.Info("native operation superseded",
		"device_id", attempted.ID, "attempted", attempted.Status, "status", current.Status, "forgotten", !found)
	if linkUp && (!found || !hasLink(current.Status)) {
		if err := m.core.Disconnect(ctx, attempted); err != nil {
			m.logger.Warn("tearing down superseded link", "device_id", attempted.ID, "error", err)
		}
	}
	if !found {
		return device.Device{}, false, nil
	}
	return current, false, nil
}

// transition persists d's move to status, then updates the view and
// listeners. The caller holds the device lock.
func (m *Manager) transition(ctx context.Context, d device.Device, to device.ConnectionStatus, cause Cause, nativeErr error) (device.Device, error) {
	from := d.Status

	ok, err := m.catalog.SetStatus(ctx, d.ID, to)
	if err != nil {
		return d, err
	}
	if !ok {
		return d, fmt.Errorf("%w: %s changed concurrently", ErrInvalidStateTransition, d.ID)
	}

	current, err := m.load(ctx, d.ID)
	if err != nil {
		return d, err
	}
	m.setLinkState(current.ID, current.UpdatedAt)

	if inView(current.Status) {
		m.view.put(current)
	} else {
		m.view.remove(current.ID)
	}

	t := Transition{
		DeviceID: current.ID,
		From:     from,
		To:       to,
		Cause:    cause,
		At:       current.UpdatedAt,
		Device:   current,
	}
	if nativeErr != nil {
		t.Error = nativeErr.Error()
	}
	m.emit(t)

	m.logger.Debug("transition committed", "device_id", current.ID, "from", from, "to", to, "cause", cause)
	return current, nil
}

// setLinkState records a committed transition for id under a new generation.
func (m *Manager) setLinkState(id string, at time.Time) {
	m.statesMu.Lock()
	defer m.statesMu.Unlock()
	m.states[id] = linkState{gen: m.seq.Add(1), changedAt: at}
}

func (m *Manager) lookupLinkState(id string) (linkState, bool) {
	m.statesMu.Lock()
	defer m.statesMu.Unlock()
	st, ok := m.states[id]
	return st, ok
}

// generation identifies the last committed transition for id.
func (m *Manager) generation(id string) uint64 {
	st, _ := m.lookupLinkState(id)
	return st.gen
}

func (m *Manager) forgetLinkState(id string) {
	m.statesMu.Lock()
	defer m.statesMu.Unlock()
	delete(m.states, id)
}

func (m *Manager) emit(t Transition) {
	m.listenersMu.RLock()
	defer m.listenersMu.RUnlock()
	for _, fn := range m.listeners {
		fn(t)
	}
}

// inView reports whether a device in this state belongs in the ConnectionView.
func inView(s device.ConnectionStatus) bool {
	return s == device.StatusConnected || s == device.StatusPairing
}

// hasLink reports whether the native core may hold a link in this state.
func hasLink(s device.ConnectionStatus) bool {
	return s == device.StatusConnecting || s == device.StatusConnected || s == device.StatusPairing
}
