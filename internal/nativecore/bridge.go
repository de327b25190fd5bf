package nativecore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nearclip/nearclip-core/internal/device"
	"github.com/nearclip/nearclip-core/internal/infrastructure/mqtt"
	"github.com/nearclip/nearclip-core/internal/lifecycle"
)

// DefaultCommandTimeout bounds a command when the caller's context has no
// earlier deadline.
const DefaultCommandTimeout = 5 * time.Second

// Transport is the MQTT surface the bridge needs. *mqtt.Client satisfies it.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Logger defines the logging interface used by the bridge.
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

// Config holds bridge settings.
type Config struct {
	QoS            byte
	CommandTimeout time.Duration
}

// Bridge implements lifecycle.NativeCore over MQTT.
//
// Commands are published to nearclip/core/command/{op} with a fresh request
// ID and the bridge waits for the matching nearclip/core/response/{id}.
// Discovery advertisements and connection-lost signals arrive on their own
// topics.
type Bridge struct {
	transport Transport
	cfg       Config
	topics    mqtt.Topics
	now       func() time.Time
	logger    Logger

	mu      sync.Mutex
	started bool
	pending map[string]chan ResponseMessage
	lost    func(id string, at time.Time)
	onEvent func(lifecycle.Discovery)
}

var _ lifecycle.NativeCore = (*Bridge)(nil)

// NewBridge creates a bridge over transport. Call Start before use.
func NewBridge(transport Transport, cfg Config) *Bridge {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}
	return &Bridge{
		transport: transport,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    noopLogger{},
		pending:   make(map[string]chan ResponseMessage),
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// Start subscribes to command responses and connection-lost signals.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}

	if err := b.transport.Subscribe(b.topics.AllCoreResponses(), b.cfg.QoS, b.handleResponse); err != nil {
		return fmt.Errorf("subscribing to responses: %w", err)
	}
	if err := b.transport.Subscribe(b.topics.AllCoreConnectionLost(), b.cfg.QoS, b.handleConnectionLost); err != nil {
		return fmt.Errorf("subscribing to connection lost: %w", err)
	}

	b.started = true
	b.logger.Info("native core bridge started")
	return nil
}

// Stop unsubscribes and fails every command still waiting.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return
	}
	b.started = false
	pending := b.pending
	b.pending = make(map[string]chan ResponseMessage)
	discovering := b.onEvent != nil
	b.onEvent = nil
	b.mu.Unlock()

	for id, ch := range pending {
		ch <- ResponseMessage{RequestID: id, Error: "bridge stopped"}
	}

	topics := []string{b.topics.AllCoreResponses(), b.topics.AllCoreConnectionLost()}
	if discovering {
		topics = append(topics, b.topics.CoreDiscovery())
	}
	for _, topic := range topics {
		if err := b.transport.Unsubscribe(topic); err != nil {
			b.logger.Warn("unsubscribing", "topic", topic, "error", err)
		}
	}
	b.logger.Info("native core bridge stopped")
}

// StartDiscovery subscribes to advertisements and tells the native core to scan.
func (b *Bridge) StartDiscovery(ctx context.Context, onEvent func(lifecycle.Discovery)) error {
	b.mu.Lock()
	b.onEvent = onEvent
	b.mu.Unlock()

	if err := b.transport.Subscribe(b.topics.CoreDiscovery(), b.cfg.QoS, b.handleDiscovery); err != nil {
		b.clearDiscovery()
		return fmt.Errorf("subscribing to discovery: %w", err)
	}
	if err := b.command(ctx, OpStartDiscovery, device.Device{}); err != nil {
		b.clearDiscovery()
		if uerr := b.transport.Unsubscribe(b.topics.CoreDiscovery()); uerr != nil {
			b.logger.Warn("unsubscribing from discovery", "error", uerr)
		}
		return err
	}
	return nil
}

// StopDiscovery tells the native core to stop scanning. Advertisements that
// arrive afterwards are dropped.
func (b *Bridge) StopDiscovery() error {
	b.clearDiscovery()

	cmdErr := b.command(context.Background(), OpStopDiscovery, device.Device{})
	if err := b.transport.Unsubscribe(b.topics.CoreDiscovery()); err != nil {
		b.logger.Warn("unsubscribing from discovery", "error", err)
	}
	return cmdErr
}

// Connect asks the native core to open a link to d.
func (b *Bridge) Connect(ctx context.Context, d device.Device) error {
	return b.command(ctx, OpConnect, d)
}

// Disconnect asks the native core to close the link to d.
func (b *Bridge) Disconnect(ctx context.Context, d device.Device) error {
	return b.command(ctx, OpDisconnect, d)
}

// Pair asks the native core to run the pairing handshake with d.
func (b *Bridge) Pair(ctx context.Context, d device.Device) error {
	return b.command(ctx, OpPair, d)
}

// SetConnectionLostHandler registers the callback for dropped links.
func (b *Bridge) SetConnectionLostHandler(fn func(id string, at time.Time)) {
	b.mu.Lock()
	b.lost = fn
	b.mu.Unlock()
}

// Pending returns the number of commands awaiting a response.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// command publishes op for d and waits for the response, the context or
// the command timeout, whichever comes first.
func (b *Bridge) command(ctx context.Context, op string, d device.Device) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.CommandTimeout)
	defer cancel()

	msg := CommandMessage{
		RequestID: uuid.NewString(),
		Op:        op,
		DeviceID:  d.ID,
		PublicKey: d.PublicKey,
		IssuedAt:  b.now(),
	}
	if deadline, ok := ctx.Deadline(); ok {
		msg.Deadline = deadline.UTC()
	}

	replies := make(chan ResponseMessage, 1)
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotStarted, op)
	}
	b.pending[msg.RequestID] = replies
	b.mu.Unlock()
	defer b.forget(msg.RequestID)

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding %s command: %w", op, err)
	}
	if err := b.transport.Publish(b.topics.CoreCommand(op), payload, b.cfg.QoS, false); err != nil {
		return fmt.Errorf("publishing %s command: %w", op, err)
	}
	b.logger.Debug("native command sent", "op", op, "device_id", d.ID, "request_id", msg.RequestID)

	select {
	case resp := <-replies:
		if !resp.OK {
			return fmt.Errorf("%w: %s %s: %s", ErrRejected, op, d.ID, resp.Error)
		}
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s %s: %w", ErrTimeout, op, d.ID, ctx.Err())
		}
		return ctx.Err()
	}
}

func (b *Bridge) forget(requestID string) {
	b.mu.Lock()
	delete(b.pending, requestID)
	b.mu.Unlock()
}

func (b *Bridge) clearDiscovery() {
	b.mu.Lock()
	b.onEvent = nil
	b.mu.Unlock()
}

func (b *Bridge) handleResponse(topic string, payload []byte) error {
	resp, err := decode[ResponseMessage](payload)
	if err != nil {
		return err
	}
	if resp.RequestID == "" {
		resp.RequestID = mqtt.LastSegment(topic)
	}

	b.mu.Lock()
	ch, ok := b.pending[resp.RequestID]
	delete(b.pending, resp.RequestID)
	b.mu.Unlock()

	if !ok {
		b.logger.Debug("response for unknown request", "request_id", resp.RequestID)
		return nil
	}
	ch <- resp
	return nil
}

func (b *Bridge) handleDiscovery(_ string, payload []byte) error {
	ev, err := decode[lifecycle.Discovery](payload)
	if err != nil {
		return err
	}

	b.mu.Lock()
	onEvent := b.onEvent
	b.mu.Unlock()

	if onEvent != nil {
		onEvent(ev)
	}
	return nil
}

func (b *Bridge) handleConnectionLost(topic string, payload []byte) error {
	id := mqtt.LastSegment(topic)
	if id == "" {
		return fmt.Errorf("connection lost without device id on %s", topic)
	}

	var msg ConnectionLostMessage
	if len(payload) > 0 {
		var err error
		if msg, err = decode[ConnectionLostMessage](payload); err != nil {
			return err
		}
	}

	b.mu.Lock()
	lost := b.lost
	b.mu.Unlock()

	b.logger.Debug("connection lost signal", "device_id", id, "reason", msg.Reason)
	if lost != nil {
		lost(id, msg.At)
	}
	return nil
}
