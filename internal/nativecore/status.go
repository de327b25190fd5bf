package nativecore

import (
	"encoding/json"

	"github.com/nearclip/nearclip-core/internal/infrastructure/mqtt"
	"github.com/nearclip/nearclip-core/internal/lifecycle"
)

// StatusPublisher republishes committed transitions as retained per-device
// status messages so other processes can follow connection state.
type StatusPublisher struct {
	transport Transport
	qos       byte
	logger    Logger
}

// NewStatusPublisher creates a publisher. Register Handle with
// lifecycle.Manager.AddListener.
func NewStatusPublisher(transport Transport, qos byte) *StatusPublisher {
	return &StatusPublisher{transport: transport, qos: qos, logger: noopLogger{}}
}

// SetLogger sets the logger for the publisher.
func (p *StatusPublisher) SetLogger(logger Logger) {
	p.logger = logger
}

// Handle publishes t. Forgotten devices get their retained message cleared.
func (p *StatusPublisher) Handle(t lifecycle.Transition) {
	topic := mqtt.Topics{}.RegistryDeviceStatus(t.DeviceID)

	if t.Cause == lifecycle.CauseForget {
		// An empty retained payload deletes the retained message.
		if err := p.transport.Publish(topic, nil, p.qos, true); err != nil {
			p.logger.Warn("clearing device status", "device_id", t.DeviceID, "error", err)
		}
		return
	}

	payload, err := json.Marshal(StatusMessage{
		DeviceID:  t.DeviceID,
		Status:    string(t.To),
		Paired:    t.Device.Paired,
		Cause:     string(t.Cause),
		Error:     t.Error,
		UpdatedAt: t.At,
	})
	if err != nil {
		p.logger.Error("encoding device status", "device_id", t.DeviceID, "error", err)
		return
	}
	if err := p.transport.Publish(topic, payload, p.qos, true); err != nil {
		p.logger.Warn("publishing device status", "device_id", t.DeviceID, "error", err)
	}
}
