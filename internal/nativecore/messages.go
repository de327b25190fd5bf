package nativecore

import (
	"encoding/json"
	"fmt"
	"time"
)

// Command operations understood by the native core.
const (
	OpStartDiscovery = "start_discovery"
	OpStopDiscovery  = "stop_discovery"
	OpConnect        = "connect"
	OpDisconnect     = "disconnect"
	OpPair           = "pair"
)

// CommandMessage is sent from the registry to the native core.
// Topic: nearclip/core/command/{op}
type CommandMessage struct {
	// RequestID correlates the command with its ResponseMessage.
	RequestID string `json:"request_id"`

	Op        string    `json:"op"`
	DeviceID  string    `json:"device_id,omitempty"`
	PublicKey string    `json:"public_key,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`

	// Deadline tells the native core when the registry stops waiting.
	Deadline time.Time `json:"deadline,omitzero"`
}

// ResponseMessage answers one CommandMessage.
// Topic: nearclip/core/response/{request_id}
type ResponseMessage struct {
	RequestID string `json:"request_id"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

// ConnectionLostMessage reports a link that dropped on its own.
// Topic: nearclip/core/connection/lost/{device_id}
type ConnectionLostMessage struct {
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// StatusMessage is the retained per-device status the registry publishes.
// Topic: nearclip/registry/device/{device_id}/status
type StatusMessage struct {
	DeviceID  string    `json:"device_id"`
	Status    string    `json:"connection_status"`
	Paired    bool      `json:"is_paired"`
	Cause     string    `json:"cause"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
	Forgotten bool      `json:"forgotten,omitempty"`
}

func decode[T any](payload []byte) (T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("decoding %T: %w", v, err)
	}
	return v, nil
}
