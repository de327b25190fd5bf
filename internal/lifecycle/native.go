package lifecycle

import (
	"context"
	"time"

	"github.com/nearclip/nearclip-core/internal/device"
)

// Discovery is a peer advertisement reported by the native core.
type Discovery struct {
	ID           string              `json:"device_id"`
	Name         string              `json:"device_name"`
	Type         device.DeviceType   `json:"device_type"`
	PublicKey    string              `json:"public_key"`
	Capabilities []device.Capability `json:"capabilities,omitempty"`
	BatteryLevel *int                `json:"battery_level,omitempty"`

	// SeenAt is when the native core observed the advertisement. A zero
	// value is replaced with the time the event is processed.
	SeenAt time.Time `json:"seen_at"`
}

// NativeCore is the boundary with the transport and pairing engine.
//
// Callbacks may arrive on any goroutine. The Manager serialises them per
// device before touching shared state.
type NativeCore interface {
	// StartDiscovery begins reporting advertisements to onEvent.
	StartDiscovery(ctx context.Context, onEvent func(Discovery)) error

	// StopDiscovery stops reporting advertisements.
	StopDiscovery() error

	// Connect establishes a link to d. It returns when the link is up or
	// the attempt has failed.
	Connect(ctx context.Context, d device.Device) error

	// Disconnect tears down the link to d.
	Disconnect(ctx context.Context, d device.Device) error

	// Pair runs the pairing handshake with a connected d.
	Pair(ctx context.Context, d device.Device) error

	// SetConnectionLostHandler registers the callback for links that drop
	// without a Disconnect call.
	SetConnectionLostHandler(fn func(id string, at time.Time))
}
