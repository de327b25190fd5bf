package device

import (
	"fmt"
	"slices"
	"time"
)

// DeviceType is the platform a peer runs on.
type DeviceType string

// Known device types. Anything else received on the wire decodes to TypeUnknown.
const (
	TypeAndroid DeviceType = "ANDROID"
	TypeMac     DeviceType = "MAC"
	TypeWindows DeviceType = "WINDOWS"
	TypeLinux   DeviceType = "LINUX"
	TypeUnknown DeviceType = "UNKNOWN"
)

// AllDeviceTypes returns all known device types, TypeUnknown last.
func AllDeviceTypes() []DeviceType {
	return []DeviceType{TypeAndroid, TypeMac, TypeWindows, TypeLinux, TypeUnknown}
}

// ParseDeviceType decodes a wire value. Unrecognised values (including
// different casing) decode to TypeUnknown; decoding never fails.
func ParseDeviceType(s string) DeviceType {
	t := DeviceType(s)
	if slices.Contains(AllDeviceTypes(), t) {
		return t
	}
	return TypeUnknown
}

// UnmarshalText applies ParseDeviceType so JSON decoding shares the fallback.
func (t *DeviceType) UnmarshalText(b []byte) error {
	*t = ParseDeviceType(string(b))
	return nil
}

// ConnectionStatus is the live link state of a peer.
type ConnectionStatus string

// Connection states. Unrecognised values decode to StatusDisconnected.
const (
	StatusDisconnected ConnectionStatus = "DISCONNECTED"
	StatusConnecting   ConnectionStatus = "CONNECTING"
	StatusConnected    ConnectionStatus = "CONNECTED"
	StatusPairing      ConnectionStatus = "PAIRING"
	StatusError        ConnectionStatus = "ERROR"
)

// AllConnectionStatuses returns all connection states.
func AllConnectionStatuses() []ConnectionStatus {
	return []ConnectionStatus{StatusDisconnected, StatusConnecting, StatusConnected, StatusPairing, StatusError}
}

// ParseConnectionStatus decodes a wire value, falling back to StatusDisconnected.
// isConnectable depends on this fallback: an unknown state is treated as a
// device that may be connected again.
func ParseConnectionStatus(s string) ConnectionStatus {
	st := ConnectionStatus(s)
	if slices.Contains(AllConnectionStatuses(), st) {
		return st
	}
	return StatusDisconnected
}

// UnmarshalText applies ParseConnectionStatus.
func (s *ConnectionStatus) UnmarshalText(b []byte) error {
	*s = ParseConnectionStatus(string(b))
	return nil
}

// Capability is a feature a peer advertises.
type Capability string

// Known capabilities. Anything else decodes to CapabilityUnknown.
const (
	CapabilityBLE            Capability = "BLE"
	CapabilityWiFiDirect     Capability = "WIFI_DIRECT"
	CapabilityClipboardRead  Capability = "CLIPBOARD_READ"
	CapabilityClipboardWrite Capability = "CLIPBOARD_WRITE"
	CapabilityUnknown        Capability = "UNKNOWN"
)

// ParseCapability decodes a wire value, falling back to CapabilityUnknown.
func ParseCapability(s string) Capability {
	switch c := Capability(s); c {
	case CapabilityBLE, CapabilityWiFiDirect, CapabilityClipboardRead, CapabilityClipboardWrite:
		return c
	default:
		return CapabilityUnknown
	}
}

// UnmarshalText applies ParseCapability.
func (c *Capability) UnmarshalText(b []byte) error {
	*c = ParseCapability(string(b))
	return nil
}

// Maximum battery percentage a peer may report.
const maxBatteryLevel = 100

// Device is a remote peer in the catalog.
//
// Identity and credentials are fixed at discovery; Status, Paired, LastSeen
// and the bookkeeping timestamps change over the device's lifetime.
type Device struct {
	ID   string     `json:"device_id"`
	Name string     `json:"device_name"`
	Type DeviceType `json:"device_type"`

	// PublicKey is stored for the pairing handshake and never interpreted here.
	PublicKey string `json:"public_key"`

	Status ConnectionStatus `json:"connection_status"`

	// Paired is independent of Status: a paired device may be disconnected.
	Paired bool `json:"is_paired"`

	Capabilities []Capability `json:"capabilities,omitempty"`

	// Alias is a user-assigned name that overrides Name for display.
	Alias string `json:"alias,omitempty"`

	// BatteryLevel is a percentage, nil when the peer does not report one.
	BatteryLevel *int `json:"battery_level,omitempty"`

	LastSeen  time.Time `json:"last_seen"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsConnected reports whether the device has a live link.
func (d Device) IsConnected() bool {
	return d.Status == StatusConnected
}

// IsConnectable reports whether a connect attempt may start from the current
// state. CONNECTING, CONNECTED and ERROR are not directly connectable.
func (d Device) IsConnectable() bool {
	return d.Status == StatusDisconnected || d.Status == StatusPairing
}

// HasCapability reports whether the device advertises c.
func (d Device) HasCapability(c Capability) bool {
	return slices.Contains(d.Capabilities, c)
}

// SupportsClipboard reports whether the device can read or write a clipboard.
func (d Device) SupportsClipboard() bool {
	return d.HasCapability(CapabilityClipboardRead) || d.HasCapability(CapabilityClipboardWrite)
}

// DisplayName returns the alias when set, otherwise the advertised name.
func (d Device) DisplayName() string {
	if d.Alias != "" {
		return d.Alias
	}
	return d.Name
}

// IsStale reports whether the device has not been seen for longer than threshold.
func (d Device) IsStale(now time.Time, threshold time.Duration) bool {
	return now.Sub(d.LastSeen) > threshold
}

// Clone returns a copy that shares no slices or pointers with d.
func (d Device) Clone() Device {
	cpy := d
	cpy.Capabilities = slices.Clone(d.Capabilities)
	if d.BatteryLevel != nil {
		level := *d.BatteryLevel
		cpy.BatteryLevel = &level
	}
	return cpy
}

// Validate checks the fields a store write relies on.
func (d Device) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidDevice)
	}
	if d.BatteryLevel != nil && (*d.BatteryLevel < 0 || *d.BatteryLevel > maxBatteryLevel) {
		return fmt.Errorf("%w: battery_level %d out of range 0-100", ErrInvalidDevice, *d.BatteryLevel)
	}
	return nil
}
