package lifecycle

import "errors"

// Domain errors for the lifecycle package.
var (
	// ErrInvalidStateTransition is returned when the device's current status
	// forbids the requested operation. Nothing is written.
	ErrInvalidStateTransition = errors.New("lifecycle: invalid state transition")

	// ErrDeviceNotFound is returned when an operation names an unknown device.
	ErrDeviceNotFound = errors.New("lifecycle: device not found")

	// ErrDiscovery wraps native core failures to start or stop discovery.
	ErrDiscovery = errors.New("lifecycle: discovery failed")

	// ErrConnect wraps native core connect failures. The device is left in
	// ERROR unless a disconnect superseded the attempt.
	ErrConnect = errors.New("lifecycle: connect failed")

	// ErrPair wraps native core pairing failures.
	ErrPair = errors.New("lifecycle: pairing failed")
)
