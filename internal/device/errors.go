package device

import "errors"

// Domain errors for the device package.
//
// Absence of a device is not an error: lookups return a found flag instead.
//
//	if errors.Is(err, device.ErrStorage) {
//	    // the catalog could not be read or written
//	}
var (
	// ErrStorage wraps every failure of the underlying store (I/O, corruption,
	// closed database). Storage errors are never retried by this package.
	ErrStorage = errors.New("device: storage error")

	// ErrInvalidDevice is returned when a record fails validation before a write.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidQuery is returned when a live query name cannot be parsed.
	ErrInvalidQuery = errors.New("device: invalid query")
)
