package nativecore

import "errors"

var (
	// ErrTimeout is returned when the native core does not answer a command in time.
	ErrTimeout = errors.New("nativecore: command timed out")

	// ErrRejected is returned when the native core answers a command with a failure.
	ErrRejected = errors.New("nativecore: command rejected")

	// ErrNotStarted is returned by commands issued before Start.
	ErrNotStarted = errors.New("nativecore: bridge not started")
)
