package engine

import "errors"

var (
	// ErrAlreadyRunning is returned by Start when the engine is running.
	ErrAlreadyRunning = errors.New("engine: already running")

	// ErrNotRunning is returned by HealthCheck when the engine is down.
	ErrNotRunning = errors.New("engine: not running")

	// ErrNoBinary is returned when no engine binary is configured.
	ErrNoBinary = errors.New("engine: binary not configured")
)
