package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// State is the supervisor's view of the engine process.
type State string

// Engine states.
const (
	StateStopped    State = "stopped"
	StateRunning    State = "running"
	StateRestarting State = "restarting"
	StateFailed     State = "failed"
)

// Defaults applied by NewSupervisor to zero config values.
const (
	DefaultRestartDelay    = time.Second
	DefaultMaxRestartDelay = time.Minute
	DefaultGracefulTimeout = 10 * time.Second
)

// Config holds the engine process settings.
type Config struct {
	// Binary is the path to the engine executable.
	Binary string

	// Args are passed to the engine.
	Args []string

	// Env adds KEY=value pairs to the inherited environment.
	Env []string

	// RestartOnFailure restarts the engine when it exits without Stop.
	RestartOnFailure bool

	// RestartDelay is the first backoff delay; it doubles per consecutive
	// failure up to MaxRestartDelay.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration

	// MaxRestartAttempts caps consecutive restarts. 0 means unlimited.
	MaxRestartAttempts int

	// StableAfter resets the backoff once the engine has run this long.
	StableAfter time.Duration

	// GracefulTimeout is how long Stop waits after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration
}

// Logger defines the logging interface used by the supervisor.
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

// Supervisor runs the engine and keeps it running.
type Supervisor struct {
	cfg    Config
	logger Logger

	mu        sync.RWMutex
	cmd       *exec.Cmd
	state     State
	restarts  int
	lastErr   error
	startedAt time.Time
	stopping  bool
	stop      chan struct{}
	done      chan struct{}

	onExit func(err error)
}

// NewSupervisor creates a supervisor. The engine is not started until Start.
func NewSupervisor(cfg Config) *Supervisor {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = DefaultRestartDelay
	}
	if cfg.MaxRestartDelay < cfg.RestartDelay {
		cfg.MaxRestartDelay = max(DefaultMaxRestartDelay, cfg.RestartDelay)
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = DefaultGracefulTimeout
	}
	if cfg.StableAfter <= 0 {
		cfg.StableAfter = cfg.MaxRestartDelay
	}
	return &Supervisor{
		cfg:    cfg,
		logger: noopLogger{},
		state:  StateStopped,
	}
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
}

// SetOnExit registers a callback for unexpected engine exits. Links the
// engine held are gone at that point; the daemon uses it to reconcile.
func (s *Supervisor) SetOnExit(fn func(err error)) {
	s.mu.Lock()
	s.onExit = fn
	s.mu.Unlock()
}

// Start launches the engine and watches it until Stop or ctx ends.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.cfg.Binary == "" {
		return ErrNoBinary
	}

	s.mu.Lock()
	if s.state == StateRunning || s.state == StateRestarting {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.stopping = false
	s.restarts = 0
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	cmd, err := s.launch()
	if err != nil {
		s.mu.Lock()
		s.state = StateFailed
		s.lastErr = err
		close(s.done)
		s.mu.Unlock()
		return err
	}

	go s.watch(ctx, cmd, s.stop)
	return nil
}

// launch starts one engine process in its own process group.
func (s *Supervisor) launch() (*exec.Cmd, error) {
	cmd := exec.Command(s.cfg.Binary, s.cfg.Args...) //nolint:gosec // Binary comes from the daemon config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(s.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), s.cfg.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting engine %s: %w", s.cfg.Binary, err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.state = StateRunning
	s.startedAt = time.Now()
	s.mu.Unlock()

	go s.forward("stdout", stdout)
	go s.forward("stderr", stderr)

	s.logger.Info("engine started", "binary", s.cfg.Binary, "pid", cmd.Process.Pid)
	return cmd, nil
}

// forward logs engine output line by line.
func (s *Supervisor) forward(stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.logger.Debug("engine output", "stream", stream, "line", scanner.Text())
	}
}

// watch waits for each engine process to exit and restarts it until Stop,
// ctx cancellation or the restart budget runs out.
func (s *Supervisor) watch(ctx context.Context, cmd *exec.Cmd, stop <-chan struct{}) {
	defer close(s.done)

	exited := make(chan error, 1)
	wait := func(c *exec.Cmd) { exited <- c.Wait() }
	go wait(cmd)

	for {
		var err error
		select {
		case err = <-exited:
		case <-ctx.Done():
			if cmd != nil {
				s.terminate(cmd, exited)
			}
			s.setStopped()
			return
		}

		s.mu.Lock()
		stopping := s.stopping
		ranFor := time.Since(s.startedAt)
		onExit := s.onExit
		if !stopping {
			s.lastErr = err
			s.state = StateFailed
			if ranFor >= s.cfg.StableAfter {
				s.restarts = 0
			}
		}
		s.mu.Unlock()

		if stopping {
			s.logger.Info("engine stopped")
			s.setStopped()
			return
		}

		s.logger.Warn("engine exited unexpectedly", "error", err, "uptime", ranFor.Round(time.Millisecond))
		if onExit != nil {
			onExit(err)
		}

		next, ok := s.nextRestart()
		if !ok {
			return
		}

		select {
		case <-ctx.Done():
			s.setStopped()
			return
		case <-stop:
			s.setStopped()
			return
		case <-time.After(next.delay):
		}

		restarted, err := s.launch()
		if err != nil {
			s.logger.Error("engine restart failed", "attempt", next.attempt, "error", err)
			s.mu.Lock()
			s.lastErr = err
			s.mu.Unlock()
			// A failed launch counts as an immediate exit.
			cmd = nil
			exited <- err
			continue
		}
		cmd = restarted
		go wait(cmd)
	}
}

type restartPlan struct {
	attempt int
	delay   time.Duration
}

// nextRestart books the next restart attempt, or reports that none is allowed.
func (s *Supervisor) nextRestart() (restartPlan, bool) {
	if !s.cfg.RestartOnFailure {
		s.logger.Info("engine restart disabled")
		return restartPlan{}, false
	}

	s.mu.Lock()
	s.restarts++
	attempt := s.restarts
	if s.cfg.MaxRestartAttempts > 0 && attempt > s.cfg.MaxRestartAttempts {
		s.mu.Unlock()
		s.logger.Error("engine restart attempts exhausted", "attempts", attempt-1)
		return restartPlan{}, false
	}
	s.state = StateRestarting
	s.mu.Unlock()

	delay := backoff(s.cfg.RestartDelay, s.cfg.MaxRestartDelay, attempt)
	s.logger.Info("restarting engine", "attempt", attempt, "delay", delay)
	return restartPlan{attempt: attempt, delay: delay}, true
}

// backoff returns base doubled per attempt after the first, capped at limit.
func backoff(base, limit time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt && d < limit; i++ {
		d *= 2
	}
	return min(d, limit)
}

// Stop sends SIGTERM to the engine's process group, escalating to SIGKILL
// after GracefulTimeout. It returns once the supervisor has exited.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	done := s.done
	if done == nil || s.state == StateStopped {
		s.mu.Unlock()
		return nil
	}
	if !s.stopping {
		s.stopping = true
		close(s.stop)
	}
	cmd := s.cmd
	s.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		s.logger.Info("stopping engine", "pid", cmd.Process.Pid)
		signalGroup(cmd, syscall.SIGTERM) //nolint:errcheck // Escalated below
	}

	select {
	case <-done:
		return nil
	case <-time.After(s.cfg.GracefulTimeout):
	}

	s.logger.Warn("engine ignored SIGTERM, killing", "timeout", s.cfg.GracefulTimeout)
	if cmd != nil && cmd.Process != nil {
		if err := signalGroup(cmd, syscall.SIGKILL); err != nil {
			return fmt.Errorf("killing engine: %w", err)
		}
	}
	<-done
	return nil
}

// terminate stops cmd on context cancellation.
func (s *Supervisor) terminate(cmd *exec.Cmd, exited <-chan error) {
	signalGroup(cmd, syscall.SIGTERM) //nolint:errcheck // Escalated below
	select {
	case <-exited:
	case <-time.After(s.cfg.GracefulTimeout):
		signalGroup(cmd, syscall.SIGKILL) //nolint:errcheck // Best effort
		<-exited
	}
}

// signalGroup signals the engine and its children. A process that has
// already exited is not an error.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-cmd.Process.Pid, sig)
	if err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}

func (s *Supervisor) setStopped() {
	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
}

// Done is closed when the supervisor has given up or been stopped.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.done
}

// State returns the current engine state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// HealthCheck reports an error unless the engine is running.
func (s *Supervisor) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if st := s.State(); st != StateRunning {
		return fmt.Errorf("%w: %s", ErrNotRunning, st)
	}
	return nil
}

// Stats describes the supervised engine.
type Stats struct {
	State     State         `json:"state"`
	PID       int           `json:"pid,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
	Restarts  int           `json:"restarts"`
	LastError string        `json:"last_error,omitempty"`
}

// Stats returns a snapshot of the engine's state.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{State: s.state, Restarts: s.restarts}
	if s.state == StateRunning && s.cmd != nil && s.cmd.Process != nil {
		st.PID = s.cmd.Process.Pid
		st.Uptime = time.Since(s.startedAt)
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
