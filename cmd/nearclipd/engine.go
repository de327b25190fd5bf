package main

import (
	"context"
	"errors"
	"time"

	"github.com/nearclip/nearclip-core/internal/engine"
	"github.com/nearclip/nearclip-core/internal/infrastructure/config"
	"github.com/nearclip/nearclip-core/internal/infrastructure/logging"
	"github.com/nearclip/nearclip-core/internal/lifecycle"
)

// errEngineGaveUp stops the daemon when the engine cannot be kept running.
var errEngineGaveUp = errors.New("native engine exhausted its restart attempts")

// linkOwner is the part of the lifecycle manager the engine hooks need.
type linkOwner interface {
	View() *lifecycle.ConnectionView
	HandleConnectionLost(id string, at time.Time)
}

// newEngineSupervisor builds the supervisor for the managed engine. Every
// link the engine held is dropped when it exits.
func newEngineSupervisor(cfg config.NativeCoreConfig, links linkOwner, log *logging.Logger) *engine.Supervisor {
	sup := engine.NewSupervisor(engine.Config{
		Binary:             cfg.Binary,
		Args:               cfg.Args,
		Env:                cfg.Env,
		RestartOnFailure:   cfg.RestartOnFailure,
		RestartDelay:       cfg.RestartDelay,
		MaxRestartDelay:    cfg.MaxRestartDelay,
		MaxRestartAttempts: cfg.MaxRestartAttempts,
		GracefulTimeout:    cfg.GracefulTimeout,
	})
	sup.SetLogger(log)
	sup.SetOnExit(func(error) { dropLinks(links, time.Now()) })
	return sup
}

// dropLinks reports every live link as lost.
func dropLinks(links linkOwner, at time.Time) {
	for _, d := range links.View().Snapshot() {
		links.HandleConnectionLost(d.ID, at)
	}
}

// watchEngine returns errEngineGaveUp if the supervisor stops while the
// daemon is still running.
func watchEngine(ctx context.Context, sup *engine.Supervisor) error {
	select {
	case <-ctx.Done():
		return nil
	case <-sup.Done():
		if ctx.Err() != nil || sup.State() == engine.StateStopped {
			return nil
		}
		return errEngineGaveUp
	}
}
