package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nearclip/nearclip-core/internal/auth"
)

// healthCheckTimeout bounds each component check in GET /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Group(func(r chi.Router) {
				r.Use(requirePermission(auth.PermDeviceRead))

				r.Get("/devices", s.handleListDevices)
				r.Get("/devices/{id}", s.handleGetDevice)
				r.Get("/connections", s.handleConnections)
				r.Get("/stats", s.handleStats)
				r.Get("/ws", s.handleWebSocket)
			})

			r.Group(func(r chi.Router) {
				r.Use(requirePermission(auth.PermDeviceOperate))

				r.Delete("/devices/{id}", s.handleForgetDevice)
				r.Post("/devices/{id}/connect", s.handleConnect)
				r.Post("/devices/{id}/disconnect", s.handleDisconnect)
				r.Post("/devices/{id}/pair", s.handlePair)
			})

			r.Group(func(r chi.Router) {
				r.Use(requirePermission(auth.PermDiscoveryManage))

				r.Post("/discovery/start", s.handleStartDiscovery)
				r.Post("/discovery/stop", s.handleStopDiscovery)
			})

			r.Group(func(r chi.Router) {
				r.Use(requirePermission(auth.PermAuditRead))

				r.Get("/audit", s.handleListAudit)
			})
		})
	})

	return r
}

// handleHealth reports the version and the status of every registered component.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	components := make(map[string]string, len(s.health))

	for name, checker := range s.health {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := checker.HealthCheck(ctx)
		cancel()

		if err != nil {
			components[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":     overall,
		"version":    s.version,
		"components": components,
	})
}
