package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nearclip/nearclip-core/internal/audit"
	"github.com/nearclip/nearclip-core/internal/device"
)

// WebSocket event channels.
const (
	WSTypeTransition = "device.transition"
	WSTypeDiscovered = "device.discovered"
	WSTypeSnapshot   = "devices.snapshot"
)

// parseListQuery builds a catalog query from ?filter= and ?type=.
// The two parameters are mutually exclusive.
func parseListQuery(r *http.Request) (device.Query, error) {
	filter := r.URL.Query().Get("filter")
	deviceType := r.URL.Query().Get("type")

	if deviceType != "" {
		if filter != "" && filter != "all" {
			return device.Query{}, errFilterAndType
		}
		return device.ParseQuery("type:" + deviceType)
	}
	return device.ParseQuery(filter)
}

// handleListDevices returns the devices matching the requested query.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	devices, err := s.devices.List(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"query":   q.String(),
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d, found, err := s.devices.Get(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if !found {
		writeNotFound(w, "device not found")
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// handleForgetDevice disconnects and removes a device.
func (s *Server) handleForgetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := s.manager.Forget(r.Context(), id)
	s.recordAudit(r, audit.ActionForget, id, err)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleConnect drives the device to CONNECTED.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, err := s.manager.Connect(r.Context(), id)
	s.recordAudit(r, audit.ActionConnect, id, err)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleDisconnect drives the device to DISCONNECTED.
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, err := s.manager.Disconnect(r.Context(), id)
	s.recordAudit(r, audit.ActionDisconnect, id, err)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handlePair runs the pairing handshake on a connected device.
func (s *Server) handlePair(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, err := s.manager.Pair(r.Context(), id)
	s.recordAudit(r, audit.ActionPair, id, err)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleConnections returns the devices with a live link.
func (s *Server) handleConnections(w http.ResponseWriter, _ *http.Request) {
	devices := s.manager.View().Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleStats returns catalog counts by connection state.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.manager.Stats(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleStartDiscovery starts a discovery session. Found devices are
// broadcast to WebSocket clients subscribed to device.discovered.
func (s *Server) handleStartDiscovery(w http.ResponseWriter, r *http.Request) {
	err := s.manager.StartDiscovery(r.Context(), func(d device.Device) {
		s.hub.Broadcast(WSTypeDiscovered, d)
	})
	s.recordAudit(r, audit.ActionDiscoveryStart, "", err)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"discovering": true})
}

// handleStopDiscovery stops the active discovery session, if any.
func (s *Server) handleStopDiscovery(w http.ResponseWriter, r *http.Request) {
	err := s.manager.StopDiscovery()
	s.recordAudit(r, audit.ActionDiscoveryStop, "", err)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"discovering": false})
}
