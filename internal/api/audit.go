package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/nearclip/nearclip-core/internal/audit"
)

// recordAudit writes an audit entry for an operation requested by the caller
// of r. Failures are logged and never fail the request.
func (s *Server) recordAudit(r *http.Request, action audit.Action, deviceID string, opErr error) {
	if s.audit == nil {
		return
	}

	entry := &audit.Entry{
		Action:   action,
		DeviceID: deviceID,
		Source:   audit.SourceAPI,
		Outcome:  audit.OutcomeOK,
	}
	if claims := claimsFromContext(r.Context()); claims != nil {
		entry.Subject = claims.Subject
	}
	if opErr != nil {
		entry.Outcome = audit.OutcomeError
		entry.Details = map[string]any{"error": opErr.Error()}
	}
	if id, ok := r.Context().Value(ctxKeyRequestID).(string); ok && id != "" {
		if entry.Details == nil {
			entry.Details = map[string]any{}
		}
		entry.Details["request_id"] = id
	}

	if err := s.audit.Record(context.WithoutCancel(r.Context()), entry); err != nil {
		s.logger.Warn("failed to record audit entry",
			"action", action,
			"device_id", deviceID,
			"error", err,
		)
	}
}

// handleListAudit returns a page of the audit trail, newest first.
//
// Query parameters: action, device_id, subject, limit, offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeNotFound(w, "audit trail is not enabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:   audit.Action(q.Get("action")),
		DeviceID: q.Get("device_id"),
		Subject:  q.Get("subject"),
	}

	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeBadRequest(w, "invalid limit")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeBadRequest(w, "invalid offset")
		return
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit entries", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// intParam parses an optional non-negative integer query parameter.
func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}
