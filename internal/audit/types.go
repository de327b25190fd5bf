package audit

import (
	"context"
	"errors"
	"time"
)

// Action names an audited operation.
type Action string

// Audited actions.
const (
	ActionConnect        Action = "connect"
	ActionDisconnect     Action = "disconnect"
	ActionPair           Action = "pair"
	ActionForget         Action = "forget"
	ActionDiscoveryStart Action = "discovery_start"
	ActionDiscoveryStop  Action = "discovery_stop"
)

// Outcome of an audited operation.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// SourceAPI marks entries recorded by the HTTP API.
const SourceAPI = "api"

// Page size limits for List.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// ErrInvalidEntry is returned when an entry has no action or source.
var ErrInvalidEntry = errors.New("audit: invalid entry")

// Entry is a single audit trail record.
type Entry struct {
	ID        string         `json:"id"`
	Action    Action         `json:"action"`
	DeviceID  string         `json:"device_id,omitempty"`
	Subject   string         `json:"subject,omitempty"`
	Source    string         `json:"source"`
	Outcome   string         `json:"outcome"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter selects entries for List. Empty fields match everything.
type Filter struct {
	Action   Action
	DeviceID string
	Subject  string
	Limit    int
	Offset   int
}

// ListResult is one page of entries, newest first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository stores and queries audit entries.
type Repository interface {
	Record(ctx context.Context, e *Entry) error
	List(ctx context.Context, f Filter) (*ListResult, error)
}
