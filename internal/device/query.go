package device

import (
	"fmt"
	"strings"
)

// QueryKind selects which predicate a Query applies.
type QueryKind int

// Query kinds.
const (
	QueryAll QueryKind = iota
	QueryConnected
	QueryPaired
	QueryByType
)

// Query is a filter over the catalog. Results are always ordered by LastSeen
// descending, ties broken by device ID.
//
// A Query is evaluated twice: as SQL for reads and as an in-memory predicate
// to decide whether a write affects a live subscription. Both forms must agree.
type Query struct {
	Kind QueryKind
	Type DeviceType // used by QueryByType only
}

// All matches every device.
func All() Query { return Query{Kind: QueryAll} }

// Connected matches devices whose status is CONNECTED.
func Connected() Query { return Query{Kind: QueryConnected} }

// Paired matches paired devices regardless of status.
func Paired() Query { return Query{Kind: QueryPaired} }

// ByType matches devices of one platform.
func ByType(t DeviceType) Query { return Query{Kind: QueryByType, Type: t} }

// Matches reports whether d belongs to the query's result set.
func (q Query) Matches(d Device) bool {
	switch q.Kind {
	case QueryConnected:
		return d.Status == StatusConnected
	case QueryPaired:
		return d.Paired
	case QueryByType:
		return d.Type == q.Type
	default:
		return true
	}
}

// where returns the SQL predicate and its arguments.
func (q Query) where() (string, []any) {
	switch q.Kind {
	case QueryConnected:
		return "WHERE connection_status = ?", []any{string(StatusConnected)}
	case QueryPaired:
		return "WHERE is_paired = 1", nil
	case QueryByType:
		return "WHERE device_type = ?", []any{string(q.Type)}
	default:
		return "", nil
	}
}

// String returns the form accepted by ParseQuery.
func (q Query) String() string {
	switch q.Kind {
	case QueryConnected:
		return "connected"
	case QueryPaired:
		return "paired"
	case QueryByType:
		return "type:" + string(q.Type)
	default:
		return "all"
	}
}

// ParseQuery parses "all", "connected", "paired" or "type:<DEVICE_TYPE>".
// An empty string is "all".
func ParseQuery(s string) (Query, error) {
	switch s {
	case "", "all":
		return All(), nil
	case "connected":
		return Connected(), nil
	case "paired":
		return Paired(), nil
	}
	if t, ok := strings.CutPrefix(s, "type:"); ok && t != "" {
		return ByType(ParseDeviceType(strings.ToUpper(t))), nil
	}
	return Query{}, fmt.Errorf("%w: %q", ErrInvalidQuery, s)
}
