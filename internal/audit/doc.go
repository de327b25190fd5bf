// Package audit records who asked NearClip Core to do what.
//
// Every lifecycle operation requested through the API (connect, disconnect,
// pair, forget, discovery start and stop) is written to the audit_log table
// with the caller's subject and the outcome. Transitions caused by the peer
// itself, such as a dropped link, are not audited; they are visible through
// the status fan-out and telemetry instead.
package audit
