// Package audit records admin actions against billing entities for
// compliance and incident response. Every manual billing trigger is
// attributable to the operator who issued it.
package audit

import (
	"time"
)

// AuditLog represents a single recorded admin action.
type AuditLog struct {
	ID         string
	ActorID    string
	EntityType string
	EntityID   string
	Action     string
	Outcome    string // "success" or "failure"
	CreatedAt  time.Time

	// Optional request metadata
	RequestID string
	IPAddress string
	UserAgent string
}

// LogEntry represents the input for creating an audit log entry.
type LogEntry struct {
	ActorID    string
	EntityType string
	EntityID   string
	Action     string
	Outcome    string // "success" or "failure"

	// Optional request metadata
	RequestID string
	IPAddress string
	UserAgent string
}
