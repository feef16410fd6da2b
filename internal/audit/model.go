// Package audit records access to sealed assets and training runs for
// compliance and incident response. Entries form a hash chain so tampering
// with history is detectable.
package audit

import (
	"time"
)

// Outcome values for audit entries.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// AuditLog represents a single audit event in the system.
type AuditLog struct {
	ID         string
	Identity   string // authenticated email of the actor
	EntityType string
	EntityID   string
	Action     string
	Outcome    string // "success" or "failure"
	CreatedAt  time.Time

	// Optional metadata
	RequestID string
	IPAddress string
	UserAgent string

	// Tamper detection
	PreviousHash string // SHA-256 hash of previous log entry for tamper detection
}

// LogEntry represents the input for creating an audit log entry.
type LogEntry struct {
	Identity   string
	EntityType string
	EntityID   string
	Action     string
	Outcome    string // "success" or "failure"; empty defaults to success

	// Optional metadata
	RequestID string
	IPAddress string
	UserAgent string
}
