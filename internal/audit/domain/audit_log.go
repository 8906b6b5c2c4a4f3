package domain

import "time"

// AuditLog represents an audit event.
// ScopeID is the organization id the event belongs to, or the system sentinel for global events.
type AuditLog struct {
	ID        string
	ScopeID   string
	UserID    string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
