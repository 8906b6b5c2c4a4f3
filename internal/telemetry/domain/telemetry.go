package domain

import "time"

// EventType names a security-relevant lifecycle event.
type EventType string

const (
	EventSessionCreated     EventType = "session.created"
	EventSessionRotated     EventType = "session.rotated"
	EventRefreshReuse       EventType = "session.refresh_reuse"
	EventFamilyRevoked      EventType = "session.family_revoked"
	EventInvitationIssued   EventType = "invitation.issued"
	EventInvitationRedeemed EventType = "invitation.redeemed"
)

// SecurityEvent is one lifecycle event exported to the telemetry pipeline. Raw tokens and codes
// never appear here; only identifiers.
type SecurityEvent struct {
	Type      EventType
	UserID    string
	SessionID string
	FamilyID  string
	ScopeID   string
	Outcome   string
	CreatedAt time.Time
}
