package domain

import "time"

// Device is the opaque client metadata recorded with a session.
type Device struct {
	UserAgent string
	IP        string
	ClientID  string
}

// RevokeReason records why a session ended.
type RevokeReason string

const (
	ReasonLogout           RevokeReason = "logout"
	ReasonLogoutEverywhere RevokeReason = "logout_everywhere"
	ReasonReuseDetected    RevokeReason = "reuse_detected"
	ReasonIdleTimeout      RevokeReason = "idle_timeout"
	ReasonAdmin            RevokeReason = "admin"
)

// Session is one authenticated device continuity chain. Rotation replaces RefreshTokenHash in place;
// the raw refresh token is never stored.
type Session struct {
	ID               string
	UserID           string
	RefreshTokenHash string
	FamilyID         string // shared by every session descended from one login
	Device           Device
	Environment      string
	ExpiresAt        time.Time
	RevokedAt        *time.Time // nil when not revoked
	RevokeReason     RevokeReason
	CreatedAt        time.Time
	LastActivityAt   time.Time
}

// Revoked reports whether the session has been revoked.
func (s *Session) Revoked() bool { return s.RevokedAt != nil }

// Expired reports whether the absolute lifetime has elapsed at now.
func (s *Session) Expired(now time.Time) bool { return !now.Before(s.ExpiresAt) }

// Idle reports whether the session has been inactive longer than idleTimeout. A non-positive
// timeout disables the check.
func (s *Session) Idle(now time.Time, idleTimeout time.Duration) bool {
	return idleTimeout > 0 && now.Sub(s.LastActivityAt) > idleTimeout
}

// Active reports whether the session is usable at now: not revoked, not expired and not idle.
func (s *Session) Active(now time.Time, idleTimeout time.Duration) bool {
	return !s.Revoked() && !s.Expired(now) && !s.Idle(now, idleTimeout)
}

// SupersededHash is a refresh token hash that rotation replaced. Presenting it again is a replay.
type SupersededHash struct {
	Hash         string
	SessionID    string
	FamilyID     string
	SupersededAt time.Time
}
