package repository

import (
	"context"
	"time"

	"sso-hub/internal/session/domain"
)

// Repository defines persistence for sessions. Every mutation of a session row goes through one of
// the conditional operations below; callers never read-modify-write.
type Repository interface {
	Create(ctx context.Context, s *domain.Session) error
	// GetByID returns the session for id, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// GetByRefreshHash returns the session whose current refresh hash is hash, or nil.
	GetByRefreshHash(ctx context.Context, hash string) (*domain.Session, error)
	// RotateRefreshHash replaces oldHash with newHash on a non-revoked session, bumps
	// last_activity_at and sets expires_at, and records oldHash as superseded, atomically.
	// It reports false when the stored hash no longer equals oldHash or the session is revoked.
	RotateRefreshHash(ctx context.Context, sessionID, oldHash, newHash string, now, expiresAt time.Time) (bool, error)
	// FindSuperseded returns the superseded record for hash, or nil if hash was never rotated away.
	FindSuperseded(ctx context.Context, hash string) (*domain.SupersededHash, error)
	// Revoke sets revoked_at on the session if it is not already revoked.
	Revoke(ctx context.Context, id string, reason domain.RevokeReason, at time.Time) error
	// RevokeFamily revokes every live session of the family in one statement and returns how many changed.
	RevokeFamily(ctx context.Context, familyID string, reason domain.RevokeReason, at time.Time) (int64, error)
	RevokeAllByUser(ctx context.Context, userID string, reason domain.RevokeReason, at time.Time) (int64, error)
	// Touch bumps last_activity_at on a live session. It reports false if the session is missing or revoked.
	Touch(ctx context.Context, id string, at time.Time) (bool, error)
	// RevokeIdle revokes live sessions whose last activity is before idleBefore.
	RevokeIdle(ctx context.Context, idleBefore, at time.Time) (int64, error)
	// DeleteExpired removes sessions that expired or were revoked before cutoff, and superseded
	// hashes older than cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
	ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error)
}
