package repository

import (
	"context"
	"time"

	"sso-hub/internal/invitation/domain"
	roledomain "sso-hub/internal/role/domain"
)

// Repository defines persistence for invitations. Redemption counters change only through
// ConsumeUse and ReleaseUse.
type Repository interface {
	// Create stores inv. When inv targets an email and a pending invitation already exists for the
	// same (email, scope), force cancels the old one in the same transaction; without force Create
	// fails with Conflict.
	Create(ctx context.Context, inv *domain.Invitation, force bool) error
	// GetByID returns the invitation, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Invitation, error)
	// GetByCodeHash returns the invitation, or nil if not found.
	GetByCodeHash(ctx context.Context, codeHash string) (*domain.Invitation, error)
	// ConsumeUse increments used_count when the invitation is pending, unexpired at now and below
	// its limit, flipping status to exhausted when the limit is reached. It returns the updated
	// invitation, or nil when the guard did not hold.
	ConsumeUse(ctx context.Context, codeHash string, now time.Time) (*domain.Invitation, error)
	// ReleaseUse gives back one consumed use. An exhausted invitation returns to pending.
	ReleaseUse(ctx context.Context, id string) error
	// Cancel moves a pending invitation to cancelled. It reports false if it was not pending.
	Cancel(ctx context.Context, id string, at time.Time) (bool, error)
	// ListPendingByScope returns pending, unexpired invitations in scope, newest first.
	ListPendingByScope(ctx context.Context, scope roledomain.Scope, now time.Time) ([]*domain.Invitation, error)
}
