package repository

import (
	"context"

	"sso-hub/internal/user/domain"
)

// Repository defines persistence for users and their attached email addresses.
// Emails passed in are already normalized.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// GetByEmail resolves a primary or attached address. Returns nil, nil when no user owns it.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	Delete(ctx context.Context, id string) error
	// AttachEmail links an additional address to userID. Attaching an address the user already owns
	// is a no-op; an address owned by someone else is an errs Conflict.
	AttachEmail(ctx context.Context, userID, email string) error
	SetStatus(ctx context.Context, id string, status domain.UserStatus) error
}
