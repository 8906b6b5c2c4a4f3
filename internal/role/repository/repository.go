package repository

import (
	"context"

	"sso-hub/internal/role/domain"
)

// Repository defines persistence for role assignments.
// At most one row exists per (user, role, scope kind, scope entity id).
type Repository interface {
	// Grant inserts the assignment. It reports false, with no error, when the tuple already exists.
	Grant(ctx context.Context, a domain.RoleAssignment) (bool, error)
	// Revoke removes the assignment. It reports false when there was nothing to remove.
	Revoke(ctx context.Context, a domain.RoleAssignment) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]domain.RoleAssignment, error)
	// MigrateScope moves the user's role from one scope to another. If the target tuple already
	// exists the source row is simply removed. Returns errs NotFound when the source row is absent.
	MigrateScope(ctx context.Context, userID string, role domain.RoleType, from, to domain.Scope) error
}
