package repository

import (
	"context"

	"sso-hub/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	ListByScope(ctx context.Context, scopeID string, limit, offset int32) ([]*domain.AuditLog, error)
}
