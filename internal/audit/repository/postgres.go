package repository

import (
	"context"
	"database/sql"

	"sso-hub/internal/audit/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const insertAuditLog = `INSERT INTO audit_logs (id, scope_id, user_id, action, resource, ip, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// Create persists the audit log to the database. The audit log must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	uid := sql.NullString{String: a.UserID, Valid: a.UserID != ""}
	meta := sql.NullString{String: a.Metadata, Valid: a.Metadata != ""}
	_, err := r.db.ExecContext(ctx, insertAuditLog,
		a.ID, a.ScopeID, uid, a.Action, a.Resource, a.IP, meta, a.CreatedAt)
	return err
}

const listAuditLogsByScope = `SELECT id, scope_id, user_id, action, resource, ip, metadata, created_at
FROM audit_logs WHERE scope_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

// ListByScope returns audit logs for the given scope, newest first, paginated by limit and offset.
func (r *PostgresRepository) ListByScope(ctx context.Context, scopeID string, limit, offset int32) ([]*domain.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx, listAuditLogsByScope, scopeID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.AuditLog
	for rows.Next() {
		var (
			a    domain.AuditLog
			uid  sql.NullString
			meta sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.ScopeID, &uid, &a.Action, &a.Resource, &a.IP, &meta, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.UserID = uid.String
		a.Metadata = meta.String
		out = append(out, &a)
	}
	return out, rows.Err()
}
