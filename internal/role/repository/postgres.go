package repository

import (
	"context"
	"database/sql"
	"time"

	"sso-hub/internal/db"
	"sso-hub/internal/platform/errs"
	"sso-hub/internal/role/domain"
)

type PostgresRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresRepository returns a role assignment repository that uses the given db for persistence.
func NewPostgresRepository(sqlDB *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: sqlDB, now: time.Now}
}

const grantRole = `INSERT INTO role_assignments (user_id, role, scope_kind, scope_entity_id, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, role, scope_kind, scope_entity_id) DO NOTHING`

// Grant inserts the assignment idempotently; the primary key collapses concurrent duplicate grants.
func (r *PostgresRepository) Grant(ctx context.Context, a domain.RoleAssignment) (bool, error) {
	if err := a.Scope.Validate(); err != nil {
		return false, errs.Wrap(errs.KindValidationFailed, "invalid scope", err)
	}
	res, err := r.db.ExecContext(ctx, grantRole, a.UserID, string(a.Role), string(a.Scope.Kind), a.Scope.EntityID, r.now().UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

const revokeRole = `DELETE FROM role_assignments
WHERE user_id = $1 AND role = $2 AND scope_kind = $3 AND scope_entity_id = $4`

func (r *PostgresRepository) Revoke(ctx context.Context, a domain.RoleAssignment) (bool, error) {
	res, err := r.db.ExecContext(ctx, revokeRole, a.UserID, string(a.Role), string(a.Scope.Kind), a.Scope.EntityID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const listRolesByUser = `SELECT role, scope_kind, scope_entity_id FROM role_assignments
WHERE user_id = $1 ORDER BY created_at, role`

// ListByUser returns all assignments for userID. Rows with unknown roles or scopes are skipped.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]domain.RoleAssignment, error) {
	rows, err := r.db.QueryContext(ctx, listRolesByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.RoleAssignment
	for rows.Next() {
		var role, kind, entity string
		if err := rows.Scan(&role, &kind, &entity); err != nil {
			return nil, err
		}
		rt, err := domain.ParseRoleType(role)
		if err != nil {
			continue
		}
		scope, err := domain.ParseScope(kind, entity)
		if err != nil {
			continue
		}
		out = append(out, domain.RoleAssignment{UserID: userID, Role: rt, Scope: scope})
	}
	return out, rows.Err()
}

// MigrateScope inserts the target tuple (if absent) and deletes the source in one transaction.
func (r *PostgresRepository) MigrateScope(ctx context.Context, userID string, role domain.RoleType, from, to domain.Scope) error {
	if err := to.Validate(); err != nil {
		return errs.Wrap(errs.KindValidationFailed, "invalid target scope", err)
	}
	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, revokeRole, userID, string(role), string(from.Kind), from.EntityID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return errs.New(errs.KindNotFound, "role assignment not found")
		}
		_, err = tx.ExecContext(ctx, grantRole, userID, string(role), string(to.Kind), to.EntityID, r.now().UTC())
		return err
	})
}
