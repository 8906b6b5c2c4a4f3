package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"sso-hub/internal/db"
	"sso-hub/internal/invitation/domain"
	roledomain "sso-hub/internal/role/domain"
)

// PostgresRepository implements Repository using database/sql over the pgx driver.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an invitation repository that uses the given db for persistence.
func NewPostgresRepository(sqlDB *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: sqlDB}
}

const invitationCols = `id, code_hash, target_email, role, scope_kind, scope_entity_id, max_uses, used_count,
status, created_by, expires_at, created_at, cancelled_at`

const cancelPendingForTarget = `UPDATE invitations SET status = 'cancelled', cancelled_at = $4
WHERE target_email = $1 AND scope_kind = $2 AND scope_entity_id = $3 AND status = 'pending'`

const expireStaleForTarget = `UPDATE invitations SET status = 'expired'
WHERE target_email = $1 AND scope_kind = $2 AND scope_entity_id = $3 AND status = 'pending'
AND expires_at IS NOT NULL AND expires_at <= $4`

const insertInvitation = `INSERT INTO invitations (` + invitationCols + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

// Create inserts inv. The partial unique index on pending (target_email, scope) turns a concurrent
// duplicate into Conflict.
func (r *PostgresRepository) Create(ctx context.Context, inv *domain.Invitation, force bool) error {
	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if inv.TargetEmail != nil {
			stmt := expireStaleForTarget
			if force {
				stmt = cancelPendingForTarget
			}
			if _, err := tx.ExecContext(ctx, stmt, *inv.TargetEmail, string(inv.Scope.Kind), inv.Scope.EntityID, inv.CreatedAt); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, insertInvitation,
			inv.ID, inv.CodeHash, stringToNull(inv.TargetEmail), string(inv.Role), string(inv.Scope.Kind), inv.Scope.EntityID,
			inv.MaxUses, inv.UsedCount, string(inv.Status), inv.CreatedBy, timeToNull(inv.ExpiresAt), inv.CreatedAt, timeToNull(inv.CancelledAt))
		return db.ClassifyWrite(err, "a pending invitation already exists for this target")
	})
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Invitation, error) {
	return nullIfMissing(scanInvitation(r.db.QueryRowContext(ctx, `SELECT `+invitationCols+` FROM invitations WHERE id = $1`, id)))
}

func (r *PostgresRepository) GetByCodeHash(ctx context.Context, codeHash string) (*domain.Invitation, error) {
	return nullIfMissing(scanInvitation(r.db.QueryRowContext(ctx, `SELECT `+invitationCols+` FROM invitations WHERE code_hash = $1`, codeHash)))
}

const consumeUse = `UPDATE invitations
SET used_count = used_count + 1,
    status = CASE WHEN max_uses <> -1 AND used_count + 1 >= max_uses THEN 'exhausted' ELSE status END
WHERE code_hash = $1 AND status = 'pending'
  AND (expires_at IS NULL OR expires_at > $2)
  AND (max_uses = -1 OR used_count < max_uses)
RETURNING ` + invitationCols

// ConsumeUse is the compare-and-increment: the guard and the increment are one statement.
func (r *PostgresRepository) ConsumeUse(ctx context.Context, codeHash string, now time.Time) (*domain.Invitation, error) {
	return nullIfMissing(scanInvitation(r.db.QueryRowContext(ctx, consumeUse, codeHash, now)))
}

const releaseUse = `UPDATE invitations
SET used_count = used_count - 1,
    status = CASE WHEN status = 'exhausted' THEN 'pending' ELSE status END
WHERE id = $1 AND used_count > 0`

func (r *PostgresRepository) ReleaseUse(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, releaseUse, id)
	return err
}

const cancelInvitation = `UPDATE invitations SET status = 'cancelled', cancelled_at = $2 WHERE id = $1 AND status = 'pending'`

func (r *PostgresRepository) Cancel(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, cancelInvitation, id, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

const listPendingByScope = `SELECT ` + invitationCols + ` FROM invitations
WHERE scope_kind = $1 AND scope_entity_id = $2 AND status = 'pending'
  AND (expires_at IS NULL OR expires_at > $3)
ORDER BY created_at DESC`

func (r *PostgresRepository) ListPendingByScope(ctx context.Context, scope roledomain.Scope, now time.Time) ([]*domain.Invitation, error) {
	rows, err := r.db.QueryContext(ctx, listPendingByScope, string(scope.Kind), scope.EntityID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvitation(row rowScanner) (*domain.Invitation, error) {
	var (
		inv                    domain.Invitation
		target                 sql.NullString
		role, kind, entity     string
		status                 string
		expiresAt, cancelledAt sql.NullTime
	)
	err := row.Scan(&inv.ID, &inv.CodeHash, &target, &role, &kind, &entity, &inv.MaxUses, &inv.UsedCount,
		&status, &inv.CreatedBy, &expiresAt, &inv.CreatedAt, &cancelledAt)
	if err != nil {
		return nil, err
	}
	if target.Valid {
		inv.TargetEmail = &target.String
	}
	inv.Role = roledomain.RoleType(role)
	inv.Scope = roledomain.Scope{Kind: roledomain.ScopeKind(kind), EntityID: entity}
	inv.Status = domain.Status(status)
	if expiresAt.Valid {
		t := expiresAt.Time
		inv.ExpiresAt = &t
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time
		inv.CancelledAt = &t
	}
	return &inv, nil
}

func nullIfMissing(inv *domain.Invitation, err error) (*domain.Invitation, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return inv, err
}

func stringToNull(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func timeToNull(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

