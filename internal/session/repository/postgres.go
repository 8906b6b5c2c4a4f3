package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"sso-hub/internal/db"
	"sso-hub/internal/session/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(sqlDB *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: sqlDB}
}

const sessionColumns = `id, user_id, family_id, refresh_token_hash, user_agent, ip_address, client_id,
environment, expires_at, revoked_at, revoke_reason, created_at, last_activity_at`

func scanSession(row interface{ Scan(...any) error }) (*domain.Session, error) {
	var (
		s       domain.Session
		revoked sql.NullTime
		reason  string
	)
	err := row.Scan(&s.ID, &s.UserID, &s.FamilyID, &s.RefreshTokenHash, &s.Device.UserAgent, &s.Device.IP,
		&s.Device.ClientID, &s.Environment, &s.ExpiresAt, &revoked, &reason, &s.CreatedAt, &s.LastActivityAt)
	if err != nil {
		return nil, err
	}
	if revoked.Valid {
		t := revoked.Time
		s.RevokedAt = &t
	}
	s.RevokeReason = domain.RevokeReason(reason)
	return &s, nil
}

func nullIfMissing(s *domain.Session, err error) (*domain.Session, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// Create persists the session to the database. The session must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO sessions (`+sessionColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		s.ID, s.UserID, s.FamilyID, s.RefreshTokenHash, s.Device.UserAgent, s.Device.IP, s.Device.ClientID,
		s.Environment, s.ExpiresAt, timeToNullTime(s.RevokedAt), string(s.RevokeReason), s.CreatedAt, s.LastActivityAt)
	return db.ClassifyWrite(err, "session already exists")
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	return nullIfMissing(scanSession(r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)))
}

// GetByRefreshHash returns the session whose current refresh hash is hash, or nil.
func (r *PostgresRepository) GetByRefreshHash(ctx context.Context, hash string) (*domain.Session, error) {
	return nullIfMissing(scanSession(r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE refresh_token_hash = $1`, hash)))
}

const rotateRefreshHash = `UPDATE sessions
SET refresh_token_hash = $3, last_activity_at = $4, expires_at = $5
WHERE id = $1 AND refresh_token_hash = $2 AND revoked_at IS NULL
RETURNING family_id`

const insertSuperseded = `INSERT INTO superseded_refresh_hashes (hash, session_id, family_id, superseded_at)
VALUES ($1, $2, $3, $4)`

// RotateRefreshHash is a compare-and-swap on refresh_token_hash. The superseded index is written in
// the same transaction, so a hash is always either current or recorded as superseded.
func (r *PostgresRepository) RotateRefreshHash(ctx context.Context, sessionID, oldHash, newHash string, now, expiresAt time.Time) (bool, error) {
	swapped := false
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var familyID string
		err := tx.QueryRowContext(ctx, rotateRefreshHash, sessionID, oldHash, newHash, now, expiresAt).Scan(&familyID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, insertSuperseded, oldHash, sessionID, familyID, now); err != nil {
			return err
		}
		swapped = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return swapped, nil
}

// FindSuperseded returns the superseded record for hash, or nil.
func (r *PostgresRepository) FindSuperseded(ctx context.Context, hash string) (*domain.SupersededHash, error) {
	var h domain.SupersededHash
	err := r.db.QueryRowContext(ctx,
		`SELECT hash, session_id, family_id, superseded_at FROM superseded_refresh_hashes WHERE hash = $1`, hash).
		Scan(&h.Hash, &h.SessionID, &h.FamilyID, &h.SupersededAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// Revoke sets revoked_at if the session is not already revoked. Revoking twice keeps the first timestamp.
func (r *PostgresRepository) Revoke(ctx context.Context, id string, reason domain.RevokeReason, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = $2, revoke_reason = $3 WHERE id = $1 AND revoked_at IS NULL`,
		id, at, string(reason))
	return err
}

// RevokeFamily revokes all live sessions sharing familyID with a single multi-row update.
func (r *PostgresRepository) RevokeFamily(ctx context.Context, familyID string, reason domain.RevokeReason, at time.Time) (int64, error) {
	return r.execCount(ctx,
		`UPDATE sessions SET revoked_at = $2, revoke_reason = $3 WHERE family_id = $1 AND revoked_at IS NULL`,
		familyID, at, string(reason))
}

// RevokeAllByUser revokes every live session of userID.
func (r *PostgresRepository) RevokeAllByUser(ctx context.Context, userID string, reason domain.RevokeReason, at time.Time) (int64, error) {
	return r.execCount(ctx,
		`UPDATE sessions SET revoked_at = $2, revoke_reason = $3 WHERE user_id = $1 AND revoked_at IS NULL`,
		userID, at, string(reason))
}

// Touch bumps last_activity_at; it never moves it backwards.
func (r *PostgresRepository) Touch(ctx context.Context, id string, at time.Time) (bool, error) {
	n, err := r.execCount(ctx,
		`UPDATE sessions SET last_activity_at = GREATEST(last_activity_at, $2) WHERE id = $1 AND revoked_at IS NULL`,
		id, at)
	return n > 0, err
}

func (r *PostgresRepository) RevokeIdle(ctx context.Context, idleBefore, at time.Time) (int64, error) {
	return r.execCount(ctx,
		`UPDATE sessions SET revoked_at = $2, revoke_reason = $3
WHERE revoked_at IS NULL AND last_activity_at < $1 AND expires_at > $2`,
		idleBefore, at, string(domain.ReasonIdleTimeout))
}

// DeleteExpired removes long-dead sessions and stale superseded hashes in one transaction.
// Superseded hashes of deleted sessions go with them through the foreign key cascade.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM sessions WHERE expires_at < $1 OR (revoked_at IS NOT NULL AND revoked_at < $1)`, cutoff)
		if err != nil {
			return err
		}
		if deleted, err = res.RowsAffected(); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM superseded_refresh_hashes WHERE superseded_at < $1`, cutoff)
		return err
	})
	return deleted, err
}

// ListActiveByUser returns the user's live sessions, most recently active first.
func (r *PostgresRepository) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions
WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2 ORDER BY last_activity_at DESC`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) execCount(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
