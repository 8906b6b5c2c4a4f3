package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"sso-hub/internal/db"
	"sso-hub/internal/platform/errs"
	"sso-hub/internal/user/domain"
)

type PostgresRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(sqlDB *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: sqlDB, now: time.Now}
}

const userColumns = `u.id, u.email, u.first_name, u.last_name, u.status, u.created_at, u.updated_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var u domain.User
	var status string
	if err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &status, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Status = domain.UserStatus(status)
	return &u, nil
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

const getUserByEmail = `SELECT ` + userColumns + ` FROM users u WHERE lower(u.email) = $1
UNION ALL
SELECT ` + userColumns + ` FROM users u JOIN user_emails e ON e.user_id = u.id WHERE e.email = $1
LIMIT 1`

// GetByEmail returns the user whose primary or attached address is email, or nil if none.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, getUserByEmail, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

const insertUser = `INSERT INTO users (id, email, first_name, last_name, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// Create persists the user to the database. The user must have ID set.
// A duplicate email surfaces as errs Conflict.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, insertUser, u.ID, u.Email, u.FirstName, u.LastName, string(u.Status), u.CreatedAt, u.UpdatedAt)
	return db.ClassifyWrite(err, "email already registered")
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}

// AttachEmail links email to userID inside one transaction so a concurrent claim of the same
// address by another user resolves to exactly one owner.
func (r *PostgresRepository) AttachEmail(ctx context.Context, userID, email string) error {
	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE lower(email) = $1`, email).Scan(&owner)
		switch {
		case err == nil && owner == userID:
			return nil
		case err == nil:
			return errs.New(errs.KindConflict, "email belongs to another account")
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_emails (email, user_id, created_at) VALUES ($1, $2, $3) ON CONFLICT (email) DO NOTHING`,
			email, userID, r.now().UTC()); err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx, `SELECT user_id FROM user_emails WHERE email = $1`, email).Scan(&owner); err != nil {
			return err
		}
		if owner != userID {
			return errs.New(errs.KindConflict, "email belongs to another account")
		}
		return nil
	})
}

func (r *PostgresRepository) SetStatus(ctx context.Context, id string, status domain.UserStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET status = $2, updated_at = $3 WHERE id = $1`, id, string(status), r.now().UTC())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.New(errs.KindNotFound, "user not found")
	}
	return nil
}
