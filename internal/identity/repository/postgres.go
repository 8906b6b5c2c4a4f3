package repository

import (
	"context"
	"database/sql"
	"errors"

	"sso-hub/internal/db"
	"sso-hub/internal/identity/domain"
	"sso-hub/internal/platform/errs"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an identity repository that uses the given db for persistence.
func NewPostgresRepository(sqlDB *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: sqlDB}
}

// GetByUserAndProvider returns the user's identity for provider, or nil if none.
func (r *PostgresRepository) GetByUserAndProvider(ctx context.Context, userID string, provider domain.IdentityProvider) (*domain.Identity, error) {
	var (
		i    domain.Identity
		prov string
		hash sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, provider, provider_id, password_hash, created_at FROM identities WHERE user_id = $1 AND provider = $2`,
		userID, string(provider)).Scan(&i.ID, &i.UserID, &prov, &i.ProviderID, &hash, &i.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	i.Provider = domain.IdentityProvider(prov)
	i.PasswordHash = hash.String
	return &i, nil
}

// Create persists the identity. The identity must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, i *domain.Identity) error {
	hash := sql.NullString{String: i.PasswordHash, Valid: i.PasswordHash != ""}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO identities (id, user_id, provider, provider_id, password_hash, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		i.ID, i.UserID, string(i.Provider), i.ProviderID, hash, i.CreatedAt)
	return db.ClassifyWrite(err, "identity already exists")
}

func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, id string, passwordHash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE identities SET password_hash = $2 WHERE id = $1`, id, passwordHash)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.New(errs.KindNotFound, "identity not found")
	}
	return nil
}
