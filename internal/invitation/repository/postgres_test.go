package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sso-hub/internal/invitation/domain"
	"sso-hub/internal/platform/errs"
	roledomain "sso-hub/internal/role/domain"
)

var invCols = []string{"id", "code_hash", "target_email", "role", "scope_kind", "scope_entity_id", "max_uses", "used_count",
	"status", "created_by", "expires_at", "created_at", "cancelled_at"}

func newMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return NewPostgresRepository(sqlDB), mock
}

func targeted(email string, now time.Time) *domain.Invitation {
	return &domain.Invitation{
		ID: "i1", CodeHash: "c1", TargetEmail: &email, Role: roledomain.RoleClientHR,
		Scope: roledomain.Organization("o1"), MaxUses: 1, Status: domain.StatusPending,
		CreatedBy: "admin", CreatedAt: now,
	}
}

func TestPostgresRepository_Create_Force(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE invitations SET status = 'cancelled'").
		WithArgs("a@x.com", "organization", "o1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO invitations").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), targeted("a@x.com", now), true))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Create_DuplicatePendingIsConflict(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE invitations SET status = 'expired'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO invitations").WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), targeted("a@x.com", now), false)
	assert.True(t, errors.Is(err, errs.ErrConflict), "err = %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Create_ShareableSkipsTargetCheck(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	inv := targeted("x", now)
	inv.TargetEmail = nil
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO invitations").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), inv, false))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ConsumeUse(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	mock.ExpectQuery("UPDATE invitations\\s+SET used_count = used_count \\+ 1").
		WithArgs("c1", now).
		WillReturnRows(sqlmock.NewRows(invCols).
			AddRow("i1", "c1", nil, "client_employee", "organization", "o1", 3, 1, "pending", "admin", nil, now, nil))
	mock.ExpectQuery("UPDATE invitations\\s+SET used_count = used_count \\+ 1").
		WithArgs("c2", now).
		WillReturnRows(sqlmock.NewRows(invCols))

	inv, err := repo.ConsumeUse(context.Background(), "c1", now)
	require.NoError(t, err)
	require.NotNil(t, inv)
	assert.Equal(t, 1, inv.UsedCount)
	assert.True(t, inv.Shareable())
	assert.Equal(t, roledomain.Organization("o1"), inv.Scope)

	inv, err = repo.ConsumeUse(context.Background(), "c2", now)
	require.NoError(t, err)
	assert.Nil(t, inv, "failed guard returns nil")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_CancelAndRelease(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	mock.ExpectExec("UPDATE invitations SET status = 'cancelled', cancelled_at = \\$2 WHERE id = \\$1 AND status = 'pending'").
		WithArgs("i1", now).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE invitations\\s+SET used_count = used_count - 1").
		WithArgs("i1").WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.Cancel(context.Background(), "i1", now)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, repo.ReleaseUse(context.Background(), "i1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetByCodeHash_Missing(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("FROM invitations WHERE code_hash = \\$1").WithArgs("nope").WillReturnRows(sqlmock.NewRows(invCols))
	inv, err := repo.GetByCodeHash(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, inv)
}
