package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sso-hub/internal/platform/errs"
)

func TestClassifyWrite(t *testing.T) {
	dup := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", Message: "duplicate key"})
	other := &pgconn.PgError{Code: "40001"}

	assert.Nil(t, ClassifyWrite(nil, "x"))
	assert.True(t, IsUniqueViolation(dup))
	assert.True(t, errors.Is(ClassifyWrite(dup, "invitation exists"), errs.ErrConflict))
	assert.Equal(t, error(other), ClassifyWrite(other, "x"))
	assert.False(t, IsUniqueViolation(errors.New("plain")))
}

func TestWithTx_CommitAndRollback(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE sessions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	err = WithTx(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), "UPDATE sessions SET revoked_at = now()")
		return err
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()
	err = WithTx(context.Background(), db, func(tx *sql.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}
