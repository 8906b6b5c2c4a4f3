package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"sso-hub/internal/platform/errs"
)

const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a Postgres unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// ClassifyWrite turns a unique violation into an errs Conflict. Other errors are returned unchanged
// so the calling layer can decide whether to retry them.
func ClassifyWrite(err error, message string) error {
	if err == nil {
		return nil
	}
	if IsUniqueViolation(err) {
		return errs.Wrap(errs.KindConflict, message, err)
	}
	return err
}
