package db

import (
	"context"
	"database/sql"
)

// WithTx runs fn inside a transaction. The transaction is committed when fn returns nil and
// rolled back otherwise; fn's error is returned as-is.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
