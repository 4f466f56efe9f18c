package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// errRecordVanished means an update matched no row inside the transaction that locked it.
var errRecordVanished = errors.New("consent record not found for update")

func withinTx(ctx context.Context, conn *sql.DB, wrap func(*sql.Tx) Tx, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, wrap(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return errRecordVanished
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
