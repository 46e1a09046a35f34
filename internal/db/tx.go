package db

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// TxFunc runs statements inside an open transaction.
type TxFunc func(ctx context.Context, tx pgx.Tx) error

// WithTx runs fn in a transaction bounded by timeout (0 = no limit).
// The transaction is committed when fn returns nil and rolled back otherwise.
func WithTx(ctx context.Context, pool Pool, timeout time.Duration, fn TxFunc) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "db: begin tx")
	}

	if err := fn(ctx, tx); err != nil {
		// The tx context may already be expired; rollback must still reach the server.
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			zap.L().Warn("db: rollback failed", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "db: commit tx")
	}
	return nil
}

const uniqueViolation = "23505"

var keyDetail = regexp.MustCompile(`^Key \((.+?)\)=\((.*?)\) already exists`)

// UniqueViolationKey reports the conflicting key of a unique-constraint
// violation as "col=value". It returns "" for any other error.
func UniqueViolationKey(err error) string {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return ""
	}
	if m := keyDetail.FindStringSubmatch(pgErr.Detail); m != nil {
		return m[1] + "=" + m[2]
	}
	return pgErr.ConstraintName
}
