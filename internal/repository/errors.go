package repository

import (
	"context"
	"database/sql/driver"
	"errors"

	"github.com/ZaidMomin2003/talxify/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE codes the store treats specially.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgTooManyConnections   = "53300"
	pgAdminShutdown        = "57P01"
	pgForeignKeyViolation  = "23503"
)

// IsTransient reports whether a database error is safe to retry: the
// transaction was aborted by contention or the connection dropped before the
// statement could have taken effect.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable,
			pgTooManyConnections, pgAdminShutdown:
			return true
		}
		return false
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}

// classify converts a database error into a domain error for op.
func classify(err error, op, message string) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if IsTransient(err) {
		return domain.Unavailable(err, op, message)
	}
	return domain.Internal(err, op, message)
}
