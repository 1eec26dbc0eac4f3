package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ShivamGupta-SM/summa-sub004/errs"
)

// PostgreSQL error codes the engine branches on.
const (
	pgUniqueViolation      = "23505"
	pgLockNotAvailable     = "55P03"
	pgQueryCanceled        = "57014"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// MapError translates driver errors into the engine's tagged codes.
// Already-tagged errors pass through unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var tagged *errs.Error
	if errors.As(err, &tagged) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.CodeNotFound, "row not found", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.CodeLockTimeout, "operation deadline elapsed", err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return errs.Wrap(errs.CodeConflict, "unique constraint violated", err)
		case pgLockNotAvailable, pgQueryCanceled:
			return errs.Wrap(errs.CodeLockTimeout, "lock wait or statement timeout elapsed", err)
		case pgSerializationFailure, pgDeadlockDetected:
			return errs.Wrap(errs.CodeConcurrencyConflict, "transaction serialization conflict", err)
		}
	}
	return errs.Internal(err)
}

// IsLockNotAvailable reports whether err is the NOWAIT fast-fail. The
// engine's retry loop keys off it: unlike a timeout expiry, a held row
// lock is usually gone by the next attempt. It sees through MapError's
// wrapping.
func IsLockNotAvailable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable
}

// IsUniqueViolation reports whether err is a unique-index conflict.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
