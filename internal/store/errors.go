package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// The store surfaces exactly these error kinds. A duplicate observation is
// not an error: RecordObservation reports it through isNew=false.
var (
	// ErrConstraintViolation means a referential or call-ordering invariant
	// was broken (e.g. recording a snapshot before its listing exists).
	// This is a caller bug and must not be retried as-is.
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrStorageUnavailable is a transient persistence failure. Every write
	// is idempotent, so callers retry with the same inputs.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrFatalMigrationState means the cutover failed partway. Manual
	// operator recovery is required; never retried automatically.
	ErrFatalMigrationState = errors.New("fatal migration state")

	// ErrNotFound is returned by read operations for unknown listings.
	ErrNotFound = errors.New("listing not found")
)

// Postgres error classes relevant to classification.
const (
	pgForeignKeyViolation = "23503"
	pgNotNullViolation    = "23502"
	pgCheckViolation      = "23514"
)

// classify maps a pgx error onto the store taxonomy, preserving the cause
// in the message. Integrity errors are caller bugs; everything else is
// treated as transient storage failure.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyViolation, pgNotNullViolation, pgCheckViolation:
			return fmt.Errorf("%s: %w: %s", op, ErrConstraintViolation, pgErr.Message)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrStorageUnavailable, err)
}
