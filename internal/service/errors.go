package service

import (
	"context"
	"errors"
	"fmt"

	"fruittrace/internal/payload"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Failure classes surfaced to callers. Every error returned by this package
// wraps exactly one of them.
var (
	ErrValidation       = errors.New("validation failed")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrStorage          = errors.New("storage failure")
	ErrUnauthorized     = errors.New("invalid credentials")
)

// PostgreSQL SQLSTATE codes worth telling apart in logs
const (
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

func validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// storageErr classifies an error coming back from the store. Errors that
// already carry a failure class pass through unchanged.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrValidation, ErrUnauthorized, ErrForbidden, ErrNotFound, ErrConflict, ErrMalformedPayload, ErrStorage} {
		if errors.Is(err, known) {
			return err
		}
	}
	if errors.Is(err, payload.ErrMalformed) {
		return fmt.Errorf("%s: %w: %w", op, ErrMalformedPayload, err)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// StorageCause names the database condition behind a storage failure, for logging.
func StorageCause(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	// TranslateError turns constraint violations into gorm sentinels before they reach us.
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return "foreign_key_violation"
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return "duplicate_key"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable:
			return "lock_timeout"
		case pgSerializationFailure:
			return "serialization_failure"
		case pgDeadlockDetected:
			return "deadlock"
		default:
			return "sqlstate_" + pgErr.Code
		}
	}
	return ""
}
