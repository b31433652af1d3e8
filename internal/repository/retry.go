package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"
	"time"

	"odinbook/internal/models"
	"odinbook/internal/observability"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// Retrier bounds how often a transient storage failure is retried before it
// surfaces as TRANSIENT_STORAGE_ERROR.
type Retrier struct {
	MaxRetries int
	Initial    time.Duration
}

// DefaultRetrier is used when a store is built without explicit settings.
var DefaultRetrier = Retrier{MaxRetries: 3, Initial: 20 * time.Millisecond}

// IsTransientDBError reports whether err is a storage failure that may
// succeed when the same operation is run again.
func IsTransientDBError(err error) bool {
	if err == nil {
		return false
	}
	if models.IsTransient(err) || errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03", "57P01":
			return true
		}
		// Class 08: connection exception.
		return strings.HasPrefix(pgErr.Code, "08")
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// isUniqueViolation reports whether err came from a unique index.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// withRetry runs fn until it succeeds, fails permanently or the retry budget
// is spent. Non-transient errors are returned unchanged on the first attempt.
func withRetry[T any](ctx context.Context, r Retrier, op string, fn func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	if r.Initial > 0 {
		b.InitialInterval = r.Initial
	}
	b.MaxInterval = 2 * time.Second

	res, err := backoff.Retry(ctx, func() (T, error) {
		v, err := fn()
		if err != nil && !IsTransientDBError(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(max(r.MaxRetries, 0)+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			observability.StorageRetries.WithLabelValues(op).Inc()
			observability.Logger.WarnContext(ctx, "retrying transient storage error",
				"operation", op,
				"backoff", next,
				"error", err.Error(),
			)
		}),
	)
	if err != nil && IsTransientDBError(err) && !models.IsTransient(err) {
		return res, models.NewTransientError(err)
	}
	return res, err
}

// withRetryErr is withRetry for operations without a result.
func withRetryErr(ctx context.Context, r Retrier, op string, fn func() error) error {
	_, err := withRetry(ctx, r, op, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// internalErr wraps unexpected storage errors, keeping AppErrors as they are.
func internalErr(err error) error {
	if err == nil {
		return nil
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if IsTransientDBError(err) {
		return err
	}
	return models.NewInternalError(err)
}
