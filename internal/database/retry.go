package database

import (
	"context"
	"errors"
	"strings"

	"agromind/internal/constants"
	"agromind/internal/models"
	"agromind/internal/retry"
)

func dbBackoff() *retry.Backoff {
	return retry.NewBackoff(retry.FromSettings(models.RetryConfig{
		InitialBackoffMs: constants.DefaultRetryBackoffMs,
		MaxBackoffMs:     constants.DefaultMaxBackoffMs,
		MaxAttempts:      constants.DefaultDatabaseRetryAttempts,
	}))
}

// retryableDBOperationNoReturn executes a database operation that returns only an error with retry logic
func retryableDBOperationNoReturn(ctx context.Context, operation func() error) error {
	return dbBackoff().RetryWithPredicate(ctx, operation, isRetryableDBError)
}

// retryableDBOperation is retryableDBOperationNoReturn for operations producing a value
func retryableDBOperation[T any](ctx context.Context, operation func() (T, error)) (T, error) {
	var result T
	err := retryableDBOperationNoReturn(ctx, func() error {
		var opErr error
		result, opErr = operation()
		return opErr
	})
	return result, err
}

// isRetryableDBError determines if a database error is worth retrying
func isRetryableDBError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	errStr := err.Error()

	if strings.Contains(errStr, "database is locked") || strings.Contains(errStr, "database table is locked") {
		return true
	}

	if strings.Contains(errStr, "disk I/O error") {
		return true
	}

	return false
}
