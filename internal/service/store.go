package service

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/campusops/campus-records-api/pkg/errors"
)

const defaultStoreTimeout = 5 * time.Second

// storeContext bounds a store call so no operation hangs indefinitely on the
// backing database.
func storeContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// storeError maps an unexpected persistence failure to the retryable
// StoreUnavailable class. Callers handle sql.ErrNoRows before reaching here.
func storeError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, message)
}

// uniqueViolation reports whether err is a postgres unique-constraint error.
func uniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
