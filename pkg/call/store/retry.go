package store

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	transientRetryDelay = 100 * time.Millisecond
	transientRetryMax   = 3
)

// retryTransient re-runs op while matches reports a transient backend
// failure (deadlock, lost connection, write conflict), up to
// transientRetryMax retries with a constant delay. Any other error aborts
// immediately and is returned unchanged.
func retryTransient(ctx context.Context, op func() error, matches func(error) bool) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(transientRetryDelay), transientRetryMax),
		ctx,
	)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if matches(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}
