package crmledger

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// retryConflicts runs op until it succeeds, fails with an error other than
// ErrConcurrencyConflict, or the ledger's attempt budget is spent. op must
// re-read whatever state it guards on.
func retryConflicts[T any](ctx context.Context, l *Ledger, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !errors.Is(err, ErrConcurrencyConflict) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(l.maxConflictRetries),
	)
}
