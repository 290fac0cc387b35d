package knowledge

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryConfig bounds retries of embedder and store calls.
type RetryConfig struct {
	Attempts uint64        // Retries after the first try; 0 disables retrying
	Base     time.Duration // Initial backoff
	Max      time.Duration // Cap on a single backoff interval
}

// DefaultRetryConfig returns the retry policy used when none is configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{Attempts: 2, Base: 200 * time.Millisecond, Max: 2 * time.Second}
}

func (c RetryConfig) backoff() retry.Backoff {
	base := c.Base
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	b := retry.NewExponential(base)
	if c.Max > 0 {
		b = retry.WithCappedDuration(c.Max, b)
	}

	return retry.WithMaxRetries(c.Attempts, b)
}

// do runs fn under the retry policy. Context errors are never retried.
func (c RetryConfig) do(ctx context.Context, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return retry.RetryableError(err)
	})
}
