package resilience

import (
	"context"
	"time"

	"github.com/baechuer/real-time-ressys/services/composite-service/internal/domain"
	"github.com/cenkalti/backoff/v5"
)

const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

type RetryPolicy struct {
	MaxAttempts int
	Wait        time.Duration
	// Backoff is BackoffFixed or BackoffExponential.
	Backoff string
	// OnRetry is called before each wait with the failed attempt's error.
	OnRetry func(err error, wait time.Duration)
}

func (p RetryPolicy) backOff() backoff.BackOff {
	if p.Backoff == BackoffExponential {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = p.Wait
		b.MaxInterval = 10 * p.Wait
		return b
	}
	return backoff.NewConstantBackOff(p.Wait)
}

// Retry runs op until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. The last error is returned unchanged.
func Retry[T any](ctx context.Context, p RetryPolicy, op func(context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(attempts)),
	}
	if p.OnRetry != nil {
		opts = append(opts, backoff.WithNotify(p.OnRetry))
	}

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op(ctx)
		if err != nil && !domain.IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, opts...)
}
