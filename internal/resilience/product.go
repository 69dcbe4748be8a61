package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/baechuer/real-time-ressys/services/composite-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/downstream"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/logger"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/metrics"
	"github.com/rs/zerolog"
)

// ProductFetcher is the raw root-entity call being protected.
type ProductFetcher interface {
	GetProduct(ctx context.Context, productID, delay, faultPercent int) (*domain.Product, error)
}

type ProductConfig struct {
	Timeout  time.Duration
	Retry    RetryPolicy
	Breaker  BreakerSettings
	Fallback *Fallback
}

// ProductClient applies timeout, retry, circuit breaker and fallback to a
// ProductFetcher. Each retry attempt passes through the breaker, so an
// opening circuit ends the retry loop with the fallback value.
type ProductClient struct {
	next     ProductFetcher
	timeout  time.Duration
	retry    RetryPolicy
	breaker  *CircuitBreaker
	fallback *Fallback
	log      zerolog.Logger
}

func NewProductClient(next ProductFetcher, cfg ProductConfig) *ProductClient {
	log := logger.Component("resilience").With().Str("capability", downstream.CapabilityProduct).Logger()

	bs := cfg.Breaker
	userHook := bs.OnStateChange
	bs.OnStateChange = func(from, to CircuitState) {
		metrics.SetBreakerState(downstream.CapabilityProduct, int(to))
		log.Warn().
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("circuit_breaker_state_changed")
		if userHook != nil {
			userHook(from, to)
		}
	}

	rp := cfg.Retry
	userRetry := rp.OnRetry
	rp.OnRetry = func(err error, wait time.Duration) {
		metrics.RecordRetryAttempt(downstream.CapabilityProduct)
		log.Debug().Err(err).Dur("wait", wait).Msg("retrying product call")
		if userRetry != nil {
			userRetry(err, wait)
		}
	}

	fb := cfg.Fallback
	if fb == nil {
		fb = NewFallback("", nil)
	}

	metrics.SetBreakerState(downstream.CapabilityProduct, int(StateClosed))

	return &ProductClient{
		next:     next,
		timeout:  cfg.Timeout,
		retry:    rp,
		breaker:  NewCircuitBreaker(bs),
		fallback: fb,
		log:      log,
	}
}

func (c *ProductClient) GetProduct(ctx context.Context, productID, delay, faultPercent int) (*domain.Product, error) {
	p, err := Retry(ctx, c.retry, func(ctx context.Context) (*domain.Product, error) {
		return c.attempt(ctx, productID, delay, faultPercent)
	})
	if err != nil {
		var de *domain.Error
		if !errors.As(err, &de) {
			// caller cancellation surfaced by the retry loop
			err = domain.NewUnavailable("product call aborted", err)
		}
		return nil, err
	}
	return p, nil
}

func (c *ProductClient) attempt(ctx context.Context, productID, delay, faultPercent int) (*domain.Product, error) {
	var p *domain.Product
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		callCtx, cancel := c.withTimeout(ctx)
		defer cancel()

		var err error
		p, err = c.next.GetProduct(callCtx, productID, delay, faultPercent)
		if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = domain.NewUnavailable("product call timed out", downstream.ErrTimeout)
		}
		return err
	})

	switch {
	case errors.Is(err, ErrCircuitOpen):
		metrics.RecordBreakerCall(downstream.CapabilityProduct, "short_circuited")
		return c.runFallback(ctx, productID, delay, faultPercent)
	case err != nil:
		metrics.RecordBreakerCall(downstream.CapabilityProduct, string(domain.KindOf(err)))
		return nil, err
	default:
		metrics.RecordBreakerCall(downstream.CapabilityProduct, "success")
		return p, nil
	}
}

func (c *ProductClient) runFallback(ctx context.Context, productID, delay, faultPercent int) (*domain.Product, error) {
	p, err := c.fallback.Product(productID, delay, faultPercent)
	if err != nil {
		metrics.RecordFallback(downstream.CapabilityProduct, "not_found")
		logger.Ctx(ctx).Info().Int("product_id", productID).Msg("fallback reports product not found")
		return nil, err
	}
	metrics.RecordFallback(downstream.CapabilityProduct, "synthesized")
	logger.Ctx(ctx).Warn().Int("product_id", productID).Msg("circuit open, serving fallback product")
	return p, nil
}

func (c *ProductClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}
