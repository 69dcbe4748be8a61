package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"

	"github.com/baechuer/real-time-ressys/services/composite-service/internal/api"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/api/handlers"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/composite"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/config"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/downstream"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/events"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/logger"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/messaging"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/messaging/rabbitmq"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/resilience"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/tracing"
)

const serviceName = "composite-service"

// pinger is implemented by both broker adapters.
type pinger interface {
	messaging.Broker
	Ping(ctx context.Context) error
}

func main() {
	// 1. Logger and config
	logger.Init(serviceName)

	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load config")
	}

	// 2. Tracing
	tp, err := tracing.InitTracing(context.Background(), tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: cfg.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
	})
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to init tracing")
	}

	// 3. Downstream clients
	hc := downstream.NewClient(downstream.ClientConfig{
		ReadTimeout:  cfg.DownstreamReadTimeout,
		WriteTimeout: cfg.DownstreamWriteTimeout,
	})
	productClient := resilience.NewProductClient(
		downstream.NewProductClient(cfg.ProductServiceURL, hc),
		productConfig(cfg),
	)
	recClient := downstream.NewRecommendationClient(cfg.RecommendationServiceURL, hc)
	revClient := downstream.NewReviewClient(cfg.ReviewServiceURL, hc)

	// 4. Broker and publisher
	broker, err := newBroker(cfg)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to connect broker")
	}
	publisher := messaging.NewPublisher(broker, messaging.PublisherConfig{
		Workers:        cfg.Publisher.Workers,
		QueueSize:      cfg.Publisher.QueueSize,
		PartitionCount: cfg.Publisher.PartitionCount,
		Timeout:        cfg.Publisher.Timeout,
	})

	// 5. Optional Redis for the shared rate limiter
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			zlog.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb = redis.NewClient(opt)
	}

	// 6. Service and router
	svc := composite.NewService(productClient, recClient, revClient, publisher, cfg.ServiceAddress)

	checkers := []handlers.ReadinessChecker{
		downstream.NewHealthChecker(downstream.CapabilityProduct, cfg.ProductServiceURL, hc),
		downstream.NewHealthChecker(downstream.CapabilityRecommendation, cfg.RecommendationServiceURL, hc),
		downstream.NewHealthChecker(downstream.CapabilityReview, cfg.ReviewServiceURL, hc),
		handlers.CheckerFunc{CheckName: "broker", Fn: broker.Ping},
	}
	if rdb != nil {
		checkers = append(checkers, handlers.CheckerFunc{
			CheckName: "redis",
			Fn:        func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}

	router := api.NewRouter(api.Deps{
		Config:    cfg,
		Service:   svc,
		Checkers:  checkers,
		Redis:     rdb,
		ServiceID: serviceName,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zlog.Info().
			Str("port", cfg.Port).
			Str("service_address", cfg.ServiceAddress).
			Msg("composite service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal().Err(err).Msg("server failed")
		}
	}()

	// 7. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zlog.Error().Err(err).Msg("http shutdown error")
	}
	// in-flight publishes drain before the broker closes
	if err := publisher.Close(); err != nil {
		zlog.Error().Err(err).Msg("publisher close error")
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if err := tp.Shutdown(ctx); err != nil {
		zlog.Error().Err(err).Msg("tracer shutdown error")
	}
}

func newBroker(cfg *config.Config) (pinger, error) {
	if cfg.RabbitURL == "" {
		zlog.Warn().Msg("RABBIT_URL not set, events stay in process")
		return messaging.NewMemoryBroker(), nil
	}
	b, err := rabbitmq.Dial(rabbitmq.Options{
		URL:            cfg.RabbitURL,
		Bindings:       []string{events.BindingProducts, events.BindingRecommendations, events.BindingReviews},
		PartitionCount: cfg.Publisher.PartitionCount,
		Group:          cfg.RabbitGroup,
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func productConfig(cfg *config.Config) resilience.ProductConfig {
	r := cfg.Resilience
	return resilience.ProductConfig{
		Timeout: r.Timeout,
		Retry: resilience.RetryPolicy{
			MaxAttempts: r.MaxAttempts,
			Wait:        r.RetryWait,
			Backoff:     r.RetryBackoff,
		},
		Breaker: resilience.BreakerSettings{
			WindowSize:    r.WindowSize,
			MinCalls:      r.MinCalls,
			FailureRate:   r.FailureRate,
			OpenDuration:  r.OpenDuration,
			HalfOpenCalls: r.HalfOpenCalls,
		},
		Fallback: resilience.NewFallback(cfg.ServiceAddress, r.FallbackNotFound),
	}
}
