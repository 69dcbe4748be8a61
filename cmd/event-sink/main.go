// Command event-sink consumes the composite service's events from every
// partition queue of its group and logs them.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"

	"github.com/baechuer/real-time-ressys/services/composite-service/internal/config"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/events"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/idempotency"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/logger"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/messaging/rabbitmq"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/sink"
)

func main() {
	logger.Init("event-sink")

	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.RabbitURL == "" {
		zlog.Fatal().Msg("missing RABBIT_URL")
	}

	var store *idempotency.Store
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			zlog.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()
		store = idempotency.NewStore(rdb, cfg.RabbitGroup, 0)
	} else {
		zlog.Warn().Msg("REDIS_URL not set, redeliveries are not deduplicated")
	}

	processor := sink.NewProcessor(store, sink.Handlers{
		Products:        sink.LogHandler[domain.Product]{Entity: "product"},
		Recommendations: sink.LogHandler[domain.Recommendation]{Entity: "recommendation"},
		Reviews:         sink.LogHandler[domain.Review]{Entity: "review"},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bindings := []string{events.BindingProducts, events.BindingRecommendations, events.BindingReviews}
	for _, binding := range bindings {
		for p := 0; p < cfg.Publisher.PartitionCount; p++ {
			c := rabbitmq.NewConsumer(rabbitmq.ConsumerOptions{
				URL:       cfg.RabbitURL,
				Binding:   binding,
				Group:     cfg.RabbitGroup,
				Partition: p,
			}, processor.Handle)
			if err := c.Start(ctx); err != nil {
				zlog.Fatal().Err(err).Str("binding", binding).Int("partition", p).Msg("failed to start consumer")
			}
		}
	}

	zlog.Info().
		Str("group", cfg.RabbitGroup).
		Int("partitions", cfg.Publisher.PartitionCount).
		Msg("event sink running")

	<-ctx.Done()
	zlog.Info().Msg("event sink stopped")
}
