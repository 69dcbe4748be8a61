package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/baechuer/real-time-ressys/services/composite-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/events"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/logger"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrPublishRejected is returned when no publishing capacity is available.
var ErrPublishRejected = domain.NewUnavailable("publisher has no capacity", nil)

type PublisherConfig struct {
	Workers        int
	QueueSize      int
	PartitionCount int
	// Timeout bounds a single broker send. Sends are detached from the
	// caller's cancellation once scheduled.
	Timeout time.Duration
}

// Publisher moves broker I/O onto a dedicated worker pool. Events sharing a
// key are sent by the same worker, in the order they were published.
type Publisher struct {
	broker Broker
	pool   *WorkerPool
	cfg    PublisherConfig
	log    zerolog.Logger
}

func NewPublisher(broker Broker, cfg PublisherConfig) *Publisher {
	if cfg.PartitionCount < 1 {
		cfg.PartitionCount = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Publisher{
		broker: broker,
		pool:   NewWorkerPool(cfg.Workers, cfg.QueueSize),
		cfg:    cfg,
		log:    logger.Component("publisher"),
	}
}

// Publish serializes e and waits until the broker accepted or refused it.
// It fails fast with ErrPublishRejected when the key's worker is saturated.
// Publish does not retry.
func (p *Publisher) Publish(ctx context.Context, binding string, e events.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return domain.NewUnknown("encode event", err)
	}

	key := e.PartitionKey()
	msg := Message{
		Binding:      binding,
		EventType:    string(e.EventType()),
		PartitionKey: key,
		Partition:    PartitionFor(key, p.cfg.PartitionCount),
		MessageID:    uuid.NewString(),
		Body:         body,
	}

	log := logger.Ctx(ctx).With().
		Str("binding", binding).
		Str("event_type", msg.EventType).
		Int("key", key).
		Int("partition", msg.Partition).
		Str("message_id", msg.MessageID).
		Logger()

	done := make(chan error, 1)
	detached := context.WithoutCancel(ctx)
	accepted := p.pool.TrySubmit(key, func() {
		sendCtx, cancel := context.WithTimeout(detached, p.cfg.Timeout)
		defer cancel()

		start := time.Now()
		err := p.broker.Send(sendCtx, msg)
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.RecordPublish(binding, msg.EventType, result, time.Since(start))
		done <- err
	})
	if !accepted {
		metrics.RecordPublish(binding, msg.EventType, "rejected", 0)
		log.Warn().Msg("publish rejected, no capacity")
		return ErrPublishRejected
	}

	select {
	case err := <-done:
		if err != nil {
			log.Error().Err(err).Msg("publish failed")
			return domain.NewUnavailable("publish failed", err)
		}
		log.Debug().Msg("event published")
		return nil
	case <-ctx.Done():
		// the send is still in flight and will not be rolled back
		log.Warn().Err(ctx.Err()).Msg("caller gave up waiting for publish")
		return domain.NewUnavailable("publish outcome unknown", ctx.Err())
	}
}

// Close drains scheduled sends, then closes the broker.
func (p *Publisher) Close() error {
	p.pool.Stop()
	return p.broker.Close()
}
