package sink

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/baechuer/real-time-ressys/services/composite-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/events"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/idempotency"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/logger"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/messaging/rabbitmq"
)

// Handlers groups the per-entity event handlers.
type Handlers struct {
	Products        events.Handler[domain.Product]
	Recommendations events.Handler[domain.Recommendation]
	Reviews         events.Handler[domain.Review]
}

// Processor turns deliveries into typed handler calls, skipping
// redeliveries already handled when a Store is configured.
type Processor struct {
	store    *idempotency.Store
	handlers Handlers
	log      zerolog.Logger
}

// NewProcessor builds a Processor. store may be nil, in which case
// deliveries are not deduplicated.
func NewProcessor(store *idempotency.Store, h Handlers) *Processor {
	return &Processor{
		store:    store,
		handlers: h,
		log:      logger.Component("event_sink"),
	}
}

// Handle is a rabbitmq.HandlerFunc.
func (p *Processor) Handle(ctx context.Context, d rabbitmq.Delivery) error {
	log := p.log.With().
		Str("binding", d.Binding).
		Int("partition", d.Partition).
		Str("message_id", d.MessageID).
		Logger()

	dedupe := p.store != nil && d.MessageID != ""
	if dedupe {
		dup, err := p.store.CheckAndMark(ctx, d.MessageID)
		if err != nil {
			return domain.NewUnavailable("idempotency check failed", err)
		}
		if dup {
			log.Info().Msg("duplicate delivery skipped")
			return nil
		}
	}

	err := p.dispatch(ctx, d)
	if err != nil && dedupe && !errors.Is(err, domain.ErrEventProcessing) {
		// release the mark so the requeued copy is processed
		if uerr := p.store.Unmark(context.WithoutCancel(ctx), d.MessageID); uerr != nil {
			log.Error().Err(uerr).Msg("failed to release idempotency key")
		}
	}
	return err
}

func (p *Processor) dispatch(ctx context.Context, d rabbitmq.Delivery) error {
	switch d.Binding {
	case events.BindingProducts:
		return decodeAndDispatch(ctx, d.Body, p.handlers.Products)
	case events.BindingRecommendations:
		return decodeAndDispatch(ctx, d.Body, p.handlers.Recommendations)
	case events.BindingReviews:
		return decodeAndDispatch(ctx, d.Body, p.handlers.Reviews)
	default:
		return domain.NewEventProcessing("unknown binding: %s", d.Binding)
	}
}

func decodeAndDispatch[T any](ctx context.Context, body []byte, h events.Handler[T]) error {
	e, err := events.Decode[T](body)
	if err != nil {
		return err
	}
	return events.Dispatch(ctx, e, h)
}
