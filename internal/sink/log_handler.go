package sink

import (
	"context"

	"github.com/baechuer/real-time-ressys/services/composite-service/internal/events"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/logger"
)

// LogHandler records every event it receives in the log.
type LogHandler[T events.Keyed] struct {
	Entity string
}

func (h LogHandler[T]) Create(ctx context.Context, payload T) error {
	logger.Ctx(ctx).Info().
		Str("entity", h.Entity).
		Int("key", payload.EventKey()).
		Interface("payload", payload).
		Msg("create event received")
	return nil
}

func (h LogHandler[T]) Delete(ctx context.Context, key int) error {
	logger.Ctx(ctx).Info().
		Str("entity", h.Entity).
		Int("key", key).
		Msg("delete event received")
	return nil
}
