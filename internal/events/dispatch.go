package events

import "context"

// Handler is implemented by consumers of one entity type. Every event type
// has a method here, so adding a type breaks every consumer at compile time.
type Handler[T any] interface {
	Create(ctx context.Context, payload T) error
	Delete(ctx context.Context, key int) error
}

// Dispatch validates e and routes it to h. Invalid or unknown events yield
// an EventProcessing error and must not be retried.
func Dispatch[T any](ctx context.Context, e Envelope[T], h Handler[T]) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.Type == EventCreate {
		return h.Create(ctx, *e.Data)
	}
	return h.Delete(ctx, e.Key)
}
