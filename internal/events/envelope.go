package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/baechuer/real-time-ressys/services/composite-service/internal/domain"
)

type EventType string

const (
	EventCreate EventType = "CREATE"
	EventDelete EventType = "DELETE"
)

// Bindings name the logical destination per entity type.
const (
	BindingProducts        = "products"
	BindingRecommendations = "recommendations"
	BindingReviews         = "reviews"
)

// Keyed entities expose the id used as the partition key.
type Keyed interface {
	EventKey() int
}

// Event is the type-erased view the publisher works with.
type Event interface {
	EventType() EventType
	PartitionKey() int
}

// Envelope is the wire shape of a propagated event. DELETE envelopes carry
// a null payload; CREATE envelopes carry a payload whose key matches Key.
type Envelope[T any] struct {
	Type      EventType `json:"eventType"`
	Key       int       `json:"key"`
	Data      *T        `json:"data"`
	CreatedAt time.Time `json:"eventCreatedAt"`
}

func NewCreate[T Keyed](payload T) Envelope[T] {
	return Envelope[T]{
		Type:      EventCreate,
		Key:       payload.EventKey(),
		Data:      &payload,
		CreatedAt: time.Now().UTC(),
	}
}

func NewDelete[T any](key int) Envelope[T] {
	return Envelope[T]{
		Type:      EventDelete,
		Key:       key,
		CreatedAt: time.Now().UTC(),
	}
}

func (e Envelope[T]) EventType() EventType { return e.Type }

func (e Envelope[T]) PartitionKey() int { return e.Key }

// Validate enforces the payload rules for each event type: a CREATE payload
// must carry the envelope's key. Unknown types are an event processing failure.
func (e Envelope[T]) Validate() error {
	switch e.Type {
	case EventCreate:
		if e.Data == nil {
			return domain.NewEventProcessing("CREATE event for key %d has no payload", e.Key)
		}
		if k, ok := any(*e.Data).(Keyed); ok && k.EventKey() != e.Key {
			return domain.NewEventProcessing("CREATE event key %d does not match payload key %d", e.Key, k.EventKey())
		}
	case EventDelete:
		if e.Data != nil {
			return domain.NewEventProcessing("DELETE event for key %d carries a payload", e.Key)
		}
	default:
		return domain.NewEventProcessing("Incorrect event type: %s, expected a CREATE or DELETE event", e.Type)
	}
	return nil
}

// Decode parses a wire envelope without validating it.
func Decode[T any](body []byte) (Envelope[T], error) {
	var e Envelope[T]
	if err := json.Unmarshal(body, &e); err != nil {
		return e, domain.NewEventProcessing("malformed event: %v", err)
	}
	return e, nil
}

// SameEvent compares two envelopes ignoring CreatedAt.
func SameEvent[T any](a, b Envelope[T]) bool {
	if a.Type != b.Type || a.Key != b.Key {
		return false
	}
	if (a.Data == nil) != (b.Data == nil) {
		return false
	}
	if a.Data == nil {
		return true
	}
	ja, errA := json.Marshal(a.Data)
	jb, errB := json.Marshal(b.Data)
	return errA == nil && errB == nil && bytes.Equal(ja, jb)
}

// SameEventJSON compares two serialized envelopes ignoring eventCreatedAt.
func SameEventJSON(a, b []byte) (bool, error) {
	ma, err := withoutCreatedAt(a)
	if err != nil {
		return false, err
	}
	mb, err := withoutCreatedAt(b)
	if err != nil {
		return false, err
	}
	ja, _ := json.Marshal(ma)
	jb, _ := json.Marshal(mb)
	return bytes.Equal(ja, jb), nil
}

func withoutCreatedAt(raw []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	delete(m, "eventCreatedAt")
	return m, nil
}
