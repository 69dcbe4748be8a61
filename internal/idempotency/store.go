package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 7 * 24 * time.Hour

// Store dedupes redelivered events by message id using Redis.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewStore creates a store whose keys are scoped by prefix (e.g. the consumer group).
func NewStore(client *redis.Client, prefix string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

// Key generates a Redis key for a message ID
func (s *Store) Key(messageID string) string {
	return fmt.Sprintf("composite:%s:processed:%s", s.prefix, messageID)
}

// CheckAndMark atomically marks messageID as seen.
// Returns: (isDuplicate, error)
func (s *Store) CheckAndMark(ctx context.Context, messageID string) (bool, error) {
	if messageID == "" {
		return false, fmt.Errorf("empty message id")
	}
	set, err := s.client.SetNX(ctx, s.Key(messageID), time.Now().Unix(), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to atomically check and mark idempotency: %w", err)
	}
	return !set, nil
}

// Unmark releases messageID so a failed processing attempt can be redelivered.
func (s *Store) Unmark(ctx context.Context, messageID string) error {
	if err := s.client.Del(ctx, s.Key(messageID)).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}
