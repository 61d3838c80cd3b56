// SPDX-License-Identifier: MIT

// Package queue implements the Redis-backed waiting-queue membership store.
// Membership lives in a sorted set whose scores come from a monotonically
// increasing sequence, so a member's position is the count of members with a
// strictly smaller score.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/kahvel/notifyd/internal/metrics"
)

const (
	queueKey    = "chat:queue"
	sequenceKey = "chat:queue:seq"

	opTimeout = 2 * time.Second
)

// ErrStoreUnavailable wraps store-level failures. Callers surface it as a
// failure response; the store does not retry internally.
var ErrStoreUnavailable = errors.New("queue store unavailable")

// Store provides enqueue/dequeue/position operations on the waiting queue.
type Store struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewStore creates a queue store on top of an existing Redis client.
func NewStore(client *redis.Client, logger zerolog.Logger) *Store {
	return &Store{
		client: client,
		logger: logger,
	}
}

// Enqueue idempotently adds chatID to the waiting queue. Re-enqueuing an
// existing member keeps its original ordering key (ZADD NX), so its position
// never changes.
func (s *Store) Enqueue(ctx context.Context, chatID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	seq, err := s.client.Incr(ctx, sequenceKey).Result()
	if err != nil {
		metrics.IncQueueOp("enqueue", false)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	added, err := s.client.ZAddNX(ctx, queueKey, redis.Z{
		Score:  float64(seq),
		Member: chatID,
	}).Result()
	if err != nil {
		metrics.IncQueueOp("enqueue", false)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	metrics.IncQueueOp("enqueue", true)
	s.logger.Debug().
		Str("chat_id", chatID).
		Bool("already_present", added == 0).
		Msg("enqueued chat")
	return nil
}

// Dequeue idempotently removes chatID from the waiting queue. Removing an
// absent member is a no-op, not an error.
func (s *Store) Dequeue(ctx context.Context, chatID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	removed, err := s.client.ZRem(ctx, queueKey, chatID).Result()
	if err != nil {
		metrics.IncQueueOp("dequeue", false)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	metrics.IncQueueOp("dequeue", true)
	s.logger.Debug().
		Str("chat_id", chatID).
		Bool("was_present", removed > 0).
		Msg("dequeued chat")
	return nil
}

// Position returns the zero-based count of members enqueued strictly earlier
// than chatID. The second return value is false when chatID is not queued.
func (s *Store) Position(ctx context.Context, chatID string) (int64, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rank, err := s.client.ZRank(ctx, queueKey, chatID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return rank, true, nil
}

// Len returns the number of queued chats.
func (s *Store) Len(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	n, err := s.client.ZCard(ctx, queueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

// HealthCheck checks if the backing store is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
