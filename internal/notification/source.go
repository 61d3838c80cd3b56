// SPDX-License-Identifier: MIT

// Package notification reads and writes per-channel notification payloads
// backed by Redis streams. Stream ids double as cursors for the SSE pollers.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	streamKeyPrefix = "chat:notifications:"
	payloadField    = "payload"

	// maxStreamLen caps each channel stream; SSE delivery is
	// at-most-current-state, not an event log.
	maxStreamLen = 1000

	opTimeout = 2 * time.Second
)

// ErrSourceUnavailable wraps notification store failures.
var ErrSourceUnavailable = errors.New("notification source unavailable")

// Source reads the latest notification per channel and lets internal
// producers publish new ones.
type Source struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewSource creates a notification source on top of an existing Redis client.
func NewSource(client *redis.Client, logger zerolog.Logger) *Source {
	return &Source{
		client: client,
		logger: logger,
	}
}

// FetchLatest returns the newest payload on the channel together with its
// cursor. ok is false when the stream is empty or the newest entry is the one
// the caller has already seen (cursor match).
func (s *Source) FetchLatest(ctx context.Context, channelID, sinceCursor string) (payload json.RawMessage, cursor string, ok bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	entries, err := s.client.XRevRangeN(ctx, streamKey(channelID), "+", "-", 1).Result()
	if err != nil {
		return nil, sinceCursor, false, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if len(entries) == 0 {
		return nil, sinceCursor, false, nil
	}

	latest := entries[0]
	if latest.ID == sinceCursor {
		return nil, sinceCursor, false, nil
	}

	raw, found := latest.Values[payloadField].(string)
	if !found {
		// Entries written by other producers may miss the payload field;
		// skip them but advance the cursor so they are not re-examined.
		return nil, latest.ID, false, nil
	}
	return json.RawMessage(raw), latest.ID, true, nil
}

// Publish appends a payload to the channel's stream and returns its id.
func (s *Source) Publish(ctx context.Context, channelID string, payload json.RawMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(channelID),
		MaxLen: maxStreamLen,
		Approx: true,
		Values: map[string]any{payloadField: string(payload)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	s.logger.Debug().
		Str("channel_id", channelID).
		Str("entry_id", id).
		Msg("notification published")
	return id, nil
}

func streamKey(channelID string) string {
	return streamKeyPrefix + channelID
}
