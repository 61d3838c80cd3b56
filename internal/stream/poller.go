// SPDX-License-Identifier: MIT

package stream

import (
	"context"
	"encoding/json"

	"github.com/kahvel/notifyd/internal/notification"
	"github.com/kahvel/notifyd/internal/queue"
)

// NotificationPoller binds a channel id to the notification source. The
// closure carries the last-seen cursor so each tick only reports entries the
// session has not emitted yet.
func NotificationPoller(src *notification.Source, channelID string) Poller {
	cursor := ""
	return func(ctx context.Context) (json.RawMessage, bool, error) {
		payload, next, ok, err := src.FetchLatest(ctx, channelID, cursor)
		if err != nil {
			return nil, false, err
		}
		cursor = next
		return payload, ok, nil
	}
}

// QueuePosition is the payload emitted by queue-position streams.
type QueuePosition struct {
	ChatID string `json:"chatId"`
	// Position is the zero-based count of chats enqueued strictly earlier;
	// -1 when the chat is not queued.
	Position int64 `json:"position"`
	InQueue  bool  `json:"inQueue"`
}

// QueuePositionPoller binds a chat id to the queue membership store. Every
// tick reports the current position; the session's change detection decides
// whether it reaches the wire.
func QueuePositionPoller(store *queue.Store, chatID string) Poller {
	return func(ctx context.Context) (json.RawMessage, bool, error) {
		pos, inQueue, err := store.Position(ctx, chatID)
		if err != nil {
			return nil, false, err
		}

		p := QueuePosition{ChatID: chatID, Position: pos, InQueue: inQueue}
		if !inQueue {
			p.Position = -1
		}
		payload, err := json.Marshal(p)
		if err != nil {
			return nil, false, err
		}
		return payload, true, nil
	}
}
