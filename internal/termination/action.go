// SPDX-License-Identifier: MIT

package termination

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// endChatMessage is the payload the downstream chat backend expects when a
// session is closed on the client's behalf.
type endChatMessage struct {
	ChatID          string `json:"chatId"`
	AuthorRole      string `json:"authorRole"`
	Event           string `json:"event"`
	AuthorTimestamp string `json:"authorTimestamp"`
}

type endChatRequest struct {
	Message endChatMessage `json:"message"`
}

// NewEndChatAction builds the Action that posts an end-chat request for
// chatID to endpoint. cookie, when non-empty, is forwarded so the downstream
// call carries the original caller's session.
func NewEndChatAction(client *http.Client, endpoint, chatID, cookie string) Action {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return func(ctx context.Context) error {
		body, err := json.Marshal(endChatRequest{
			Message: endChatMessage{
				ChatID:          chatID,
				AuthorRole:      "end-user",
				Event:           "CLIENT_LEFT_FOR_UNKNOWN_REASONS",
				AuthorTimestamp: time.Now().UTC().Format(time.RFC3339),
			},
		})
		if err != nil {
			return fmt.Errorf("marshal end-chat request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build end-chat request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if cookie != "" {
			req.Header.Set("Cookie", cookie)
		}

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("end-chat call: %w", err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
		}()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("end-chat call returned status %d", resp.StatusCode)
		}
		return nil
	}
}
