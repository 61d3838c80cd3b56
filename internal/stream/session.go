// SPDX-License-Identifier: MIT

// Package stream runs long-lived SSE sessions. Each session owns exactly one
// polling loop: an immediate first poll, then one poll per tick, emitting a
// `data: <json>` event whenever the polled value changes.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/kahvel/notifyd/internal/metrics"
)

// Kind selects which poller a session is bound to.
type Kind string

const (
	// KindNotification streams new notification payloads for a channel.
	KindNotification Kind = "notification"
	// KindQueuePosition streams a chat's waiting-queue position.
	KindQueuePosition Kind = "queue_position"
)

// Poller produces the next value for a session tick. ok is false when there
// is nothing to report. A non-nil error counts as "no update this tick"; it
// never terminates the session.
type Poller func(ctx context.Context) (payload json.RawMessage, ok bool, err error)

// Session is one client connection's polling loop state. It is owned by the
// handler goroutine for its whole lifetime; nothing else mutates it.
type Session struct {
	kind       Kind
	subjectID  string
	interval   time.Duration
	alwaysEmit bool
	logger     zerolog.Logger

	lastEmitted []byte
}

// Options configures a stream session.
type Options struct {
	Kind      Kind
	SubjectID string
	// Interval is the polling cadence. Must be positive.
	Interval time.Duration
	// AlwaysEmit makes every successful poll produce an event, even when the
	// value is unchanged (heartbeat policy for queue counters).
	AlwaysEmit bool
	Logger     zerolog.Logger
}

// NewSession creates a session; it does not start polling until Run.
func NewSession(opts Options) *Session {
	return &Session{
		kind:       opts.Kind,
		subjectID:  opts.SubjectID,
		interval:   opts.Interval,
		alwaysEmit: opts.AlwaysEmit,
		logger: opts.Logger.With().
			Str("kind", string(opts.Kind)).
			Str("subject_id", opts.SubjectID).
			Logger(),
	}
}

// Run writes SSE events to w until ctx is cancelled or the client goes away.
// The ticker is released on every exit path. Run returns nil on normal
// teardown; a client disconnect is not an error.
func (s *Session) Run(ctx context.Context, w http.ResponseWriter, poll Poller) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming unsupported: response writer is not a flusher")
	}
	if s.interval <= 0 {
		return fmt.Errorf("invalid poll interval %s", s.interval)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	opened := time.Now()
	metrics.StreamOpened(string(s.kind))
	defer func() {
		metrics.StreamClosed(string(s.kind), time.Since(opened).Seconds())
		s.logger.Debug().
			Dur("duration", time.Since(opened)).
			Msg("stream session closed")
	}()

	s.logger.Debug().Dur("interval", s.interval).Msg("stream session opened")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Immediate first poll so clients see current state without waiting a tick.
	if done := s.tick(ctx, w, flusher, poll); done {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if done := s.tick(ctx, w, flusher, poll); done {
				return nil
			}
		}
	}
}

// tick performs one poll and possibly one emit. It reports true when the
// session should stop (context cancelled or client gone).
func (s *Session) tick(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, poll Poller) bool {
	payload, ok, err := poll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// In-flight poll outlived the connection; discard the result.
			return true
		}
		metrics.IncStreamPollError(string(s.kind))
		s.logger.Warn().Err(err).Msg("poll failed, skipping tick")
		return false
	}
	if !ok {
		return false
	}
	if !s.alwaysEmit && bytes.Equal(payload, s.lastEmitted) {
		return false
	}
	if ctx.Err() != nil {
		return true
	}

	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		// Client disconnected mid-write; normal teardown, not an error.
		s.logger.Debug().Err(err).Msg("stream write failed, closing session")
		return true
	}
	flusher.Flush()

	s.lastEmitted = bytes.Clone(payload)
	metrics.IncStreamEvent(string(s.kind))
	return false
}
