// SPDX-License-Identifier: MIT

// Package termination schedules delayed, cancellable end-chat actions.
// Each chat id has at most one pending timer; re-adding replaces the pending
// entry (last writer wins) and removal is a best-effort pre-fire cancel.
package termination

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kahvel/notifyd/internal/metrics"
)

// Action is the side-effecting end-chat call. Its error is observed by the
// scheduler's logging only; it is never retried.
type Action func(ctx context.Context) error

type pending struct {
	timer        *time.Timer
	gen          uint64
	scheduledFor time.Time
}

// Scheduler owns the chat id to pending-termination table. All transitions
// (add, replace, remove, fire) are serialized behind one mutex so a timer
// fire racing a removal can never double-invoke the action or strand an entry.
type Scheduler struct {
	delay  time.Duration
	logger zerolog.Logger

	mu      sync.Mutex
	pending map[string]*pending
	nextGen uint64
	closed  bool
}

// NewScheduler creates a scheduler that fires actions after delay.
func NewScheduler(delay time.Duration, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		delay:   delay,
		logger:  logger,
		pending: make(map[string]*pending),
	}
}

// Add schedules action to run after the configured delay. If chatID already
// has a pending termination, its timer is stopped first and the new action
// takes its place. Add returns immediately and never blocks on the action.
func (s *Scheduler) Add(chatID string, action Action) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.logger.Warn().Str("chat_id", chatID).Msg("scheduler stopped, dropping termination request")
		return
	}

	if old, ok := s.pending[chatID]; ok {
		old.timer.Stop()
		metrics.TerminationsReplaced.Inc()
		s.logger.Debug().Str("chat_id", chatID).Msg("replaced pending termination")
	}

	s.nextGen++
	gen := s.nextGen
	entry := &pending{
		gen:          gen,
		scheduledFor: time.Now().Add(s.delay),
	}
	entry.timer = time.AfterFunc(s.delay, func() {
		s.fire(chatID, gen, action)
	})
	s.pending[chatID] = entry

	metrics.TerminationsScheduled.Inc()
	metrics.PendingTerminations.Set(float64(len(s.pending)))
	s.logger.Info().
		Str("chat_id", chatID).
		Time("fire_at", entry.scheduledFor).
		Msg("chat added to termination queue")
}

// Remove cancels the pending termination for chatID, if any. It reports
// whether an entry was removed. Removal after the fire handler has claimed
// the entry is a no-op; the action runs at most once either way.
func (s *Scheduler) Remove(chatID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.pending[chatID]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(s.pending, chatID)

	metrics.TerminationsCancelled.Inc()
	metrics.PendingTerminations.Set(float64(len(s.pending)))
	s.logger.Info().Str("chat_id", chatID).Msg("chat removed from termination queue")
	return true
}

// Pending reports whether chatID currently awaits termination.
func (s *Scheduler) Pending(chatID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[chatID]
	return ok
}

// Len returns the number of chats awaiting termination.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels every pending timer. Further Add calls are dropped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for chatID, entry := range s.pending {
		entry.timer.Stop()
		delete(s.pending, chatID)
	}
	metrics.PendingTerminations.Set(0)
	s.logger.Info().Msg("termination scheduler stopped")
}

// fire runs on the timer goroutine. The generation check under the mutex is
// what makes replace and remove safe: a stale timer that lost the race finds
// a different generation (or no entry) and gives up without running anything.
func (s *Scheduler) fire(chatID string, gen uint64, action Action) {
	s.mu.Lock()
	entry, ok := s.pending[chatID]
	if !ok || entry.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.pending, chatID)
	metrics.PendingTerminations.Set(float64(len(s.pending)))
	s.mu.Unlock()

	metrics.TerminationsFired.Inc()
	s.logger.Info().Str("chat_id", chatID).Msg("termination timer elapsed, ending chat")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := action(ctx); err != nil {
		metrics.TerminationActionFailures.Inc()
		s.logger.Warn().
			Err(err).
			Str("chat_id", chatID).
			Msg("end-chat action failed, not retrying")
	}
}
