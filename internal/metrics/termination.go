// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TerminationsScheduled counts chats added to the termination queue.
	TerminationsScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifyd_terminations_scheduled_total",
		Help: "Total number of termination timers scheduled",
	})

	// TerminationsReplaced counts re-adds that replaced a pending timer.
	TerminationsReplaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifyd_terminations_replaced_total",
		Help: "Total number of pending terminations replaced by a re-add",
	})

	// TerminationsCancelled counts pre-fire cancellations.
	TerminationsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifyd_terminations_cancelled_total",
		Help: "Total number of pending terminations cancelled before firing",
	})

	// TerminationsFired counts timers that elapsed and invoked the action.
	TerminationsFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifyd_terminations_fired_total",
		Help: "Total number of termination actions invoked",
	})

	// TerminationActionFailures counts failed end-chat calls. Failures are
	// logged and swallowed; the scheduler never retries.
	TerminationActionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifyd_termination_action_failures_total",
		Help: "Total number of termination actions that returned an error",
	})

	// PendingTerminations tracks the current termination queue depth.
	PendingTerminations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "notifyd_terminations_pending",
		Help: "Number of chats currently awaiting delayed termination",
	})
)
