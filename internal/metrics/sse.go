// SPDX-License-Identifier: MIT

// Package metrics exposes Prometheus instrumentation for the notification server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveStreams tracks the number of open SSE sessions by subject kind.
	ActiveStreams = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "notifyd_sse_active_streams",
		Help: "Number of currently open SSE sessions",
	}, []string{"kind"})

	// StreamEventsTotal tracks events written to SSE clients.
	StreamEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifyd_sse_events_total",
		Help: "Total number of SSE events emitted",
	}, []string{"kind"})

	// StreamPollErrorsTotal tracks poll failures during stream ticks.
	// A poll failure is "no update this tick", never a session kill.
	StreamPollErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifyd_sse_poll_errors_total",
		Help: "Total number of failed polls during SSE ticks",
	}, []string{"kind"})

	// StreamDuration tracks how long SSE sessions stay connected.
	StreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notifyd_sse_session_duration_seconds",
		Help:    "Lifetime of SSE sessions from open to teardown",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
	}, []string{"kind"})
)

// StreamOpened records a new SSE session of the given kind.
func StreamOpened(kind string) {
	ActiveStreams.WithLabelValues(kind).Inc()
}

// StreamClosed records teardown of an SSE session of the given kind.
func StreamClosed(kind string, seconds float64) {
	ActiveStreams.WithLabelValues(kind).Dec()
	StreamDuration.WithLabelValues(kind).Observe(seconds)
}

// IncStreamEvent records one emitted SSE event.
func IncStreamEvent(kind string) {
	StreamEventsTotal.WithLabelValues(kind).Inc()
}

// IncStreamPollError records one failed poll tick.
func IncStreamPollError(kind string) {
	StreamPollErrorsTotal.WithLabelValues(kind).Inc()
}
