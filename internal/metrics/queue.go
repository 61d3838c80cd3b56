// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueOpsTotal tracks queue membership operations by kind and result.
	QueueOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifyd_queue_ops_total",
		Help: "Total number of queue membership operations by op and result",
	}, []string{"op", "result"})
)

// IncQueueOp records one queue membership operation outcome.
func IncQueueOp(op string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	QueueOpsTotal.WithLabelValues(op, result).Inc()
}
