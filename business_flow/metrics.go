// Package businessflow contains the core business logic and use cases for subscription delivery workflows
package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	renderBatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subscription_render_batch_duration_seconds",
			Help:    "Wall-clock duration of one subscription's render batch",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 240, 480},
		},
		[]string{"execution_context"},
	)

	renderBatchTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_render_batch_timeouts_total",
			Help: "Render batches that hit the batch deadline before all renders reported back",
		},
		[]string{"execution_context"},
	)

	renderFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_render_failures_total",
			Help: "Individual artifact renders that failed",
		},
		[]string{"execution_context"},
	)

	deliveryOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_delivery_outcomes_total",
			Help: "Delivery cycle outcomes by channel and classification",
		},
		[]string{"channel", "outcome"},
	)

	deliveryFailuresByClass = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_delivery_failures_total",
			Help: "Failed sends by channel and error class",
		},
		[]string{"channel", "class"},
	)

	sweepDispatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subscription_sweep_dispatched_total",
			Help: "Due subscriptions dispatched for delivery by sweeps",
		},
	)
)

// RecordSweepDispatched counts subscriptions handed off for delivery by a sweep.
func RecordSweepDispatched(n int) {
	sweepDispatched.Add(float64(n))
}
