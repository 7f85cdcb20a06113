// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turn_transitions_total",
			Help: "Turn state machine transitions by outcome",
		},
		[]string{"to", "result"},
	)

	Allocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turn_code_allocations_total",
			Help: "Turn creations by outcome",
		},
		[]string{"result"},
	)

	Retries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turn_operation_retries_total",
			Help: "Operations retried after a transient failure",
		},
		[]string{"operation"},
	)

	Occupancy = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resource_occupancy_operations_total",
			Help: "Resource ledger operations by outcome",
		},
		[]string{"operation", "result"},
	)

	NotificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turn_notification_failures_total",
			Help: "Notifications that could not be delivered",
		},
		[]string{"type"},
	)

	StaleCancelled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "turn_stale_cancelled_total",
			Help: "Turns cancelled by the stale sweep",
		},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "turn_operation_duration_seconds",
			Help:    "Duration of engine operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Result labels an operation outcome: "ok" or the error kind.
func Result(kind string) string {
	if kind == "" {
		return "ok"
	}
	return kind
}

func Handler() http.Handler {
	return promhttp.Handler()
}
