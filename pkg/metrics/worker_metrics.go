// Package metrics holds the prometheus collectors shared by the triage
// pipeline and the HTTP layer.
package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Triage metrics
var (
	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailbrief_classified_actions_total",
			Help: "Normalized triage actions by recommended action",
		},
		[]string{"action"},
	)

	ExtractionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailbrief_extraction_outcomes_total",
			Help: "Model output extraction results (direct, fallback, array, none)",
		},
		[]string{"outcome"},
	)

	ModelLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailbrief_model_request_duration_seconds",
			Help:    "Duration of generative model requests",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"status"},
	)

	MailboxOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailbrief_mailbox_operations_total",
			Help: "Mailbox mutations by operation and result",
		},
		[]string{"operation", "result"},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailbrief_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailbrief_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Result label helper
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RegisterDBStats exposes database/sql pool statistics for db under name.
func RegisterDBStats(db *sql.DB, name string) error {
	return prometheus.Register(collectors.NewDBStatsCollector(db, name))
}
