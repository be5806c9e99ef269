// Package metrics exposes the Prometheus counters and histograms the
// rest of the tree records into, grounded on cartographus'
// internal/metrics package (promauto-registered vars plus small
// Record* helper functions next to them).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ItemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediabridge_items_processed_total",
			Help: "Total number of library items run through the metadata processor",
		},
		[]string{"outcome"}, // "written", "reviewed", "error"
	)

	ProcessDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mediabridge_process_duration_seconds",
			Help:    "Duration of one metadata processor run",
			Buckets: prometheus.DefBuckets,
		},
	)

	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediabridge_webhook_events_total",
			Help: "Total number of webhook events received, by event type",
		},
		[]string{"event_type"},
	)

	TaskStageRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediabridge_task_stage_runs_total",
			Help: "Total number of orchestrator stage executions, by chain/stage/result",
		},
		[]string{"chain", "stage", "result"}, // result: "ok", "error"
	)

	TaskStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediabridge_task_stage_duration_seconds",
			Help:    "Duration of one orchestrator stage execution",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain", "stage"},
	)

	ProxySyntheticRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediabridge_proxy_synthetic_requests_total",
			Help: "Total number of reverse-proxy requests intercepted for synthetic-library handling",
		},
		[]string{"kind"}, // "views", "item", "image", "parent_items"
	)
)

// RecordProcess records one processor run's outcome and duration.
func RecordProcess(outcome string, d time.Duration) {
	ItemsProcessed.WithLabelValues(outcome).Inc()
	ProcessDuration.Observe(d.Seconds())
}

// RecordWebhookEvent records one received webhook event by its type.
func RecordWebhookEvent(eventType string) {
	WebhookEvents.WithLabelValues(eventType).Inc()
}

// RecordTaskStage records one orchestrator stage's result and duration.
func RecordTaskStage(chain, stage string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	TaskStageRuns.WithLabelValues(chain, stage, result).Inc()
	TaskStageDuration.WithLabelValues(chain, stage).Observe(d.Seconds())
}
