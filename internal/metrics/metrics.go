// Package metrics provides Prometheus metrics for the ingestor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesTotal counts processed messages by final outcome.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "samvad",
			Subsystem: "ingest",
			Name:      "messages_total",
			Help:      "Total number of processed messages by outcome",
		},
		[]string{"outcome"},
	)

	// StageAttemptsTotal counts individual attempts of a retried stage.
	StageAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "samvad",
			Subsystem: "ingest",
			Name:      "stage_attempts_total",
			Help:      "Total number of stage attempts by result",
		},
		[]string{"stage", "result"},
	)

	// StageDuration measures how long a stage took, retries included.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "samvad",
			Subsystem: "ingest",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// NotificationsTotal counts ingest notifications by status.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "samvad",
			Subsystem: "ingest",
			Name:      "notifications_total",
			Help:      "Total number of ingest notifications by status",
		},
		[]string{"status"},
	)
)

// RecordOutcome records the final outcome of a message.
func RecordOutcome(outcome string) {
	MessagesTotal.WithLabelValues(outcome).Inc()
}

// RecordAttempt records one attempt of a stage.
func RecordAttempt(stage string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	StageAttemptsTotal.WithLabelValues(stage, result).Inc()
}

// RecordStage records the total duration of a stage.
func RecordStage(stage string, seconds float64) {
	StageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordNotification records the delivery status of an ingest notification.
func RecordNotification(status string) {
	NotificationsTotal.WithLabelValues(status).Inc()
}
