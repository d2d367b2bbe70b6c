// Package metrics holds the Prometheus instruments shared by the server and worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration by route template.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "realty_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route", "status"},
	)

	// PanicsTotal counts handler panics recovered by the error middleware.
	PanicsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realty_http_panics_total",
			Help: "Recovered HTTP handler panics by route template",
		},
		[]string{"route"},
	)

	// DeadLettersPurgedTotal counts dead-lettered jobs dropped after retention.
	DeadLettersPurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realty_dead_letters_purged_total",
			Help: "Dead-lettered jobs dropped by the DLQ garbage collector",
		},
	)

	// TurnsTotal counts conversation turns by outcome (replied, apology, lock_timeout).
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realty_turns_total",
			Help: "Conversation turns by outcome",
		},
		[]string{"outcome"},
	)

	// TurnDuration tracks end-to-end turn latency.
	TurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "realty_turn_duration_seconds",
			Help:    "Conversation turn duration",
			Buckets: []float64{.5, 1, 2, 5, 10, 20, 30, 60, 90},
		},
	)

	// ModelDuration tracks chat model step latency.
	ModelDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "realty_model_step_duration_seconds",
			Help:    "Chat model step duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"model", "status"},
	)

	// ToolCallsTotal counts tool executions.
	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realty_tool_calls_total",
			Help: "Tool calls by name and outcome",
		},
		[]string{"tool", "outcome"},
	)

	// EmbeddingsTotal counts embedding requests.
	EmbeddingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realty_embeddings_total",
			Help: "Embedding requests by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	// CalendarSyncTotal counts external calendar sync attempts.
	CalendarSyncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realty_calendar_sync_total",
			Help: "Calendar sync results by status and account",
		},
		[]string{"status", "account"},
	)

	// WebhookEventsTotal counts inbound messaging webhook events.
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realty_webhook_events_total",
			Help: "Messaging webhook events by type",
		},
		[]string{"event"},
	)

	// TurnsInFlight tracks running turns.
	TurnsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realty_turns_in_flight",
			Help: "Conversation turns currently running",
		},
	)

	// JobsTotal counts worker job results.
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realty_jobs_total",
			Help: "Background jobs by type and outcome",
		},
		[]string{"type", "outcome"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, route, status string, duration float64) {
	RequestDuration.WithLabelValues(method, route, status).Observe(duration)
}

// RecordPanic records a recovered handler panic.
func RecordPanic(route string) {
	PanicsTotal.WithLabelValues(route).Inc()
}

// RecordDeadLettersPurged adds n purged dead letters.
func RecordDeadLettersPurged(n int) {
	if n > 0 {
		DeadLettersPurgedTotal.Add(float64(n))
	}
}

// RecordTurn records one finished conversation turn.
func RecordTurn(outcome string, duration float64) {
	TurnsTotal.WithLabelValues(outcome).Inc()
	TurnDuration.Observe(duration)
}

// RecordModelStep records one chat model call.
func RecordModelStep(model, status string, duration float64) {
	ModelDuration.WithLabelValues(model, status).Observe(duration)
}

// RecordToolCall records one tool execution.
func RecordToolCall(tool, outcome string) {
	ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
}

// RecordEmbedding records one embedding request.
func RecordEmbedding(mode, outcome string) {
	EmbeddingsTotal.WithLabelValues(mode, outcome).Inc()
}

// RecordCalendarSync records a sync result.
func RecordCalendarSync(status, account string) {
	CalendarSyncTotal.WithLabelValues(status, account).Inc()
}

// RecordWebhookEvent records an inbound webhook event.
func RecordWebhookEvent(event string) {
	WebhookEventsTotal.WithLabelValues(event).Inc()
}

// RecordJob records a worker job result.
func RecordJob(jobType, outcome string) {
	JobsTotal.WithLabelValues(jobType, outcome).Inc()
}
