// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// TurnsTotal tracks homeowner turns by outcome (reply, action, failed).
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_turns_total",
			Help: "Total conversation turns processed",
		},
		[]string{"outcome"},
	)

	// ActionsProposedTotal tracks actions proposed by the model.
	ActionsProposedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "actions_proposed_total",
			Help: "Total actions proposed by the model",
		},
		[]string{"type", "valid"},
	)

	// ActionTransitionsTotal tracks action status transitions.
	ActionTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "action_transitions_total",
			Help: "Total action status transitions",
		},
		[]string{"type", "status"},
	)

	// ActionExecutionDuration tracks executor run time.
	ActionExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "action_execution_duration_seconds",
			Help:    "Action execution duration",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 20, 30, 60, 90},
		},
		[]string{"type", "status"},
	)

	// LLMRequestDuration tracks language model call duration.
	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "Language model request duration",
			Buckets: []float64{.5, 1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"provider", "mode", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// EmailOperationsTotal tracks email transport calls.
	EmailOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_operations_total",
			Help: "Total email transport operations",
		},
		[]string{"op", "status"},
	)

	// JournalPublishFailures tracks events that could not be written to the journal.
	JournalPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "journal_publish_failures_total",
			Help: "Journal events that failed to publish",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMCall records metrics for a language model call.
func RecordLLMCall(provider, mode, model, status string, duration float64, tokensIn, tokensOut int) {
	LLMRequestDuration.WithLabelValues(provider, mode, status).Observe(duration)
	if model != "" {
		LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
		LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
	}
}

// RecordActionExecution records how long an executor run took. Transitions
// are counted by the engine when the outcome is stored.
func RecordActionExecution(actionType, status string, duration float64) {
	ActionExecutionDuration.WithLabelValues(actionType, status).Observe(duration)
}

// RecordEmail records an email transport call.
func RecordEmail(op string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	EmailOperationsTotal.WithLabelValues(op, status).Inc()
}
