// Package observability provides Prometheus metrics for chat turns.
//
// Metrics are exposed on /metrics by the HTTP server. All methods are safe
// on a nil *Metrics, which records nothing.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "geoassist"

// Metrics holds the counters and histograms of the assistant.
type Metrics struct {
	// TurnsTotal counts finished turns. Labels: outcome (final_answer,
	// step_budget_exhausted, aborted).
	TurnsTotal *prometheus.CounterVec

	// TurnDurationSeconds measures turns from first model call to finish.
	TurnDurationSeconds prometheus.Histogram

	// ToolCallsTotal counts tool invocations. Labels: tool, status, error_type.
	ToolCallsTotal *prometheus.CounterVec

	// ToolDurationSeconds measures tool handler time. Labels: tool.
	ToolDurationSeconds *prometheus.HistogramVec

	// ModelCallsTotal counts completion requests. Labels: kind (loop, tool_free).
	ModelCallsTotal *prometheus.CounterVec

	// RejectionsTotal counts turns refused before the loop. Labels: reason.
	RejectionsTotal *prometheus.CounterVec

	// PersistFailuresTotal counts transcripts that could not be stored.
	PersistFailuresTotal prometheus.Counter
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TurnsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "turns_total",
			Help:      "Chat turns by terminal outcome",
		}, []string{"outcome"}),
		TurnDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "turn_duration_seconds",
			Help:      "Duration of chat turns",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		ToolCallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and status",
		}, []string{"tool", "status", "error_type"}),
		ToolDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "tool_duration_seconds",
			Help:      "Duration of tool handlers",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"tool"}),
		ModelCallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "model_calls_total",
			Help:      "Completion requests sent to the model",
		}, []string{"kind"}),
		RejectionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rejections_total",
			Help:      "Turns rejected before reaching the model",
		}, []string{"reason"}),
		PersistFailuresTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "persist_failures_total",
			Help:      "Transcripts that could not be stored",
		}),
	}
}

// TurnFinished records a finished turn.
func (m *Metrics) TurnFinished(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(outcome).Inc()
	m.TurnDurationSeconds.Observe(d.Seconds())
}

// ToolInvoked records one tool invocation.
func (m *Metrics) ToolInvoked(tool string, success bool, errorType string, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.ToolCallsTotal.WithLabelValues(tool, status, errorType).Inc()
	m.ToolDurationSeconds.WithLabelValues(tool).Observe(d.Seconds())
}

// ModelCalled records one completion request.
func (m *Metrics) ModelCalled(kind string) {
	if m == nil {
		return
	}
	m.ModelCallsTotal.WithLabelValues(kind).Inc()
}

// Rejected records a turn refused before the loop.
func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.RejectionsTotal.WithLabelValues(reason).Inc()
}

// PersistFailed records a transcript that could not be stored.
func (m *Metrics) PersistFailed() {
	if m == nil {
		return
	}
	m.PersistFailuresTotal.Inc()
}
