package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the query loop and daemon.
type Metrics struct {
	registry      *prometheus.Registry
	Queries       *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryTurns    *prometheus.HistogramVec
	ToolCalls     *prometheus.CounterVec
	LspRequests   *prometheus.CounterVec
	ActiveSession *prometheus.GaugeVec
	TransportErrs *prometheus.CounterVec
	ModelFailures *prometheus.CounterVec
}

// NewMetrics constructs a metrics registry with query collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	queries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "byor_queries_total",
		Help: "Total queries by finish reason",
	}, []string{"finish_reason"})

	durs := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "byor_query_duration_seconds",
		Help:    "Query duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"finish_reason"})

	turns := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "byor_query_turns",
		Help:    "Model turns consumed per query",
		Buckets: []float64{1, 2, 3, 4, 6, 8, 10, 15, 20},
	}, []string{"finish_reason"})

	toolCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "byor_tool_calls_total",
		Help: "Tool invocations by tool name and outcome",
	}, []string{"tool", "status"})

	lspReqs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "byor_lsp_requests_total",
		Help: "Language server requests by method and outcome",
	}, []string{"method", "status"})

	active := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "byor_transport_active_sessions",
		Help: "Active streaming sessions by transport",
	}, []string{"transport"})

	trErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "byor_transport_errors_total",
		Help: "Transport-level errors (handler/streaming) by transport and reason",
	}, []string{"transport", "reason"})

	modelFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "byor_model_failures_total",
		Help: "Model call failures by model",
	}, []string{"model"})

	reg.MustRegister(queries, durs, turns, toolCalls, lspReqs, active, trErrors, modelFailures)

	return &Metrics{
		registry:      reg,
		Queries:       queries,
		QueryDuration: durs,
		QueryTurns:    turns,
		ToolCalls:     toolCalls,
		LspRequests:   lspReqs,
		ActiveSession: active,
		TransportErrs: trErrors,
		ModelFailures: modelFailures,
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordQuery records a finished query with its duration and turn count.
func (m *Metrics) RecordQuery(finishReason string, duration time.Duration, turns int) {
	if m == nil {
		return
	}
	if finishReason == "" {
		finishReason = "unknown"
	}
	m.Queries.WithLabelValues(finishReason).Inc()
	m.QueryDuration.WithLabelValues(finishReason).Observe(duration.Seconds())
	m.QueryTurns.WithLabelValues(finishReason).Observe(float64(turns))
}

// RecordToolCall records a single tool invocation outcome.
func (m *Metrics) RecordToolCall(tool, status string) {
	if m == nil {
		return
	}
	if tool == "" {
		tool = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.ToolCalls.WithLabelValues(tool, status).Inc()
}

// RecordLspRequest records a language server request outcome.
func (m *Metrics) RecordLspRequest(method, status string) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.LspRequests.WithLabelValues(method, status).Inc()
}

// IncActiveSessions increments the active session gauge.
func (m *Metrics) IncActiveSessions(transport string) {
	if m == nil {
		return
	}
	m.ActiveSession.WithLabelValues(transport).Inc()
}

// DecActiveSessions decrements the active session gauge.
func (m *Metrics) DecActiveSessions(transport string) {
	if m == nil {
		return
	}
	m.ActiveSession.WithLabelValues(transport).Dec()
}

// RecordTransportError records a transport-level error.
func (m *Metrics) RecordTransportError(transport, reason string) {
	if m == nil {
		return
	}
	if transport == "" {
		transport = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	m.TransportErrs.WithLabelValues(transport, reason).Inc()
}

// RecordModelFailure increments the failure counter for a model.
func (m *Metrics) RecordModelFailure(model string) {
	if m == nil {
		return
	}
	if model == "" {
		model = "unknown"
	}
	m.ModelFailures.WithLabelValues(model).Inc()
}
