// Package observe provides application-wide observability primitives for
// CallSense: OpenTelemetry metrics, distributed tracing, and HTTP middleware
// that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. There is no package-level
// default instance: construct [Metrics] with [NewMetrics] and inject it where
// needed.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all CallSense metrics.
const meterName = "github.com/evakess/callsense"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// AnalysisDuration tracks end-to-end emotion assessment latency per call turn.
	AnalysisDuration metric.Float64Histogram

	// OracleDuration tracks oracle (LLM) inference latency.
	OracleDuration metric.Float64Histogram

	// STTDuration tracks clip transcription latency.
	STTDuration metric.Float64Histogram

	// ToolExecutionDuration tracks analysis tool execution latency.
	ToolExecutionDuration metric.Float64Histogram

	// --- Counters ---

	// OracleRequests counts oracle API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	OracleRequests metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// Judgments counts produced emotion judgments. Use with attributes:
	//   attribute.String("emotion", ...), attribute.String("intensity", ...)
	Judgments metric.Int64Counter

	// Fallbacks counts analyses that degraded to the neutral fallback.
	Fallbacks metric.Int64Counter

	// --- Error counters ---

	// OracleErrors counts oracle errors by provider.
	OracleErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveAnalyses tracks the number of in-flight assessments.
	ActiveAnalyses metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// oracle round-trips and local tool execution.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.AnalysisDuration, err = m.Float64Histogram("callsense.analysis.duration",
		metric.WithDescription("End-to-end emotion assessment latency per call turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.OracleDuration, err = m.Float64Histogram("callsense.oracle.duration",
		metric.WithDescription("Latency of oracle inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("callsense.stt.duration",
		metric.WithDescription("Latency of clip transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = m.Float64Histogram("callsense.tool_execution.duration",
		metric.WithDescription("Latency of analysis tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.OracleRequests, err = m.Int64Counter("callsense.oracle.requests",
		metric.WithDescription("Total oracle API requests by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("callsense.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.Judgments, err = m.Int64Counter("callsense.judgments",
		metric.WithDescription("Total emotion judgments by emotion and intensity."),
	); err != nil {
		return nil, err
	}
	if met.Fallbacks, err = m.Int64Counter("callsense.fallbacks",
		metric.WithDescription("Total analyses that degraded to the neutral fallback."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.OracleErrors, err = m.Int64Counter("callsense.oracle.errors",
		metric.WithDescription("Total oracle errors by provider."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveAnalyses, err = m.Int64UpDownCounter("callsense.active_analyses",
		metric.WithDescription("Number of in-flight assessments."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("callsense.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordOracleRequest is a convenience method that records an oracle request
// counter increment with the standard attribute set. All convenience methods
// accept a nil receiver so callers can run without metrics wired.
func (m *Metrics) RecordOracleRequest(ctx context.Context, provider, status string) {
	if m == nil {
		return
	}
	m.OracleRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordToolCall is a convenience method that records a tool call counter
// increment with the standard attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	if m == nil {
		return
	}
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordJudgment is a convenience method that records a produced judgment.
func (m *Metrics) RecordJudgment(ctx context.Context, emotion, intensity string) {
	if m == nil {
		return
	}
	m.Judgments.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("emotion", emotion),
			attribute.String("intensity", intensity),
		),
	)
}

// RecordFallback is a convenience method that records one degraded analysis.
func (m *Metrics) RecordFallback(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.Fallbacks.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordOracleError is a convenience method that records an oracle error
// counter increment.
func (m *Metrics) RecordOracleError(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	m.OracleErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}
