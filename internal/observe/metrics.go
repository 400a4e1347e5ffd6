// Package observe provides observability primitives for the muaalem server:
// OpenTelemetry metrics, tracing helpers, trace-aware logging and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed for
// scraping by the Prometheus exporter bridge installed by [InitProvider].
// Tests should build [Metrics] with [NewMetrics] over their own
// [metric.MeterProvider].
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all muaalem metrics.
const meterName = "github.com/MrWong99/muaalem"

// Metrics holds the OpenTelemetry instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// AnalysisDuration tracks end-to-end analysis latency. Attributes:
	//   attribute.String("status", ...)
	AnalysisDuration metric.Float64Histogram

	// LevelDecodeDuration tracks decode plus alignment latency of a single
	// output level. Attributes: attribute.String("level", ...)
	LevelDecodeDuration metric.Float64Histogram

	// Alignments counts aligner outcomes. Attributes:
	//   attribute.String("level", ...), attribute.String("outcome", ...)
	Alignments metric.Int64Counter

	// Analyses counts finished analyses by status (ok, low_confidence, error).
	Analyses metric.Int64Counter

	// LowConfidenceWords counts words whose projection was flagged.
	LowConfidenceWords metric.Int64Counter

	// InFlight tracks analyses currently running.
	InFlight metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	//   attribute.String("method", ...), attribute.String("route", ...),
	//   attribute.Int("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Decoding
// is CPU bound and usually finishes in well under a second.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.AnalysisDuration, err = m.Float64Histogram("muaalem.analysis.duration",
		metric.WithDescription("Latency of a full recitation analysis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LevelDecodeDuration, err = m.Float64Histogram("muaalem.level.decode.duration",
		metric.WithDescription("Latency of decoding and aligning one output level."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Alignments, err = m.Int64Counter("muaalem.alignments",
		metric.WithDescription("Reference alignments by level and outcome."),
	); err != nil {
		return nil, err
	}
	if met.Analyses, err = m.Int64Counter("muaalem.analyses",
		metric.WithDescription("Finished analyses by status."),
	); err != nil {
		return nil, err
	}
	if met.LowConfidenceWords, err = m.Int64Counter("muaalem.words.low_confidence",
		metric.WithDescription("Words whose phoneme projection was flagged as low confidence."),
	); err != nil {
		return nil, err
	}

	if met.InFlight, err = m.Int64UpDownCounter("muaalem.analyses.in_flight",
		metric.WithDescription("Number of analyses currently running."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("muaalem.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
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

// RecordLevel records the decode latency and alignment outcome of one level.
func (m *Metrics) RecordLevel(ctx context.Context, level, outcome string, elapsed time.Duration) {
	m.LevelDecodeDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("level", level)),
	)
	m.Alignments.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("level", level),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordAnalysis records a finished analysis with its status and latency.
func (m *Metrics) RecordAnalysis(ctx context.Context, status string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.AnalysisDuration.Record(ctx, elapsed.Seconds(), attrs)
	m.Analyses.Add(ctx, 1, attrs)
}

// RecordLowConfidenceWords adds n flagged words. Zero is ignored.
func (m *Metrics) RecordLowConfidenceWords(ctx context.Context, n int) {
	if n <= 0 {
		return
	}
	m.LowConfidenceWords.Add(ctx, int64(n))
}
