// Package observe provides application-wide observability primitives for
// MoSheng: OpenTelemetry metrics, tracing, and structured-log helpers.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so that metrics can be
// scraped via the daemon's /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all MoSheng metrics.
const meterName = "github.com/bensenx/MoSheng"

// Metrics holds all OpenTelemetry metric instruments for the daemon.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// VerifyDuration tracks speaker verification latency (fast and slow path
	// combined; the path attribute distinguishes them).
	VerifyDuration metric.Float64Histogram

	// EmbedDuration tracks a single embedding extraction call.
	EmbedDuration metric.Float64Histogram

	// STTDuration tracks transcription latency.
	STTDuration metric.Float64Histogram

	// --- Counters ---

	// VerifyDecisions counts verification outcomes. Use with attribute:
	//   attribute.String("path", ...)
	VerifyDecisions metric.Int64Counter

	// EnrollAttempts counts enrollment attempts. Use with attribute:
	//   attribute.String("status", ...) with "ok", "rejected", or "error"
	EnrollAttempts metric.Int64Counter

	// FailOpens counts verification errors absorbed by the fail-open guard.
	FailOpens metric.Int64Counter

	// Utterances counts processed utterances. Use with attribute:
	//   attribute.String("state", ...) holding the final pipeline state
	Utterances metric.Int64Counter

	// --- Gauges ---

	// ActiveStreams tracks the number of open dictation streaming sessions.
	ActiveStreams metric.Int64UpDownCounter

	// --- HTTP ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for local-inference latencies: tens of milliseconds on the fast path,
// single-digit seconds when the slow path embeds several windows.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.VerifyDuration, err = m.Float64Histogram("mosheng.verify.duration",
		metric.WithDescription("Latency of speaker verification."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmbedDuration, err = m.Float64Histogram("mosheng.embed.duration",
		metric.WithDescription("Latency of one embedding extraction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("mosheng.stt.duration",
		metric.WithDescription("Latency of transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.VerifyDecisions, err = m.Int64Counter("mosheng.verify.decisions",
		metric.WithDescription("Total verification decisions by path."),
	); err != nil {
		return nil, err
	}
	if met.EnrollAttempts, err = m.Int64Counter("mosheng.enroll.attempts",
		metric.WithDescription("Total enrollment attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.FailOpens, err = m.Int64Counter("mosheng.failopen.total",
		metric.WithDescription("Verification errors absorbed by the fail-open guard."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("mosheng.utterances",
		metric.WithDescription("Total processed utterances by final state."),
	); err != nil {
		return nil, err
	}

	if met.ActiveStreams, err = m.Int64UpDownCounter("mosheng.active_streams",
		metric.WithDescription("Number of open dictation streaming sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("mosheng.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordDecision records a verification decision with its path attribute.
func (m *Metrics) RecordDecision(ctx context.Context, path string) {
	m.VerifyDecisions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("path", path)),
	)
}

// RecordEnrollAttempt records an enrollment attempt with its status.
func (m *Metrics) RecordEnrollAttempt(ctx context.Context, status string) {
	m.EnrollAttempts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordUtterance records a processed utterance with its final state.
func (m *Metrics) RecordUtterance(ctx context.Context, state string) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("state", state)),
	)
}
