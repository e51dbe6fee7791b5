// Package observe provides application-wide observability primitives for
// segmentscribe: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// bridges them to an explicit Prometheus registry that [MetricsHandler]
// serves on /metrics. Tests use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/segmentscribe"

// Metrics holds all OpenTelemetry metric instruments for the application.
// The underlying OTel types handle their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// DecodeDuration tracks decoding plus resampling of one file.
	DecodeDuration metric.Float64Histogram

	// ChunkDuration tracks segmentation plus transcription of one file.
	ChunkDuration metric.Float64Histogram

	// STTDuration tracks transcription latency of a single segment.
	STTDuration metric.Float64Histogram

	// FileDuration tracks the whole pipeline for one file.
	FileDuration metric.Float64Histogram

	// --- Counters ---

	// Segments counts produced segments. Use with attribute:
	//   attribute.String("cut", ...)
	Segments metric.Int64Counter

	// AudioSeconds counts seconds of canonical audio processed.
	AudioSeconds metric.Float64Counter

	// VADFrames counts frames classified by the voice activity detector.
	VADFrames metric.Int64Counter

	// ProviderRequests counts engine calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// CacheLookups counts transcript cache lookups. Use with attribute:
	//   attribute.String("result", "hit"|"miss"|"error")
	CacheLookups metric.Int64Counter

	// --- Error counters ---

	// VADErrors counts frames the detector failed to classify.
	VADErrors metric.Int64Counter

	// ProviderErrors counts engine errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveTranscriptions tracks files currently in the pipeline.
	ActiveTranscriptions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// per-segment engine calls.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// fileBuckets covers whole-file stages, which scale with recording length.
var fileBuckets = []float64{
	0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.DecodeDuration, err = m.Float64Histogram("segmentscribe.decode.duration",
		metric.WithDescription("Latency of decoding and resampling one file."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(fileBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ChunkDuration, err = m.Float64Histogram("segmentscribe.chunk.duration",
		metric.WithDescription("Latency of segmenting and transcribing one file."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(fileBuckets...),
	); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("segmentscribe.stt.duration",
		metric.WithDescription("Latency of transcribing one segment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FileDuration, err = m.Float64Histogram("segmentscribe.file.duration",
		metric.WithDescription("End-to-end latency of transcribing one file."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(fileBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Segments, err = m.Int64Counter("segmentscribe.segments",
		metric.WithDescription("Total segments produced by cut reason."),
	); err != nil {
		return nil, err
	}
	if met.AudioSeconds, err = m.Float64Counter("segmentscribe.audio.seconds",
		metric.WithDescription("Total seconds of canonical audio processed."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.VADFrames, err = m.Int64Counter("segmentscribe.vad.frames",
		metric.WithDescription("Total frames classified by the voice activity detector."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("segmentscribe.provider.requests",
		metric.WithDescription("Total engine requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.CacheLookups, err = m.Int64Counter("segmentscribe.cache.lookups",
		metric.WithDescription("Total transcript cache lookups by result."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.VADErrors, err = m.Int64Counter("segmentscribe.vad.errors",
		metric.WithDescription("Total frames the voice activity detector failed to classify."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("segmentscribe.provider.errors",
		metric.WithDescription("Total engine errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveTranscriptions, err = m.Int64UpDownCounter("segmentscribe.active_transcriptions",
		metric.WithDescription("Number of files currently being transcribed."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("segmentscribe.http.request.duration",
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

// RecordProviderRequest records a provider request counter increment with
// the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordSegment counts one segment with its cut reason.
func (m *Metrics) RecordSegment(ctx context.Context, cut string) {
	m.Segments.Add(ctx, 1, metric.WithAttributes(attribute.String("cut", cut)))
}

// RecordVADFrame counts one classified frame, and one error when failed is
// true.
func (m *Metrics) RecordVADFrame(ctx context.Context, failed bool) {
	m.VADFrames.Add(ctx, 1)
	if failed {
		m.VADErrors.Add(ctx, 1)
	}
}

// RecordCacheLookup counts one transcript cache lookup.
func (m *Metrics) RecordCacheLookup(ctx context.Context, result string) {
	m.CacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
