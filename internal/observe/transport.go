package observe

import (
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Transport returns an [http.RoundTripper] for outbound engine calls. Each
// request gets a client span, W3C trace context headers, and a
// [Metrics.RecordProviderRequest] entry labelled with provider and kind.
// Transport errors and 5xx responses also count as provider errors.
// A nil base uses [http.DefaultTransport].
func Transport(m *Metrics, provider, kind string, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &transport{m: m, provider: provider, kind: kind, base: base}
}

type transport struct {
	m        *Metrics
	provider string
	kind     string
	base     http.RoundTripper
}

func (t *transport) RoundTrip(r *http.Request) (*http.Response, error) {
	ctx, span := StartSpan(r.Context(), t.kind+" "+t.provider,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(r.Method),
			semconv.ServerAddress(r.URL.Hostname()),
		),
	)

	// RoundTrippers must not modify the caller's request.
	r = r.Clone(ctx)
	propagation.TraceContext{}.Inject(ctx, propagation.HeaderCarrier(r.Header))

	start := time.Now()
	resp, err := t.base.RoundTrip(r)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		t.m.RecordProviderRequest(ctx, t.provider, t.kind, "error")
		t.m.RecordProviderError(ctx, t.provider, t.kind)
	case resp.StatusCode >= 500:
		span.SetAttributes(semconv.HTTPResponseStatusCode(resp.StatusCode))
		t.m.RecordProviderRequest(ctx, t.provider, t.kind, strconv.Itoa(resp.StatusCode))
		t.m.RecordProviderError(ctx, t.provider, t.kind)
	default:
		span.SetAttributes(semconv.HTTPResponseStatusCode(resp.StatusCode))
		t.m.RecordProviderRequest(ctx, t.provider, t.kind, strconv.Itoa(resp.StatusCode))
	}
	Logger(ctx).Debug("outbound request completed",
		"provider", t.provider,
		"method", r.Method,
		"host", r.URL.Host,
		"duration", elapsed,
		"err", err,
	)
	EndSpan(span, err)
	return resp, err
}
