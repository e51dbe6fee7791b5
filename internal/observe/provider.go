package observe

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// defaultServiceName is reported when ProviderConfig.ServiceName is empty.
const defaultServiceName = "segmentscribe"

// ProviderConfig configures the OpenTelemetry SDK providers.
type ProviderConfig struct {
	// ServiceName is reported as service.name. Default: "segmentscribe".
	ServiceName string

	// ServiceVersion is reported as service.version when set.
	ServiceVersion string

	// Registry receives the Prometheus exporter's collector and is what
	// [Provider.Handler] serves. Default: a fresh [NewRegistry].
	Registry *prometheus.Registry

	// TraceExporter is an optional span exporter. When nil, spans are
	// recorded but not exported.
	TraceExporter sdktrace.SpanExporter
}

// Provider owns the SDK meter and tracer providers of one App and the
// Prometheus registry its metrics are scraped from.
type Provider struct {
	registry *prometheus.Registry
	meter    *sdkmetric.MeterProvider
	tracer   *sdktrace.TracerProvider
	metrics  *Metrics
}

// NewRegistry returns a Prometheus registry carrying the Go runtime and
// process collectors, the same series the global default registry exposes.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// MetricsHandler serves reg in the Prometheus exposition format, with the
// scrape counters promhttp adds to its default handler.
func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.InstrumentMetricHandler(reg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
}

// InitProvider builds a meter provider exporting to cfg.Registry and a tracer
// provider batching to cfg.TraceExporter. The tracer provider is installed
// globally so [StartSpan] picks it up; metrics are only reachable through
// [Provider.Metrics], which keeps two providers in one process apart.
func InitProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}

	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	// Schemaless so the merge never conflicts with the SDK's default schema.
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return nil, fmt.Errorf("observe: build resource: %w", err)
	}

	exp, err := promexporter.New(promexporter.WithRegisterer(cfg.Registry))
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}
	p := &Provider{
		registry: cfg.Registry,
		meter: sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exp),
		),
	}
	if p.metrics, err = NewMetrics(p.meter); err != nil {
		_ = p.meter.Shutdown(ctx)
		return nil, fmt.Errorf("observe: create instruments: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	p.tracer = sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(p.tracer)

	return p, nil
}

// Metrics returns the instruments recorded into the provider's registry.
func (p *Provider) Metrics() *Metrics { return p.metrics }

// Registry returns the registry the exporter writes to.
func (p *Provider) Registry() *prometheus.Registry { return p.registry }

// Handler serves the provider's registry on /metrics.
func (p *Provider) Handler() http.Handler { return MetricsHandler(p.registry) }

// Shutdown flushes pending spans and stops both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	return errors.Join(p.meter.Shutdown(ctx), p.tracer.Shutdown(ctx))
}
