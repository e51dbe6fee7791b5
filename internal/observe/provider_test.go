package observe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// initTestProvider starts a Provider and restores the global tracer provider
// afterwards.
func initTestProvider(t *testing.T, cfg ProviderConfig) *Provider {
	t.Helper()
	prev := otel.GetTracerProvider()
	p, err := InitProvider(context.Background(), cfg)
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	t.Cleanup(func() {
		_ = p.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return p
}

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	srv := httptest.NewServer(h)
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestInitProvider_ExportsToRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := initTestProvider(t, ProviderConfig{
		ServiceName:    "segmentscribe-test",
		ServiceVersion: "1.4.0",
		Registry:       reg,
	})
	if p.Registry() != reg {
		t.Fatal("Registry() does not return the configured registry")
	}

	p.Metrics().Segments.Add(context.Background(), 3, metric.WithAttributes(Attr("cut", "silence")))

	body := scrape(t, p.Handler())
	for _, want := range []string{
		"segmentscribe_segments",
		`cut="silence"`,
		`service_name="segmentscribe-test"`,
		`service_version="1.4.0"`,
		"promhttp_metric_handler_requests_total",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape does not contain %s", want)
		}
	}
}

func TestInitProvider_RegistriesAreIsolated(t *testing.T) {
	first := initTestProvider(t, ProviderConfig{Registry: prometheus.NewRegistry()})
	second := initTestProvider(t, ProviderConfig{Registry: prometheus.NewRegistry()})

	first.Metrics().Segments.Add(context.Background(), 1, metric.WithAttributes(Attr("cut", "target")))

	if body := scrape(t, second.Handler()); strings.Contains(body, `cut="target"`) {
		t.Error("second registry exposes a sample recorded by the first provider")
	}
	if body := scrape(t, first.Handler()); !strings.Contains(body, `cut="target"`) {
		t.Error("first registry lost its own sample")
	}
}

func TestInitProvider_DefaultRegistry(t *testing.T) {
	p := initTestProvider(t, ProviderConfig{})
	if p.Registry() == nil {
		t.Fatal("no registry created")
	}
	body := scrape(t, p.Handler())
	if !strings.Contains(body, "go_goroutines") {
		t.Error("default registry is missing the Go collector")
	}
	if !strings.Contains(body, `service_name="segmentscribe"`) {
		t.Error("default service name not reported")
	}
}

func TestInitProvider_DoesNotTouchGlobalRegistry(t *testing.T) {
	p := initTestProvider(t, ProviderConfig{Registry: prometheus.NewRegistry()})
	p.Metrics().Segments.Add(context.Background(), 1, metric.WithAttributes(Attr("cut", "eof")))

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), "segmentscribe_") {
			t.Errorf("global registry exposes %s", f.GetName())
		}
	}
}
