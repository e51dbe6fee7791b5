package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/MrWong99/segmentscribe/internal/health"
	"github.com/MrWong99/segmentscribe/internal/observe"
	"github.com/MrWong99/segmentscribe/internal/resilience"
)

// initHealth registers the readiness checks. The VAD model is critical since
// no file can be segmented without it; the cache and the engines only degrade
// the pipeline.
func (a *App) initHealth() {
	checks := []health.Checker{
		{Name: "vad_model", Check: health.FileReadable(a.cfg.VAD.ModelPath), Critical: true},
		{Name: "store", Check: a.store.Ping},
	}
	if a.fallback != nil {
		checks = append(checks, health.Checker{Name: "stt_engines", Check: a.checkEngines})
	}
	for _, p := range a.probes {
		checks = append(checks, health.Checker{
			Name:  "engine_" + p.name,
			Check: health.HTTPStatus(nil, p.url),
		})
	}
	a.health = health.New(checks...)
}

// checkEngines fails when every engine's circuit breaker is open.
func (a *App) checkEngines(context.Context) error {
	status := a.fallback.Status()
	for _, s := range status {
		if s.State != resilience.StateOpen {
			return nil
		}
	}
	return fmt.Errorf("all %d engines have an open circuit", len(status))
}

// Handler returns the HTTP handler serving /metrics, /healthz and /readyz.
// It is mounted on server.metrics_addr when set and can be embedded into
// another server otherwise.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", observe.MetricsHandler(a.prom))
	a.health.Register(mux)
	return observe.Middleware(a.metrics)(mux)
}

// startServer binds server.metrics_addr. The listener is bound synchronously
// so address errors surface from New.
func (a *App) startServer() error {
	addr := a.cfg.Server.MetricsAddr
	if addr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	a.server = &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	a.log.Info("metrics listener started", "addr", ln.Addr().String())
	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics listener error", "err", err)
		}
	}()
	return nil
}
