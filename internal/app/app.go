// Package app wires the segmentscribe subsystems into a file transcription
// pipeline.
//
// The App struct owns the full lifecycle: New creates the decoder, the VAD
// loader, the transcription engines, the vocabulary corrector and the
// transcript cache; TranscribeFile and TranscribeFiles run recordings through
// them; Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithSTT, WithVADLoader, WithStore, etc.). When an option is not provided,
// New creates real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrWong99/segmentscribe/internal/config"
	"github.com/MrWong99/segmentscribe/internal/health"
	"github.com/MrWong99/segmentscribe/internal/observe"
	"github.com/MrWong99/segmentscribe/internal/resilience"
	"github.com/MrWong99/segmentscribe/internal/store"
	"github.com/MrWong99/segmentscribe/internal/store/postgres"
	"github.com/MrWong99/segmentscribe/internal/transcript"
	"github.com/MrWong99/segmentscribe/pkg/audio"
	"github.com/MrWong99/segmentscribe/pkg/audio/decode"
	"github.com/MrWong99/segmentscribe/pkg/chunking"
	"github.com/MrWong99/segmentscribe/pkg/provider/stt"
	"github.com/MrWong99/segmentscribe/pkg/provider/vad"
	"github.com/MrWong99/segmentscribe/pkg/provider/vad/silero"
)

// App owns all subsystem lifetimes and runs the transcription pipeline.
type App struct {
	cfg      *config.Config
	log      *slog.Logger
	level    *slog.LevelVar
	metrics  *observe.Metrics
	registry *config.Registry
	prom     *prometheus.Registry

	// Subsystems, initialised in New and torn down in Shutdown.
	decoder     *decode.Decoder
	loader      vad.Loader
	stt         stt.Provider
	fallback    *resilience.STTFallback
	fallbackCfg resilience.FallbackConfig
	corrector   *transcript.Corrector
	store       store.Store
	health      *health.Handler
	server      *http.Server
	progress    func(path string, percent float64)

	// probes are HTTP endpoints of locally started engines, checked by
	// /readyz.
	probes []engineProbe

	// hints are the per-call recognition settings that survive a reload.
	hintsMu sync.RWMutex
	hints   hints

	// configPath is watched for hot-reloadable changes when set.
	configPath string
	watchOpts  []config.WatcherOption
	watcher    *config.Watcher

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

type engineProbe struct {
	name string
	url  string
}

type hints struct {
	language string
	prompt   string
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSTT injects a transcription engine instead of building the primary and
// fallback engines from the config through the registry.
func WithSTT(p stt.Provider) Option {
	return func(a *App) { a.stt = p }
}

// WithVADLoader injects the loader used to open a detector per file instead of
// the Silero ONNX loader.
func WithVADLoader(l vad.Loader) Option {
	return func(a *App) { a.loader = l }
}

// WithStore injects a transcript cache instead of creating one from config.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithDecoder injects the audio decoder.
func WithDecoder(d *decode.Decoder) Option {
	return func(a *App) { a.decoder = d }
}

// WithMetrics sets the metric instruments. Default: the instruments of an
// [observe.Provider] exporting to the App's Prometheus registry.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithPrometheusRegistry sets the registry served on /metrics and, unless
// WithMetrics is given, exported to. Default: [observe.NewRegistry].
func WithPrometheusRegistry(r *prometheus.Registry) Option {
	return func(a *App) { a.prom = r }
}

// WithRegistry supplies the engine registry. The built-in engines are only
// registered when no registry is supplied.
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithFallbackConfig tunes retries and circuit breakers of the engine chain.
func WithFallbackConfig(cfg resilience.FallbackConfig) Option {
	return func(a *App) { a.fallbackCfg = cfg }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithLevelVar lets [App.ApplyConfig] change the log level of the handler
// that reads lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithProgress registers fn to receive per-file progress in percent.
func WithProgress(fn func(path string, percent float64)) Option {
	return func(a *App) { a.progress = fn }
}

// WithConfigFile watches path, the file cfg was loaded from, and applies
// hot-reloadable edits through [App.ApplyConfig]. The watcher is stopped by
// Shutdown.
func WithConfigFile(path string, opts ...config.WatcherOption) Option {
	return func(a *App) {
		a.configPath = path
		a.watchOpts = opts
	}
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Use Option functions
// to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: engine construction (which
// may start a whisperfile server), store connection and migration, and the
// optional metrics listener. On error, everything started so far is shut down.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg: cfg,
		fallbackCfg: resilience.FallbackConfig{
			Retries: defaultRetries,
		},
		hints: hints{language: cfg.STT.Language, prompt: cfg.STT.Prompt},
	}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.prom == nil {
		a.prom = observe.NewRegistry()
	}
	if a.metrics == nil {
		p, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Telemetry.ServiceVersion,
			Registry:       a.prom,
		})
		if err != nil {
			return nil, fmt.Errorf("app: init telemetry: %w", err)
		}
		a.closers = append(a.closers, func() error {
			return p.Shutdown(context.Background())
		})
		a.metrics = p.Metrics()
	}

	if err := a.init(ctx); err != nil {
		_ = a.Shutdown(context.WithoutCancel(ctx))
		return nil, err
	}
	return a, nil
}

// defaultRetries is the number of extra attempts per engine before failing
// over.
const defaultRetries = 2

func (a *App) init(ctx context.Context) error {
	// ── 1. Transcription engines ─────────────────────────────────────────
	if a.stt == nil {
		if a.registry == nil {
			a.registry = config.NewRegistry()
			a.registerBuiltinEngines(ctx, a.registry)
		}
		if err := a.buildEngines(); err != nil {
			return fmt.Errorf("app: init engines: %w", err)
		}
	}

	// ── 2. VAD ───────────────────────────────────────────────────────────
	if a.loader == nil {
		a.loader = silero.NewLoader(
			silero.WithLibraryPath(a.cfg.VAD.ONNXRuntimeLibrary),
			silero.WithIntraOpThreads(a.cfg.VAD.IntraOpThreads),
		)
	}
	a.loader = &meteredLoader{Loader: a.loader, metrics: a.metrics}

	// ── 3. Decoder ───────────────────────────────────────────────────────
	if a.decoder == nil {
		a.decoder = decode.New(decode.WithLogger(a.log))
	}
	if dir := a.cfg.Chunking.SegmentsDir; dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("app: create segments dir: %w", err)
		}
	}

	// ── 4. Vocabulary correction ─────────────────────────────────────────
	a.corrector = transcript.NewCorrector(nil, a.cfg.Pipeline.Vocabulary,
		transcript.WithCorrectorLogger(a.log))

	// ── 5. Transcript store ──────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return fmt.Errorf("app: init store: %w", err)
	}

	// ── 6. Health checks + metrics listener ──────────────────────────────
	a.initHealth()
	if err := a.startServer(); err != nil {
		return fmt.Errorf("app: start metrics listener: %w", err)
	}

	// ── 7. Config watcher ────────────────────────────────────────────────
	if a.configPath != "" {
		opts := append([]config.WatcherOption{config.WithWatcherLogger(a.log)}, a.watchOpts...)
		w, err := config.NewWatcher(a.configPath, func(old, new *config.Config) {
			a.ApplyConfig(old, new)
		}, opts...)
		if err != nil {
			return fmt.Errorf("app: watch config: %w", err)
		}
		a.watcher = w
		a.closers = append(a.closers, func() error {
			w.Stop()
			return nil
		})
	}

	a.log.Info("pipeline ready",
		"engine", a.cfg.STT.Primary.Name,
		"fallbacks", len(a.cfg.STT.Fallbacks),
		"vocabulary", len(a.cfg.Pipeline.Vocabulary),
		"vad_model", a.cfg.VAD.ModelPath,
	)
	return nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore connects the PostgreSQL cache, or falls back to an in-process
// cache when no DSN is configured.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	dsn := a.cfg.Store.PostgresDSN
	if dsn == "" {
		a.store = store.NewMemory()
		return nil
	}
	s, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return err
	}
	a.store = s
	a.closers = append(a.closers, func() error {
		s.Close()
		return nil
	})
	return nil
}

// chunker returns a Chunker for one file. hook observes every planned segment.
func (a *App) chunker(hook func(chunking.Segment)) *chunking.Chunker {
	opts := []chunking.Option{
		chunking.WithLogger(a.log),
		chunking.WithSegmentHook(hook),
	}
	if t := a.cfg.Chunking.Target; t > 0 {
		opts = append(opts, chunking.WithTargetSamples(audio.SampleIndex(t)))
	}
	if w := a.cfg.Chunking.SearchWindow; w > 0 {
		opts = append(opts, chunking.WithSearchWindow(audio.SampleIndex(w)))
	}
	return chunking.New(a.loader, opts...)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				a.log.Warn("metrics listener shutdown error", "err", err)
			}
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}

// EngineStatus reports the circuit breaker state of every configured engine.
// It returns nil when the engine was injected with [WithSTT].
func (a *App) EngineStatus() []resilience.EntryStatus {
	if a.fallback == nil {
		return nil
	}
	return a.fallback.Status()
}

// Store returns the transcript cache.
func (a *App) Store() store.Store { return a.store }
