package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MrWong99/segmentscribe/internal/config"
	"github.com/MrWong99/segmentscribe/internal/observe"
	"github.com/MrWong99/segmentscribe/internal/resilience"
	"github.com/MrWong99/segmentscribe/pkg/provider/stt"
	"github.com/MrWong99/segmentscribe/pkg/provider/stt/deepgram"
	"github.com/MrWong99/segmentscribe/pkg/provider/stt/openai"
	"github.com/MrWong99/segmentscribe/pkg/provider/stt/whisper"
)

// registerBuiltinEngines wires the engines that ship with segmentscribe into
// reg. HTTP engines get a client instrumented with [observe.Transport];
// whisperfile servers are started with ctx and stopped on Shutdown.
func (a *App) registerBuiltinEngines(ctx context.Context, reg *config.Registry) {
	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		return whisper.New(entry.BaseURL, a.whisperOptions(entry)...)
	})

	reg.RegisterSTT("whisperfile", func(entry config.ProviderEntry) (stt.Provider, error) {
		binary := entry.StringOption("binary", "whisperfile")
		srv, err := whisper.NewServer(binary, entry.Model,
			whisper.WithHost(entry.StringOption("host", "127.0.0.1")),
			whisper.WithPort(entry.IntOption("port", 8080)),
			whisper.WithStartupTimeout(entry.DurationOption("startup_timeout", 30*time.Second)),
			whisper.WithExtraArgs(entry.StringSliceOption("extra_args")...),
		)
		if err != nil {
			return nil, err
		}
		if err := srv.Start(ctx); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, srv.Stop)
		a.probes = append(a.probes, engineProbe{name: entry.Name, url: srv.URL()})
		a.log.Info("whisperfile server started", "url", srv.URL(), "model", entry.Model)
		return srv.Provider(a.whisperOptions(entry)...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.NativeOption
		if entry.BoolOption("translate", false) {
			opts = append(opts, whisper.WithNativeTranslate(true))
		}
		if n := entry.IntOption("threads", 0); n > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(n)))
		}
		p, err := whisper.NewNative(entry.Model, opts...)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, p.Close)
		return &meteredEngine{name: entry.Name, Provider: p, metrics: a.metrics}, nil
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []openai.Option{openai.WithHTTPClient(a.engineClient(entry.Name))}
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := entry.StringOption("organization", ""); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if d := entry.DurationOption("timeout", 0); d > 0 {
			opts = append(opts, openai.WithTimeout(d))
		}
		if t := entry.FloatOption("temperature", -1); t >= 0 {
			opts = append(opts, openai.WithTemperature(t))
		}
		model := entry.Model
		if model == "" {
			model = openai.DefaultModel
		}
		return openai.New(entry.APIKey, model, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []deepgram.Option{deepgram.WithHTTPClient(a.engineClient(entry.Name))}
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})
}

func (a *App) whisperOptions(entry config.ProviderEntry) []whisper.Option {
	opts := []whisper.Option{whisper.WithHTTPClient(a.engineClient(entry.Name))}
	if entry.Model != "" && entry.Name == "whisper" {
		opts = append(opts, whisper.WithModel(entry.Model))
	}
	if entry.BoolOption("translate", false) {
		opts = append(opts, whisper.WithTranslate(true))
	}
	if t := entry.FloatOption("temperature", -1); t >= 0 {
		opts = append(opts, whisper.WithTemperature(t))
	}
	if f := entry.StringOption("response_format", ""); f != "" {
		opts = append(opts, whisper.WithResponseFormat(f))
	}
	return opts
}

// engineClient returns an HTTP client whose requests are counted and traced
// under the engine name.
func (a *App) engineClient(name string) *http.Client {
	return &http.Client{Transport: observe.Transport(a.metrics, name, "stt", http.DefaultTransport)}
}

// buildEngines creates the primary and fallback engines named in the config and
// chains them behind circuit breakers.
func (a *App) buildEngines() error {
	primary, err := a.createEngine(a.cfg.STT.Primary)
	if err != nil {
		return err
	}
	fbCfg := a.fallbackCfg
	if fbCfg.Logger == nil {
		fbCfg.Logger = a.log
	}
	fb := resilience.NewSTTFallback(primary, a.cfg.STT.Primary.Name, fbCfg)
	fb.OnServed(func(name string) {
		if name != a.cfg.STT.Primary.Name {
			a.log.Debug("segment served by fallback engine", "engine", name)
		}
	})
	for _, entry := range a.cfg.STT.Fallbacks {
		p, err := a.createEngine(entry)
		if err != nil {
			return err
		}
		fb.AddFallback(entry.Name, p)
	}
	a.fallback = fb
	a.stt = fb
	return nil
}

func (a *App) createEngine(entry config.ProviderEntry) (stt.Provider, error) {
	p, err := a.registry.CreateSTT(entry)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		return nil, fmt.Errorf("%w (known: %v)", err, a.registry.STTNames())
	}
	if err != nil {
		return nil, fmt.Errorf("create stt engine %q: %w", entry.Name, err)
	}
	a.log.Info("engine created", "kind", "stt", "name", entry.Name, "model", entry.Model)
	return p, nil
}

// meteredEngine records request metrics for engines that do not talk HTTP.
type meteredEngine struct {
	stt.Provider
	name    string
	metrics *observe.Metrics
}

func (e *meteredEngine) Transcribe(ctx context.Context, samples []float32, opts stt.Options) (stt.Transcript, error) {
	tr, err := e.Provider.Transcribe(ctx, samples, opts)
	if err != nil {
		e.metrics.RecordProviderRequest(ctx, e.name, "stt", "error")
		e.metrics.RecordProviderError(ctx, e.name, "stt")
		return tr, err
	}
	e.metrics.RecordProviderRequest(ctx, e.name, "stt", "ok")
	return tr, nil
}
