package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/segmentscribe/pkg/audio"
	"github.com/MrWong99/segmentscribe/pkg/provider/vad"
)

// ValidEngineNames lists the built-in STT engine names.
// Used by [Validate] to warn about unrecognised engine names.
var ValidEngineNames = []string{"whisper", "whisperfile", "whisper-native", "openai", "deepgram"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// VAD
	if cfg.VAD.ModelPath == "" {
		errs = append(errs, errors.New("vad.model_path is required"))
	}
	if cfg.VAD.IntraOpThreads < 0 {
		errs = append(errs, fmt.Errorf("vad.intra_op_threads %d must not be negative", cfg.VAD.IntraOpThreads))
	}

	// Chunking
	if cfg.Chunking.Target < 0 {
		errs = append(errs, fmt.Errorf("chunking.target %s must not be negative", cfg.Chunking.Target))
	} else if cfg.Chunking.Target > 0 && audio.SampleIndex(cfg.Chunking.Target) < vad.FrameSize {
		errs = append(errs, fmt.Errorf("chunking.target %s is shorter than one VAD frame (%s)",
			cfg.Chunking.Target, audio.Duration(vad.FrameSize)))
	}
	if cfg.Chunking.SearchWindow < 0 {
		errs = append(errs, fmt.Errorf("chunking.search_window %s must not be negative", cfg.Chunking.SearchWindow))
	}
	if cfg.Chunking.Target > 0 && cfg.Chunking.SearchWindow > cfg.Chunking.Target {
		errs = append(errs, fmt.Errorf("chunking.search_window %s exceeds chunking.target %s", cfg.Chunking.SearchWindow, cfg.Chunking.Target))
	}

	// STT engines
	if cfg.STT.Primary.Name == "" {
		errs = append(errs, errors.New("stt.primary.name is required"))
	}
	validateEngineName("stt.primary", cfg.STT.Primary.Name)
	for i, fb := range cfg.STT.Fallbacks {
		prefix := fmt.Sprintf("stt.fallbacks[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		validateEngineName(prefix, fb.Name)
	}

	// Pipeline
	if cfg.Pipeline.MaxConcurrentFiles < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_concurrent_files %d must not be negative", cfg.Pipeline.MaxConcurrentFiles))
	}
	seen := make(map[string]int, len(cfg.Pipeline.Vocabulary))
	for i, word := range cfg.Pipeline.Vocabulary {
		if word == "" {
			errs = append(errs, fmt.Errorf("pipeline.vocabulary[%d] is empty", i))
			continue
		}
		if prev, ok := seen[word]; ok {
			errs = append(errs, fmt.Errorf("pipeline.vocabulary[%d] %q is a duplicate of pipeline.vocabulary[%d]", i, word, prev))
		}
		seen[word] = i
	}

	// Store availability
	if cfg.Store.PostgresDSN == "" {
		slog.Debug("store.postgres_dsn is empty; transcripts will not be cached")
	}

	return errors.Join(errs...)
}

// validateEngineName logs a warning if name is non-empty and not one of the
// [ValidEngineNames].
func validateEngineName(field, name string) {
	if name == "" || slices.Contains(ValidEngineNames, name) {
		return
	}
	slog.Warn("unknown engine name, may be a typo or third-party engine",
		"field", field,
		"name", name,
		"known", ValidEngineNames,
	)
}
