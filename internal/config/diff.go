package config

import (
	"fmt"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	VocabularyChanged bool
	AddedWords        []string
	RemovedWords      []string

	// PromptChanged is true if stt.language or stt.prompt changed.
	PromptChanged bool

	// RestartRequired lists changed fields that only take effect after a
	// restart (e.g., "stt.primary", "vad.model_path").
	RestartRequired []string
}

// Changed reports whether d contains any difference.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.VocabularyChanged || d.PromptChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Vocabulary, compared as sets.
	for _, w := range new.Pipeline.Vocabulary {
		if !slices.Contains(old.Pipeline.Vocabulary, w) {
			d.AddedWords = append(d.AddedWords, w)
		}
	}
	for _, w := range old.Pipeline.Vocabulary {
		if !slices.Contains(new.Pipeline.Vocabulary, w) {
			d.RemovedWords = append(d.RemovedWords, w)
		}
	}
	d.VocabularyChanged = len(d.AddedWords) > 0 || len(d.RemovedWords) > 0

	if old.STT.Language != new.STT.Language || old.STT.Prompt != new.STT.Prompt {
		d.PromptChanged = true
	}

	// Fields that are wired once at startup.
	if !entryEqual(old.STT.Primary, new.STT.Primary) {
		d.RestartRequired = append(d.RestartRequired, "stt.primary")
	}
	if !slices.EqualFunc(old.STT.Fallbacks, new.STT.Fallbacks, entryEqual) {
		d.RestartRequired = append(d.RestartRequired, "stt.fallbacks")
	}
	if old.VAD != new.VAD {
		d.RestartRequired = append(d.RestartRequired, "vad")
	}
	if old.Chunking != new.Chunking {
		d.RestartRequired = append(d.RestartRequired, "chunking")
	}
	if old.Pipeline.MaxConcurrentFiles != new.Pipeline.MaxConcurrentFiles {
		d.RestartRequired = append(d.RestartRequired, "pipeline.max_concurrent_files")
	}
	if old.Store != new.Store {
		d.RestartRequired = append(d.RestartRequired, "store")
	}
	if old.Server.MetricsAddr != new.Server.MetricsAddr || old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}

	return d
}

// entryEqual compares two provider entries. Options are compared by key set
// and formatted value since they may hold nested maps.
func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, av := range a.Options {
		bv, ok := b.Options[k]
		if !ok || !sameValue(av, bv) {
			return false
		}
	}
	return true
}

func sameValue(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}
