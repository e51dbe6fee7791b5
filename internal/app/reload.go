package app

import (
	"errors"
	"io"
	"log/slog"

	"github.com/MrWong99/segmentscribe/internal/config"
)

// NewLogger returns a text logger writing to w together with the level
// variable controlling it. Pass the variable to [WithLevelVar] so config
// reloads can change the level.
func NewLogger(w io.Writer, level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lv := new(slog.LevelVar)
	lv.Set(Level(level))
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv})), lv
}

// Level maps a config log level to its slog level. Unknown levels map to
// info.
func Level(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ApplyConfig applies the hot-reloadable part of a config change and returns
// the diff. [WithConfigFile] calls it for every edit of the watched file.
//
// Log level, vocabulary, language and prompt take effect for files started
// afterwards. Other changes are logged as requiring a restart.
func (a *App) ApplyConfig(old, new *config.Config) config.ConfigDiff {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(Level(d.NewLogLevel))
		a.log.Info("log level changed", "level", d.NewLogLevel)
	}

	if d.VocabularyChanged {
		a.corrector.SetVocabulary(new.Pipeline.Vocabulary)
		a.log.Info("vocabulary reloaded",
			"added", d.AddedWords,
			"removed", d.RemovedWords,
			"size", len(new.Pipeline.Vocabulary),
		)
	}

	if d.PromptChanged {
		a.hintsMu.Lock()
		a.hints = hints{language: new.STT.Language, prompt: new.STT.Prompt}
		a.hintsMu.Unlock()
		a.log.Info("recognition hints changed", "language", new.STT.Language)
	}

	if len(d.RestartRequired) > 0 {
		a.log.Warn("config changes require a restart", "fields", d.RestartRequired)
	}
	return d
}

// ReloadConfig re-reads the file given to [WithConfigFile] without waiting for
// the next poll, for example on SIGHUP. It reports whether a new revision was
// applied.
func (a *App) ReloadConfig() (bool, error) {
	if a.watcher == nil {
		return false, errors.New("app: no config file is watched")
	}
	return a.watcher.Reload()
}
