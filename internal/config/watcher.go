package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] stats its file.
const DefaultWatchInterval = 5 * time.Second

// Watcher polls a config file and hands every changed revision that passes
// [Validate] to a callback. A revision that fails to load is logged and the
// last good config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)
	log      *slog.Logger

	mu      sync.Mutex
	current *Config
	rev     revision

	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// revision fingerprints one version of the file. Stat fields gate the more
// expensive read; the digest decides whether the content really changed.
type revision struct {
	modTime time.Time
	size    int64
	digest  [sha256.Size]byte
}

func (r revision) statMatches(info os.FileInfo) bool {
	return r.modTime.Equal(info.ModTime()) && r.size == info.Size()
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values keep
// [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatcherLogger sets the logger for reload and rejection messages.
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// NewWatcher loads path and starts polling it. onChange may be nil; it runs on
// the polling goroutine, or on the caller's goroutine for [Watcher.Reload].
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onChange: onChange,
		log:      slog.Default(),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}

	cfg, rev, err := readRevision(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.rev = cfg, rev

	go w.run()
	return w, nil
}

// Current returns the last config that loaded successfully.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Reload checks the file immediately, bypassing the stat gate. It reports
// whether a new revision was applied. A load error leaves the current config
// in place and is returned.
func (w *Watcher) Reload() (bool, error) {
	return w.apply(true)
}

// Stop ends polling and waits for an in-flight callback to return. It is safe
// to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.stopped
}

func (w *Watcher) run() {
	defer close(w.stopped)
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-t.C:
			if _, err := w.apply(false); err != nil {
				w.log.Warn("config: keeping previous config", "path", w.path, "err", err)
			}
		}
	}
}

// apply loads the file when it changed and swaps it in. Without force an
// unchanged stat skips the read.
func (w *Watcher) apply(force bool) (bool, error) {
	if !force {
		info, err := os.Stat(w.path)
		if err != nil {
			return false, err
		}
		w.mu.Lock()
		same := w.rev.statMatches(info)
		w.mu.Unlock()
		if same {
			return false, nil
		}
	}

	cfg, rev, err := readRevision(w.path)
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	if rev.digest == w.rev.digest {
		w.rev = rev
		w.mu.Unlock()
		return false, nil
	}
	old := w.current
	w.current, w.rev = cfg, rev
	w.mu.Unlock()

	w.log.Info("config: reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
	return true, nil
}

// readRevision parses and validates path and fingerprints what it read.
func readRevision(path string) (*Config, revision, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, revision{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, revision{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, revision{}, err
	}
	return cfg, revision{modTime: info.ModTime(), size: info.Size(), digest: sha256.Sum256(data)}, nil
}
