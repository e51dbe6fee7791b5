// Package store caches finished transcripts so a recording is only processed
// once per engine and settings.
//
// Entries are keyed by the SHA-256 of the audio file, the engine name and a
// variant string that captures every setting that changes the output
// (language, prompt, vocabulary, chunk sizes). [postgres.Store] is the
// production backend; [Memory] serves single-process runs and tests.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"
)

// ErrNotFound is returned by [Store.Get] when no entry matches the key.
var ErrNotFound = errors.New("store: transcript not found")

// Key identifies a cached transcript.
type Key struct {
	// AudioSHA256 is the lower-case hex SHA-256 of the source file bytes.
	AudioSHA256 string

	// Engine is the configured STT engine name, e.g. "whisper" or "openai".
	Engine string

	// Variant summarises output-relevant settings. See [Variant].
	Variant string
}

// Segment is one chunk of the recording with its transcript.
type Segment struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Cut   string        `json:"cut"`
	Text  string        `json:"text"`
}

// Entry is a cached transcript.
type Entry struct {
	Key

	// SourcePath is the path the audio was read from. Informational only.
	SourcePath string

	Text          string
	Language      string
	Segments      []Segment
	AudioDuration time.Duration

	// CreatedAt is set by the store on write.
	CreatedAt time.Time
}

// Store is the transcript cache. Implementations must be safe for concurrent
// use.
type Store interface {
	// Get returns the entry for key or an error wrapping [ErrNotFound].
	Get(ctx context.Context, key Key) (Entry, error)

	// Put inserts or replaces the entry for e.Key.
	Put(ctx context.Context, e Entry) error

	// Delete removes the entry for key. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key Key) error

	// Search returns entries whose text contains all words of query, newest
	// first. limit <= 0 means no limit.
	Search(ctx context.Context, query string, limit int) ([]Entry, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close()
}

// HashFile returns the hex SHA-256 of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("store: hash %s: %w", path, err)
	}
	defer f.Close()
	return HashReader(f)
}

// HashReader returns the hex SHA-256 of everything read from r.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("store: hash: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Variant builds a stable variant string from name=value settings. Settings
// are sorted so the order of the arguments does not matter, and the result is
// hashed to keep keys short.
func Variant(settings map[string]string) string {
	if len(settings) == 0 {
		return ""
	}
	parts := make([]string, 0, len(settings))
	for k, v := range settings {
		parts = append(parts, k+"="+v)
	}
	slices.Sort(parts)
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:8])
}
