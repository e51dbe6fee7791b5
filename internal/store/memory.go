package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process [Store]. Entries are lost when the process exits.
type Memory struct {
	mu      sync.RWMutex
	entries map[Key]Entry
	now     func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty [Memory] store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[Key]Entry), now: time.Now}
}

// Get implements [Store].
func (m *Memory) Get(ctx context.Context, key Key) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return Entry{}, fmt.Errorf("store: get %s/%s: %w", key.Engine, short(key.AudioSHA256), ErrNotFound)
	}
	e.Segments = slices.Clone(e.Segments)
	return e, nil
}

// Put implements [Store].
func (m *Memory) Put(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.Segments = slices.Clone(e.Segments)
	e.CreatedAt = m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Key] = e
	return nil
}

// Delete implements [Store].
func (m *Memory) Delete(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Search implements [Store] with case-insensitive word containment.
func (m *Memory) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	words := strings.Fields(strings.ToLower(query))
	m.mu.RLock()
	out := []Entry{}
	for _, e := range m.entries {
		text := strings.ToLower(e.Text)
		if len(words) > 0 && !containsAll(text, words) {
			continue
		}
		e.Segments = slices.Clone(e.Segments)
		out = append(out, e)
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b Entry) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ping implements [Store].
func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

// Close implements [Store].
func (m *Memory) Close() {}

// Len returns the number of cached entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func containsAll(text string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(text, w) {
			return false
		}
	}
	return true
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
