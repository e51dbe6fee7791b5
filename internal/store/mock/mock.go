// Package mock provides a configurable test double for store.Store.
//
// Typical usage:
//
//	st := &mock.Store{GetResult: store.Entry{Text: "cached"}}
//	// inject st into the system under test ...
//	if got := st.CallCount("Put"); got != 1 {
//	    t.Errorf("expected 1 Put call, got %d", got)
//	}
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/segmentscribe/internal/store"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments, in order.
	Args []any
}

// Store is a test double for [store.Store]. When GetResult is unset and
// GetErr is nil, Get returns an error wrapping [store.ErrNotFound].
type Store struct {
	mu    sync.Mutex
	calls []Call

	// GetResult is returned by Get when GetFound is true.
	GetResult store.Entry
	GetFound  bool
	GetErr    error

	PutErr    error
	DeleteErr error

	SearchResult []store.Entry
	SearchErr    error

	PingErr error

	// Puts records every entry passed to Put.
	Puts []store.Entry

	closed bool
}

var _ store.Store = (*Store)(nil)

func (s *Store) record(method string, args ...any) {
	s.calls = append(s.calls, Call{Method: method, Args: args})
}

// Get implements [store.Store].
func (s *Store) Get(_ context.Context, key store.Key) (store.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Get", key)
	if s.GetErr != nil {
		return store.Entry{}, s.GetErr
	}
	if !s.GetFound {
		return store.Entry{}, fmt.Errorf("mock store: %w", store.ErrNotFound)
	}
	return s.GetResult, nil
}

// Put implements [store.Store].
func (s *Store) Put(_ context.Context, e store.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Put", e)
	if s.PutErr != nil {
		return s.PutErr
	}
	s.Puts = append(s.Puts, e)
	return nil
}

// Delete implements [store.Store].
func (s *Store) Delete(_ context.Context, key store.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Delete", key)
	return s.DeleteErr
}

// Search implements [store.Store].
func (s *Store) Search(_ context.Context, query string, limit int) ([]store.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Search", query, limit)
	if s.SearchErr != nil {
		return nil, s.SearchErr
	}
	if s.SearchResult == nil {
		return []store.Entry{}, nil
	}
	return s.SearchResult, nil
}

// Ping implements [store.Store].
func (s *Store) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Ping")
	return s.PingErr
}

// Close implements [store.Store].
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Close")
	s.closed = true
}

// Closed reports whether Close was called.
func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Calls returns a copy of all recorded calls.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallCount returns how often method was called.
func (s *Store) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}
