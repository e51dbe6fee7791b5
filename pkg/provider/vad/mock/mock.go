// Package mock provides test doubles for the vad package interfaces.
//
// Use Classifier to script speech probabilities frame by frame and inspect the
// frames and states that were submitted. Use Loader to hand a Classifier to
// components that open their own detector.
//
// Example:
//
//	clf := &mock.Classifier{Probabilities: []float32{0.9, 0.9, 0.1}}
//	det := vad.NewDetector(clf)
package mock

import (
	"sync"

	"github.com/MrWong99/segmentscribe/pkg/provider/vad"
)

// ClassifyCall records a single invocation of Classifier.Classify.
type ClassifyCall struct {
	// Frame is a copy of the samples passed to Classify.
	Frame []float32

	// State is a copy of the state passed to Classify.
	State vad.State
}

// Classifier is a mock implementation of vad.Classifier.
type Classifier struct {
	mu sync.Mutex

	// Probabilities are returned in order, one per call. Once exhausted,
	// Default is returned.
	Probabilities []float32

	// Default is returned when Probabilities is exhausted.
	Default float32

	// ProbabilityFunc, if set, takes precedence over Probabilities and receives
	// the frame index and samples.
	ProbabilityFunc func(index int, frame []float32) float32

	// Errs maps call indices to errors returned for that call.
	Errs map[int]error

	// NextState, if set, computes the returned state. Otherwise the input state
	// is returned unchanged.
	NextState func(st vad.State) vad.State

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// ClassifyCalls records every call to Classify in order.
	ClassifyCalls []ClassifyCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Classify records the call and returns the scripted probability and state.
func (c *Classifier) Classify(frame []float32, st vad.State) (float32, vad.State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := len(c.ClassifyCalls)
	c.ClassifyCalls = append(c.ClassifyCalls, ClassifyCall{
		Frame: append([]float32(nil), frame...),
		State: st.Clone(),
	})
	if err := c.Errs[idx]; err != nil {
		return 0, vad.State{}, err
	}

	var p float32
	switch {
	case c.ProbabilityFunc != nil:
		p = c.ProbabilityFunc(idx, frame)
	case idx < len(c.Probabilities):
		p = c.Probabilities[idx]
	default:
		p = c.Default
	}

	next := st
	if c.NextState != nil {
		next = c.NextState(st)
	}
	return p, next, nil
}

// Close records the call and returns CloseErr.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CloseCallCount++
	return c.CloseErr
}

// Calls returns the number of Classify calls so far. Thread-safe.
func (c *Classifier) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ClassifyCalls)
}

// ResetCalls clears all recorded call history. Thread-safe.
func (c *Classifier) ResetCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ClassifyCalls = nil
	c.CloseCallCount = 0
}

// Ensure Classifier implements vad.Classifier at compile time.
var _ vad.Classifier = (*Classifier)(nil)

// Loader is a mock implementation of vad.Loader.
type Loader struct {
	mu sync.Mutex

	// Classifier is returned by Load. If nil, Load returns a new default
	// Classifier.
	Classifier vad.Classifier

	// LoadErr, if non-nil, is returned as the error from Load.
	LoadErr error

	// LoadCalls records the model path of every call to Load in order.
	LoadCalls []string
}

// Load records the call and returns Classifier, LoadErr.
func (l *Loader) Load(modelPath string) (vad.Classifier, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.LoadCalls = append(l.LoadCalls, modelPath)
	if l.LoadErr != nil {
		return nil, l.LoadErr
	}
	if l.Classifier != nil {
		return l.Classifier, nil
	}
	return &Classifier{}, nil
}

// Ensure Loader implements vad.Loader at compile time.
var _ vad.Loader = (*Loader)(nil)
