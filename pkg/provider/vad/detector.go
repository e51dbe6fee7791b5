package vad

import (
	"errors"
	"fmt"
)

// ErrStateShape is returned when a classifier produces a recurrent state whose
// shape differs from the carried state. It indicates a model incompatible with
// this package and is not recoverable.
var ErrStateShape = errors.New("vad: state shape mismatch")

// Detector is a stateful frame scorer for a single audio stream. It carries the
// recurrent state between PushFrame calls.
type Detector struct {
	clf    Classifier
	state  State
	frames int
}

// NewDetector returns a Detector with a zeroed state that scores frames with clf.
func NewDetector(clf Classifier) *Detector {
	return &Detector{clf: clf, state: NewState()}
}

// Open loads a classifier through l and wraps it in a Detector.
func Open(l Loader, modelPath string) (*Detector, error) {
	clf, err := l.Load(modelPath)
	if err != nil {
		return nil, fmt.Errorf("vad: load model %q: %w", modelPath, err)
	}
	return NewDetector(clf), nil
}

// PushFrame scores frame and advances the recurrent state.
//
// If the classifier fails, the error is returned and the carried state is left
// untouched, so the next call continues from the last good state. A state of
// the wrong shape yields ErrStateShape.
func (d *Detector) PushFrame(frame []float32) (Result, error) {
	prob, next, err := d.clf.Classify(frame, d.state.Clone())
	if err != nil {
		return Result{}, fmt.Errorf("vad: classify frame %d: %w", d.frames, err)
	}
	if !next.conforms(d.state.Shape) {
		return Result{}, fmt.Errorf("%w: got %s with %d/%d values, want %s",
			ErrStateShape, next.Shape, len(next.H), len(next.C), d.state.Shape)
	}
	d.state = next
	d.frames++
	return Result{Probability: prob}, nil
}

// Reset zeroes the recurrent state. Frames pushed after Reset are scored as if
// the Detector were new.
func (d *Detector) Reset() {
	d.state.zero()
	d.frames = 0
}

// State returns a copy of the carried recurrent state.
func (d *Detector) State() State {
	return d.state.Clone()
}

// Frames returns the number of frames scored since creation or the last Reset.
func (d *Detector) Frames() int {
	return d.frames
}

// Close releases the underlying classifier.
func (d *Detector) Close() error {
	return d.clf.Close()
}
