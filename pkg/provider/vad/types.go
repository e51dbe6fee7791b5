package vad

import "fmt"

const (
	// FrameSize is the number of canonical samples (30 ms at 16 kHz) scored
	// per Classify call.
	FrameSize = 480

	// SampleRate is the sample rate, in Hz, frames are expected at.
	SampleRate = 16000

	// SpeechThreshold is the probability above which a frame counts as speech.
	SpeechThreshold = 0.5
)

// StateShape is the shape of each recurrent state tensor: (layers, batch, units).
var StateShape = Shape{2, 1, 64}

// Shape is the dimensions of a rank-3 state tensor.
type Shape [3]int64

// Len returns the number of elements of a tensor with this shape.
func (s Shape) Len() int {
	return int(s[0] * s[1] * s[2])
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d, %d, %d)", s[0], s[1], s[2])
}

// State is the recurrent hidden and cell state carried between frames. H and
// C are row-major tensors of the given Shape.
type State struct {
	Shape Shape
	H     []float32
	C     []float32
}

// NewState returns a zeroed state of StateShape.
func NewState() State {
	return State{
		Shape: StateShape,
		H:     make([]float32, StateShape.Len()),
		C:     make([]float32, StateShape.Len()),
	}
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	return State{
		Shape: s.Shape,
		H:     append([]float32(nil), s.H...),
		C:     append([]float32(nil), s.C...),
	}
}

// conforms reports whether s has exactly the given shape and matching data
// lengths.
func (s State) conforms(shape Shape) bool {
	return s.Shape == shape && len(s.H) == shape.Len() && len(s.C) == shape.Len()
}

// zero clears H and C in place.
func (s *State) zero() {
	clear(s.H)
	clear(s.C)
}

// Result is the outcome of scoring one frame.
type Result struct {
	// Probability is the speech probability in [0, 1].
	Probability float32
}

// IsSpeech reports whether Probability exceeds SpeechThreshold.
func (r Result) IsSpeech() bool {
	return r.Probability > SpeechThreshold
}
