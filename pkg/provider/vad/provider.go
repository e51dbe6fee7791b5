// Package vad defines the Classifier interface for frame-level Voice Activity
// Detection backends and the stateful Detector that drives them.
//
// A classifier wraps a recurrent speech model (e.g., Silero VAD) as a pure
// function: given one 30 ms frame of canonical audio and the recurrent state
// produced by the previous call, it returns the probability that the frame
// contains speech together with the next state. The Detector owns the state
// between calls.
//
// A Detector is created per audio stream and must not be shared between
// goroutines. Classifiers may be shared only if the implementation documents
// concurrent safety.
package vad

// Classifier scores single audio frames for speech. It is the capability
// boundary between the Detector and a concrete model runtime.
type Classifier interface {
	// Classify returns the speech probability of frame, which holds
	// FrameSize canonical samples, and the recurrent state that must be passed
	// to the next call. st is the state returned by the previous call (or a
	// zero state). Implementations must not modify or retain st.
	//
	// On error the returned probability and state are ignored.
	Classify(frame []float32, st State) (float32, State, error)

	// Close releases the model and any runtime resources. Calling Close more
	// than once is safe and returns nil.
	Close() error
}

// Loader instantiates a Classifier from a model file. It is the factory used
// by components that open a fresh detector per job (see package chunking).
type Loader interface {
	// Load opens the model at modelPath. Returns an error if the model cannot
	// be read or the runtime cannot be initialised.
	Load(modelPath string) (Classifier, error)
}

// LoaderFunc adapts an ordinary function to the Loader interface.
type LoaderFunc func(modelPath string) (Classifier, error)

// Load calls f(modelPath).
func (f LoaderFunc) Load(modelPath string) (Classifier, error) {
	return f(modelPath)
}
