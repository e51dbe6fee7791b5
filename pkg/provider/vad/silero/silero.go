// Package silero provides a vad.Classifier backed by the Silero VAD v4 ONNX
// model, executed with ONNX Runtime through github.com/yalue/onnxruntime_go.
//
// The ONNX Runtime shared library is loaded once per process. Its location is
// taken from [WithLibraryPath] on the first classifier created, falling back to
// the ONNXRUNTIME_LIB environment variable and finally to the platform default
// search path.
//
// Usage:
//
//	clf, err := silero.New("silero_vad.onnx", silero.WithLibraryPath("/usr/lib/libonnxruntime.so"))
//	det := vad.NewDetector(clf)
//	res, err := det.PushFrame(frame)
package silero

import (
	"errors"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/MrWong99/segmentscribe/pkg/provider/vad"
)

// LibraryEnv is the environment variable consulted for the ONNX Runtime
// shared library path when no explicit path is configured.
const LibraryEnv = "ONNXRUNTIME_LIB"

var (
	inputNames  = []string{"input", "sr", "h", "c"}
	outputNames = []string{"output", "hn", "cn"}
)

// ErrFrameSize is returned when a frame does not hold exactly vad.FrameSize
// samples.
var ErrFrameSize = errors.New("silero: frame must hold exactly 480 samples")

var (
	envOnce sync.Once
	envErr  error
)

// initEnvironment loads the ONNX Runtime library exactly once.
func initEnvironment(libPath string) error {
	envOnce.Do(func() {
		if libPath == "" {
			libPath = os.Getenv(LibraryEnv)
		}
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			envErr = fmt.Errorf("silero: initialise onnxruntime: %w", err)
		}
	})
	return envErr
}

// Compile-time assertion that Classifier implements vad.Classifier.
var _ vad.Classifier = (*Classifier)(nil)

// Option is a functional option for configuring a Classifier.
type Option func(*Classifier)

// WithLibraryPath sets the path to the ONNX Runtime shared library. Only the
// first classifier created in a process can influence the library path.
func WithLibraryPath(path string) Option {
	return func(c *Classifier) {
		c.libPath = path
	}
}

// WithIntraOpThreads sets the number of threads ONNX Runtime uses inside a
// single operator. Defaults to 1.
func WithIntraOpThreads(n int) Option {
	return func(c *Classifier) {
		c.intraOpThreads = n
	}
}

// Classifier runs Silero VAD inference. A Classifier serialises its own Run
// calls and is safe for concurrent use, but per-stream state lives in
// vad.Detector.
type Classifier struct {
	libPath        string
	intraOpThreads int

	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	closed  bool
}

// New loads the Silero model at modelPath.
func New(modelPath string, opts ...Option) (*Classifier, error) {
	c := &Classifier{intraOpThreads: 1}
	for _, o := range opts {
		o(c)
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("silero: model: %w", err)
	}
	if err := initEnvironment(c.libPath); err != nil {
		return nil, err
	}

	so, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("silero: create session options: %w", err)
	}
	defer so.Destroy()
	if err := so.SetIntraOpNumThreads(c.intraOpThreads); err != nil {
		return nil, fmt.Errorf("silero: set intra-op threads: %w", err)
	}
	if err := so.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("silero: set inter-op threads: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, so)
	if err != nil {
		return nil, fmt.Errorf("silero: create session for %q: %w", modelPath, err)
	}
	c.session = session
	return c, nil
}

// NewLoader returns a vad.Loader that creates a Classifier per model path with
// the given options.
func NewLoader(opts ...Option) vad.Loader {
	return vad.LoaderFunc(func(modelPath string) (vad.Classifier, error) {
		return New(modelPath, opts...)
	})
}

// Classify implements vad.Classifier.
func (c *Classifier) Classify(frame []float32, st vad.State) (float32, vad.State, error) {
	if len(frame) != vad.FrameSize {
		return 0, vad.State{}, fmt.Errorf("%w: got %d", ErrFrameSize, len(frame))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, vad.State{}, errors.New("silero: classifier is closed")
	}

	input, err := ort.NewTensor(ort.NewShape(1, vad.FrameSize), append([]float32(nil), frame...))
	if err != nil {
		return 0, vad.State{}, fmt.Errorf("silero: input tensor: %w", err)
	}
	defer input.Destroy()

	sr, err := ort.NewTensor(ort.NewShape(1), []int64{vad.SampleRate})
	if err != nil {
		return 0, vad.State{}, fmt.Errorf("silero: sr tensor: %w", err)
	}
	defer sr.Destroy()

	stateShape := ort.NewShape(st.Shape[0], st.Shape[1], st.Shape[2])
	h, err := ort.NewTensor(stateShape, append([]float32(nil), st.H...))
	if err != nil {
		return 0, vad.State{}, fmt.Errorf("silero: h tensor: %w", err)
	}
	defer h.Destroy()
	cell, err := ort.NewTensor(stateShape, append([]float32(nil), st.C...))
	if err != nil {
		return 0, vad.State{}, fmt.Errorf("silero: c tensor: %w", err)
	}
	defer cell.Destroy()

	// Nil outputs are allocated by onnxruntime with the shapes the model emits.
	outputs := []ort.Value{nil, nil, nil}
	if err := c.session.Run([]ort.Value{input, sr, h, cell}, outputs); err != nil {
		return 0, vad.State{}, fmt.Errorf("silero: run: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				_ = o.Destroy()
			}
		}
	}()

	prob, err := floatData(outputs[0])
	if err != nil {
		return 0, vad.State{}, err
	}
	if len(prob) == 0 {
		return 0, vad.State{}, errors.New("silero: empty probability tensor")
	}
	next, err := readState(outputs[1], outputs[2])
	if err != nil {
		return 0, vad.State{}, err
	}
	return prob[0], next, nil
}

// Close destroys the ONNX session. The process-wide runtime environment stays
// loaded for other classifiers.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.session.Destroy(); err != nil {
		return fmt.Errorf("silero: destroy session: %w", err)
	}
	return nil
}

func floatData(v ort.Value) ([]float32, error) {
	t, ok := v.(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("silero: unexpected output type %T", v)
	}
	return t.GetData(), nil
}

// readState copies the hn and cn outputs into a vad.State. A tensor that is
// not rank 3 yields vad.ErrStateShape.
func readState(hn, cn ort.Value) (vad.State, error) {
	hData, err := floatData(hn)
	if err != nil {
		return vad.State{}, err
	}
	cData, err := floatData(cn)
	if err != nil {
		return vad.State{}, err
	}
	shape := hn.GetShape()
	if len(shape) != 3 {
		return vad.State{}, fmt.Errorf("%w: hn has rank %d", vad.ErrStateShape, len(shape))
	}
	return vad.State{
		Shape: vad.Shape{shape[0], shape[1], shape[2]},
		H:     append([]float32(nil), hData...),
		C:     append([]float32(nil), cData...),
	}, nil
}
