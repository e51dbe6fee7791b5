package silero_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/segmentscribe/pkg/provider/vad"
	"github.com/MrWong99/segmentscribe/pkg/provider/vad/silero"
)

// modelPath returns the Silero model path from the environment or skips.
func modelPath(t *testing.T) string {
	t.Helper()
	p := os.Getenv("SEGMENTSCRIBE_SILERO_MODEL")
	if p == "" {
		t.Skip("SEGMENTSCRIBE_SILERO_MODEL not set; skipping Silero integration test")
	}
	if os.Getenv(silero.LibraryEnv) == "" {
		t.Skipf("%s not set; skipping Silero integration test", silero.LibraryEnv)
	}
	return p
}

func TestNew_MissingModel(t *testing.T) {
	_, err := silero.New(filepath.Join(t.TempDir(), "missing.onnx"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("got %v, want os.ErrNotExist", err)
	}
}

func TestLoader_MissingModel(t *testing.T) {
	l := silero.NewLoader()
	if _, err := l.Load(filepath.Join(t.TempDir(), "missing.onnx")); err == nil {
		t.Fatal("expected error for missing model")
	}
}

func TestClassifier_Silence(t *testing.T) {
	clf, err := silero.New(modelPath(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	det := vad.NewDetector(clf)
	defer det.Close()

	frame := make([]float32, vad.FrameSize)
	for i := range 20 {
		res, err := det.PushFrame(frame)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if res.IsSpeech() {
			t.Errorf("frame %d: silence classified as speech (p=%v)", i, res.Probability)
		}
	}
	if st := det.State(); st.Shape != vad.StateShape {
		t.Errorf("state shape: got %s, want %s", st.Shape, vad.StateShape)
	}
}

func TestClassifier_ResetReplay(t *testing.T) {
	clf, err := silero.New(modelPath(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	det := vad.NewDetector(clf)
	defer det.Close()

	frames := make([][]float32, 10)
	for i := range frames {
		frames[i] = make([]float32, vad.FrameSize)
		for j := range frames[i] {
			n := i*vad.FrameSize + j
			frames[i][j] = float32(0.3 * math.Sin(2*math.Pi*220*float64(n)/vad.SampleRate))
		}
	}
	run := func() []float32 {
		var out []float32
		for _, f := range frames {
			r, err := det.PushFrame(f)
			if err != nil {
				t.Fatalf("PushFrame: %v", err)
			}
			out = append(out, r.Probability)
		}
		return out
	}

	first := run()
	det.Reset()
	second := run()
	for i := range first {
		if math.Abs(float64(first[i]-second[i])) > 1e-5 {
			t.Errorf("frame %d: got %v after reset, want %v", i, second[i], first[i])
		}
	}
}

func TestClassifier_WrongFrameSize(t *testing.T) {
	clf, err := silero.New(modelPath(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer clf.Close()

	_, _, err = clf.Classify(make([]float32, 512), vad.NewState())
	if !errors.Is(err, silero.ErrFrameSize) {
		t.Fatalf("got %v, want ErrFrameSize", err)
	}
}
