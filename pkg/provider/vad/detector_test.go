package vad_test

import (
	"errors"
	"math"
	"testing"

	"github.com/MrWong99/segmentscribe/pkg/provider/vad"
	"github.com/MrWong99/segmentscribe/pkg/provider/vad/mock"
)

// recurrentClassifier is a deterministic stand-in for a recurrent model: the
// probability depends on the frame energy and on the carried state, and the
// state integrates energy over time.
type recurrentClassifier struct{}

func (recurrentClassifier) Classify(frame []float32, st vad.State) (float32, vad.State, error) {
	var energy float64
	for _, s := range frame {
		energy += float64(s * s)
	}
	energy /= float64(len(frame))

	next := st.Clone()
	for i := range next.H {
		next.H[i] = 0.5*next.H[i] + float32(energy)
		next.C[i] = next.C[i] + float32(energy)
	}
	p := 1 - math.Exp(-20*energy-float64(st.H[0]))
	return float32(p), next, nil
}

func (recurrentClassifier) Close() error { return nil }

func constFrame(v float32) []float32 {
	f := make([]float32, vad.FrameSize)
	for i := range f {
		f[i] = v
	}
	return f
}

func TestDetector_ResetReplaysIdentically(t *testing.T) {
	frames := [][]float32{constFrame(0.2), constFrame(0.05), constFrame(0), constFrame(0.3)}
	det := vad.NewDetector(recurrentClassifier{})

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
	second := run()
	if first[0] == second[0] {
		t.Fatal("expected carried state to influence the second pass")
	}

	det.Reset()
	third := run()
	for i := range first {
		if first[i] != third[i] {
			t.Errorf("frame %d: after reset got %v, want %v", i, third[i], first[i])
		}
	}
	if det.Frames() != len(frames) {
		t.Errorf("Frames: got %d, want %d", det.Frames(), len(frames))
	}
}

func TestDetector_SilenceIsNotSpeech(t *testing.T) {
	det := vad.NewDetector(recurrentClassifier{})
	for i := range 10 {
		r, err := det.PushFrame(constFrame(0))
		if err != nil {
			t.Fatalf("PushFrame: %v", err)
		}
		if r.IsSpeech() {
			t.Fatalf("frame %d: silence classified as speech (p=%v)", i, r.Probability)
		}
	}
}

func TestDetector_ErrorKeepsState(t *testing.T) {
	clf := &mock.Classifier{
		Errs: map[int]error{1: errors.New("inference failed")},
		NextState: func(st vad.State) vad.State {
			next := st.Clone()
			next.H[0]++
			return next
		},
	}
	det := vad.NewDetector(clf)

	if _, err := det.PushFrame(constFrame(0)); err != nil {
		t.Fatalf("frame 0: %v", err)
	}
	before := det.State()

	if _, err := det.PushFrame(constFrame(0)); err == nil {
		t.Fatal("frame 1: expected error")
	}
	if got := det.State(); got.H[0] != before.H[0] {
		t.Errorf("state changed on error: got H[0]=%v, want %v", got.H[0], before.H[0])
	}

	if _, err := det.PushFrame(constFrame(0)); err != nil {
		t.Fatalf("frame 2: %v", err)
	}
	if got := det.State(); got.H[0] != 2 {
		t.Errorf("H[0] after recovery: got %v, want 2", got.H[0])
	}
	if got := clf.ClassifyCalls[2].State.H[0]; got != 1 {
		t.Errorf("state passed after error: got H[0]=%v, want 1", got)
	}
}

func TestDetector_StateShapeMismatch(t *testing.T) {
	tests := []struct {
		name string
		next func(vad.State) vad.State
	}{
		{
			name: "different shape",
			next: func(vad.State) vad.State {
				s := vad.Shape{2, 1, 32}
				return vad.State{Shape: s, H: make([]float32, s.Len()), C: make([]float32, s.Len())}
			},
		},
		{
			name: "short data",
			next: func(st vad.State) vad.State {
				return vad.State{Shape: st.Shape, H: st.H[:10], C: st.C}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := vad.NewDetector(&mock.Classifier{NextState: tt.next})
			_, err := det.PushFrame(constFrame(0))
			if !errors.Is(err, vad.ErrStateShape) {
				t.Fatalf("got %v, want ErrStateShape", err)
			}
			if st := det.State(); st.Shape != vad.StateShape || len(st.H) != vad.StateShape.Len() {
				t.Errorf("carried state replaced: %+v", st.Shape)
			}
		})
	}
}

func TestDetector_ResetZeroesState(t *testing.T) {
	det := vad.NewDetector(recurrentClassifier{})
	if _, err := det.PushFrame(constFrame(0.5)); err != nil {
		t.Fatal(err)
	}
	if det.State().H[0] == 0 {
		t.Fatal("expected non-zero state after a loud frame")
	}
	det.Reset()
	st := det.State()
	for i := range st.H {
		if st.H[i] != 0 || st.C[i] != 0 {
			t.Fatalf("state not zeroed at %d", i)
		}
	}
}

func TestResult_IsSpeech(t *testing.T) {
	tests := []struct {
		p    float32
		want bool
	}{
		{0, false},
		{0.49, false},
		{0.5, false},
		{0.51, true},
		{1, true},
	}
	for _, tt := range tests {
		if got := (vad.Result{Probability: tt.p}).IsSpeech(); got != tt.want {
			t.Errorf("IsSpeech(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestOpen(t *testing.T) {
	clf := &mock.Classifier{}
	l := &mock.Loader{Classifier: clf}
	det, err := vad.Open(l, "silero.onnx")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(l.LoadCalls) != 1 || l.LoadCalls[0] != "silero.onnx" {
		t.Errorf("LoadCalls: %v", l.LoadCalls)
	}
	if err := det.Close(); err != nil {
		t.Fatal(err)
	}
	if clf.CloseCallCount != 1 {
		t.Errorf("CloseCallCount: got %d, want 1", clf.CloseCallCount)
	}

	loadErr := errors.New("no such file")
	if _, err := vad.Open(&mock.Loader{LoadErr: loadErr}, "x"); !errors.Is(err, loadErr) {
		t.Errorf("got %v, want wrapped load error", err)
	}
}

func TestLoaderFunc(t *testing.T) {
	var got string
	l := vad.LoaderFunc(func(p string) (vad.Classifier, error) {
		got = p
		return recurrentClassifier{}, nil
	})
	if _, err := l.Load("model.onnx"); err != nil {
		t.Fatal(err)
	}
	if got != "model.onnx" {
		t.Errorf("path: got %q", got)
	}
}
