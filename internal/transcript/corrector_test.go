package transcript_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/segmentscribe/internal/transcript"
	"github.com/MrWong99/segmentscribe/internal/transcript/phonetic"
	"github.com/MrWong99/segmentscribe/pkg/provider/stt"
)

// fakeMatcher matches spans by their lower-cased space-joined text.
type fakeMatcher struct {
	mu    sync.Mutex
	spans map[string]fakeMatch
	calls [][]string
}

type fakeMatch struct {
	term  string
	score float64
}

func (f *fakeMatcher) MatchSpan(tokens []string, _ *phonetic.Vocabulary) (string, float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), tokens...))
	m, ok := f.spans[strings.ToLower(strings.Join(tokens, " "))]
	return m.term, m.score, ok
}

func TestCorrector_RealMatcher(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		vocab []string
		text  string
		want  string
		wantN int
	}{
		{
			name:  "split single-word term",
			vocab: []string{"Kubernetes"},
			text:  "we deploy to kuber nettis every day",
			want:  "we deploy to Kubernetes every day",
			wantN: 1,
		},
		{
			name:  "multi-word term with punctuation",
			vocab: []string{"Grimjaw", "Tower of Whispers"},
			text:  "then we met grim jaw near the tower of wispers.",
			want:  "then we met Grimjaw near the Tower of Whispers.",
			wantN: 2,
		},
		{
			name:  "case only",
			vocab: []string{"Kubernetes"},
			text:  "kubernetes rocks",
			want:  "Kubernetes rocks",
			wantN: 1,
		},
		{
			name:  "already correct",
			vocab: []string{"Kubernetes"},
			text:  "Kubernetes rocks",
			want:  "Kubernetes rocks",
			wantN: 0,
		},
		{
			name:  "short fragment is not expanded",
			vocab: []string{"Kubernetes"},
			text:  "kuber",
			want:  "kuber",
			wantN: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := transcript.NewCorrector(nil, tt.vocab)
			res, err := c.Correct(context.Background(), stt.Transcript{Text: tt.text})
			if err != nil {
				t.Fatalf("Correct: %v", err)
			}
			if res.Transcript.Text != tt.want {
				t.Errorf("Text = %q, want %q", res.Transcript.Text, tt.want)
			}
			if len(res.Corrections) != tt.wantN {
				t.Errorf("len(Corrections) = %d, want %d: %+v", len(res.Corrections), tt.wantN, res.Corrections)
			}
			if res.Original.Text != tt.text {
				t.Errorf("Original.Text = %q, want %q", res.Original.Text, tt.text)
			}
		})
	}
}

func TestCorrector_CorrectionDetails(t *testing.T) {
	t.Parallel()

	c := transcript.NewCorrector(nil, []string{"Kubernetes"})
	res, err := c.Correct(context.Background(), stt.Transcript{Text: "to kuber nettis"})
	if err != nil {
		t.Fatalf("Correct: %v", err)
	}
	if len(res.Corrections) != 1 {
		t.Fatalf("len(Corrections) = %d, want 1", len(res.Corrections))
	}
	got := res.Corrections[0]
	if got.Original != "kuber nettis" || got.Corrected != "Kubernetes" {
		t.Errorf("correction = %+v", got)
	}
	if got.Confidence < 0.85 || got.Confidence > 1 {
		t.Errorf("Confidence = %v, want in [0.85, 1]", got.Confidence)
	}
}

func TestCorrector_EmptyVocabulary(t *testing.T) {
	t.Parallel()

	m := &fakeMatcher{}
	c := transcript.NewCorrector(m, nil)
	tr := stt.Transcript{Text: "nothing to see", Segments: []stt.Segment{{Text: "nothing to see"}}}
	res, err := c.Correct(context.Background(), tr)
	if err != nil {
		t.Fatalf("Correct: %v", err)
	}
	if res.Transcript.Text != tr.Text {
		t.Errorf("Text = %q", res.Transcript.Text)
	}
	if res.Corrections == nil || len(res.Corrections) != 0 {
		t.Errorf("Corrections = %#v, want empty non-nil", res.Corrections)
	}
	if len(m.calls) != 0 {
		t.Errorf("matcher called %d times, want 0", len(m.calls))
	}
}

func TestCorrector_SegmentsCorrected(t *testing.T) {
	t.Parallel()

	m := &fakeMatcher{spans: map[string]fakeMatch{"segment scribe": {"SegmentScribe", 0.9}}}
	c := transcript.NewCorrector(m, []string{"SegmentScribe"})

	tr := stt.Transcript{
		Text: "hello segment scribe. bye",
		Segments: []stt.Segment{
			{Start: 0, End: time.Second, Text: "hello segment scribe."},
			{Start: time.Second, End: 2 * time.Second, Text: "bye"},
		},
		Words: []stt.WordDetail{{Word: "hello", Confidence: 0.9}},
	}
	res, err := c.Correct(context.Background(), tr)
	if err != nil {
		t.Fatalf("Correct: %v", err)
	}
	if res.Transcript.Text != "hello SegmentScribe. bye" {
		t.Errorf("Text = %q", res.Transcript.Text)
	}
	if got := res.Transcript.Segments[0].Text; got != "hello SegmentScribe." {
		t.Errorf("Segments[0].Text = %q", got)
	}
	if got := res.Transcript.Segments[1]; got.Text != "bye" || got.Start != time.Second {
		t.Errorf("Segments[1] = %+v", got)
	}
	if tr.Segments[0].Text != "hello segment scribe." {
		t.Errorf("input segment mutated: %q", tr.Segments[0].Text)
	}
	if len(res.Transcript.Words) != 1 {
		t.Errorf("Words changed: %+v", res.Transcript.Words)
	}
}

func TestCorrector_SpansStopAtPunctuation(t *testing.T) {
	t.Parallel()

	m := &fakeMatcher{spans: map[string]fakeMatch{"grim jaw": {"Grimjaw", 1}}}
	c := transcript.NewCorrector(m, []string{"Grimjaw"})

	got, corrections := c.CorrectText("grim, jaw")
	if got != "grim, jaw" || len(corrections) != 0 {
		t.Fatalf("CorrectText = %q %+v, want unchanged", got, corrections)
	}
	for _, call := range m.calls {
		if len(call) > 1 {
			t.Errorf("span %v crosses punctuation", call)
		}
	}
}

func TestCorrector_BestSpanWins(t *testing.T) {
	t.Parallel()

	m := &fakeMatcher{spans: map[string]fakeMatch{
		"met grim":  {"Grimjaw", 0.8},
		"grim jaw":  {"Grimjaw", 0.99},
		"jaw today": {"Jotaday", 0.7},
	}}
	c := transcript.NewCorrector(m, []string{"Grimjaw", "Jotaday"})

	got, corrections := c.CorrectText("we met grim jaw today")
	if got != "we met Grimjaw today" {
		t.Errorf("CorrectText = %q", got)
	}
	if len(corrections) != 1 || corrections[0].Original != "grim jaw" {
		t.Errorf("corrections = %+v", corrections)
	}
}

func TestCorrector_PreservesSurroundingPunctuation(t *testing.T) {
	t.Parallel()

	m := &fakeMatcher{spans: map[string]fakeMatch{"kuber nettis": {"Kubernetes", 0.95}}}
	c := transcript.NewCorrector(m, []string{"Kubernetes"})

	got, _ := c.CorrectText(`he said "kuber nettis!" twice`)
	if want := `he said "Kubernetes!" twice`; got != want {
		t.Errorf("CorrectText = %q, want %q", got, want)
	}
}

func TestCorrector_KeepConfident(t *testing.T) {
	t.Parallel()

	m := &fakeMatcher{spans: map[string]fakeMatch{
		"grim":     {"Grimjaw", 0.9},
		"kuber":    {"Kubernetes", 0.9},
		"kuber go": {"Kubernetes", 0.95},
	}}
	c := transcript.NewCorrector(m, []string{"Grimjaw", "Kubernetes"}, transcript.WithKeepConfident(0.8))

	tr := stt.Transcript{
		Text: "grim kuber go",
		Words: []stt.WordDetail{
			{Word: "grim", Confidence: 0.95},
			{Word: "kuber", Confidence: 0.99},
			{Word: "go", Confidence: 0.4},
		},
	}
	res, err := c.Correct(context.Background(), tr)
	if err != nil {
		t.Fatalf("Correct: %v", err)
	}
	if res.Transcript.Text != "grim Kubernetes" {
		t.Errorf("Text = %q, want %q", res.Transcript.Text, "grim Kubernetes")
	}
}

func TestCorrector_SetVocabulary(t *testing.T) {
	t.Parallel()

	c := transcript.NewCorrector(nil, nil)
	if got := c.Vocabulary(); len(got) != 0 {
		t.Fatalf("Vocabulary = %v, want empty", got)
	}
	if got, _ := c.CorrectText("kubernetes"); got != "kubernetes" {
		t.Fatalf("CorrectText with empty vocabulary = %q", got)
	}

	c.SetVocabulary([]string{"Kubernetes"})
	if got := c.Vocabulary(); len(got) != 1 || got[0] != "Kubernetes" {
		t.Fatalf("Vocabulary = %v", got)
	}
	if got, _ := c.CorrectText("kubernetes"); got != "Kubernetes" {
		t.Fatalf("CorrectText after SetVocabulary = %q", got)
	}
}

func TestCorrector_CancelledContext(t *testing.T) {
	t.Parallel()

	c := transcript.NewCorrector(nil, []string{"Kubernetes"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Correct(ctx, stt.Transcript{Text: "kubernetes"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
