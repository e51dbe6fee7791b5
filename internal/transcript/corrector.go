package transcript

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/MrWong99/segmentscribe/internal/transcript/phonetic"
	"github.com/MrWong99/segmentscribe/pkg/provider/stt"
)

// CorrectorOption configures a [Corrector].
type CorrectorOption func(*Corrector)

// WithKeepConfident leaves runs alone when the recogniser reported every word
// in them with at least the given confidence. Only transcripts with word
// detail are affected. Zero disables the check.
func WithKeepConfident(threshold float64) CorrectorOption {
	return func(c *Corrector) { c.keepConfident = threshold }
}

// WithCorrectorLogger sets the logger used for per-correction debug output.
func WithCorrectorLogger(l *slog.Logger) CorrectorOption {
	return func(c *Corrector) { c.log = l }
}

// Corrector is the vocabulary-based [Pipeline]. The vocabulary can be swapped
// at any time with [Corrector.SetVocabulary]; in-flight calls finish with the
// vocabulary they started with.
type Corrector struct {
	matcher       SpanMatcher
	keepConfident float64
	log           *slog.Logger

	vocab atomic.Pointer[vocabulary]
}

type vocabulary struct {
	words    []string
	prepared *phonetic.Vocabulary
}

var _ Pipeline = (*Corrector)(nil)

// NewCorrector returns a [Corrector] for the given vocabulary. A nil matcher
// selects [phonetic.New] with default thresholds.
func NewCorrector(m SpanMatcher, words []string, opts ...CorrectorOption) *Corrector {
	if m == nil {
		m = phonetic.New()
	}
	c := &Corrector{matcher: m, log: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	c.SetVocabulary(words)
	return c
}

// SetVocabulary replaces the vocabulary.
func (c *Corrector) SetVocabulary(words []string) {
	w := slices.Clone(words)
	c.vocab.Store(&vocabulary{words: w, prepared: phonetic.Prepare(w)})
}

// Vocabulary returns a copy of the current vocabulary.
func (c *Corrector) Vocabulary() []string {
	return slices.Clone(c.vocab.Load().words)
}

// Correct applies the vocabulary to t. With an empty vocabulary the transcript
// is returned unchanged.
func (c *Corrector) Correct(ctx context.Context, t stt.Transcript) (*CorrectedTranscript, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := &CorrectedTranscript{Original: t, Transcript: t, Corrections: []Correction{}}
	v := c.vocab.Load().prepared
	if v.Len() == 0 {
		return res, nil
	}

	confident := c.confidentWords(t.Words)
	text, corrections := c.correctText(t.Text, v, confident)
	res.Transcript.Text = text
	res.Corrections = append(res.Corrections, corrections...)

	if len(t.Segments) > 0 {
		res.Transcript.Segments = make([]stt.Segment, len(t.Segments))
		for i, s := range t.Segments {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			s.Text, _ = c.correctText(s.Text, v, confident)
			res.Transcript.Segments[i] = s
		}
	}

	for _, corr := range res.Corrections {
		c.log.Debug("vocabulary correction",
			"original", corr.Original,
			"corrected", corr.Corrected,
			"confidence", corr.Confidence)
	}
	return res, nil
}

// CorrectText applies the vocabulary to a plain string.
func (c *Corrector) CorrectText(text string) (string, []Correction) {
	return c.correctText(text, c.vocab.Load().prepared, nil)
}

func (c *Corrector) confidentWords(words []stt.WordDetail) map[string]bool {
	if c.keepConfident <= 0 || len(words) == 0 {
		return nil
	}
	out := make(map[string]bool, len(words))
	for _, w := range words {
		key := strings.ToLower(trimPunct(w.Word))
		if key == "" {
			continue
		}
		// A word heard with low confidence anywhere is never protected.
		prev, seen := out[key]
		out[key] = w.Confidence >= c.keepConfident && (!seen || prev)
	}
	return out
}

// token is a whitespace-separated word split into leading punctuation, core
// and trailing punctuation.
type token struct {
	pre, core, post string
}

func tokenize(text string) []token {
	fields := strings.Fields(text)
	out := make([]token, len(fields))
	for i, f := range fields {
		core := strings.TrimLeftFunc(f, unicode.IsPunct)
		pre := f[:len(f)-len(core)]
		trimmed := strings.TrimRightFunc(core, unicode.IsPunct)
		out[i] = token{pre: pre, core: trimmed, post: core[len(trimmed):]}
	}
	return out
}

func trimPunct(s string) string {
	return strings.TrimFunc(s, unicode.IsPunct)
}

type span struct {
	start, n   int
	term       string
	confidence float64
}

// correctText finds the best non-overlapping spans that match a vocabulary
// term and rewrites them. Spans never cross punctuation. Higher-scoring spans
// win over lower ones; among equal scores the longer span wins.
func (c *Corrector) correctText(text string, v *phonetic.Vocabulary, confident map[string]bool) (string, []Correction) {
	toks := tokenize(text)
	if len(toks) == 0 || v.Len() == 0 {
		return text, nil
	}
	// One extra word lets a single-word term be found after the recogniser
	// split it in two.
	maxN := v.MaxWords() + 1

	var cands []span
	cores := make([]string, 0, maxN)
	for i := range toks {
		cores = cores[:0]
		for n := 1; n <= maxN && i+n <= len(toks); n++ {
			last := toks[i+n-1]
			if last.core == "" {
				break
			}
			if n > 1 && (toks[i+n-2].post != "" || last.pre != "") {
				break
			}
			cores = append(cores, last.core)
			if allConfident(cores, confident) {
				continue
			}
			term, conf, ok := c.matcher.MatchSpan(cores, v)
			if ok {
				cands = append(cands, span{start: i, n: n, term: term, confidence: conf})
			}
		}
	}
	if len(cands) == 0 {
		return text, nil
	}

	slices.SortStableFunc(cands, func(a, b span) int {
		return cmp.Or(
			cmp.Compare(b.confidence, a.confidence),
			cmp.Compare(b.n, a.n),
			cmp.Compare(a.start, b.start),
		)
	})
	taken := make([]bool, len(toks))
	var chosen []span
	for _, s := range cands {
		if slices.Contains(taken[s.start:s.start+s.n], true) {
			continue
		}
		for j := s.start; j < s.start+s.n; j++ {
			taken[j] = true
		}
		chosen = append(chosen, s)
	}
	slices.SortFunc(chosen, func(a, b span) int { return cmp.Compare(a.start, b.start) })

	var (
		out         = make([]string, 0, len(toks))
		corrections []Correction
		next        int
	)
	for _, s := range chosen {
		for ; next < s.start; next++ {
			out = append(out, toks[next].pre+toks[next].core+toks[next].post)
		}
		words := make([]string, s.n)
		for j := range s.n {
			words[j] = toks[s.start+j].core
		}
		original := strings.Join(words, " ")
		first, last := toks[s.start], toks[s.start+s.n-1]
		out = append(out, first.pre+s.term+last.post)
		if original != s.term {
			corrections = append(corrections, Correction{
				Original:   original,
				Corrected:  s.term,
				Confidence: s.confidence,
			})
		}
		next = s.start + s.n
	}
	for ; next < len(toks); next++ {
		out = append(out, toks[next].pre+toks[next].core+toks[next].post)
	}
	if len(corrections) == 0 {
		return text, nil
	}
	return strings.Join(out, " "), corrections
}

func allConfident(words []string, confident map[string]bool) bool {
	if len(confident) == 0 {
		return false
	}
	for _, w := range words {
		if !confident[strings.ToLower(w)] {
			return false
		}
	}
	return true
}
