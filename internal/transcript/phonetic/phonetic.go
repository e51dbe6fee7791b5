// Package phonetic matches misheard words against a known vocabulary.
//
// Candidates are found by Double Metaphone code overlap and ranked by
// Jaro-Winkler similarity. When no term shares a phonetic code with the input,
// a stricter pure Jaro-Winkler pass is used instead. Multi-word terms such as
// "Tower of Whispers" are compared token by token, as a whole and with spaces
// removed, and the best of those scores is used.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a term that
// shares a phonetic code with the input. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a term that
// shares no phonetic code with the input. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] with the supplied options applied.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// term is one vocabulary entry with its derived matching data.
type term struct {
	display   string
	lower     string
	joined    string
	tokens    []string
	codes     map[string]struct{}
	spanCodes map[string]struct{}
}

// Vocabulary is a prepared list of terms. Preparing once avoids recomputing
// phonetic codes for every comparison. A Vocabulary is immutable.
type Vocabulary struct {
	terms    []term
	maxWords int
}

// Prepare builds a [Vocabulary] from words. Blank entries are dropped.
func Prepare(words []string) *Vocabulary {
	v := &Vocabulary{terms: make([]term, 0, len(words))}
	for _, w := range words {
		lower := strings.ToLower(strings.TrimSpace(w))
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		joined := strings.Join(tokens, "")
		v.terms = append(v.terms, term{
			display:   strings.TrimSpace(w),
			lower:     lower,
			joined:    joined,
			tokens:    tokens,
			codes:     codesForTokens(tokens),
			spanCodes: codesForTokens(append([]string{joined}, tokens...)),
		})
		v.maxWords = max(v.maxWords, len(tokens))
	}
	return v
}

// Len returns the number of terms.
func (v *Vocabulary) Len() int {
	if v == nil {
		return 0
	}
	return len(v.terms)
}

// MaxWords returns the word count of the longest term, or 0 when empty.
func (v *Vocabulary) MaxWords() int {
	if v == nil {
		return 0
	}
	return v.maxWords
}

// Match finds the term in entities that sounds most like word. It prepares
// entities on every call; use [Matcher.MatchVocabulary] for repeated lookups.
//
// When matched is false, corrected equals word and confidence is 0.
func (m *Matcher) Match(word string, entities []string) (corrected string, confidence float64, matched bool) {
	return m.MatchVocabulary(word, Prepare(entities))
}

// MatchVocabulary is [Matcher.Match] against a prepared vocabulary.
func (m *Matcher) MatchVocabulary(word string, v *Vocabulary) (corrected string, confidence float64, matched bool) {
	if v.Len() == 0 || strings.TrimSpace(word) == "" {
		return word, 0, false
	}

	wordLower := strings.ToLower(strings.TrimSpace(word))
	wordTokens := strings.Fields(wordLower)
	inputCodes := codesForTokens(wordTokens)

	var (
		best         *term
		bestScore    float64
		bestPhonetic bool
	)
	for i := range v.terms {
		t := &v.terms[i]
		score := bestJWScore(wordTokens, t.tokens, wordLower, t.lower)

		if codesOverlap(inputCodes, t.codes) {
			if score >= m.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = t, score, true
			}
			continue
		}
		if !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore {
			best, bestScore = t, score
		}
	}

	if best == nil {
		return word, 0, false
	}
	return best.display, bestScore, true
}

// Span length bounds relative to the term, compared without spaces.
const (
	minSpanRatio = 0.66
	maxSpanRatio = 1.5
)

// MatchSpan scores a run of transcript words against v as a whole. Unlike
// [Matcher.MatchVocabulary] it ignores per-token similarity, so a span only
// matches when it reads like the complete term, and spans much shorter or
// longer than the term never match. tokens must not contain punctuation.
func (m *Matcher) MatchSpan(tokens []string, v *Vocabulary) (corrected string, confidence float64, matched bool) {
	if v.Len() == 0 || len(tokens) == 0 {
		return "", 0, false
	}
	lower := make([]string, len(tokens))
	for i, t := range tokens {
		lower[i] = strings.ToLower(t)
	}
	full := strings.Join(lower, " ")
	joined := strings.Join(lower, "")
	if joined == "" {
		return "", 0, false
	}
	codes := codesForTokens(append([]string{joined}, lower...))

	var (
		best         *term
		bestScore    float64
		bestPhonetic bool
	)
	for i := range v.terms {
		t := &v.terms[i]
		ratio := float64(len([]rune(joined))) / float64(len([]rune(t.joined)))
		if ratio < minSpanRatio || ratio > maxSpanRatio {
			continue
		}
		score := max(
			matchr.JaroWinkler(full, t.lower, false),
			matchr.JaroWinkler(joined, t.joined, false),
		)
		if codesOverlap(codes, t.spanCodes) {
			if score >= m.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = t, score, true
			}
			continue
		}
		if !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore {
			best, bestScore = t, score
		}
	}
	if best == nil {
		return "", 0, false
	}
	return best.display, bestScore, true
}

// codesForTokens returns the union of the non-empty Double Metaphone codes of
// tokens.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore returns the highest Jaro-Winkler similarity of the full strings,
// the space-stripped strings, and every token pair.
func bestJWScore(inputTokens, termTokens []string, inputFull, termFull string) float64 {
	score := matchr.JaroWinkler(inputFull, termFull, false)

	if len(inputTokens) > 1 || len(termTokens) > 1 {
		joined := matchr.JaroWinkler(strings.Join(inputTokens, ""), strings.Join(termTokens, ""), false)
		score = max(score, joined)
	}

	for _, it := range inputTokens {
		for _, tt := range termTokens {
			score = max(score, matchr.JaroWinkler(it, tt, false))
		}
	}
	return score
}
