// Package transcript fixes recognition errors in domain vocabulary.
//
// Recognisers regularly mangle proper nouns and jargon: "Kubernetes" comes
// back as "kuber nettis", a character name is split into two common words. A
// [Corrector] scans transcript text for runs of words that sound like a term
// from a configured vocabulary and replaces them with the canonical spelling.
// Each replacement is reported as a [Correction] so callers can log or audit
// it.
package transcript

import (
	"context"

	"github.com/MrWong99/segmentscribe/internal/transcript/phonetic"
	"github.com/MrWong99/segmentscribe/pkg/provider/stt"
)

// Correction is one replacement made in a transcript.
type Correction struct {
	// Original is the run of words as recognised, punctuation stripped.
	Original string

	// Corrected is the vocabulary term that replaced it.
	Corrected string

	// Confidence is the similarity score in [0, 1].
	Confidence float64
}

// CorrectedTranscript is the result of [Pipeline.Correct].
type CorrectedTranscript struct {
	// Original is the transcript as returned by the recogniser.
	Original stt.Transcript

	// Transcript is Original with corrections applied to Text and to every
	// segment text. Words are left untouched.
	Transcript stt.Transcript

	// Corrections lists the replacements made in Text, in reading order.
	// Empty but non-nil when nothing was replaced.
	Corrections []Correction
}

// Pipeline corrects transcripts. Implementations must be safe for concurrent
// use.
type Pipeline interface {
	Correct(ctx context.Context, t stt.Transcript) (*CorrectedTranscript, error)
}

// SpanMatcher decides whether a run of words should be replaced by a
// vocabulary term. [phonetic.Matcher] is the production implementation.
type SpanMatcher interface {
	MatchSpan(tokens []string, v *phonetic.Vocabulary) (term string, confidence float64, matched bool)
}
