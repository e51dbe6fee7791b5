package stt

import (
	"strings"
	"time"
)

// Transcript represents a speech-to-text result from an STT provider.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// Language is the language the provider detected or used. May be empty.
	Language string

	// Segments contains timed phrases when the provider reports them.
	// May be nil for providers that only return plain text.
	Segments []Segment

	// Words contains per-word detail when available (Deepgram).
	// May be nil for providers that don't support word-level output.
	Words []WordDetail

	// Duration is the length of the transcribed audio.
	Duration time.Duration
}

// Segment is a timed phrase within a transcript.
type Segment struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// WordDetail holds per-word metadata from STT providers that support it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost represents a keyword to boost in STT recognition.
// Used to improve recognition of proper nouns (people, products, places).
type KeywordBoost struct {
	// Keyword is the text to boost (e.g., "Kubernetes").
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}

// Shift returns a copy of t with all segment and word timestamps moved by d.
// It is used to place a per-segment transcript on the timeline of the whole
// recording.
func (t Transcript) Shift(d time.Duration) Transcript {
	out := t
	if t.Segments != nil {
		out.Segments = make([]Segment, len(t.Segments))
		for i, s := range t.Segments {
			s.Start += d
			s.End += d
			out.Segments[i] = s
		}
	}
	if t.Words != nil {
		out.Words = make([]WordDetail, len(t.Words))
		for i, w := range t.Words {
			w.Start += d
			w.End += d
			out.Words[i] = w
		}
	}
	return out
}

// KeywordPrompt renders keywords as a comma-separated prompt for providers
// that have no boosting API. Returns "" for an empty list.
func KeywordPrompt(keywords []KeywordBoost) string {
	if len(keywords) == 0 {
		return ""
	}
	words := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k.Keyword != "" {
			words = append(words, k.Keyword)
		}
	}
	return strings.Join(words, ", ")
}

// JoinPrompt combines a free-text prompt with the keyword prompt.
func JoinPrompt(prompt string, keywords []KeywordBoost) string {
	kw := KeywordPrompt(keywords)
	switch {
	case kw == "":
		return prompt
	case prompt == "":
		return kw
	default:
		return kw + ". " + prompt
	}
}
