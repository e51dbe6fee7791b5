// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a batch transcription engine (e.g., a whisper.cpp
// server, the whisper.cpp library linked in-process, Deepgram, or the OpenAI
// audio API) and exposes a uniform call: hand it one segment of canonical
// audio (mono, 16 kHz, float32) and receive the transcript for that segment.
// Segment boundaries are decided upstream by the chunker, so providers never
// see more than roughly 35 s of audio per call.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrNotSupported is returned (wrapped) by providers for options they cannot
// honour. Callers may treat it as a soft failure.
var ErrNotSupported = errors.New("stt: not supported")

// Options carries per-call recognition hints. Zero values select the
// provider's configured defaults.
type Options struct {
	// Language is the BCP-47 language tag for recognition (e.g., "en", "de").
	// An empty string selects the provider default, which may be auto-detect.
	Language string

	// Prompt is free text that primes the recogniser with vocabulary and style.
	// Typically the transcript of the previous segment.
	Prompt string

	// Keywords is a list of vocabulary hints that increase recognition
	// probability for uncommon words such as proper nouns. Providers without a
	// boosting API fold them into the prompt.
	Keywords []KeywordBoost
}

// Provider is the abstraction over any batch STT backend.
type Provider interface {
	// Transcribe returns the transcript of samples, which hold canonical audio.
	// Segment timestamps in the result are relative to the first sample.
	//
	// Returns an error if the backend is unreachable, rejects the request, or
	// ctx is cancelled. An empty transcript with a nil error means the backend
	// heard no speech.
	Transcribe(ctx context.Context, samples []float32, opts Options) (Transcript, error)
}
