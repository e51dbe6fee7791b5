// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to return scripted transcripts and inspect the audio and
// options that were submitted.
//
// Example:
//
//	p := &mock.Provider{Transcripts: []stt.Transcript{{Text: "hello"}}}
//	tr, _ := p.Transcribe(ctx, samples, stt.Options{})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/segmentscribe/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context

	// Samples is a copy of the audio passed to Transcribe.
	Samples []float32

	// Opts is the Options passed to Transcribe.
	Opts stt.Options
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Transcripts are returned in order, one per call. Once exhausted, Default
	// is returned.
	Transcripts []stt.Transcript

	// Default is returned when Transcripts is exhausted.
	Default stt.Transcript

	// TranscribeErr, if non-nil, is returned as the error from every call.
	TranscribeErr error

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns the next scripted transcript.
func (p *Provider) Transcribe(ctx context.Context, samples []float32, opts stt.Options) (stt.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := len(p.TranscribeCalls)
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{
		Ctx:     ctx,
		Samples: append([]float32(nil), samples...),
		Opts:    opts,
	})
	if p.TranscribeErr != nil {
		return stt.Transcript{}, p.TranscribeErr
	}
	if idx < len(p.Transcripts) {
		return p.Transcripts[idx], nil
	}
	return p.Default, nil
}

// Calls returns the number of Transcribe calls so far. Thread-safe.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
