package resilience

import (
	"context"

	"github.com/MrWong99/segmentscribe/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] by failing over across several
// transcription backends, each behind its own circuit breaker.
type STTFallback struct {
	group  *FallbackGroup[stt.Provider]
	served func(name string)
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend, tried after the ones already added.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// OnServed registers a callback receiving the name of the backend that
// produced each successful transcript. It must be set before first use.
func (f *STTFallback) OnServed(fn func(name string)) { f.served = fn }

// Status reports the breaker state of every backend.
func (f *STTFallback) Status() []EntryStatus { return f.group.Status() }

// Transcribe sends the audio to the first healthy backend, moving on to the
// next one when it fails.
func (f *STTFallback) Transcribe(ctx context.Context, samples []float32, opts stt.Options) (stt.Transcript, error) {
	tr, name, err := ExecuteWithResult(ctx, f.group, func(ctx context.Context, p stt.Provider) (stt.Transcript, error) {
		return p.Transcribe(ctx, samples, opts)
	})
	if err != nil {
		return stt.Transcript{}, err
	}
	if f.served != nil {
		f.served(name)
	}
	return tr, nil
}
