package decode

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// ResampleChunkSize is the fixed number of input samples fed to the resampler
// per call. The final chunk is zero-padded to this size.
const ResampleChunkSize = 1024

// Resampler converts a mono stream between two fixed sample rates. Process is
// called with consecutive chunks of the same stream.
type Resampler interface {
	Process(in []float64) ([]float64, error)
}

// ResamplerFactory creates a Resampler for one conversion.
type ResamplerFactory func(inRate, outRate int) (Resampler, error)

// NewResampler returns the default high-quality FFT resampler.
func NewResampler(inRate, outRate int) (Resampler, error) {
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(inRate),
		OutputRate: float64(outRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// resample converts samples from inRate to outRate in fixed chunks of
// ResampleChunkSize, zero-padding the final chunk, and concatenates the output.
func resample(samples []float32, inRate, outRate int, factory ResamplerFactory) ([]float32, error) {
	if inRate == outRate {
		return samples, nil
	}
	r, err := factory(inRate, outRate)
	if err != nil {
		return nil, fmt.Errorf("%w: create resampler %d->%d Hz: %v", ErrResample, inRate, outRate, err)
	}

	out := make([]float32, 0, int(int64(len(samples))*int64(outRate)/int64(inRate))+ResampleChunkSize)
	chunk := make([]float64, ResampleChunkSize)
	for pos := 0; pos < len(samples); pos += ResampleChunkSize {
		n := min(ResampleChunkSize, len(samples)-pos)
		for i := range n {
			chunk[i] = float64(samples[pos+i])
		}
		for i := n; i < ResampleChunkSize; i++ {
			chunk[i] = 0
		}
		res, err := r.Process(chunk)
		if err != nil {
			return nil, fmt.Errorf("%w: process chunk at sample %d: %v", ErrResample, pos, err)
		}
		for _, v := range res {
			out = append(out, float32(v))
		}
	}
	return out, nil
}
