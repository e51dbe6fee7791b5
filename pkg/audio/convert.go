package audio

import (
	"fmt"
	"math"
)

// ToInt16 converts a normalised sample to 16-bit PCM by scaling with 32767
// and truncating toward zero. Products outside the int16 range saturate and
// NaN maps to 0.
func ToInt16(s float32) int16 {
	v := float64(s) * 32767
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt16:
		return math.MaxInt16
	case v <= math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

// Mix averages interleaved frames of the given channel count down to mono.
// Each output sample is the arithmetic mean of the channel values of one frame.
func Mix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(interleaved))
		copy(out, interleaved)
		return out
	}
	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			sum += interleaved[i*channels+ch]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}

// String implements fmt.Stringer.
func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}
