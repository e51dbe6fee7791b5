package decode

import (
	"fmt"

	"github.com/MrWong99/segmentscribe/pkg/audio"
)

// SampleFormat identifies the in-memory representation of a decoded [Buffer].
type SampleFormat int

const (
	// SampleU8 is unsigned 8-bit PCM with a bias of 128.
	SampleU8 SampleFormat = iota

	// SampleS16 is signed 16-bit PCM.
	SampleS16

	// SampleS24 is signed 24-bit PCM stored in the low bits of an int32.
	SampleS24

	// SampleS32 is signed 32-bit PCM.
	SampleS32

	// SampleF32 is 32-bit IEEE float in [-1, 1].
	SampleF32

	// SampleF64 is 64-bit IEEE float in [-1, 1].
	SampleF64
)

// String returns the human-readable name of the sample format.
func (f SampleFormat) String() string {
	switch f {
	case SampleU8:
		return "u8"
	case SampleS16:
		return "s16"
	case SampleS24:
		return "s24"
	case SampleS32:
		return "s32"
	case SampleF32:
		return "f32"
	case SampleF64:
		return "f64"
	default:
		return fmt.Sprintf("SampleFormat(%d)", int(f))
	}
}

// Buffer holds one packet worth of decoded, interleaved audio. Exactly one of
// the typed slices is populated, selected by Format. S24 samples live in S32.
type Buffer struct {
	Format   SampleFormat
	Channels int

	U8  []uint8
	S16 []int16
	S32 []int32
	F32 []float32
	F64 []float64
}

// Frames returns the number of complete interleaved frames in the buffer.
func (b Buffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	var n int
	switch b.Format {
	case SampleU8:
		n = len(b.U8)
	case SampleS16:
		n = len(b.S16)
	case SampleS24, SampleS32:
		n = len(b.S32)
	case SampleF32:
		n = len(b.F32)
	case SampleF64:
		n = len(b.F64)
	}
	return n / b.Channels
}

// downmix converts the buffer to mono float32 by averaging the channel values
// of each frame. Sample conversion per format:
//
//	U8:  (v - 128) / 128
//	S16: v / 32768
//	F32: v
//	F64: float32(v)
//
// ok is false for any other representation; the caller drops such buffers.
func downmix(b Buffer) (out []float32, ok bool) {
	frames := b.Frames()
	ch := b.Channels

	var sample func(i int) float32
	switch b.Format {
	case SampleU8:
		sample = func(i int) float32 { return (float32(b.U8[i]) - 128) / 128 }
	case SampleS16:
		sample = func(i int) float32 { return float32(b.S16[i]) / 32768 }
	case SampleF32:
		return audio.Mix(b.F32[:frames*ch], ch), true
	case SampleF64:
		sample = func(i int) float32 { return float32(b.F64[i]) }
	default:
		return nil, false
	}

	out = make([]float32, frames)
	for f := range frames {
		var sum float32
		for c := range ch {
			sum += sample(f*ch + c)
		}
		out[f] = sum / float32(ch)
	}
	return out, true
}
