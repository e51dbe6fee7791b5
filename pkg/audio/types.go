// Package audio defines the canonical signal shared by every stage of the
// segmentscribe pipeline: mono, 16 kHz, float32 samples normalised to [-1, 1].
//
// Decoders produce it (see package decode), the VAD and chunker consume it, and
// transcription backends receive slices of it. The helpers here convert the
// canonical signal to and from 16-bit PCM and persist it as WAV.
package audio

import "time"

const (
	// SampleRate is the canonical sample rate in Hz.
	SampleRate = 16000

	// Channels is the canonical channel count (mono).
	Channels = 1

	// BitDepth is the PCM bit depth used when the canonical signal is
	// persisted or uploaded.
	BitDepth = 16
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Canonical is the format every decoder output is normalised to.
var Canonical = Format{SampleRate: SampleRate, Channels: Channels}

// Duration returns the playback duration of n canonical samples.
func Duration(n int) time.Duration {
	return time.Duration(n) * time.Second / SampleRate
}

// SampleIndex returns the index of the canonical sample at offset d.
func SampleIndex(d time.Duration) int {
	return int(d * SampleRate / time.Second)
}
