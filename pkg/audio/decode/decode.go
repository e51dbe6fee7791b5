// Package decode turns an audio file in any supported container and codec into
// the canonical signal: mono, 16 kHz, float32 samples in [-1, 1].
//
// Decoding follows a fixed sequence: the container is probed by content (the
// file extension is only a hint), the first track with a known codec is
// selected, its packets are decoded and each decoded buffer is downmixed to
// mono by averaging channels. The mono signal is finally resampled to 16 kHz
// with a high-quality FFT resampler unless it is already at that rate.
//
// Supported containers are RIFF/WAVE, FLAC, Ogg (Opus and Vorbis) and MPEG
// audio. Decoded sample representations other than U8, S16, F32 and F64 are
// skipped with a warning.
//
// Usage:
//
//	samples, err := decode.File("meeting.flac")
//	if errors.Is(err, decode.ErrNoSupportedTrack) { ... }
package decode

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/MrWong99/segmentscribe/pkg/audio"
)

var (
	// ErrUnsupportedFormat is returned when the container cannot be identified.
	ErrUnsupportedFormat = errors.New("decode: unsupported container format")

	// ErrNoSupportedTrack is returned when no track has a known codec.
	ErrNoSupportedTrack = errors.New("decode: no supported audio track")

	// ErrMissingSampleRate is returned when the selected track does not
	// declare a sample rate.
	ErrMissingSampleRate = errors.New("decode: track has no sample rate")

	// ErrResample wraps resampler construction and processing failures.
	ErrResample = errors.New("decode: resample failed")
)

// Option is a functional option for configuring a Decoder.
type Option func(*Decoder)

// WithResampler replaces the default FFT resampler.
func WithResampler(f ResamplerFactory) Option {
	return func(d *Decoder) {
		d.resampler = f
	}
}

// WithLogger sets the logger used for skipped packets and buffers. Defaults to
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Decoder) {
		d.log = l
	}
}

// Decoder converts audio files to the canonical signal. A Decoder holds no
// per-file state and is safe for concurrent use.
type Decoder struct {
	resampler ResamplerFactory
	log       *slog.Logger
}

// New returns a Decoder configured by opts.
func New(opts ...Option) *Decoder {
	d := &Decoder{
		resampler: NewResampler,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// File decodes the audio file at path with a default Decoder.
func File(path string, opts ...Option) ([]float32, error) {
	return New(opts...).File(path)
}

// File decodes the audio file at path. The file extension is used as a probe
// hint.
func (d *Decoder) File(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("decode: open %s: %w", path, err)
	}
	defer f.Close()
	return d.Decode(f, hintFromPath(path))
}

// Decode reads a complete audio stream from r. hint is a file extension such
// as ".mp3" and may be empty.
func (d *Decoder) Decode(r io.Reader, hint string) ([]float32, error) {
	format, err := probe(bufio.NewReader(r), hint)
	if err != nil {
		return nil, err
	}
	defer format.Close()

	track, ok := selectTrack(format.Tracks())
	if !ok {
		return nil, ErrNoSupportedTrack
	}
	if track.SampleRate <= 0 {
		return nil, ErrMissingSampleRate
	}

	codec, err := newCodec(track)
	if err != nil {
		return nil, err
	}

	log := d.log.With("codec", track.Codec.String(), "sample_rate", track.SampleRate, "channels", track.Channels)

	var (
		mono        []float32
		warnedShape bool
	)
	for {
		pkt, err := format.NextPacket()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, fmt.Errorf("decode: read packet: %w", err)
		}
		if pkt.TrackID != track.ID {
			continue
		}

		buf, err := codec.Decode(pkt)
		if err != nil {
			var pe *PacketError
			if errors.As(err, &pe) {
				log.Warn("decode: skipping undecodable packet", "packet", pe.Offset, "err", pe.Err)
				continue
			}
			return nil, fmt.Errorf("decode: decode packet: %w", err)
		}

		samples, ok := downmix(buf)
		if !ok {
			if !warnedShape {
				log.Warn("decode: unsupported sample format, skipping buffers", "format", buf.Format.String())
				warnedShape = true
			}
			continue
		}
		mono = append(mono, samples...)
	}

	out, err := resample(mono, track.SampleRate, audio.SampleRate, d.resampler)
	if err != nil {
		return nil, err
	}
	log.Debug("decode: done", "input_samples", len(mono), "output_samples", len(out))
	return out, nil
}

// selectTrack returns the first track whose codec is not CodecNull.
func selectTrack(tracks []Track) (Track, bool) {
	for _, t := range tracks {
		if t.Codec != CodecNull {
			return t, true
		}
	}
	return Track{}, false
}
