package decode

import (
	"bytes"
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavTagPCM        = 0x0001
	wavTagFloat      = 0x0003
	wavTagExtensible = 0xFFFE

	// wavPacketFrames is the number of frames delivered per packet.
	wavPacketFrames = 4096
)

// wavFormat demuxes a RIFF/WAVE file into a single PCM track. Chunk walking
// and integer sample unpacking are done by go-audio/wav; its sample reader
// has no 64-bit depth, so float64 data is read from the PCM chunk directly and
// unpacked by the PCM codec.
type wavFormat struct {
	dec   *wav.Decoder
	track Track
	buf   *goaudio.IntBuffer // nil when reading raw float64 bytes
	done  bool
}

var _ Format = (*wavFormat)(nil)

func newWAVFormat(r io.Reader) (*wavFormat, error) {
	// The decoder needs a ReadSeeker to rewind over chunks that precede fmt.
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decode: wav: read: %w", err)
	}
	if sniff(data) != containerWAV {
		return nil, fmt.Errorf("decode: wav: %w", ErrUnsupportedFormat)
	}

	w := &wavFormat{dec: wav.NewDecoder(bytes.NewReader(data))}
	w.dec.ReadInfo()
	if err := w.dec.Err(); err != nil {
		return nil, fmt.Errorf("decode: wav: read header: %w", err)
	}
	w.track = wavTrack(w.dec)
	if w.track.Codec == CodecNull {
		w.done = true
		return w, nil
	}
	if err := w.dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("decode: wav: find data chunk: %w", err)
	}
	if w.track.SampleFormat != SampleF64 {
		w.buf = &goaudio.IntBuffer{Data: make([]int, wavPacketFrames*w.track.Channels)}
	}
	return w, nil
}

// wavTrack maps the fmt chunk to a Track. Extensible files are read as
// integer PCM since the decoder does not expose the sub-format GUID.
func wavTrack(d *wav.Decoder) Track {
	t := Track{ID: 0, Codec: CodecNull, SampleRate: int(d.SampleRate), Channels: int(d.NumChans)}
	if t.Channels <= 0 {
		return t
	}
	tag, bits := d.WavAudioFormat, d.BitDepth
	if tag == wavTagExtensible {
		tag = wavTagPCM
	}
	switch {
	case tag == wavTagPCM && bits == 8:
		t.SampleFormat = SampleU8
	case tag == wavTagPCM && bits == 16:
		t.SampleFormat = SampleS16
	case tag == wavTagPCM && bits == 24:
		t.SampleFormat = SampleS24
	case tag == wavTagPCM && bits == 32:
		t.SampleFormat = SampleS32
	case tag == wavTagFloat && bits == 32:
		t.SampleFormat = SampleF32
	case tag == wavTagFloat && bits == 64:
		t.SampleFormat = SampleF64
	default:
		return t
	}
	t.Codec = CodecPCM
	return t
}

// Tracks implements Format.
func (w *wavFormat) Tracks() []Track { return []Track{w.track} }

// NextPacket implements Format.
func (w *wavFormat) NextPacket() (Packet, error) {
	if w.done {
		return Packet{}, io.EOF
	}
	if w.buf == nil {
		return w.nextRaw()
	}

	n, err := w.dec.PCMBuffer(w.buf)
	if err != nil {
		return Packet{}, err
	}
	// Drop a trailing partial frame from a truncated file.
	n -= n % w.track.Channels
	if n == 0 {
		w.done = true
		return Packet{}, io.EOF
	}
	buf := intBuffer(w.buf.Data[:n], w.track)
	return Packet{TrackID: w.track.ID, Buffer: &buf}, nil
}

// nextRaw reads float64 frames straight from the data chunk.
func (w *wavFormat) nextRaw() (Packet, error) {
	frameSize := w.track.Channels * 8
	data := make([]byte, wavPacketFrames*frameSize)
	n, err := readFull(w.dec.PCMChunk, data)
	if err != nil {
		w.done = true
		return Packet{}, err
	}
	n -= n % frameSize
	if n == 0 {
		w.done = true
		return Packet{}, io.EOF
	}
	return Packet{TrackID: w.track.ID, Data: data[:n]}, nil
}

// intBuffer converts samples read by the wav decoder into a typed Buffer. The
// decoder returns 8-bit samples unsigned and 32-bit words as signed integers,
// so float32 data is recovered from the bit pattern.
func intBuffer(data []int, t Track) Buffer {
	buf := Buffer{Format: t.SampleFormat, Channels: t.Channels}
	switch t.SampleFormat {
	case SampleU8:
		buf.U8 = make([]uint8, len(data))
		for i, v := range data {
			buf.U8[i] = uint8(v)
		}
	case SampleS16:
		buf.S16 = make([]int16, len(data))
		for i, v := range data {
			buf.S16[i] = int16(v)
		}
	case SampleS24, SampleS32:
		buf.S32 = make([]int32, len(data))
		for i, v := range data {
			buf.S32[i] = int32(v)
		}
	case SampleF32:
		buf.F32 = make([]float32, len(data))
		for i, v := range data {
			buf.F32[i] = math.Float32frombits(uint32(int32(v)))
		}
	}
	return buf
}

// Close implements Format.
func (w *wavFormat) Close() error { return nil }
