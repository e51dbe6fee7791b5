package decode

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/mewkiz/flac"
)

// flacFormat wraps a FLAC stream. Each FLAC frame becomes one PCM packet:
// streams up to 16 bits are widened to S16, deeper streams are delivered as
// S32 (which the downmixer does not accept).
type flacFormat struct {
	stream *flac.Stream
	track  Track
	bits   int
}

var _ Format = (*flacFormat)(nil)

func newFLACFormat(r io.Reader) (*flacFormat, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, fmt.Errorf("decode: flac: %w", err)
	}
	info := stream.Info
	f := &flacFormat{
		stream: stream,
		bits:   int(info.BitsPerSample),
		track: Track{
			ID:           0,
			Codec:        CodecPCM,
			SampleRate:   int(info.SampleRate),
			Channels:     int(info.NChannels),
			SampleFormat: SampleS16,
		},
	}
	if f.bits > 16 {
		f.track.SampleFormat = SampleS32
	}
	return f, nil
}

// Tracks implements Format.
func (f *flacFormat) Tracks() []Track { return []Track{f.track} }

// NextPacket implements Format.
func (f *flacFormat) NextPacket() (Packet, error) {
	fr, err := f.stream.ParseNext()
	if err != nil {
		return Packet{}, err
	}
	channels := len(fr.Subframes)
	if channels != f.track.Channels || channels == 0 {
		return Packet{}, fmt.Errorf("decode: flac: frame has %d channels, stream declares %d", channels, f.track.Channels)
	}
	frames := len(fr.Subframes[0].Samples)

	if f.track.SampleFormat == SampleS16 {
		shift := 16 - f.bits
		data := make([]byte, frames*channels*2)
		for i := range frames {
			for ch, sub := range fr.Subframes {
				v := int16(sub.Samples[i] << shift)
				binary.LittleEndian.PutUint16(data[(i*channels+ch)*2:], uint16(v))
			}
		}
		return Packet{TrackID: f.track.ID, Data: data}, nil
	}

	shift := 32 - f.bits
	data := make([]byte, frames*channels*4)
	for i := range frames {
		for ch, sub := range fr.Subframes {
			binary.LittleEndian.PutUint32(data[(i*channels+ch)*4:], uint32(sub.Samples[i]<<shift))
		}
	}
	return Packet{TrackID: f.track.ID, Data: data}, nil
}

// Close implements Format.
func (f *flacFormat) Close() error { return f.stream.Close() }
