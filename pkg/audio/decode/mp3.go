package decode

import (
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

const (
	// go-mp3 always emits 16-bit little-endian stereo.
	mp3Channels  = 2
	mp3FrameSize = mp3Channels * 2

	// mp3PacketBytes is one MPEG-1 Layer III frame (1152 samples) of output.
	mp3PacketBytes = 1152 * mp3FrameSize
)

// mp3Format exposes the PCM output of an MPEG audio stream as a single track.
type mp3Format struct {
	dec   *mp3.Decoder
	track Track
}

var _ Format = (*mp3Format)(nil)

func newMP3Format(r io.Reader) (*mp3Format, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("decode: mp3: %w", err)
	}
	return &mp3Format{
		dec: dec,
		track: Track{
			ID:           0,
			Codec:        CodecPCM,
			SampleRate:   dec.SampleRate(),
			Channels:     mp3Channels,
			SampleFormat: SampleS16,
		},
	}, nil
}

// Tracks implements Format.
func (m *mp3Format) Tracks() []Track { return []Track{m.track} }

// NextPacket implements Format.
func (m *mp3Format) NextPacket() (Packet, error) {
	buf := make([]byte, mp3PacketBytes)
	n, err := readFull(m.dec, buf)
	if err != nil {
		return Packet{}, err
	}
	n -= n % mp3FrameSize
	if n == 0 {
		return Packet{}, io.ErrUnexpectedEOF
	}
	return Packet{TrackID: m.track.ID, Data: buf[:n]}, nil
}

// Close implements Format.
func (m *mp3Format) Close() error { return nil }
