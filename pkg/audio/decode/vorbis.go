package decode

import (
	"github.com/jfreymuth/vorbis"
)

// vorbisCodec decodes a Vorbis stream to interleaved F32. The first three
// packets of the stream are the identification, comment and setup headers.
type vorbisCodec struct {
	dec      vorbis.Decoder
	channels int
	packets  int
}

var _ Codec = (*vorbisCodec)(nil)

func newVorbisCodec(t Track) *vorbisCodec {
	return &vorbisCodec{channels: t.Channels}
}

func (c *vorbisCodec) Decode(p Packet) (Buffer, error) {
	idx := c.packets
	c.packets++

	buf := Buffer{Format: SampleF32, Channels: c.channels}
	if !c.dec.HeadersRead() {
		if err := c.dec.ReadHeader(p.Data); err != nil {
			return Buffer{}, &PacketError{Offset: idx, Err: err}
		}
		return buf, nil
	}

	out, err := c.dec.Decode(p.Data)
	if err != nil {
		return Buffer{}, &PacketError{Offset: idx, Err: err}
	}
	buf.F32 = out
	return buf, nil
}
