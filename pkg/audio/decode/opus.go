package decode

import (
	"bytes"
	"fmt"

	"layeh.com/gopus"
)

// opusMaxFrameSize is the largest Opus frame (120 ms at 48 kHz) per channel.
const opusMaxFrameSize = 5760

// opusCodec decodes an Ogg Opus stream to interleaved S16 at 48 kHz and drops
// the encoder pre-skip from the start of the stream.
type opusCodec struct {
	dec      *gopus.Decoder
	channels int
	skip     int
	packets  int
}

var _ Codec = (*opusCodec)(nil)

func newOpusCodec(t Track) (*opusCodec, error) {
	dec, err := gopus.NewDecoder(opusSampleRate, t.Channels)
	if err != nil {
		return nil, fmt.Errorf("decode: create opus decoder: %w", err)
	}
	return &opusCodec{dec: dec, channels: t.Channels, skip: t.PreSkip}, nil
}

func (c *opusCodec) Decode(p Packet) (Buffer, error) {
	idx := c.packets
	c.packets++

	empty := Buffer{Format: SampleS16, Channels: c.channels}
	if bytes.HasPrefix(p.Data, opusHeadMagic) || bytes.HasPrefix(p.Data, opusTagsMagic) {
		return empty, nil
	}

	pcm, err := c.dec.Decode(p.Data, opusMaxFrameSize, false)
	if err != nil {
		return Buffer{}, &PacketError{Offset: idx, Err: err}
	}
	if c.skip > 0 {
		frames := len(pcm) / c.channels
		drop := min(c.skip, frames)
		pcm = pcm[drop*c.channels:]
		c.skip -= drop
	}
	empty.S16 = pcm
	return empty, nil
}
