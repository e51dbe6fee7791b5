package decode

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Codec turns the packets of one track into decoded buffers. A Codec returns
// a [*PacketError] for a packet it cannot decode but can recover from; any
// other error aborts decoding.
type Codec interface {
	Decode(p Packet) (Buffer, error)
}

// PacketError reports a single undecodable packet. Decoding continues with the
// next packet.
type PacketError struct {
	Offset int // packet index within the track
	Err    error
}

func (e *PacketError) Error() string {
	return fmt.Sprintf("decode: packet %d: %v", e.Offset, e.Err)
}

func (e *PacketError) Unwrap() error { return e.Err }

// newCodec instantiates the decoder for track.
func newCodec(track Track) (Codec, error) {
	switch track.Codec {
	case CodecPCM:
		return &pcmCodec{format: track.SampleFormat, channels: track.Channels}, nil
	case CodecOpus:
		return newOpusCodec(track)
	case CodecVorbis:
		return newVorbisCodec(track), nil
	default:
		return nil, fmt.Errorf("decode: no decoder for codec %s", track.Codec)
	}
}

// pcmCodec unpacks interleaved little-endian PCM.
type pcmCodec struct {
	format   SampleFormat
	channels int
	packets  int
}

var _ Codec = (*pcmCodec)(nil)

func (c *pcmCodec) Decode(p Packet) (Buffer, error) {
	idx := c.packets
	c.packets++
	if p.Buffer != nil {
		return *p.Buffer, nil
	}

	width := bytesPerSample(c.format)
	if width == 0 || c.channels <= 0 || len(p.Data)%(width*c.channels) != 0 {
		return Buffer{}, &PacketError{Offset: idx, Err: fmt.Errorf("%d bytes is not a whole number of %s frames", len(p.Data), c.format)}
	}
	n := len(p.Data) / width
	d := p.Data
	buf := Buffer{Format: c.format, Channels: c.channels}

	switch c.format {
	case SampleU8:
		buf.U8 = append([]uint8(nil), d...)
	case SampleS16:
		buf.S16 = make([]int16, n)
		for i := range n {
			buf.S16[i] = int16(binary.LittleEndian.Uint16(d[i*2:]))
		}
	case SampleS24:
		buf.S32 = make([]int32, n)
		for i := range n {
			v := int32(d[i*3]) | int32(d[i*3+1])<<8 | int32(d[i*3+2])<<16
			buf.S32[i] = v << 8 >> 8 // sign-extend
		}
	case SampleS32:
		buf.S32 = make([]int32, n)
		for i := range n {
			buf.S32[i] = int32(binary.LittleEndian.Uint32(d[i*4:]))
		}
	case SampleF32:
		buf.F32 = make([]float32, n)
		for i := range n {
			buf.F32[i] = math.Float32frombits(binary.LittleEndian.Uint32(d[i*4:]))
		}
	case SampleF64:
		buf.F64 = make([]float64, n)
		for i := range n {
			buf.F64[i] = math.Float64frombits(binary.LittleEndian.Uint64(d[i*8:]))
		}
	}
	return buf, nil
}

func bytesPerSample(f SampleFormat) int {
	switch f {
	case SampleU8:
		return 1
	case SampleS16:
		return 2
	case SampleS24:
		return 3
	case SampleS32, SampleF32:
		return 4
	case SampleF64:
		return 8
	default:
		return 0
	}
}
