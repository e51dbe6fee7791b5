package decode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	oggHeaderSize  = 27
	oggFlagBOS     = 0x02
	opusSampleRate = 48000
)

var (
	oggCapture    = []byte("OggS")
	opusHeadMagic = []byte("OpusHead")
	opusTagsMagic = []byte("OpusTags")
	vorbisMagic   = []byte("\x01vorbis")
)

// oggPage is one parsed Ogg page.
type oggPage struct {
	flags   byte
	serial  uint32
	lacing  []byte
	payload []byte
}

// oggFormat demultiplexes an Ogg bitstream. Every logical stream becomes a
// track; its packets, header packets included, are delivered in page order.
type oggFormat struct {
	r       io.Reader
	tracks  []Track
	serials map[uint32]int
	partial map[uint32][]byte
	queue   []Packet
	done    bool
}

var _ Format = (*oggFormat)(nil)

func newOggFormat(r io.Reader) (*oggFormat, error) {
	o := &oggFormat{
		r:       r,
		serials: make(map[uint32]int),
		partial: make(map[uint32][]byte),
	}

	// All beginning-of-stream pages precede any data page.
	for {
		page, err := o.readPage()
		if err != nil {
			if errors.Is(err, io.EOF) && len(o.tracks) > 0 {
				o.done = true
				return o, nil
			}
			return nil, fmt.Errorf("decode: ogg: read header page: %w", err)
		}
		if page.flags&oggFlagBOS == 0 {
			o.enqueue(page)
			return o, nil
		}
		id := len(o.tracks)
		o.serials[page.serial] = id
		o.tracks = append(o.tracks, identifyOggStream(id, page.payload))
		o.enqueue(page)
	}
}

// identifyOggStream builds a track from the identification header carried on
// a beginning-of-stream page.
func identifyOggStream(id int, head []byte) Track {
	t := Track{ID: id, Codec: CodecNull}
	switch {
	case bytes.HasPrefix(head, opusHeadMagic) && len(head) >= 19:
		t.Channels = int(head[9])
		t.PreSkip = int(binary.LittleEndian.Uint16(head[10:12]))
		t.SampleRate = opusSampleRate
		// Opus channel mapping families beyond stereo need a multistream decoder.
		if t.Channels == 1 || t.Channels == 2 {
			t.Codec = CodecOpus
		}
	case bytes.HasPrefix(head, vorbisMagic) && len(head) >= 16:
		t.Channels = int(head[11])
		t.SampleRate = int(binary.LittleEndian.Uint32(head[12:16]))
		t.Codec = CodecVorbis
	}
	return t
}

// Tracks implements Format.
func (o *oggFormat) Tracks() []Track { return o.tracks }

// NextPacket implements Format.
func (o *oggFormat) NextPacket() (Packet, error) {
	for len(o.queue) == 0 {
		if o.done {
			return Packet{}, io.EOF
		}
		page, err := o.readPage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				o.done = true
				continue
			}
			return Packet{}, err
		}
		o.enqueue(page)
	}
	p := o.queue[0]
	o.queue = o.queue[1:]
	return p, nil
}

// Close implements Format.
func (o *oggFormat) Close() error { return nil }

// enqueue splits a page into packets using its lacing table. A packet whose
// last lacing value is 255 continues on the next page of the same stream.
func (o *oggFormat) enqueue(page oggPage) {
	id, ok := o.serials[page.serial]
	if !ok {
		// Pages of a stream that was not announced up front are ignored.
		return
	}
	pending := o.partial[page.serial]
	off := 0
	for _, l := range page.lacing {
		n := int(l)
		if off+n > len(page.payload) {
			break
		}
		pending = append(pending, page.payload[off:off+n]...)
		off += n
		if l < 255 {
			o.queue = append(o.queue, Packet{TrackID: id, Data: pending})
			pending = nil
		}
	}
	o.partial[page.serial] = pending
}

// readPage reads the next page. io.EOF is returned only at a page boundary.
func (o *oggFormat) readPage() (oggPage, error) {
	var hdr [oggHeaderSize]byte
	if _, err := io.ReadFull(o.r, hdr[:]); err != nil {
		return oggPage{}, err
	}
	if !bytes.Equal(hdr[0:4], oggCapture) {
		return oggPage{}, errors.New("decode: ogg: lost page sync")
	}
	page := oggPage{
		flags:  hdr[5],
		serial: binary.LittleEndian.Uint32(hdr[14:18]),
		lacing: make([]byte, hdr[26]),
	}
	if _, err := io.ReadFull(o.r, page.lacing); err != nil {
		return oggPage{}, unexpected(err)
	}
	size := 0
	for _, l := range page.lacing {
		size += int(l)
	}
	page.payload = make([]byte, size)
	if _, err := io.ReadFull(o.r, page.payload); err != nil {
		return oggPage{}, unexpected(err)
	}
	return page, nil
}

// unexpected maps a clean EOF inside a structure to io.ErrUnexpectedEOF.
func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
