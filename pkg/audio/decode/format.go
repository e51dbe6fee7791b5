package decode

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// CodecType identifies the codec of a [Track].
type CodecType int

const (
	// CodecNull marks a track whose codec is unknown or unsupported. Such
	// tracks are never selected for decoding.
	CodecNull CodecType = iota

	// CodecPCM is raw interleaved little-endian PCM in the track's SampleFormat.
	CodecPCM

	// CodecOpus is an Opus stream carried in Ogg.
	CodecOpus

	// CodecVorbis is a Vorbis stream carried in Ogg.
	CodecVorbis
)

// String returns the codec name.
func (c CodecType) String() string {
	switch c {
	case CodecNull:
		return "null"
	case CodecPCM:
		return "pcm"
	case CodecOpus:
		return "opus"
	case CodecVorbis:
		return "vorbis"
	default:
		return fmt.Sprintf("CodecType(%d)", int(c))
	}
}

// Track describes one elementary stream inside a container.
type Track struct {
	// ID is unique within the container. Packets carry it in TrackID.
	ID int

	Codec CodecType

	// SampleRate in Hz. Zero means the container does not declare it.
	SampleRate int

	Channels int

	// SampleFormat is only meaningful for CodecPCM.
	SampleFormat SampleFormat

	// PreSkip is the number of leading frames the codec must discard (Opus).
	PreSkip int
}

// Packet is one unit of compressed or raw data belonging to a track.
type Packet struct {
	TrackID int
	Data    []byte

	// Buffer holds samples a container already unpacked. PCM packets that
	// set it carry no Data.
	Buffer *Buffer
}

// Format is a demuxed container. NextPacket returns io.EOF once the stream is
// exhausted; io.ErrUnexpectedEOF on a truncated stream is also treated as
// end-of-stream by the decoder.
type Format interface {
	Tracks() []Track
	NextPacket() (Packet, error)
	Close() error
}

// Container names returned by probe.
const (
	containerWAV  = "wav"
	containerFLAC = "flac"
	containerOgg  = "ogg"
	containerMP3  = "mp3"
)

// extensionHints maps lower-case file extensions to container names. They are
// consulted only when content sniffing is inconclusive.
var extensionHints = map[string]string{
	".wav":  containerWAV,
	".wave": containerWAV,
	".flac": containerFLAC,
	".ogg":  containerOgg,
	".oga":  containerOgg,
	".opus": containerOgg,
	".mp3":  containerMP3,
}

// probeSize is the number of leading bytes inspected by sniff.
const probeSize = 12

// probe identifies the container of br by content, falling back to the
// extension hint, and opens the matching demuxer.
func probe(br *bufio.Reader, hint string) (Format, error) {
	head, _ := br.Peek(probeSize)

	name := sniff(head)
	if name == "" {
		name = extensionHints[strings.ToLower(hint)]
	}

	switch name {
	case containerWAV:
		return newWAVFormat(br)
	case containerFLAC:
		return newFLACFormat(br)
	case containerOgg:
		return newOggFormat(br)
	case containerMP3:
		return newMP3Format(br)
	default:
		return nil, ErrUnsupportedFormat
	}
}

// sniff returns the container name identified by magic bytes, or "".
func sniff(head []byte) string {
	switch {
	case len(head) >= 12 && bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")):
		return containerWAV
	case bytes.HasPrefix(head, []byte("fLaC")):
		return containerFLAC
	case bytes.HasPrefix(head, []byte("OggS")):
		return containerOgg
	case bytes.HasPrefix(head, []byte("ID3")):
		return containerMP3
	case len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		return containerMP3
	default:
		return ""
	}
}

// hintFromPath returns the extension of path, used as the probe hint.
func hintFromPath(path string) string {
	return filepath.Ext(path)
}

// readFull is io.ReadFull that reports a clean io.EOF only when nothing was read.
func readFull(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	if err == io.ErrUnexpectedEOF && n > 0 {
		return n, nil
	}
	return n, err
}
