package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavFormatPCM is the WAVE format tag for integer PCM.
const wavFormatPCM = 1

// SaveWAV writes samples to path as a 16-bit PCM, mono, 16 kHz WAV file.
// Each sample is converted with [ToInt16]. An existing file is truncated.
func SaveWAV(path string, samples []float32) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audio: create wav file: %w", err)
	}
	if err := WriteWAV(f, samples); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("audio: close wav file: %w", err)
	}
	return nil
}

// WriteWAV encodes samples as a canonical 16-bit PCM WAV stream into ws.
// The header sizes are patched on completion, which is why a seeker is needed.
func WriteWAV(ws io.WriteSeeker, samples []float32) error {
	enc := wav.NewEncoder(ws, SampleRate, BitDepth, Channels, wavFormatPCM)

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(ToInt16(s))
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: Channels, SampleRate: SampleRate},
		Data:           data,
		SourceBitDepth: BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: finalise wav: %w", err)
	}
	return nil
}

// EncodeWAV returns samples as an in-memory canonical WAV file, suitable for
// multipart uploads to transcription servers.
func EncodeWAV(samples []float32) ([]byte, error) {
	var ws writeSeekBuffer
	if err := WriteWAV(&ws, samples); err != nil {
		return nil, err
	}
	return ws.buf, nil
}

// writeSeekBuffer is a growable byte slice implementing io.WriteSeeker.
type writeSeekBuffer struct {
	buf []byte
	pos int
}

func (w *writeSeekBuffer) Write(p []byte) (int, error) {
	end := w.pos + len(p)
	if end > len(w.buf) {
		if end > cap(w.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, w.buf)
			w.buf = grown
		} else {
			w.buf = w.buf[:end]
		}
	}
	copy(w.buf[w.pos:], p)
	w.pos = end
	return len(p), nil
}

func (w *writeSeekBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(w.pos) + offset
	case io.SeekEnd:
		abs = int64(len(w.buf)) + offset
	default:
		return 0, errors.New("audio: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("audio: negative seek position")
	}
	w.pos = int(abs)
	return abs, nil
}
