package decode_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/segmentscribe/pkg/audio"
	"github.com/MrWong99/segmentscribe/pkg/audio/decode"
)

// buildWAV assembles a minimal RIFF/WAVE file around data.
func buildWAV(tag uint16, channels, rate, bits int, data []byte) []byte {
	var b bytes.Buffer
	blockAlign := channels * bits / 8
	b.WriteString("RIFF")
	_ = binary.Write(&b, binary.LittleEndian, uint32(36+len(data)))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	_ = binary.Write(&b, binary.LittleEndian, uint32(16))
	_ = binary.Write(&b, binary.LittleEndian, tag)
	_ = binary.Write(&b, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&b, binary.LittleEndian, uint32(rate))
	_ = binary.Write(&b, binary.LittleEndian, uint32(rate*blockAlign))
	_ = binary.Write(&b, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(&b, binary.LittleEndian, uint16(bits))
	// An unrelated chunk with odd size exercises chunk skipping and padding.
	b.WriteString("JUNK")
	_ = binary.Write(&b, binary.LittleEndian, uint32(3))
	b.Write([]byte{1, 2, 3, 0})
	b.WriteString("data")
	_ = binary.Write(&b, binary.LittleEndian, uint32(len(data)))
	b.Write(data)
	return b.Bytes()
}

func le16(vals ...int16) []byte {
	out := make([]byte, len(vals)*2)
	for i, v := range vals {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// decimator is a deterministic Resampler that keeps every n-th sample.
type decimator struct {
	n     int
	calls [][]float64
}

func (d *decimator) Process(in []float64) ([]float64, error) {
	cp := make([]float64, len(in))
	copy(cp, in)
	d.calls = append(d.calls, cp)
	out := make([]float64, len(in)/d.n)
	for i := range out {
		out[i] = in[i*d.n]
	}
	return out, nil
}

func assertSamples(t *testing.T, got, want []float32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("sample count: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDecode_SampleFormats(t *testing.T) {
	f32 := make([]byte, 8)
	binary.LittleEndian.PutUint32(f32[0:], math.Float32bits(0.25))
	binary.LittleEndian.PutUint32(f32[4:], math.Float32bits(-0.75))

	f64 := make([]byte, 16)
	binary.LittleEndian.PutUint64(f64[0:], math.Float64bits(0.5))
	binary.LittleEndian.PutUint64(f64[8:], math.Float64bits(-0.5))

	tests := []struct {
		name string
		wav  []byte
		want []float32
	}{
		{
			name: "u8 mono",
			wav:  buildWAV(1, 1, 16000, 8, []byte{128, 0, 255, 192}),
			want: []float32{0, -1, 127.0 / 128.0, 0.5},
		},
		{
			name: "s16 mono",
			wav:  buildWAV(1, 1, 16000, 16, le16(0, 16384, -32768)),
			want: []float32{0, 0.5, -1},
		},
		{
			name: "s16 stereo averages channels",
			wav:  buildWAV(1, 2, 16000, 16, le16(16384, -16384, 16384, 16384)),
			want: []float32{0, 0.5},
		},
		{
			name: "f32 stereo",
			wav:  buildWAV(3, 2, 16000, 32, f32),
			want: []float32{-0.25},
		},
		{
			name: "f64 mono",
			wav:  buildWAV(3, 1, 16000, 64, f64),
			want: []float32{0.5, -0.5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decode.New().Decode(bytes.NewReader(tt.wav), ".wav")
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			assertSamples(t, got, tt.want)
		})
	}
}

func TestDecode_WAVChunkBeforeFmt(t *testing.T) {
	// Broadcast WAV writers put bext and similar chunks ahead of fmt.
	std := buildWAV(1, 1, 16000, 16, le16(16384, -16384))
	var b bytes.Buffer
	b.Write(std[:12])
	b.WriteString("bext")
	_ = binary.Write(&b, binary.LittleEndian, uint32(6))
	b.Write([]byte{9, 9, 9, 9, 9, 9})
	b.Write(std[12:])

	got, err := decode.New().Decode(bytes.NewReader(b.Bytes()), ".wav")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	assertSamples(t, got, []float32{0.5, -0.5})
}

func TestDecode_UnsupportedSampleFormatIsSkipped(t *testing.T) {
	// 24-bit PCM decodes to S24 buffers, which the downmixer does not accept.
	data := []byte{0, 0, 0x40, 0, 0, 0xC0}
	got, err := decode.New().Decode(bytes.NewReader(buildWAV(1, 1, 16000, 24, data)), "")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no samples, got %d", len(got))
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		hint string
		want error
	}{
		{
			name: "unknown container",
			data: []byte("this is not audio at all"),
			hint: ".txt",
			want: decode.ErrUnsupportedFormat,
		},
		{
			name: "no supported track",
			data: buildWAV(0x0055, 1, 16000, 16, le16(0, 0)),
			want: decode.ErrNoSupportedTrack,
		},
		{
			name: "missing sample rate",
			data: buildWAV(1, 1, 0, 16, le16(0, 0)),
			want: decode.ErrMissingSampleRate,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decode.New().Decode(bytes.NewReader(tt.data), tt.hint)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got error %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecode_TruncatedDataEndsCleanly(t *testing.T) {
	wav := buildWAV(1, 1, 16000, 16, le16(100, 200, 300, 400))
	// Cut the last sample and a half.
	wav = wav[:len(wav)-3]
	got, err := decode.New().Decode(bytes.NewReader(wav), ".wav")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("sample count: got %d, want 2", len(got))
	}
}

func TestDecode_Resamples(t *testing.T) {
	const n = 2*decode.ResampleChunkSize + 100
	pcm := make([]int16, n)
	for i := range pcm {
		pcm[i] = 8192
	}

	dec := &decimator{n: 3}
	d := decode.New(decode.WithResampler(func(in, out int) (decode.Resampler, error) {
		if in != 48000 || out != audio.SampleRate {
			t.Errorf("resampler rates: got %d->%d", in, out)
		}
		return dec, nil
	}))

	got, err := d.Decode(bytes.NewReader(buildWAV(1, 1, 48000, 16, le16(pcm...))), ".wav")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if len(dec.calls) != 3 {
		t.Fatalf("resampler calls: got %d, want 3", len(dec.calls))
	}
	for i, c := range dec.calls {
		if len(c) != decode.ResampleChunkSize {
			t.Errorf("call %d: chunk size %d, want %d", i, len(c), decode.ResampleChunkSize)
		}
	}
	last := dec.calls[2]
	if last[99] != 0.25 || last[100] != 0 || last[decode.ResampleChunkSize-1] != 0 {
		t.Errorf("final chunk not zero-padded: [99]=%v [100]=%v", last[99], last[100])
	}
	if want := 3 * (decode.ResampleChunkSize / 3); len(got) != want {
		t.Errorf("output length: got %d, want %d", len(got), want)
	}
}

func TestDecode_ResamplerFailure(t *testing.T) {
	d := decode.New(decode.WithResampler(func(int, int) (decode.Resampler, error) {
		return nil, errors.New("boom")
	}))
	_, err := d.Decode(bytes.NewReader(buildWAV(1, 1, 8000, 16, le16(1, 2, 3))), ".wav")
	if !errors.Is(err, decode.ErrResample) {
		t.Fatalf("got %v, want ErrResample", err)
	}
}

func TestDecode_DefaultResampler(t *testing.T) {
	for _, rate := range []int{8000, 22050, 44100, 48000} {
		t.Run(fmt.Sprintf("%dHz", rate), func(t *testing.T) {
			pcm := make([]int16, rate)
			for i := range pcm {
				pcm[i] = int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
			}
			got, err := decode.New().Decode(bytes.NewReader(buildWAV(1, 1, rate, 16, le16(pcm...))), ".wav")
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			// One second of input may deviate by at most one resampler chunk.
			tolerance := decode.ResampleChunkSize * audio.SampleRate / rate
			if diff := len(got) - audio.SampleRate; diff < -tolerance || diff > tolerance {
				t.Errorf("output length %d deviates from %d by %d, tolerance %d", len(got), audio.SampleRate, diff, tolerance)
			}
		})
	}
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	if err := os.WriteFile(path, buildWAV(1, 1, 16000, 16, le16(0, 16384)), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := decode.File(path)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	assertSamples(t, got, []float32{0, 0.5})

	if _, err := decode.File(filepath.Join(t.TempDir(), "missing.wav")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: got %v, want os.ErrNotExist", err)
	}
}

func TestFile_RoundTripsSaveWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rt.wav")
	in := []float32{0, 0.5, -0.5, 0.999}
	if err := audio.SaveWAV(path, in); err != nil {
		t.Fatal(err)
	}
	got, err := decode.File(path)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if len(got) != len(in) {
		t.Fatalf("sample count: got %d, want %d", len(got), len(in))
	}
	for i := range in {
		if math.Abs(float64(got[i]-in[i])) > 1e-3 {
			t.Errorf("sample %d: got %v, want ~%v", i, got[i], in[i])
		}
	}
}
