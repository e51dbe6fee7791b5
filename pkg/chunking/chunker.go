// Package chunking splits long canonical audio into segments of roughly 30 s,
// cutting at silence found by a voice activity detector, and hands each
// segment to a Handler for transcription.
//
// For every segment that is not the tail of the recording, the chunker scans
// 30 ms frames in a window of ±5 s around the 30 s target. The first frame the
// detector classifies as non-speech ends the segment. If the window contains
// no silence the segment is cut hard at the target.
//
// A single detector is opened per ChunkAudio call and its recurrent state is
// carried across search windows. Processing is sequential.
package chunking

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/segmentscribe/pkg/audio"
	"github.com/MrWong99/segmentscribe/pkg/provider/vad"
)

const (
	// TargetSamples is the preferred segment length (30 s).
	TargetSamples = 30 * audio.SampleRate

	// SearchWindow is how far (5 s) before and after the target the chunker
	// looks for silence.
	SearchWindow = 5 * audio.SampleRate

	// FrameSize is the detector frame length (30 ms).
	FrameSize = vad.FrameSize
)

// ErrVADInit is returned when the detector cannot be created.
var ErrVADInit = errors.New("chunking: failed to initialise VAD")

// ErrSegmentLength is returned when the configured target is shorter than one
// detector frame or the search window is negative.
var ErrSegmentLength = errors.New("chunking: invalid segment length")

// CutReason describes why a segment ends where it does.
type CutReason int

const (
	// CutEnd marks the final segment, which runs to the end of the input.
	CutEnd CutReason = iota

	// CutSilence marks a segment that ends after a non-speech frame.
	CutSilence

	// CutHard marks a segment cut at the target because no silence was found.
	CutHard
)

// String returns the reason name.
func (r CutReason) String() string {
	switch r {
	case CutEnd:
		return "end"
	case CutSilence:
		return "silence"
	case CutHard:
		return "hard"
	default:
		return fmt.Sprintf("CutReason(%d)", int(r))
	}
}

// Segment is the half-open sample range [Start, End) of one chunk.
type Segment struct {
	Start int
	End   int
	Cut   CutReason
}

// Len returns the number of samples in the segment.
func (s Segment) Len() int { return s.End - s.Start }

// Option is a functional option for configuring a Chunker.
type Option func(*Chunker)

// WithTargetSamples overrides TargetSamples. Values below FrameSize make
// ChunkAudio and Segments fail with ErrSegmentLength.
func WithTargetSamples(n int) Option {
	return func(c *Chunker) {
		c.target = n
	}
}

// WithSearchWindow overrides SearchWindow.
func WithSearchWindow(n int) Option {
	return func(c *Chunker) {
		c.window = n
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Chunker) {
		c.log = l
	}
}

// WithSegmentHook registers fn to be called with every planned segment before
// it is handed to the Handler.
func WithSegmentHook(fn func(Segment)) Option {
	return func(c *Chunker) {
		c.hook = fn
	}
}

// Chunker performs VAD-guided segmentation. A Chunker is stateless between
// calls and may be used from multiple goroutines; each call opens its own
// detector through the Loader.
type Chunker struct {
	loader vad.Loader
	target int
	window int
	log    *slog.Logger
	hook   func(Segment)
}

// New returns a Chunker that opens detectors with loader.
func New(loader vad.Loader, opts ...Option) *Chunker {
	c := &Chunker{
		loader: loader,
		target: TargetSamples,
		window: SearchWindow,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ChunkAudio segments samples with the VAD model at modelPath, transcribes each
// segment through h and returns the segment texts joined by single spaces.
//
// A handler error aborts the call and is returned as is; progress is not
// reported for the failing segment. Empty input yields "" without calling h.
func (c *Chunker) ChunkAudio(samples []float32, modelPath string, h Handler) (string, error) {
	if err := c.validate(); err != nil {
		return "", err
	}
	det, err := c.open(modelPath)
	if err != nil {
		return "", err
	}
	defer c.closeDetector(det)

	total := len(samples)
	var out strings.Builder
	for start := 0; start < total; {
		seg := c.next(det, samples, start)
		if c.hook != nil {
			c.hook(seg)
		}
		c.log.Debug("chunking: processing segment", "start", seg.Start, "len", seg.Len(), "cut", seg.Cut.String())

		chunk := make([]float32, seg.Len())
		copy(chunk, samples[seg.Start:seg.End])
		text, err := h.ProcessSegment(chunk)
		if err != nil {
			return "", err
		}

		if out.Len() > 0 {
			out.WriteByte(' ')
		}
		out.WriteString(text)

		start = seg.End
		h.ReportProgress(float64(start) / float64(total) * 100)
	}
	return out.String(), nil
}

// Segments returns the segmentation ChunkAudio would produce for samples
// without transcribing anything.
func (c *Chunker) Segments(samples []float32, modelPath string) ([]Segment, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	det, err := c.open(modelPath)
	if err != nil {
		return nil, err
	}
	defer c.closeDetector(det)

	var segs []Segment
	for start := 0; start < len(samples); {
		seg := c.next(det, samples, start)
		segs = append(segs, seg)
		start = seg.End
	}
	return segs, nil
}

// validate rejects settings under which a segment could be empty.
func (c *Chunker) validate() error {
	if c.target < FrameSize {
		return fmt.Errorf("%w: target %d samples is shorter than one %d-sample frame", ErrSegmentLength, c.target, FrameSize)
	}
	if c.window < 0 {
		return fmt.Errorf("%w: negative search window %d", ErrSegmentLength, c.window)
	}
	return nil
}

func (c *Chunker) open(modelPath string) (*vad.Detector, error) {
	det, err := vad.Open(c.loader, modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVADInit, err)
	}
	return det, nil
}

func (c *Chunker) closeDetector(det *vad.Detector) {
	if err := det.Close(); err != nil {
		c.log.Warn("chunking: close VAD", "err", err)
	}
}

// next computes the segment starting at start.
func (c *Chunker) next(det *vad.Detector, samples []float32, start int) Segment {
	total := len(samples)
	if start+c.target >= total {
		return Segment{Start: start, End: total, Cut: CutEnd}
	}

	targetEnd := start + c.target
	searchStart := max(targetEnd-c.window, start)
	searchEnd := min(targetEnd+c.window, total)

	// Frames are aligned relative to the segment start.
	aligned := start + ((searchStart-start)/FrameSize)*FrameSize

	for pos := aligned; pos < searchEnd; pos += FrameSize {
		if pos+FrameSize > total {
			break
		}
		res, err := det.PushFrame(samples[pos : pos+FrameSize])
		if err != nil {
			c.log.Warn("chunking: VAD error, treating frame as speech", "sample", pos, "err", err)
			continue
		}
		if !res.IsSpeech() {
			c.log.Debug("chunking: found silence", "sample", pos+FrameSize)
			return Segment{Start: start, End: pos + FrameSize, Cut: CutSilence}
		}
	}

	c.log.Debug("chunking: no silence in search window, hard cut", "sample", targetEnd)
	return Segment{Start: start, End: targetEnd, Cut: CutHard}
}
