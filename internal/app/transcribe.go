package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/segmentscribe/internal/observe"
	"github.com/MrWong99/segmentscribe/internal/store"
	"github.com/MrWong99/segmentscribe/internal/transcript"
	"github.com/MrWong99/segmentscribe/pkg/audio"
	"github.com/MrWong99/segmentscribe/pkg/chunking"
	"github.com/MrWong99/segmentscribe/pkg/provider/stt"
)

const (
	// promptTailRunes bounds how much of the previous segment's text is sent
	// as the prompt for the next one.
	promptTailRunes = 400

	// keywordBoost is the boost sent with every vocabulary term.
	keywordBoost = 2
)

// Result is the transcript of one file.
type Result struct {
	Path     string
	Text     string
	Language string

	// Segments holds one entry per chunk with its corrected text.
	Segments []store.Segment

	// Corrections lists vocabulary replacements made in Text. Nil for cached
	// results.
	Corrections []transcript.Correction

	AudioDuration time.Duration
	Elapsed       time.Duration

	// Cached is true when the result came from the transcript store.
	Cached bool
}

// Speedup returns seconds of audio processed per second of wall time, or 0
// when nothing was measured.
func (r *Result) Speedup() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return r.AudioDuration.Seconds() / r.Elapsed.Seconds()
}

// TranscribeFile decodes the file at path, segments it at silences and
// transcribes every segment through the engine chain. The joined text is
// corrected against the configured vocabulary and cached; a file whose
// contents and settings match a cached entry is returned without decoding.
func (a *App) TranscribeFile(ctx context.Context, path string) (res *Result, err error) {
	ctx, span := observe.StartSpan(ctx, "app.TranscribeFile",
		trace.WithAttributes(attribute.String("file.path", path)))
	defer func() { observe.EndSpan(span, err) }()

	log := a.log.With("file", path)
	if id := observe.CorrelationID(ctx); id != "" {
		log = log.With("trace_id", id)
	}
	start := time.Now()
	a.metrics.ActiveTranscriptions.Add(ctx, 1)
	defer a.metrics.ActiveTranscriptions.Add(ctx, -1)

	sum, err := store.HashFile(path)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	h := a.currentHints()
	key := store.Key{AudioSHA256: sum, Engine: a.cfg.STT.Primary.Name, Variant: a.variant(h)}

	if cached, ok := a.lookup(ctx, key, log); ok {
		cached.Path = path
		cached.Elapsed = time.Since(start)
		log.Info("transcript served from cache", "audio", cached.AudioDuration)
		return cached, nil
	}

	samples, err := a.decode(ctx, path)
	if err != nil {
		return nil, err
	}
	dur := audio.Duration(len(samples))
	a.metrics.AudioSeconds.Add(ctx, dur.Seconds())

	run := &fileRun{a: a, ctx: ctx, path: path, log: log, hints: h, keywords: a.keywords()}
	raw, err := run.chunk(samples)
	if err != nil {
		return nil, err
	}
	raw.Duration = dur

	corrected, err := a.corrector.Correct(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("app: correct %s: %w", path, err)
	}

	res = &Result{
		Path:          path,
		Text:          corrected.Transcript.Text,
		Language:      corrected.Transcript.Language,
		Segments:      make([]store.Segment, len(run.planned)),
		Corrections:   corrected.Corrections,
		AudioDuration: dur,
	}
	for i, seg := range run.planned {
		res.Segments[i] = store.Segment{
			Start: audio.Duration(seg.Start),
			End:   audio.Duration(seg.End),
			Cut:   seg.Cut.String(),
			Text:  corrected.Transcript.Segments[i].Text,
		}
	}
	a.save(ctx, key, res, log)

	res.Elapsed = time.Since(start)
	a.metrics.FileDuration.Record(ctx, res.Elapsed.Seconds())
	log.Info("file transcribed",
		"audio", dur,
		"elapsed", res.Elapsed,
		"segments", len(res.Segments),
		"corrections", len(res.Corrections),
		"speedup", fmt.Sprintf("%.1fx", res.Speedup()),
	)
	return res, nil
}

// TranscribeFiles transcribes paths concurrently, bounded by
// pipeline.max_concurrent_files. Results are in input order. The first error
// cancels the remaining files and is returned together with the results that
// completed; entries of unfinished files are nil.
func (a *App) TranscribeFiles(ctx context.Context, paths []string) ([]*Result, error) {
	results := make([]*Result, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(a.cfg.Pipeline.MaxConcurrentFiles, 1))
	for i, path := range paths {
		g.Go(func() error {
			res, err := a.TranscribeFile(ctx, path)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	return results, g.Wait()
}

func (a *App) decode(ctx context.Context, path string) (samples []float32, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, span := observe.StartSpan(ctx, "app.decode")
	defer func() { observe.EndSpan(span, err) }()

	start := time.Now()
	samples, err = a.decoder.File(path)
	a.metrics.DecodeDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("app: decode %s: %w", path, err)
	}
	return samples, nil
}

// lookup consults the transcript store. Store errors are logged and treated
// as a miss.
func (a *App) lookup(ctx context.Context, key store.Key, log *slog.Logger) (*Result, bool) {
	e, err := a.store.Get(ctx, key)
	switch {
	case err == nil:
		a.metrics.RecordCacheLookup(ctx, "hit")
		return resultFromEntry(e), true
	case errors.Is(err, store.ErrNotFound):
		a.metrics.RecordCacheLookup(ctx, "miss")
	default:
		a.metrics.RecordCacheLookup(ctx, "error")
		log.Warn("transcript cache lookup failed", "err", err)
	}
	return nil, false
}

func (a *App) save(ctx context.Context, key store.Key, res *Result, log *slog.Logger) {
	err := a.store.Put(ctx, store.Entry{
		Key:           key,
		SourcePath:    res.Path,
		Text:          res.Text,
		Language:      res.Language,
		Segments:      res.Segments,
		AudioDuration: res.AudioDuration,
	})
	if err != nil {
		log.Warn("failed to cache transcript", "err", err)
	}
}

func resultFromEntry(e store.Entry) *Result {
	return &Result{
		Path:          e.SourcePath,
		Text:          e.Text,
		Language:      e.Language,
		Segments:      e.Segments,
		AudioDuration: e.AudioDuration,
		Cached:        true,
	}
}

// variant summarises the settings that change a transcript for the cache key.
func (a *App) variant(h hints) string {
	vocab := a.corrector.Vocabulary()
	slices.Sort(vocab)
	fallbacks := make([]string, len(a.cfg.STT.Fallbacks))
	for i, fb := range a.cfg.STT.Fallbacks {
		fallbacks[i] = fb.Name
	}
	return store.Variant(map[string]string{
		"model":         a.cfg.STT.Primary.Model,
		"fallbacks":     strings.Join(fallbacks, ","),
		"language":      h.language,
		"prompt":        h.prompt,
		"vocabulary":    strings.Join(vocab, "\n"),
		"target":        a.cfg.Chunking.Target.String(),
		"search_window": a.cfg.Chunking.SearchWindow.String(),
	})
}

func (a *App) keywords() []stt.KeywordBoost {
	vocab := a.corrector.Vocabulary()
	if len(vocab) == 0 {
		return nil
	}
	kws := make([]stt.KeywordBoost, len(vocab))
	for i, w := range vocab {
		kws[i] = stt.KeywordBoost{Keyword: w, Boost: keywordBoost}
	}
	return kws
}

func (a *App) currentHints() hints {
	a.hintsMu.RLock()
	defer a.hintsMu.RUnlock()
	return a.hints
}

// fileRun is the [chunking.Handler] for one file. The chunker calls it from a
// single goroutine.
type fileRun struct {
	a        *App
	ctx      context.Context
	path     string
	log      *slog.Logger
	hints    hints
	keywords []stt.KeywordBoost

	planned  []chunking.Segment
	texts    []string
	language string
	prev     string
}

var _ chunking.Handler = (*fileRun)(nil)

// chunk segments samples and transcribes every segment. The returned
// transcript has one segment per chunk on the timeline of the whole file.
func (r *fileRun) chunk(samples []float32) (tr stt.Transcript, err error) {
	ctx, span := observe.StartSpan(r.ctx, "app.chunk")
	defer func() { observe.EndSpan(span, err) }()

	start := time.Now()
	c := r.a.chunker(func(seg chunking.Segment) {
		r.planned = append(r.planned, seg)
		r.a.metrics.RecordSegment(ctx, seg.Cut.String())
	})
	text, err := c.ChunkAudio(samples, r.a.cfg.VAD.ModelPath, r)
	r.a.metrics.ChunkDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("app: chunk %s: %w", r.path, err)
	}

	segs := make([]stt.Segment, len(r.texts))
	for i, t := range r.texts {
		segs[i] = stt.Segment{
			Start: audio.Duration(r.planned[i].Start),
			End:   audio.Duration(r.planned[i].End),
			Text:  t,
		}
	}
	return stt.Transcript{Text: text, Language: r.language, Segments: segs}, nil
}

// ProcessSegment implements [chunking.Handler].
func (r *fileRun) ProcessSegment(samples []float32) (text string, err error) {
	if err := r.ctx.Err(); err != nil {
		return "", err
	}
	idx := len(r.texts)
	seg := r.planned[idx]

	ctx, span := observe.StartSpan(r.ctx, "app.transcribeSegment", trace.WithAttributes(
		attribute.Int("segment.index", idx),
		attribute.String("segment.cut", seg.Cut.String()),
	))
	defer func() { observe.EndSpan(span, err) }()

	r.saveSegment(idx, samples)

	opts := stt.Options{Language: r.hints.language, Prompt: r.prompt(), Keywords: r.keywords}
	start := time.Now()
	tr, err := r.a.stt.Transcribe(ctx, samples, opts)
	r.a.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("app: transcribe segment %d: %w", idx, err)
	}

	text = strings.TrimSpace(tr.Text)
	r.texts = append(r.texts, text)
	if r.language == "" {
		r.language = tr.Language
	}
	if text != "" {
		r.prev = text
	}
	r.log.Debug("segment transcribed",
		"index", idx,
		"start", audio.Duration(seg.Start),
		"end", audio.Duration(seg.End),
		"cut", seg.Cut.String(),
		"chars", len(text),
	)
	return text, nil
}

// ReportProgress implements [chunking.Handler].
func (r *fileRun) ReportProgress(percent float64) {
	r.log.Debug("progress", "percent", fmt.Sprintf("%.1f", percent))
	if r.a.progress != nil {
		r.a.progress(r.path, percent)
	}
}

// prompt combines the configured prompt with the tail of the previous
// segment's text.
func (r *fileRun) prompt() string {
	tail := r.prev
	if runes := []rune(tail); len(runes) > promptTailRunes {
		tail = string(runes[len(runes)-promptTailRunes:])
	}
	switch {
	case r.hints.prompt == "":
		return tail
	case tail == "":
		return r.hints.prompt
	default:
		return r.hints.prompt + " " + tail
	}
}

// saveSegment writes the segment to chunking.segments_dir when configured.
// Failures are logged only.
func (r *fileRun) saveSegment(idx int, samples []float32) {
	dir := r.a.cfg.Chunking.SegmentsDir
	if dir == "" {
		return
	}
	base := strings.TrimSuffix(filepath.Base(r.path), filepath.Ext(r.path))
	name := filepath.Join(dir, fmt.Sprintf("%s_%03d.wav", base, idx))
	if err := audio.SaveWAV(name, samples); err != nil {
		r.log.Warn("failed to save segment", "path", name, "err", err)
	}
}
