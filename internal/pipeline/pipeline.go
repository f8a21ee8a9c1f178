package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/videlboga/cyberkitty119-sub001/internal/audio"
	"github.com/videlboga/cyberkitty119-sub001/internal/media"
	"github.com/videlboga/cyberkitty119-sub001/internal/metrics"
	"github.com/videlboga/cyberkitty119-sub001/internal/results"
	"github.com/videlboga/cyberkitty119-sub001/internal/storage"
	"github.com/videlboga/cyberkitty119-sub001/internal/telegram"
	"github.com/videlboga/cyberkitty119-sub001/internal/transcribe"
)

// SourceResolver turns a media source into a local file path.
type SourceResolver interface {
	Resolve(ctx context.Context, src media.Source) (string, error)
}

// Extractor decodes a media file into a normalized WAV.
type Extractor interface {
	Extract(ctx context.Context, inputPath, outPath string) error
}

// Segmenter splits a WAV into fixed-length windows.
type Segmenter interface {
	Split(ctx context.Context, wavPath, outDir string) ([]audio.Segment, error)
}

// TextRefiner formats a raw transcript. It never fails; unformattable chunks
// are passed through as-is.
type TextRefiner interface {
	Refine(ctx context.Context, raw string) string
}

// ProgressFactory creates a progress reporter for a job at the moment it
// starts running. May return nil for jobs with no delivery channel.
type ProgressFactory func(ctx context.Context, job Job) telegram.Progress

// Job is a transcription request moving through the pipeline.
type Job struct {
	Requester  int64
	Source     media.Source
	Progress   telegram.Progress
	EnqueuedAt time.Time
}

// Pipeline runs a job end to end: acquire media, extract audio, segment,
// transcribe, reconstruct timestamps, refine, store artifacts, cache.
type Pipeline struct {
	resolver       SourceResolver
	extractor      Extractor
	segmenter      Segmenter
	stt            transcribe.Transcriber
	refiner        TextRefiner
	cache          results.Store
	store          storage.Store
	workDir        string
	segmentSeconds int
	sttWorkers     int
	progress       ProgressFactory
	log            zerolog.Logger
}

// Options configures a Pipeline.
type Options struct {
	Resolver       SourceResolver
	Extractor      Extractor
	Segmenter      Segmenter
	Transcriber    transcribe.Transcriber
	Refiner        TextRefiner
	Cache          results.Store
	Store          storage.Store
	WorkDir        string
	SegmentSeconds int
	SttWorkers     int
	Progress       ProgressFactory
	Log            zerolog.Logger
}

// New creates a Pipeline from options.
func New(opts Options) *Pipeline {
	if opts.SttWorkers <= 0 {
		opts.SttWorkers = 2
	}
	return &Pipeline{
		resolver:       opts.Resolver,
		extractor:      opts.Extractor,
		segmenter:      opts.Segmenter,
		stt:            opts.Transcriber,
		refiner:        opts.Refiner,
		cache:          opts.Cache,
		store:          opts.Store,
		workDir:        opts.WorkDir,
		segmentSeconds: opts.SegmentSeconds,
		sttWorkers:     opts.SttWorkers,
		progress:       opts.Progress,
		log:            opts.Log.With().Str("component", "pipeline").Logger(),
	}
}

// Process runs a single job and returns the cached result entry. Progress
// updates are best effort; a failed edit never fails the job.
func (p *Pipeline) Process(ctx context.Context, job Job) (results.Entry, error) {
	log := p.log.With().Int64("requester", job.Requester).Logger()
	start := time.Now()

	if job.Progress == nil && p.progress != nil {
		job.Progress = p.progress(ctx, job)
	}

	p.notify(ctx, job, "Downloading media...")
	mediaPath, err := p.resolver.Resolve(ctx, job.Source)
	if err != nil {
		return results.Entry{}, stageErr(StageAcquire, err)
	}

	jobDir, err := os.MkdirTemp(p.workDir, "job-*")
	if err != nil {
		return results.Entry{}, stageErr(StageDecode, fmt.Errorf("create job dir: %w", err))
	}
	defer os.RemoveAll(jobDir)

	p.notify(ctx, job, "Extracting audio...")
	wavPath := filepath.Join(jobDir, "audio.wav")
	if err := p.extractor.Extract(ctx, mediaPath, wavPath); err != nil {
		return results.Entry{}, stageErr(StageDecode, err)
	}

	segments, err := p.segmenter.Split(ctx, wavPath, jobDir)
	if err != nil {
		return results.Entry{}, stageErr(StageSegment, err)
	}

	p.notify(ctx, job, fmt.Sprintf("Transcribing %d segment(s)...", len(segments)))
	windows, err := p.transcribeAll(ctx, segments)
	if err != nil {
		return results.Entry{}, stageErr(StageTranscribe, err)
	}

	transcript := transcribe.Reconstruct(windows, float64(p.segmentSeconds))

	p.notify(ctx, job, "Formatting transcript...")
	formatted := p.refiner.Refine(ctx, transcript.Timestamped)

	entry := results.Entry{
		Raw:       transcript.Timestamped,
		Formatted: formatted,
		CreatedAt: time.Now(),
	}

	rawKey := fmt.Sprintf("%d/raw.txt", job.Requester)
	formattedKey := fmt.Sprintf("%d/formatted.txt", job.Requester)
	if err := p.store.Save(ctx, rawKey, []byte(entry.Raw), "text/plain; charset=utf-8"); err != nil {
		return results.Entry{}, stageErr(StageStore, fmt.Errorf("save raw transcript: %w", err))
	}
	if err := p.store.Save(ctx, formattedKey, []byte(entry.Formatted), "text/plain; charset=utf-8"); err != nil {
		return results.Entry{}, stageErr(StageStore, fmt.Errorf("save formatted transcript: %w", err))
	}
	entry.RawPath = p.store.LocalPath(rawKey)
	entry.FormattedPath = p.store.LocalPath(formattedKey)

	p.cache.Put(job.Requester, entry)

	log.Info().
		Int("segments", len(segments)).
		Int("raw_chars", len(entry.Raw)).
		Dur("elapsed", time.Since(start)).
		Msg("job complete")

	return entry, nil
}

// transcribeAll sends segments to speech recognition with bounded
// concurrency. Window order follows segment order regardless of completion
// order. A failed segment leaves its window empty; the job only fails when
// every window came back empty or the context was canceled.
func (p *Pipeline) transcribeAll(ctx context.Context, segments []audio.Segment) ([]transcribe.Window, error) {
	windows := make([]transcribe.Window, len(segments))
	sem := make(chan struct{}, p.sttWorkers)
	var wg sync.WaitGroup
	var lastErr error
	var mu sync.Mutex

	for i, seg := range segments {
		windows[i].Index = seg.Index
		wg.Add(1)
		go func(i int, seg audio.Segment) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			res, err := p.stt.Transcribe(ctx, seg.Path)
			if err != nil {
				metrics.SegmentsFailedTotal.Inc()
				p.log.Warn().Err(err).Int("segment", seg.Index).Msg("segment transcription failed, window left empty")
				mu.Lock()
				lastErr = fmt.Errorf("segment %d: %w", seg.Index, err)
				mu.Unlock()
				return
			}
			metrics.SegmentsTranscribedTotal.Inc()
			windows[i].Text = res.Text
			windows[i].Segments = res.Segments
		}(i, seg)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	empty := true
	for _, w := range windows {
		if w.Text != "" || len(w.Segments) > 0 {
			empty = false
			break
		}
	}
	if empty {
		if lastErr == nil {
			lastErr = fmt.Errorf("no segment produced any text")
		}
		return nil, fmt.Errorf("all %d segment(s) empty: %w", len(segments), lastErr)
	}
	return windows, nil
}

func (p *Pipeline) notify(ctx context.Context, job Job, text string) {
	if job.Progress == nil {
		return
	}
	if err := job.Progress.Update(ctx, text); err != nil {
		p.log.Debug().Err(err).Int64("requester", job.Requester).Msg("progress update failed")
	}
}
