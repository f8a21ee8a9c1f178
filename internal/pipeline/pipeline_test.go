package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/videlboga/cyberkitty119-sub001/internal/audio"
	"github.com/videlboga/cyberkitty119-sub001/internal/media"
	"github.com/videlboga/cyberkitty119-sub001/internal/results"
	"github.com/videlboga/cyberkitty119-sub001/internal/storage"
	"github.com/videlboga/cyberkitty119-sub001/internal/transcribe"
)

type fakeResolver struct {
	path string
	err  error
}

func (f *fakeResolver) Resolve(ctx context.Context, src media.Source) (string, error) {
	return f.path, f.err
}

type fakeExtractor struct {
	err   error
	calls int
}

func (f *fakeExtractor) Extract(ctx context.Context, inputPath, outPath string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(outPath, []byte("RIFF"), 0o644)
}

type fakeSegmenter struct {
	count int
}

func (f *fakeSegmenter) Split(ctx context.Context, wavPath, outDir string) ([]audio.Segment, error) {
	segs := make([]audio.Segment, f.count)
	for i := range segs {
		path := filepath.Join(outDir, fmt.Sprintf("segment_%03d.wav", i))
		os.WriteFile(path, []byte("RIFF"), 0o644)
		segs[i] = audio.Segment{Index: i, Path: path, Offset: float64(i) * 600}
	}
	return segs, nil
}

type fakeTranscriber struct {
	mu     sync.Mutex
	calls  int
	err    error
	failOn map[string]bool // base names that fail individually
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath string) (*transcribe.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.failOn[filepath.Base(audioPath)] {
		return nil, errors.New("recognition failed")
	}
	return &transcribe.Result{
		Text: "text for " + filepath.Base(audioPath),
		Segments: []transcribe.Segment{
			{Text: "text for " + filepath.Base(audioPath), Start: 0, End: 5},
		},
	}, nil
}

type passthroughRefiner struct{ calls int }

func (r *passthroughRefiner) Refine(ctx context.Context, raw string) string {
	r.calls++
	return "refined: " + raw
}

type captureProgress struct {
	mu      sync.Mutex
	updates []string
}

func (p *captureProgress) Update(ctx context.Context, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, text)
	return nil
}

func newTestPipeline(t *testing.T, resolver *fakeResolver, extractor *fakeExtractor, segmenter *fakeSegmenter, stt *fakeTranscriber, cache results.Store) (*Pipeline, storage.Store) {
	t.Helper()
	store := storage.NewLocalStore(t.TempDir())
	p := New(Options{
		Resolver:       resolver,
		Extractor:      extractor,
		Segmenter:      segmenter,
		Transcriber:    stt,
		Refiner:        &passthroughRefiner{},
		Cache:          cache,
		Store:          store,
		WorkDir:        t.TempDir(),
		SegmentSeconds: 600,
		SttWorkers:     2,
		Log:            zerolog.Nop(),
	})
	return p, store
}

func TestProcessLongRecording(t *testing.T) {
	src := filepath.Join(t.TempDir(), "input.mp4")
	if err := os.WriteFile(src, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}

	stt := &fakeTranscriber{}
	cache := results.NewCache(time.Hour, 10, zerolog.Nop())
	progress := &captureProgress{}
	p, store := newTestPipeline(t, &fakeResolver{path: src}, &fakeExtractor{}, &fakeSegmenter{count: 3}, stt, cache)

	entry, err := p.Process(context.Background(), Job{
		Requester: 777,
		Source:    media.Source{LocalPath: src},
		Progress:  progress,
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if stt.calls != 3 {
		t.Errorf("transcriber calls = %d, want 3", stt.calls)
	}
	for i := 0; i < 3; i++ {
		want := fmt.Sprintf("segment_%03d.wav", i)
		if !strings.Contains(entry.Raw, want) {
			t.Errorf("raw transcript missing text from %s", want)
		}
	}
	if !strings.HasPrefix(entry.Formatted, "refined: ") {
		t.Errorf("formatted transcript not refined: %q", entry.Formatted)
	}

	cached, ok := cache.Get(777)
	if !ok {
		t.Fatal("result not cached")
	}
	if cached.Raw != entry.Raw {
		t.Error("cached raw differs from returned entry")
	}
	if !store.Exists(context.Background(), "777/raw.txt") {
		t.Error("raw artifact not stored")
	}
	if !store.Exists(context.Background(), "777/formatted.txt") {
		t.Error("formatted artifact not stored")
	}
	if entry.RawPath == "" || entry.FormattedPath == "" {
		t.Error("artifact paths not populated")
	}

	progress.mu.Lock()
	defer progress.mu.Unlock()
	if len(progress.updates) < 3 {
		t.Errorf("progress updates = %d, want at least 3", len(progress.updates))
	}
}

func TestProcessDecodeFailureSkipsTranscription(t *testing.T) {
	src := filepath.Join(t.TempDir(), "silent.mp4")
	if err := os.WriteFile(src, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}

	stt := &fakeTranscriber{}
	cache := results.NewCache(time.Hour, 10, zerolog.Nop())
	p, _ := newTestPipeline(t, &fakeResolver{path: src}, &fakeExtractor{err: audio.ErrNoAudio}, &fakeSegmenter{count: 1}, stt, cache)

	_, err := p.Process(context.Background(), Job{Requester: 1, Source: media.Source{LocalPath: src}})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := FailedStage(err); got != StageDecode {
		t.Errorf("FailedStage = %q, want %q", got, StageDecode)
	}
	if !errors.Is(err, audio.ErrNoAudio) {
		t.Errorf("error does not wrap ErrNoAudio: %v", err)
	}
	if stt.calls != 0 {
		t.Errorf("transcriber called %d times after decode failure", stt.calls)
	}
	if _, ok := cache.Get(1); ok {
		t.Error("failed job must not populate the cache")
	}
}

func TestProcessAcquireFailure(t *testing.T) {
	stt := &fakeTranscriber{}
	cache := results.NewCache(time.Hour, 10, zerolog.Nop())
	extractor := &fakeExtractor{}
	p, _ := newTestPipeline(t, &fakeResolver{err: errors.New("download refused")}, extractor, &fakeSegmenter{count: 1}, stt, cache)

	_, err := p.Process(context.Background(), Job{Requester: 2})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := FailedStage(err); got != StageAcquire {
		t.Errorf("FailedStage = %q, want %q", got, StageAcquire)
	}
	if extractor.calls != 0 {
		t.Error("extractor called after acquisition failure")
	}
}

func TestProcessTranscribeFailure(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.mp3")
	if err := os.WriteFile(src, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	stt := &fakeTranscriber{err: errors.New("all models failed")}
	cache := results.NewCache(time.Hour, 10, zerolog.Nop())
	p, _ := newTestPipeline(t, &fakeResolver{path: src}, &fakeExtractor{}, &fakeSegmenter{count: 2}, stt, cache)

	_, err := p.Process(context.Background(), Job{Requester: 3, Source: media.Source{LocalPath: src}})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := FailedStage(err); got != StageTranscribe {
		t.Errorf("FailedStage = %q, want %q", got, StageTranscribe)
	}
}

func TestProcessToleratesPartialSegmentFailure(t *testing.T) {
	src := filepath.Join(t.TempDir(), "long.mp3")
	if err := os.WriteFile(src, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	// The middle segment fails; the job still completes with the other two.
	stt := &fakeTranscriber{failOn: map[string]bool{"segment_001.wav": true}}
	cache := results.NewCache(time.Hour, 10, zerolog.Nop())
	p, _ := newTestPipeline(t, &fakeResolver{path: src}, &fakeExtractor{}, &fakeSegmenter{count: 3}, stt, cache)

	entry, err := p.Process(context.Background(), Job{Requester: 4, Source: media.Source{LocalPath: src}})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if stt.calls != 3 {
		t.Errorf("transcriber calls = %d, want 3", stt.calls)
	}
	if strings.Contains(entry.Raw, "segment_001.wav") {
		t.Error("failed segment should contribute no text")
	}
	for _, want := range []string{"segment_000.wav", "segment_002.wav"} {
		if !strings.Contains(entry.Raw, want) {
			t.Errorf("raw transcript missing text from %s", want)
		}
	}
}

func TestWorkerPoolDelivers(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.mp3")
	if err := os.WriteFile(src, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	cache := results.NewCache(time.Hour, 10, zerolog.Nop())
	p, _ := newTestPipeline(t, &fakeResolver{path: src}, &fakeExtractor{}, &fakeSegmenter{count: 1}, &fakeTranscriber{}, cache)

	delivered := make(chan error, 1)
	pool := NewWorkerPool(p, 1, 4, func(ctx context.Context, job Job, entry results.Entry, jobErr error) {
		delivered <- jobErr
	}, zerolog.Nop())
	pool.Start()

	if !pool.Enqueue(Job{Requester: 9, Source: media.Source{LocalPath: src}}) {
		t.Fatal("Enqueue returned false")
	}

	select {
	case err := <-delivered:
		if err != nil {
			t.Errorf("delivered error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job not delivered in time")
	}
	pool.Stop()

	stats := pool.Stats()
	if stats.Completed != 1 || stats.Failed != 0 {
		t.Errorf("stats = %+v, want 1 completed, 0 failed", stats)
	}
}

func TestWorkerPoolEnqueueAfterStopRejected(t *testing.T) {
	cache := results.NewCache(time.Hour, 10, zerolog.Nop())
	p, _ := newTestPipeline(t, &fakeResolver{path: "x"}, &fakeExtractor{}, &fakeSegmenter{count: 1}, &fakeTranscriber{}, cache)

	pool := NewWorkerPool(p, 1, 4, nil, zerolog.Nop())
	pool.Start()
	pool.Stop()

	// A straggler from the drop-folder watcher must be rejected, not panic
	// with a send on a closed channel.
	if pool.Enqueue(Job{Requester: 1}) {
		t.Error("Enqueue after Stop should return false")
	}

	// Stop is idempotent.
	pool.Stop()
}

func TestWorkerPoolRejectsWhenFull(t *testing.T) {
	cache := results.NewCache(time.Hour, 10, zerolog.Nop())
	p, _ := newTestPipeline(t, &fakeResolver{path: "x"}, &fakeExtractor{}, &fakeSegmenter{count: 1}, &fakeTranscriber{}, cache)

	// Pool never started, so the queue fills up.
	pool := NewWorkerPool(p, 1, 2, nil, zerolog.Nop())
	if !pool.Enqueue(Job{Requester: 1}) || !pool.Enqueue(Job{Requester: 2}) {
		t.Fatal("queue should accept up to capacity")
	}
	if pool.Enqueue(Job{Requester: 3}) {
		t.Error("Enqueue should reject when queue is full")
	}
	if pool.QueueDepth() != 2 {
		t.Errorf("QueueDepth = %d, want 2", pool.QueueDepth())
	}
}
