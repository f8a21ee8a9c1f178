package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/videlboga/cyberkitty119-sub001/internal/metrics"
	"github.com/videlboga/cyberkitty119-sub001/internal/results"
)

// DeliverFunc is called when a job finishes, successfully or not. It sends
// the outcome back to the requester.
type DeliverFunc func(ctx context.Context, job Job, entry results.Entry, jobErr error)

// QueueStats reports the current state of the job queue.
type QueueStats struct {
	Pending   int   `json:"pending"`
	Active    int   `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// WorkerPool runs pipeline jobs from a bounded queue.
type WorkerPool struct {
	pipeline *Pipeline
	deliver  DeliverFunc
	jobs     chan Job
	workers  int
	log      zerolog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu     sync.Mutex
	closed bool

	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewWorkerPool creates a worker pool over the pipeline. deliver may be nil
// when no delivery channel exists (drop-folder jobs).
func NewWorkerPool(p *Pipeline, workers, queueSize int, deliver DeliverFunc, log zerolog.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		pipeline: p,
		deliver:  deliver,
		jobs:     make(chan Job, queueSize),
		workers:  workers,
		log:      log.With().Str("component", "worker-pool").Logger(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
	wp.log.Info().Int("workers", wp.workers).Int("queue_size", cap(wp.jobs)).Msg("worker pool started")
}

// Stop signals workers to drain the queue and waits for completion. Enqueue
// calls arriving after Stop are rejected, not panicked on.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return
	}
	wp.closed = true
	close(wp.jobs)
	wp.mu.Unlock()

	wp.wg.Wait()
	wp.cancel()
	wp.log.Info().
		Int64("completed", wp.completed.Load()).
		Int64("failed", wp.failed.Load()).
		Msg("worker pool stopped")
}

// Enqueue adds a job to the queue. Returns false if the queue is full or the
// pool has been stopped.
func (wp *WorkerPool) Enqueue(j Job) bool {
	if j.EnqueuedAt.IsZero() {
		j.EnqueuedAt = time.Now()
	}
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.closed {
		return false
	}
	select {
	case wp.jobs <- j:
		return true
	default:
		return false
	}
}

// Stats returns current queue statistics.
func (wp *WorkerPool) Stats() QueueStats {
	return QueueStats{
		Pending:   len(wp.jobs),
		Active:    int(wp.active.Load()),
		Completed: wp.completed.Load(),
		Failed:    wp.failed.Load(),
	}
}

// QueueDepth reports pending jobs for the metrics collector.
func (wp *WorkerPool) QueueDepth() int { return len(wp.jobs) }

// ActiveJobCount reports in-progress jobs for the metrics collector.
func (wp *WorkerPool) ActiveJobCount() int { return int(wp.active.Load()) }

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	log := wp.log.With().Int("worker", id).Logger()

	for job := range wp.jobs {
		wp.active.Add(1)
		start := time.Now()

		entry, err := wp.pipeline.Process(wp.ctx, job)
		elapsed := time.Since(start)
		metrics.JobDuration.Observe(elapsed.Seconds())

		if err != nil {
			wp.failed.Add(1)
			metrics.JobsTotal.WithLabelValues("failed").Inc()
			log.Warn().Err(err).
				Int64("requester", job.Requester).
				Str("stage", string(FailedStage(err))).
				Dur("elapsed", elapsed).
				Msg("job failed")
		} else {
			wp.completed.Add(1)
			metrics.JobsTotal.WithLabelValues("ok").Inc()
		}

		if wp.deliver != nil {
			wp.deliver(wp.ctx, job, entry, err)
		}
		wp.active.Add(-1)
	}
}
