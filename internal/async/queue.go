// Package async runs documents through the pipeline on a bounded worker pool.
package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/docrouter/internal/common"
	"github.com/joseph-ayodele/docrouter/internal/pipeline"
)

// ErrQueueClosed is returned by Enqueue after Shutdown.
var ErrQueueClosed = errors.New("queue is shutting down")

// Job is one document to route.
type Job struct {
	Request     pipeline.Request
	SubmittedAt time.Time
	TraceID     string
}

// Processor is the slice of *pipeline.Processor the queue needs.
type Processor interface {
	Process(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error)
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// DoneFunc observes every finished job. It is called from worker goroutines.
type DoneFunc func(job Job, out *pipeline.Outcome, err error)

type ProcessorQueue struct {
	proc    Processor
	logger  *slog.Logger
	workers int
	timeout time.Duration
	onDone  DoneFunc

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}
func WithOnDone(fn DoneFunc) Option {
	return func(q *ProcessorQueue) { q.onDone = fn }
}

func NewProcessorQueue(proc Processor, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		proc:    proc,
		logger:  logger,
		workers: 4,
		timeout: 3 * time.Minute,
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("worker started", "worker_id", workerID)

				for job := range q.ch {
					q.run(workerID, job)
				}

				q.logger.Debug("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) run(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	if job.TraceID != "" {
		ctx = common.WithRequestID(ctx, job.TraceID)
	}

	out, err := q.proc.Process(ctx, job.Request)
	if err != nil {
		q.logger.Error("processing failed", "worker_id", workerID, "path", job.Request.Path, "error", err)
	} else {
		q.logger.Info("processed document successfully",
			"worker_id", workerID,
			"path", job.Request.Path,
			"parse_type", out.ParseType,
			"waited_ms", time.Since(job.SubmittedAt).Milliseconds(),
		)
	}
	if q.onDone != nil {
		q.onDone(job, out, err)
	}
}

// Enqueue hands job to a worker, blocking while the queue is full until ctx is done.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "path", job.Request.Path)
		return ErrQueueClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
		q.logger.Debug("queued document for processing", "path", job.Request.Path, "mode", job.Request.Mode)
		return nil
	default:
	}
	q.logger.Warn("queue full, applying backpressure", "path", job.Request.Path)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish or ctx to end.
func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}

// Feed enqueues every path received on paths using tmpl for the remaining
// request fields. It returns when paths is closed or ctx is done.
func Feed(ctx context.Context, q Queue, paths <-chan string, tmpl pipeline.Request, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	n := 0
	for {
		select {
		case <-ctx.Done():
			return n, nil
		case p, ok := <-paths:
			if !ok {
				return n, nil
			}
			req := tmpl
			req.Path = p
			req.ModelPath = ""
			if err := q.Enqueue(ctx, Job{Request: req, SubmittedAt: time.Now()}); err != nil {
				if ctx.Err() != nil {
					return n, nil
				}
				return n, err
			}
			n++
		}
	}
}
