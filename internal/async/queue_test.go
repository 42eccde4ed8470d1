package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/joseph-ayodele/docrouter/internal/common"
	"github.com/joseph-ayodele/docrouter/internal/pipeline"
)

type procFunc func(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error)

func (f procFunc) Process(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error) {
	return f(ctx, req)
}

func TestQueueProcessesAll(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]string{}
	proc := procFunc(func(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error) {
		if req.Path == "bad.pdf" {
			return nil, errors.New("bad")
		}
		return &pipeline.Outcome{Path: req.Path, ParseType: "txt"}, nil
	})
	q := NewProcessorQueue(proc, nil,
		WithWorkers(3),
		WithQueueSize(2),
		WithOnDone(func(job Job, out *pipeline.Outcome, err error) {
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				seen[job.Request.Path] = "error"
				return
			}
			seen[job.Request.Path] = out.ParseType
		}),
	)

	paths := []string{"a.pdf", "b.pdf", "bad.pdf", "c.pdf", "d.pdf"}
	for _, p := range paths {
		if err := q.Enqueue(context.Background(), Job{Request: pipeline.Request{Path: p}}); err != nil {
			t.Fatalf("Enqueue(%s): %v", p, err)
		}
	}
	q.Shutdown(context.Background())

	want := map[string]string{"a.pdf": "txt", "b.pdf": "txt", "bad.pdf": "error", "c.pdf": "txt", "d.pdf": "txt"}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestQueueClosed(t *testing.T) {
	q := NewProcessorQueue(procFunc(func(context.Context, pipeline.Request) (*pipeline.Outcome, error) {
		return &pipeline.Outcome{}, nil
	}), nil)
	q.Shutdown(context.Background())
	q.Shutdown(context.Background())
	if err := q.Enqueue(context.Background(), Job{}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("err = %v, want ErrQueueClosed", err)
	}
}

func TestQueueTimeoutAndTrace(t *testing.T) {
	var gotTrace atomic.Value
	proc := procFunc(func(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error) {
		gotTrace.Store(common.RequestIDFromContext(ctx))
		<-ctx.Done()
		return nil, ctx.Err()
	})
	errs := make(chan error, 1)
	q := NewProcessorQueue(proc, nil,
		WithWorkers(1),
		WithProcessTimeout(20*time.Millisecond),
		WithOnDone(func(_ Job, _ *pipeline.Outcome, err error) { errs <- err }),
	)
	if err := q.Enqueue(context.Background(), Job{TraceID: "trace-1"}); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-errs:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err = %v, want deadline exceeded", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job never finished")
	}
	q.Shutdown(context.Background())
	if gotTrace.Load() != "trace-1" {
		t.Errorf("trace = %v", gotTrace.Load())
	}
}

func TestQueueBackpressureHonorsContext(t *testing.T) {
	release := make(chan struct{})
	proc := procFunc(func(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error) {
		<-release
		return &pipeline.Outcome{}, nil
	})
	q := NewProcessorQueue(proc, nil, WithWorkers(1), WithQueueSize(1))
	defer func() {
		close(release)
		q.Shutdown(context.Background())
	}()

	// One job held by the worker, one filling the buffer.
	for i := 0; i < 2; i++ {
		if err := q.Enqueue(context.Background(), Job{}); err != nil {
			t.Fatal(err)
		}
	}
	time.Sleep(20 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := q.Enqueue(ctx, Job{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

type sliceQueue struct {
	jobs []Job
	err  error
}

func (q *sliceQueue) Enqueue(_ context.Context, job Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *sliceQueue) Shutdown(context.Context) {}

func TestFeed(t *testing.T) {
	paths := make(chan string, 3)
	paths <- "a.pdf"
	paths <- "b.pdf"
	close(paths)

	q := &sliceQueue{}
	n, err := Feed(context.Background(), q, paths, pipeline.Request{Mode: "ocr", ModelPath: "ignored.json"}, nil)
	if err != nil || n != 2 {
		t.Fatalf("Feed = %d, %v", n, err)
	}
	for i, want := range []string{"a.pdf", "b.pdf"} {
		got := q.jobs[i].Request
		if got.Path != want || got.Mode != "ocr" || got.ModelPath != "" {
			t.Errorf("job %d = %+v", i, got)
		}
	}

	paths = make(chan string, 1)
	paths <- "c.pdf"
	if _, err := Feed(context.Background(), &sliceQueue{err: ErrQueueClosed}, paths, pipeline.Request{}, nil); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("err = %v, want ErrQueueClosed", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if n, err := Feed(ctx, q, make(chan string), pipeline.Request{}, nil); n != 0 || err != nil {
		t.Errorf("canceled Feed = %d, %v", n, err)
	}
}
