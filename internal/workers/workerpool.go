package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ErrQueueFull          = errors.New("worker queue full")
	ErrPoolStopped        = errors.New("worker pool stopped")
	ErrPoolNotStarted     = errors.New("worker pool not started")
	ErrPoolAlreadyStarted = errors.New("worker pool already started")
	ErrStopTimeout        = errors.New("worker pool stop timed out")
)

// PanicError wraps a value recovered from a job.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("job panicked: %v", e.Value)
}

// WorkerPool runs jobs of type T on a fixed number of goroutines fed by a
// bounded queue. Submit never blocks.
type WorkerPool[T any] struct {
	workers int
	jobCh   chan T
	process func(context.Context, T) error

	onError    func(T, error)
	queueGauge prometheus.Gauge

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// Option configures a WorkerPool.
type Option[T any] func(*WorkerPool[T])

// WithErrorHandler is called for every job that returns an error or panics.
func WithErrorHandler[T any](fn func(job T, err error)) Option[T] {
	return func(wp *WorkerPool[T]) { wp.onError = fn }
}

// WithQueueGauge reports the queue depth after every submit and dequeue.
func WithQueueGauge[T any](g prometheus.Gauge) Option[T] {
	return func(wp *WorkerPool[T]) { wp.queueGauge = g }
}

// NewWorkerPool initializes a worker pool. Start launches the workers.
func NewWorkerPool[T any](workerCount, jobBufferSize int, process func(context.Context, T) error, opts ...Option[T]) *WorkerPool[T] {
	if workerCount <= 0 {
		workerCount = 10
	}
	if jobBufferSize <= 0 {
		jobBufferSize = 1000
	}
	if process == nil {
		panic("workers: nil process function")
	}
	wp := &WorkerPool[T]{
		workers: workerCount,
		jobCh:   make(chan T, jobBufferSize),
		process: process,
	}
	for _, opt := range opts {
		opt(wp)
	}
	return wp
}

// Start launches the workers. Jobs see a context derived from ctx that is
// cancelled when Stop gives up waiting.
func (wp *WorkerPool[T]) Start(ctx context.Context) error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.stopped {
		return ErrPoolStopped
	}
	if wp.started {
		return ErrPoolAlreadyStarted
	}
	ctx, wp.cancel = context.WithCancel(ctx)
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx)
	}
	wp.started = true
	return nil
}

// Submit enqueues a job without blocking.
func (wp *WorkerPool[T]) Submit(job T) error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.stopped {
		wp.dropped.Add(1)
		return ErrPoolStopped
	}
	if !wp.started {
		return ErrPoolNotStarted
	}
	select {
	case wp.jobCh <- job:
		wp.submitted.Add(1)
		wp.reportDepth()
		return nil
	default:
		wp.dropped.Add(1)
		return ErrQueueFull
	}
}

// Stop rejects new jobs and lets the workers drain the queue for up to grace.
// After that the job context is cancelled and queued jobs are discarded.
func (wp *WorkerPool[T]) Stop(grace time.Duration) error {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return nil
	}
	wp.stopped = true
	close(wp.jobCh)
	started := wp.started
	wp.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		wp.cancel()
		return nil
	case <-timer.C:
		wp.cancel()
	}

	// Cancelled jobs should return promptly; bound the wait anyway.
	select {
	case <-done:
	case <-time.After(grace):
	}
	return ErrStopTimeout
}

// QueueDepth returns the number of jobs waiting for a worker.
func (wp *WorkerPool[T]) QueueDepth() int { return len(wp.jobCh) }

// QueueSize returns the queue capacity.
func (wp *WorkerPool[T]) QueueSize() int { return cap(wp.jobCh) }

// Stats returns current pool statistics.
func (wp *WorkerPool[T]) Stats() Stats {
	return Stats{
		Workers:    wp.workers,
		QueueSize:  cap(wp.jobCh),
		QueueDepth: len(wp.jobCh),
		Submitted:  wp.submitted.Load(),
		Processed:  wp.processed.Load(),
		Failed:     wp.failed.Load(),
		Dropped:    wp.dropped.Load(),
	}
}

// Stats is a point-in-time view of a pool.
type Stats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
}

func (wp *WorkerPool[T]) worker(ctx context.Context) {
	defer wp.wg.Done()
	for job := range wp.jobCh {
		wp.reportDepth()
		if ctx.Err() != nil {
			wp.dropped.Add(1)
			continue
		}
		err := wp.run(ctx, job)
		wp.processed.Add(1)
		if err != nil {
			wp.failed.Add(1)
			if wp.onError != nil {
				wp.onError(job, err)
			}
		}
	}
}

// run executes one job, turning a panic into a *PanicError.
func (wp *WorkerPool[T]) run(ctx context.Context, job T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return wp.process(ctx, job)
}

func (wp *WorkerPool[T]) reportDepth() {
	if wp.queueGauge != nil {
		wp.queueGauge.Set(float64(len(wp.jobCh)))
	}
}
