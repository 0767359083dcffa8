package worker

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/dandantas/grabber/internal/model"
)

// WorkerPool runs queued runs on a fixed number of goroutines.
type WorkerPool struct {
	workers int
	jobs    chan Job
	runFn   RunFunc
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.RWMutex
	stopped bool
	active  atomic.Int32
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(workers int, jobQueueSize int, fn RunFunc) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		workers: workers,
		jobs:    make(chan Job, jobQueueSize),
		runFn:   fn,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start starts the worker pool
func (wp *WorkerPool) Start() {
	slog.Info("Starting worker pool", "workers", wp.workers)

	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop stops accepting runs and waits for queued and in-flight runs until
// ctx is done; after that the runs' context is cancelled.
func (wp *WorkerPool) Stop(ctx context.Context) {
	slog.Info("Stopping worker pool", "active", wp.Active(), "queued", wp.GetJobQueueLength())

	wp.mu.Lock()
	if !wp.stopped {
		wp.stopped = true
		close(wp.jobs)
	}
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Worker pool stopped")
	case <-ctx.Done():
		slog.Warn("Timeout waiting for runs to complete, cancelling", "active", wp.Active())
		wp.cancel()
		<-done
	}
	wp.cancel()
}

// Submit queues a run without blocking. It fails with
// model.ErrPoolSaturated when the queue is full.
func (wp *WorkerPool) Submit(run model.RunContext) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.stopped {
		return context.Canceled
	}

	select {
	case wp.jobs <- Job{Run: run}:
		slog.Debug("Run submitted to worker pool", run.LogAttrs()...)
		return nil
	default:
		return model.ErrPoolSaturated
	}
}

// worker is the worker goroutine that processes jobs
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	slog.Debug("Worker started", "worker_id", id)

	for job := range wp.jobs {
		wp.execute(id, job)
	}

	slog.Debug("Worker stopped", "worker_id", id)
}

// execute runs one job; a panic ends the run, never the worker.
func (wp *WorkerPool) execute(id int, job Job) {
	wp.active.Add(1)
	defer wp.active.Add(-1)

	defer func() {
		if err := recover(); err != nil {
			slog.Error("Panic recovered in run",
				append(job.Run.LogAttrs(),
					"worker_id", id,
					"error", err,
					"stack_trace", string(debug.Stack()),
				)...,
			)
		}
	}()

	wp.runFn(wp.ctx, job.Run)
}

// GetJobQueueLength returns the current number of jobs in the queue
func (wp *WorkerPool) GetJobQueueLength() int {
	return len(wp.jobs)
}

// Active returns the number of runs executing right now.
func (wp *WorkerPool) Active() int {
	return int(wp.active.Load())
}
