package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "catalog-loader/internal/errors"
)

// PoolConfig contains configuration for the worker pool
type PoolConfig struct {
	Workers   int
	QueueSize int // defaults to 4 tasks per worker
}

// Task is one line of input to process.
type Task struct {
	Line    int64
	Execute func(ctx context.Context)
}

// WorkerPool runs tasks on a fixed number of goroutines fed by a bounded
// queue. Submit blocks while the queue is full.
type WorkerPool struct {
	workers int
	queue   chan Task
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
	closed  bool
	logger  *zap.Logger
	onPanic func(line int64, value any)
}

// NewWorkerPool creates a stopped pool. onPanic, if set, is called after a
// task panics; the worker keeps serving the queue.
func NewWorkerPool(cfg PoolConfig, logger *zap.Logger, onPanic func(line int64, value any)) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerPool{
		workers: cfg.Workers,
		queue:   make(chan Task, cfg.QueueSize),
		logger:  logger,
		onPanic: onPanic,
	}
}

// Start launches the workers. Tasks run with ctx.
func (p *WorkerPool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running || p.closed {
		return apperrors.Conflict("POOL_ALREADY_RUNNING", "Worker pool is already running").
			WithOperation("Start").
			WithResource("worker_pool").
			Build()
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.running = true
	return nil
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for task := range p.queue {
		p.run(ctx, id, task)
	}
}

func (p *WorkerPool) run(ctx context.Context, id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker recovered from panic",
				zap.Int("worker", id),
				zap.Int64("line", task.Line),
				zap.String("panic", fmt.Sprint(r)))
			if p.onPanic != nil {
				p.onPanic(task.Line, r)
			}
		}
	}()
	task.Execute(ctx)
}

// Submit queues a task, blocking until there is room or ctx is done. The
// queue is bounded, so a full queue holds the reader back while workers are
// busy writing.
func (p *WorkerPool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running || p.closed {
		return apperrors.Conflict("POOL_NOT_RUNNING", "Worker pool is not running").
			WithOperation("Submit").
			WithResource("worker_pool").
			Build()
	}

	if err := ctx.Err(); err != nil {
		return p.cancelled(err)
	}
	select {
	case p.queue <- task:
		return nil
	case <-ctx.Done():
		return p.cancelled(ctx.Err())
	}
}

func (p *WorkerPool) cancelled(err error) error {
	return apperrors.Timeout("SUBMIT_CANCELLED", "task submission cancelled").
		WithOperation("Submit").
		WithResource("worker_pool").
		WithCause(err).
		Build()
}

// Close stops accepting tasks. Queued tasks still run.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.queue)
}

// Drain closes the pool and waits up to timeout for every queued and running
// task. It reports false when the timeout expired first; the remaining tasks
// keep running in the background.
func (p *WorkerPool) Drain(timeout time.Duration) bool {
	p.Close()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	if timeout <= 0 {
		<-done
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// Workers returns the number of workers.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// QueueDepth returns the number of queued tasks.
func (p *WorkerPool) QueueDepth() int {
	return len(p.queue)
}
