// Package worker runs background analysis tasks on a fixed set of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrQueueFull = errors.New("task queue full")
	ErrClosed    = errors.New("worker pool closed")
)

// Task is a unit of background work.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

type Pool struct {
	workers int
	timeout time.Duration
	tasks   chan Task
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPool creates a pool. timeout bounds a single task; zero means no limit.
func NewPool(workers, queueSize int, timeout time.Duration, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		workers: workers,
		timeout: timeout,
		tasks:   make(chan Task, queueSize),
		logger:  logger,
	}
}

// Start launches the workers. Cancelling ctx aborts running tasks.
func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.logger.Info("Starting worker pool", zap.Int("workers", p.workers), zap.Int("queue_size", cap(p.tasks)))
	for i := 1; i <= p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for task := range p.tasks {
		p.process(id, task)
	}
}

func (p *Pool) process(workerID int, task Task) {
	ctx := p.ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Task panicked",
				zap.Int("worker", workerID),
				zap.String("task", task.Name),
				zap.Any("panic", r),
			)
		}
	}()

	if err := task.Run(ctx); err != nil {
		p.logger.Error("Task failed",
			zap.Int("worker", workerID),
			zap.String("task", task.Name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return
	}

	p.logger.Debug("Task completed",
		zap.Int("worker", workerID),
		zap.String("task", task.Name),
		zap.Duration("duration", time.Since(start)),
	)
}

// Submit enqueues task without blocking.
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}

	select {
	case p.tasks <- task:
		return nil
	default:
		p.logger.Warn("Task queue full, dropping task", zap.String("task", task.Name))
		return fmt.Errorf("%w: %s", ErrQueueFull, task.Name)
	}
}

// Stop closes the queue and waits for queued tasks to finish. When ctx
// expires first the running tasks are cancelled.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Worker pool stopped")
		if p.cancel != nil {
			p.cancel()
		}
		return nil
	case <-ctx.Done():
		p.logger.Warn("Worker pool stop timed out, cancelling tasks")
		if p.cancel != nil {
			p.cancel()
		}
		<-done
		return ctx.Err()
	}
}
