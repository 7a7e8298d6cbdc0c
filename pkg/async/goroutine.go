package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SafeGo runs fn in a goroutine with a timeout, panic recovery and error
// logging. Use it instead of a bare `go func()` for fire-and-forget work.
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, logger *logrus.Entry, fn func(context.Context) error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(logrus.Fields{
					"task":  taskName,
					"panic": r,
					"stack": string(debug.Stack()),
				}).Error("recovered panic in background task")
			}
		}()

		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", taskName).Warn("background task failed")
		}
	}()
}

// WorkerPool runs submitted tasks on a fixed set of workers. Each task gets
// its own timeout; panics are contained to the task.
type WorkerPool struct {
	taskName string
	timeout  time.Duration
	logger   *logrus.Entry

	workCh chan func(context.Context) error
	doneCh chan struct{}

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

// NewWorkerPool starts workers goroutines processing submitted tasks.
func NewWorkerPool(ctx context.Context, workers int, taskName string, timeout time.Duration, logger *logrus.Entry) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	ctx, cancel := context.WithCancel(ctx)

	pool := &WorkerPool{
		taskName: taskName,
		timeout:  timeout,
		logger:   logger.WithField("task", taskName),
		workCh:   make(chan func(context.Context) error, workers*2),
		doneCh:   make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	go func() {
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				pool.worker()
			}()
		}
		wg.Wait()
		close(pool.doneCh)
	}()

	return pool
}

// Submit queues a task. It fails once the pool has shut down.
func (p *WorkerPool) Submit(fn func(context.Context) error) error {
	select {
	case <-p.doneCh:
		return fmt.Errorf("worker pool %q is shut down", p.taskName)
	case <-p.ctx.Done():
		return fmt.Errorf("worker pool %q is shut down", p.taskName)
	case p.workCh <- fn:
		return nil
	}
}

// Shutdown stops accepting work and waits up to timeout for in-flight tasks.
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	var shutdownErr error
	p.shutdownOnce.Do(func() {
		close(p.workCh)
		select {
		case <-p.doneCh:
		case <-time.After(timeout):
			shutdownErr = fmt.Errorf("worker pool %q shutdown timed out after %v", p.taskName, timeout)
		}
		p.cancel()
	})
	return shutdownErr
}

func (p *WorkerPool) worker() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case fn, ok := <-p.workCh:
			if !ok {
				return
			}
			p.run(fn)
		}
	}
}

func (p *WorkerPool) run(fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithFields(logrus.Fields{
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("recovered panic in worker task")
		}
	}()

	if err := fn(ctx); err != nil {
		p.logger.WithError(err).Warn("worker task failed")
	}
}

// Batch processes items concurrently on a temporary pool and returns the
// errors encountered, in no particular order.
func Batch[T any](ctx context.Context, items []T, workers int, taskName string, timeout time.Duration,
	logger *logrus.Entry, fn func(context.Context, T) error) []error {

	var mu sync.Mutex
	var errs []error

	pool := NewWorkerPool(ctx, workers, taskName, timeout, logger)
	for _, item := range items {
		item := item
		if err := pool.Submit(func(ctx context.Context) error {
			if err := fn(ctx, item); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		}); err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			break
		}
	}
	if err := pool.Shutdown(timeout); err != nil {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	mu.Lock()
	defer mu.Unlock()
	return errs
}
