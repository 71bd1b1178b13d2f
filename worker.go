package notifier

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Worker is a long-running background unit managed by the Dispatcher.
type Worker interface {
	Start(ctx context.Context)
	Stop()
	Name() string
}

// BaseWorker drives a work function on a fixed tick. The consumer pump and
// the dead-letter cleanup both run as BaseWorkers with different intervals.
type BaseWorker struct {
	name     string
	interval time.Duration
	logger   *zap.Logger
	workFunc func(ctx context.Context) error

	inFlight sync.WaitGroup
	stopOnce sync.Once
	done     chan struct{}

	mu      sync.RWMutex
	started bool
}

// NewBaseWorker creates a ticker worker that invokes workFunc every interval.
func NewBaseWorker(name string, interval time.Duration, logger *zap.Logger, workFunc func(ctx context.Context) error) *BaseWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BaseWorker{
		name:     name,
		interval: interval,
		logger:   logger,
		workFunc: workFunc,
		done:     make(chan struct{}),
	}
}

// Start runs the tick loop. It blocks until the context is cancelled or
// Stop is called, and returns immediately if the worker is already running.
func (w *BaseWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		w.logger.Warn("Worker already started", zap.String("name", w.name))
		return
	}
	w.started = true
	w.mu.Unlock()

	w.logger.Info("Worker loop running",
		zap.String("worker", w.name),
		zap.Duration("interval", w.interval),
	)
	defer w.logger.Info("Worker loop exited", zap.String("worker", w.name))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-ticker.C:
			if !w.tick(ctx) {
				return
			}
		}
	}
}

// tick runs one invocation of the work function. It reports false when the
// worker was stopped between the timer firing and the work beginning, so no
// tick ever starts after Stop.
func (w *BaseWorker) tick(ctx context.Context) bool {
	select {
	case <-w.done:
		return false
	default:
	}

	w.inFlight.Add(1)
	defer w.inFlight.Done()

	if ctx.Err() != nil {
		return false
	}
	if err := w.workFunc(ctx); err != nil {
		w.logger.Error("Tick failed",
			zap.String("worker", w.name),
			zap.Error(err),
		)
	}
	return true
}

// Stop signals the loop to exit and waits for an in-progress tick to finish.
// Calling Stop more than once, or on a worker that never started, is a no-op.
func (w *BaseWorker) Stop() {
	w.stopOnce.Do(func() {
		w.mu.RLock()
		defer w.mu.RUnlock()
		if !w.started {
			return
		}
		close(w.done)
		w.inFlight.Wait()
	})
}

// Name returns the worker's name.
func (w *BaseWorker) Name() string {
	return w.name
}
