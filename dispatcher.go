package notifier

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Dispatcher owns the process's worker set and shuts it down as a unit.
type Dispatcher struct {
	logger *zap.Logger

	running  sync.WaitGroup
	stopOnce sync.Once
	done     chan struct{}

	mu      sync.RWMutex
	workers []Worker
	started bool
}

// NewDispatcher creates a dispatcher over the given workers.
func NewDispatcher(logger *zap.Logger, workers ...Worker) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		logger:  logger,
		workers: workers,
		done:    make(chan struct{}),
	}
}

// Start launches every worker and blocks until the context ends or Stop is
// called, then waits for all workers to drain. Starting twice is a no-op.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		d.logger.Warn("Dispatcher already started")
		return
	}
	d.started = true
	d.mu.Unlock()

	d.logger.Info("Launching workers", zap.Int("count", len(d.workers)))

	for _, w := range d.workers {
		d.running.Add(1)
		go func(worker Worker) {
			defer d.running.Done()
			worker.Start(ctx)
			d.logger.Info("Worker drained", zap.String("worker", worker.Name()))
		}(w)
	}

	select {
	case <-ctx.Done():
		d.Stop()
	case <-d.done:
	}

	d.running.Wait()
	d.logger.Info("All workers drained")

	d.mu.Lock()
	d.started = false
	d.mu.Unlock()
}

// Stop shuts down every worker and releases Start. Safe to call repeatedly.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.RLock()
		defer d.mu.RUnlock()
		if !d.started {
			return
		}
		close(d.done)
		// Each worker's Stop waits for its in-flight tick.
		for _, worker := range d.workers {
			worker.Stop()
		}
	})
}

// IsStarted reports whether the dispatcher is currently running.
func (d *Dispatcher) IsStarted() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.started
}
