package notifier

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type signalWorker struct {
	name     string
	started  chan struct{}
	stopped  chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newSignalWorker(name string) *signalWorker {
	return &signalWorker{
		name:    name,
		started: make(chan struct{}, 1),
		stopped: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (w *signalWorker) Name() string { return w.name }

func (w *signalWorker) Start(ctx context.Context) {
	w.started <- struct{}{}
	select {
	case <-ctx.Done():
	case <-w.done:
	}
}

func (w *signalWorker) Stop() {
	w.stopOnce.Do(func() {
		w.stopped <- struct{}{}
		close(w.done)
	})
}

func waitSignal(t *testing.T, ch chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestDispatcher_StartsAndStopsAllWorkers(t *testing.T) {
	consumer := newSignalWorker("event_consumer")
	cleanup := newSignalWorker("deadletter_cleanup")
	dispatcher := NewDispatcher(zap.NewNop(), consumer, cleanup)

	assert.False(t, dispatcher.IsStarted())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatcher.Start(ctx)
	}()

	waitSignal(t, consumer.started, "consumer start")
	waitSignal(t, cleanup.started, "cleanup start")
	assert.True(t, dispatcher.IsStarted())

	dispatcher.Stop()
	waitSignal(t, consumer.stopped, "consumer stop")
	waitSignal(t, cleanup.stopped, "cleanup stop")

	wg.Wait()
	assert.False(t, dispatcher.IsStarted())
}

func TestDispatcher_ContextCancellationStopsWorkers(t *testing.T) {
	worker := newSignalWorker("event_consumer")
	dispatcher := NewDispatcher(zap.NewNop(), worker)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	dispatcher.Start(ctx)

	waitSignal(t, worker.stopped, "worker stop after context cancellation")
	assert.False(t, dispatcher.IsStarted())
}

func TestDispatcher_RepeatedStartAndStopAreNoops(t *testing.T) {
	worker := newSignalWorker("event_consumer")
	dispatcher := NewDispatcher(zap.NewNop(), worker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go dispatcher.Start(ctx)
	waitSignal(t, worker.started, "worker start")
	assert.True(t, dispatcher.IsStarted())

	dispatcher.Start(ctx) // second Start returns immediately
	assert.True(t, dispatcher.IsStarted())

	dispatcher.Stop()
	waitSignal(t, worker.stopped, "worker stop")
	time.Sleep(10 * time.Millisecond)
	assert.False(t, dispatcher.IsStarted())

	assert.NotPanics(t, func() { dispatcher.Stop() })
}
