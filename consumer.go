package notifier

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SourceMessage is one raw bus delivery with its acknowledgement hook.
type SourceMessage struct {
	Value []byte
	// Ack marks the message consumed at the source. Idempotency makes a
	// missed ack safe: the redelivered event short-circuits at the ledger.
	Ack func() error
}

// EventSource is the upstream bus adapter. Delivery is at-least-once and
// possibly out of order; the pipeline assumes nothing stronger.
type EventSource interface {
	// Poll returns up to max messages, blocking until at least one message
	// is available or the context ends. An empty batch is not an error.
	Poll(ctx context.Context, max int) ([]SourceMessage, error)
	Close() error
}

// Consumer drains an EventSource into the Engine with a bounded number of
// concurrent invocations. Its ProcessBatch is the workFunc for a BaseWorker.
type Consumer struct {
	source        EventSource
	engine        *Engine
	logger        *zap.Logger
	metrics       MetricsCollector
	batchSize     int
	maxConcurrent int
}

// NewConsumer creates a consumer pump over the given source and engine.
func NewConsumer(source EventSource, engine *Engine, logger *zap.Logger, metrics MetricsCollector, opts ...ConsumerOption) *Consumer {
	cfg := defaultConsumerOptions()
	for _, opt := range opts {
		opt(cfg)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewNopMetricsCollector()
	}
	return &Consumer{
		source:        source,
		engine:        engine,
		logger:        logger,
		metrics:       metrics,
		batchSize:     cfg.batchSize,
		maxConcurrent: cfg.maxConcurrent,
	}
}

// ProcessBatch polls one batch and processes every message, at most
// maxConcurrent at a time. Events of different IDs carry no ordering
// guarantee, so parallel processing is safe.
func (c *Consumer) ProcessBatch(ctx context.Context) error {
	start := time.Now()
	messages, err := c.source.Poll(ctx, c.batchSize)
	if err != nil {
		return fmt.Errorf("failed to poll event source: %w", err)
	}
	if len(messages) == 0 {
		return nil
	}

	c.metrics.RecordGauge("consumer.batch_size", float64(len(messages)), nil)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.maxConcurrent)
	for _, msg := range messages {
		msg := msg
		group.Go(func() error {
			result, err := c.engine.Process(groupCtx, msg.Value)
			if err != nil {
				// Infrastructure fault: skip the ack so the bus redelivers.
				c.metrics.IncrementCounter("consumer.deferred", nil)
				c.logger.Warn("Deferring event to redelivery",
					zap.String("event_id", Sanitize(result.EventID)),
					zap.Error(err),
				)
				return nil
			}
			if msg.Ack != nil {
				if err := msg.Ack(); err != nil {
					c.logger.Warn("Failed to ack message; ledger will absorb the redelivery",
						zap.String("event_id", Sanitize(result.EventID)),
						zap.Error(err),
					)
				}
			}
			return nil
		})
	}
	_ = group.Wait()

	c.metrics.RecordDuration("consumer.batch_duration", time.Since(start), nil)
	return nil
}
