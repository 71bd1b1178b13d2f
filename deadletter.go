package notifier

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sandboxhq/notifier/storage"
)

// channelPipeline marks dead-letter rows produced before routing, where no
// delivery channel exists yet (gate rejections kept for audit, validation
// failures, enrichment data problems).
const channelPipeline = "pipeline"

// FailureHandler records terminal delivery failures in the dead-letter sink.
// Everything it persists has been through Sanitize: no credentials, no
// unredacted payloads.
type FailureHandler struct {
	store   storage.DeadLetterStore
	logger  *zap.Logger
	metrics MetricsCollector
}

// NewFailureHandler creates a failure handler over the given sink.
func NewFailureHandler(store storage.DeadLetterStore, logger *zap.Logger, metrics MetricsCollector) *FailureHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewNopMetricsCollector()
	}
	return &FailureHandler{store: store, logger: logger, metrics: metrics}
}

// HandleFailure dead-letters one channel task after its retries are
// exhausted or its failure was permanent. DeadLettered is terminal; only an
// operator redrive reprocesses the event.
func (h *FailureHandler) HandleFailure(ctx context.Context, task ChannelTask, deliveryErr error, attempts int) error {
	return h.record(ctx, task.Event.ID, string(task.Event.Type), string(task.Channel), deliveryErr, attempts)
}

// HandlePipelineFailure dead-letters an event that failed before routing,
// so the terminal outcome still leaves an audit artifact.
func (h *FailureHandler) HandlePipelineFailure(ctx context.Context, eventID string, kind EventKind, pipelineErr error) error {
	return h.record(ctx, eventID, string(kind), channelPipeline, pipelineErr, 0)
}

func (h *FailureHandler) record(ctx context.Context, eventID, eventType, channel string, cause error, attempts int) error {
	record := storage.DeadLetterRecord{
		EventID:   Sanitize(eventID),
		EventType: Sanitize(eventType),
		Channel:   channel,
		ErrorCode: ErrorCode(cause),
		LastError: Sanitize(cause.Error()),
		Attempts:  attempts,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.store.Insert(ctx, record); err != nil {
		h.metrics.IncrementCounter("deadletter.write_failed", map[string]string{"channel": channel})
		h.logger.Error("Failed to write dead-letter record",
			zap.String("event_id", record.EventID),
			zap.String("channel", channel),
			zap.Error(err),
		)
		return fmt.Errorf("failed to dead-letter event: %w", err)
	}

	h.metrics.IncrementCounter("deadletter.written", map[string]string{"channel": channel, "error_code": record.ErrorCode})
	h.logger.Warn("Event dead-lettered",
		zap.String("event_id", record.EventID),
		zap.String("event_type", record.EventType),
		zap.String("channel", channel),
		zap.String("error_code", record.ErrorCode),
		zap.Int("attempts", attempts),
	)
	return nil
}
