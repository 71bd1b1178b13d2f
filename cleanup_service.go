package notifier

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sandboxhq/notifier/storage"
)

// CleanupService purges aged dead-letter rows. Ledger entries need no
// sweeping; they expire through their store's TTL.
type CleanupService struct {
	deadLetters storage.DeadLetterStore
	logger      *zap.Logger
	metrics     MetricsCollector
	retention   time.Duration
}

// NewCleanupService creates a cleanup service with the given options.
func NewCleanupService(deadLetters storage.DeadLetterStore, logger *zap.Logger, metrics MetricsCollector, opts ...CleanupServiceOption) *CleanupService {
	cfg := &cleanupServiceOptions{
		deadLetterRetention: defaultDLQRetention,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewNopMetricsCollector()
	}
	return &CleanupService{
		deadLetters: deadLetters,
		logger:      logger,
		metrics:     metrics,
		retention:   cfg.deadLetterRetention,
	}
}

// Cleanup is the workFunc for the cleanup worker. It always returns nil so
// a failed purge never stops the worker.
func (s *CleanupService) Cleanup(ctx context.Context) error {
	start := time.Now()
	defer func() {
		s.metrics.RecordDuration("cleanup.duration", time.Since(start), nil)
	}()

	deleted, err := s.deadLetters.DeleteOlderThan(ctx, s.retention)
	if err != nil {
		s.logger.Error("Failed to purge dead-letter records", zap.Error(err))
		s.metrics.IncrementCounter("cleanup.failed", nil)
		return nil
	}
	if deleted > 0 {
		s.logger.Info("Purged aged dead-letter records", zap.Int64("count", deleted))
		s.metrics.RecordGauge("cleanup.deleted", float64(deleted), nil)
	}
	return nil
}
