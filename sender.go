package notifier

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ChannelSender performs a single delivery attempt for one channel.
// Implementations classify failures via SendError; any unclassified error is
// treated as retryable.
type ChannelSender interface {
	Channel() Channel
	Send(ctx context.Context, task ChannelTask) error
}

// RetryPolicy bounds the delivery attempts of a single channel task.
type RetryPolicy struct {
	MaxAttempts    int
	Backoff        BackoffStrategy
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    defaultMaxAttempts,
		Backoff:        DefaultBackoffStrategy(),
		AttemptTimeout: defaultAttemptTimeout,
	}
}

// sendWithRetry drives one channel task to a terminal state: it attempts the
// send up to MaxAttempts times with backoff between attempts, each attempt
// independently time-boxed. A permanent failure short-circuits the remaining
// attempts. Returns the attempt count and the last error, nil on success.
func sendWithRetry(ctx context.Context, sender ChannelSender, task ChannelTask, policy RetryPolicy, logger *zap.Logger, metrics MetricsCollector) (int, error) {
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if policy.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, policy.AttemptTimeout)
		}
		err := sender.Send(attemptCtx, task)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			metrics.IncrementCounter("sender.success", map[string]string{"channel": string(task.Channel)})
			return attempt, nil
		}
		lastErr = err

		if IsPermanent(err) {
			metrics.IncrementCounter("sender.permanent_failure", map[string]string{"channel": string(task.Channel)})
			logger.Error("Permanent delivery failure, skipping remaining retries",
				zap.String("event_id", Sanitize(task.Event.ID)),
				zap.String("channel", string(task.Channel)),
				zap.Int("attempt", attempt),
				zap.String("error", Sanitize(err.Error())),
			)
			return attempt, err
		}

		metrics.IncrementCounter("sender.retryable_failure", map[string]string{"channel": string(task.Channel)})
		if attempt == policy.MaxAttempts {
			break
		}

		delay := policy.Backoff.Delay(attempt)
		logger.Warn("Delivery attempt failed, scheduling retry",
			zap.String("event_id", Sanitize(task.Event.ID)),
			zap.String("channel", string(task.Channel)),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.String("error", Sanitize(err.Error())),
		)

		select {
		case <-ctx.Done():
			return attempt, NewRetryableError(ErrCodeTimeout, ctx.Err())
		case <-time.After(delay):
		}
	}

	logger.Error("Delivery retries exhausted",
		zap.String("event_id", Sanitize(task.Event.ID)),
		zap.String("channel", string(task.Channel)),
		zap.Int("attempts", policy.MaxAttempts),
		zap.String("error", Sanitize(lastErr.Error())),
	)
	return policy.MaxAttempts, lastErr
}
