package notifier

import (
	"math/rand"
	"time"
)

// BackoffStrategy calculates the delay before a given retry attempt.
type BackoffStrategy interface {
	Delay(attempt int) time.Duration
}

// ExponentialBackoff doubles the base delay per attempt, caps it at maxDelay,
// and adds up to jitterFraction of the computed delay as random jitter.
type ExponentialBackoff struct {
	baseDelay      time.Duration
	maxDelay       time.Duration
	jitterFraction float64
}

// NewExponentialBackoff creates a bounded exponential backoff with jitter.
func NewExponentialBackoff(baseDelay, maxDelay time.Duration, jitterFraction float64) *ExponentialBackoff {
	if jitterFraction < 0 || jitterFraction > 1 {
		jitterFraction = 0.2
	}
	return &ExponentialBackoff{
		baseDelay:      baseDelay,
		maxDelay:       maxDelay,
		jitterFraction: jitterFraction,
	}
}

// DefaultBackoffStrategy returns the backoff used when none is configured.
func DefaultBackoffStrategy() *ExponentialBackoff {
	return NewExponentialBackoff(defaultBaseDelay, defaultMaxDelay, 0.2)
}

// Delay implements BackoffStrategy.
func (b *ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := b.baseDelay << uint(attempt-1)
	if delay > b.maxDelay || delay <= 0 {
		delay = b.maxDelay
	}
	if b.jitterFraction > 0 {
		jitter := time.Duration(rand.Int63n(int64(float64(delay)*b.jitterFraction) + 1))
		delay += jitter
	}
	return delay
}
