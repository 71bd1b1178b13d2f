package notifier

import (
	"time"

	"go.uber.org/zap"
)

const (
	defaultMaxAttempts    = 3
	defaultBaseDelay      = 500 * time.Millisecond
	defaultMaxDelay       = 30 * time.Second
	defaultAttemptTimeout = 10 * time.Second
	defaultSecretTTL      = 5 * time.Minute
	defaultMaxConcurrent  = 10
	defaultBatchSize      = 25
	defaultDLQRetention   = 30 * 24 * time.Hour
)

// defaultAllowedSources is the fixed source allow-list; anything else is
// rejected at the gate.
var defaultAllowedSources = []string{
	"sandbox.lease",
	"sandbox.monitoring",
	"sandbox.ops",
}

//
// Engine Options
//

type engineOptions struct {
	allowedSources []string
	routingTable   *RoutingTable
	accountStore   AccountStore
	senders        map[Channel]ChannelSender
	retryPolicy    RetryPolicy
	logger         *zap.Logger
	metrics        MetricsCollector
}

func defaultEngineOptions() *engineOptions {
	return &engineOptions{
		allowedSources: defaultAllowedSources,
		senders:        make(map[Channel]ChannelSender),
		retryPolicy:    DefaultRetryPolicy(),
		logger:         zap.NewNop(),
		metrics:        NewNopMetricsCollector(),
	}
}

type EngineOption func(*engineOptions)

func WithLogger(logger *zap.Logger) EngineOption {
	return func(o *engineOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithMetrics(metrics MetricsCollector) EngineOption {
	return func(o *engineOptions) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

func WithAllowedSources(sources []string) EngineOption {
	return func(o *engineOptions) {
		o.allowedSources = sources
	}
}

func WithRoutingTable(table *RoutingTable) EngineOption {
	return func(o *engineOptions) {
		o.routingTable = table
	}
}

func WithAccountStore(store AccountStore) EngineOption {
	return func(o *engineOptions) {
		o.accountStore = store
	}
}

func WithSender(sender ChannelSender) EngineOption {
	return func(o *engineOptions) {
		o.senders[sender.Channel()] = sender
	}
}

func WithRetryPolicy(policy RetryPolicy) EngineOption {
	return func(o *engineOptions) {
		if policy.MaxAttempts > 0 {
			o.retryPolicy = policy
		}
	}
}

//
// Consumer Options
//

type consumerOptions struct {
	batchSize     int
	maxConcurrent int
}

func defaultConsumerOptions() *consumerOptions {
	return &consumerOptions{
		batchSize:     defaultBatchSize,
		maxConcurrent: defaultMaxConcurrent,
	}
}

type ConsumerOption func(*consumerOptions)

func WithConsumerBatchSize(size int) ConsumerOption {
	return func(o *consumerOptions) {
		if size > 0 {
			o.batchSize = size
		}
	}
}

// WithConsumerMaxConcurrent caps how many events are processed at once.
func WithConsumerMaxConcurrent(n int) ConsumerOption {
	return func(o *consumerOptions) {
		if n > 0 {
			o.maxConcurrent = n
		}
	}
}

//
// CleanupService Options
//

type cleanupServiceOptions struct {
	deadLetterRetention time.Duration
}

type CleanupServiceOption func(*cleanupServiceOptions)

func WithCleanupDeadLetterRetention(retention time.Duration) CleanupServiceOption {
	return func(o *cleanupServiceOptions) {
		if retention > 0 {
			o.deadLetterRetention = retention
		}
	}
}
