// Package embedded mirrors the notifier's extension points for host
// applications that embed the engine without importing the root package.
package embedded

import (
	"context"
	"time"
)

const (
	DeliveryStatusPending      = 0
	DeliveryStatusSent         = 1
	DeliveryStatusRetrying     = 2
	DeliveryStatusFailed       = 3
	DeliveryStatusDeadLettered = 4
)

type SourceMessage struct {
	Value []byte
	Ack   func() error
}

type EventSource interface {
	Poll(ctx context.Context, max int) ([]SourceMessage, error)
	Close() error
}

type Ledger interface {
	CheckAndReserve(ctx context.Context, eventID string, channel string) (int, error)
	MarkSent(ctx context.Context, eventID string, channel string) error
	MarkFailed(ctx context.Context, eventID string, channel string) error
	Outcome(ctx context.Context, eventID string, channel string) (string, error)
}

type DeadLetterRecord struct {
	ID        int64
	EventID   string
	EventType string
	Channel   string
	ErrorCode string
	LastError string
	Attempts  int
	CreatedAt time.Time
}

type DeadLetterStore interface {
	Insert(ctx context.Context, record DeadLetterRecord) error
	List(ctx context.Context, limit int) ([]DeadLetterRecord, error)
	Delete(ctx context.Context, id int64) error
	DeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error)
	EnsureTables(ctx context.Context) error
}

type SecretSource interface {
	FetchSecret(ctx context.Context, name string) (string, error)
}

type MetricsCollector interface {
	IncrementCounter(name string, tags map[string]string)
	RecordDuration(name string, duration time.Duration, tags map[string]string)
	RecordGauge(name string, value float64, tags map[string]string)
}

type Worker interface {
	Start(ctx context.Context)
	Stop()
	Name() string
}
