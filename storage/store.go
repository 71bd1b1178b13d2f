package storage

import (
	"context"
	"time"
)

// Reservation outcomes from the idempotency ledger.
const (
	ReservationProceed        = 0
	ReservationAlreadyHandled = 1
)

// Outcomes recorded per (event, channel) pair.
const (
	OutcomePending = "pending"
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
)

// Ledger is the idempotency store. CheckAndReserve must be an atomic
// conditional write: under concurrent duplicate deliveries at most one
// caller per (eventID, channel) may observe ReservationProceed while a live
// reservation or a sent outcome exists.
type Ledger interface {
	// CheckAndReserve reserves the pair for delivery. A prior failed outcome
	// does not block the reservation; a sent outcome or a live pending
	// reservation yields ReservationAlreadyHandled.
	CheckAndReserve(ctx context.Context, eventID string, channel string) (int, error)
	// MarkSent records the terminal success outcome for the pair.
	MarkSent(ctx context.Context, eventID string, channel string) error
	// MarkFailed records a terminal failure, allowing a later redelivery to retry.
	MarkFailed(ctx context.Context, eventID string, channel string) error
	// Outcome returns the current outcome for the pair, or "" when absent.
	Outcome(ctx context.Context, eventID string, channel string) (string, error)
}

// DeadLetterRecord is the durable artifact of a permanently failed delivery.
// Field content is redacted before it reaches the store.
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

// DeadLetterStore persists and manages dead-letter records.
type DeadLetterStore interface {
	// Insert appends a dead-letter record.
	Insert(ctx context.Context, record DeadLetterRecord) error
	// List returns up to limit records, newest first, for operator redrive.
	List(ctx context.Context, limit int) ([]DeadLetterRecord, error)
	// Delete removes a record after a successful redrive.
	Delete(ctx context.Context, id int64) error
	// DeleteOlderThan purges records past retention, returning the count removed.
	DeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error)
	// EnsureTables creates the backing tables if they do not exist.
	EnsureTables(ctx context.Context) error
}
