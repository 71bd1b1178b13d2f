package notifier

import (
	"encoding/json"
	"time"
)

// EventKind identifies a lifecycle, threshold, or operational event class.
type EventKind string

const (
	// Lifecycle events.
	KindLeaseRequested  EventKind = "LeaseRequested"
	KindLeaseApproved   EventKind = "LeaseApproved"
	KindLeaseDenied     EventKind = "LeaseDenied"
	KindLeaseTerminated EventKind = "LeaseTerminated"
	KindLeaseFrozen     EventKind = "LeaseFrozen"
	KindLeaseUnfrozen   EventKind = "LeaseUnfrozen"
	KindLeaseExpired    EventKind = "LeaseExpired"

	// Threshold alerts.
	KindBudgetThreshold   EventKind = "BudgetThreshold"
	KindDurationThreshold EventKind = "DurationThreshold"
	KindFreezingThreshold EventKind = "FreezingThreshold"
	KindBudgetExceeded    EventKind = "BudgetExceeded"

	// Operational events.
	KindAccountQuarantined   EventKind = "AccountQuarantined"
	KindAccountCleanupFailed EventKind = "AccountCleanupFailed"
	KindAccountDriftDetected EventKind = "AccountDriftDetected"
)

// Channel is one downstream delivery mechanism.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelChat  Channel = "chat"
)

// Delivery statuses for a (event, channel) pair.
const (
	DeliveryStatusPending      = 0
	DeliveryStatusSent         = 1
	DeliveryStatusRetrying     = 2
	DeliveryStatusFailed       = 3
	DeliveryStatusDeadLettered = 4
)

// InboundEvent is the immutable event as received from the bus.
// ID is source-assigned and used for idempotency; the bus may redeliver it.
type InboundEvent struct {
	ID         string          `json:"id"`
	Type       EventKind       `json:"type"`
	Source     string          `json:"source"`
	OccurredAt time.Time       `json:"time"`
	Detail     json.RawMessage `json:"detail"`
}

// AccountContext is the metadata pulled from the enrichment store.
type AccountContext struct {
	AccountID   string  `json:"account_id"`
	OwnerEmail  string  `json:"owner_email"`
	DisplayName string  `json:"display_name"`
	BudgetLimit float64 `json:"budget_limit"`
	BudgetSpent float64 `json:"budget_spent"`
}

// EnrichedEvent is an InboundEvent augmented with account context.
// Constructed once per event and discarded after dispatch, never persisted.
type EnrichedEvent struct {
	InboundEvent
	Account  AccountContext
	Degraded bool // enrichment store was unavailable, context is best-effort
}

// ChannelTask is one unit of delivery work produced by the router.
type ChannelTask struct {
	Event      EnrichedEvent
	Channel    Channel
	TemplateID string // email only
	Severity   string // chat only
}

// DeliveryOutcome summarizes the terminal state of one channel task.
type DeliveryOutcome struct {
	Channel  Channel
	Status   int
	Attempts int
	Err      error
}

// ProcessResult aggregates the per-channel outcomes of one event.
// It exists for observability; channels never wait on each other.
type ProcessResult struct {
	EventID  string
	Kind     EventKind
	Outcomes []DeliveryOutcome
}
