package redisledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sandboxhq/notifier/storage"
)

const (
	defaultKeyPrefix      = "notifier:ledger"
	defaultOutcomeTTL     = 14 * 24 * time.Hour // max redelivery window of the bus
	defaultReservationTTL = 15 * time.Minute    // bounds how long a crashed invocation blocks redelivery
)

// checkAndReserveScript is the atomic check-then-reserve. It runs as a single
// Redis EVAL, so concurrent duplicate deliveries cannot both reserve:
//
//	absent          -> reserve pending, proceed
//	sent or pending -> already handled
//	failed          -> re-reserve pending, proceed
var checkAndReserveScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current == false or current == 'failed' then
	redis.call('SET', KEYS[1], 'pending', 'EX', ARGV[1])
	return 0
end
return 1
`)

// Ledger is a Redis-backed idempotency ledger. Outcomes expire with the
// redelivery window; pending reservations carry a short TTL so work
// abandoned by a crashed invocation self-heals without a recovery sweep.
type Ledger struct {
	client         redis.UniversalClient
	logger         *zap.Logger
	keyPrefix      string
	outcomeTTL     time.Duration
	reservationTTL time.Duration
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithKeyPrefix overrides the ledger key namespace.
func WithKeyPrefix(prefix string) Option {
	return func(l *Ledger) {
		l.keyPrefix = prefix
	}
}

// WithOutcomeTTL sets how long terminal outcomes are retained. It must cover
// the maximum redelivery window of the event source.
func WithOutcomeTTL(ttl time.Duration) Option {
	return func(l *Ledger) {
		l.outcomeTTL = ttl
	}
}

// WithReservationTTL sets how long a pending reservation blocks duplicates.
func WithReservationTTL(ttl time.Duration) Option {
	return func(l *Ledger) {
		l.reservationTTL = ttl
	}
}

// New creates a Redis-backed ledger.
func New(client redis.UniversalClient, logger *zap.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{
		client:         client,
		logger:         logger,
		keyPrefix:      defaultKeyPrefix,
		outcomeTTL:     defaultOutcomeTTL,
		reservationTTL: defaultReservationTTL,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) key(eventID, channel string) string {
	return fmt.Sprintf("%s:%s:%s", l.keyPrefix, eventID, channel)
}

// CheckAndReserve implements storage.Ledger via an atomic Lua EVAL.
func (l *Ledger) CheckAndReserve(ctx context.Context, eventID string, channel string) (int, error) {
	ttlSeconds := int(l.reservationTTL / time.Second)
	result, err := checkAndReserveScript.Run(ctx, l.client, []string{l.key(eventID, channel)}, ttlSeconds).Int()
	if err != nil {
		return 0, fmt.Errorf("ledger reservation failed: %w", err)
	}
	if result == 1 {
		return storage.ReservationAlreadyHandled, nil
	}
	return storage.ReservationProceed, nil
}

// MarkSent implements storage.Ledger.
func (l *Ledger) MarkSent(ctx context.Context, eventID string, channel string) error {
	if err := l.client.Set(ctx, l.key(eventID, channel), storage.OutcomeSent, l.outcomeTTL).Err(); err != nil {
		return fmt.Errorf("failed to record sent outcome: %w", err)
	}
	return nil
}

// MarkFailed implements storage.Ledger.
func (l *Ledger) MarkFailed(ctx context.Context, eventID string, channel string) error {
	if err := l.client.Set(ctx, l.key(eventID, channel), storage.OutcomeFailed, l.outcomeTTL).Err(); err != nil {
		return fmt.Errorf("failed to record failed outcome: %w", err)
	}
	return nil
}

// Outcome implements storage.Ledger.
func (l *Ledger) Outcome(ctx context.Context, eventID string, channel string) (string, error) {
	value, err := l.client.Get(ctx, l.key(eventID, channel)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read ledger outcome: %w", err)
	}
	return value, nil
}
