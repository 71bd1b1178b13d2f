package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// SecretSource fetches secret material by named reference. Rotation happens
// out-of-band; a fetch after expiry observes the new value.
type SecretSource interface {
	FetchSecret(ctx context.Context, name string) (string, error)
}

type secretEntry struct {
	value     string
	expiresAt time.Time
}

// SecretCache is a read-mostly in-memory cache over a SecretSource with
// TTL-based refresh. Concurrent expiry is collapsed into a single fetch.
// Secret values are never logged.
type SecretCache struct {
	source SecretSource
	clock  clockwork.Clock
	ttl    time.Duration
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[string]secretEntry
	group   singleflight.Group
}

// NewSecretCache creates a cache with the given TTL. The clock is injected
// so tests can exercise expiry and refresh races.
func NewSecretCache(source SecretSource, clock clockwork.Clock, ttl time.Duration, logger *zap.Logger) *SecretCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ttl <= 0 {
		ttl = defaultSecretTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SecretCache{
		source:  source,
		clock:   clock,
		ttl:     ttl,
		logger:  logger,
		entries: make(map[string]secretEntry),
	}
}

// Get returns the cached secret, fetching from the source when absent or
// expired. Concurrent callers hitting an expired entry share one fetch.
func (c *SecretCache) Get(ctx context.Context, name string) (string, error) {
	now := c.clock.Now()

	c.mu.RLock()
	entry, ok := c.entries[name]
	c.mu.RUnlock()
	if ok && now.Before(entry.expiresAt) {
		return entry.value, nil
	}

	value, err, _ := c.group.Do(name, func() (any, error) {
		// Re-check under single-flight: another caller may have refreshed.
		c.mu.RLock()
		entry, ok := c.entries[name]
		c.mu.RUnlock()
		if ok && c.clock.Now().Before(entry.expiresAt) {
			return entry.value, nil
		}

		fetched, err := c.source.FetchSecret(ctx, name)
		if err != nil {
			return "", fmt.Errorf("failed to fetch secret %q: %w", name, err)
		}

		c.mu.Lock()
		c.entries[name] = secretEntry{
			value:     fetched,
			expiresAt: c.clock.Now().Add(c.ttl),
		}
		c.mu.Unlock()

		c.logger.Debug("Secret refreshed", zap.String("secret_name", name))
		return fetched, nil
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

// Invalidate drops a cached entry so the next Get refetches.
func (c *SecretCache) Invalidate(name string) {
	c.mu.Lock()
	delete(c.entries, name)
	c.mu.Unlock()
}
