package redisledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sandboxhq/notifier/storage"
)

func setupLedger(t *testing.T, opts ...Option) (*miniredis.Miniredis, *Ledger) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, New(client, zap.NewNop(), opts...)
}

func TestLedger_FirstReservationProceeds(t *testing.T) {
	_, ledger := setupLedger(t)

	result, err := ledger.CheckAndReserve(context.Background(), "evt-1", "email")
	require.NoError(t, err)
	assert.Equal(t, storage.ReservationProceed, result)

	outcome, err := ledger.Outcome(context.Background(), "evt-1", "email")
	require.NoError(t, err)
	assert.Equal(t, storage.OutcomePending, outcome)
}

func TestLedger_LiveReservationBlocksDuplicate(t *testing.T) {
	_, ledger := setupLedger(t)

	_, err := ledger.CheckAndReserve(context.Background(), "evt-1", "email")
	require.NoError(t, err)

	result, err := ledger.CheckAndReserve(context.Background(), "evt-1", "email")
	require.NoError(t, err)
	assert.Equal(t, storage.ReservationAlreadyHandled, result)
}

func TestLedger_SentOutcomeShortCircuitsForever(t *testing.T) {
	_, ledger := setupLedger(t)

	_, err := ledger.CheckAndReserve(context.Background(), "evt-1", "email")
	require.NoError(t, err)
	require.NoError(t, ledger.MarkSent(context.Background(), "evt-1", "email"))

	for i := 0; i < 3; i++ {
		result, err := ledger.CheckAndReserve(context.Background(), "evt-1", "email")
		require.NoError(t, err)
		assert.Equal(t, storage.ReservationAlreadyHandled, result)
	}
}

func TestLedger_FailedOutcomeAllowsRetry(t *testing.T) {
	_, ledger := setupLedger(t)

	_, err := ledger.CheckAndReserve(context.Background(), "evt-1", "email")
	require.NoError(t, err)
	require.NoError(t, ledger.MarkFailed(context.Background(), "evt-1", "email"))

	result, err := ledger.CheckAndReserve(context.Background(), "evt-1", "email")
	require.NoError(t, err)
	assert.Equal(t, storage.ReservationProceed, result)
}

func TestLedger_ChannelsAreIndependent(t *testing.T) {
	_, ledger := setupLedger(t)

	_, err := ledger.CheckAndReserve(context.Background(), "evt-1", "email")
	require.NoError(t, err)
	require.NoError(t, ledger.MarkSent(context.Background(), "evt-1", "email"))

	result, err := ledger.CheckAndReserve(context.Background(), "evt-1", "chat")
	require.NoError(t, err)
	assert.Equal(t, storage.ReservationProceed, result)
}

func TestLedger_AtMostOneConcurrentReservation(t *testing.T) {
	_, ledger := setupLedger(t)

	const goroutines = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		proceeds int
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := ledger.CheckAndReserve(context.Background(), "evt-dup", "email")
			assert.NoError(t, err)
			if result == storage.ReservationProceed {
				mu.Lock()
				proceeds++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, proceeds, "exactly one concurrent duplicate may proceed")
}

func TestLedger_AbandonedReservationExpires(t *testing.T) {
	mr, ledger := setupLedger(t, WithReservationTTL(time.Minute))

	_, err := ledger.CheckAndReserve(context.Background(), "evt-1", "email")
	require.NoError(t, err)

	// Simulate a crashed invocation: no terminal mark, TTL elapses.
	mr.FastForward(2 * time.Minute)

	result, err := ledger.CheckAndReserve(context.Background(), "evt-1", "email")
	require.NoError(t, err)
	assert.Equal(t, storage.ReservationProceed, result)
}

func TestLedger_OutcomeExpiresWithRedeliveryWindow(t *testing.T) {
	mr, ledger := setupLedger(t, WithOutcomeTTL(time.Hour))

	_, err := ledger.CheckAndReserve(context.Background(), "evt-1", "email")
	require.NoError(t, err)
	require.NoError(t, ledger.MarkSent(context.Background(), "evt-1", "email"))

	mr.FastForward(2 * time.Hour)

	outcome, err := ledger.Outcome(context.Background(), "evt-1", "email")
	require.NoError(t, err)
	assert.Empty(t, outcome)
}

func TestLedger_KeyPrefixIsolation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	a := New(client, zap.NewNop(), WithKeyPrefix("a"))
	b := New(client, zap.NewNop(), WithKeyPrefix("b"))

	_, err := a.CheckAndReserve(context.Background(), "evt-1", "email")
	require.NoError(t, err)

	result, err := b.CheckAndReserve(context.Background(), "evt-1", "email")
	require.NoError(t, err)
	assert.Equal(t, storage.ReservationProceed, result)
}
