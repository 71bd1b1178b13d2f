package storage

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockLedger is a mock implementation of the Ledger interface for testing.
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) CheckAndReserve(ctx context.Context, eventID string, channel string) (int, error) {
	args := m.Called(ctx, eventID, channel)
	return args.Int(0), args.Error(1)
}

func (m *MockLedger) MarkSent(ctx context.Context, eventID string, channel string) error {
	args := m.Called(ctx, eventID, channel)
	return args.Error(0)
}

func (m *MockLedger) MarkFailed(ctx context.Context, eventID string, channel string) error {
	args := m.Called(ctx, eventID, channel)
	return args.Error(0)
}

func (m *MockLedger) Outcome(ctx context.Context, eventID string, channel string) (string, error) {
	args := m.Called(ctx, eventID, channel)
	return args.String(0), args.Error(1)
}

// MockDeadLetterStore is a mock implementation of the DeadLetterStore interface for testing.
type MockDeadLetterStore struct {
	mock.Mock
}

func (m *MockDeadLetterStore) Insert(ctx context.Context, record DeadLetterRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockDeadLetterStore) List(ctx context.Context, limit int) ([]DeadLetterRecord, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]DeadLetterRecord), args.Error(1)
}

func (m *MockDeadLetterStore) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDeadLetterStore) DeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	args := m.Called(ctx, retention)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDeadLetterStore) EnsureTables(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
