package notifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/sandboxhq/notifier/storage"
)

func TestCleanupService_PurgesWithConfiguredRetention(t *testing.T) {
	deadLetters := new(storage.MockDeadLetterStore)
	deadLetters.On("DeleteOlderThan", mock.Anything, 7*24*time.Hour).Return(int64(5), nil).Once()

	service := NewCleanupService(deadLetters, zap.NewNop(), nil,
		WithCleanupDeadLetterRetention(7*24*time.Hour))

	assert.NoError(t, service.Cleanup(context.Background()))
	deadLetters.AssertExpectations(t)
}

func TestCleanupService_DefaultRetention(t *testing.T) {
	deadLetters := new(storage.MockDeadLetterStore)
	deadLetters.On("DeleteOlderThan", mock.Anything, defaultDLQRetention).Return(int64(0), nil).Once()

	service := NewCleanupService(deadLetters, zap.NewNop(), nil)

	assert.NoError(t, service.Cleanup(context.Background()))
	deadLetters.AssertExpectations(t)
}

func TestCleanupService_SwallowsStoreErrors(t *testing.T) {
	deadLetters := new(storage.MockDeadLetterStore)
	deadLetters.On("DeleteOlderThan", mock.Anything, mock.Anything).
		Return(int64(0), errors.New("table locked")).Once()

	service := NewCleanupService(deadLetters, zap.NewNop(), nil)

	// A failed purge is logged, not fatal; the ticker keeps running.
	assert.NoError(t, service.Cleanup(context.Background()))
	deadLetters.AssertExpectations(t)
}
