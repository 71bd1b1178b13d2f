package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chatTask(kind EventKind, severity string) ChannelTask {
	return ChannelTask{
		Event: EnrichedEvent{
			InboundEvent: InboundEvent{
				ID:         "evt-1",
				Type:       kind,
				OccurredAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
			},
			Account: AccountContext{AccountID: "acc-1", DisplayName: "Platform Team"},
		},
		Channel:  ChannelChat,
		Severity: severity,
	}
}

func TestFormatChatMessage(t *testing.T) {
	msg := FormatChatMessage(chatTask(KindAccountDriftDetected, "medium"))

	require.Len(t, msg.Blocks, 2)
	assert.Equal(t, "header", msg.Blocks[0].Type)
	assert.Contains(t, msg.Blocks[0].Text, "medium")
	assert.Contains(t, msg.Blocks[0].Text, "AccountDriftDetected")
	assert.Contains(t, msg.Blocks[1].Text, "acc-1")
	assert.Contains(t, msg.Blocks[1].Text, "2026-08-01T12:00:00Z")
	assert.Contains(t, msg.Blocks[1].Text, "Platform Team")
}

func TestFormatChatMessage_DefaultSeverity(t *testing.T) {
	msg := FormatChatMessage(chatTask(KindAccountDriftDetected, ""))
	assert.Contains(t, msg.Blocks[0].Text, "info")
}

func TestChatSender_PostsBlocks(t *testing.T) {
	var got ChatMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	secrets := newTestSecretCache(t, map[string]string{"chat-webhook": server.URL})
	sender := NewChatSender("chat-webhook", secrets, server.Client(), zap.NewNop())

	err := sender.Send(context.Background(), chatTask(KindAccountQuarantined, "critical"))
	require.NoError(t, err)
	require.Len(t, got.Blocks, 2)
	assert.Contains(t, got.Blocks[0].Text, "critical")
}

func TestChatSender_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		permanent bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusNotFound, true},
		{http.StatusGone, true},
		{http.StatusTooManyRequests, false},
		{http.StatusInternalServerError, false},
		{http.StatusBadGateway, false},
	}

	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		secrets := newTestSecretCache(t, map[string]string{"chat-webhook": server.URL})
		sender := NewChatSender("chat-webhook", secrets, server.Client(), zap.NewNop())

		err := sender.Send(context.Background(), chatTask(KindAccountDriftDetected, "medium"))
		require.Error(t, err, "status %d", tt.status)
		assert.Equal(t, tt.permanent, IsPermanent(err), "status %d", tt.status)
		server.Close()
	}
}

func TestChatSender_MissingWebhookIsRetryable(t *testing.T) {
	secrets := newTestSecretCache(t, map[string]string{})
	sender := NewChatSender("chat-webhook", secrets, nil, zap.NewNop())

	err := sender.Send(context.Background(), chatTask(KindAccountDriftDetected, "medium"))
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}

func TestChatSender_TransportErrorIsRetryable(t *testing.T) {
	// Point at a closed server to force a connection error.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	secrets := newTestSecretCache(t, map[string]string{"chat-webhook": url})
	sender := NewChatSender("chat-webhook", secrets, nil, zap.NewNop())

	err := sender.Send(context.Background(), chatTask(KindAccountDriftDetected, "medium"))
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
	assert.Equal(t, ErrCodeTimeout, ErrorCode(err))
}
