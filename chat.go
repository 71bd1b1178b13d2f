package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ChatBlock is one element of the structured webhook message.
type ChatBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ChatMessage is the webhook payload.
type ChatMessage struct {
	Blocks []ChatBlock `json:"blocks"`
}

// ChatSender posts operational alerts to the team chat webhook. The webhook
// URL is itself secret material and is resolved through the secret cache.
type ChatSender struct {
	webhookSecret string
	secrets       *SecretCache
	client        *http.Client
	logger        *zap.Logger
}

// NewChatSender creates a chat sender. webhookSecret names the secret
// holding the webhook URL.
func NewChatSender(webhookSecret string, secrets *SecretCache, client *http.Client, logger *zap.Logger) *ChatSender {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatSender{
		webhookSecret: webhookSecret,
		secrets:       secrets,
		client:        client,
		logger:        logger,
	}
}

// Channel implements ChannelSender.
func (s *ChatSender) Channel() Channel {
	return ChannelChat
}

// Send implements ChannelSender. One attempt; retries are driven by the
// engine. The webhook has no acknowledgement beyond the HTTP status: 2xx is
// success, payload rejections are permanent, everything else retryable.
func (s *ChatSender) Send(ctx context.Context, task ChannelTask) error {
	webhookURL, err := s.secrets.Get(ctx, s.webhookSecret)
	if err != nil {
		return NewRetryableError(ErrCodeServerError, fmt.Errorf("could not resolve webhook: %w", err))
	}

	message := FormatChatMessage(task)
	body, err := json.Marshal(message)
	if err != nil {
		return NewPermanentError(ErrCodeMalformedPayload, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return NewPermanentError(ErrCodeMalformedPayload, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return NewRetryableError(ErrCodeTimeout, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		s.logger.Info("Chat alert dispatched",
			zap.String("event_id", Sanitize(task.Event.ID)),
			zap.String("severity", task.Severity),
		)
		return nil
	case resp.StatusCode == http.StatusBadRequest ||
		resp.StatusCode == http.StatusNotFound ||
		resp.StatusCode == http.StatusGone:
		return NewPermanentError(ErrCodeMalformedPayload, fmt.Errorf("webhook rejected payload with status %d", resp.StatusCode))
	default:
		return NewRetryableError(ErrCodeServerError, fmt.Errorf("webhook returned status %d", resp.StatusCode))
	}
}

// FormatChatMessage builds the structured alert: severity, affected account,
// event kind, and timestamp.
func FormatChatMessage(task ChannelTask) ChatMessage {
	event := task.Event
	header := fmt.Sprintf("[%s] %s", severityLabel(task.Severity), event.Type)
	lines := fmt.Sprintf("Account: %s\nOccurred: %s\nEvent ID: %s",
		event.Account.AccountID,
		event.OccurredAt.UTC().Format(time.RFC3339),
		event.ID,
	)
	if event.Account.DisplayName != "" {
		lines = fmt.Sprintf("Owner: %s\n%s", event.Account.DisplayName, lines)
	}
	return ChatMessage{
		Blocks: []ChatBlock{
			{Type: "header", Text: header},
			{Type: "section", Text: lines},
		},
	}
}

func severityLabel(severity string) string {
	if severity == "" {
		return "info"
	}
	return severity
}
