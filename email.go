package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// EmailRequest is the provider-facing send call.
type EmailRequest struct {
	TemplateID      string            `json:"templateId"`
	RecipientEmail  string            `json:"recipientEmail"`
	Personalization map[string]string `json:"personalization"`
}

// EmailResponse is the provider's acknowledgement.
type EmailResponse struct {
	ID string `json:"id"`
}

// EmailProvider is the transactional-email backend. Failures should be
// classified with SendError; anything else is treated as retryable.
type EmailProvider interface {
	Send(ctx context.Context, req EmailRequest) (EmailResponse, error)
}

// EmailSender delivers lifecycle notifications to the lease owner's mailbox.
// It resolves the template from the routing entry, builds the
// personalization payload from the enriched account context, and enforces
// the recipient-domain policy before any provider call.
type EmailSender struct {
	provider       EmailProvider
	allowedDomains []string
	logger         *zap.Logger
}

// NewEmailSender creates an email sender. allowedDomains lists the
// organizational recipient domains; empty means any domain is accepted.
func NewEmailSender(provider EmailProvider, allowedDomains []string, logger *zap.Logger) *EmailSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailSender{
		provider:       provider,
		allowedDomains: allowedDomains,
		logger:         logger,
	}
}

// Channel implements ChannelSender.
func (s *EmailSender) Channel() Channel {
	return ChannelEmail
}

// Send implements ChannelSender. One attempt; retries are driven by the engine.
func (s *EmailSender) Send(ctx context.Context, task ChannelTask) error {
	recipient := task.Event.Account.OwnerEmail
	if recipient == "" {
		return NewPermanentError(ErrCodeInvalidRecipient, fmt.Errorf("event has no recipient address"))
	}
	if err := s.checkRecipientDomain(recipient); err != nil {
		return err
	}
	if task.TemplateID == "" {
		return NewPermanentError(ErrCodeInvalidTemplate, fmt.Errorf("routing entry has no template for kind %s", task.Event.Type))
	}

	req := EmailRequest{
		TemplateID:      task.TemplateID,
		RecipientEmail:  recipient,
		Personalization: buildPersonalization(task.Event),
	}

	resp, err := s.provider.Send(ctx, req)
	if err != nil {
		return err
	}

	s.logger.Info("Email dispatched",
		zap.String("event_id", Sanitize(task.Event.ID)),
		zap.String("template_id", task.TemplateID),
		zap.String("provider_message_id", Sanitize(resp.ID)),
	)
	return nil
}

func (s *EmailSender) checkRecipientDomain(recipient string) error {
	if len(s.allowedDomains) == 0 {
		return nil
	}
	at := strings.LastIndex(recipient, "@")
	if at < 0 {
		return NewPermanentError(ErrCodeInvalidRecipient, fmt.Errorf("recipient address has no domain"))
	}
	domain := strings.ToLower(recipient[at+1:])
	for _, allowed := range s.allowedDomains {
		if domain == strings.ToLower(allowed) {
			return nil
		}
	}
	return NewPermanentError(ErrCodeInvalidRecipient, fmt.Errorf("recipient domain %q is not organizational", domain))
}

func buildPersonalization(event EnrichedEvent) map[string]string {
	p := map[string]string{
		"displayName": event.Account.DisplayName,
		"accountId":   event.Account.AccountID,
		"eventKind":   string(event.Type),
		"occurredAt":  event.OccurredAt.UTC().Format("2006-01-02 15:04 MST"),
	}
	if event.Account.BudgetLimit > 0 {
		p["budgetLimit"] = fmt.Sprintf("%.2f", event.Account.BudgetLimit)
		p["budgetSpent"] = fmt.Sprintf("%.2f", event.Account.BudgetSpent)
	}
	return p
}

// HTTPEmailProvider calls a JSON-over-HTTP transactional-email API,
// authenticating with an API key resolved through the secret cache.
type HTTPEmailProvider struct {
	endpoint   string
	secretName string
	secrets    *SecretCache
	client     *http.Client
}

// NewHTTPEmailProvider creates the production email provider client.
func NewHTTPEmailProvider(endpoint, secretName string, secrets *SecretCache, client *http.Client) *HTTPEmailProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPEmailProvider{
		endpoint:   endpoint,
		secretName: secretName,
		secrets:    secrets,
		client:     client,
	}
}

// providerError is the provider's machine-readable failure body.
type providerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Send implements EmailProvider.
func (p *HTTPEmailProvider) Send(ctx context.Context, req EmailRequest) (EmailResponse, error) {
	apiKey, err := p.secrets.Get(ctx, p.secretName)
	if err != nil {
		return EmailResponse{}, NewRetryableError(ErrCodeServerError, fmt.Errorf("could not resolve provider credentials: %w", err))
	}

	body, err := json.Marshal(req)
	if err != nil {
		return EmailResponse{}, NewPermanentError(ErrCodeMalformedPayload, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return EmailResponse{}, NewPermanentError(ErrCodeMalformedPayload, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return EmailResponse{}, NewRetryableError(ErrCodeTimeout, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var out EmailResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			// Provider accepted the send; a bad ack body is not a failure.
			return EmailResponse{}, nil
		}
		return out, nil
	}

	var perr providerError
	_ = json.NewDecoder(resp.Body).Decode(&perr)
	return EmailResponse{}, classifyProviderError(resp.StatusCode, perr)
}

func classifyProviderError(status int, perr providerError) error {
	switch perr.Code {
	case "invalid-recipient":
		return NewPermanentError(ErrCodeInvalidRecipient, fmt.Errorf("provider: %s", perr.Message))
	case "invalid-template":
		return NewPermanentError(ErrCodeInvalidTemplate, fmt.Errorf("provider: %s", perr.Message))
	case "rate-limited":
		return NewRetryableError(ErrCodeRateLimited, fmt.Errorf("provider: %s", perr.Message))
	}
	switch {
	case status == http.StatusTooManyRequests:
		return NewRetryableError(ErrCodeRateLimited, fmt.Errorf("provider returned status %d", status))
	case status >= 500:
		return NewRetryableError(ErrCodeServerError, fmt.Errorf("provider returned status %d", status))
	default:
		return NewPermanentError(ErrCodeMalformedPayload, fmt.Errorf("provider returned status %d", status))
	}
}
