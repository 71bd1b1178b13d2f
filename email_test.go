package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeEmailProvider struct {
	calls    int
	lastReq  EmailRequest
	response EmailResponse
	err      error
}

func (p *fakeEmailProvider) Send(_ context.Context, req EmailRequest) (EmailResponse, error) {
	p.calls++
	p.lastReq = req
	return p.response, p.err
}

func emailTask(kind EventKind, templateID string, account AccountContext) ChannelTask {
	return ChannelTask{
		Event: EnrichedEvent{
			InboundEvent: InboundEvent{
				ID:         "evt-1",
				Type:       kind,
				OccurredAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
			},
			Account: account,
		},
		Channel:    ChannelEmail,
		TemplateID: templateID,
	}
}

func TestEmailSender_SendsPersonalizedTemplate(t *testing.T) {
	provider := &fakeEmailProvider{response: EmailResponse{ID: "msg-1"}}
	sender := NewEmailSender(provider, nil, zap.NewNop())

	account := AccountContext{
		AccountID:   "acc-1",
		OwnerEmail:  "owner@example.gov",
		DisplayName: "Platform Team",
		BudgetLimit: 500,
		BudgetSpent: 420,
	}
	err := sender.Send(context.Background(), emailTask(KindLeaseApproved, "lease-approved", account))
	require.NoError(t, err)

	assert.Equal(t, 1, provider.calls)
	assert.Equal(t, "lease-approved", provider.lastReq.TemplateID)
	assert.Equal(t, "owner@example.gov", provider.lastReq.RecipientEmail)
	assert.Equal(t, "Platform Team", provider.lastReq.Personalization["displayName"])
	assert.Equal(t, "500.00", provider.lastReq.Personalization["budgetLimit"])
}

func TestEmailSender_MissingRecipientIsPermanent(t *testing.T) {
	provider := &fakeEmailProvider{}
	sender := NewEmailSender(provider, nil, zap.NewNop())

	err := sender.Send(context.Background(), emailTask(KindLeaseApproved, "lease-approved", AccountContext{}))
	assert.True(t, IsPermanent(err))
	assert.Equal(t, ErrCodeInvalidRecipient, ErrorCode(err))
	assert.Zero(t, provider.calls, "provider must not be called for an invalid recipient")
}

func TestEmailSender_DomainPolicyBlocksOutsiders(t *testing.T) {
	provider := &fakeEmailProvider{}
	sender := NewEmailSender(provider, []string{"example.gov"}, zap.NewNop())

	account := AccountContext{OwnerEmail: "someone@gmail.com"}
	err := sender.Send(context.Background(), emailTask(KindLeaseApproved, "lease-approved", account))
	assert.True(t, IsPermanent(err))
	assert.Equal(t, ErrCodeInvalidRecipient, ErrorCode(err))
	assert.Zero(t, provider.calls)
}

func TestEmailSender_DomainPolicyIsCaseInsensitive(t *testing.T) {
	provider := &fakeEmailProvider{}
	sender := NewEmailSender(provider, []string{"Example.GOV"}, zap.NewNop())

	account := AccountContext{OwnerEmail: "owner@EXAMPLE.gov"}
	assert.NoError(t, sender.Send(context.Background(), emailTask(KindLeaseApproved, "lease-approved", account)))
}

func TestEmailSender_MissingTemplateIsPermanent(t *testing.T) {
	provider := &fakeEmailProvider{}
	sender := NewEmailSender(provider, nil, zap.NewNop())

	account := AccountContext{OwnerEmail: "owner@example.gov"}
	err := sender.Send(context.Background(), emailTask(KindLeaseApproved, "", account))
	assert.True(t, IsPermanent(err))
	assert.Equal(t, ErrCodeInvalidTemplate, ErrorCode(err))
}

func TestEmailSender_ProviderErrorPassesThrough(t *testing.T) {
	provider := &fakeEmailProvider{err: NewRetryableError(ErrCodeRateLimited, errors.New("slow down"))}
	sender := NewEmailSender(provider, nil, zap.NewNop())

	account := AccountContext{OwnerEmail: "owner@example.gov"}
	err := sender.Send(context.Background(), emailTask(KindLeaseApproved, "lease-approved", account))
	assert.False(t, IsPermanent(err))
	assert.Equal(t, ErrCodeRateLimited, ErrorCode(err))
}

func newTestSecretCache(t *testing.T, values map[string]string) *SecretCache {
	t.Helper()
	source := &countingSecretSource{values: values}
	return NewSecretCache(source, clockwork.NewFakeClock(), time.Hour, zap.NewNop())
}

func TestHTTPEmailProvider_Success(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req EmailRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "lease-approved", req.TemplateID)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "msg-42"}`))
	}))
	defer server.Close()

	secrets := newTestSecretCache(t, map[string]string{"email-api-key": "sekret"})
	provider := NewHTTPEmailProvider(server.URL, "email-api-key", secrets, server.Client())

	resp, err := provider.Send(context.Background(), EmailRequest{
		TemplateID:     "lease-approved",
		RecipientEmail: "owner@example.gov",
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-42", resp.ID)
	assert.Equal(t, "Bearer sekret", gotAuth)
}

func TestHTTPEmailProvider_ClassifiesFailures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		permanent bool
		code      string
	}{
		{"rate limited by status", http.StatusTooManyRequests, `{}`, false, ErrCodeRateLimited},
		{"rate limited by code", http.StatusBadRequest, `{"code": "rate-limited", "message": "try later"}`, false, ErrCodeRateLimited},
		{"server error", http.StatusServiceUnavailable, `{}`, false, ErrCodeServerError},
		{"invalid recipient", http.StatusBadRequest, `{"code": "invalid-recipient", "message": "bad address"}`, true, ErrCodeInvalidRecipient},
		{"invalid template", http.StatusBadRequest, `{"code": "invalid-template", "message": "no such template"}`, true, ErrCodeInvalidTemplate},
		{"other 4xx", http.StatusUnprocessableEntity, `{}`, true, ErrCodeMalformedPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			secrets := newTestSecretCache(t, map[string]string{"email-api-key": "sekret"})
			provider := NewHTTPEmailProvider(server.URL, "email-api-key", secrets, server.Client())

			_, err := provider.Send(context.Background(), EmailRequest{RecipientEmail: "owner@example.gov"})
			require.Error(t, err)
			assert.Equal(t, tt.permanent, IsPermanent(err))
			assert.Equal(t, tt.code, ErrorCode(err))
		})
	}
}

func TestHTTPEmailProvider_MissingCredentialIsRetryable(t *testing.T) {
	secrets := newTestSecretCache(t, map[string]string{})
	provider := NewHTTPEmailProvider("http://unused", "email-api-key", secrets, nil)

	_, err := provider.Send(context.Background(), EmailRequest{RecipientEmail: "owner@example.gov"})
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}
