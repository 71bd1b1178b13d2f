package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// AccountStore is the read-only enrichment store, keyed by account ID.
// Implementations must distinguish "not found" (ErrAccountNotFound) from
// store unavailability (any other error).
type AccountStore interface {
	Lookup(ctx context.Context, accountID string) (AccountContext, error)
}

// Enricher augments validated events with account context.
type Enricher struct {
	store   AccountStore
	logger  *zap.Logger
	metrics MetricsCollector
}

// NewEnricher creates an enricher over the given store.
func NewEnricher(store AccountStore, logger *zap.Logger, metrics MetricsCollector) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewNopMetricsCollector()
	}
	return &Enricher{store: store, logger: logger, metrics: metrics}
}

// eventDetail is the subset of the kind-specific payload the enricher and
// senders rely on when the store cannot be reached.
type eventDetail struct {
	LeaseID   string `json:"leaseId"`
	AccountID string `json:"accountId"`
	UserEmail string `json:"userEmail"`
}

// Enrich looks up account context for the event.
//
// Store unavailability is a degraded continuation, not a failure: the event
// proceeds with whatever identity the raw payload carries, and the condition
// is logged distinctly. A missing account is a data problem and permanent.
func (e *Enricher) Enrich(ctx context.Context, event *InboundEvent) (EnrichedEvent, error) {
	var detail eventDetail
	if err := json.Unmarshal(event.Detail, &detail); err != nil {
		return EnrichedEvent{}, &ValidationError{Kind: event.Type, FieldErrors: []string{fmt.Sprintf("detail is not valid JSON: %v", err)}}
	}

	account, err := e.store.Lookup(ctx, detail.AccountID)
	switch {
	case err == nil:
		e.metrics.IncrementCounter("enrich.hit", nil)
		return EnrichedEvent{InboundEvent: *event, Account: account}, nil

	case errors.Is(err, ErrAccountNotFound):
		e.metrics.IncrementCounter("enrich.not_found", nil)
		e.logger.Warn("Account missing from enrichment store",
			zap.String("event_id", Sanitize(event.ID)),
			zap.String("account_id", Sanitize(detail.AccountID)),
		)
		return EnrichedEvent{}, fmt.Errorf("account %q: %w", Sanitize(detail.AccountID), ErrAccountNotFound)

	default:
		e.metrics.IncrementCounter("enrich.degraded", nil)
		e.logger.Warn("Enrichment store unavailable, continuing degraded",
			zap.String("event_id", Sanitize(event.ID)),
			zap.Error(err),
		)
		return EnrichedEvent{
			InboundEvent: *event,
			Account: AccountContext{
				AccountID:  detail.AccountID,
				OwnerEmail: detail.UserEmail,
			},
			Degraded: true,
		}, nil
	}
}

// HTTPAccountStore looks up account metadata from an HTTP JSON endpoint.
type HTTPAccountStore struct {
	baseURL string
	client  *http.Client
}

// NewHTTPAccountStore creates a store client for baseURL, e.g. the internal
// account-metadata service. A nil client uses http.DefaultClient.
func NewHTTPAccountStore(baseURL string, client *http.Client) *HTTPAccountStore {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPAccountStore{baseURL: baseURL, client: client}
}

// Lookup implements AccountStore. 404 maps to ErrAccountNotFound; transport
// errors and server errors surface as unavailability.
func (s *HTTPAccountStore) Lookup(ctx context.Context, accountID string) (AccountContext, error) {
	if accountID == "" {
		return AccountContext{}, ErrAccountNotFound
	}

	endpoint := fmt.Sprintf("%s/accounts/%s", s.baseURL, url.PathEscape(accountID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return AccountContext{}, fmt.Errorf("failed to build enrichment request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return AccountContext{}, fmt.Errorf("%w: %v", ErrEnrichmentUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var account AccountContext
		if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
			return AccountContext{}, fmt.Errorf("%w: decoding response: %v", ErrEnrichmentUnavailable, err)
		}
		return account, nil
	case resp.StatusCode == http.StatusNotFound:
		return AccountContext{}, ErrAccountNotFound
	default:
		return AccountContext{}, fmt.Errorf("%w: status %d", ErrEnrichmentUnavailable, resp.StatusCode)
	}
}
