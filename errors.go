package notifier

import (
	"errors"
	"fmt"
)

var (
	// ErrUntrustedSource is returned by the gate for sources not on the allow-list.
	ErrUntrustedSource = errors.New("event source not on allow-list")

	// ErrUnsupportedEventType is returned for an unknown event kind.
	// Resubmission cannot fix an unknown kind, so it is never retried.
	ErrUnsupportedEventType = errors.New("unsupported event type")

	// ErrAccountNotFound is returned when the enrichment store has no record
	// for the account. A data problem, not transient.
	ErrAccountNotFound = errors.New("account not found in enrichment store")

	// ErrEnrichmentUnavailable signals the enrichment store could not be
	// reached. Processing continues in degraded mode.
	ErrEnrichmentUnavailable = errors.New("enrichment store unavailable")

	// ErrSecretNotFound is returned when a named secret does not exist.
	ErrSecretNotFound = errors.New("secret not found")
)

// Machine-readable error codes recorded in dead-letter rows.
const (
	ErrCodeUnsupportedType  = "unsupported_event_type"
	ErrCodeValidation       = "validation_failed"
	ErrCodeAccountNotFound  = "account_not_found"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInvalidRecipient = "invalid_recipient"
	ErrCodeInvalidTemplate  = "invalid_template"
	ErrCodeServerError      = "server_error"
	ErrCodeTimeout          = "timeout"
	ErrCodeMalformedPayload = "malformed_payload"
	ErrCodeRetryExhausted   = "retry_exhausted"
)

// ValidationError carries per-field structural validation failures.
// All validation failures are permanent.
type ValidationError struct {
	Kind        EventKind
	FieldErrors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("event validation failed for kind %q: %v", e.Kind, e.FieldErrors)
}

// SendError classifies a channel delivery failure.
type SendError struct {
	Code      string
	Permanent bool
	Err       error
}

func (e *SendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("send failed (%s): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("send failed (%s)", e.Code)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// NewRetryableError wraps err as a transient delivery failure.
func NewRetryableError(code string, err error) *SendError {
	return &SendError{Code: code, Permanent: false, Err: err}
}

// NewPermanentError wraps err as a delivery failure that retrying cannot fix.
func NewPermanentError(code string, err error) *SendError {
	return &SendError{Code: code, Permanent: true, Err: err}
}

// IsPermanent reports whether err is a failure that must not be retried.
func IsPermanent(err error) bool {
	var se *SendError
	if errors.As(err, &se) {
		return se.Permanent
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	return errors.Is(err, ErrUnsupportedEventType) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrUntrustedSource)
}

// ErrorCode extracts the machine-readable code from a delivery error.
func ErrorCode(err error) string {
	var se *SendError
	if errors.As(err, &se) {
		return se.Code
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ErrCodeValidation
	}
	switch {
	case errors.Is(err, ErrUnsupportedEventType):
		return ErrCodeUnsupportedType
	case errors.Is(err, ErrAccountNotFound):
		return ErrCodeAccountNotFound
	default:
		return ErrCodeServerError
	}
}
