package notifier

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSecurityGate_AcceptsTrustedSource(t *testing.T) {
	gate := NewSecurityGate([]string{"sandbox.lease"}, zap.NewNop(), nil)

	raw := []byte(`{
		"id": "evt-1",
		"type": "LeaseApproved",
		"source": "sandbox.lease",
		"time": "2026-08-01T12:00:00Z",
		"detail": {"leaseId": "l-1", "accountId": "acc-1", "userEmail": "dev@example.gov"}
	}`)

	event, err := gate.Accept(raw)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", event.ID)
	assert.Equal(t, KindLeaseApproved, event.Type)
	// Delivery payload keeps the PII the logs must not see.
	assert.Contains(t, string(event.Detail), "dev@example.gov")
}

func TestSecurityGate_RejectsUntrustedSource(t *testing.T) {
	gate := NewSecurityGate([]string{"sandbox.lease"}, zap.NewNop(), nil)

	raw := []byte(`{"id": "evt-2", "type": "LeaseApproved", "source": "evil.actor", "time": "2026-08-01T12:00:00Z", "detail": {}}`)

	event, err := gate.Accept(raw)
	assert.Nil(t, event)
	assert.True(t, errors.Is(err, ErrUntrustedSource))
}

func TestSecurityGate_RejectsUnparseableEvent(t *testing.T) {
	gate := NewSecurityGate([]string{"sandbox.lease"}, zap.NewNop(), nil)

	event, err := gate.Accept([]byte(`{not json`))
	assert.Nil(t, event)

	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestSanitize_NeutralizesLogInjection(t *testing.T) {
	in := "evt-1\ninjected=ERROR Fake log line\r\x1b[31m"
	out := Sanitize(in)

	assert.NotContains(t, out, "\n")
	assert.NotContains(t, out, "\r")
	assert.NotContains(t, out, "\x1b")
	assert.Contains(t, out, "evt-1")
}

func TestSanitize_RedactsPII(t *testing.T) {
	in := "owner alice@example.gov on account 123456789012 reported"
	out := Sanitize(in)

	assert.NotContains(t, out, "alice@example.gov")
	assert.NotContains(t, out, "123456789012")
	assert.Contains(t, out, "[redacted-email]")
	assert.Contains(t, out, "[redacted-account]")
}

func TestRedact_LeavesOrdinaryTextAlone(t *testing.T) {
	in := "lease l-42 approved for team platform"
	assert.Equal(t, in, Redact(in))
}

func TestSanitize_EmbeddedNewlineAndEmailNeverVerbatim(t *testing.T) {
	in := "x\nbob+test@corp.example.com\ny"
	out := Sanitize(in)
	assert.False(t, strings.Contains(out, "\n") || strings.Contains(out, "bob+test@corp.example.com"))
}
