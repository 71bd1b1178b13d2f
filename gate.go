package notifier

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var (
	emailPattern     = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	accountIDPattern = regexp.MustCompile(`\b\d{12}\b`)
)

// SecurityGate is the first pipeline stage. It rejects events from untrusted
// sources and guarantees that nothing unsanitized ever reaches a log sink.
type SecurityGate struct {
	allowedSources map[string]struct{}
	logger         *zap.Logger
	metrics        MetricsCollector
}

// NewSecurityGate creates a gate with a fixed source allow-list.
// Any source not on the list is rejected without further processing.
func NewSecurityGate(allowedSources []string, logger *zap.Logger, metrics MetricsCollector) *SecurityGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewNopMetricsCollector()
	}
	allowed := make(map[string]struct{}, len(allowedSources))
	for _, s := range allowedSources {
		allowed[s] = struct{}{}
	}
	return &SecurityGate{
		allowedSources: allowed,
		logger:         logger,
		metrics:        metrics,
	}
}

// Accept parses a raw bus message and checks its source against the
// allow-list. The returned event keeps its payload intact for delivery;
// only log output is sanitized and redacted.
func (g *SecurityGate) Accept(raw []byte) (*InboundEvent, error) {
	var event InboundEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		g.metrics.IncrementCounter("gate.malformed", nil)
		g.logger.Warn("Rejected unparseable event", zap.Error(err))
		return nil, &ValidationError{FieldErrors: []string{fmt.Sprintf("invalid JSON: %v", err)}}
	}

	if _, ok := g.allowedSources[event.Source]; !ok {
		g.metrics.IncrementCounter("gate.rejected", map[string]string{"reason": "untrusted_source"})
		g.logger.Warn("Rejected event from untrusted source",
			zap.String("event_id", Sanitize(event.ID)),
			zap.String("source", Sanitize(event.Source)),
		)
		return nil, fmt.Errorf("source %q: %w", Sanitize(event.Source), ErrUntrustedSource)
	}

	g.metrics.IncrementCounter("gate.accepted", nil)
	g.logger.Info("Event accepted",
		zap.String("event_id", Sanitize(event.ID)),
		zap.String("event_type", Sanitize(string(event.Type))),
		zap.String("source", Sanitize(event.Source)),
		zap.Time("occurred_at", event.OccurredAt),
	)
	return &event, nil
}

// Sanitize neutralizes log injection and redacts recognized PII.
// Applied to every string field before it is written to a log sink or a
// dead-letter row; delivery payloads are never passed through it.
func Sanitize(s string) string {
	s = Redact(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteByte(' ')
		case r < 0x20 || r == 0x7f:
			// drop other control characters
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Redact replaces email addresses and 12-digit account identifiers.
func Redact(s string) string {
	s = emailPattern.ReplaceAllString(s, "[redacted-email]")
	s = accountIDPattern.ReplaceAllString(s, "[redacted-account]")
	return s
}
