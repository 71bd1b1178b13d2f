package notifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
)

// detail schemas per event kind, Draft 2020-12. Lease lifecycle events carry
// lease and account identity; threshold alerts add the threshold figures;
// operational events identify the affected account and the finding.
const (
	leaseDetailSchema = `{
		"type": "object",
		"required": ["leaseId", "accountId", "userEmail"],
		"properties": {
			"leaseId": {"type": "string", "minLength": 1},
			"accountId": {"type": "string", "minLength": 1},
			"userEmail": {"type": "string", "minLength": 3},
			"reason": {"type": "string"}
		}
	}`

	thresholdDetailSchema = `{
		"type": "object",
		"required": ["leaseId", "accountId", "userEmail", "threshold"],
		"properties": {
			"leaseId": {"type": "string", "minLength": 1},
			"accountId": {"type": "string", "minLength": 1},
			"userEmail": {"type": "string", "minLength": 3},
			"threshold": {"type": "number", "minimum": 0},
			"actual": {"type": "number", "minimum": 0}
		}
	}`

	operationalDetailSchema = `{
		"type": "object",
		"required": ["accountId"],
		"properties": {
			"accountId": {"type": "string", "minLength": 1},
			"finding": {"type": "string"},
			"severity": {"type": "string", "enum": ["low", "medium", "high", "critical"]}
		}
	}`
)

var detailSchemas = map[EventKind]string{
	KindLeaseRequested:       leaseDetailSchema,
	KindLeaseApproved:        leaseDetailSchema,
	KindLeaseDenied:          leaseDetailSchema,
	KindLeaseTerminated:      leaseDetailSchema,
	KindLeaseFrozen:          leaseDetailSchema,
	KindLeaseUnfrozen:        leaseDetailSchema,
	KindLeaseExpired:         leaseDetailSchema,
	KindBudgetThreshold:      thresholdDetailSchema,
	KindDurationThreshold:    thresholdDetailSchema,
	KindFreezingThreshold:    thresholdDetailSchema,
	KindBudgetExceeded:       thresholdDetailSchema,
	KindAccountQuarantined:   operationalDetailSchema,
	KindAccountCleanupFailed: operationalDetailSchema,
	KindAccountDriftDetected: operationalDetailSchema,
}

// Validator performs structural validation of accepted events against the
// per-kind schema. All failures it produces are permanent: resubmitting a
// malformed or unknown event cannot fix it.
type Validator struct {
	schemas map[EventKind]*jsonschema.Schema
	logger  *zap.Logger
}

// NewValidator compiles the per-kind schemas. Compilation errors are
// programmer errors and surface at construction time.
func NewValidator(logger *zap.Logger) (*Validator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	compiled := make(map[EventKind]*jsonschema.Schema, len(detailSchemas))
	for kind, raw := range detailSchemas {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		url := fmt.Sprintf("https://notifier.schemas.local/%s.schema.json", kind)
		if err := c.AddResource(url, strings.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("load schema for %s: %w", kind, err)
		}
		schema, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", kind, err)
		}
		compiled[kind] = schema
	}
	return &Validator{schemas: compiled, logger: logger}, nil
}

// Validate checks the event against the schema for its kind.
func (v *Validator) Validate(event *InboundEvent) error {
	fieldErrs := v.requiredEnvelopeFields(event)
	if len(fieldErrs) > 0 {
		return &ValidationError{Kind: event.Type, FieldErrors: fieldErrs}
	}

	schema, ok := v.schemas[event.Type]
	if !ok {
		v.logger.Warn("Unknown event type",
			zap.String("event_id", Sanitize(event.ID)),
			zap.String("event_type", Sanitize(string(event.Type))),
		)
		return fmt.Errorf("type %q: %w", Sanitize(string(event.Type)), ErrUnsupportedEventType)
	}

	var detail any
	if err := json.Unmarshal(event.Detail, &detail); err != nil {
		return &ValidationError{Kind: event.Type, FieldErrors: []string{fmt.Sprintf("detail is not valid JSON: %v", err)}}
	}
	if err := schema.Validate(detail); err != nil {
		return &ValidationError{Kind: event.Type, FieldErrors: collectSchemaErrors(err)}
	}
	return nil
}

func (v *Validator) requiredEnvelopeFields(event *InboundEvent) []string {
	var errs []string
	if event.ID == "" {
		errs = append(errs, "id is required")
	}
	if event.Type == "" {
		errs = append(errs, "type is required")
	}
	if event.OccurredAt.IsZero() {
		errs = append(errs, "time is required")
	}
	if len(event.Detail) == 0 {
		errs = append(errs, "detail is required")
	}
	return errs
}

func collectSchemaErrors(err error) []string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}
	leaves := ve.BasicOutput().Errors
	out := make([]string, 0, len(leaves))
	for _, line := range leaves {
		if line.Error == "" {
			continue
		}
		out = append(out, fmt.Sprintf("%s: %s", line.InstanceLocation, line.Error))
	}
	if len(out) == 0 {
		out = append(out, ve.Error())
	}
	return out
}
