package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sandboxhq/notifier/storage"
)

// Engine is the notification pipeline: gate, validate, reserve, enrich,
// route, then fan out to the channel senders. It holds the shared
// dependencies and is safe for concurrent Process calls; each call is an
// independent, stateless unit of work.
type Engine struct {
	gate      *SecurityGate
	validator *Validator
	router    *Router
	enricher  *Enricher
	ledger    storage.Ledger
	failures  *FailureHandler
	senders   map[Channel]ChannelSender
	policy    RetryPolicy
	logger    *zap.Logger
	metrics   MetricsCollector
}

// NewEngine wires the pipeline with the given options. A ledger, a
// dead-letter store, and at least one sender are required.
func NewEngine(ledger storage.Ledger, deadLetters storage.DeadLetterStore, opts ...EngineOption) (*Engine, error) {
	cfg := defaultEngineOptions()
	for _, opt := range opts {
		opt(cfg)
	}

	if ledger == nil {
		return nil, errors.New("engine requires a ledger")
	}
	if deadLetters == nil {
		return nil, errors.New("engine requires a dead-letter store")
	}
	if len(cfg.senders) == 0 {
		return nil, errors.New("engine requires at least one channel sender")
	}
	if cfg.accountStore == nil {
		return nil, errors.New("engine requires an account store")
	}

	validator, err := NewValidator(cfg.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build validator: %w", err)
	}

	return &Engine{
		gate:      NewSecurityGate(cfg.allowedSources, cfg.logger, cfg.metrics),
		validator: validator,
		router:    NewRouter(cfg.routingTable, cfg.logger),
		enricher:  NewEnricher(cfg.accountStore, cfg.logger, cfg.metrics),
		ledger:    ledger,
		failures:  NewFailureHandler(deadLetters, cfg.logger, cfg.metrics),
		senders:   cfg.senders,
		policy:    cfg.retryPolicy,
		logger:    cfg.logger,
		metrics:   cfg.metrics,
	}, nil
}

// Process runs one raw bus message through the pipeline.
//
// Gate rejections and validation failures are terminal for the event and
// never retried. Channel delivery is fanned out concurrently; one channel's
// failure never blocks or fails the other. The returned error is non-nil
// only for infrastructure faults worth redelivering (e.g. ledger
// unreachable); terminal event outcomes return a nil error.
func (e *Engine) Process(ctx context.Context, raw []byte) (ProcessResult, error) {
	start := time.Now()
	defer func() {
		e.metrics.RecordDuration("engine.process_duration", time.Since(start), nil)
	}()

	event, err := e.gate.Accept(raw)
	if err != nil {
		// Rejected at the gate: dropped with the gate's audit entry.
		e.metrics.IncrementCounter("engine.rejected", nil)
		return ProcessResult{}, nil
	}

	result := ProcessResult{EventID: event.ID, Kind: event.Type}

	if err := e.validator.Validate(event); err != nil {
		// Resubmission cannot fix a malformed or unknown event: dead-letter
		// for audit, do not surface an error to the redelivery substrate.
		if dlqErr := e.failures.HandlePipelineFailure(ctx, event.ID, event.Type, err); dlqErr != nil {
			return result, dlqErr
		}
		return result, nil
	}

	enriched, err := e.enricher.Enrich(ctx, event)
	if err != nil {
		// Not-found or malformed detail: a data problem, permanent.
		if dlqErr := e.failures.HandlePipelineFailure(ctx, event.ID, event.Type, err); dlqErr != nil {
			return result, dlqErr
		}
		return result, nil
	}

	tasks := e.router.Route(enriched)
	if len(tasks) == 0 {
		return result, nil
	}

	// One brain, two mouths: every channel task runs in its own goroutine
	// from this single dispatch point. The join is for aggregate reporting
	// only; neither task waits on the other to start or finish its work.
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		outcomes = make([]DeliveryOutcome, 0, len(tasks))
	)
	for _, task := range tasks {
		wg.Add(1)
		go func(task ChannelTask) {
			defer wg.Done()
			outcome := e.deliver(ctx, task)
			mu.Lock()
			outcomes = append(outcomes, outcome)
			mu.Unlock()
		}(task)
	}
	wg.Wait()

	result.Outcomes = outcomes

	// A Retrying outcome means an infrastructure dependency (ledger,
	// dead-letter sink) was unavailable and the channel made no durable
	// progress. Surface it so the caller withholds the ack and the bus
	// redelivers; channels that already reached Sent short-circuit at the
	// ledger on the next pass.
	var deferred []error
	for _, outcome := range outcomes {
		if outcome.Status == DeliveryStatusRetrying && outcome.Err != nil {
			deferred = append(deferred, outcome.Err)
		}
	}
	if len(deferred) > 0 {
		return result, fmt.Errorf("delivery deferred to redelivery: %w", errors.Join(deferred...))
	}
	return result, nil
}

// deliver drives one channel task to a terminal state.
func (e *Engine) deliver(ctx context.Context, task ChannelTask) DeliveryOutcome {
	channel := string(task.Channel)
	outcome := DeliveryOutcome{Channel: task.Channel, Status: DeliveryStatusPending}

	reservation, err := e.ledger.CheckAndReserve(ctx, task.Event.ID, channel)
	if err != nil {
		// Ledger unreachable: without the at-most-once guarantee we must not
		// send. Leave the event to redelivery.
		e.metrics.IncrementCounter("ledger.unavailable", map[string]string{"channel": channel})
		e.logger.Error("Idempotency ledger unavailable, deferring delivery",
			zap.String("event_id", Sanitize(task.Event.ID)),
			zap.String("channel", channel),
			zap.Error(err),
		)
		outcome.Status = DeliveryStatusRetrying
		outcome.Err = err
		return outcome
	}
	if reservation == storage.ReservationAlreadyHandled {
		e.metrics.IncrementCounter("ledger.duplicate_short_circuit", map[string]string{"channel": channel})
		e.logger.Info("Duplicate delivery short-circuited",
			zap.String("event_id", Sanitize(task.Event.ID)),
			zap.String("channel", channel),
		)
		outcome.Status = DeliveryStatusSent
		return outcome
	}

	sender, ok := e.senders[task.Channel]
	if !ok {
		err := NewPermanentError(ErrCodeServerError, fmt.Errorf("no sender configured for channel %s", channel))
		_ = e.ledger.MarkFailed(ctx, task.Event.ID, channel)
		if dlqErr := e.failures.HandleFailure(ctx, task, err, 0); dlqErr != nil {
			outcome.Status = DeliveryStatusRetrying
			outcome.Err = dlqErr
			return outcome
		}
		outcome.Status = DeliveryStatusDeadLettered
		outcome.Err = err
		return outcome
	}

	attempts, sendErr := sendWithRetry(ctx, sender, task, e.policy, e.logger, e.metrics)
	outcome.Attempts = attempts

	if sendErr == nil {
		if err := e.ledger.MarkSent(ctx, task.Event.ID, channel); err != nil {
			// The send happened; a reservation left pending expires on its
			// own and at worst allows one redundant retry window.
			e.logger.Error("Failed to record sent outcome",
				zap.String("event_id", Sanitize(task.Event.ID)),
				zap.String("channel", channel),
				zap.Error(err),
			)
		}
		outcome.Status = DeliveryStatusSent
		return outcome
	}

	if !IsPermanent(sendErr) {
		e.metrics.IncrementCounter("sender.retry_exhausted", map[string]string{"channel": channel})
		sendErr = NewRetryableError(ErrCodeRetryExhausted, sendErr)
	}
	if err := e.ledger.MarkFailed(ctx, task.Event.ID, channel); err != nil {
		e.logger.Error("Failed to record failed outcome",
			zap.String("event_id", Sanitize(task.Event.ID)),
			zap.String("channel", channel),
			zap.Error(err),
		)
	}
	if dlqErr := e.failures.HandleFailure(ctx, task, sendErr, attempts); dlqErr != nil {
		// No durable audit artifact exists yet. The failed ledger outcome
		// permits the retry, so defer to redelivery and re-attempt the
		// dead-letter write then.
		outcome.Status = DeliveryStatusRetrying
		outcome.Err = dlqErr
		return outcome
	}
	outcome.Status = DeliveryStatusDeadLettered
	outcome.Err = sendErr
	return outcome
}
