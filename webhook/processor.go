package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

/* Processor drives the verification-independent half of the pipeline:
 * idempotency check, handler dispatch, retry decision, status transitions.
 * It runs as a pool of workers pulling webhook IDs from the shared inbound
 * queue. The queue's consumer group guarantees an ID is only ever held by
 * one worker, so per-record transitions are strictly sequential.
 */

// EventIDExtractor derives the provider's own event identifier from a
// parsed payload. An empty result means no idempotency key is available
// and every delivery is treated as unique.
type EventIDExtractor interface {
	EventID(provider string, payload json.RawMessage) string
}

// ProcessorConfig carries the tunables of the worker pool.
// MaxRetries and the backoff schedule are configuration, not derived.
type ProcessorConfig struct {
	Workers        int
	MaxRetries     int
	Backoff        []time.Duration
	HandlerTimeout time.Duration
	CompletedTTL   time.Duration
	FailedTTL      time.Duration
}

type Processor struct {
	repo      Repository
	index     IdempotencyIndex
	handlers  HandlerLookup
	scheduler RetryScheduler
	publisher Publisher
	ids       EventIDExtractor
	logger    *slog.Logger
	cfg       ProcessorConfig
}

// NewProcessor creates a processor with explicit dependencies.
// There is no module-level state: the composition root owns the lifetime.
func NewProcessor(
	repo Repository,
	index IdempotencyIndex,
	handlers HandlerLookup,
	scheduler RetryScheduler,
	publisher Publisher,
	ids EventIDExtractor,
	logger *slog.Logger,
	cfg ProcessorConfig,
) *Processor {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 30 * time.Second
	}
	if len(cfg.Backoff) == 0 {
		cfg.Backoff = []time.Duration{5 * time.Second, 30 * time.Second, 300 * time.Second}
	}
	return &Processor{
		repo:      repo,
		index:     index,
		handlers:  handlers,
		scheduler: scheduler,
		publisher: publisher,
		ids:       ids,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run starts the worker pool and blocks until the context is cancelled
func (p *Processor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		consumer := fmt.Sprintf("worker-%d", i)
		go func() {
			defer wg.Done()
			p.consumeLoop(ctx, consumer)
		}()
	}
	wg.Wait()
}

func (p *Processor) consumeLoop(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ids, err := p.repo.Consume(ctx, consumer)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("consuming inbound queue", "consumer", consumer, "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, id := range ids {
			p.Process(ctx, id)
		}
	}
}

/* Process runs one attempt for a webhook
 * It is re-entered on every retry: the record arrives as Verified on the
 * first attempt and as RetryScheduled afterwards; anything else means the
 * ID was redelivered after a decision was already made, which is dropped
 */
func (p *Processor) Process(ctx context.Context, id string) {
	start := time.Now()

	wh, err := p.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Record expired or was never written: nothing left to process
			p.logger.Warn("dropping webhook with no record", "webhook_id", id)
			p.acknowledge(ctx, id)
			return
		}
		// Transient store error: leave the delivery unacknowledged so the
		// stale-claim path redelivers it to another worker
		p.logger.Error("loading webhook", "webhook_id", id, "error", err)
		return
	}

	if wh.Status != Verified && wh.Status != RetryScheduled {
		p.logger.Warn("dropping redelivered webhook", "webhook_id", id, "status", wh.Status.String())
		p.acknowledge(ctx, id)
		return
	}

	if err := p.repo.UpdateStatus(ctx, id, Processing, Update{}); err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrIllegalTransition) {
			p.logger.Warn("dropping webhook on stale transition", "webhook_id", id, "error", err)
			p.acknowledge(ctx, id)
			return
		}
		p.logger.Error("transitioning to processing", "webhook_id", id, "error", err)
		return
	}

	/* Idempotency guard. The index stores the owning webhook ID so a retry
	 * of this same record passes, while a redelivery stored under a
	 * different record is flagged as duplicate. No event ID means the
	 * provider has no stable identifier: skip the check, always dispatch.
	 */
	eventID := p.ids.EventID(wh.Provider, wh.ParsedPayload)
	if eventID != "" {
		first, err := p.index.MarkIfAbsent(ctx, wh.Provider, eventID, id)
		if err != nil {
			p.retryOrFail(ctx, wh, fmt.Errorf("idempotency check: %w", err))
			return
		}
		if !first {
			// A duplicate is not an error: terminal, no side effects
			if err := p.repo.UpdateStatus(ctx, id, Duplicate, Update{}); err != nil {
				p.logger.Error("marking duplicate", "webhook_id", id, "error", err)
			}
			p.expire(ctx, id, p.cfg.CompletedTTL)
			p.acknowledge(ctx, id)
			p.logger.Info("duplicate delivery skipped",
				"webhook_id", id, "provider", wh.Provider, "event_id", eventID)
			return
		}
	}

	handler, ok := p.handlers.Get(wh.Provider, wh.EventType)
	if !ok {
		// Configuration gap, not a transient failure: never retried
		update := Update{LastError: fmt.Sprintf("no handler registered for %s/%s", wh.Provider, wh.EventType)}
		if err := p.repo.UpdateStatus(ctx, id, NoHandler, update); err != nil {
			p.logger.Error("marking no_handler", "webhook_id", id, "error", err)
		}
		p.expire(ctx, id, p.cfg.FailedTTL)
		p.acknowledge(ctx, id)
		p.logger.Warn("no handler registered",
			"webhook_id", id, "provider", wh.Provider, "event_type", wh.EventType)
		return
	}

	events, err := p.dispatch(ctx, handler, wh)
	if err == nil {
		err = p.publish(ctx, wh.ID, events)
	}
	if err != nil {
		p.retryOrFail(ctx, wh, err)
		return
	}

	update := Update{ProcessingMS: time.Since(start).Milliseconds()}
	if err := p.repo.UpdateStatus(ctx, id, Completed, update); err != nil {
		p.logger.Error("marking completed", "webhook_id", id, "error", err)
	}
	p.expire(ctx, id, p.cfg.CompletedTTL)
	p.acknowledge(ctx, id)
	p.logger.Info("webhook completed",
		"webhook_id", id, "provider", wh.Provider, "event_type", wh.EventType,
		"events", len(events), "duration_ms", update.ProcessingMS)
}

/* dispatch invokes the handler bounded by the configured timeout
 * The handler runs in its own goroutine so even one that ignores its
 * context cannot hold a worker past the deadline; a timeout counts as a
 * failed attempt exactly like a returned error
 */
func (p *Processor) dispatch(ctx context.Context, handler Handler, wh Webhook) ([]OutboundEvent, error) {
	hctx, cancel := context.WithTimeout(ctx, p.cfg.HandlerTimeout)
	defer cancel()

	type result struct {
		events []OutboundEvent
		err    error
	}
	done := make(chan result, 1)

	go func() {
		events, err := handler.Handle(hctx, wh.ParsedPayload, wh.Headers)
		done <- result{events: events, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("handler: %w", res.err)
		}
		return res.events, nil
	case <-hctx.Done():
		return nil, fmt.Errorf("handler timed out after %s", p.cfg.HandlerTimeout)
	}
}

func (p *Processor) publish(ctx context.Context, webhookID string, events []OutboundEvent) error {
	for _, event := range events {
		event.CorrelationID = webhookID
		if err := p.publisher.Publish(ctx, event); err != nil {
			return fmt.Errorf("publishing %s event: %w", event.Type, err)
		}
	}
	return nil
}

/* retryOrFail implements the bounded backoff policy
 * A webhook gets maxRetries+1 attempts in total; once the counter passes
 * the limit it is dead-lettered as Failed and surfaced for alerting
 */
func (p *Processor) retryOrFail(ctx context.Context, wh Webhook, cause error) {
	count, err := p.repo.IncrementRetry(ctx, wh.ID)
	if err != nil {
		p.logger.Error("incrementing retry count", "webhook_id", wh.ID, "error", err)
		count = wh.RetryCount + 1
	}

	if count > p.cfg.MaxRetries {
		if err := p.repo.UpdateStatus(ctx, wh.ID, Failed, Update{LastError: cause.Error()}); err != nil {
			p.logger.Error("marking failed", "webhook_id", wh.ID, "error", err)
		}
		p.expire(ctx, wh.ID, p.cfg.FailedTTL)
		p.acknowledge(ctx, wh.ID)
		p.logger.Error("webhook dead-lettered",
			"webhook_id", wh.ID, "provider", wh.Provider, "event_type", wh.EventType,
			"attempts", count, "error", cause)
		return
	}

	delay := backoffDelay(p.cfg.Backoff, count)
	notBefore := time.Now().UTC().Add(delay)

	if err := p.repo.UpdateStatus(ctx, wh.ID, RetryScheduled, Update{LastError: cause.Error()}); err != nil {
		p.logger.Error("marking retry_scheduled", "webhook_id", wh.ID, "error", err)
	}
	if err := p.scheduler.Schedule(ctx, wh.ID, notBefore); err != nil {
		p.logger.Error("scheduling retry", "webhook_id", wh.ID, "error", err)
	}
	p.acknowledge(ctx, wh.ID)
	p.logger.Warn("webhook retry scheduled",
		"webhook_id", wh.ID, "provider", wh.Provider, "attempt", count,
		"delay", delay, "error", cause)
}

func (p *Processor) acknowledge(ctx context.Context, id string) {
	if err := p.repo.Acknowledge(ctx, id); err != nil {
		p.logger.Error("acknowledging webhook", "webhook_id", id, "error", err)
	}
}

func (p *Processor) expire(ctx context.Context, id string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := p.repo.SetTTL(ctx, id, ttl); err != nil {
		p.logger.Error("setting webhook TTL", "webhook_id", id, "error", err)
	}
}

// backoffDelay returns the delay before the given attempt (1-based),
// capped at the last entry of the schedule.
func backoffDelay(schedule []time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(schedule) {
		return schedule[len(schedule)-1]
	}
	return schedule[attempt-1]
}
