package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

/* Durable retry scheduling on a Redis sorted set
 * Member = webhook ID, score = not-before timestamp. Pending retries live
 * in Redis, not in process memory, so they survive restarts. The poller
 * claims due members atomically and feeds them back into the inbound
 * queue; claim semantics are at-least-once, which is safe because the
 * processor's own state machine is the final idempotency guard.
 */

const retrySetKey = "webhooks:retry"

// claimScript pops every member due at or before ARGV[1], up to ARGV[2]
var claimScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for i = 1, #due do
  redis.call('ZREM', KEYS[1], due[i])
end
return due
`)

type Scheduler struct {
	client *redis.Client
}

// NewScheduler creates a sorted-set backed retry scheduler
func NewScheduler(client *redis.Client) *Scheduler {
	return &Scheduler{client: client}
}

// Schedule registers a webhook for re-attempt at notBefore.
// Re-scheduling an already queued ID simply moves its due time.
func (s *Scheduler) Schedule(ctx context.Context, id string, notBefore time.Time) error {
	err := s.client.ZAdd(ctx, retrySetKey, redis.Z{
		Score:  float64(notBefore.UnixMilli()),
		Member: id,
	}).Err()
	if err != nil {
		return fmt.Errorf("scheduling retry: %w", err)
	}
	return nil
}

// ClaimDue atomically removes and returns webhook IDs due at or before now
func (s *Scheduler) ClaimDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	due, err := claimScript.Run(ctx, s.client, []string{retrySetKey},
		strconv.FormatInt(now.UnixMilli(), 10), limit).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("claiming due retries: %w", err)
	}
	return due, nil
}

// Enqueuer re-submits claimed webhook IDs to the processor's inbound queue
type Enqueuer interface {
	Enqueue(ctx context.Context, id string) error
}

// Poller periodically claims due retry tasks and re-enqueues them
type Poller struct {
	scheduler *Scheduler
	queue     Enqueuer
	logger    *slog.Logger
	interval  time.Duration
	batch     int
}

// NewPoller creates a poller claiming up to batch tasks per interval
func NewPoller(scheduler *Scheduler, queue Enqueuer, logger *slog.Logger, interval time.Duration, batch int) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &Poller{
		scheduler: scheduler,
		queue:     queue,
		logger:    logger,
		interval:  interval,
		batch:     batch,
	}
}

// Run blocks claiming due tasks until the context is cancelled
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	due, err := p.scheduler.ClaimDue(ctx, time.Now().UTC(), p.batch)
	if err != nil {
		p.logger.Error("claiming due retries", "error", err)
		return
	}

	for _, id := range due {
		if err := p.queue.Enqueue(ctx, id); err != nil {
			p.logger.Error("re-enqueueing retry", "webhook_id", id, "error", err)
			// Put the task back so it is not lost; it will be claimed again
			if err := p.scheduler.Schedule(ctx, id, time.Now().UTC()); err != nil {
				p.logger.Error("restoring claimed retry", "webhook_id", id, "error", err)
			}
			continue
		}
		p.logger.Debug("retry re-enqueued", "webhook_id", id)
	}
}
