package webhook

import (
	"context"
	"errors"
	"time"
)

/* Small, focused interfaces following "The Go Way"
 * Interfaces abstract behavior, not things
 * Written for users of the API, not just for testing
 */

// ErrNotFound is returned when a webhook ID does not exist in the store
var ErrNotFound = errors.New("webhook not found")

// ErrIllegalTransition is returned when a status update would violate the
// state machine. It signals a programming error, not a user-facing one.
var ErrIllegalTransition = errors.New("illegal status transition")

// Filter selects webhooks for listing and aggregation
type Filter struct {
	Provider string
	Status   Status // zero value matches every status
	Since    time.Time
	Until    time.Time // zero value means now
	Limit    int
}

// Update carries the optional fields written together with a status change
type Update struct {
	LastError    string
	ProcessingMS int64
}

// Reader provides read operations for webhooks
type Reader interface {
	/* Context is always the first parameter in functions that do I/O
	 * This allows for cancellation, timeouts, and shared values
	 */
	Get(ctx context.Context, id string) (Webhook, error)
	List(ctx context.Context, filter Filter) ([]Webhook, error)
}

// Writer provides write operations for webhooks
type Writer interface {
	// Create persists a new webhook record. Called exactly once per
	// inbound HTTP call regardless of outcome.
	Create(ctx context.Context, wh Webhook) error
	/* UpdateStatus atomically moves a webhook to a new status
	 * The store enforces the state machine: it returns ErrIllegalTransition
	 * when the current status does not allow the move
	 */
	UpdateStatus(ctx context.Context, id string, status Status, update Update) error
	// IncrementRetry bumps the retry counter and returns the new value
	IncrementRetry(ctx context.Context, id string) (int, error)
	/* Reopen resets a terminal webhook back to Verified for operator replay
	 * This is the only sanctioned way out of a terminal state: the retry
	 * counter and last error are cleared so processing starts fresh
	 */
	Reopen(ctx context.Context, id string) error
	/* SetTTL sets an expiration time on a webhook
	 * Used to automatically clean up webhooks in terminal states
	 */
	SetTTL(ctx context.Context, id string, ttl time.Duration) error
}

// Queue provides operations on the inbound work queue
type Queue interface {
	// Enqueue hands a webhook ID to the processor pool. Must not block on
	// processing completion.
	Enqueue(ctx context.Context, id string) error
	/* Consume reads webhook IDs from the inbound queue
	 * The consumer group guarantees each enqueued ID is delivered to a
	 * single worker, so no two workers ever process the same record
	 * concurrently
	 */
	Consume(ctx context.Context, consumer string) ([]string, error)
	// Acknowledge marks a consumed ID as handled
	Acknowledge(ctx context.Context, id string) error
}

/* Interface composition - combining small interfaces into larger ones
 * This is preferred over large monolithic interfaces
 */
type Repository interface {
	Reader
	Writer
	Queue
	Close(ctx context.Context) error
}

/* IdempotencyIndex detects redelivery of the same logical provider event
 * MarkIfAbsent returns true on first sighting or when ownerID already owns
 * the key (a retry of the same record is not a duplicate delivery)
 * Exactly one of several concurrent callers racing on a fresh key wins
 */
type IdempotencyIndex interface {
	MarkIfAbsent(ctx context.Context, provider, eventID, ownerID string) (bool, error)
}

// RetryScheduler persists a future re-attempt for a webhook.
// Scheduled tasks survive process restarts.
type RetryScheduler interface {
	Schedule(ctx context.Context, id string, notBefore time.Time) error
}

// Publisher sends outbound events to the downstream event bus
type Publisher interface {
	Publish(ctx context.Context, event OutboundEvent) error
}
