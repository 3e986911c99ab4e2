package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/marcelsud/webhook-pipeline/webhook"
	"github.com/redis/go-redis/v9"
)

/* Redis implementation of webhook.Repository
 * Uses Redis Hashes for webhook records, a Redis Stream with a consumer
 * group as the inbound work queue, and a sorted set indexed by receipt
 * time for audit listing
 */

const (
	hashPrefix    = "webhook"          // Hash naming: webhook:{webhook_id}
	timeIndexKey  = "webhooks:index"   // Sorted set: score = received_at unix ms
	inboundStream = "webhooks:inbound" // Stream carrying webhook IDs for the processor pool
	consumerGroup = "webhook-workers"
)

/* updateStatusScript enforces the state machine atomically per record
 * ARGV: new status, updated_at, last_error ('' skips, except that a
 * completed record always has its stale last_error cleared), processing_ms
 * ('' skips), then the list of statuses allowed to transition into the
 * new one. Returns 1 on success, 0 on an illegal transition, -1 when the
 * record does not exist.
 */
var updateStatusScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur then
  return -1
end
local allowed = false
for i = 5, #ARGV do
  if cur == ARGV[i] then
    allowed = true
    break
  end
end
if not allowed then
  return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[1], 'updated_at', ARGV[2])
if ARGV[3] ~= '' then
  redis.call('HSET', KEYS[1], 'last_error', ARGV[3])
elseif ARGV[1] == 'completed' then
  redis.call('HSET', KEYS[1], 'last_error', '')
end
if ARGV[4] ~= '' then
  redis.call('HSET', KEYS[1], 'processing_ms', ARGV[4])
end
return 1
`)

// reopenScript resets a terminal record to verified for operator replay.
// ARGV: updated_at, then the terminal statuses eligible for replay.
var reopenScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur then
  return -1
end
local terminal = false
for i = 2, #ARGV do
  if cur == ARGV[i] then
    terminal = true
    break
  end
end
if not terminal then
  return 0
end
redis.call('HSET', KEYS[1], 'status', 'verified', 'retry_count', 0, 'last_error', '', 'updated_at', ARGV[1])
redis.call('PERSIST', KEYS[1])
return 1
`)

type Repository struct {
	client       *redis.Client
	claimMinIdle time.Duration
}

// Option configures a Repository
type Option func(*Repository)

// WithClaimMinIdle sets how long a pending delivery must sit idle before
// another consumer may claim it from the group's pending list
func WithClaimMinIdle(d time.Duration) Option {
	return func(r *Repository) {
		r.claimMinIdle = d
	}
}

// NewRepository creates a new Redis repository and the inbound consumer group
func NewRepository(addr, password string, db int, opts ...Option) (*Repository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	repo := &Repository{client: client, claimMinIdle: time.Minute}
	for _, opt := range opts {
		opt(repo)
	}

	// Ignore error if group already exists
	repo.client.XGroupCreateMkStream(ctx, inboundStream, consumerGroup, "0")

	return repo, nil
}

// Create persists a new webhook record and adds it to the time index
func (r *Repository) Create(ctx context.Context, wh webhook.Webhook) error {
	hashKey := hashKey(wh.ID)

	headersJSON, err := json.Marshal(wh.Headers)
	if err != nil {
		return fmt.Errorf("marshaling headers: %w", err)
	}

	err = r.client.HSet(ctx, hashKey, map[string]interface{}{
		"id":             wh.ID,
		"provider":       wh.Provider,
		"status":         wh.Status.String(),
		"event_type":     wh.EventType,
		"headers":        string(headersJSON),
		"raw_body":       wh.RawBody,
		"parsed_payload": string(wh.ParsedPayload),
		"received_at":    wh.ReceivedAt.UnixMilli(),
		"updated_at":     wh.UpdatedAt.UnixMilli(),
		"retry_count":    wh.RetryCount,
		"last_error":     wh.LastError,
		"client_address": wh.ClientAddress,
		"processing_ms":  wh.ProcessingMS,
	}).Err()
	if err != nil {
		return fmt.Errorf("storing webhook record: %w", err)
	}

	err = r.client.ZAdd(ctx, timeIndexKey, redis.Z{
		Score:  float64(wh.ReceivedAt.UnixMilli()),
		Member: wh.ID,
	}).Err()
	if err != nil {
		return fmt.Errorf("indexing webhook: %w", err)
	}

	return nil
}

// Get retrieves a webhook by ID from its Redis hash
func (r *Repository) Get(ctx context.Context, id string) (webhook.Webhook, error) {
	data, err := r.client.HGetAll(ctx, hashKey(id)).Result()
	if err != nil {
		return webhook.Webhook{}, fmt.Errorf("getting webhook: %w", err)
	}
	if len(data) == 0 {
		return webhook.Webhook{}, fmt.Errorf("%w: %s", webhook.ErrNotFound, id)
	}
	return fromHash(data)
}

/* List returns webhooks matching the filter, newest first
 * Walks the time index and filters on the hash fields; IDs whose hash
 * expired are pruned from the index lazily
 */
func (r *Repository) List(ctx context.Context, filter webhook.Filter) ([]webhook.Webhook, error) {
	minScore := "-inf"
	if !filter.Since.IsZero() {
		minScore = strconv.FormatInt(filter.Since.UnixMilli(), 10)
	}
	maxScore := "+inf"
	if !filter.Until.IsZero() {
		maxScore = strconv.FormatInt(filter.Until.UnixMilli(), 10)
	}

	ids, err := r.client.ZRevRangeByScore(ctx, timeIndexKey, &redis.ZRangeBy{
		Min: minScore,
		Max: maxScore,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("querying time index: %w", err)
	}

	var webhooks []webhook.Webhook
	for _, id := range ids {
		if filter.Limit > 0 && len(webhooks) >= filter.Limit {
			break
		}

		data, err := r.client.HGetAll(ctx, hashKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("getting webhook %s: %w", id, err)
		}
		if len(data) == 0 {
			// Hash expired, drop the dangling index entry
			r.client.ZRem(ctx, timeIndexKey, id)
			continue
		}

		wh, err := fromHash(data)
		if err != nil {
			return nil, fmt.Errorf("decoding webhook %s: %w", id, err)
		}

		if filter.Provider != "" && wh.Provider != filter.Provider {
			continue
		}
		if filter.Status != 0 && wh.Status != filter.Status {
			continue
		}

		webhooks = append(webhooks, wh)
	}

	return webhooks, nil
}

// UpdateStatus atomically moves a webhook to a new status, enforcing the
// state machine inside Redis so concurrent writers cannot race
func (r *Repository) UpdateStatus(ctx context.Context, id string, status webhook.Status, update webhook.Update) error {
	sources := webhook.TransitionSources(status)
	if len(sources) == 0 {
		return fmt.Errorf("%w: no status may transition to %s", webhook.ErrIllegalTransition, status)
	}

	processingMS := ""
	if update.ProcessingMS > 0 {
		processingMS = strconv.FormatInt(update.ProcessingMS, 10)
	}

	args := []interface{}{
		status.String(),
		strconv.FormatInt(time.Now().UTC().UnixMilli(), 10),
		update.LastError,
		processingMS,
	}
	for _, from := range sources {
		args = append(args, from.String())
	}

	result, err := updateStatusScript.Run(ctx, r.client, []string{hashKey(id)}, args...).Int()
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	switch result {
	case -1:
		return fmt.Errorf("%w: %s", webhook.ErrNotFound, id)
	case 0:
		return fmt.Errorf("%w: webhook %s cannot move to %s", webhook.ErrIllegalTransition, id, status)
	}
	return nil
}

// IncrementRetry increments the retry count and returns the new value
func (r *Repository) IncrementRetry(ctx context.Context, id string) (int, error) {
	count, err := r.client.HIncrBy(ctx, hashKey(id), "retry_count", 1).Result()
	if err != nil {
		return 0, fmt.Errorf("incrementing retry count: %w", err)
	}

	err = r.client.HSet(ctx, hashKey(id), "updated_at", time.Now().UTC().UnixMilli()).Err()
	if err != nil {
		return 0, fmt.Errorf("updating timestamp: %w", err)
	}

	return int(count), nil
}

// Reopen resets a terminal webhook back to verified for operator replay
func (r *Repository) Reopen(ctx context.Context, id string) error {
	args := []interface{}{strconv.FormatInt(time.Now().UTC().UnixMilli(), 10)}
	for _, status := range []webhook.Status{
		webhook.VerificationFailed, webhook.InvalidJSON, webhook.Completed,
		webhook.Duplicate, webhook.NoHandler, webhook.Failed,
	} {
		args = append(args, status.String())
	}

	result, err := reopenScript.Run(ctx, r.client, []string{hashKey(id)}, args...).Int()
	if err != nil {
		return fmt.Errorf("reopening webhook: %w", err)
	}
	switch result {
	case -1:
		return fmt.Errorf("%w: %s", webhook.ErrNotFound, id)
	case 0:
		return fmt.Errorf("%w: webhook %s is not in a terminal state", webhook.ErrIllegalTransition, id)
	}
	return nil
}

// SetTTL sets an expiration time on a webhook hash
func (r *Repository) SetTTL(ctx context.Context, id string, ttl time.Duration) error {
	err := r.client.Expire(ctx, hashKey(id), ttl).Err()
	if err != nil {
		return fmt.Errorf("setting TTL on webhook: %w", err)
	}
	return nil
}

// Enqueue adds a webhook ID to the inbound stream for the processor pool
func (r *Repository) Enqueue(ctx context.Context, id string) error {
	_, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: inboundStream,
		Values: map[string]interface{}{"webhook_id": id},
	}).Result()
	if err != nil {
		return fmt.Errorf("adding to inbound stream: %w", err)
	}
	return nil
}

/* Consume reads webhook IDs from the inbound stream
 * The consumer group hands each message to exactly one consumer, which is
 * what keeps two workers from ever holding the same webhook at once.
 * Deliveries stranded in the pending list by a crashed worker are claimed
 * first, once they have sat idle past the claim threshold
 */
func (r *Repository) Consume(ctx context.Context, consumer string) ([]string, error) {
	claimed, _, err := r.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   inboundStream,
		Group:    consumerGroup,
		Consumer: consumer,
		MinIdle:  r.claimMinIdle,
		Start:    "0-0",
		Count:    10,
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("claiming pending deliveries: %w", err)
	}
	if len(claimed) > 0 {
		return r.collectIDs(ctx, claimed), nil
	}

	streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    consumerGroup,
		Consumer: consumer,
		Streams:  []string{inboundStream, ">"},
		Count:    10,
		Block:    1 * time.Second,
	}).Result()
	if err == redis.Nil {
		// No messages available
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading from inbound stream: %w", err)
	}

	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}

	return r.collectIDs(ctx, streams[0].Messages), nil
}

func (r *Repository) collectIDs(ctx context.Context, msgs []redis.XMessage) []string {
	var ids []string
	for _, msg := range msgs {
		id, ok := msg.Values["webhook_id"].(string)
		if !ok {
			r.client.XAck(ctx, inboundStream, consumerGroup, msg.ID)
			continue
		}

		// Keep the stream message ID around for acknowledgment
		r.client.Set(ctx, msgIDKey(id), msg.ID, 24*time.Hour)
		ids = append(ids, id)
	}

	return ids
}

// Acknowledge marks a consumed webhook as handled in the stream
func (r *Repository) Acknowledge(ctx context.Context, id string) error {
	msgID, err := r.client.Get(ctx, msgIDKey(id)).Result()
	if err == redis.Nil {
		// Already acknowledged or expired
		return nil
	}
	if err != nil {
		return fmt.Errorf("getting message ID: %w", err)
	}

	err = r.client.XAck(ctx, inboundStream, consumerGroup, msgID).Err()
	if err != nil {
		return fmt.Errorf("acknowledging message: %w", err)
	}

	r.client.Del(ctx, msgIDKey(id))
	return nil
}

// Close closes the Redis connection
func (r *Repository) Close(ctx context.Context) error {
	return r.client.Close()
}

// GetClient returns the underlying Redis client for advanced operations
func (r *Repository) GetClient() *redis.Client {
	return r.client
}

// Helper functions

func hashKey(id string) string {
	return fmt.Sprintf("%s:%s", hashPrefix, id)
}

func msgIDKey(id string) string {
	return fmt.Sprintf("%s:%s:msgid", hashPrefix, id)
}

func fromHash(data map[string]string) (webhook.Webhook, error) {
	headers := make(map[string]string)
	if headersStr, ok := data["headers"]; ok && headersStr != "" {
		if err := json.Unmarshal([]byte(headersStr), &headers); err != nil {
			return webhook.Webhook{}, fmt.Errorf("unmarshaling headers: %w", err)
		}
	}

	wh := webhook.Webhook{
		ID:            data["id"],
		Provider:      data["provider"],
		Status:        webhook.NewStatus(data["status"]),
		EventType:     data["event_type"],
		Headers:       headers,
		RawBody:       []byte(data["raw_body"]),
		ReceivedAt:    time.UnixMilli(parseInt64(data["received_at"])).UTC(),
		UpdatedAt:     time.UnixMilli(parseInt64(data["updated_at"])).UTC(),
		RetryCount:    int(parseInt64(data["retry_count"])),
		LastError:     data["last_error"],
		ClientAddress: data["client_address"],
		ProcessingMS:  parseInt64(data["processing_ms"]),
	}
	if payload := data["parsed_payload"]; payload != "" {
		wh.ParsedPayload = json.RawMessage(payload)
	}
	return wh, nil
}

func parseInt64(s string) int64 {
	result, _ := strconv.ParseInt(s, 10, 64)
	return result
}
