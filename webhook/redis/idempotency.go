package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

/* IdempotencyIndex detects redelivered provider events
 * Backed by one key per (provider, event ID) holding the owning webhook
 * ID with a bounded retention TTL. After the TTL a resent event is
 * treated as new: exact-once is only guaranteed within the window.
 */

const idempotencyPrefix = "idempotency"

/* markScript claims a key in one atomic round trip
 * Returns 1 when the key was absent (first sighting) or already owned by
 * this webhook (a retry of the same record), 0 when another record owns
 * it (a duplicate delivery). Exactly one of several concurrent claimants
 * of a fresh key observes 1.
 */
var markScript = redis.NewScript(`
local owner = redis.call('GET', KEYS[1])
if not owner then
  redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[2])
  return 1
end
if owner == ARGV[1] then
  return 1
end
return 0
`)

type IdempotencyIndex struct {
	client *redis.Client
	ttl    time.Duration
}

// NewIdempotencyIndex creates an index with the given retention window
func NewIdempotencyIndex(client *redis.Client, ttl time.Duration) *IdempotencyIndex {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyIndex{
		client: client,
		ttl:    ttl,
	}
}

// MarkIfAbsent atomically claims (provider, eventID) for ownerID
func (i *IdempotencyIndex) MarkIfAbsent(ctx context.Context, provider, eventID, ownerID string) (bool, error) {
	key := fmt.Sprintf("%s:%s:%s", idempotencyPrefix, provider, eventID)
	ttlSeconds := int64(i.ttl / time.Second)

	result, err := markScript.Run(ctx, i.client, []string{key}, ownerID, ttlSeconds).Int()
	if err != nil {
		return false, fmt.Errorf("marking idempotency key: %w", err)
	}
	return result == 1, nil
}
