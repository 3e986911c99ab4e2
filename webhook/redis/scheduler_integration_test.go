//go:build integration

package redis_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/marcelsud/webhook-pipeline/webhook/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyIndex_Integration(t *testing.T) {
	ctx := context.Background()

	redisContainer, cleanup := SetupRedisContainer(t, ctx)
	defer cleanup()

	client := createRedisClient(redisContainer.Addr)
	defer client.Close()

	index := redis.NewIdempotencyIndex(client, time.Hour)

	t.Run("first sighting wins", func(t *testing.T) {
		first, err := index.MarkIfAbsent(ctx, "stripe", "evt_1", "webhook-a")
		require.NoError(t, err)
		assert.True(t, first)
	})

	t.Run("redelivery under another record is a duplicate", func(t *testing.T) {
		first, err := index.MarkIfAbsent(ctx, "stripe", "evt_1", "webhook-b")
		require.NoError(t, err)
		assert.False(t, first)
	})

	t.Run("owner re-entry is not a duplicate", func(t *testing.T) {
		// The same record retrying must pass its own idempotency key
		first, err := index.MarkIfAbsent(ctx, "stripe", "evt_1", "webhook-a")
		require.NoError(t, err)
		assert.True(t, first)
	})

	t.Run("keys are scoped per provider", func(t *testing.T) {
		first, err := index.MarkIfAbsent(ctx, "twilio", "evt_1", "webhook-c")
		require.NoError(t, err)
		assert.True(t, first)
	})

	t.Run("retention window bounds the key", func(t *testing.T) {
		_, err := index.MarkIfAbsent(ctx, "stripe", "evt_ttl", "webhook-d")
		require.NoError(t, err)

		ttl := GetKeyTTL(t, redisContainer.Addr, "idempotency:stripe:evt_ttl")
		assert.Greater(t, ttl, int64(0))
		assert.LessOrEqual(t, ttl, int64(3600))
	})

	t.Run("exactly one concurrent claimant wins a fresh key", func(t *testing.T) {
		const claimants = 20
		var wg sync.WaitGroup
		wins := make(chan bool, claimants)
		errs := make(chan error, claimants)

		for i := 0; i < claimants; i++ {
			wg.Add(1)
			go func(owner string) {
				defer wg.Done()
				first, err := index.MarkIfAbsent(ctx, "stripe", "evt_race", owner)
				if err != nil {
					errs <- err
					return
				}
				wins <- first
			}(GenerateID(t, i))
		}
		wg.Wait()
		close(wins)
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}

		winners := 0
		for first := range wins {
			if first {
				winners++
			}
		}
		assert.Equal(t, 1, winners)
	})
}

func TestScheduler_Integration(t *testing.T) {
	ctx := context.Background()

	redisContainer, cleanup := SetupRedisContainer(t, ctx)
	defer cleanup()

	client := createRedisClient(redisContainer.Addr)
	defer client.Close()

	scheduler := redis.NewScheduler(client)

	t.Run("claims only due tasks", func(t *testing.T) {
		now := time.Now().UTC()
		require.NoError(t, scheduler.Schedule(ctx, "due-1", now.Add(-time.Minute)))
		require.NoError(t, scheduler.Schedule(ctx, "due-2", now.Add(-time.Second)))
		require.NoError(t, scheduler.Schedule(ctx, "future-1", now.Add(time.Hour)))

		due, err := scheduler.ClaimDue(ctx, now, 100)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"due-1", "due-2"}, due)

		// Claimed tasks are removed; the future one stays
		again, err := scheduler.ClaimDue(ctx, now, 100)
		require.NoError(t, err)
		assert.Empty(t, again)

		later, err := scheduler.ClaimDue(ctx, now.Add(2*time.Hour), 100)
		require.NoError(t, err)
		assert.Equal(t, []string{"future-1"}, later)
	})

	t.Run("rescheduling moves the due time", func(t *testing.T) {
		now := time.Now().UTC()
		require.NoError(t, scheduler.Schedule(ctx, "moved", now.Add(-time.Minute)))
		require.NoError(t, scheduler.Schedule(ctx, "moved", now.Add(time.Hour)))

		due, err := scheduler.ClaimDue(ctx, now, 100)
		require.NoError(t, err)
		assert.NotContains(t, due, "moved")
	})

	t.Run("claim respects the batch limit", func(t *testing.T) {
		now := time.Now().UTC()
		for i := 0; i < 5; i++ {
			require.NoError(t, scheduler.Schedule(ctx, GenerateID(t, i), now.Add(-time.Minute)))
		}

		due, err := scheduler.ClaimDue(ctx, now, 2)
		require.NoError(t, err)
		assert.Len(t, due, 2)
	})

	t.Run("scheduled tasks survive a new scheduler instance", func(t *testing.T) {
		now := time.Now().UTC()
		require.NoError(t, scheduler.Schedule(ctx, "durable-1", now.Add(-time.Second)))

		// A fresh instance over the same store sees the pending task,
		// mirroring a process restart
		restarted := redis.NewScheduler(client)
		due, err := restarted.ClaimDue(ctx, now, 100)
		require.NoError(t, err)
		assert.Contains(t, due, "durable-1")
	})
}

func TestPoller_Integration(t *testing.T) {
	ctx := context.Background()

	redisContainer, cleanup := SetupRedisContainer(t, ctx)
	defer cleanup()

	repo := CreateTestRepository(t, redisContainer.Addr)
	defer repo.Close(ctx)

	scheduler := redis.NewScheduler(repo.GetClient())

	wh := testWebhook(GenerateID(t, 1))
	require.NoError(t, repo.Create(ctx, wh))
	require.NoError(t, scheduler.Schedule(ctx, wh.ID, time.Now().UTC().Add(-time.Second)))

	// One manual claim cycle instead of running the poller loop
	due, err := scheduler.ClaimDue(ctx, time.Now().UTC(), 100)
	require.NoError(t, err)
	require.Contains(t, due, wh.ID)

	for _, id := range due {
		require.NoError(t, repo.Enqueue(ctx, id))
	}

	ids, err := repo.Consume(ctx, "worker-0")
	require.NoError(t, err)
	assert.Contains(t, ids, wh.ID)
}
