package monitor

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/marcelsud/webhook-pipeline/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	byProvider map[string][]webhook.Webhook
}

func (f *fakeReader) Get(ctx context.Context, id string) (webhook.Webhook, error) {
	return webhook.Webhook{}, webhook.ErrNotFound
}

func (f *fakeReader) List(ctx context.Context, filter webhook.Filter) ([]webhook.Webhook, error) {
	return f.byProvider[filter.Provider], nil
}

func record(status webhook.Status, latencyMS int64) webhook.Webhook {
	return webhook.Webhook{Status: status, ProcessingMS: latencyMS}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCollect(t *testing.T) {
	ctx := context.Background()
	store := &fakeReader{byProvider: map[string][]webhook.Webhook{
		"stripe": {
			record(webhook.Completed, 100),
			record(webhook.Completed, 300),
			record(webhook.Failed, 0),
			record(webhook.NoHandler, 0),
			record(webhook.Duplicate, 0),
			record(webhook.Processing, 0),
		},
		"twilio": {},
	}}

	m := New(store, []string{"stripe", "twilio"}, 15*time.Minute, time.Minute, Thresholds{}, nil, discard())

	stats, err := m.Collect(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	stripe := stats[0]
	assert.Equal(t, "stripe", stripe.Provider)
	assert.Equal(t, int64(6), stripe.Total)
	assert.Equal(t, int64(2), stripe.Completed)
	assert.Equal(t, int64(2), stripe.Failed)
	assert.Equal(t, int64(1), stripe.Duplicates)
	assert.Equal(t, int64(1), stripe.Pending)
	// 2 failed out of 5 terminal records
	assert.InDelta(t, 0.4, stripe.ErrorRate, 0.001)
	assert.Equal(t, int64(200), stripe.MeanLatencyMS)

	twilio := stats[1]
	assert.Equal(t, int64(0), twilio.Total)
	assert.Equal(t, float64(0), twilio.ErrorRate)
}

func TestCollectCountsRejectionsAsFailures(t *testing.T) {
	ctx := context.Background()
	store := &fakeReader{byProvider: map[string][]webhook.Webhook{
		"stripe": {
			record(webhook.VerificationFailed, 0),
			record(webhook.InvalidJSON, 0),
			record(webhook.Completed, 50),
		},
	}}

	m := New(store, []string{"stripe"}, 15*time.Minute, time.Minute, Thresholds{}, nil, discard())

	stats, err := m.Collect(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, int64(2), stats[0].Failed)
	assert.InDelta(t, 2.0/3.0, stats[0].ErrorRate, 0.001)
}

func TestThresholdAlerts(t *testing.T) {
	ctx := context.Background()

	var alerts []Alert
	capture := func(ctx context.Context, alert Alert) {
		alerts = append(alerts, alert)
	}

	t.Run("error rate above threshold", func(t *testing.T) {
		alerts = nil
		store := &fakeReader{byProvider: map[string][]webhook.Webhook{
			"stripe": {
				record(webhook.Failed, 0),
				record(webhook.Completed, 10),
			},
		}}
		m := New(store, []string{"stripe"}, 15*time.Minute, time.Minute,
			Thresholds{ErrorRate: 0.1}, capture, discard())

		stats, err := m.Collect(ctx)
		require.NoError(t, err)
		m.check(ctx, stats)

		require.Len(t, alerts, 1)
		assert.Equal(t, "stripe", alerts[0].Provider)
		assert.Equal(t, "error rate above threshold", alerts[0].Reason)
		assert.InDelta(t, 0.5, alerts[0].Value, 0.001)
	})

	t.Run("latency above threshold", func(t *testing.T) {
		alerts = nil
		store := &fakeReader{byProvider: map[string][]webhook.Webhook{
			"stripe": {record(webhook.Completed, 9000)},
		}}
		m := New(store, []string{"stripe"}, 15*time.Minute, time.Minute,
			Thresholds{MeanLatencyMS: 5000}, capture, discard())

		stats, err := m.Collect(ctx)
		require.NoError(t, err)
		m.check(ctx, stats)

		require.Len(t, alerts, 1)
		assert.Equal(t, "mean processing latency above threshold", alerts[0].Reason)
	})

	t.Run("healthy provider stays quiet", func(t *testing.T) {
		alerts = nil
		store := &fakeReader{byProvider: map[string][]webhook.Webhook{
			"stripe": {
				record(webhook.Completed, 10),
				record(webhook.Completed, 20),
			},
		}}
		m := New(store, []string{"stripe"}, 15*time.Minute, time.Minute,
			Thresholds{ErrorRate: 0.1, MeanLatencyMS: 5000}, capture, discard())

		stats, err := m.Collect(ctx)
		require.NoError(t, err)
		m.check(ctx, stats)
		assert.Empty(t, alerts)
	})

	t.Run("zero thresholds disable checks", func(t *testing.T) {
		alerts = nil
		store := &fakeReader{byProvider: map[string][]webhook.Webhook{
			"stripe": {record(webhook.Failed, 0)},
		}}
		m := New(store, []string{"stripe"}, 15*time.Minute, time.Minute,
			Thresholds{}, capture, discard())

		stats, err := m.Collect(ctx)
		require.NoError(t, err)
		m.check(ctx, stats)
		assert.Empty(t, alerts)
	})
}
