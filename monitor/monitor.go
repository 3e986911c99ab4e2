package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/marcelsud/webhook-pipeline/webhook"
)

/* Monitor periodically aggregates webhook store statistics per provider
 * over a trailing window and raises alerts when the error rate or mean
 * processing latency crosses configured thresholds
 * Read-only: no core invariant depends on it
 */

// Stats is the aggregate for one provider over one trailing window
type Stats struct {
	Provider      string    `json:"provider"`
	Total         int64     `json:"total"`
	Completed     int64     `json:"completed"`
	Failed        int64     `json:"failed"`
	Duplicates    int64     `json:"duplicates"`
	Pending       int64     `json:"pending"`
	ErrorRate     float64   `json:"error_rate"`
	MeanLatencyMS int64     `json:"mean_latency_ms"`
	Timestamp     time.Time `json:"timestamp"`
}

// Alert describes one threshold violation
type Alert struct {
	Provider  string  `json:"provider"`
	Reason    string  `json:"reason"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

// AlertFunc receives threshold violations; wire it to paging or ops chat
type AlertFunc func(ctx context.Context, alert Alert)

// Thresholds configure when the monitor raises alerts
type Thresholds struct {
	// ErrorRate between 0 and 1; zero disables the check
	ErrorRate float64
	// MeanLatencyMS in milliseconds; zero disables the check
	MeanLatencyMS int64
}

type Monitor struct {
	store      webhook.Reader
	providers  []string
	window     time.Duration
	interval   time.Duration
	thresholds Thresholds
	alert      AlertFunc
	logger     *slog.Logger
}

// New creates a monitor over the given providers
func New(store webhook.Reader, providers []string, window, interval time.Duration, thresholds Thresholds, alert AlertFunc, logger *slog.Logger) *Monitor {
	if window <= 0 {
		window = 15 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Monitor{
		store:      store,
		providers:  providers,
		window:     window,
		interval:   interval,
		thresholds: thresholds,
		alert:      alert,
		logger:     logger,
	}
}

// Run aggregates on a ticker until the context is cancelled
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := m.Collect(ctx)
			if err != nil {
				m.logger.Error("collecting webhook stats", "error", err)
				continue
			}
			m.check(ctx, stats)
		}
	}
}

// Collect computes per-provider stats over the trailing window
func (m *Monitor) Collect(ctx context.Context) ([]Stats, error) {
	now := time.Now().UTC()
	since := now.Add(-m.window)

	all := make([]Stats, 0, len(m.providers))
	for _, provider := range m.providers {
		webhooks, err := m.store.List(ctx, webhook.Filter{
			Provider: provider,
			Since:    since,
		})
		if err != nil {
			return nil, fmt.Errorf("listing webhooks for %s: %w", provider, err)
		}

		stats := Stats{Provider: provider, Timestamp: now}
		var latencySum int64
		for _, wh := range webhooks {
			stats.Total++
			switch wh.Status {
			case webhook.Completed:
				stats.Completed++
				latencySum += wh.ProcessingMS
			case webhook.Failed, webhook.VerificationFailed, webhook.InvalidJSON, webhook.NoHandler:
				stats.Failed++
			case webhook.Duplicate:
				stats.Duplicates++
			default:
				stats.Pending++
			}
		}

		terminal := stats.Completed + stats.Failed + stats.Duplicates
		if terminal > 0 {
			stats.ErrorRate = float64(stats.Failed) / float64(terminal)
		}
		if stats.Completed > 0 {
			stats.MeanLatencyMS = latencySum / stats.Completed
		}

		all = append(all, stats)
	}

	return all, nil
}

func (m *Monitor) check(ctx context.Context, all []Stats) {
	for _, stats := range all {
		if m.thresholds.ErrorRate > 0 && stats.ErrorRate > m.thresholds.ErrorRate {
			m.raise(ctx, Alert{
				Provider:  stats.Provider,
				Reason:    "error rate above threshold",
				Value:     stats.ErrorRate,
				Threshold: m.thresholds.ErrorRate,
			})
		}
		if m.thresholds.MeanLatencyMS > 0 && stats.MeanLatencyMS > m.thresholds.MeanLatencyMS {
			m.raise(ctx, Alert{
				Provider:  stats.Provider,
				Reason:    "mean processing latency above threshold",
				Value:     float64(stats.MeanLatencyMS),
				Threshold: float64(m.thresholds.MeanLatencyMS),
			})
		}
	}
}

func (m *Monitor) raise(ctx context.Context, alert Alert) {
	m.logger.Warn("webhook alert",
		"provider", alert.Provider, "reason", alert.Reason,
		"value", alert.Value, "threshold", alert.Threshold)
	if m.alert != nil {
		m.alert(ctx, alert)
	}
}
