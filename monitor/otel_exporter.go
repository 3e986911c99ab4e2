package monitor

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// OTelExporter exposes the monitor's aggregates as OpenTelemetry gauges in
// Prometheus format
type OTelExporter struct {
	meterProvider *sdkmetric.MeterProvider
	monitor       *Monitor

	// OTel meters and instruments
	meter            metric.Meter
	statusCountGauge metric.Int64ObservableGauge
	errorRateGauge   metric.Float64ObservableGauge
	latencyGauge     metric.Int64ObservableGauge
}

// NewOTelExporter creates a new OpenTelemetry metrics exporter with Prometheus format
func NewOTelExporter(monitor *Monitor) (*OTelExporter, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(meterProvider)

	meter := meterProvider.Meter(
		"webhook-pipeline",
		metric.WithInstrumentationVersion("1.0.0"),
	)

	oe := &OTelExporter{
		meterProvider: meterProvider,
		monitor:       monitor,
		meter:         meter,
	}

	if err := oe.registerInstruments(); err != nil {
		return nil, fmt.Errorf("registering instruments: %w", err)
	}

	return oe, nil
}

// registerInstruments creates and registers all OpenTelemetry metric instruments
func (oe *OTelExporter) registerInstruments() error {
	var err error

	// Status counts over the trailing window (per provider)
	oe.statusCountGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.status.count",
		metric.WithDescription("Number of webhooks by outcome per provider over the trailing window"),
		metric.WithUnit("{webhooks}"),
		metric.WithInt64Callback(oe.observeStatusCounts),
	)
	if err != nil {
		return fmt.Errorf("creating status count gauge: %w", err)
	}

	// Error rate gauge (per provider)
	oe.errorRateGauge, err = oe.meter.Float64ObservableGauge(
		"webhook.error.rate",
		metric.WithDescription("Share of terminal webhooks that failed per provider over the trailing window"),
		metric.WithUnit("1"),
		metric.WithFloat64Callback(oe.observeErrorRates),
	)
	if err != nil {
		return fmt.Errorf("creating error rate gauge: %w", err)
	}

	// Mean processing latency gauge (per provider)
	oe.latencyGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.processing.latency",
		metric.WithDescription("Mean processing latency of completed webhooks per provider"),
		metric.WithUnit("ms"),
		metric.WithInt64Callback(oe.observeLatency),
	)
	if err != nil {
		return fmt.Errorf("creating latency gauge: %w", err)
	}

	return nil
}

// observeStatusCounts is a callback that reports webhook counts by outcome
func (oe *OTelExporter) observeStatusCounts(ctx context.Context, observer metric.Int64Observer) error {
	all, err := oe.monitor.Collect(ctx)
	if err != nil {
		return err
	}

	for _, stats := range all {
		provider := attribute.String("webhook.provider", stats.Provider)
		observer.Observe(stats.Completed, metric.WithAttributes(provider,
			attribute.String("webhook.outcome", "completed")))
		observer.Observe(stats.Failed, metric.WithAttributes(provider,
			attribute.String("webhook.outcome", "failed")))
		observer.Observe(stats.Duplicates, metric.WithAttributes(provider,
			attribute.String("webhook.outcome", "duplicate")))
		observer.Observe(stats.Pending, metric.WithAttributes(provider,
			attribute.String("webhook.outcome", "pending")))
	}

	return nil
}

// observeErrorRates is a callback that reports per-provider error rates
func (oe *OTelExporter) observeErrorRates(ctx context.Context, observer metric.Float64Observer) error {
	all, err := oe.monitor.Collect(ctx)
	if err != nil {
		return err
	}

	for _, stats := range all {
		observer.Observe(stats.ErrorRate, metric.WithAttributes(
			attribute.String("webhook.provider", stats.Provider),
		))
	}

	return nil
}

// observeLatency is a callback that reports mean processing latency
func (oe *OTelExporter) observeLatency(ctx context.Context, observer metric.Int64Observer) error {
	all, err := oe.monitor.Collect(ctx)
	if err != nil {
		return err
	}

	for _, stats := range all {
		observer.Observe(stats.MeanLatencyMS, metric.WithAttributes(
			attribute.String("webhook.provider", stats.Provider),
		))
	}

	return nil
}

// ServeHTTP serves Prometheus-formatted metrics on the given HTTP handler
func (oe *OTelExporter) ServeHTTP() http.Handler {
	return promhttp.Handler()
}

// Shutdown gracefully shuts down the meter provider
func (oe *OTelExporter) Shutdown(ctx context.Context) error {
	if oe.meterProvider != nil {
		return oe.meterProvider.Shutdown(ctx)
	}
	return nil
}
