package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/marcelsud/webhook-pipeline/config"
	"github.com/marcelsud/webhook-pipeline/eventbus"
	"github.com/marcelsud/webhook-pipeline/monitor"
	"github.com/marcelsud/webhook-pipeline/providers"
	"github.com/marcelsud/webhook-pipeline/webhook"
	"github.com/marcelsud/webhook-pipeline/webhook/handler"
	webhookredis "github.com/marcelsud/webhook-pipeline/webhook/redis"
)

/* The worker's composition root: processor pool, retry poller and monitor
 * run here, sharing the Redis repository and shutting down together on
 * SIGTERM. The gateway and the worker only meet through Redis.
 */

func main() {
	if err := run(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	backoff, err := cfg.Backoff()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	repo, err := webhookredis.NewRepository(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer repo.Close(ctx)

	registry := providers.NewRegistry()
	if err := registry.Load(cfg.ProvidersFile); err != nil {
		return err
	}

	publisher, err := eventbus.NewKafkaPublisher(cfg.Brokers(), cfg.EventTopic, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	handlers := handler.NewRegistry()
	registerHandlers(handlers)

	index := webhookredis.NewIdempotencyIndex(repo.GetClient(),
		time.Duration(cfg.IdempotencyTTLHours)*time.Hour)
	scheduler := webhookredis.NewScheduler(repo.GetClient())
	poller := webhookredis.NewPoller(scheduler, repo, logger, time.Second, 100)

	processor := webhook.NewProcessor(repo, index, handlers, scheduler, publisher, registry, logger,
		webhook.ProcessorConfig{
			Workers:        cfg.Workers,
			MaxRetries:     cfg.MaxRetries,
			Backoff:        backoff,
			HandlerTimeout: time.Duration(cfg.HandlerTimeoutSeconds) * time.Second,
			CompletedTTL:   time.Duration(cfg.CompletedTTLHours) * time.Hour,
			FailedTTL:      time.Duration(cfg.FailedTTLHours) * time.Hour,
		})

	mon := monitor.New(repo, registry.Names(),
		time.Duration(cfg.MonitorWindowMinutes)*time.Minute,
		time.Duration(cfg.MonitorIntervalSeconds)*time.Second,
		monitor.Thresholds{
			ErrorRate:     cfg.AlertErrorRate,
			MeanLatencyMS: cfg.AlertLatencyMS,
		}, nil, logger)

	exporter, err := monitor.NewOTelExporter(mon)
	if err != nil {
		return err
	}
	defer exporter.Shutdown(context.Background())

	metricsSrv := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: exporter.ServeHTTP(),
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server", "error", err)
		}
	}()

	logger.Info("worker started",
		"workers", cfg.Workers, "max_retries", cfg.MaxRetries,
		"providers", registry.Names())

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		processor.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		poller.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		mon.Run(ctx)
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	metricsSrv.Shutdown(shutdownCtx)
	wg.Wait()

	logger.Info("worker stopped")
	return nil
}

// registerHandlers binds the built-in handlers to their provider events
func registerHandlers(handlers *handler.Registry) {
	payments := handler.NewPaymentHandler("stripe")
	handlers.Register("stripe", "payment_intent.succeeded", payments)
	handlers.Register("stripe", "payment_intent.payment_failed", payments)
	handlers.Register("stripe", "payment_intent.canceled", payments)
	handlers.Register("stripe", "charge.refunded", payments)

	handlers.Register("twilio", handler.Wildcard, handler.NewSMSStatusHandler())
	handlers.Register("sendgrid", handler.Wildcard, handler.NewEmailEventHandler())
}
