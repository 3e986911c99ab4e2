package chi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
	"github.com/marcelsud/webhook-pipeline/webhook"
)

// Handlers sets up the gateway API routes
func Handlers(ctx context.Context, webhookService webhook.UseCase, maxBodyBytes int64) *chi.Mux {
	logger := httplog.NewLogger("webhook-gateway", httplog.Options{
		JSON: true,
	})

	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Gateway liveness only; processing health is the worker's concern
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Provider-facing ingestion endpoint
	r.Post("/webhooks/{provider}", postWebhook(webhookService, maxBodyBytes).ServeHTTP)

	// Operator audit API
	r.Route("/v1", func(r chi.Router) {
		r.Get("/webhooks", listWebhooks(webhookService).ServeHTTP)
		r.Get("/webhooks/{id}", getWebhook(webhookService).ServeHTTP)
		r.Post("/webhooks/{id}/replay", replayWebhook(webhookService).ServeHTTP)
	})

	return r
}
