package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/marcelsud/webhook-pipeline/webhook"
)

/* HTTP layer DTOs for the gateway API
 * Separate from domain entities to avoid leaking internal structure
 */

// webhookResponse represents the API response when receiving a webhook
type webhookResponse struct {
	WebhookID string `json:"webhook_id"`
	Provider  string `json:"provider"`
}

// webhookDetail represents a stored webhook in the audit API
type webhookDetail struct {
	ID            string          `json:"id"`
	Provider      string          `json:"provider"`
	Status        string          `json:"status"`
	EventType     string          `json:"event_type,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	ReceivedAt    time.Time       `json:"received_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	RetryCount    int             `json:"retry_count"`
	LastError     string          `json:"last_error,omitempty"`
	ClientAddress string          `json:"client_address,omitempty"`
	ProcessingMS  int64           `json:"processing_ms,omitempty"`
}

func toDetail(wh webhook.Webhook) webhookDetail {
	return webhookDetail{
		ID:            wh.ID,
		Provider:      wh.Provider,
		Status:        wh.Status.String(),
		EventType:     wh.EventType,
		Payload:       wh.ParsedPayload,
		ReceivedAt:    wh.ReceivedAt,
		UpdatedAt:     wh.UpdatedAt,
		RetryCount:    wh.RetryCount,
		LastError:     wh.LastError,
		ClientAddress: wh.ClientAddress,
		ProcessingMS:  wh.ProcessingMS,
	}
}

/* postWebhook handles POST /webhooks/{provider}
 * The provider only ever sees 200, 400, 401 or 413; all downstream
 * processing state stays internal and is observable via the audit API
 */
func postWebhook(webhookService webhook.UseCase, maxBodyBytes int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provider := chi.URLParam(r, "provider")
		if provider == "" {
			http.Error(w, "provider is required", http.StatusBadRequest)
			return
		}

		// One byte past the limit is enough to detect oversize without
		// buffering an unbounded payload
		limit := int64(1 << 20)
		if maxBodyBytes > 0 {
			limit = maxBodyBytes
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		headers := make(map[string]string)
		for key, values := range r.Header {
			if len(values) > 0 {
				headers[key] = values[0]
			}
		}

		receipt, err := webhookService.Receive(r.Context(), webhook.Inbound{
			Provider:      provider,
			RawBody:       body,
			Headers:       headers,
			ClientAddress: r.RemoteAddr,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		switch receipt.Outcome {
		case webhook.OutcomeOversize:
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		case webhook.OutcomeBadSignature:
			http.Error(w, "signature verification failed", http.StatusUnauthorized)
			return
		case webhook.OutcomeInvalidJSON:
			http.Error(w, "payload is not valid JSON", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(webhookResponse{
			WebhookID: receipt.WebhookID,
			Provider:  provider,
		})
	})
}

// getWebhook handles GET /v1/webhooks/{id}
func getWebhook(webhookService webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		wh, err := webhookService.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, webhook.ErrNotFound) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(toDetail(wh)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// listWebhooks handles GET /v1/webhooks?provider=&status=&since=&until=&limit=
func listWebhooks(webhookService webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filter := webhook.Filter{
			Provider: r.URL.Query().Get("provider"),
			Limit:    100,
		}

		if status := r.URL.Query().Get("status"); status != "" {
			filter.Status = webhook.NewStatus(status)
		}
		if since := r.URL.Query().Get("since"); since != "" {
			t, err := time.Parse(time.RFC3339, since)
			if err != nil {
				http.Error(w, "since must be RFC 3339", http.StatusBadRequest)
				return
			}
			filter.Since = t
		}
		if until := r.URL.Query().Get("until"); until != "" {
			t, err := time.Parse(time.RFC3339, until)
			if err != nil {
				http.Error(w, "until must be RFC 3339", http.StatusBadRequest)
				return
			}
			filter.Until = t
		}

		webhooks, err := webhookService.List(r.Context(), filter)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		details := make([]webhookDetail, 0, len(webhooks))
		for _, wh := range webhooks {
			details = append(details, toDetail(wh))
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(details); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// replayWebhook handles POST /v1/webhooks/{id}/replay
func replayWebhook(webhookService webhook.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if err := webhookService.Replay(r.Context(), id); err != nil {
			if errors.Is(err, webhook.ErrNotFound) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}

		w.WriteHeader(http.StatusAccepted)
	})
}
