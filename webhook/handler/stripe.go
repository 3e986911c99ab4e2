package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/marcelsud/webhook-pipeline/webhook"
)

/* Built-in handlers for Stripe-style payment events
 * Translate the provider payload shape into internal payment events
 * Pure except for the returned events, so retries are safe
 */

// stripeEvent is the envelope shape of a Stripe-style event payload
type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// paymentEvent is the internal payload published downstream
type paymentEvent struct {
	PaymentID string          `json:"payment_id"`
	Provider  string          `json:"provider"`
	Detail    json.RawMessage `json:"detail"`
}

// PaymentHandler maps payment lifecycle events to internal payment.* events
type PaymentHandler struct {
	provider string
}

// NewPaymentHandler creates the handler for a payment provider
func NewPaymentHandler(provider string) *PaymentHandler {
	return &PaymentHandler{provider: provider}
}

func (h *PaymentHandler) Handle(ctx context.Context, payload json.RawMessage, headers map[string]string) ([]webhook.OutboundEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decoding payment event: %w", err)
	}

	var outType string
	switch event.Type {
	case "payment_intent.succeeded":
		outType = "payment.completed"
	case "payment_intent.payment_failed":
		outType = "payment.failed"
	case "payment_intent.canceled":
		outType = "payment.canceled"
	case "charge.refunded":
		outType = "payment.refunded"
	default:
		// Unmapped payment events are acknowledged without output
		return nil, nil
	}

	object := event.Data.Object
	if len(object) == 0 {
		object = json.RawMessage(`{}`)
	}

	out, err := json.Marshal(paymentEvent{
		PaymentID: h.objectID(object),
		Provider:  h.provider,
		Detail:    object,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding payment event: %w", err)
	}

	return []webhook.OutboundEvent{{Type: outType, Payload: out}}, nil
}

func (h *PaymentHandler) objectID(object json.RawMessage) string {
	var partial struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(object, &partial); err != nil {
		return ""
	}
	return partial.ID
}
