package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/marcelsud/webhook-pipeline/webhook"
)

// smsCallback is the shape of a Twilio-style message status callback
type smsCallback struct {
	MessageSID    string `json:"MessageSid"`
	MessageStatus string `json:"MessageStatus"`
	To            string `json:"To"`
	ErrorCode     string `json:"ErrorCode"`
}

// smsEvent is the internal payload published downstream
type smsEvent struct {
	MessageID string `json:"message_id"`
	Recipient string `json:"recipient"`
	Status    string `json:"status"`
	ErrorCode string `json:"error_code,omitempty"`
}

// SMSStatusHandler maps SMS delivery callbacks to internal sms.* events
type SMSStatusHandler struct{}

// NewSMSStatusHandler creates the handler for SMS status callbacks
func NewSMSStatusHandler() *SMSStatusHandler {
	return &SMSStatusHandler{}
}

func (h *SMSStatusHandler) Handle(ctx context.Context, payload json.RawMessage, headers map[string]string) ([]webhook.OutboundEvent, error) {
	var callback smsCallback
	if err := json.Unmarshal(payload, &callback); err != nil {
		return nil, fmt.Errorf("decoding sms callback: %w", err)
	}

	var outType string
	switch callback.MessageStatus {
	case "delivered":
		outType = "sms.delivered"
	case "failed", "undelivered":
		outType = "sms.failed"
	case "sent", "queued", "accepted", "sending":
		outType = "sms.status_changed"
	default:
		return nil, nil
	}

	out, err := json.Marshal(smsEvent{
		MessageID: callback.MessageSID,
		Recipient: callback.To,
		Status:    callback.MessageStatus,
		ErrorCode: callback.ErrorCode,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding sms event: %w", err)
	}

	return []webhook.OutboundEvent{{Type: outType, Payload: out}}, nil
}
