package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/marcelsud/webhook-pipeline/webhook"
)

/* SendGrid-style email providers batch several events into one webhook
 * call, so a single delivery can fan out into multiple outbound events
 */

// emailNotification is one entry in an email event batch
type emailNotification struct {
	Email     string `json:"email"`
	Event     string `json:"event"`
	SGEventID string `json:"sg_event_id"`
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"`
}

// emailEvent is the internal payload published downstream
type emailEvent struct {
	Recipient string `json:"recipient"`
	EventID   string `json:"event_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// EmailEventHandler maps email event batches to internal email.* events
type EmailEventHandler struct{}

// NewEmailEventHandler creates the handler for email event webhooks
func NewEmailEventHandler() *EmailEventHandler {
	return &EmailEventHandler{}
}

func (h *EmailEventHandler) Handle(ctx context.Context, payload json.RawMessage, headers map[string]string) ([]webhook.OutboundEvent, error) {
	var batch []emailNotification
	if err := json.Unmarshal(payload, &batch); err != nil {
		// Some providers send a single object instead of a batch
		var single emailNotification
		if err := json.Unmarshal(payload, &single); err != nil {
			return nil, fmt.Errorf("decoding email events: %w", err)
		}
		batch = []emailNotification{single}
	}

	var events []webhook.OutboundEvent
	for _, notification := range batch {
		var outType string
		switch notification.Event {
		case "delivered":
			outType = "email.delivered"
		case "bounce", "dropped":
			outType = "email.bounced"
		case "spamreport":
			outType = "email.spam_reported"
		case "open":
			outType = "email.opened"
		case "click":
			outType = "email.clicked"
		default:
			continue
		}

		out, err := json.Marshal(emailEvent{
			Recipient: notification.Email,
			EventID:   notification.SGEventID,
			Reason:    notification.Reason,
			Timestamp: notification.Timestamp,
		})
		if err != nil {
			return nil, fmt.Errorf("encoding email event: %w", err)
		}

		events = append(events, webhook.OutboundEvent{Type: outType, Payload: out})
	}

	return events, nil
}
