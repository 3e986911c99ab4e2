package handler_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/marcelsud/webhook-pipeline/webhook/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMSStatusHandler(t *testing.T) {
	ctx := context.Background()
	h := handler.NewSMSStatusHandler()

	payload := func(status string) json.RawMessage {
		return json.RawMessage(`{
			"MessageSid": "SM123",
			"MessageStatus": "` + status + `",
			"To": "+15551234567",
			"ErrorCode": ""
		}`)
	}

	t.Run("maps delivery statuses", func(t *testing.T) {
		cases := map[string]string{
			"delivered":   "sms.delivered",
			"failed":      "sms.failed",
			"undelivered": "sms.failed",
			"sent":        "sms.status_changed",
			"queued":      "sms.status_changed",
		}
		for status, out := range cases {
			events, err := h.Handle(ctx, payload(status), nil)
			require.NoError(t, err)
			require.Len(t, events, 1)
			assert.Equal(t, out, events[0].Type)
		}
	})

	t.Run("carries message details downstream", func(t *testing.T) {
		events, err := h.Handle(ctx, payload("delivered"), nil)
		require.NoError(t, err)
		require.Len(t, events, 1)

		var body struct {
			MessageID string `json:"message_id"`
			Recipient string `json:"recipient"`
			Status    string `json:"status"`
		}
		require.NoError(t, json.Unmarshal(events[0].Payload, &body))
		assert.Equal(t, "SM123", body.MessageID)
		assert.Equal(t, "+15551234567", body.Recipient)
		assert.Equal(t, "delivered", body.Status)
	})

	t.Run("unknown status produces no output", func(t *testing.T) {
		events, err := h.Handle(ctx, payload("mystery"), nil)
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("malformed payload errors", func(t *testing.T) {
		_, err := h.Handle(ctx, json.RawMessage(`[]`), nil)
		require.Error(t, err)
	})
}
