package webhook

import "encoding/json"

/* OutboundEvent is what a handler produces from a provider payload
 * CorrelationID is always the ID of the originating webhook so downstream
 * consumers can trace an event back to the HTTP call that triggered it
 */
type OutboundEvent struct {
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	CorrelationID string          `json:"correlation_id"`
}
