package webhook

import (
	"encoding/json"
	"time"
)

/* Webhook represents a received webhook callback in the system
 * Uses value semantics as it represents data, not behavior
 * RawBody is write-once: it is the exact byte payload as received and is
 * never mutated after creation so signatures can be re-verified and the
 * call replayed byte for byte
 */
type Webhook struct {
	ID            string
	Provider      string
	Status        Status
	EventType     string
	Headers       map[string]string
	RawBody       []byte
	ParsedPayload json.RawMessage
	ReceivedAt    time.Time
	UpdatedAt     time.Time
	RetryCount    int
	LastError     string
	ClientAddress string
	ProcessingMS  int64
}
