package providers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

/* Provider represents a configured webhook source
 * Maps a provider name to its signature scheme, secret, and the rules for
 * extracting the event type and provider event ID from a payload
 */
type Provider struct {
	Name             string
	Scheme           string // "standard", "stripe" or "hmac"
	Secret           string
	SignatureHeader  string // header carrying the signature for the hmac scheme
	EventTypeField   string // dot path into the JSON payload, e.g. "type"
	EventTypeHeader  string // alternative: read the event type from a header
	EventIDField     string // dot path to the provider's own event ID, may be empty
	ToleranceSeconds int    // timestamp tolerance for schemes that sign a timestamp
}

// Signature schemes supported by the gateway
const (
	SchemeStandard = "standard"
	SchemeStripe   = "stripe"
	SchemeHMAC     = "hmac"
)

// Validate checks if the provider configuration is valid
func (p *Provider) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}
	switch p.Scheme {
	case SchemeStandard, SchemeStripe, SchemeHMAC:
	default:
		return fmt.Errorf("unknown signature scheme %q for provider %s", p.Scheme, p.Name)
	}
	if p.Secret == "" {
		return fmt.Errorf("secret cannot be empty for provider %s", p.Name)
	}
	if p.Scheme == SchemeHMAC && p.SignatureHeader == "" {
		return fmt.Errorf("signature_header is required for hmac scheme on provider %s", p.Name)
	}
	if p.EventTypeField == "" && p.EventTypeHeader == "" {
		return fmt.Errorf("provider %s needs event_type_field or event_type_header", p.Name)
	}
	if p.ToleranceSeconds < 0 {
		return fmt.Errorf("tolerance_seconds cannot be negative for provider %s", p.Name)
	}
	return nil
}

/* EventType extracts the provider-reported event kind from a parsed payload
 * Header rules win over field rules when both are configured
 * Returns "" when the payload does not carry the configured field
 */
func (p *Provider) EventType(payload json.RawMessage, headers map[string]string) string {
	if p.EventTypeHeader != "" {
		if v, ok := headers[p.EventTypeHeader]; ok {
			return v
		}
	}
	return jsonField(payload, p.EventTypeField)
}

// EventID extracts the provider's own event identifier used for idempotency.
// Returns "" when the provider has no stable event ID; the processor then
// skips the idempotency check and always dispatches.
func (p *Provider) EventID(payload json.RawMessage) string {
	if p.EventIDField == "" {
		return ""
	}
	return jsonField(payload, p.EventIDField)
}

// jsonField walks a dot-delimited path into a JSON object and renders the
// leaf as a string. Numbers are formatted without an exponent so numeric
// vendor IDs stay stable.
func jsonField(payload json.RawMessage, path string) string {
	if path == "" || len(payload) == 0 {
		return ""
	}

	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return ""
	}

	parts := strings.Split(path, ".")
	var current any = doc
	for _, part := range parts {
		obj, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current, ok = obj[part]
		if !ok {
			return ""
		}
	}

	switch v := current.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}
