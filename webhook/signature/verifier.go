package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/marcelsud/webhook-pipeline/providers"
)

/* Verifier is the per-provider verification capability
 * Implementations are stateless and pure given the shared secret
 * Every scheme uses constant-time comparison to avoid timing side-channels
 */
type Verifier interface {
	Verify(body []byte, headers map[string]string) bool
}

// Headers used by the Standard Webhooks scheme
const (
	HeaderID        = "Webhook-Id"
	HeaderTimestamp = "Webhook-Timestamp"
	HeaderSignature = "Webhook-Signature"

	// StripeSignatureHeader carries Stripe-style signatures: t=<ts>,v1=<hex>
	StripeSignatureHeader = "Stripe-Signature"
)

// headerValue looks up a header by its canonical MIME key
func headerValue(headers map[string]string, name string) string {
	return headers[textproto.CanonicalMIMEHeaderKey(name)]
}

// StandardVerifier implements the Standard Webhooks v1 symmetric scheme.
// Signed content is {webhook-id}.{webhook-timestamp}.{body}.
type StandardVerifier struct {
	secret    Secret
	tolerance time.Duration
}

// NewStandardVerifier creates a verifier for a whsec_ prefixed secret.
// A zero tolerance disables the timestamp freshness check.
func NewStandardVerifier(encodedSecret string, tolerance time.Duration) (*StandardVerifier, error) {
	secret, err := ParseSecret(encodedSecret)
	if err != nil {
		return nil, fmt.Errorf("parsing standard webhooks secret: %w", err)
	}
	return &StandardVerifier{secret: secret, tolerance: tolerance}, nil
}

func (v *StandardVerifier) Verify(body []byte, headers map[string]string) bool {
	msgID := headerValue(headers, HeaderID)
	tsHeader := headerValue(headers, HeaderTimestamp)
	sigHeader := headerValue(headers, HeaderSignature)
	if msgID == "" || tsHeader == "" || sigHeader == "" {
		return false
	}

	tsUnix, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return false
	}
	timestamp := time.Unix(tsUnix, 0)

	if v.tolerance > 0 {
		age := time.Since(timestamp)
		if age > v.tolerance || age < -v.tolerance {
			return false
		}
	}

	signatures, err := ParseSignatureHeader(sigHeader)
	if err != nil {
		return false
	}

	// Multiple signatures support secret rotation: any valid one passes
	for _, sig := range signatures {
		valid, err := Verify(v.secret, msgID, timestamp, body, sig)
		if err != nil {
			continue
		}
		if valid {
			return true
		}
	}
	return false
}

// StripeVerifier implements the Stripe-Signature scheme.
// Signed content is {t}.{body} with hex-encoded HMAC-SHA256 signatures.
type StripeVerifier struct {
	secret    []byte
	tolerance time.Duration
}

// NewStripeVerifier creates a verifier for a Stripe-style endpoint secret
func NewStripeVerifier(secret string, tolerance time.Duration) *StripeVerifier {
	return &StripeVerifier{secret: []byte(secret), tolerance: tolerance}
}

func (v *StripeVerifier) Verify(body []byte, headers map[string]string) bool {
	header := headerValue(headers, StripeSignatureHeader)
	if header == "" {
		return false
	}

	var timestamp string
	var candidates []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case SignatureVersion:
			candidates = append(candidates, kv[1])
		}
	}
	if timestamp == "" || len(candidates) == 0 {
		return false
	}

	tsUnix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if v.tolerance > 0 {
		age := time.Since(time.Unix(tsUnix, 0))
		if age > v.tolerance || age < -v.tolerance {
			return false
		}
	}

	mac := hmac.New(sha256.New, v.secret)
	fmt.Fprintf(mac, "%s.%s", timestamp, body)
	expected := mac.Sum(nil)

	for _, candidate := range candidates {
		decoded, err := hex.DecodeString(candidate)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return true
		}
	}
	return false
}

// HMACVerifier implements a plain hex HMAC-SHA256 over the raw body,
// carried in a configurable header. Used by providers without timestamped
// signature schemes.
type HMACVerifier struct {
	secret []byte
	header string
}

// NewHMACVerifier creates a plain HMAC verifier reading from the given header
func NewHMACVerifier(secret, header string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret), header: header}
}

func (v *HMACVerifier) Verify(body []byte, headers map[string]string) bool {
	candidate := headerValue(headers, v.header)
	if candidate == "" {
		return false
	}
	// Some vendors prefix the hex digest with the algorithm name
	candidate = strings.TrimPrefix(candidate, "sha256=")

	decoded, err := hex.DecodeString(candidate)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return hmac.Equal(decoded, mac.Sum(nil))
}

/* Registry maps provider names to their verifier
 * Verification fails closed: an unknown provider is never valid
 */
type Registry struct {
	verifiers map[string]Verifier
}

// NewRegistry creates an empty verifier registry
func NewRegistry() *Registry {
	return &Registry{
		verifiers: make(map[string]Verifier),
	}
}

// Register adds a verifier for a provider
func (r *Registry) Register(provider string, v Verifier) {
	r.verifiers[provider] = v
}

// Verify authenticates a raw body for the named provider.
// Returns false for providers with no registered verifier.
func (r *Registry) Verify(provider string, body []byte, headers map[string]string) bool {
	v, ok := r.verifiers[provider]
	if !ok {
		return false
	}
	return v.Verify(body, headers)
}

// ForProvider builds the verifier matching a provider's configured scheme
func ForProvider(p *providers.Provider) (Verifier, error) {
	tolerance := time.Duration(p.ToleranceSeconds) * time.Second

	switch p.Scheme {
	case providers.SchemeStandard:
		return NewStandardVerifier(p.Secret, tolerance)
	case providers.SchemeStripe:
		return NewStripeVerifier(p.Secret, tolerance), nil
	case providers.SchemeHMAC:
		return NewHMACVerifier(p.Secret, p.SignatureHeader), nil
	default:
		return nil, fmt.Errorf("unknown signature scheme: %s", p.Scheme)
	}
}

// FromProviders builds a registry covering every configured provider
func FromProviders(registry *providers.Registry) (*Registry, error) {
	r := NewRegistry()
	for _, p := range registry.List() {
		v, err := ForProvider(p)
		if err != nil {
			return nil, fmt.Errorf("building verifier for provider %s: %w", p.Name, err)
		}
		r.Register(p.Name, v)
	}
	return r, nil
}
