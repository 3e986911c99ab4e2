package signature_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/marcelsud/webhook-pipeline/providers"
	"github.com/marcelsud/webhook-pipeline/webhook/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedStandardHeaders(t *testing.T, secret signature.Secret, msgID string, ts time.Time, body []byte) map[string]string {
	t.Helper()
	sig, err := signature.Sign(secret, msgID, ts, body)
	require.NoError(t, err)
	return map[string]string{
		signature.HeaderID:        msgID,
		signature.HeaderTimestamp: strconv.FormatInt(ts.Unix(), 10),
		signature.HeaderSignature: signature.BuildSignatureHeader([]signature.Signature{sig}),
	}
}

func TestStandardVerifier(t *testing.T) {
	secret, err := signature.GenerateSecret(32)
	require.NoError(t, err)

	verifier, err := signature.NewStandardVerifier(secret.String(), 5*time.Minute)
	require.NoError(t, err)

	body := []byte(`{"type": "payment_intent.succeeded", "id": "evt_1"}`)
	now := time.Now()

	t.Run("accepts valid signature", func(t *testing.T) {
		headers := signedStandardHeaders(t, secret, "msg_1", now, body)
		assert.True(t, verifier.Verify(body, headers))
	})

	t.Run("rejects tampered body", func(t *testing.T) {
		headers := signedStandardHeaders(t, secret, "msg_1", now, body)
		tampered := []byte(`{"type": "payment_intent.succeeded", "id": "evt_FORGED"}`)
		assert.False(t, verifier.Verify(tampered, headers))
	})

	t.Run("rejects wrong secret", func(t *testing.T) {
		other, err := signature.GenerateSecret(32)
		require.NoError(t, err)
		headers := signedStandardHeaders(t, other, "msg_1", now, body)
		assert.False(t, verifier.Verify(body, headers))
	})

	t.Run("rejects stale timestamp", func(t *testing.T) {
		headers := signedStandardHeaders(t, secret, "msg_1", now.Add(-time.Hour), body)
		assert.False(t, verifier.Verify(body, headers))
	})

	t.Run("rejects missing headers", func(t *testing.T) {
		headers := signedStandardHeaders(t, secret, "msg_1", now, body)
		delete(headers, signature.HeaderSignature)
		assert.False(t, verifier.Verify(body, headers))
	})

	t.Run("accepts any valid signature during rotation", func(t *testing.T) {
		old, err := signature.GenerateSecret(32)
		require.NoError(t, err)
		oldSig, err := signature.Sign(old, "msg_1", now, body)
		require.NoError(t, err)
		newSig, err := signature.Sign(secret, "msg_1", now, body)
		require.NoError(t, err)

		headers := map[string]string{
			signature.HeaderID:        "msg_1",
			signature.HeaderTimestamp: strconv.FormatInt(now.Unix(), 10),
			signature.HeaderSignature: signature.BuildSignatureHeader([]signature.Signature{oldSig, newSig}),
		}
		assert.True(t, verifier.Verify(body, headers))
	})
}

func stripeHeader(secret string, ts time.Time, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), body)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeVerifier(t *testing.T) {
	const secret = "whsec_stripe_endpoint_secret"
	verifier := signature.NewStripeVerifier(secret, 5*time.Minute)
	body := []byte(`{"id": "evt_1", "type": "charge.refunded"}`)
	now := time.Now()

	t.Run("accepts valid signature", func(t *testing.T) {
		headers := map[string]string{
			signature.StripeSignatureHeader: stripeHeader(secret, now, body),
		}
		assert.True(t, verifier.Verify(body, headers))
	})

	t.Run("rejects tampered body", func(t *testing.T) {
		headers := map[string]string{
			signature.StripeSignatureHeader: stripeHeader(secret, now, body),
		}
		assert.False(t, verifier.Verify([]byte(`{"id": "evt_2"}`), headers))
	})

	t.Run("rejects expired timestamp", func(t *testing.T) {
		headers := map[string]string{
			signature.StripeSignatureHeader: stripeHeader(secret, now.Add(-time.Hour), body),
		}
		assert.False(t, verifier.Verify(body, headers))
	})

	t.Run("rejects malformed header", func(t *testing.T) {
		headers := map[string]string{
			signature.StripeSignatureHeader: "not-a-signature",
		}
		assert.False(t, verifier.Verify(body, headers))
	})

	t.Run("accepts second candidate during rotation", func(t *testing.T) {
		mac := hmac.New(sha256.New, []byte(secret))
		fmt.Fprintf(mac, "%d.%s", now.Unix(), body)
		valid := hex.EncodeToString(mac.Sum(nil))
		headers := map[string]string{
			signature.StripeSignatureHeader: fmt.Sprintf("t=%d,v1=%s,v1=%s",
				now.Unix(), hex.EncodeToString(make([]byte, 32)), valid),
		}
		assert.True(t, verifier.Verify(body, headers))
	})
}

func TestHMACVerifier(t *testing.T) {
	const secret = "twilio-auth-token"
	verifier := signature.NewHMACVerifier(secret, "X-Twilio-Signature")
	body := []byte(`{"MessageSid": "SM1", "MessageStatus": "delivered"}`)

	sign := func(payload []byte) string {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(payload)
		return hex.EncodeToString(mac.Sum(nil))
	}

	t.Run("accepts valid signature", func(t *testing.T) {
		headers := map[string]string{"X-Twilio-Signature": sign(body)}
		assert.True(t, verifier.Verify(body, headers))
	})

	t.Run("accepts sha256 prefixed digest", func(t *testing.T) {
		headers := map[string]string{"X-Twilio-Signature": "sha256=" + sign(body)}
		assert.True(t, verifier.Verify(body, headers))
	})

	t.Run("rejects tampered body", func(t *testing.T) {
		headers := map[string]string{"X-Twilio-Signature": sign(body)}
		assert.False(t, verifier.Verify([]byte(`{"MessageSid": "SM2"}`), headers))
	})

	t.Run("rejects missing header", func(t *testing.T) {
		assert.False(t, verifier.Verify(body, map[string]string{}))
	})
}

func TestRegistryFailsClosed(t *testing.T) {
	registry := signature.NewRegistry()
	registry.Register("twilio", signature.NewHMACVerifier("token", "X-Twilio-Signature"))

	body := []byte(`{}`)
	assert.False(t, registry.Verify("unknown", body, map[string]string{}),
		"a provider without a verifier must never pass")
	assert.False(t, registry.Verify("twilio", body, map[string]string{}))
}

func TestFromProviders(t *testing.T) {
	secret, err := signature.GenerateSecret(32)
	require.NoError(t, err)

	reg := providers.NewRegistry()
	require.NoError(t, reg.Add(&providers.Provider{
		Name:             "sendgrid",
		Scheme:           providers.SchemeStandard,
		Secret:           secret.String(),
		EventTypeField:   "event",
		ToleranceSeconds: 300,
	}))
	require.NoError(t, reg.Add(&providers.Provider{
		Name:            "twilio",
		Scheme:          providers.SchemeHMAC,
		Secret:          "auth-token",
		SignatureHeader: "X-Twilio-Signature",
		EventTypeField:  "MessageStatus",
	}))

	verifiers, err := signature.FromProviders(reg)
	require.NoError(t, err)

	body := []byte(`{"event": "delivered"}`)
	headers := signedStandardHeaders(t, secret, "msg_1", time.Now(), body)
	assert.True(t, verifiers.Verify("sendgrid", body, headers))
	assert.False(t, verifiers.Verify("twilio", body, headers))
}
