package webhook_test

import (
	"context"
	"testing"

	"github.com/marcelsud/webhook-pipeline/providers"
	"github.com/marcelsud/webhook-pipeline/webhook"
	"github.com/marcelsud/webhook-pipeline/webhook/mocks"
	"github.com/marcelsud/webhook-pipeline/webhook/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// stubVerifier approves or rejects every provider uniformly
type stubVerifier struct {
	valid bool
}

func (v stubVerifier) Verify(provider string, body []byte, headers map[string]string) bool {
	return v.valid
}

func testProviders(t *testing.T) *providers.Registry {
	t.Helper()
	registry := providers.NewRegistry()
	require.NoError(t, registry.Add(&providers.Provider{
		Name:           "stripe",
		Scheme:         providers.SchemeStripe,
		Secret:         "test-secret",
		EventTypeField: "type",
		EventIDField:   "id",
	}))
	return registry
}

func realVerifiers(t *testing.T, registry *providers.Registry) *signature.Registry {
	t.Helper()
	verifiers, err := signature.FromProviders(registry)
	require.NoError(t, err)
	return verifiers
}

func TestReceive(t *testing.T) {
	ctx := context.Background()
	headers := map[string]string{"Content-Type": "application/json"}

	t.Run("verified webhook is stored and enqueued", func(t *testing.T) {
		repo := mocks.NewRepository(t)
		service := webhook.NewService(repo, testProviders(t), stubVerifier{valid: true}, 1024)

		payload := []byte(`{"id": "evt_1", "type": "payment_intent.succeeded"}`)

		repo.On("Create", ctx, mock.MatchedBy(func(wh webhook.Webhook) bool {
			return wh.Provider == "stripe" &&
				wh.Status == webhook.Verified &&
				wh.EventType == "payment_intent.succeeded" &&
				string(wh.RawBody) == string(payload) &&
				string(wh.ParsedPayload) == string(payload) &&
				wh.RetryCount == 0
		})).Return(nil)
		repo.On("Enqueue", ctx, mock.AnythingOfType("string")).Return(nil)

		receipt, err := service.Receive(ctx, webhook.Inbound{
			Provider:      "stripe",
			RawBody:       payload,
			Headers:       headers,
			ClientAddress: "10.0.0.1:4242",
		})

		require.NoError(t, err)
		assert.Equal(t, webhook.OutcomeAccepted, receipt.Outcome)
		assert.NotEmpty(t, receipt.WebhookID)
		repo.AssertExpectations(t)
	})

	t.Run("bad signature is stored but never enqueued", func(t *testing.T) {
		repo := mocks.NewRepository(t)
		service := webhook.NewService(repo, testProviders(t), stubVerifier{valid: false}, 1024)

		repo.On("Create", ctx, mock.MatchedBy(func(wh webhook.Webhook) bool {
			return wh.Status == webhook.VerificationFailed && wh.LastError != ""
		})).Return(nil)

		receipt, err := service.Receive(ctx, webhook.Inbound{
			Provider: "stripe",
			RawBody:  []byte(`{"id": "evt_1"}`),
			Headers:  headers,
		})

		require.NoError(t, err)
		assert.Equal(t, webhook.OutcomeBadSignature, receipt.Outcome)
		repo.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
	})

	t.Run("unknown provider fails closed", func(t *testing.T) {
		repo := mocks.NewRepository(t)
		registry := testProviders(t)
		verifiers := realVerifiers(t, registry)
		service := webhook.NewService(repo, registry, verifiers, 1024)

		repo.On("Create", ctx, mock.MatchedBy(func(wh webhook.Webhook) bool {
			return wh.Provider == "nonexistent" && wh.Status == webhook.VerificationFailed
		})).Return(nil)

		receipt, err := service.Receive(ctx, webhook.Inbound{
			Provider: "nonexistent",
			RawBody:  []byte(`{}`),
			Headers:  headers,
		})

		require.NoError(t, err)
		assert.Equal(t, webhook.OutcomeBadSignature, receipt.Outcome)
	})

	t.Run("invalid JSON is terminal and never enqueued", func(t *testing.T) {
		repo := mocks.NewRepository(t)
		service := webhook.NewService(repo, testProviders(t), stubVerifier{valid: true}, 1024)

		repo.On("Create", ctx, mock.MatchedBy(func(wh webhook.Webhook) bool {
			return wh.Status == webhook.InvalidJSON && wh.ParsedPayload == nil
		})).Return(nil)

		receipt, err := service.Receive(ctx, webhook.Inbound{
			Provider: "stripe",
			RawBody:  []byte("not json"),
			Headers:  headers,
		})

		require.NoError(t, err)
		assert.Equal(t, webhook.OutcomeInvalidJSON, receipt.Outcome)
		repo.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
	})

	t.Run("oversize body is rejected before verification", func(t *testing.T) {
		repo := mocks.NewRepository(t)
		// A verifier that would panic if consulted proves the size check
		// comes first
		service := webhook.NewService(repo, testProviders(t), panicVerifier{}, 8)

		repo.On("Create", ctx, mock.MatchedBy(func(wh webhook.Webhook) bool {
			return wh.Status == webhook.InvalidJSON
		})).Return(nil)

		receipt, err := service.Receive(ctx, webhook.Inbound{
			Provider: "stripe",
			RawBody:  []byte(`{"way": "too large for the configured bound"}`),
			Headers:  headers,
		})

		require.NoError(t, err)
		assert.Equal(t, webhook.OutcomeOversize, receipt.Outcome)
		repo.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
	})
}

// panicVerifier fails the test when the gateway consults it
type panicVerifier struct{}

func (panicVerifier) Verify(provider string, body []byte, headers map[string]string) bool {
	panic("verifier must not run before the size check")
}

func TestReplay(t *testing.T) {
	ctx := context.Background()

	t.Run("terminal webhook is reopened and enqueued", func(t *testing.T) {
		repo := mocks.NewRepository(t)
		service := webhook.NewService(repo, testProviders(t), stubVerifier{valid: true}, 1024)

		repo.On("Get", ctx, "webhook-123").Return(webhook.Webhook{
			ID:     "webhook-123",
			Status: webhook.Failed,
		}, nil)
		repo.On("Reopen", ctx, "webhook-123").Return(nil)
		repo.On("Enqueue", ctx, "webhook-123").Return(nil)

		require.NoError(t, service.Replay(ctx, "webhook-123"))
		repo.AssertExpectations(t)
	})

	t.Run("non-terminal webhook cannot be replayed", func(t *testing.T) {
		repo := mocks.NewRepository(t)
		service := webhook.NewService(repo, testProviders(t), stubVerifier{valid: true}, 1024)

		repo.On("Get", ctx, "webhook-123").Return(webhook.Webhook{
			ID:     "webhook-123",
			Status: webhook.Processing,
		}, nil)

		err := service.Replay(ctx, "webhook-123")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "terminal")
		repo.AssertNotCalled(t, "Reopen", mock.Anything, mock.Anything)
	})
}
