package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/webhook-pipeline/providers"
)

/* Service represents the gateway-side business logic layer
 * Uses pointer semantics as it's an API, not data
 */

// Outcome classifies what the gateway decided about an inbound call.
// The HTTP layer maps outcomes to status codes.
type Outcome int

const (
	OutcomeAccepted Outcome = iota + 1
	OutcomeBadSignature
	OutcomeInvalidJSON
	OutcomeOversize
)

// Inbound carries one raw webhook call as received at the HTTP boundary
type Inbound struct {
	Provider      string
	RawBody       []byte
	Headers       map[string]string
	ClientAddress string
}

// Receipt is the gateway's decision for one inbound call
type Receipt struct {
	WebhookID string
	Outcome   Outcome
}

// SignatureVerifier authenticates a raw body for a named provider.
// Unknown providers fail closed.
type SignatureVerifier interface {
	Verify(provider string, body []byte, headers map[string]string) bool
}

// UseCase defines the business operations for webhook ingestion and audit
type UseCase interface {
	Receive(ctx context.Context, in Inbound) (Receipt, error)
	Replay(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (Webhook, error)
	List(ctx context.Context, filter Filter) ([]Webhook, error)
}

type Service struct {
	Repo      Repository
	Providers *providers.Registry
	Verifiers SignatureVerifier

	maxBodyBytes int64
}

// NewService creates a new webhook gateway service with dependency injection
func NewService(repo Repository, registry *providers.Registry, verifiers SignatureVerifier, maxBodyBytes int64) *Service {
	return &Service{
		Repo:         repo,
		Providers:    registry,
		Verifiers:    verifiers,
		maxBodyBytes: maxBodyBytes,
	}
}

/* Receive accepts a raw webhook call, authenticates it and hands it to the
 * processor pool. Every call writes exactly one webhook record regardless
 * of outcome so the audit trail is complete. Only verified records are
 * enqueued: a forged signature or malformed body is terminal and must
 * never be retried.
 */
func (s *Service) Receive(ctx context.Context, in Inbound) (Receipt, error) {
	now := time.Now().UTC()
	wh := Webhook{
		ID:            uuid.New().String(),
		Provider:      in.Provider,
		Status:        Received,
		Headers:       in.Headers,
		RawBody:       in.RawBody,
		ReceivedAt:    now,
		UpdatedAt:     now,
		ClientAddress: in.ClientAddress,
	}

	// Cheap size check first to bound attacker cost
	if s.maxBodyBytes > 0 && int64(len(in.RawBody)) > s.maxBodyBytes {
		wh.Status = InvalidJSON
		wh.LastError = fmt.Sprintf("body exceeds size limit of %d bytes", s.maxBodyBytes)
		if err := s.Repo.Create(ctx, wh); err != nil {
			return Receipt{}, fmt.Errorf("storing oversize webhook: %w", err)
		}
		return Receipt{WebhookID: wh.ID, Outcome: OutcomeOversize}, nil
	}

	if !s.Verifiers.Verify(in.Provider, in.RawBody, in.Headers) {
		wh.Status = VerificationFailed
		wh.LastError = "signature verification failed"
		if err := s.Repo.Create(ctx, wh); err != nil {
			return Receipt{}, fmt.Errorf("storing unverified webhook: %w", err)
		}
		return Receipt{WebhookID: wh.ID, Outcome: OutcomeBadSignature}, nil
	}

	if !json.Valid(in.RawBody) {
		wh.Status = InvalidJSON
		wh.LastError = "payload is not valid JSON"
		if err := s.Repo.Create(ctx, wh); err != nil {
			return Receipt{}, fmt.Errorf("storing malformed webhook: %w", err)
		}
		return Receipt{WebhookID: wh.ID, Outcome: OutcomeInvalidJSON}, nil
	}

	wh.ParsedPayload = json.RawMessage(in.RawBody)
	wh.EventType = s.Providers.EventType(in.Provider, wh.ParsedPayload, in.Headers)
	wh.Status = Verified

	if err := s.Repo.Create(ctx, wh); err != nil {
		return Receipt{}, fmt.Errorf("storing webhook: %w", err)
	}
	if err := s.Repo.Enqueue(ctx, wh.ID); err != nil {
		return Receipt{}, fmt.Errorf("enqueueing webhook: %w", err)
	}

	return Receipt{WebhookID: wh.ID, Outcome: OutcomeAccepted}, nil
}

/* Replay re-opens a terminal webhook for another processing round
 * The record goes back to Verified through the store's replay operation
 * and re-enters the queue, so it follows the exact same transition rules
 * as a fresh delivery
 */
func (s *Service) Replay(ctx context.Context, id string) error {
	wh, err := s.Repo.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("loading webhook for replay: %w", err)
	}
	if !wh.Status.IsFinal() {
		return fmt.Errorf("webhook %s is %s, only terminal webhooks can be replayed", id, wh.Status)
	}

	if err := s.Repo.Reopen(ctx, id); err != nil {
		return fmt.Errorf("reopening webhook: %w", err)
	}
	if err := s.Repo.Enqueue(ctx, id); err != nil {
		return fmt.Errorf("enqueueing replayed webhook: %w", err)
	}
	return nil
}

// Get returns a single webhook record by ID
func (s *Service) Get(ctx context.Context, id string) (Webhook, error) {
	wh, err := s.Repo.Get(ctx, id)
	if err != nil {
		return Webhook{}, fmt.Errorf("getting webhook: %w", err)
	}
	return wh, nil
}

// List returns webhook records matching the filter, newest first
func (s *Service) List(ctx context.Context, filter Filter) ([]Webhook, error) {
	list, err := s.Repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing webhooks: %w", err)
	}
	return list, nil
}
