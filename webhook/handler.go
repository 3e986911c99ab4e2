package webhook

import (
	"context"
	"encoding/json"
)

/* Handler is the single capability built-in and custom handlers implement
 * A handler translates a provider payload into zero or more outbound events
 * and must be pure with respect to external side effects other than the
 * returned events: the processor retries failed invocations, so hidden I/O
 * would break the at-most-one-dispatch guarantee
 * CorrelationID is filled in by the processor, not the handler
 */
type Handler interface {
	Handle(ctx context.Context, payload json.RawMessage, headers map[string]string) ([]OutboundEvent, error)
}

// HandlerFunc adapts a plain function to the Handler interface
type HandlerFunc func(ctx context.Context, payload json.RawMessage, headers map[string]string) ([]OutboundEvent, error)

func (f HandlerFunc) Handle(ctx context.Context, payload json.RawMessage, headers map[string]string) ([]OutboundEvent, error) {
	return f(ctx, payload, headers)
}

// HandlerLookup resolves the handler registered for a provider event type
type HandlerLookup interface {
	Get(provider, eventType string) (Handler, bool)
}
