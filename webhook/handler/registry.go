package handler

import (
	"fmt"

	"github.com/marcelsud/webhook-pipeline/webhook"
)

/* Registry maps (provider, eventType) pairs to handlers
 * A registration under the Wildcard event type catches every event of a
 * provider that has no exact match; there is no cross-provider fallback
 */

// Wildcard matches any event type of a provider
const Wildcard = "*"

type Registry struct {
	handlers map[string]webhook.Handler
}

// NewRegistry creates an empty handler registry
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]webhook.Handler),
	}
}

// Register binds a handler to a provider event type.
// Registrations happen at composition time, before workers start, so the
// map needs no locking.
func (r *Registry) Register(provider, eventType string, h webhook.Handler) {
	r.handlers[key(provider, eventType)] = h
}

// Get resolves the handler for a provider event type, trying the exact
// event type first and the provider wildcard second
func (r *Registry) Get(provider, eventType string) (webhook.Handler, bool) {
	if h, ok := r.handlers[key(provider, eventType)]; ok {
		return h, true
	}
	h, ok := r.handlers[key(provider, Wildcard)]
	return h, ok
}

func key(provider, eventType string) string {
	return fmt.Sprintf("%s/%s", provider, eventType)
}
