package providers

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

/* Registry manages provider configuration from providers.yaml
 * Provides in-memory lookup for fast access on the hot request path
 */

// Config represents the structure of providers.yaml
type Config struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// ProviderConfig represents a single provider in the YAML file
type ProviderConfig struct {
	Name             string `yaml:"name"`
	Scheme           string `yaml:"scheme"`
	Secret           string `yaml:"secret"`
	SignatureHeader  string `yaml:"signature_header"`
	EventTypeField   string `yaml:"event_type_field"`
	EventTypeHeader  string `yaml:"event_type_header"`
	EventIDField     string `yaml:"event_id_field"`
	ToleranceSeconds int    `yaml:"tolerance_seconds"`
}

// Registry holds the loaded providers
type Registry struct {
	providers map[string]*Provider
}

// NewRegistry creates an empty provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]*Provider),
	}
}

// Load reads and parses the providers.yaml file
func (r *Registry) Load(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("reading providers file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("parsing providers YAML: %w", err)
	}

	for _, pc := range config.Providers {
		provider := &Provider{
			Name:             pc.Name,
			Scheme:           pc.Scheme,
			Secret:           pc.Secret,
			SignatureHeader:  pc.SignatureHeader,
			EventTypeField:   pc.EventTypeField,
			EventTypeHeader:  pc.EventTypeHeader,
			EventIDField:     pc.EventIDField,
			ToleranceSeconds: pc.ToleranceSeconds,
		}

		if err := provider.Validate(); err != nil {
			return fmt.Errorf("validating provider: %w", err)
		}

		r.providers[provider.Name] = provider
	}

	return nil
}

// Add registers a provider directly, used by tests and embedded setups
func (r *Registry) Add(p *Provider) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("validating provider: %w", err)
	}
	r.providers[p.Name] = p
	return nil
}

// Get returns a provider by name
func (r *Registry) Get(name string) (*Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", name)
	}
	return p, nil
}

// Known reports whether a provider name is configured
func (r *Registry) Known(name string) bool {
	_, ok := r.providers[name]
	return ok
}

// List returns all configured providers
func (r *Registry) List() []*Provider {
	list := make([]*Provider, 0, len(r.providers))
	for _, p := range r.providers {
		list = append(list, p)
	}
	return list
}

// Names returns the names of all configured providers
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// EventType extracts the event type for a named provider.
// Returns "" for an unknown provider.
func (r *Registry) EventType(provider string, payload json.RawMessage, headers map[string]string) string {
	p, ok := r.providers[provider]
	if !ok {
		return ""
	}
	return p.EventType(payload, headers)
}

// EventID extracts the provider event ID for a named provider.
// Returns "" for an unknown provider or one without a stable event ID.
func (r *Registry) EventID(provider string, payload json.RawMessage) string {
	p, ok := r.providers[provider]
	if !ok {
		return ""
	}
	return p.EventID(payload)
}
