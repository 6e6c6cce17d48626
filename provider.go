package darkrecon

import (
	"context"
	"fmt"
	"time"
)

// Provider is a single remote enrichment source. Fetch performs one
// attempt against the remote API, free of retry and rate-limit logic, and
// returns the provider's payload in plain data form. Normalize is a pure
// mapping from that payload to a unified record; it must tolerate any
// malformed input without panicking.
type Provider interface {
	// Stable identifier, also used as the record source tag.
	Name() string

	// Target types this provider can handle.
	Supports(t TargetType) bool

	// Environment variable or config key names that must be set for this
	// provider to run. Empty for keyless providers.
	RequiredCredentials() []string

	Fetch(ctx context.Context, target string, typ TargetType) (map[string]interface{}, error)

	Normalize(raw map[string]interface{}, target string, typ TargetType) (*Record, error)
}

// Descriptor carries the registration facts for a provider.
type Descriptor struct {
	Name        string
	Types       []TargetType
	Credentials []string
	Rate        RateSpec
	Timeout     time.Duration
}

// DefaultProviderTimeout caps a single provider call when the descriptor
// does not override it.
const DefaultProviderTimeout = 30 * time.Second

// Registry holds providers in insertion order. That order is canonical:
// the merge engine breaks single-value ties by it. The registry is built
// at startup and read-only afterwards, so no locking is needed.
type Registry struct {
	names       []string
	providers   map[string]Provider
	descriptors map[string]Descriptor
}

func NewRegistry() *Registry {
	return &Registry{
		providers:   make(map[string]Provider),
		descriptors: make(map[string]Descriptor),
	}
}

// Register adds a provider with its rate limit and timeout. Registering
// the same name twice is an error.
func (r *Registry) Register(p Provider, rate RateSpec, timeout time.Duration) error {
	name := p.Name()
	if _, ok := r.providers[name]; ok {
		return fmt.Errorf("provider %q already registered", name)
	}
	if timeout == 0 {
		timeout = DefaultProviderTimeout
	}
	var types []TargetType
	for _, t := range TargetTypes {
		if p.Supports(t) {
			types = append(types, t)
		}
	}
	r.names = append(r.names, name)
	r.providers[name] = p
	r.descriptors[name] = Descriptor{
		Name:        name,
		Types:       types,
		Credentials: p.RequiredCredentials(),
		Rate:        rate,
		Timeout:     timeout,
	}
	return nil
}

// Get returns the provider registered under the name.
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Descriptor returns the registration facts for a provider.
func (r *Registry) Descriptor(name string) (Descriptor, bool) {
	d, ok := r.descriptors[name]
	return d, ok
}

// Names returns all registered provider names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Select resolves the caller's provider subset for a target type: the
// named providers (all, if names is empty) intersected with those that
// support the type, in registration order. An unknown name is a permanent
// error.
func (r *Registry) Select(typ TargetType, names []string) ([]Provider, error) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := r.providers[n]; !ok {
			return nil, fmt.Errorf("unknown provider %q", n)
		}
		want[n] = true
	}
	var out []Provider
	for _, name := range r.names {
		if len(want) > 0 && !want[name] {
			continue
		}
		p := r.providers[name]
		if !p.Supports(typ) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}
