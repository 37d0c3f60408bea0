package tts

import (
	"fmt"
	"sort"
)

// Registry holds the configured backends keyed by name.
type Registry struct {
	providers map[Name]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[Name]Provider, len(providers))}
	for _, p := range providers {
		if p != nil {
			r.providers[p.Name()] = p
		}
	}
	return r
}

// Get returns the backend registered under name.
func (r *Registry) Get(name Name) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q is not configured", name)
	}
	return p, nil
}

// Has reports whether name is configured.
func (r *Registry) Has(name Name) bool {
	_, ok := r.providers[name]
	return ok
}

// Names lists registered backends in a stable order.
func (r *Registry) Names() []Name {
	names := make([]Name, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Fallback returns the cloud backend to try when primary fails. OpenAI and
// Google fall back to each other; the sidecar maps to whichever cloud
// backend is available. The second result is false when no fallback exists.
func (r *Registry) Fallback(primary Name) (Provider, bool) {
	for _, name := range []Name{OpenAI, Google} {
		if name == primary || !name.IsCloud() || !r.Has(name) {
			continue
		}
		return r.providers[name], true
	}
	return nil, false
}
