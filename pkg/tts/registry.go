package tts

import (
	"fmt"
	"sync"
)

// Registry holds the configured providers for a gateway instance.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	preferred string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider. A later registration under the same name
// replaces the earlier one.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("tts: unknown provider %q", name)
	}
	return p, nil
}

// Names returns the registered provider names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// SetDefault pins the provider returned by Default. An unknown name is
// rejected so configuration typos surface at startup.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		return fmt.Errorf("tts: unknown provider %q", name)
	}
	r.preferred = name
	return nil
}

// Default returns the pinned provider when one was set, then ElevenLabs
// when configured, otherwise MiniMax, otherwise any registered provider.
func (r *Registry) Default() (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.providers[r.preferred]; ok {
		return p, nil
	}
	if p, ok := r.providers[ProviderElevenLabs]; ok {
		return p, nil
	}
	if p, ok := r.providers[ProviderMiniMax]; ok {
		return p, nil
	}
	for _, p := range r.providers {
		return p, nil
	}
	return nil, fmt.Errorf("tts: no providers registered")
}
