// Package venue maps configured venue names to the factories that build
// their clients.
package venue

import (
	"fmt"
	"sort"
	"sync"

	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/domain"
)

// Registry holds named venue factories for selection by config.
type Registry struct {
	factories map[string]domain.VenueFactory
	mu        sync.RWMutex
}

// NewRegistry returns an empty registry. Call Register to add venues.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]domain.VenueFactory)}
}

// Register adds a factory under the given name, replacing any previous one.
func (r *Registry) Register(name string, f domain.VenueFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Get returns the factory by name, or an error if not found.
func (r *Registry) Get(name string) (domain.VenueFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("venue %q not registered", name)
	}
	return f, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// List returns all registered venue names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
