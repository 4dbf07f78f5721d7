// Package seen tracks which post uris each feed view has already shown, so
// later pages of the same view do not surface a post a second time.
package seen

import (
	"sync"

	"github.com/blackmichael/skyreader/internal/fifo"
)

// Capacity is the number of uris remembered per context.
const Capacity = 500

// Cache is the seen set of a single context.
type Cache = fifo.Set

// Registry holds one Cache per context string (e.g. "timeline" or
// "profile-alice.test-replies"). Caches are created on first use and live as
// long as the registry.
type Registry struct {
	mu       sync.Mutex
	capacity int
	caches   map[string]*Cache
}

// NewRegistry creates a registry whose caches hold Capacity uris.
func NewRegistry() *Registry {
	return NewRegistryWithCapacity(Capacity)
}

// NewRegistryWithCapacity creates a registry with a custom per-context capacity.
func NewRegistryWithCapacity(capacity int) *Registry {
	return &Registry{
		capacity: capacity,
		caches:   make(map[string]*Cache),
	}
}

// For returns the cache for context, creating it if needed.
func (r *Registry) For(context string) *Cache {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.caches[context]
	if !ok {
		c = fifo.New(r.capacity)
		r.caches[context] = c
	}
	return c
}

// Reset clears the cache for context if it exists.
func (r *Registry) Reset(context string) {
	r.mu.Lock()
	c, ok := r.caches[context]
	r.mu.Unlock()
	if ok {
		c.Clear()
	}
}
