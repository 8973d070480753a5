package gateway

import (
	"sort"
	"sync"

	"github.com/stacklok/mcp-gateway/pkg/ferrors"
)

// Registry is the in-memory set of backends keyed by unique name. It is
// the sole owner of every Backend's lifetime: Add and Remove are the only
// ways a Backend is created or destroyed, and every read returns
// non-owning pointers into registry-held state (per spec, components
// other than the registry never copy a Backend — they observe it through
// its own internal locking and its HealthTracker).
type Registry struct {
	mu       sync.RWMutex
	backends map[string]*Backend
	// order preserves registration order as a tie-break for routing
	// strategies that sort by priority.
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]*Backend)}
}

// Add registers a new backend. Fails with BackendAlreadyExists if the name
// is already taken.
func (r *Registry) Add(b *Backend) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.backends[b.Name]; exists {
		return ferrors.NewBackendAlreadyExistsError("backend already registered: "+b.Name, nil)
	}
	r.backends[b.Name] = b
	r.order = append(r.order, b.Name)
	return nil
}

// Remove deregisters a backend. Idempotent: removing an absent name is a
// no-op.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.backends[name]; !exists {
		return
	}
	delete(r.backends, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get returns the backend registered under name, or (nil, false).
func (r *Registry) Get(name string) (*Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	return b, ok
}

// Exists reports whether name is registered.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.backends[name]
	return ok
}

// All returns every registered backend, in registration order.
func (r *Registry) All() []*Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Backend, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.backends[name])
	}
	return out
}

// Count returns the number of registered backends.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.backends)
}

// Healthy returns the subset of All() currently reporting healthy with a
// non-open circuit (StatusHealthy), in registration order. This is a
// pure status read: it never transitions a backend's circuit state, so
// polling it cannot steal the single half-open probe slot from the
// routing or prober path.
func (r *Registry) Healthy() []*Backend {
	all := r.All()
	out := make([]*Backend, 0, len(all))
	for _, b := range all {
		if b.StatusHealthy() {
			out = append(out, b)
		}
	}
	return out
}

// WithTool returns every registered backend whose discovered tools
// contain toolName, in registration order. Order is unspecified by spec;
// registration order is used so routing strategies that sort by priority
// have a stable tie-break.
func (r *Registry) WithTool(toolName string) []*Backend {
	all := r.All()
	out := make([]*Backend, 0, len(all))
	for _, b := range all {
		if b.HasTool(toolName) {
			out = append(out, b)
		}
	}
	return out
}

// Names returns the registered backend names sorted lexically, for
// diffing against a desired-state set.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.backends))
	for name := range r.backends {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
