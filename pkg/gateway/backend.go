package gateway

import "sync"

// Backend is the gateway's model of one upstream tool-RPC server: its
// static configuration plus the mutable runtime state (discovered
// capabilities, supervised process id, health) layered on top. The
// registry is the only owner of a Backend's lifetime; every other
// component holds a non-owning *Backend obtained from the registry.
type Backend struct {
	Name           string
	Source         BackendSource
	Namespace      string
	Priority       int
	Routes         []Route
	HealthCheck    HealthCheckSettings
	CircuitBreaker CircuitBreakerSettings
	AutoStart      bool

	// Health is created once alongside the Backend and mutated only by
	// the routed-invocation path and the health prober.
	Health HealthTracker

	mu        sync.RWMutex
	tools     map[string]CapabilityDescriptor
	resources map[string]CapabilityDescriptor
	prompts   map[string]CapabilityDescriptor
	processID int
	hasPID    bool
}

// NewBackend constructs a Backend with empty capability sets and the given
// health tracker (normally health.NewTracker(cfg.CircuitBreaker)).
func NewBackend(name string, source BackendSource, namespace string, priority int, tracker HealthTracker) *Backend {
	return &Backend{
		Name:           name,
		Source:         source,
		Namespace:      namespace,
		Priority:       priority,
		HealthCheck:    DefaultHealthCheckSettings(),
		CircuitBreaker: DefaultCircuitBreakerSettings(),
		Health:         tracker,
		tools:          make(map[string]CapabilityDescriptor),
		resources:      make(map[string]CapabilityDescriptor),
		prompts:        make(map[string]CapabilityDescriptor),
	}
}

// SetCapabilities atomically replaces all three capability sets. Called
// only by the discovery component.
func (b *Backend) SetCapabilities(tools, resources, prompts map[string]CapabilityDescriptor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tools = tools
	b.resources = resources
	b.prompts = prompts
}

// Tools returns a copy of the discovered tool set.
func (b *Backend) Tools() map[string]CapabilityDescriptor {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return cloneCapabilities(b.tools)
}

// Resources returns a copy of the discovered resource set.
func (b *Backend) Resources() map[string]CapabilityDescriptor {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return cloneCapabilities(b.resources)
}

// Prompts returns a copy of the discovered prompt set.
func (b *Backend) Prompts() map[string]CapabilityDescriptor {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return cloneCapabilities(b.prompts)
}

// HasTool reports whether name is among the discovered tools.
func (b *Backend) HasTool(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.tools[name]
	return ok
}

// SetProcessID records the pid of a supervised child process. Called by
// the process supervisor on start; cleared (ok=false) on stop.
func (b *Backend) SetProcessID(pid int, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.processID = pid
	b.hasPID = ok
}

// ProcessID returns the tracked pid and whether one is set.
func (b *Backend) ProcessID() (int, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.processID, b.hasPID
}

// IsHealthy reports whether the backend may currently receive a routed
// call: closed circuits always qualify, and an open circuit past its
// timeout qualifies for exactly one half-open probe (the tracker's
// CanAttempt gate), so routing and the circuit breaker's recovery test
// share one decision instead of disagreeing about it. This method has a
// side effect (it may transition OPEN to HALF_OPEN and claim the single
// in-flight probe slot) and must only be called from the actual
// call/probe path (routing candidate filtering, the prober) — never from
// a read-only status query.
func (b *Backend) IsHealthy() bool {
	return b.Health.CanAttempt()
}

// StatusHealthy reports whether the backend currently looks healthy for
// a read-only status query (Registry.Healthy, list_backends,
// get_backend_health): healthy and not OPEN, per spec §4.A and the
// invariant circuit_state=OPEN ⇒ ¬healthy(). Unlike IsHealthy, this never
// mutates circuit state or consumes a half-open probe slot.
func (b *Backend) StatusHealthy() bool {
	snap := b.Health.Snapshot()
	return snap.Healthy && snap.CircuitState != CircuitOpen
}

func cloneCapabilities(m map[string]CapabilityDescriptor) map[string]CapabilityDescriptor {
	out := make(map[string]CapabilityDescriptor, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
