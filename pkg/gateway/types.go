// Package gateway holds the core domain types of the virtual gateway: the
// backend model, its configuration value objects, and the in-memory
// registry that owns every backend for the life of the process.
package gateway

import "time"

// BackendSourceKind discriminates the three ways a backend can be
// described.
type BackendSourceKind string

const (
	SourceHTTP    BackendSourceKind = "http"
	SourceGitHub  BackendSourceKind = "github"
	SourcePackage BackendSourceKind = "package"
)

// ProcessConfig describes how to spawn a backend that the gateway itself
// supervises. Only populated for SourceGitHub and SourcePackage.
type ProcessConfig struct {
	Command string
	Args    []string
	Env     map[string]string
	// Port is the TCP port the child listens on. Zero means "allocate
	// one from the pool".
	Port int
}

// BackendSource is a tagged union over the three ways register_backend's
// source string can resolve. Which fields are populated depends on Kind,
// as noted on each field.
type BackendSource struct {
	Kind BackendSourceKind

	// URL is populated for SourceHTTP.
	URL string

	// Owner/Repo/Subpath are populated for SourceGitHub.
	Owner   string
	Repo    string
	Subpath string

	// Package is populated for SourcePackage, and for SourceGitHub holds
	// the derived "<owner>/<repo>" package name.
	Package string

	// Process is nil for SourceHTTP, populated for the other two kinds.
	Process *ProcessConfig
}

// RouteStrategy names one of the three routing policies.
type RouteStrategy string

const (
	StrategyPath       RouteStrategy = "path"
	StrategyCapability RouteStrategy = "capability"
	StrategyFallback   RouteStrategy = "fallback"
)

// Route is one entry of a backend's declared route table, tried in
// declaration order by the path strategy.
type Route struct {
	Pattern    string
	Strategy   RouteStrategy
	FallbackTo string
}

// CircuitBreakerSettings configures the per-backend circuit breaker.
type CircuitBreakerSettings struct {
	FailureThreshold int
	Timeout          time.Duration
	HalfOpenAttempts int
}

// DefaultCircuitBreakerSettings mirrors the desired-state file's documented
// defaults (spec §6).
func DefaultCircuitBreakerSettings() CircuitBreakerSettings {
	return CircuitBreakerSettings{
		FailureThreshold: 5,
		Timeout:          60 * time.Second,
		HalfOpenAttempts: 3,
	}
}

// HealthCheckSettings configures the health prober for one backend.
type HealthCheckSettings struct {
	Enabled  bool
	Interval time.Duration
	Timeout  time.Duration
	Endpoint string
}

// DefaultHealthCheckSettings mirrors the desired-state file's documented
// defaults.
func DefaultHealthCheckSettings() HealthCheckSettings {
	return HealthCheckSettings{
		Enabled:  true,
		Interval: 30 * time.Second,
		Timeout:  5 * time.Second,
	}
}

// CircuitState is one of the three circuit breaker states.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"
	CircuitOpen     CircuitState = "OPEN"
	CircuitHalfOpen CircuitState = "HALF_OPEN"
)

// HealthState is an immutable snapshot of a backend's health counters and
// circuit state, safe to read and pass around after it is taken.
type HealthState struct {
	Healthy           bool
	LastCheck         time.Time
	ErrorCount        int
	CircuitState      CircuitState
	LastError         string
	FailureTimestamps []time.Time
}

// HealthTracker mutates and reports one backend's health state. Record*
// calls are the only writers; everything else is derived. Implementations
// must be safe for concurrent use (pkg/gateway/health.Tracker is the
// production implementation).
type HealthTracker interface {
	RecordSuccess()
	RecordFailure(message string)
	// CanAttempt reports whether a call may currently be made: true when
	// closed, false when open, and for the first caller after the open
	// timeout elapses it flips the breaker to half-open and returns true
	// while gating out concurrent half-open testers.
	CanAttempt() bool
	Snapshot() HealthState
	State() CircuitState
}

// CapabilityDescriptor is one discovered tool, resource, or prompt.
// Resources key this by URI rather than Name; Name is left empty for
// resources and the URI carried on the registry map key instead.
type CapabilityDescriptor struct {
	Name        string
	Description string
}

// RoutingDecision is the result of applying a routing strategy.
type RoutingDecision struct {
	BackendName  string
	Reason       string
	Alternatives []string
	StrategyUsed RouteStrategy
}
