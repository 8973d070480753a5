// Package config implements spec component J: the desired-state source
// of backend configurations, loaded from and written back to a single
// YAML file, with a change-notification stream backing the reconciler.
// Field order in BackendConfig matches spec.md §6's documented write
// order so a round-tripped file diffs cleanly.
package config

import (
	"gopkg.in/yaml.v3"

	"github.com/stacklok/mcp-gateway/pkg/gateway"
)

// RouteConfig is the YAML shape of one gateway.Route.
type RouteConfig struct {
	Pattern    string `yaml:"pattern"`
	Strategy   string `yaml:"strategy"`
	FallbackTo string `yaml:"fallback_to,omitempty"`
}

// HealthCheckConfig is the YAML shape of gateway.HealthCheckSettings.
type HealthCheckConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalSeconds int  `yaml:"interval_seconds"`
	TimeoutSeconds  int  `yaml:"timeout_seconds"`
}

// CircuitBreakerConfig is the YAML shape of gateway.CircuitBreakerSettings.
type CircuitBreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
	TimeoutSeconds   int `yaml:"timeout_seconds"`
	HalfOpenAttempts int `yaml:"half_open_attempts"`
}

// BackendConfig is one entry of the desired-state file's backends list.
// Field order is deliberate: yaml.v3 marshals struct fields in
// declaration order, and spec.md §6 requires
// name, source, namespace, priority, auto_start, port, routes,
// health_check, circuit_breaker.
type BackendConfig struct {
	Name           string               `yaml:"name"`
	Source         string               `yaml:"source,omitempty"`
	URL            string               `yaml:"url,omitempty"`
	Namespace      string               `yaml:"namespace,omitempty"`
	Priority       int                  `yaml:"priority"`
	AutoStart      bool                 `yaml:"auto_start"`
	Port           int                  `yaml:"port,omitempty"`
	Routes         []RouteConfig        `yaml:"routes,omitempty"`
	HealthCheck    HealthCheckConfig    `yaml:"health_check"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// Document is the top-level desired-state file shape.
type Document struct {
	Backends []BackendConfig `yaml:"backends"`
}

// DefaultBackendConfig returns a BackendConfig for name with spec.md §6's
// documented defaults set. Load does not apply these defaults to entries
// read from the file.
func DefaultBackendConfig(name string) BackendConfig {
	return BackendConfig{
		Name:      name,
		Priority:  10,
		AutoStart: true,
		HealthCheck: HealthCheckConfig{
			Enabled:         true,
			IntervalSeconds: 30,
			TimeoutSeconds:  5,
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 5,
			TimeoutSeconds:   60,
			HalfOpenAttempts: 3,
		},
	}
}

// SourceString returns whichever of Source/URL is populated, the raw
// string ParseSource expects.
func (b BackendConfig) SourceString() string {
	if b.Source != "" {
		return b.Source
	}
	return b.URL
}

// ToRuntimeSource resolves this entry's BackendConfig.Source/URL field
// into a gateway.BackendSource via the same grammar register_backend
// uses.
func (b BackendConfig) ToRuntimeSource() (gateway.BackendSource, error) {
	return gateway.ParseSource(b.SourceString())
}

// marshalDocument renders a Document through yaml.v3, preserving field
// declaration order.
func marshalDocument(doc Document) ([]byte, error) {
	return yaml.Marshal(doc)
}

func unmarshalDocument(data []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}
