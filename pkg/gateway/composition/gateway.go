// Package composition implements spec component L: the gateway-facing
// operations (CallTool, ListBackends, GetBackendHealth, RegisterBackend,
// UnregisterBackend, ReloadConfig) and the composition root that wires
// every other component together, grounded on cmd/vmcp/app/commands.go's
// construct-registry-then-discoverer-then-server wiring style.
package composition

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/mcp-gateway/pkg/ferrors"
	"github.com/stacklok/mcp-gateway/pkg/gateway"
	"github.com/stacklok/mcp-gateway/pkg/gateway/backendclient"
	"github.com/stacklok/mcp-gateway/pkg/gateway/config"
	"github.com/stacklok/mcp-gateway/pkg/gateway/discovery"
	"github.com/stacklok/mcp-gateway/pkg/gateway/invoke"
	"github.com/stacklok/mcp-gateway/pkg/gateway/prober"
	"github.com/stacklok/mcp-gateway/pkg/gateway/process"
	"github.com/stacklok/mcp-gateway/pkg/gateway/reconcile"
	"github.com/stacklok/mcp-gateway/pkg/glog"
)

// Gateway is the composition root: it owns the registry, the client map
// (the sole owner of every backendclient.Client), and every component
// built on top of them. Nothing outside Gateway holds an owning reference
// to a client.
type Gateway struct {
	registry     *gateway.Registry
	configSource *config.Source
	env          config.EnvOverrides

	clientsMu sync.Mutex
	clients   map[string]backendclient.Client

	discoverer    *discovery.Discoverer
	invoker       *invoke.Invoker
	prober        *prober.Prober
	supervisor    *process.Supervisor
	portAllocator *process.PortAllocator
	monitor       *process.Monitor
	reconciler    *reconcile.Reconciler
}

// New builds a Gateway against an empty registry, wiring every component
// per env's MCP_* overrides.
func New(configSource *config.Source, env config.EnvOverrides) *Gateway {
	g := &Gateway{
		registry:      gateway.NewRegistry(),
		configSource:  configSource,
		env:           env,
		clients:       make(map[string]backendclient.Client),
		supervisor:    process.NewSupervisor(),
		portAllocator: process.NewPortAllocator(0, 0),
	}

	g.discoverer = discovery.NewDiscoverer(g.clientFor, env.CacheTTL)
	g.invoker = invoke.New(g.registry, g.clientFor, invoke.RetrySettings{
		MaxAttempts:       env.MaxRetries,
		InitialBackoff:    time.Second,
		BackoffMultiplier: env.RetryBackoffSeconds,
		MaxBackoff:        env.MaxBackoff,
	})
	g.prober = prober.New(g.registry, g.clientFor, g.discoverer, env.HealthCheckInterval)
	g.monitor = process.NewMonitor(g.registry, g.supervisor, env.HealthCheckInterval)
	g.reconciler = reconcile.New(g.registry, g.registerFromConfig, g.UnregisterBackend)

	return g
}

// clientFor is the one place every component resolves a backend's live
// client, satisfying discovery.ClientFor, prober.ClientFor, and
// invoke.ClientFor with a single closure over the owned client map.
func (g *Gateway) clientFor(backendName string) (backendclient.Client, bool) {
	g.clientsMu.Lock()
	defer g.clientsMu.Unlock()
	c, ok := g.clients[backendName]
	return c, ok
}

func (g *Gateway) setClient(backendName string, c backendclient.Client) {
	g.clientsMu.Lock()
	defer g.clientsMu.Unlock()
	g.clients[backendName] = c
}

func (g *Gateway) dropClient(backendName string) {
	g.clientsMu.Lock()
	c, ok := g.clients[backendName]
	delete(g.clients, backendName)
	g.clientsMu.Unlock()
	if ok {
		if err := c.Close(); err != nil {
			glog.Warnw("failed to close backend client", "backend", backendName, "error", err)
		}
	}
}

// Run starts the cooperative background tasks spec.md §5 names — the
// health prober, the process-supervisor monitor, and the config
// watcher-driven reconciler — and blocks until ctx is canceled.
func (g *Gateway) Run(ctx context.Context) error {
	ch := make(chan []config.BackendConfig, 1)
	if err := g.configSource.Watch(ctx, ch); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); g.prober.Run(ctx) }()
	go func() { defer wg.Done(); g.monitor.Run(ctx) }()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			g.supervisor.ShutdownAll()
			return nil
		case desired, ok := <-ch:
			if !ok {
				continue
			}
			correlationID := uuid.New().String()
			result, err := g.reconciler.Reconcile(ctx, desired)
			if err != nil {
				glog.Warnw("reconcile pass failed", "correlation_id", correlationID, "error", err)
				continue
			}
			glog.Infow("reconcile pass applied", "correlation_id", correlationID,
				"added", result.Added, "removed", result.Removed, "updated", result.Updated, "errors", result.Errors)
		}
	}
}

// ReloadConfig re-reads the desired-state file and reconciles the
// registry against it immediately, independent of the background watch
// loop Run drives — the explicit counterpart spec.md §6 names alongside
// the five backend-scoped operations.
func (g *Gateway) ReloadConfig(ctx context.Context) (*reconcile.Result, error) {
	desired, err := g.configSource.Load()
	if err != nil {
		return nil, err
	}
	correlationID := uuid.New().String()
	result, err := g.reconciler.Reconcile(ctx, desired)
	if err != nil {
		glog.Warnw("manual reload failed", "correlation_id", correlationID, "error", err)
		return nil, err
	}
	glog.Infow("manual reload applied", "correlation_id", correlationID,
		"added", result.Added, "removed", result.Removed, "updated", result.Updated, "errors", result.Errors)
	return result, nil
}

// BackendSummary is one entry of ListBackends' result.
type BackendSummary struct {
	Name         string
	URL          string
	Namespace    string
	Priority     int
	Healthy      bool
	CircuitState gateway.CircuitState
	ErrorCount   int
}

// ListBackends reports summary state for every registered backend.
func (g *Gateway) ListBackends() []BackendSummary {
	backends := g.registry.All()
	out := make([]BackendSummary, 0, len(backends))
	for _, b := range backends {
		snap := b.Health.Snapshot()
		out = append(out, BackendSummary{
			Name:         b.Name,
			URL:          backendURL(b.Source),
			Namespace:    b.Namespace,
			Priority:     b.Priority,
			Healthy:      snap.Healthy && snap.CircuitState != gateway.CircuitOpen,
			CircuitState: snap.CircuitState,
			ErrorCount:   snap.ErrorCount,
		})
	}
	return out
}

// BackendHealth is GetBackendHealth's result shape.
type BackendHealth struct {
	Name         string
	Healthy      bool
	CircuitState gateway.CircuitState
	ErrorCount   int
	LastError    string
}

// GetBackendHealth reports one backend's health snapshot.
func (g *Gateway) GetBackendHealth(name string) (*BackendHealth, error) {
	b, ok := g.registry.Get(name)
	if !ok {
		return nil, ferrors.NewBackendNotFoundError("backend not found: "+name, nil)
	}
	snap := b.Health.Snapshot()
	return &BackendHealth{
		Name:         b.Name,
		Healthy:      snap.Healthy && snap.CircuitState != gateway.CircuitOpen,
		CircuitState: snap.CircuitState,
		ErrorCount:   snap.ErrorCount,
		LastError:    snap.LastError,
	}, nil
}

// CallTool implements the gateway's single public call path: select a
// backend via the requested (or default) routing strategy, invoke it
// with retry, and record the outcome. tool_name is the backend's own
// capability name, never a namespaced proxied name (spec.md §4.G) —
// namespacing is a presentation-layer concern of whatever surface lists
// capabilities to a client, not of dispatch.
func (g *Gateway) CallTool(ctx context.Context, toolName string, arguments map[string]any, strategy gateway.RouteStrategy) (*invoke.Result, error) {
	if strategy == "" {
		strategy = g.env.DefaultStrategy
	}
	return g.invoker.Call(ctx, toolName, arguments, strategy)
}

// ProxiedCapability is one entry of ListCapabilities' result: a backend
// capability under the name a client-facing surface would expose it as.
type ProxiedCapability struct {
	Kind        string // "tool", "resource", or "prompt"
	ProxiedName string
	BackendName string
}

// ListCapabilities enumerates every discovered capability across every
// registered backend under its proxied name, honoring MCP_ENABLE_NAMESPACES
// the same way register_proxied_tools/resources/prompts does when an
// embedding server surface asks the gateway what it can expose.
func (g *Gateway) ListCapabilities() []ProxiedCapability {
	var out []ProxiedCapability
	for _, b := range g.registry.All() {
		for name := range b.Tools() {
			out = append(out, ProxiedCapability{Kind: "tool", ProxiedName: g.proxiedToolName(b, name), BackendName: b.Name})
		}
		for uri := range b.Resources() {
			out = append(out, ProxiedCapability{Kind: "resource", ProxiedName: g.proxiedResourceURI(b, uri), BackendName: b.Name})
		}
		for name := range b.Prompts() {
			out = append(out, ProxiedCapability{Kind: "prompt", ProxiedName: g.proxiedToolName(b, name), BackendName: b.Name})
		}
	}
	return out
}

func (g *Gateway) proxiedToolName(b *gateway.Backend, originalName string) string {
	if !g.env.EnableNamespaces {
		return originalName
	}
	return gateway.NamespacedToolName(b.Namespace, originalName)
}

func (g *Gateway) proxiedResourceURI(b *gateway.Backend, originalURI string) string {
	if !g.env.EnableNamespaces {
		return originalURI
	}
	return gateway.NamespacedResourceURI(b.Namespace, originalURI)
}

func backendURL(src gateway.BackendSource) string {
	if src.Kind == gateway.SourceHTTP {
		return src.URL
	}
	if src.Process != nil && src.Process.Port != 0 {
		return processURL(src.Process.Port)
	}
	return ""
}
