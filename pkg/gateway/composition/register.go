package composition

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/stacklok/mcp-gateway/pkg/ferrors"
	"github.com/stacklok/mcp-gateway/pkg/gateway"
	"github.com/stacklok/mcp-gateway/pkg/gateway/backendclient"
	"github.com/stacklok/mcp-gateway/pkg/gateway/config"
	"github.com/stacklok/mcp-gateway/pkg/gateway/health"
	"github.com/stacklok/mcp-gateway/pkg/glog"
)

// readinessTimeout bounds how long registration waits for a freshly
// started supervised process to answer its health endpoint, matching
// register_backend.py's _wait_for_ready default.
const readinessTimeout = 30 * time.Second

// RegisterRequest mirrors register_backend's gateway-facing request
// shape (spec.md §6). Name/Namespace empty means "derive from source";
// AutoStart/HealthCheckEnabled nil means "use the documented default".
type RegisterRequest struct {
	Source             string
	Name               string
	Namespace          string
	Priority           int
	AutoStart          *bool
	HealthCheckEnabled *bool
}

// RegisterResult mirrors register_backend's response shape.
type RegisterResult struct {
	BackendName string
	Namespace   string
	URL         string
	Started     bool
	Message     string
}

// RegisterBackend parses req.Source, derives any unset name/namespace,
// allocates a port and starts a supervised process if the source needs
// one, waits for readiness, discovers capabilities, adds the backend to
// the registry, and persists it to the desired-state file.
func (g *Gateway) RegisterBackend(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	src, err := gateway.ParseSource(req.Source)
	if err != nil {
		return nil, err
	}

	namespace := req.Namespace
	if namespace == "" {
		namespace, err = gateway.DeriveNamespace(src)
		if err != nil {
			return nil, err
		}
	}
	name := req.Name
	if name == "" {
		name, err = gateway.DeriveName(src)
		if err != nil {
			return nil, err
		}
	}

	if g.registry.Exists(name) {
		return nil, ferrors.NewBackendAlreadyExistsError("backend already registered: "+name, nil)
	}

	cfg := config.DefaultBackendConfig(name)
	cfg.Namespace = namespace
	if req.Priority != 0 {
		cfg.Priority = req.Priority
	}
	if req.AutoStart != nil {
		cfg.AutoStart = *req.AutoStart
	}
	if req.HealthCheckEnabled != nil {
		cfg.HealthCheck.Enabled = *req.HealthCheckEnabled
	}
	if src.Kind == gateway.SourceHTTP {
		cfg.URL = req.Source
	} else {
		cfg.Source = req.Source
	}

	result, err := g.registerBackend(ctx, cfg, src)
	if err != nil {
		return nil, err
	}
	if err := g.configSource.Save(cfg); err != nil {
		return nil, err
	}
	return result, nil
}

// registerFromConfig is the reconciler's RegisterFunc: it re-derives the
// runtime source from a desired-state entry and registers it without
// re-saving (the entry already lives in the desired-state file).
func (g *Gateway) registerFromConfig(ctx context.Context, cfg config.BackendConfig) error {
	src, err := cfg.ToRuntimeSource()
	if err != nil {
		return err
	}
	_, err = g.registerBackend(ctx, cfg, src)
	return err
}

// registerBackend builds and registers one backend from cfg/src,
// starting a supervised process first when the source needs one. Any
// failure after a process is started or a port is allocated releases
// that resource before returning.
func (g *Gateway) registerBackend(ctx context.Context, cfg config.BackendConfig, src gateway.BackendSource) (*RegisterResult, error) {
	backend := gateway.NewBackend(cfg.Name, src, cfg.Namespace, cfg.Priority,
		health.NewTracker(toCircuitBreakerSettings(cfg.CircuitBreaker)))
	backend.Routes = toRoutes(cfg.Routes)
	backend.HealthCheck = toHealthCheckSettings(cfg.HealthCheck)
	backend.AutoStart = cfg.AutoStart

	started := false
	if src.Process != nil {
		var port int
		var err error
		if cfg.Port != 0 {
			port, err = g.portAllocator.Claim(cfg.Port)
		} else {
			port, err = g.portAllocator.Allocate()
		}
		if err != nil {
			return nil, err
		}
		processCfg := *src.Process
		processCfg.Port = port
		backend.Source.Process = &processCfg

		if cfg.AutoStart {
			pid, err := g.supervisor.Start(ctx, processCfg)
			if err != nil {
				g.portAllocator.Release(port)
				return nil, err
			}
			backend.SetProcessID(pid, true)
			started = true
			g.waitForReady(ctx, backendURL(backend.Source))
		}
	}

	result, err := g.finishRegistration(ctx, backend, started)
	if err != nil {
		if pid, tracked := backend.ProcessID(); tracked {
			_ = g.supervisor.Stop(pid)
		}
		if backend.Source.Process != nil && backend.Source.Process.Port != 0 {
			g.portAllocator.Release(backend.Source.Process.Port)
		}
		return nil, err
	}
	return result, nil
}

func (g *Gateway) finishRegistration(ctx context.Context, backend *gateway.Backend, started bool) (*RegisterResult, error) {
	url := backendURL(backend.Source)
	client, err := backendclient.New(ctx, backend.Name, url)
	if err != nil {
		return nil, err
	}
	g.setClient(backend.Name, client)

	g.discoverer.DiscoverForBackend(ctx, backend)

	if err := g.registry.Add(backend); err != nil {
		g.dropClient(backend.Name)
		return nil, err
	}

	return &RegisterResult{
		BackendName: backend.Name,
		Namespace:   backend.Namespace,
		URL:         url,
		Started:     started,
		Message:     fmt.Sprintf("Backend %q registered successfully", backend.Name),
	}, nil
}

// UnregisterBackend stops any supervised process, releases its port,
// closes and drops its client, and removes it from both the registry and
// the desired-state file.
func (g *Gateway) UnregisterBackend(_ context.Context, name string) error {
	backend, ok := g.registry.Get(name)
	if !ok {
		return ferrors.NewBackendNotFoundError("backend not found: "+name, nil)
	}

	if pid, tracked := backend.ProcessID(); tracked {
		if err := g.supervisor.Stop(pid); err != nil {
			glog.Warnw("failed to stop supervised process during unregister", "backend", name, "pid", pid, "error", err)
		}
	}
	if backend.Source.Process != nil && backend.Source.Process.Port != 0 {
		g.portAllocator.Release(backend.Source.Process.Port)
	}

	g.dropClient(name)
	g.registry.Remove(name)

	return g.configSource.Remove(name)
}

// waitForReady polls {url}/health once per second up to readinessTimeout,
// accepting any status below 500 as ready and swallowing transient
// errors. It always returns (proceeding regardless after the deadline),
// matching register_backend.py's _wait_for_ready.
func (g *Gateway) waitForReady(ctx context.Context, url string) {
	deadline := time.Now().Add(readinessTimeout)
	httpClient := &http.Client{Timeout: time.Second}

	for time.Now().Before(deadline) {
		if probeReady(ctx, httpClient, url) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func probeReady(ctx context.Context, httpClient *http.Client, url string) bool {
	reqCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close() //nolint:errcheck
	return resp.StatusCode < 500
}

func processURL(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

func toCircuitBreakerSettings(cfg config.CircuitBreakerConfig) gateway.CircuitBreakerSettings {
	return gateway.CircuitBreakerSettings{
		FailureThreshold: cfg.FailureThreshold,
		Timeout:          time.Duration(cfg.TimeoutSeconds) * time.Second,
		HalfOpenAttempts: cfg.HalfOpenAttempts,
	}
}

func toHealthCheckSettings(cfg config.HealthCheckConfig) gateway.HealthCheckSettings {
	return gateway.HealthCheckSettings{
		Enabled:  cfg.Enabled,
		Interval: time.Duration(cfg.IntervalSeconds) * time.Second,
		Timeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
}

func toRoutes(cfg []config.RouteConfig) []gateway.Route {
	out := make([]gateway.Route, 0, len(cfg))
	for _, r := range cfg {
		out = append(out, gateway.Route{
			Pattern:    r.Pattern,
			Strategy:   gateway.RouteStrategy(r.Strategy),
			FallbackTo: r.FallbackTo,
		})
	}
	return out
}
