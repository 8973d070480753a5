// Package invoke implements spec component G: selecting a backend via a
// routing strategy, calling it through the Backend Client Port, and
// retrying transient failures with a capped exponential backoff before
// giving up. Backoff timing is computed by
// github.com/cenkalti/backoff/v5, the same module both the teacher and
// zalando-skipper depend on for this exact shape.
package invoke

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/stacklok/mcp-gateway/pkg/ferrors"
	"github.com/stacklok/mcp-gateway/pkg/gateway"
	"github.com/stacklok/mcp-gateway/pkg/gateway/backendclient"
	"github.com/stacklok/mcp-gateway/pkg/gateway/routing"
	"github.com/stacklok/mcp-gateway/pkg/glog"
)

// Result is returned by a successful Call.
type Result struct {
	Value       any
	BackendName string
	Strategy    gateway.RouteStrategy
}

// RetrySettings bounds the retry loop. Defaults mirror spec §4.G.
type RetrySettings struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

// DefaultRetrySettings returns spec §4.G's documented defaults.
func DefaultRetrySettings() RetrySettings {
	return RetrySettings{
		MaxAttempts:       3,
		InitialBackoff:    time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        10 * time.Second,
	}
}

// ClientFor resolves the live client for a backend name.
type ClientFor func(backendName string) (backendclient.Client, bool)

// Invoker implements routed invocation for a single gateway instance.
type Invoker struct {
	registry  *gateway.Registry
	clientFor ClientFor
	retry     RetrySettings
}

// New returns an Invoker. registry and clientFor are borrowed, not owned
// (per the composition root's ownership model).
func New(registry *gateway.Registry, clientFor ClientFor, retry RetrySettings) *Invoker {
	return &Invoker{registry: registry, clientFor: clientFor, retry: retry}
}

// Call implements spec §4.G's algorithm end to end. strategy defaults to
// StrategyCapability when empty.
func (inv *Invoker) Call(ctx context.Context, toolName string, arguments map[string]any, strategy gateway.RouteStrategy) (*Result, error) {
	if strategy == "" {
		strategy = gateway.StrategyCapability
	}

	candidates := inv.registry.WithTool(toolName)
	strat, err := routing.ForStrategy(strategy)
	if err != nil {
		return nil, err
	}
	decision, err := strat.Route(toolName, candidates)
	if err != nil {
		return nil, err
	}

	backend, ok := inv.registry.Get(decision.BackendName)
	if !ok {
		return nil, ferrors.NewBackendNotFoundError("backend vanished after routing: "+decision.BackendName, nil)
	}
	// Routing already consulted backend.Health.CanAttempt() when building
	// the healthy candidate set, so a selected backend is always either
	// CLOSED or the single admitted HALF_OPEN probe. A second, separate
	// CanAttempt check here would consume that one admitted probe slot
	// without ever calling the backend.
	if backend.Health.State() == gateway.CircuitOpen {
		return nil, ferrors.NewCircuitBreakerOpenError("circuit open for backend "+backend.Name, nil)
	}

	client, ok := inv.clientFor(backend.Name)
	if !ok {
		return nil, ferrors.NewBackendNotFoundError("no client for backend "+backend.Name, nil)
	}

	value, err := inv.callWithRetry(ctx, backend, client, toolName, arguments)
	if err != nil {
		return nil, err
	}
	return &Result{Value: value, BackendName: backend.Name, Strategy: strategy}, nil
}

func (inv *Invoker) callWithRetry(ctx context.Context, backend *gateway.Backend, client backendclient.Client, toolName string, arguments map[string]any) (any, error) {
	maxAttempts := inv.retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = inv.retry.InitialBackoff
	b.Multiplier = inv.retry.BackoffMultiplier
	b.MaxInterval = inv.retry.MaxBackoff

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		value, err := client.CallTool(ctx, toolName, arguments)
		if err == nil {
			backend.Health.RecordSuccess()
			return value, nil
		}

		lastErr = err
		backend.Health.RecordFailure(err.Error())
		glog.Warnw("backend call failed", "backend", backend.Name, "tool", toolName, "attempt", attempt, "error", err)

		if attempt == maxAttempts {
			break
		}

		wait := b.NextBackOff()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, ferrors.NewTransportError(
		fmt.Sprintf("call_tool %q failed on backend %s after %d attempts", toolName, backend.Name, maxAttempts), lastErr)
}
