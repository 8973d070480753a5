// Package reconcile implements spec component K: diffing a desired-state
// backend list against the live registry and driving it into the desired
// shape by delegating add/remove to the registration operations composition
// (component L) exposes, the same split reload_backends_config.py uses
// against register_backend/unregister_backend.
package reconcile

import (
	"context"
	"reflect"
	"sort"
	"sync"

	"github.com/stacklok/mcp-gateway/pkg/gateway"
	"github.com/stacklok/mcp-gateway/pkg/gateway/config"
	"github.com/stacklok/mcp-gateway/pkg/glog"
)

// RegisterFunc registers one desired backend (source parsing, process
// start, readiness wait, discovery, registry add — component L's
// RegisterBackend operation).
type RegisterFunc func(ctx context.Context, cfg config.BackendConfig) error

// UnregisterFunc tears one backend down (process stop, port release,
// client close, registry remove — component L's UnregisterBackend
// operation).
type UnregisterFunc func(ctx context.Context, name string) error

// Result reports the outcome of one reconciliation pass. Errors is
// populated per-name without aborting the rest of the pass, matching
// reload_backends_config.py's per-entry try/except.
type Result struct {
	Added   []string
	Removed []string
	Updated []string
	Errors  []string
}

// Reconciler tracks which desired-state configuration is currently live
// for each registered backend, so a later pass can tell an unchanged
// entry from one that needs a remove-then-add to pick up new settings.
type Reconciler struct {
	registry   *gateway.Registry
	register   RegisterFunc
	unregister UnregisterFunc

	mu   sync.Mutex
	live map[string]config.BackendConfig
}

// New returns a Reconciler. register/unregister are the gateway's
// composition-level registration operations; the reconciler itself never
// touches processes, ports, or clients directly.
func New(registry *gateway.Registry, register RegisterFunc, unregister UnregisterFunc) *Reconciler {
	return &Reconciler{
		registry:   registry,
		register:   register,
		unregister: unregister,
		live:       make(map[string]config.BackendConfig),
	}
}

// Reconcile drives the registry toward desired: backends present in the
// registry but absent from desired are removed, backends in desired but
// not yet registered are added, and backends in both whose configuration
// changed are removed then re-added. Per-entry failures are collected into
// Result.Errors rather than aborting the pass.
func (r *Reconciler) Reconcile(ctx context.Context, desired []config.BackendConfig) (*Result, error) {
	desiredByName := make(map[string]config.BackendConfig, len(desired))
	for _, cfg := range desired {
		desiredByName[cfg.Name] = cfg
	}

	currentNames := make(map[string]struct{})
	for _, name := range r.registry.Names() {
		currentNames[name] = struct{}{}
	}

	var toRemove, toAdd, toUpdate []string
	for name := range currentNames {
		if _, ok := desiredByName[name]; !ok {
			toRemove = append(toRemove, name)
		} else {
			toUpdate = append(toUpdate, name)
		}
	}
	for _, cfg := range desired {
		if _, ok := currentNames[cfg.Name]; !ok {
			toAdd = append(toAdd, cfg.Name)
		}
	}
	sort.Strings(toRemove)
	sort.Strings(toUpdate)

	result := &Result{}

	for _, name := range toRemove {
		if err := r.unregister(ctx, name); err != nil {
			result.Errors = append(result.Errors, "removing "+name+": "+err.Error())
			continue
		}
		r.forget(name)
		result.Removed = append(result.Removed, name)
	}

	for _, cfg := range desired {
		if !containsName(toAdd, cfg.Name) {
			continue
		}
		if err := r.register(ctx, cfg); err != nil {
			result.Errors = append(result.Errors, "adding "+cfg.Name+": "+err.Error())
			continue
		}
		r.remember(cfg)
		result.Added = append(result.Added, cfg.Name)
	}

	for _, name := range toUpdate {
		cfg := desiredByName[name]
		if r.unchanged(name, cfg) {
			continue
		}
		if err := r.unregister(ctx, name); err != nil {
			result.Errors = append(result.Errors, "updating "+name+": "+err.Error())
			continue
		}
		r.forget(name)
		if err := r.register(ctx, cfg); err != nil {
			result.Errors = append(result.Errors, "updating "+name+": "+err.Error())
			continue
		}
		r.remember(cfg)
		result.Updated = append(result.Updated, name)
	}

	glog.Infow("reconcile pass complete",
		"added", len(result.Added), "removed", len(result.Removed),
		"updated", len(result.Updated), "errors", len(result.Errors))

	return result, nil
}

func (r *Reconciler) unchanged(name string, cfg config.BackendConfig) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	prior, ok := r.live[name]
	if !ok {
		// First sight of a backend registered outside this reconciler:
		// adopt cfg as its live configuration rather than rebuilding it.
		r.live[name] = cfg
		return true
	}
	return reflect.DeepEqual(prior, cfg)
}

func (r *Reconciler) remember(cfg config.BackendConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[cfg.Name] = cfg
}

func (r *Reconciler) forget(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.live, name)
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
