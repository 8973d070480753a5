// Package discovery implements spec component F: populating each
// backend's tools/resources/prompts via the Backend Client Port, with
// bounded concurrent fan-out across backends the way the teacher's
// aggregator-shaped code uses golang.org/x/sync/errgroup rather than an
// unbounded goroutine-per-backend loop.
package discovery

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stacklok/mcp-gateway/pkg/gateway"
	"github.com/stacklok/mcp-gateway/pkg/gateway/backendclient"
	"github.com/stacklok/mcp-gateway/pkg/glog"
)

// maxConcurrentDiscovery bounds fan-out so a registry with many backends
// doesn't open hundreds of simultaneous connections.
const maxConcurrentDiscovery = 8

// ClientFor resolves the live client for a backend name. Discovery never
// creates or closes clients itself; that is the client map's job (see
// pkg/gateway/composition).
type ClientFor func(backendName string) (backendclient.Client, bool)

// Discoverer runs discovery passes and tracks the cache-TTL clock that the
// health prober consults to decide whether a fresh pass is due.
type Discoverer struct {
	clientFor ClientFor
	cacheTTL  time.Duration

	mu          sync.Mutex
	lastRefresh time.Time
}

// NewDiscoverer returns a Discoverer. cacheTTL of zero disables
// NeedsRefresh (it always reports false; discovery then only ever runs
// when explicitly invoked, e.g. during registration).
func NewDiscoverer(clientFor ClientFor, cacheTTL time.Duration) *Discoverer {
	return &Discoverer{clientFor: clientFor, cacheTTL: cacheTTL}
}

// NeedsRefresh reports whether now-lastRefresh exceeds cacheTTL.
func (d *Discoverer) NeedsRefresh(now time.Time) bool {
	if d.cacheTTL <= 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastRefresh.IsZero() {
		return true
	}
	return now.Sub(d.lastRefresh) > d.cacheTTL
}

// DiscoverAll runs DiscoverForBackend for every backend in the registry,
// bounded to maxConcurrentDiscovery concurrently, and advances the
// last-refresh clock once the pass completes.
func (d *Discoverer) DiscoverAll(ctx context.Context, backends []*gateway.Backend) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentDiscovery)

	for _, b := range backends {
		b := b
		g.Go(func() error {
			d.DiscoverForBackend(gctx, b)
			return nil
		})
	}
	// Discovery failures are recorded into each backend's health state,
	// never propagated as a pass-wide error (spec §4.F / §7: discovery
	// failures never remove a backend).
	_ = g.Wait()

	d.mu.Lock()
	d.lastRefresh = time.Now()
	d.mu.Unlock()
}

// DiscoverForBackend queries one backend's tools/resources/prompts and
// replaces its capability sets atomically. On success it records a
// success into the backend's health state; on failure it records the
// failure and leaves the backend's existing (possibly stale) capabilities
// untouched — the backend is never removed from the registry by
// discovery.
func (d *Discoverer) DiscoverForBackend(ctx context.Context, b *gateway.Backend) {
	client, ok := d.clientFor(b.Name)
	if !ok {
		b.Health.RecordFailure("no client available for backend " + b.Name)
		return
	}

	tools, err := client.ListTools(ctx)
	if err != nil {
		b.Health.RecordFailure(err.Error())
		return
	}
	resources, err := client.ListResources(ctx)
	if err != nil {
		b.Health.RecordFailure(err.Error())
		return
	}
	prompts, err := client.ListPrompts(ctx)
	if err != nil {
		b.Health.RecordFailure(err.Error())
		return
	}

	toolSet := make(map[string]gateway.CapabilityDescriptor, len(tools))
	for _, t := range tools {
		toolSet[t.Name] = t
	}
	promptSet := make(map[string]gateway.CapabilityDescriptor, len(prompts))
	for _, p := range prompts {
		promptSet[p.Name] = p
	}

	b.SetCapabilities(toolSet, resources, promptSet)
	b.Health.RecordSuccess()
	glog.Debugw("discovered capabilities", "backend", b.Name, "tools", len(toolSet), "resources", len(resources), "prompts", len(promptSet))
}
