// Package prober implements spec component H: a single cooperative task
// per gateway that periodically pings every enabled backend and folds
// the result into its health state, the same ticker-plus-context
// shape the teacher's health monitor uses for its own periodic loop.
package prober

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stacklok/mcp-gateway/pkg/gateway"
	"github.com/stacklok/mcp-gateway/pkg/gateway/backendclient"
	"github.com/stacklok/mcp-gateway/pkg/glog"
)

// maxConcurrentProbes bounds fan-out the same way discovery does.
const maxConcurrentProbes = 8

// Refresher is discovery's DiscoverAll/NeedsRefresh surface, isolated
// here so prober does not import the discovery package directly for
// anything but this pair of calls.
type Refresher interface {
	NeedsRefresh(now time.Time) bool
	DiscoverAll(ctx context.Context, backends []*gateway.Backend)
}

// ClientFor resolves the live client for a backend name.
type ClientFor func(backendName string) (backendclient.Client, bool)

// Prober runs the periodic probe loop.
type Prober struct {
	registry  *gateway.Registry
	clientFor ClientFor
	refresher Refresher
	interval  time.Duration
}

// New returns a Prober. interval is the global check_interval; per-backend
// HealthCheckSettings.Enabled still gates whether a given backend is
// probed at all.
func New(registry *gateway.Registry, clientFor ClientFor, refresher Refresher, interval time.Duration) *Prober {
	return &Prober{registry: registry, clientFor: clientFor, refresher: refresher, interval: interval}
}

// Run blocks, probing every interval until ctx is canceled.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce probes every enabled backend once, then refreshes discovery if
// the cache TTL has expired.
func (p *Prober) RunOnce(ctx context.Context) {
	backends := p.registry.All()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentProbes)
	for _, b := range backends {
		b := b
		if !b.HealthCheck.Enabled {
			continue
		}
		g.Go(func() error {
			p.probeBackend(gctx, b)
			return nil
		})
	}
	_ = g.Wait()

	if p.refresher.NeedsRefresh(time.Now()) {
		p.refresher.DiscoverAll(ctx, backends)
	}
}

// probeBackend pings one backend and records the outcome. If the circuit
// is open and its recovery timeout has not yet elapsed, CanAttempt
// reports false and no probe is issued at all — the breaker's own clock
// decides when the next half-open test is due, the prober just supplies
// the periodic trigger.
func (p *Prober) probeBackend(ctx context.Context, b *gateway.Backend) {
	if !b.Health.CanAttempt() {
		return
	}

	client, ok := p.clientFor(b.Name)
	if !ok {
		b.Health.RecordFailure("no client available for backend " + b.Name)
		return
	}

	timeout := b.HealthCheck.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if client.Ping(pingCtx) {
		b.Health.RecordSuccess()
		return
	}
	glog.Warnw("health probe failed", "backend", b.Name)
	b.Health.RecordFailure("health probe failed")
}
