package prober

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/mcp-gateway/pkg/gateway"
	"github.com/stacklok/mcp-gateway/pkg/gateway/backendclient"
	"github.com/stacklok/mcp-gateway/pkg/gateway/health"
)

type pingClient struct {
	mu  sync.Mutex
	ok  bool
	hit int
}

func (c *pingClient) Ping(context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hit++
	return c.ok
}
func (c *pingClient) ListTools(context.Context) ([]gateway.CapabilityDescriptor, error) {
	return nil, nil
}
func (c *pingClient) ListResources(context.Context) (map[string]gateway.CapabilityDescriptor, error) {
	return nil, nil
}
func (c *pingClient) ListPrompts(context.Context) ([]gateway.CapabilityDescriptor, error) {
	return nil, nil
}
func (c *pingClient) CallTool(context.Context, string, map[string]any) (any, error) {
	return nil, nil
}
func (c *pingClient) GetResource(context.Context, string) (string, error) { return "", nil }
func (c *pingClient) Close() error                                       { return nil }

func (c *pingClient) hits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hit
}

type fakeRefresher struct {
	needsRefresh bool
	discovered   int32
}

func (f *fakeRefresher) NeedsRefresh(time.Time) bool { return f.needsRefresh }
func (f *fakeRefresher) DiscoverAll(context.Context, []*gateway.Backend) {
	atomic.AddInt32(&f.discovered, 1)
}

func newProbedBackend(t *testing.T, r *gateway.Registry, name string, enabled bool) *gateway.Backend {
	t.Helper()
	b := gateway.NewBackend(name, gateway.BackendSource{Kind: gateway.SourceHTTP, URL: "http://" + name}, name, 10,
		health.NewTracker(gateway.DefaultCircuitBreakerSettings()))
	b.HealthCheck = gateway.HealthCheckSettings{Enabled: enabled, Interval: time.Second, Timeout: time.Second}
	require.NoError(t, r.Add(b))
	return b
}

func TestRunOnce_RecordsSuccessAndFailure(t *testing.T) {
	t.Parallel()

	r := gateway.NewRegistry()
	up := newProbedBackend(t, r, "up", true)
	down := newProbedBackend(t, r, "down", true)

	upClient := &pingClient{ok: true}
	downClient := &pingClient{ok: false}
	clientFor := func(name string) (backendclient.Client, bool) {
		switch name {
		case "up":
			return upClient, true
		case "down":
			return downClient, true
		default:
			return nil, false
		}
	}

	p := New(r, clientFor, &fakeRefresher{}, time.Hour)
	p.RunOnce(context.Background())

	assert.True(t, up.Health.Snapshot().Healthy)
	assert.False(t, down.Health.Snapshot().Healthy)
	assert.Equal(t, 1, upClient.hits())
	assert.Equal(t, 1, downClient.hits())
}

func TestRunOnce_SkipsDisabledBackends(t *testing.T) {
	t.Parallel()

	r := gateway.NewRegistry()
	newProbedBackend(t, r, "disabled", false)
	client := &pingClient{ok: false}

	p := New(r, func(string) (backendclient.Client, bool) { return client, true }, &fakeRefresher{}, time.Hour)
	p.RunOnce(context.Background())

	assert.Equal(t, 0, client.hits())
}

func TestRunOnce_SkipsOpenCircuitUntilTimeoutElapses(t *testing.T) {
	t.Parallel()

	r := gateway.NewRegistry()
	cb := gateway.CircuitBreakerSettings{FailureThreshold: 1, Timeout: 30 * time.Millisecond, HalfOpenAttempts: 1}
	b := gateway.NewBackend("flaky", gateway.BackendSource{Kind: gateway.SourceHTTP, URL: "http://flaky"}, "flaky", 10, health.NewTracker(cb))
	b.HealthCheck = gateway.HealthCheckSettings{Enabled: true, Timeout: time.Second}
	require.NoError(t, r.Add(b))
	b.Health.RecordFailure("seed open")
	require.Equal(t, gateway.CircuitOpen, b.Health.State())

	client := &pingClient{ok: true}
	p := New(r, func(string) (backendclient.Client, bool) { return client, true }, &fakeRefresher{}, time.Hour)

	p.RunOnce(context.Background())
	assert.Equal(t, 0, client.hits(), "open circuit before timeout must not be probed")

	time.Sleep(40 * time.Millisecond)
	p.RunOnce(context.Background())
	assert.Equal(t, 1, client.hits(), "half-open probe must be issued exactly once the timeout elapses")
	assert.Equal(t, gateway.CircuitClosed, b.Health.State())
}

func TestRunOnce_TriggersDiscoveryWhenTTLExpired(t *testing.T) {
	t.Parallel()

	r := gateway.NewRegistry()
	newProbedBackend(t, r, "a", true)
	client := &pingClient{ok: true}
	refresher := &fakeRefresher{needsRefresh: true}

	p := New(r, func(string) (backendclient.Client, bool) { return client, true }, refresher, time.Hour)
	p.RunOnce(context.Background())

	assert.Equal(t, int32(1), atomic.LoadInt32(&refresher.discovered))
}

func TestRunOnce_NoClientRecordsFailure(t *testing.T) {
	t.Parallel()

	r := gateway.NewRegistry()
	b := newProbedBackend(t, r, "a", true)

	p := New(r, func(string) (backendclient.Client, bool) { return nil, false }, &fakeRefresher{}, time.Hour)
	p.RunOnce(context.Background())

	assert.False(t, b.Health.Snapshot().Healthy)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	r := gateway.NewRegistry()
	p := New(r, func(string) (backendclient.Client, bool) { return nil, false }, &fakeRefresher{}, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
