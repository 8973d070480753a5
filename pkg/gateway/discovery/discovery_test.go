package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/mcp-gateway/pkg/gateway"
	"github.com/stacklok/mcp-gateway/pkg/gateway/backendclient"
	"github.com/stacklok/mcp-gateway/pkg/gateway/health"
)

type fakeClient struct {
	tools     []gateway.CapabilityDescriptor
	resources map[string]gateway.CapabilityDescriptor
	prompts   []gateway.CapabilityDescriptor
	err       error
}

func (f *fakeClient) ListTools(context.Context) ([]gateway.CapabilityDescriptor, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tools, nil
}
func (f *fakeClient) ListResources(context.Context) (map[string]gateway.CapabilityDescriptor, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.resources, nil
}
func (f *fakeClient) ListPrompts(context.Context) ([]gateway.CapabilityDescriptor, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.prompts, nil
}
func (f *fakeClient) CallTool(context.Context, string, map[string]any) (any, error) { return nil, nil }
func (f *fakeClient) GetResource(context.Context, string) (string, error)           { return "", nil }
func (f *fakeClient) Ping(context.Context) bool                                     { return f.err == nil }
func (f *fakeClient) Close() error                                                  { return nil }

func newBackend(t *testing.T, name string) *gateway.Backend {
	t.Helper()
	return gateway.NewBackend(name, gateway.BackendSource{Kind: gateway.SourceHTTP, URL: "http://" + name}, name, 10,
		health.NewTracker(gateway.DefaultCircuitBreakerSettings()))
}

func TestDiscoverForBackend_Success(t *testing.T) {
	t.Parallel()

	b := newBackend(t, "a")
	client := &fakeClient{
		tools:     []gateway.CapabilityDescriptor{{Name: "foo"}},
		resources: map[string]gateway.CapabilityDescriptor{"file:///x": {Description: "x"}},
		prompts:   []gateway.CapabilityDescriptor{{Name: "greet"}},
	}

	d := NewDiscoverer(func(name string) (backendclient.Client, bool) {
		if name == "a" {
			return client, true
		}
		return nil, false
	}, time.Minute)

	d.DiscoverForBackend(context.Background(), b)

	assert.True(t, b.HasTool("foo"))
	assert.Len(t, b.Resources(), 1)
	assert.Len(t, b.Prompts(), 1)
	assert.True(t, b.Health.Snapshot().Healthy)
}

func TestDiscoverForBackend_FailureRecordsButKeepsBackend(t *testing.T) {
	t.Parallel()

	b := newBackend(t, "a")
	b.SetCapabilities(map[string]gateway.CapabilityDescriptor{"stale": {Name: "stale"}}, nil, nil)

	client := &fakeClient{err: errors.New("boom")}
	d := NewDiscoverer(func(string) (backendclient.Client, bool) { return client, true }, time.Minute)

	d.DiscoverForBackend(context.Background(), b)

	assert.False(t, b.Health.Snapshot().Healthy)
	assert.True(t, b.HasTool("stale"), "stale capabilities must survive a failed discovery pass")
}

func TestDiscoverForBackend_NoClient(t *testing.T) {
	t.Parallel()

	b := newBackend(t, "a")
	d := NewDiscoverer(func(string) (backendclient.Client, bool) { return nil, false }, time.Minute)

	d.DiscoverForBackend(context.Background(), b)
	assert.False(t, b.Health.Snapshot().Healthy)
}

func TestDiscoverAll_FansOutAndAdvancesClock(t *testing.T) {
	t.Parallel()

	backends := []*gateway.Backend{newBackend(t, "a"), newBackend(t, "b"), newBackend(t, "c")}
	client := &fakeClient{tools: []gateway.CapabilityDescriptor{{Name: "foo"}}}

	d := NewDiscoverer(func(string) (backendclient.Client, bool) { return client, true }, time.Minute)

	require.True(t, d.NeedsRefresh(time.Now()))
	d.DiscoverAll(context.Background(), backends)

	for _, b := range backends {
		assert.True(t, b.HasTool("foo"))
	}
	assert.False(t, d.NeedsRefresh(time.Now()))
}

func TestNeedsRefresh_ZeroTTLNeverRefreshes(t *testing.T) {
	t.Parallel()

	d := NewDiscoverer(func(string) (backendclient.Client, bool) { return nil, false }, 0)
	assert.False(t, d.NeedsRefresh(time.Now()))
}
