package process

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/mcp-gateway/pkg/gateway"
	"github.com/stacklok/mcp-gateway/pkg/gateway/health"
)

func supervisedBackend(t *testing.T, name string, autoStart bool) *gateway.Backend {
	t.Helper()
	src := gateway.BackendSource{
		Kind:    gateway.SourcePackage,
		Package: name,
		Process: &gateway.ProcessConfig{Command: "sleep", Args: []string{"30"}},
	}
	b := gateway.NewBackend(name, src, name, 10, health.NewTracker(gateway.DefaultCircuitBreakerSettings()))
	b.AutoStart = autoStart
	return b
}

func TestMonitor_RestartsDeadSupervisedBackend(t *testing.T) {
	t.Parallel()

	registry := gateway.NewRegistry()
	supervisor := NewSupervisor()
	b := supervisedBackend(t, "db", true)
	require.NoError(t, registry.Add(b))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pid, err := supervisor.Start(ctx, *b.Source.Process)
	require.NoError(t, err)
	b.SetProcessID(pid, true)

	require.NoError(t, supervisor.Stop(pid))
	assert.False(t, supervisor.IsAlive(pid))

	m := NewMonitor(registry, supervisor, time.Hour)
	m.RunOnce(ctx)

	newPid, tracked := b.ProcessID()
	require.True(t, tracked)
	assert.NotEqual(t, pid, newPid)
	assert.True(t, supervisor.IsAlive(newPid))

	require.NoError(t, supervisor.Stop(newPid))
}

func TestMonitor_SkipsNonAutoStartAndUntracked(t *testing.T) {
	t.Parallel()

	registry := gateway.NewRegistry()
	supervisor := NewSupervisor()

	notAutoStart := supervisedBackend(t, "manual", false)
	require.NoError(t, registry.Add(notAutoStart))

	noPid := supervisedBackend(t, "fresh", true)
	require.NoError(t, registry.Add(noPid))

	httpBackend := gateway.NewBackend("api", gateway.BackendSource{Kind: gateway.SourceHTTP, URL: "http://x"}, "api", 10,
		health.NewTracker(gateway.DefaultCircuitBreakerSettings()))
	httpBackend.AutoStart = true
	require.NoError(t, registry.Add(httpBackend))

	m := NewMonitor(registry, supervisor, time.Hour)
	m.RunOnce(context.Background())

	_, tracked := noPid.ProcessID()
	assert.False(t, tracked)
	_, tracked = notAutoStart.ProcessID()
	assert.False(t, tracked)
}

func TestMonitor_SkipsAliveBackends(t *testing.T) {
	t.Parallel()

	registry := gateway.NewRegistry()
	supervisor := NewSupervisor()
	b := supervisedBackend(t, "db", true)
	require.NoError(t, registry.Add(b))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pid, err := supervisor.Start(ctx, *b.Source.Process)
	require.NoError(t, err)
	b.SetProcessID(pid, true)

	m := NewMonitor(registry, supervisor, time.Hour)
	m.RunOnce(ctx)

	got, tracked := b.ProcessID()
	require.True(t, tracked)
	assert.Equal(t, pid, got)

	require.NoError(t, supervisor.Stop(pid))
}
