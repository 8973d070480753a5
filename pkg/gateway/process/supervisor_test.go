package process

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/mcp-gateway/pkg/ferrors"
	"github.com/stacklok/mcp-gateway/pkg/gateway"
)

func TestSupervisor_StartStopLifecycle(t *testing.T) {
	t.Parallel()

	s := NewSupervisor()
	cfg := gateway.ProcessConfig{Command: "sleep", Args: []string{"30"}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pid, err := s.Start(ctx, cfg)
	require.NoError(t, err)
	assert.NotZero(t, pid)
	assert.True(t, s.IsAlive(pid))

	require.NoError(t, s.Stop(pid))
	assert.False(t, s.IsAlive(pid))

	// idempotent
	require.NoError(t, s.Stop(pid))
}

func TestSupervisor_StartUnknownCommandFails(t *testing.T) {
	t.Parallel()

	s := NewSupervisor()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := s.Start(ctx, gateway.ProcessConfig{Command: "definitely-not-a-real-binary-xyz"})
	require.Error(t, err)
	assert.True(t, ferrors.IsProcessManagement(err))
}

func TestSupervisor_IsAliveUnknownPid(t *testing.T) {
	t.Parallel()

	s := NewSupervisor()
	assert.False(t, s.IsAlive(999999))
}

func TestSupervisor_Restart(t *testing.T) {
	t.Parallel()

	s := NewSupervisor()
	cfg := gateway.ProcessConfig{Command: "sleep", Args: []string{"30"}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pid1, err := s.Start(ctx, cfg)
	require.NoError(t, err)

	pid2, err := s.Restart(ctx, pid1, cfg)
	require.NoError(t, err)
	assert.NotEqual(t, pid1, pid2)
	assert.False(t, s.IsAlive(pid1))
	assert.True(t, s.IsAlive(pid2))

	require.NoError(t, s.Stop(pid2))
}

func TestSupervisor_ShutdownAll(t *testing.T) {
	t.Parallel()

	s := NewSupervisor()
	cfg := gateway.ProcessConfig{Command: "sleep", Args: []string{"30"}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pid1, err := s.Start(ctx, cfg)
	require.NoError(t, err)
	pid2, err := s.Start(ctx, cfg)
	require.NoError(t, err)

	s.ShutdownAll()
	assert.False(t, s.IsAlive(pid1))
	assert.False(t, s.IsAlive(pid2))
}

func TestMergedEnv_IncludesPort(t *testing.T) {
	t.Parallel()

	env := mergedEnv(gateway.ProcessConfig{Env: map[string]string{"FOO": "bar"}, Port: 8123})
	assert.Contains(t, env, "FOO=bar")
	assert.Contains(t, env, "PORT=8123")
}
