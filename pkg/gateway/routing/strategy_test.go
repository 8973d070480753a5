package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/mcp-gateway/pkg/ferrors"
	"github.com/stacklok/mcp-gateway/pkg/gateway"
	"github.com/stacklok/mcp-gateway/pkg/gateway/health"
)

func backend(name string, priority int, healthy bool) *gateway.Backend {
	settings := gateway.DefaultCircuitBreakerSettings()
	tracker := health.NewTracker(settings)
	if !healthy {
		// Drive the tracker open so Backend.IsHealthy() reflects it.
		settings.FailureThreshold = 1
		tracker = health.NewTracker(settings)
		tracker.RecordFailure("seed unhealthy")
	}
	b := gateway.NewBackend(name, gateway.BackendSource{Kind: gateway.SourceHTTP, URL: "http://" + name}, name, priority, tracker)
	return b
}

func withTools(b *gateway.Backend, tools ...string) *gateway.Backend {
	set := make(map[string]gateway.CapabilityDescriptor, len(tools))
	for _, t := range tools {
		set[t] = gateway.CapabilityDescriptor{Name: t}
	}
	b.SetCapabilities(set, nil, nil)
	return b
}

func TestCapabilityStrategy_TieBreakByPriority(t *testing.T) {
	t.Parallel()

	a := withTools(backend("A", 10, true), "foo", "bar")
	b := withTools(backend("B", 5, true), "foo")

	decision, err := CapabilityStrategy{}.Route("foo", []*gateway.Backend{a, b})
	require.NoError(t, err)
	assert.Equal(t, "B", decision.BackendName)
	assert.Equal(t, []string{"A"}, decision.Alternatives)
	assert.Equal(t, gateway.StrategyCapability, decision.StrategyUsed)
}

func TestCapabilityStrategy_NoCapability(t *testing.T) {
	t.Parallel()

	a := withTools(backend("A", 10, true), "bar")
	_, err := CapabilityStrategy{}.Route("foo", []*gateway.Backend{a})
	require.Error(t, err)
	assert.True(t, ferrors.IsRouting(err))
}

func TestCapabilityStrategy_NoHealthyBackends(t *testing.T) {
	t.Parallel()

	a := withTools(backend("A", 10, false), "foo")
	_, err := CapabilityStrategy{}.Route("foo", []*gateway.Backend{a})
	require.Error(t, err)
	assert.True(t, ferrors.IsNoHealthyBackends(err))
}

func TestCapabilityStrategy_NoBackends(t *testing.T) {
	t.Parallel()

	_, err := CapabilityStrategy{}.Route("foo", nil)
	require.Error(t, err)
	assert.True(t, ferrors.IsRouting(err))
}

func TestPathStrategy_MatchesPattern(t *testing.T) {
	t.Parallel()

	a := withTools(backend("A", 10, true), "fetch_user")
	a.Routes = []gateway.Route{{Pattern: "fetch_*", Strategy: gateway.StrategyPath}}

	b := withTools(backend("B", 20, true), "fetch_user")
	b.Routes = []gateway.Route{{Pattern: "*", Strategy: gateway.StrategyPath}}

	decision, err := PathStrategy{}.Route("fetch_user", []*gateway.Backend{a, b})
	require.NoError(t, err)
	assert.Equal(t, "A", decision.BackendName)
	assert.Contains(t, decision.Reason, "fetch_*")
}

func TestPathStrategy_NoCapabilityFilter(t *testing.T) {
	t.Parallel()

	// B has not discovered "do_thing" as a tool, but its route pattern
	// still matches: path routing does not require with_tool membership.
	b := backend("B", 5, true)
	b.Routes = []gateway.Route{{Pattern: "do_*", Strategy: gateway.StrategyPath}}

	decision, err := PathStrategy{}.Route("do_thing", []*gateway.Backend{b})
	require.NoError(t, err)
	assert.Equal(t, "B", decision.BackendName)
}

func TestPathStrategy_NoMatch(t *testing.T) {
	t.Parallel()

	a := backend("A", 10, true)
	a.Routes = []gateway.Route{{Pattern: "fetch_*", Strategy: gateway.StrategyPath}}

	_, err := PathStrategy{}.Route("store_thing", []*gateway.Backend{a})
	require.Error(t, err)
	assert.True(t, ferrors.IsRouting(err))
}

func TestFallbackStrategy_PicksLowestPriority(t *testing.T) {
	t.Parallel()

	a := backend("A", 10, true)
	b := backend("B", 5, true)
	c := backend("C", 20, true)

	decision, err := FallbackStrategy{}.Route("anything", []*gateway.Backend{a, b, c})
	require.NoError(t, err)
	assert.Equal(t, "B", decision.BackendName)
	assert.Equal(t, []string{"A", "C"}, decision.Alternatives)
	assert.Contains(t, decision.Reason, "5")
}

func TestForStrategy(t *testing.T) {
	t.Parallel()

	for _, s := range []gateway.RouteStrategy{gateway.StrategyCapability, gateway.StrategyPath, gateway.StrategyFallback} {
		strat, err := ForStrategy(s)
		require.NoError(t, err)
		assert.NotNil(t, strat)
	}

	_, err := ForStrategy("bogus")
	require.Error(t, err)
}
