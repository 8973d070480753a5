// Package routing implements the three pure routing strategies: capability,
// path, and fallback. Each is a function from a tool name and a candidate
// backend slice to a single RoutingDecision. Filtering to the healthy
// subset calls Backend.IsHealthy, which may move an OPEN circuit to
// HALF_OPEN and claim its probe slot; everything else reads only.
package routing

import (
	"path"
	"sort"
	"strconv"

	"github.com/stacklok/mcp-gateway/pkg/ferrors"
	"github.com/stacklok/mcp-gateway/pkg/gateway"
)

// Strategy routes one call to a single backend given its candidate set.
type Strategy interface {
	Route(toolName string, candidates []*gateway.Backend) (*gateway.RoutingDecision, error)
}

// Registry assigns a tool name to candidates elsewhere (gateway.Registry);
// strategies only see the slice they are handed.

func healthySubset(candidates []*gateway.Backend) []*gateway.Backend {
	out := make([]*gateway.Backend, 0, len(candidates))
	for _, b := range candidates {
		if b.IsHealthy() {
			out = append(out, b)
		}
	}
	return out
}

func sortByPriority(backends []*gateway.Backend) {
	sort.SliceStable(backends, func(i, j int) bool {
		return backends[i].Priority < backends[j].Priority
	})
}

func names(backends []*gateway.Backend) []string {
	out := make([]string, len(backends))
	for i, b := range backends {
		out[i] = b.Name
	}
	return out
}

func noBackendsErr(toolName string) error {
	return ferrors.NewRoutingError("no backends available for tool: "+toolName, nil)
}

func noHealthyBackendsErr(toolName string) error {
	return ferrors.NewNoHealthyBackendsError("no healthy backends available for tool: "+toolName, nil)
}

// CapabilityStrategy routes to the lowest-priority healthy backend that
// has discovered the requested tool.
type CapabilityStrategy struct{}

func (CapabilityStrategy) Route(toolName string, candidates []*gateway.Backend) (*gateway.RoutingDecision, error) {
	if len(candidates) == 0 {
		return nil, noBackendsErr(toolName)
	}
	healthy := healthySubset(candidates)
	if len(healthy) == 0 {
		return nil, noHealthyBackendsErr(toolName)
	}

	matched := make([]*gateway.Backend, 0, len(healthy))
	for _, b := range healthy {
		if b.HasTool(toolName) {
			matched = append(matched, b)
		}
	}
	if len(matched) == 0 {
		return nil, ferrors.NewRoutingError("no backend has capability for tool: "+toolName, nil)
	}

	sortByPriority(matched)
	all := names(matched)
	return &gateway.RoutingDecision{
		BackendName:  all[0],
		Reason:       "Backend has the required tool capability",
		Alternatives: all[1:],
		StrategyUsed: gateway.StrategyCapability,
	}, nil
}

// PathStrategy routes by matching the tool name against each healthy
// candidate's declared route patterns, in declaration order, with no
// requirement that the backend has actually discovered the tool (the
// healthy candidate set here is not filtered by with_tool — see
// SPEC_FULL.md §12 for why). Every declared route is tried regardless of
// its own strategy field: a route declared "fallback_to" on a backend
// still matches here if its pattern does, same as the original's
// route_by_path.
type PathStrategy struct{}

func (PathStrategy) Route(toolName string, candidates []*gateway.Backend) (*gateway.RoutingDecision, error) {
	if len(candidates) == 0 {
		return nil, noBackendsErr(toolName)
	}
	healthy := healthySubset(candidates)
	if len(healthy) == 0 {
		return nil, noHealthyBackendsErr(toolName)
	}

	type match struct {
		backend *gateway.Backend
		pattern string
	}
	matches := make([]match, 0, len(healthy))
	for _, b := range healthy {
		for _, r := range b.Routes {
			if ok, _ := path.Match(r.Pattern, toolName); ok {
				matches = append(matches, match{backend: b, pattern: r.Pattern})
				break
			}
		}
	}
	if len(matches) == 0 {
		return nil, ferrors.NewRoutingError("no path-based route found for tool: "+toolName, nil)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].backend.Priority < matches[j].backend.Priority
	})

	alts := make([]string, 0, len(matches)-1)
	for _, m := range matches[1:] {
		alts = append(alts, m.backend.Name)
	}

	return &gateway.RoutingDecision{
		BackendName:  matches[0].backend.Name,
		Reason:       "Matched path pattern '" + matches[0].pattern + "'",
		Alternatives: alts,
		StrategyUsed: gateway.StrategyPath,
	}, nil
}

// FallbackStrategy routes to the lowest-priority healthy candidate with no
// capability filter at all.
type FallbackStrategy struct{}

func (FallbackStrategy) Route(toolName string, candidates []*gateway.Backend) (*gateway.RoutingDecision, error) {
	if len(candidates) == 0 {
		return nil, noBackendsErr(toolName)
	}
	healthy := healthySubset(candidates)
	if len(healthy) == 0 {
		return nil, noHealthyBackendsErr(toolName)
	}

	sortByPriority(healthy)
	all := names(healthy)
	selected := healthy[0]

	return &gateway.RoutingDecision{
		BackendName:  selected.Name,
		Reason:       "Using fallback chain (priority: " + strconv.Itoa(selected.Priority) + ")",
		Alternatives: all[1:],
		StrategyUsed: gateway.StrategyFallback,
	}, nil
}

// ForStrategy returns the Strategy implementation named by s.
func ForStrategy(s gateway.RouteStrategy) (Strategy, error) {
	switch s {
	case gateway.StrategyCapability:
		return CapabilityStrategy{}, nil
	case gateway.StrategyPath:
		return PathStrategy{}, nil
	case gateway.StrategyFallback:
		return FallbackStrategy{}, nil
	default:
		return nil, ferrors.NewRoutingError("unknown routing strategy: "+string(s), nil)
	}
}
