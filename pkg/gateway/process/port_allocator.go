package process

import (
	"fmt"
	"net"
	"sync"

	"github.com/stacklok/mcp-gateway/pkg/ferrors"
)

// defaultStartPort and defaultEndPort bound the allocatable range when
// none is configured, matching the reference allocator's defaults.
const (
	defaultStartPort = 8100
	defaultEndPort   = 8200
)

// PortAllocator hands out loopback ports to supervised child processes
// from a bounded range, probing availability with an actual bind rather
// than trusting a free-list alone.
type PortAllocator struct {
	mu         sync.Mutex
	start, end int
	allocated  map[int]struct{}
}

// NewPortAllocator returns an allocator over [start, end). A zero value
// for either bound falls back to the default 8100..8200 range.
func NewPortAllocator(start, end int) *PortAllocator {
	if start == 0 {
		start = defaultStartPort
	}
	if end == 0 {
		end = defaultEndPort
	}
	return &PortAllocator{start: start, end: end, allocated: make(map[int]struct{})}
}

// Allocate scans the range in order, skipping already-allocated ports,
// and claims the first one that successfully binds on loopback.
func (a *PortAllocator) Allocate() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for port := a.start; port < a.end; port++ {
		if _, taken := a.allocated[port]; taken {
			continue
		}
		if isAvailable(port) {
			a.allocated[port] = struct{}{}
			return port, nil
		}
	}
	return 0, ferrors.NewProcessManagementError(
		fmt.Sprintf("no available ports in range [%d, %d)", a.start, a.end), nil)
}

// Claim reserves a caller-specified port instead of scanning the range,
// for operators who pinned a port in the desired-state configuration
// (spec.md §6's optional `port` field). It fails ProcessManagement if
// the port is already tracked as allocated or fails the loopback bind
// probe.
func (a *PortAllocator) Claim(port int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, taken := a.allocated[port]; taken {
		return 0, ferrors.NewProcessManagementError(
			fmt.Sprintf("port %d is already allocated", port), nil)
	}
	if !isAvailable(port) {
		return 0, ferrors.NewProcessManagementError(
			fmt.Sprintf("port %d is not available", port), nil)
	}
	a.allocated[port] = struct{}{}
	return port, nil
}

// Release returns port to the pool. Releasing an unallocated port is a
// no-op.
func (a *PortAllocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.allocated, port)
}

func isAvailable(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}
