package process

import (
	"context"
	"time"

	"github.com/stacklok/mcp-gateway/pkg/gateway"
	"github.com/stacklok/mcp-gateway/pkg/glog"
)

// Monitor is the fourth cooperative task spec.md's concurrency model
// names alongside invocation, the health prober, and the config watcher:
// a periodic pass over every auto-started backend that restarts whichever
// one's supervised process has died.
type Monitor struct {
	registry   *gateway.Registry
	supervisor *Supervisor
	interval   time.Duration
}

// NewMonitor returns a Monitor polling registry every interval.
func NewMonitor(registry *gateway.Registry, supervisor *Supervisor, interval time.Duration) *Monitor {
	return &Monitor{registry: registry, supervisor: supervisor, interval: interval}
}

// Run blocks, running RunOnce every interval, until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunOnce(ctx)
		}
	}
}

// RunOnce restarts any auto-started, process-backed backend whose tracked
// pid is no longer alive. A successful restart updates the backend's
// tracked pid and records a health success; a failed restart records a
// failure and leaves the backend's stale pid in place for the next pass.
func (m *Monitor) RunOnce(ctx context.Context) {
	for _, b := range m.registry.All() {
		if !b.AutoStart || b.Source.Process == nil {
			continue
		}
		pid, tracked := b.ProcessID()
		if !tracked || m.supervisor.IsAlive(pid) {
			continue
		}

		newPid, err := m.supervisor.Restart(ctx, pid, *b.Source.Process)
		if err != nil {
			b.Health.RecordFailure(err.Error())
			glog.Warnw("failed to restart dead supervised process", "backend", b.Name, "pid", pid, "error", err)
			continue
		}
		b.SetProcessID(newPid, true)
		b.Health.RecordSuccess()
		glog.Infow("restarted dead supervised process", "backend", b.Name, "old_pid", pid, "new_pid", newPid)
	}
}
