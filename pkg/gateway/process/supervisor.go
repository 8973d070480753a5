// Package process implements spec component I: an optional supervisor
// for backends whose source resolves to a locally spawned command,
// grounded on the original reference's terminate-then-kill, tracked-pid
// map (no on-disk PID file; the gateway process owns this state for its
// own lifetime only, unlike the teacher's container PID files which
// must survive across separate CLI invocations). Liveness is reported
// through github.com/shirou/gopsutil/v4, the teacher's own dependency
// for process introspection.
package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	gopsprocess "github.com/shirou/gopsutil/v4/process"

	"github.com/stacklok/mcp-gateway/pkg/ferrors"
	"github.com/stacklok/mcp-gateway/pkg/gateway"
	"github.com/stacklok/mcp-gateway/pkg/glog"
)

// startGrace is the delay after spawn before Start returns, giving the
// child time to bind its listening port.
const startGrace = 2 * time.Second

// stopGrace is how long Stop waits for a terminated child to exit
// before escalating to a kill.
const stopGrace = 5 * time.Second

// Supervisor owns every process it starts for the life of the gateway.
type Supervisor struct {
	mu        sync.Mutex
	processes map[int]*exec.Cmd
}

// NewSupervisor returns an empty Supervisor.
func NewSupervisor() *Supervisor {
	return &Supervisor{processes: make(map[int]*exec.Cmd)}
}

// Start spawns cfg.Command with cfg.Args and merged environment
// (process env ∪ cfg.Env ∪ {PORT: cfg.Port}), tracks the resulting pid,
// waits startGrace, and returns the pid.
func (s *Supervisor) Start(ctx context.Context, cfg gateway.ProcessConfig) (int, error) {
	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	cmd.Env = mergedEnv(cfg)

	if err := cmd.Start(); err != nil {
		return 0, ferrors.NewProcessManagementError(
			fmt.Sprintf("failed to start process %s", cfg.Command), err)
	}
	if cmd.Process == nil || cmd.Process.Pid == 0 {
		return 0, ferrors.NewProcessManagementError("process started with no pid", nil)
	}
	pid := cmd.Process.Pid

	s.mu.Lock()
	s.processes[pid] = cmd
	s.mu.Unlock()

	// Reap the child asynchronously so Wait doesn't leak a zombie once
	// it exits on its own; IsAlive consults gopsutil, not cmd.Wait, so
	// this goroutine only prevents zombies, it is not the liveness path.
	go func() { _ = cmd.Wait() }()

	time.Sleep(startGrace)
	glog.Infow("started supervised process", "command", cfg.Command, "pid", pid)
	return pid, nil
}

// Stop sends SIGTERM, waits up to stopGrace, then SIGKILLs. Unknown pids
// are a no-op.
func (s *Supervisor) Stop(pid int) error {
	s.mu.Lock()
	cmd, ok := s.processes[pid]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	defer func() {
		s.mu.Lock()
		delete(s.processes, pid)
		s.mu.Unlock()
	}()

	if cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && !isAlreadyFinished(err) {
		glog.Warnw("failed to send terminate signal", "pid", pid, "error", err)
	}

	done := make(chan struct{})
	go func() {
		_, _ = gopsprocess.NewProcess(int32(pid))
		for {
			alive, err := s.isAliveLocked(pid)
			if err != nil || !alive {
				close(done)
				return
			}
			time.Sleep(100 * time.Millisecond)
		}
	}()

	select {
	case <-done:
		return nil
	case <-time.After(stopGrace):
		if err := cmd.Process.Kill(); err != nil && !isAlreadyFinished(err) {
			return ferrors.NewProcessManagementError(fmt.Sprintf("failed to kill pid %d", pid), err)
		}
		return nil
	}
}

// IsAlive reports whether pid is both tracked and, per gopsutil, still
// running.
func (s *Supervisor) IsAlive(pid int) bool {
	s.mu.Lock()
	_, tracked := s.processes[pid]
	s.mu.Unlock()
	if !tracked {
		return false
	}
	alive, err := s.isAliveLocked(pid)
	return err == nil && alive
}

func (s *Supervisor) isAliveLocked(pid int) (bool, error) {
	p, err := gopsprocess.NewProcess(int32(pid))
	if err != nil {
		return false, nil //nolint:nilerr // "not found" means not alive, not an error to propagate
	}
	running, err := p.IsRunning()
	if err != nil {
		return false, err
	}
	return running, nil
}

// Restart stops pid (if tracked) and starts a fresh process from cfg.
func (s *Supervisor) Restart(ctx context.Context, pid int, cfg gateway.ProcessConfig) (int, error) {
	if err := s.Stop(pid); err != nil {
		return 0, err
	}
	return s.Start(ctx, cfg)
}

// ShutdownAll stops every tracked process.
func (s *Supervisor) ShutdownAll() {
	s.mu.Lock()
	pids := make([]int, 0, len(s.processes))
	for pid := range s.processes {
		pids = append(pids, pid)
	}
	s.mu.Unlock()

	for _, pid := range pids {
		if err := s.Stop(pid); err != nil {
			glog.Warnw("failed to stop process during shutdown", "pid", pid, "error", err)
		}
	}
}

func mergedEnv(cfg gateway.ProcessConfig) []string {
	env := os.Environ()
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}
	if cfg.Port != 0 {
		env = append(env, fmt.Sprintf("PORT=%d", cfg.Port))
	}
	return env
}

func isAlreadyFinished(err error) bool {
	return err != nil && err.Error() == "os: process already finished"
}
