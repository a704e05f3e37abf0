package launcher

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/denix0/applaunchd/internal/domain/catalog"
	"github.com/denix0/applaunchd/internal/infrastructure/logging"
)

// ProcessRuntime is the runtime handle for a directly spawned application.
type ProcessRuntime struct {
	Pid int
	cmd *exec.Cmd
}

// Release implements catalog.Runtime. The wait goroutine reaps the child,
// so there is nothing left to deregister here.
func (r *ProcessRuntime) Release() {}

// processBackend spawns applications as child processes. It has no
// readiness signal distinct from "process exists", so a successful spawn
// is immediately reported as started.
type processBackend struct {
	launcher *Launcher
	log      *logging.Logger
}

func newProcessBackend(l *Launcher, log *logging.Logger) *processBackend {
	return &processBackend{launcher: l, log: log}
}

func (b *processBackend) start(_ context.Context, rec *catalog.Record) (bool, error) {
	args := strings.Fields(rec.Command)
	if len(args) == 0 {
		return false, fmt.Errorf("%w: empty command line for %q", ErrSpawnFailed, rec.ID)
	}

	// No shell: the command line is split on whitespace and executed
	// directly, with the binary resolved from PATH.
	cmd := exec.Command(args[0], args[1:]...)
	if err := cmd.Start(); err != nil {
		return false, fmt.Errorf("%w: %q: %v", ErrSpawnFailed, rec.ID, err)
	}

	rec.Runtime = &ProcessRuntime{Pid: cmd.Process.Pid, cmd: cmd}
	rec.Status = catalog.StatusRunning

	b.log.Debug("spawned application process",
		zap.String("app_id", rec.ID),
		zap.Int("pid", cmd.Process.Pid),
	)

	go b.reap(rec.ID, cmd)

	return true, nil
}

// reap waits for the child to exit, classifies the exit and reports the
// termination. Wait reaps the process so it cannot become a zombie.
func (b *processBackend) reap(id string, cmd *exec.Cmd) {
	err := cmd.Wait()

	switch {
	case err == nil:
		b.log.Debug("application exited cleanly", zap.String("app_id", id))
	case cmd.ProcessState != nil && cmd.ProcessState.Exited():
		b.log.Warn("application exited with error",
			zap.String("app_id", id),
			zap.Int("exit_code", cmd.ProcessState.ExitCode()),
		)
	default:
		b.log.Warn("application crashed", zap.String("app_id", id), zap.Error(err))
	}

	b.launcher.terminated(id)
}
