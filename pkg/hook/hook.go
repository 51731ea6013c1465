// Package hook runs the shell commands configured around a cleanup run,
// like stopping a log shipper before sweeping its output directory.
package hook

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/logsweep/logsweep/pkg/plog"
)

type Executor struct {
	// commandContext allows mocking os/exec for testing hooks.
	commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// NewExecutor creates an Executor. Pass exec.CommandContext outside of tests.
func NewExecutor(commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd) *Executor {
	return &Executor{commandContext: commandContext}
}

// RunPre executes the pre-run commands in order. The first failure aborts:
// a job whose preparation failed must not start deleting.
func (e *Executor) RunPre(ctx context.Context, p *Plan) error {
	return e.runPhase(ctx, "pre-run", p.PreCommands, p, true)
}

// RunPost executes the post-run commands in order. Failures are logged and
// the remaining commands still run; the sweep itself is already done.
func (e *Executor) RunPost(ctx context.Context, p *Plan) error {
	return e.runPhase(ctx, "post-run", p.PostCommands, p, false)
}

func (e *Executor) runPhase(ctx context.Context, phase string, commands []string, p *Plan, failFast bool) error {
	if len(commands) == 0 {
		return nil
	}

	plog.Info(fmt.Sprintf("Running %s commands", phase), "job", p.Job, "count", len(commands))

	for _, command := range commands {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if p.DryRun {
			plog.Info("[DRY RUN] Executing command", "command", command)
			continue
		}
		plog.Info("Executing command", "command", command)

		cmd := e.createCommand(ctx, command)

		// Pipe output through so hook commands stay visible in the daemon log.
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if cmd.Env == nil {
			cmd.Env = os.Environ()
		}
		cmd.Env = append(cmd.Env, "LOGSWEEP_JOB="+p.Job)

		if err := cmd.Run(); err != nil {
			// cmd.Wait reports a kill as a plain exit error when the context
			// was cancelled; surface the cancellation instead.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if failFast {
				return fmt.Errorf("%s command '%s' failed: %w", phase, command, err)
			}
			plog.Warn("Hook command failed", "phase", phase, "command", command, "error", err)
		}
	}
	return nil
}
