//go:build !windows

package hook

import (
	"context"
	"os/exec"
	"syscall"
)

// createCommand builds the exec.Cmd for a hook command on Unix-like
// systems. The command becomes its own process group so a cancelled
// context takes down any children it spawned, not just the shell.
func (e *Executor) createCommand(ctx context.Context, command string) *exec.Cmd {
	cmd := e.commandContext(ctx, "/bin/sh", "-c", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return cmd
}
