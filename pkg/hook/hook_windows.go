//go:build windows

package hook

import (
	"context"
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// createCommand builds the exec.Cmd for a hook command on Windows. A new
// process group ensures a cancelled context terminates the whole process
// tree, not just the parent cmd.
func (e *Executor) createCommand(ctx context.Context, command string) *exec.Cmd {
	cmd := e.commandContext(ctx, "cmd", "/C", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
	return cmd
}
