package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/logsweep/logsweep/pkg/backend"
	"github.com/logsweep/logsweep/pkg/engine"
	"github.com/logsweep/logsweep/pkg/flagparse"
	"github.com/logsweep/logsweep/pkg/plog"
)

// RunTestConnect dials a configured FTP target with the exact options a
// sweep would use, proves the session answers commands, and tears it down.
func RunTestConnect(ctx context.Context, flagMap map[string]any) error {
	runConfig, err := loadRunConfig(flagparse.TestConnect, flagMap)
	if err != nil {
		return err
	}

	// For test-connect, the target flag is mandatory.
	if runConfig.Runtime.TargetName == "" {
		return fmt.Errorf("the -target flag is required to test a connection")
	}
	target, ok := runConfig.FindTarget(runConfig.Runtime.TargetName)
	if !ok {
		return fmt.Errorf("ftp target %q is not configured", runConfig.Runtime.TargetName)
	}

	plog.Info("Testing connection", "target", target.Name, "addr", target.Address(), "tls", target.TLS)

	startTime := time.Now()
	session, err := backend.DialFTP(ctx, engine.FTPOptionsFor(target))
	if err != nil {
		return err // The error will be logged with full details by main()
	}
	defer func() {
		if err := session.Close(); err != nil {
			plog.Warn("Failed to close test session", "error", err)
		}
	}()

	workingDir, err := session.WorkingDir(ctx)
	if err != nil {
		return fmt.Errorf("connected but the session is not usable: %w", err)
	}

	plog.Info("Connection test succeeded",
		"target", target.Name,
		"working_dir", workingDir,
		"duration", time.Since(startTime).Round(time.Millisecond),
	)
	return nil
}
