package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/logsweep/logsweep/cmd"
	"github.com/logsweep/logsweep/pkg/buildinfo"
	"github.com/logsweep/logsweep/pkg/flagparse"
	"github.com/logsweep/logsweep/pkg/plog"
)

// run encapsulates the main application logic and returns an error if
// something goes wrong, allowing the main function to handle exit codes.
func run(ctx context.Context) error {
	command, flagMap, err := flagparse.Parse(os.Args[1:])
	if err != nil {
		return err
	}

	switch command {
	case flagparse.None:
		return nil // Usage was already printed.
	case flagparse.Daemon:
		return cmd.RunDaemon(ctx, flagMap)
	case flagparse.Run:
		return cmd.RunJob(ctx, flagMap, os.Stdout)
	case flagparse.List:
		return cmd.RunList(ctx, flagMap, os.Stdout)
	case flagparse.TestConnect:
		return cmd.RunTestConnect(ctx, flagMap)
	case flagparse.History:
		return cmd.RunHistory(ctx, flagMap, os.Stdout)
	case flagparse.Init:
		return cmd.RunInit(ctx, flagMap)
	case flagparse.Version:
		return cmd.RunVersion(buildinfo.Name, buildinfo.Version)
	default:
		return fmt.Errorf("internal error: unhandled command %q", command)
	}
}

func main() {
	// SIGINT stops an interactive run, SIGTERM is what service managers
	// send. Both cancel the context so running sweeps can finish cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		plog.Error(buildinfo.Name+" exited with error", "error", err)
		os.Exit(1)
	}
}
