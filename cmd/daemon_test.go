package cmd_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/logsweep/logsweep/cmd"
	"github.com/logsweep/logsweep/pkg/config"
	"github.com/logsweep/logsweep/pkg/lockfile"
)

func TestRunDaemonStartsAndStopsCleanly(t *testing.T) {
	dir := t.TempDir()
	stateDir := filepath.Join(dir, "state")

	cfg := config.NewDefault()
	cfg.App.StateDir = stateDir
	path := writeTestConfig(t, dir, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- cmd.RunDaemon(ctx, map[string]any{"config": path})
	}()

	// Give the daemon time to acquire its lock and open the database,
	// then ask it to stop.
	deadline := time.Now().Add(5 * time.Second)
	lockPath := filepath.Join(stateDir, lockfile.LockFileName)
	for {
		if _, err := os.Stat(lockPath); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("daemon never acquired its lock")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("daemon exited with error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop on cancellation")
	}

	if _, err := os.Stat(filepath.Join(stateDir, "history.db")); err != nil {
		t.Errorf("expected the history database to exist: %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Error("expected the daemon lock to be released on shutdown")
	}
}

func TestRunDaemonRefusesSecondInstance(t *testing.T) {
	dir := t.TempDir()
	stateDir := filepath.Join(dir, "state")

	cfg := config.NewDefault()
	cfg.App.StateDir = stateDir
	path := writeTestConfig(t, dir, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- cmd.RunDaemon(ctx, map[string]any{"config": path})
	}()

	deadline := time.Now().Add(5 * time.Second)
	lockPath := filepath.Join(stateDir, lockfile.LockFileName)
	for {
		if _, err := os.Stat(lockPath); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first daemon never acquired its lock")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := cmd.RunDaemon(ctx, map[string]any{"config": path}); err == nil {
		t.Error("expected the second daemon to refuse to start")
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Errorf("first daemon exited with error: %v", err)
	}
}
