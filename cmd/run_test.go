package cmd_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/logsweep/logsweep/cmd"
	"github.com/logsweep/logsweep/pkg/config"
	"github.com/logsweep/logsweep/pkg/history"
)

// seedSweepDir creates a directory holding one deletable log and one
// excluded file, and returns its path.
func seedSweepDir(t *testing.T, dir string) string {
	t.Helper()
	root := filepath.Join(dir, "logs")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("failed to create root: %v", err)
	}
	for _, name := range []string{"a.log", "keep.json"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("failed to seed %s: %v", name, err)
		}
	}
	return root
}

func TestRunJobSweepsDisabledJobOnDemand(t *testing.T) {
	dir := t.TempDir()
	root := seedSweepDir(t, dir)

	cfg := config.NewDefault()
	cfg.App.StateDir = filepath.Join(dir, "state")
	cfg.Jobs = []config.JobConfig{
		{
			Name: "local-logs", Enabled: false, Mode: config.ModeLocal,
			Roots: []string{root}, ExcludeFiles: []string{"*.json"},
		},
	}
	path := writeTestConfig(t, dir, cfg)

	var out bytes.Buffer
	flagMap := map[string]any{"config": path, "job": "local-logs"}
	if err := cmd.RunJob(context.Background(), flagMap, &out); err != nil {
		t.Fatalf("manual run failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "a.log")); !os.IsNotExist(err) {
		t.Error("expected a.log to be deleted")
	}
	if _, err := os.Stat(filepath.Join(root, "keep.json")); err != nil {
		t.Errorf("expected keep.json to survive: %v", err)
	}
	if !strings.Contains(out.String(), "DELETE") {
		t.Errorf("expected the rendered report to list the deletion, got:\n%s", out.String())
	}

	// The run must land in the history database.
	db, err := history.Open(filepath.Join(dir, "state", "history.db"))
	if err != nil {
		t.Fatalf("failed to open history: %v", err)
	}
	defer db.Close()
	entries, err := db.Recent(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("failed to read history: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one history entry, got %d", len(entries))
	}
	if entries[0].Job != "local-logs" || entries[0].FilesDeleted != 1 {
		t.Errorf("unexpected history entry: %+v", entries[0])
	}
}

func TestRunJobDryRunFlagOverridesJob(t *testing.T) {
	dir := t.TempDir()
	root := seedSweepDir(t, dir)

	cfg := config.NewDefault()
	cfg.App.History.Enabled = false
	cfg.App.StateDir = filepath.Join(dir, "state")
	cfg.Jobs = []config.JobConfig{
		{Name: "local-logs", Enabled: true, Mode: config.ModeLocal, Roots: []string{root}},
	}
	path := writeTestConfig(t, dir, cfg)

	var out bytes.Buffer
	flagMap := map[string]any{"config": path, "job": "local-logs", "dry-run": true}
	if err := cmd.RunJob(context.Background(), flagMap, &out); err != nil {
		t.Fatalf("dry run failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "a.log")); err != nil {
		t.Errorf("dry run must not delete anything: %v", err)
	}
	if !strings.Contains(out.String(), "WOULD DELETE") {
		t.Errorf("expected simulated actions in the report, got:\n%s", out.String())
	}
}

func TestRunJobRequiresKnownJob(t *testing.T) {
	dir := t.TempDir()

	cfg := config.NewDefault()
	cfg.App.StateDir = filepath.Join(dir, "state")
	cfg.Jobs = []config.JobConfig{
		{Name: "real", Enabled: true, Mode: config.ModeLocal, Roots: []string{filepath.Join(dir, "logs")}},
	}
	path := writeTestConfig(t, dir, cfg)

	var out bytes.Buffer
	err := cmd.RunJob(context.Background(), map[string]any{"config": path}, &out)
	if err == nil || !strings.Contains(err.Error(), "-job flag is required") {
		t.Errorf("expected a missing-flag error, got: %v", err)
	}

	err = cmd.RunJob(context.Background(), map[string]any{"config": path, "job": "ghost"}, &out)
	if err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Errorf("expected an unknown-job error, got: %v", err)
	}
}
