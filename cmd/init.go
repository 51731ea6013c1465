package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/logsweep/logsweep/pkg/config"
	"github.com/logsweep/logsweep/pkg/plog"
)

// RunInit writes a starter configuration file with a disabled example job,
// so new users have something concrete to edit instead of a blank page.
func RunInit(ctx context.Context, flagMap map[string]any) error {
	path, err := resolveConfigPath(flagMap)
	if err != nil {
		return err
	}

	force, _ := flagMap["force"].(bool)
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists at %s (use -force to overwrite)", path)
		}
	}

	starterConfig := config.Starter()
	if dir, ok := flagMap["state-dir"].(string); ok && dir != "" {
		starterConfig.App.StateDir = dir
	}

	if err := config.Generate(starterConfig, path); err != nil {
		return err
	}

	plog.Info("Starter configuration written, edit it and start the daemon", "path", path)
	return nil
}
