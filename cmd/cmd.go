// Package cmd implements the logsweep subcommands. Each command follows the
// same shape: resolve the config file, overlay the command-line flags, then
// hand the merged configuration to the packages that do the work.
package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/logsweep/logsweep/pkg/config"
	"github.com/logsweep/logsweep/pkg/flagparse"
	"github.com/logsweep/logsweep/pkg/plog"
	"github.com/logsweep/logsweep/pkg/util"
)

// resolveConfigPath picks the -config flag over the conventional default
// location and resolves it to an absolute path.
func resolveConfigPath(flagMap map[string]any) (string, error) {
	path := config.DefaultConfigPath()
	if v, ok := flagMap["config"].(string); ok && v != "" {
		path = v
	}

	expanded, err := util.ExpandPath(path)
	if err != nil {
		return "", fmt.Errorf("config path invalid: %w", err)
	}
	absPath, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("config path invalid: %w", err)
	}
	return absPath, nil
}

// loadRunConfig loads the configuration file, merges the flag values over it
// and validates the result. The global log level is set from the merged
// configuration so everything logged afterwards honors it.
func loadRunConfig(command flagparse.Command, flagMap map[string]any) (config.Config, error) {
	path, err := resolveConfigPath(flagMap)
	if err != nil {
		return config.Config{}, err
	}

	loadedConfig, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Merge the flag values over the loaded config to get the final run config.
	runConfig := config.MergeConfigWithFlags(command, loadedConfig, flagMap)

	// CRITICAL: Validate the config for the run
	if err := runConfig.Validate(); err != nil {
		return config.Config{}, err
	}

	// Set the global log level based on the final configuration.
	level, err := plog.LevelFromString(runConfig.App.LogLevel)
	if err != nil {
		return config.Config{}, err
	}
	plog.SetLevel(level)

	return runConfig, nil
}
