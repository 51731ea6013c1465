// Package store owns the live configuration of the daemon. It hands out
// immutable snapshots and swaps them when the config file on disk changes,
// so the scheduler picks up edits without a restart.
package store

import (
	"sync"

	"github.com/logsweep/logsweep/pkg/config"
	"github.com/logsweep/logsweep/pkg/plog"
)

// Store serves configuration snapshots to the scheduler and the run
// executor. Snapshots are immutable by convention; a reload swaps the
// pointer, and in-flight runs keep the snapshot they started with.
type Store struct {
	mu  sync.RWMutex
	cfg *config.Config
}

// New wraps an already validated configuration.
func New(cfg *config.Config) *Store {
	return &Store{cfg: cfg}
}

// Snapshot returns the current configuration. Callers must not mutate it.
func (s *Store) Snapshot() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Jobs returns the job list of the current snapshot.
func (s *Store) Jobs() []config.JobConfig {
	return s.Snapshot().Jobs
}

// Reload reads and validates the config file again. The previous snapshot
// stays active when the new file fails to load or validate. Runtime flags
// from the daemon invocation carry over to the new snapshot.
func (s *Store) Reload() error {
	current := s.Snapshot()

	cfg, err := config.Load(current.Runtime.ConfigPath)
	if err != nil {
		return err
	}
	cfg.Runtime = current.Runtime
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.cfg = &cfg
	s.mu.Unlock()

	plog.Notice("Configuration reloaded",
		"jobs", len(cfg.Jobs),
		"targets", len(cfg.FTPTargets),
	)
	return nil
}
