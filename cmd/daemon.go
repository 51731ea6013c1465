package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/logsweep/logsweep/pkg/buildinfo"
	"github.com/logsweep/logsweep/pkg/engine"
	"github.com/logsweep/logsweep/pkg/flagparse"
	"github.com/logsweep/logsweep/pkg/history"
	"github.com/logsweep/logsweep/pkg/lockfile"
	"github.com/logsweep/logsweep/pkg/metrics"
	"github.com/logsweep/logsweep/pkg/plog"
	"github.com/logsweep/logsweep/pkg/runlog"
	"github.com/logsweep/logsweep/pkg/scheduler"
	"github.com/logsweep/logsweep/pkg/store"
	"github.com/logsweep/logsweep/pkg/util"
)

// metricsSummaryInterval is how often the daemon logs its lifetime counters.
const metricsSummaryInterval = time.Hour

// RunDaemon assembles the long-running pieces and runs them until the
// context is cancelled: the scheduler that fires due jobs, the config
// watcher that reloads edits, the report sinks and the history pruner.
func RunDaemon(ctx context.Context, flagMap map[string]any) error {
	runConfig, err := loadRunConfig(flagparse.Daemon, flagMap)
	if err != nil {
		return err
	}
	runConfig.LogSummary()

	if err := os.MkdirAll(runConfig.App.StateDir, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", runConfig.App.StateDir, err)
	}

	// Only one daemon per state directory. Manual runs are not locked out;
	// the engine's per-job gate handles overlap with scheduled runs.
	lock, err := lockfile.Acquire(ctx, runConfig.App.StateDir, buildinfo.Name+"-daemon")
	if err != nil {
		return err
	}
	defer lock.Release()

	sinks := []runlog.Sink{
		runlog.NewDirSink(runConfig.App.Reports.Dir, runConfig.App.Reports.Compress),
		runlog.NewAppendSink(
			runConfig.App.Reports.AppendFile,
			runConfig.App.Reports.MaxSizeMB,
			runConfig.App.Reports.MaxBackups,
			runConfig.App.Reports.MaxAgeDays,
		),
	}

	var pruner *history.Pruner
	if runConfig.App.History.Enabled {
		db, err := history.Open(runConfig.App.History.Path)
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		sinks = append(sinks, db)

		pruner, err = history.NewPruner(db, runConfig.App.History.PruneSchedule, runConfig.App.History.RetentionDays)
		if err != nil {
			return err
		}
	}

	sink := runlog.NewMultiSink(sinks...)
	defer func() {
		if err := sink.Close(); err != nil {
			plog.Warn("Failed to close report sinks", "error", err)
		}
	}()

	sweepMetrics := &metrics.SweepMetrics{}
	executor := engine.New(engine.Options{
		Sink:    sink,
		Metrics: sweepMetrics,
	})

	configStore := store.New(&runConfig)
	watcher, err := store.NewWatcher(configStore, 0)
	if err != nil {
		return err
	}
	sched := scheduler.New(scheduler.Options{
		Snapshot: configStore.Snapshot,
		Runner:   executor,
	})

	if pruner != nil {
		pruner.Start()
		defer pruner.Stop()
	}
	sweepMetrics.StartProgress("Daemon totals", metricsSummaryInterval)
	defer sweepMetrics.StopProgress()

	plog.Info(buildinfo.Name+" daemon started", "pid", os.Getpid(), "state_dir", runConfig.App.StateDir, "jobs", len(runConfig.Jobs))

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return sched.Run(groupCtx) })
	group.Go(func() error { return watcher.Watch(groupCtx) })

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	sweepMetrics.LogSummary("Daemon totals at shutdown")
	plog.Info(buildinfo.Name + " daemon stopped")
	return nil
}
