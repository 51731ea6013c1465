package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/logsweep/logsweep/pkg/buildinfo"
	"github.com/logsweep/logsweep/pkg/engine"
	"github.com/logsweep/logsweep/pkg/flagparse"
	"github.com/logsweep/logsweep/pkg/history"
	"github.com/logsweep/logsweep/pkg/plog"
	"github.com/logsweep/logsweep/pkg/runlog"
)

// RunJob executes a single configured job right now and prints its report
// to out. A manual run is an explicit operator decision: it ignores the
// job's enabled flag and schedule, and it is the only way to sweep a job
// that has no schedule at all.
func RunJob(ctx context.Context, flagMap map[string]any, out io.Writer) error {
	runConfig, err := loadRunConfig(flagparse.Run, flagMap)
	if err != nil {
		return err
	}

	// For run, the job flag is mandatory.
	if runConfig.Runtime.JobName == "" {
		return fmt.Errorf("the -job flag is required to run a job")
	}
	job, ok := runConfig.FindJob(runConfig.Runtime.JobName)
	if !ok {
		return fmt.Errorf("job %q is not configured", runConfig.Runtime.JobName)
	}

	runConfig.LogSummary()

	// Manual runs record to history so they show up next to scheduled runs,
	// but not to the daemon's report files; two processes appending to the
	// same rotating log would fight over the rotation.
	var sink runlog.Sink
	if runConfig.App.History.Enabled {
		db, err := history.Open(runConfig.App.History.Path)
		if err != nil {
			plog.Warn("History database unavailable, this run will not be recorded", "error", err)
		} else {
			sink = db
			defer func() {
				if err := db.Close(); err != nil {
					plog.Warn("Failed to close history database", "error", err)
				}
			}()
		}
	}

	executor := engine.New(engine.Options{Sink: sink})

	startTime := time.Now()
	run, runErr := executor.Run(ctx, &runConfig, &job)
	duration := time.Since(startTime).Round(time.Millisecond)

	// Render whatever we got; a failed run's partial report is the most
	// useful thing the operator has.
	if run != nil {
		if err := run.Render(out); err != nil {
			return err
		}
	}
	if runErr != nil {
		return runErr // The error will be logged with full details by main()
	}

	plog.Info(buildinfo.Name+" run finished successfully.", "job", job.Name, "duration", duration)
	return nil
}
