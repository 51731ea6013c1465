package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/logsweep/logsweep/pkg/flagparse"
	"github.com/logsweep/logsweep/pkg/history"
	"github.com/logsweep/logsweep/pkg/plog"
)

// RunHistory prints recent runs from the history database, newest first.
// The -job flag narrows the listing to one job, -limit caps the row count.
func RunHistory(ctx context.Context, flagMap map[string]any, out io.Writer) error {
	runConfig, err := loadRunConfig(flagparse.History, flagMap)
	if err != nil {
		return err
	}

	if !runConfig.App.History.Enabled {
		return fmt.Errorf("run history is disabled in the configuration")
	}

	db, err := history.Open(runConfig.App.History.Path)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			plog.Warn("Failed to close history database", "error", err)
		}
	}()

	limit := runConfig.Runtime.Limit
	if limit <= 0 {
		limit = history.DefaultRecentLimit
	}

	entries, err := db.Recent(ctx, runConfig.Runtime.JobName, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tJOB\tMODE\tSTATE\tDRY-RUN\tDELETED\tSKIPPED\tPRUNED\tERRORS\tDURATION")
	for i := range entries {
		e := &entries[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%d\t%d\t%d\t%d\t%s\n",
			e.Started.Format("2006-01-02 15:04:05"),
			e.Job,
			e.Mode,
			e.State,
			e.DryRun,
			e.FilesDeleted,
			e.FilesSkipped,
			e.DirsPruned,
			e.Errors,
			e.Duration.Round(time.Millisecond),
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	// Failure reasons are too long for a column; list them under the table.
	printedBlank := false
	for i := range entries {
		e := &entries[i]
		if e.FailureReason == "" {
			continue
		}
		if !printedBlank {
			fmt.Fprintln(out)
			printedBlank = true
		}
		fmt.Fprintf(out, "%s %s failed: %s\n", e.Started.Format("2006-01-02 15:04:05"), e.Job, e.FailureReason)
	}
	return nil
}
