package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/logsweep/logsweep/pkg/config"
	"github.com/logsweep/logsweep/pkg/flagparse"
	"github.com/logsweep/logsweep/pkg/scheduler"
)

// RunList prints the configured jobs and FTP targets as tables. Passwords
// never appear in the output.
func RunList(ctx context.Context, flagMap map[string]any, out io.Writer) error {
	runConfig, err := loadRunConfig(flagparse.List, flagMap)
	if err != nil {
		return err
	}

	if len(runConfig.Jobs) == 0 {
		fmt.Fprintf(out, "No jobs configured in %s.\n", runConfig.Runtime.ConfigPath)
		return nil
	}

	now := time.Now()
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tENABLED\tMODE\tROOTS\tDRY-RUN\tSCHEDULE\tNEXT DUE")
	for i := range runConfig.Jobs {
		job := &runConfig.Jobs[i]

		mode := job.Mode
		if job.Mode == config.ModeFTP {
			mode = fmt.Sprintf("%s(%s)", job.Mode, job.FTPTarget)
		}

		nextDue := "-"
		if job.Schedule != nil {
			if !job.Enabled {
				nextDue = "disabled"
			} else if due, ok := scheduler.NextAfter(job.Schedule, now); ok {
				nextDue = due.Format("2006-01-02 15:04")
			}
		}

		fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%t\t%s\t%s\n",
			job.Name,
			job.Enabled,
			mode,
			strings.Join(job.Roots, ", "),
			runConfig.EffectiveDryRun(job),
			job.Schedule.Summary(),
			nextDue,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(runConfig.FTPTargets) == 0 {
		return nil
	}

	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TARGET\tADDRESS\tUSER\tTLS\tTIMEOUT")
	for i := range runConfig.FTPTargets {
		target := &runConfig.FTPTargets[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n",
			target.Name,
			target.Address(),
			target.Username,
			target.TLS,
			target.Timeout(),
		)
	}
	return w.Flush()
}
