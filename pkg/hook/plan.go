package hook

import (
	"slices"

	"github.com/logsweep/logsweep/pkg/config"
)

// Plan carries the shell commands bracketing one cleanup run.
type Plan struct {
	Job string

	PreCommands  []string
	PostCommands []string

	DryRun bool
}

// PlanFor builds the hook plan for one run of a job.
func PlanFor(job *config.JobConfig, dryRun bool) *Plan {
	return &Plan{
		Job:          job.Name,
		PreCommands:  slices.Clone(job.PreRunCommands),
		PostCommands: slices.Clone(job.PostRunCommands),
		DryRun:       dryRun,
	}
}
