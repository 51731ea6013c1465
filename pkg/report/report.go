// Package report models the outcome of one cleanup run: every per-entry
// action plus summary counters, with a stable textual rendering suitable
// for append-only log files. A Run is owned by the run that produces it
// until it is handed to the sinks.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/logsweep/logsweep/pkg/backend"
)

// Verb labels one recorded action.
type Verb string

const (
	VerbDeleted     Verb = "DELETE"
	VerbWouldDelete Verb = "WOULD DELETE"
	VerbSkipped     Verb = "SKIP"
	VerbPruned      Verb = "PRUNE"
	VerbWouldPrune  Verb = "WOULD PRUNE"
	VerbError       Verb = "ERROR"
)

// State is the lifecycle stage of a run. Failed is terminal and only
// reached when the run could not traverse at all; per-entry errors leave a
// run in Completed.
type State string

const (
	StateConnecting State = "connecting"
	StateTraversing State = "traversing"
	StatePruning    State = "pruning"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Action is one recorded per-entry outcome.
type Action struct {
	Verb   Verb
	Path   string
	Reason string
}

// Run is the report of one job run.
type Run struct {
	ID       string
	Job      string
	Mode     string
	Target   string
	DryRun   bool
	State    State
	Started  time.Time
	Finished time.Time
	Roots    []string
	Actions  []Action

	FilesDeleted int
	FilesSkipped int
	DirsPruned   int
	DirsSkipped  int
	Errors       int

	// FailureReason is set when State is StateFailed.
	FailureReason string
}

// New starts a report for one run. The caller supplies the start instant so
// runs stay deterministic under an injected clock.
func New(job, mode, target string, dryRun bool, roots []string, started time.Time) *Run {
	return &Run{
		ID:      uuid.NewString(),
		Job:     job,
		Mode:    mode,
		Target:  target,
		DryRun:  dryRun,
		State:   StateConnecting,
		Started: started,
		Roots:   append([]string(nil), roots...),
	}
}

// Transition moves the run to the next lifecycle stage.
func (r *Run) Transition(s State) {
	r.State = s
}

// RecordDelete records a file deletion, or the simulation of one under
// dry-run. Both count into FilesDeleted so a dry-run report carries the
// same totals a live run would.
func (r *Run) RecordDelete(path string) {
	verb := VerbDeleted
	if r.DryRun {
		verb = VerbWouldDelete
	}
	r.Actions = append(r.Actions, Action{Verb: verb, Path: path})
	r.FilesDeleted++
}

// RecordSkipFile records a file left alone by an exclusion pattern.
func (r *Run) RecordSkipFile(path, pattern string) {
	r.Actions = append(r.Actions, Action{Verb: VerbSkipped, Path: path, Reason: "excluded by " + pattern})
	r.FilesSkipped++
}

// RecordSkipDir records a directory the traversal refused to descend into.
func (r *Run) RecordSkipDir(path, name string) {
	r.Actions = append(r.Actions, Action{Verb: VerbSkipped, Path: path, Reason: "excluded folder " + name})
	r.DirsSkipped++
}

// RecordPrune records the removal of an emptied directory, or the
// simulation of one under dry-run.
func (r *Run) RecordPrune(path string) {
	verb := VerbPruned
	if r.DryRun {
		verb = VerbWouldPrune
	}
	r.Actions = append(r.Actions, Action{Verb: verb, Path: path})
	r.DirsPruned++
}

// RecordError records a per-entry failure with the attempted operation and
// the error's taxonomy kind, so the line diagnoses itself.
func (r *Run) RecordError(path, op string, err error) {
	reason := fmt.Sprintf("%s failed (%s): %v", op, backend.Kind(err), err)
	r.Actions = append(r.Actions, Action{Verb: VerbError, Path: path, Reason: reason})
	r.Errors++
}

// Complete marks the run finished at the given instant.
func (r *Run) Complete(finished time.Time) {
	r.State = StateCompleted
	r.Finished = finished
}

// Fail marks the run failed at the given instant.
func (r *Run) Fail(finished time.Time, reason string) {
	r.State = StateFailed
	r.Finished = finished
	r.FailureReason = reason
}

// Duration is the wall-clock span of the run.
func (r *Run) Duration() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// Summary renders the counter line, with labels following the dry-run flag.
func (r *Run) Summary() string {
	deleted, pruned := "deleted", "pruned"
	if r.DryRun {
		deleted, pruned = "would delete", "would prune"
	}
	return fmt.Sprintf("files %s: %d, files skipped: %d, dirs %s: %d, dirs skipped: %d, errors: %d",
		deleted, r.FilesDeleted, r.FilesSkipped, pruned, r.DirsPruned, r.DirsSkipped, r.Errors)
}

// Render writes the stable textual form of the run.
func (r *Run) Render(w io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "=== logsweep run %s ===\n", r.ID)
	fmt.Fprintf(&b, "job:      %s\n", r.Job)
	fmt.Fprintf(&b, "mode:     %s\n", r.Mode)
	if r.Target != "" {
		fmt.Fprintf(&b, "target:   %s\n", r.Target)
	}
	fmt.Fprintf(&b, "dry-run:  %t\n", r.DryRun)
	fmt.Fprintf(&b, "state:    %s\n", r.State)
	if r.FailureReason != "" {
		fmt.Fprintf(&b, "failure:  %s\n", r.FailureReason)
	}
	fmt.Fprintf(&b, "started:  %s\n", r.Started.UTC().Format(time.RFC3339))
	if !r.Finished.IsZero() {
		fmt.Fprintf(&b, "finished: %s\n", r.Finished.UTC().Format(time.RFC3339))
		fmt.Fprintf(&b, "duration: %s\n", r.Duration().Truncate(time.Millisecond))
	}
	fmt.Fprintf(&b, "roots:    %s\n", strings.Join(r.Roots, ", "))

	if len(r.Actions) > 0 {
		b.WriteString("--- actions ---\n")
		for _, a := range r.Actions {
			if a.Reason != "" {
				fmt.Fprintf(&b, "%-12s %s (%s)\n", a.Verb, a.Path, a.Reason)
			} else {
				fmt.Fprintf(&b, "%-12s %s\n", a.Verb, a.Path)
			}
		}
	}

	b.WriteString("--- summary ---\n")
	b.WriteString(r.Summary())
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}
