// Package engine executes cleanup runs. A run walks each configured root
// depth-first, deletes the files the exclusion rules do not protect, and
// afterwards prunes the directories the sweep left empty.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/logsweep/logsweep/pkg/backend"
	"github.com/logsweep/logsweep/pkg/config"
	"github.com/logsweep/logsweep/pkg/hints"
	"github.com/logsweep/logsweep/pkg/hook"
	"github.com/logsweep/logsweep/pkg/match"
	"github.com/logsweep/logsweep/pkg/metrics"
	"github.com/logsweep/logsweep/pkg/plog"
	"github.com/logsweep/logsweep/pkg/preflight"
	"github.com/logsweep/logsweep/pkg/report"
	"github.com/logsweep/logsweep/pkg/runlog"
)

// ErrAlreadyRunning signals that a run was skipped because the same job is
// still in flight. Overlapping runs are skipped, never queued.
var ErrAlreadyRunning = hints.New("job is already running")

// BackendFactory opens the storage backend for one run of a job.
type BackendFactory func(ctx context.Context, cfg *config.Config, job *config.JobConfig) (backend.Backend, error)

// Options configures an Executor. Zero fields get working defaults.
type Options struct {
	Sink    runlog.Sink
	Metrics metrics.Metrics
	Hooks   *hook.Executor
	Now     func() time.Time

	// NewBackend substitutes the backend factory, for tests.
	NewBackend BackendFactory
}

// Executor runs cleanup jobs. It is safe for concurrent use; each job runs
// on at most one goroutine at a time.
type Executor struct {
	sink       runlog.Sink
	metrics    metrics.Metrics
	hooks      *hook.Executor
	now        func() time.Time
	newBackend BackendFactory

	mu      sync.Mutex
	running map[string]bool
}

func New(opts Options) *Executor {
	e := &Executor{
		sink:       opts.Sink,
		metrics:    opts.Metrics,
		hooks:      opts.Hooks,
		now:        opts.Now,
		newBackend: opts.NewBackend,
		running:    make(map[string]bool),
	}
	if e.metrics == nil {
		e.metrics = &metrics.NoopMetrics{}
	}
	if e.hooks == nil {
		e.hooks = hook.NewExecutor(exec.CommandContext)
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newBackend == nil {
		e.newBackend = openBackend
	}
	return e
}

// openBackend is the production backend factory.
func openBackend(ctx context.Context, cfg *config.Config, job *config.JobConfig) (backend.Backend, error) {
	switch job.Mode {
	case config.ModeLocal:
		return backend.NewLocal(), nil
	case config.ModeFTP:
		target, ok := cfg.FindTarget(job.FTPTarget)
		if !ok {
			return nil, &backend.ConfigError{Job: job.Name, Message: fmt.Sprintf("ftp target %q is not configured", job.FTPTarget)}
		}
		return backend.DialFTP(ctx, FTPOptionsFor(target))
	default:
		return nil, &backend.ConfigError{Job: job.Name, Message: fmt.Sprintf("unknown mode %q", job.Mode)}
	}
}

// FTPOptionsFor maps a target profile onto dial options. The connection
// test dials the same way a run does.
func FTPOptionsFor(target config.FTPTargetConfig) backend.FTPOptions {
	return backend.FTPOptions{
		Name:               target.Name,
		Addr:               target.Address(),
		Host:               target.Host,
		Username:           target.Username,
		Password:           target.Password,
		TLS:                target.TLS,
		InsecureSkipVerify: target.InsecureSkipVerify,
		Timeout:            target.Timeout(),
	}
}

// Run executes one cleanup run of job and returns its report. The error is
// non-nil when the run failed or was skipped; tolerated per-entry errors
// leave the run completed and show up only in the report.
func (e *Executor) Run(ctx context.Context, cfg *config.Config, job *config.JobConfig) (*report.Run, error) {
	if !e.acquire(job.Name) {
		e.metrics.AddRunsSkipped(1)
		plog.Notice("Skipping run, job is already running", "job", job.Name)
		return nil, ErrAlreadyRunning
	}
	defer e.release(job.Name)

	dryRun := cfg.EffectiveDryRun(job)
	matcher := match.New(cfg.EffectiveExcludeFiles(job), cfg.EffectiveExcludeFolders(job))

	run := report.New(job.Name, job.Mode, job.FTPTarget, dryRun, job.Roots, e.now())
	e.metrics.AddRunsStarted(1)
	defer e.writeReport(run)
	defer func() { e.metrics.AddErrors(int64(run.Errors)) }()

	plog.Info("Run started", "job", job.Name, "run", run.ID, "mode", job.Mode, "dry_run", dryRun)

	roots := job.Roots
	if job.Mode == config.ModeLocal {
		roots = make([]string, 0, len(job.Roots))
		for _, root := range job.Roots {
			if perr := preflight.CheckLocalRoot(root, cfg.Runtime.Force); perr != nil {
				var unsafe *preflight.UnsafeRootError
				if errors.As(perr, &unsafe) {
					cerr := &backend.ConfigError{Job: job.Name, Message: perr.Error()}
					run.RecordError(root, "preflight", cerr)
					return e.fail(run, cerr)
				}
				// A missing or unreadable root costs only that root; the
				// remaining roots are still swept.
				run.RecordError(root, "preflight", perr)
				continue
			}
			preflight.LogFreeSpace(root)
			roots = append(roots, root)
		}
	}

	plan := hook.PlanFor(job, dryRun)
	if herr := e.hooks.RunPre(ctx, plan); herr != nil {
		// Post-run commands still fire so whatever the pre-run commands
		// managed to stop gets restarted.
		e.runPostHooks(ctx, plan)
		return e.fail(run, herr)
	}

	b, berr := e.newBackend(ctx, cfg, job)
	if berr != nil {
		run.RecordError(job.FTPTarget, "connect", berr)
		e.runPostHooks(ctx, plan)
		return e.fail(run, berr)
	}

	sw := &sweep{backend: b, run: run, matcher: matcher, dryRun: dryRun}

	run.Transition(report.StateTraversing)
	fatal := sw.traverseRoots(ctx, roots)
	if fatal == nil {
		run.Transition(report.StatePruning)
		fatal = sw.prune(ctx)
	}

	// The session is torn down no matter how the run went.
	if cerr := b.Close(); cerr != nil {
		plog.Warn("Backend teardown failed", "job", job.Name, "error", cerr)
	}

	e.runPostHooks(ctx, plan)

	if fatal != nil {
		return e.fail(run, fatal)
	}

	run.Complete(e.now())
	e.metrics.AddRunsCompleted(1)
	if !dryRun {
		e.metrics.AddFilesDeleted(int64(run.FilesDeleted))
		e.metrics.AddDirsPruned(int64(run.DirsPruned))
	}
	plog.Info("Run finished", "job", job.Name, "run", run.ID, "summary", run.Summary())
	return run, nil
}

func (e *Executor) fail(run *report.Run, err error) (*report.Run, error) {
	run.Fail(e.now(), err.Error())
	e.metrics.AddRunsFailed(1)
	plog.Error("Run failed", "job", run.Job, "run", run.ID, "error", err)
	return run, err
}

// acquire claims the per-job slot.
func (e *Executor) acquire(job string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running[job] {
		return false
	}
	e.running[job] = true
	return true
}

func (e *Executor) release(job string) {
	e.mu.Lock()
	delete(e.running, job)
	e.mu.Unlock()
}

func (e *Executor) writeReport(run *report.Run) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Write(run); err != nil {
		plog.Warn("Failed to write run report", "job", run.Job, "run", run.ID, "error", err)
	}
}

func (e *Executor) runPostHooks(ctx context.Context, plan *hook.Plan) {
	if err := e.hooks.RunPost(ctx, plan); err != nil {
		plog.Warn("Post-run commands failed", "job", plan.Job, "error", err)
	}
}

// isRunFatal reports whether an error must abort the whole run instead of
// being recorded against one entry.
func isRunFatal(err error) bool {
	return backend.IsFatal(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
