// Package scheduler decides which jobs are due and hands them to the run
// engine. A single polling loop compares every enabled schedule against the
// wall clock at minute granularity and fires each trigger instant at most
// once.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/logsweep/logsweep/pkg/config"
	"github.com/logsweep/logsweep/pkg/plog"
	"github.com/logsweep/logsweep/pkg/report"
)

// Runner executes one job run against a configuration snapshot. It logs and
// reports its own outcome; the scheduler only decides when to call it.
type Runner interface {
	Run(ctx context.Context, cfg *config.Config, job *config.JobConfig) (*report.Run, error)
}

// Options configures a Scheduler.
type Options struct {
	// Snapshot returns the current configuration. It is consulted on every
	// tick, so a config reload reaches the next due-check without a restart.
	Snapshot func() *config.Config

	// Runner receives the due jobs.
	Runner Runner

	// Now returns the wall clock. Pass time.Now outside of tests.
	Now func() time.Time
}

// Scheduler fires scheduled jobs. Runs are dispatched on their own
// goroutines so a slow sweep never stalls due-detection for other jobs.
type Scheduler struct {
	snapshot func() *config.Config
	runner   Runner
	now      func() time.Time

	mu    sync.Mutex
	fired map[string]string // job name -> last fired instant

	wg sync.WaitGroup
}

func New(opts Options) *Scheduler {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		snapshot: opts.Snapshot,
		runner:   opts.Runner,
		now:      now,
		fired:    make(map[string]string),
	}
}

// Run polls until ctx is cancelled, then waits for in-flight runs to wind
// down before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	plog.Info("Scheduler started", "tick", interval)

	for {
		select {
		case <-ctx.Done():
			plog.Info("Scheduler stopping, waiting for running jobs")
			s.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx, s.now())
			if next := s.interval(); next != interval {
				plog.Info("Scheduler tick interval changed", "old", interval, "new", next)
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

func (s *Scheduler) interval() time.Duration {
	return time.Duration(s.snapshot().App.TickSeconds) * time.Second
}

// tick evaluates one polling instant against every configured job.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	cfg := s.snapshot()
	for i := range cfg.Jobs {
		job := &cfg.Jobs[i]
		instant, due := dueAt(job, now)
		if !due {
			continue
		}
		if !s.claim(job.Name, instant) {
			continue
		}
		plog.Info("Schedule triggered", "job", job.Name, "instant", instant)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			// The runner logs and counts its own outcome, including the
			// skip when the previous run is still going.
			_, _ = s.runner.Run(ctx, cfg, job)
		}()
	}
}

// dueAt reports the instant key under which the job's trigger matches now.
// Seconds are ignored: a trigger covers the whole minute it names.
func dueAt(job *config.JobConfig, now time.Time) (string, bool) {
	if !job.Enabled || job.Schedule == nil {
		return "", false
	}
	days, err := job.Schedule.Weekdays()
	if err != nil {
		plog.Debug("Unparseable schedule days", "job", job.Name, "error", err)
		return "", false
	}
	if _, ok := days[now.Weekday()]; !ok {
		return "", false
	}
	hour, minute, err := job.Schedule.ClockTime()
	if err != nil {
		plog.Debug("Unparseable schedule time", "job", job.Name, "error", err)
		return "", false
	}
	if now.Hour() != hour || now.Minute() != minute {
		return "", false
	}
	return now.Format("2006-01-02 15:04"), true
}

// claim records the firing unless the instant was already claimed. A tick
// interval below one minute makes the same instant come around more than
// once; only the first claim wins.
func (s *Scheduler) claim(job, instant string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fired[job] == instant {
		return false
	}
	s.fired[job] = instant
	return true
}

// NextAfter reports the soonest instant strictly after from at which the
// schedule fires. ok is false for a nil or unparseable schedule.
func NextAfter(schedule *config.ScheduleConfig, from time.Time) (time.Time, bool) {
	if schedule == nil {
		return time.Time{}, false
	}
	days, err := schedule.Weekdays()
	if err != nil {
		return time.Time{}, false
	}
	hour, minute, err := schedule.ClockTime()
	if err != nil {
		return time.Time{}, false
	}

	// Day 0 covers a trigger later today, day 7 the case where today's
	// trigger already passed and the schedule only names this weekday.
	for i := 0; i <= 7; i++ {
		day := from.AddDate(0, 0, i)
		if _, ok := days[day.Weekday()]; !ok {
			continue
		}
		candidate := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, from.Location())
		if candidate.After(from) {
			return candidate, true
		}
	}
	return time.Time{}, false
}
