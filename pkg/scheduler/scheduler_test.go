package scheduler

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/logsweep/logsweep/pkg/config"
	"github.com/logsweep/logsweep/pkg/report"
)

type countingRunner struct {
	mu    sync.Mutex
	calls []string
}

func (r *countingRunner) Run(_ context.Context, _ *config.Config, job *config.JobConfig) (*report.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, job.Name)
	return nil, nil
}

func (r *countingRunner) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

func dayToken(t time.Time) string {
	return strings.ToLower(t.Weekday().String()[:3])
}

// scheduledJob builds a job whose trigger matches the given instant.
func scheduledJob(name string, at time.Time) config.JobConfig {
	return config.JobConfig{
		Name:    name,
		Enabled: true,
		Mode:    config.ModeLocal,
		Roots:   []string{"/var/log/web"},
		Schedule: &config.ScheduleConfig{
			Days: []string{dayToken(at)},
			At:   at.Format("15:04"),
		},
	}
}

func newTestScheduler(r Runner, jobs ...config.JobConfig) *Scheduler {
	cfg := config.NewDefault()
	cfg.Jobs = jobs
	return New(Options{
		Snapshot: func() *config.Config { return &cfg },
		Runner:   r,
	})
}

func TestTickFiresDueJob(t *testing.T) {
	now := time.Date(2026, 1, 5, 3, 0, 10, 0, time.Local) // a Monday, 03:00:10
	r := &countingRunner{}
	s := newTestScheduler(r, scheduledJob("web-logs", now))

	s.tick(context.Background(), now)
	s.wg.Wait()

	if got := r.names(); !slices.Equal(got, []string{"web-logs"}) {
		t.Errorf("expected one firing of web-logs, got %v", got)
	}
}

func TestTickFiresAtMostOncePerInstant(t *testing.T) {
	now := time.Date(2026, 1, 5, 3, 0, 5, 0, time.Local)
	r := &countingRunner{}
	s := newTestScheduler(r, scheduledJob("web-logs", now))

	ctx := context.Background()
	s.tick(ctx, now)
	s.tick(ctx, now.Add(30*time.Second)) // same minute, later poll
	s.wg.Wait()

	if got := len(r.names()); got != 1 {
		t.Fatalf("expected exactly one firing within the minute, got %d", got)
	}

	// The same trigger a week later is a new instant.
	s.tick(ctx, now.AddDate(0, 0, 7))
	s.wg.Wait()

	if got := len(r.names()); got != 2 {
		t.Errorf("expected the next occurrence to fire again, got %d firings", got)
	}
}

func TestTickGating(t *testing.T) {
	base := time.Date(2026, 1, 5, 3, 0, 0, 0, time.Local)

	cases := []struct {
		name   string
		mutate func(*config.JobConfig)
		now    time.Time
		want   int
	}{
		{"Due Job Fires", nil, base.Add(42 * time.Second), 1},
		{"Disabled Job", func(j *config.JobConfig) { j.Enabled = false }, base, 0},
		{"No Schedule Means Manual Only", func(j *config.JobConfig) { j.Schedule = nil }, base, 0},
		{"Wrong Day", nil, base.AddDate(0, 0, 1), 0},
		{"Wrong Minute", nil, base.Add(time.Minute), 0},
		{"Wrong Hour", nil, base.Add(-time.Hour), 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			job := scheduledJob("web-logs", base)
			if tc.mutate != nil {
				tc.mutate(&job)
			}
			r := &countingRunner{}
			s := newTestScheduler(r, job)

			s.tick(context.Background(), tc.now)
			s.wg.Wait()

			if got := len(r.names()); got != tc.want {
				t.Errorf("expected %d firings, got %d", tc.want, got)
			}
		})
	}
}

func TestTickFiresEachDueJob(t *testing.T) {
	now := time.Date(2026, 1, 5, 4, 30, 0, 0, time.Local)
	r := &countingRunner{}
	s := newTestScheduler(r,
		scheduledJob("web-logs", now),
		scheduledJob("tmp-files", now),
		scheduledJob("db-dumps", now.Add(time.Hour)),
	)

	s.tick(context.Background(), now)
	s.wg.Wait()

	got := r.names()
	slices.Sort(got)
	want := []string{"tmp-files", "web-logs"}
	if !slices.Equal(got, want) {
		t.Errorf("expected firings %v, got %v", want, got)
	}
}

func TestTickSeesLiveConfig(t *testing.T) {
	now := time.Date(2026, 1, 5, 6, 0, 0, 0, time.Local)

	cfgA := config.NewDefault()
	cfgA.Jobs = []config.JobConfig{scheduledJob("web-logs", now)}
	cfgB := config.NewDefault()
	cfgB.Jobs = []config.JobConfig{scheduledJob("tmp-files", now)}

	var mu sync.Mutex
	current := &cfgA
	r := &countingRunner{}
	s := New(Options{
		Snapshot: func() *config.Config {
			mu.Lock()
			defer mu.Unlock()
			return current
		},
		Runner: r,
	})

	ctx := context.Background()
	s.tick(ctx, now)
	s.wg.Wait()

	mu.Lock()
	current = &cfgB
	mu.Unlock()

	// Same minute, but the reloaded job set is what gets evaluated.
	s.tick(ctx, now.Add(20*time.Second))
	s.wg.Wait()

	got := r.names()
	slices.Sort(got)
	want := []string{"tmp-files", "web-logs"}
	if !slices.Equal(got, want) {
		t.Errorf("expected the reloaded job to fire, got %v", got)
	}
}

type blockingRunner struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (r *blockingRunner) Run(_ context.Context, _ *config.Config, _ *config.JobConfig) (*report.Run, error) {
	r.once.Do(func() { close(r.started) })
	<-r.release
	return nil, nil
}

func TestTickDoesNotBlockOnSlowRun(t *testing.T) {
	now := time.Date(2026, 1, 5, 5, 0, 0, 0, time.Local)
	r := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
	s := newTestScheduler(r, scheduledJob("web-logs", now))

	done := make(chan struct{})
	go func() {
		s.tick(context.Background(), now)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tick blocked on the dispatched run")
	}

	<-r.started
	close(r.release)
	s.wg.Wait()
}

func TestRunStopsOnCancel(t *testing.T) {
	r := &countingRunner{}
	s := newTestScheduler(r)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on cancellation")
	}
}

func TestNextAfter(t *testing.T) {
	monday := time.Date(2026, 1, 5, 10, 0, 0, 0, time.Local)

	cases := []struct {
		name     string
		schedule *config.ScheduleConfig
		from     time.Time
		want     time.Time
		wantOK   bool
	}{
		{
			name:     "Later Today",
			schedule: &config.ScheduleConfig{Days: []string{"mon"}, At: "15:30"},
			from:     monday,
			want:     time.Date(2026, 1, 5, 15, 30, 0, 0, time.Local),
			wantOK:   true,
		},
		{
			name:     "Passed Today Rolls To Next Week",
			schedule: &config.ScheduleConfig{Days: []string{"mon"}, At: "03:00"},
			from:     monday,
			want:     time.Date(2026, 1, 12, 3, 0, 0, 0, time.Local),
			wantOK:   true,
		},
		{
			name:     "Next Named Day",
			schedule: &config.ScheduleConfig{Days: []string{"wed"}, At: "03:00"},
			from:     monday,
			want:     time.Date(2026, 1, 7, 3, 0, 0, 0, time.Local),
			wantOK:   true,
		},
		{
			name:     "Exact Instant Is Not After",
			schedule: &config.ScheduleConfig{Days: []string{"mon"}, At: "10:00"},
			from:     monday,
			want:     time.Date(2026, 1, 12, 10, 0, 0, 0, time.Local),
			wantOK:   true,
		},
		{
			name:   "Nil Schedule",
			from:   monday,
			wantOK: false,
		},
		{
			name:     "Unparseable Schedule",
			schedule: &config.ScheduleConfig{Days: []string{"noday"}, At: "03:00"},
			from:     monday,
			wantOK:   false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := NextAfter(tc.schedule, tc.from)
			if ok != tc.wantOK {
				t.Fatalf("expected ok=%t, got %t", tc.wantOK, ok)
			}
			if ok && !got.Equal(tc.want) {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}
