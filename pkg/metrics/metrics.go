// Package metrics tracks daemon-lifetime sweep statistics.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/logsweep/logsweep/pkg/plog"
)

// Metrics defines the interface for collecting cleanup statistics across runs.
type Metrics interface {
	AddRunsStarted(n int64)
	AddRunsCompleted(n int64)
	AddRunsFailed(n int64)
	AddRunsSkipped(n int64)
	AddFilesDeleted(n int64)
	AddDirsPruned(n int64)
	AddErrors(n int64)
	LogSummary(msg string)
	StartProgress(msg string, interval time.Duration)
	StopProgress()
}

// SweepMetrics holds the atomic counters for tracking cleanup activity.
// It is the concrete implementation of the Metrics interface.
type SweepMetrics struct {
	RunsStarted   atomic.Int64
	RunsCompleted atomic.Int64
	RunsFailed    atomic.Int64
	RunsSkipped   atomic.Int64
	FilesDeleted  atomic.Int64
	DirsPruned    atomic.Int64
	Errors        atomic.Int64

	stopChan chan struct{}
}

func (m *SweepMetrics) AddRunsStarted(n int64)   { m.RunsStarted.Add(n) }
func (m *SweepMetrics) AddRunsCompleted(n int64) { m.RunsCompleted.Add(n) }
func (m *SweepMetrics) AddRunsFailed(n int64)    { m.RunsFailed.Add(n) }
func (m *SweepMetrics) AddRunsSkipped(n int64)   { m.RunsSkipped.Add(n) }
func (m *SweepMetrics) AddFilesDeleted(n int64)  { m.FilesDeleted.Add(n) }
func (m *SweepMetrics) AddDirsPruned(n int64)    { m.DirsPruned.Add(n) }
func (m *SweepMetrics) AddErrors(n int64)        { m.Errors.Add(n) }

// StartProgress periodically logs the counters until StopProgress is called.
func (m *SweepMetrics) StartProgress(msg string, interval time.Duration) {
	m.stopChan = make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.LogSummary(msg)
			case <-m.stopChan:
				return
			}
		}
	}()
}

func (m *SweepMetrics) StopProgress() {
	if m.stopChan != nil {
		close(m.stopChan)
	}
}

// LogSummary prints the current counter values.
func (m *SweepMetrics) LogSummary(msg string) {
	plog.Info(msg,
		"runs_started", m.RunsStarted.Load(),
		"runs_completed", m.RunsCompleted.Load(),
		"runs_failed", m.RunsFailed.Load(),
		"runs_skipped", m.RunsSkipped.Load(),
		"files_deleted", m.FilesDeleted.Load(),
		"dirs_pruned", m.DirsPruned.Load(),
		"errors", m.Errors.Load(),
	)
}

// NoopMetrics is an implementation of the Metrics interface that performs no
// operations. It disables collection without changing the calling code.
type NoopMetrics struct{}

func (m *NoopMetrics) AddRunsStarted(n int64)                           {}
func (m *NoopMetrics) AddRunsCompleted(n int64)                         {}
func (m *NoopMetrics) AddRunsFailed(n int64)                            {}
func (m *NoopMetrics) AddRunsSkipped(n int64)                           {}
func (m *NoopMetrics) AddFilesDeleted(n int64)                          {}
func (m *NoopMetrics) AddDirsPruned(n int64)                            {}
func (m *NoopMetrics) AddErrors(n int64)                                {}
func (m *NoopMetrics) LogSummary(msg string)                            {}
func (m *NoopMetrics) StartProgress(msg string, interval time.Duration) {}
func (m *NoopMetrics) StopProgress()                                    {}

// Statically assert that our types implement the interface.
var _ Metrics = (*SweepMetrics)(nil)
var _ Metrics = (*NoopMetrics)(nil)
