// Package runlog delivers finished run reports to their destinations: a
// rotated append-only log file and a directory of per-run report files.
// Sinks are fan-out targets; a sink failure is reported but never blocks
// the other sinks from receiving the report.
package runlog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/logsweep/logsweep/pkg/report"
	"github.com/logsweep/logsweep/pkg/util"
)

// Sink receives one finished run report.
type Sink interface {
	Write(run *report.Run) error
	Close() error
}

// AppendSink renders every run into one append-only log file with size and
// age based rotation.
type AppendSink struct {
	out *lumberjack.Logger

	// Concurrent jobs hand off their reports concurrently; renderings
	// must not interleave.
	mu sync.Mutex
}

var _ Sink = (*AppendSink)(nil)

// NewAppendSink builds the rotated append sink. Rotated files are gzipped
// by the rotation itself.
func NewAppendSink(path string, maxSizeMB, maxBackups, maxAgeDays int) *AppendSink {
	return &AppendSink{
		out: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   true,
		},
	}
}

// Write appends the rendered run.
func (s *AppendSink) Write(run *report.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := run.Render(s.out); err != nil {
		return fmt.Errorf("failed to append run report: %w", err)
	}
	if _, err := io.WriteString(s.out, "\n"); err != nil {
		return fmt.Errorf("failed to append run report: %w", err)
	}
	return nil
}

// Close closes the underlying rotated file.
func (s *AppendSink) Close() error {
	return s.out.Close()
}

// DirSink writes one report file per run, named after the run's start
// instant and job, optionally gzipped.
type DirSink struct {
	dir      string
	compress bool
}

var _ Sink = (*DirSink)(nil)

// NewDirSink builds the per-run report sink. The directory is created
// lazily on first write.
func NewDirSink(dir string, compress bool) *DirSink {
	return &DirSink{dir: dir, compress: compress}
}

// Write renders the run into its own file.
func (s *DirSink) Write(run *report.Run) error {
	if err := os.MkdirAll(s.dir, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	name := fmt.Sprintf("cleanup_%s_%s.log", run.Started.UTC().Format("20060102-150405"), sanitizeName(run.Job))
	if s.compress {
		name += ".gz"
	}
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, util.UserWritableFilePerms)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}

	var w io.Writer = f
	var gz *gzip.Writer
	if s.compress {
		gz = gzip.NewWriter(f)
		w = gz
	}

	if err := run.Render(w); err != nil {
		f.Close()
		return fmt.Errorf("failed to write report file %s: %w", path, err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			f.Close()
			return fmt.Errorf("failed to finalize report file %s: %w", path, err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close report file %s: %w", path, err)
	}
	return nil
}

// Close is a no-op; DirSink holds no open handles between writes.
func (s *DirSink) Close() error {
	return nil
}

// MultiSink fans one report out to several sinks. Every sink sees the
// report even when an earlier one fails; failures are joined.
type MultiSink struct {
	sinks []Sink
}

var _ Sink = (*MultiSink)(nil)

// NewMultiSink combines sinks. Nil entries are dropped.
func NewMultiSink(sinks ...Sink) *MultiSink {
	kept := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &MultiSink{sinks: kept}
}

// Write delivers the run to every sink.
func (m *MultiSink) Write(run *report.Run) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(run); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// sanitizeName makes a job name safe as a file name component.
func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '-'
		}
		return r
	}, name)
}
