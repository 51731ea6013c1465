// Package lockfile guards against two daemons sweeping the same state
// directory at once. The holder refreshes the lock from a background
// heartbeat; a lock whose timestamp stops moving is considered stale and
// may be taken over by the next process that finds it.
package lockfile

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/logsweep/logsweep/pkg/plog"
	"github.com/logsweep/logsweep/pkg/util"
)

// LockFileName is the file created inside the state directory while a
// daemon is running. Cleanup jobs exclude it by name so a job pointed at
// the state directory can never delete its own lock.
const LockFileName = "logsweep.lock"

// ErrLostRace is returned when a stale lock takeover is won by another process.
var ErrLostRace = errors.New("lost race during stale lock takeover")

// ErrCorruptLockFile indicates the lock file on disk is empty or not valid JSON.
var ErrCorruptLockFile = errors.New("lock file is corrupt or empty")

// ErrLockActive reports a lock currently held by another live process.
type ErrLockActive struct {
	PID       int64
	Hostname  string
	AppID     string
	TimeSince time.Duration
}

func (e *ErrLockActive) Error() string {
	return fmt.Sprintf("lock is active, held by PID %d on host '%s' (%s), last updated %s ago", e.PID, e.Hostname, e.AppID, e.TimeSince.Truncate(time.Second))
}

// LockContent is the JSON payload written into the lock file.
type LockContent struct {
	PID        int64     `json:"pid"`
	Hostname   string    `json:"hostname"`
	LastUpdate time.Time `json:"lastUpdate"`
	Nonce      string    `json:"nonce,omitempty"` // settles takeover races
	AppID      string    `json:"appID"`
}

// Lock is an acquired lock. Release it when the daemon shuts down.
type Lock struct {
	path    string
	content LockContent

	// cancel stops the heartbeat goroutine.
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	held   bool
}

// Vars instead of consts so tests can shrink the timings.
var (
	heartbeatInterval = 1 * time.Minute
	// A lock is stale once three heartbeats in a row have been missed.
	staleTimeout = 3 * heartbeatInterval
)

// Acquire takes the lock in dirPath or reports who holds it.
// ctx bounds the acquisition attempt only; the heartbeat runs until Release.
// A held lock yields (nil, *ErrLockActive), other failures (nil, error).
func Acquire(ctx context.Context, dirPath string, appID string) (*Lock, error) {
	lockPath := filepath.Join(dirPath, LockFileName)

	// A takeover can lose its race, so allow a few rounds before giving up.
	const maxAttempts = 3

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// Happy path: the file does not exist yet and O_EXCL creation wins.
		lock, err := tryAcquire(lockPath, appID)
		if err == nil {
			sweepTempFiles(lockPath)
			go lock.heartbeat()
			return lock, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to access lock file: %w", err)
		}

		// Someone holds the file. Decide whether they are still alive.
		content, readErr := readContentWithRetry(lockPath)
		switch {
		case readErr == nil:
			elapsed := time.Since(content.LastUpdate)
			if elapsed < staleTimeout {
				return nil, &ErrLockActive{
					PID:       content.PID,
					Hostname:  content.Hostname,
					AppID:     content.AppID,
					TimeSince: elapsed,
				}
			}
			plog.Warn("Found stale lock, attempting takeover", "pid", content.PID, "age", elapsed)
		case errors.Is(readErr, ErrCorruptLockFile):
			// Persistently unreadable counts as stale.
			plog.Warn("Found corrupt lock file, treating as stale", "path", lockPath, "error", readErr)
		default:
			// Transient read failure, retry the whole cycle.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		lock, takeoverErr := takeOverStaleLock(lockPath, appID)
		if takeoverErr != nil {
			if errors.Is(takeoverErr, ErrLostRace) {
				plog.Debug("Lock takeover race lost, retrying acquisition")
			} else {
				plog.Warn("Failed to take over stale lock, retrying", "error", takeoverErr)
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}

		sweepTempFiles(lockPath)
		go lock.heartbeat()
		return lock, nil
	}

	return nil, fmt.Errorf("failed to acquire lock after %d attempts (contention)", maxAttempts)
}

// Release stops the heartbeat and removes the lock file. Safe to call twice.
func (l *Lock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return
	}

	l.cancel()
	l.removeFile()
	l.held = false
}

// newContent stamps the calling process's identity with a fresh nonce.
func newContent(appID string) (LockContent, error) {
	nonce, err := newNonce()
	if err != nil {
		return LockContent{}, err
	}
	hostname, err := os.Hostname()
	if err != nil {
		return LockContent{}, err
	}
	return LockContent{
		PID:        int64(os.Getpid()),
		Hostname:   hostname,
		LastUpdate: time.Now().UTC(),
		Nonce:      nonce,
		AppID:      appID,
	}, nil
}

func newLock(lockPath string, content LockContent) *Lock {
	ctx, cancel := context.WithCancel(context.Background())
	return &Lock{
		path:    lockPath,
		content: content,
		ctx:     ctx,
		cancel:  cancel,
		held:    true,
	}
}

// tryAcquire creates the lock file with O_EXCL so exactly one process
// can win the creation of a missing file.
func tryAcquire(lockPath string, appID string) (*Lock, error) {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, util.UserWritableFilePerms)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	content, err := newContent(appID)
	if err != nil {
		return nil, err
	}

	l := newLock(lockPath, content)

	// The file exists but is still empty; fill it before anyone reads it.
	// On failure remove the empty file again or it would block all comers.
	if err := writeContent(f, content); err != nil {
		l.removeFile()
		return nil, err
	}

	return l, nil
}

// takeOverStaleLock replaces a stale or corrupt lock via atomic rename and
// reads the file back to confirm this process, not a concurrent contender,
// ended up owning it.
func takeOverStaleLock(lockPath string, appID string) (*Lock, error) {
	content, err := newContent(appID)
	if err != nil {
		return nil, err
	}

	if err := writeAtomic(lockPath, content); err != nil {
		return nil, err
	}

	readback, err := readContentWithRetry(lockPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read back lock file after takeover: %w", err)
	}

	if readback.PID == content.PID && readback.Nonce == content.Nonce {
		plog.Debug("Successfully took over stale lock")
		return newLock(lockPath, content), nil
	}
	return nil, ErrLostRace
}

func (l *Lock) removeFile() {
	if err := os.Remove(l.path); err != nil {
		if !os.IsNotExist(err) {
			plog.Warn("Failed to remove lock file", "path", l.path, "error", err)
		}
	} else {
		plog.Debug("Lock released", "path", l.path)
	}
}

// heartbeat refreshes LastUpdate so long-running daemons never look stale.
func (l *Lock) heartbeat() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			l.content.LastUpdate = time.Now().UTC()
			if err := writeAtomic(l.path, l.content); err != nil {
				// Keep ticking; the next beat may succeed.
				plog.Warn("Heartbeat failed to update lock file", "error", err)
			}
		}
	}
}

// writeAtomic writes content to a temp file in the same directory and
// renames it over the lock path, so readers never observe a partial file.
func writeAtomic(lockPath string, content LockContent) error {
	dir := filepath.Dir(lockPath)

	tmpF, err := os.CreateTemp(dir, filepath.Base(lockPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp lock file: %w", err)
	}
	defer func() {
		// Gone-after-rename is the expected outcome here.
		if err := os.Remove(tmpF.Name()); err != nil && !os.IsNotExist(err) {
			plog.Warn("Failed to remove temporary lock file", "path", tmpF.Name(), "error", err)
		}
	}()

	if err := writeContent(tmpF, content); err != nil {
		tmpF.Close()
		return err
	}
	if err := tmpF.Sync(); err != nil {
		tmpF.Close()
		return err
	}
	// Rename with an open handle fails on Windows.
	if err := tmpF.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpF.Name(), lockPath); err != nil {
		return fmt.Errorf("failed to rename temp file to lock file: %w", err)
	}

	return nil
}

// sweepTempFiles removes temp files abandoned by crashed writers. Only
// files older than the stale timeout are touched, so a temp file mid-write
// by the current holder's heartbeat survives.
func sweepTempFiles(lockPath string) {
	pattern := filepath.Join(filepath.Dir(lockPath), filepath.Base(lockPath)+".*.tmp")

	matches, err := filepath.Glob(pattern)
	if err != nil {
		plog.Warn("Failed to glob for temporary lock files", "pattern", pattern, "error", err)
		return
	}

	threshold := time.Now().Add(-staleTimeout)
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			continue
		}
		if info.ModTime().Before(threshold) {
			plog.Debug("Removing old temporary lock file", "path", match, "age", time.Since(info.ModTime()))
			if err := os.Remove(match); err != nil && !os.IsNotExist(err) {
				plog.Warn("Failed to remove leftover temporary lock file", "path", match, "error", err)
			}
		}
	}
}

func newNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return fmt.Sprintf("%x", b), nil
}

func writeContent(w io.Writer, content LockContent) error {
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lock content: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write lock content: %w", err)
	}
	return nil
}

// readContentWithRetry reads the lock file, retrying briefly when it is
// empty or truncated. Atomic renames make that window small but an
// in-flight takeover on some filesystems can still expose it.
func readContentWithRetry(lockPath string) (LockContent, error) {
	var lastErr error
	var lastDecodeErr error

	for attempt := 0; attempt < 3; attempt++ {
		f, err := os.Open(lockPath)
		if err != nil {
			return LockContent{}, err
		}

		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			lastErr = err
			time.Sleep(50 * time.Millisecond)
			continue
		}

		if len(data) == 0 {
			lastDecodeErr = fmt.Errorf("lock file is empty")
			time.Sleep(50 * time.Millisecond)
			continue
		}

		var content LockContent
		lastDecodeErr = json.Unmarshal(data, &content)
		if lastDecodeErr != nil {
			time.Sleep(50 * time.Millisecond)
			continue
		}

		return content, nil
	}

	if lastDecodeErr != nil {
		return LockContent{}, fmt.Errorf("%w: %v", ErrCorruptLockFile, lastDecodeErr)
	}
	return LockContent{}, fmt.Errorf("failed to read valid lock content: %w", lastErr)
}
