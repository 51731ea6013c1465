package lockfile

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/logsweep/logsweep/pkg/util"
)

// TestAcquireAndRelease verifies the lock file appears on acquire and
// disappears on release.
func TestAcquireAndRelease(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, LockFileName)

	lock, err := Acquire(context.Background(), dir, "logsweep-daemon")
	if err != nil {
		t.Fatalf("expected to acquire lock, but got error: %v", err)
	}

	if _, err := os.Stat(lockPath); os.IsNotExist(err) {
		t.Fatal("lock file was not created after acquiring lock")
	}

	lock.Release()

	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Fatal("lock file was not removed after releasing lock")
	}
}

// TestContention ensures a second daemon cannot acquire an active lock.
func TestContention(t *testing.T) {
	dir := t.TempDir()

	lock1, err := Acquire(context.Background(), dir, "daemon-a")
	if err != nil {
		t.Fatalf("first daemon failed to acquire lock: %v", err)
	}
	defer lock1.Release()

	_, err = Acquire(context.Background(), dir, "daemon-b")
	if err == nil {
		t.Fatal("second daemon unexpectedly acquired an active lock")
	}

	var lockErr *ErrLockActive
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected error of type *ErrLockActive, but got %T: %v", err, err)
	}
	if lockErr.AppID != "daemon-a" {
		t.Errorf("expected lock error to report AppID 'daemon-a', but got '%s'", lockErr.AppID)
	}
}

// TestStaleLockTakeover verifies a lock left behind by a crashed daemon
// can be taken over once it has aged past the stale timeout.
func TestStaleLockTakeover(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, LockFileName)

	stale := LockContent{
		PID:        99999,
		Hostname:   "crashed-host",
		LastUpdate: time.Now().Add(-(staleTimeout + time.Minute)),
		Nonce:      "dead-nonce",
		AppID:      "crashed-daemon",
	}
	data, _ := json.Marshal(stale)
	if err := os.WriteFile(lockPath, data, util.UserWritableFilePerms); err != nil {
		t.Fatalf("failed to create stale lock file: %v", err)
	}

	lock, err := Acquire(context.Background(), dir, "fresh-daemon")
	if err != nil {
		t.Fatalf("failed to take over stale lock: %v", err)
	}
	defer lock.Release()

	content, err := readContentWithRetry(lockPath)
	if err != nil {
		t.Fatalf("failed to read content of newly acquired lock: %v", err)
	}
	if content.AppID != "fresh-daemon" {
		t.Errorf("expected new lock to have AppID 'fresh-daemon', but got '%s'", content.AppID)
	}
}

// TestStaleLockContention races two processes for the same stale lock and
// requires exactly one winner.
func TestStaleLockContention(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, LockFileName)

	stale := LockContent{
		PID:        99999,
		Hostname:   "crashed-host",
		LastUpdate: time.Now().Add(-(staleTimeout + time.Minute)),
		Nonce:      "dead-nonce",
		AppID:      "crashed-daemon",
	}
	data, _ := json.Marshal(stale)
	if err := os.WriteFile(lockPath, data, util.UserWritableFilePerms); err != nil {
		t.Fatalf("failed to create stale lock file: %v", err)
	}

	var wg sync.WaitGroup
	failures := make(chan error, 2)
	winners := make(chan *Lock, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock, err := Acquire(context.Background(), dir, "contender")
			if err != nil {
				failures <- err
				return
			}
			winners <- lock
		}()
	}

	wg.Wait()
	close(failures)
	close(winners)

	// The loser may see ErrLostRace on one attempt and ErrLockActive on the
	// next; the only hard requirement is a single winner.
	if len(winners) != 1 {
		t.Fatalf("expected exactly one process to win the stale lock, but %d did", len(winners))
	}
	for lock := range winners {
		lock.Release()
	}
}

// TestHeartbeatKeepsLockFresh ensures a held lock with a running heartbeat
// is never treated as stale.
func TestHeartbeatKeepsLockFresh(t *testing.T) {
	originalHeartbeat := heartbeatInterval
	originalStale := staleTimeout
	heartbeatInterval = 50 * time.Millisecond
	staleTimeout = 3 * heartbeatInterval
	t.Cleanup(func() {
		heartbeatInterval = originalHeartbeat
		staleTimeout = originalStale
	})

	dir := t.TempDir()

	lock1, err := Acquire(context.Background(), dir, "daemon-a")
	if err != nil {
		t.Fatalf("failed to acquire initial lock: %v", err)
	}
	defer lock1.Release()

	// Longer than one heartbeat, shorter than the stale timeout.
	time.Sleep(heartbeatInterval + 25*time.Millisecond)

	_, err = Acquire(context.Background(), dir, "daemon-b")
	if err == nil {
		t.Fatal("expected lock acquisition to fail, but it succeeded")
	}
	var lockErr *ErrLockActive
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected ErrLockActive, but got %T", err)
	}
}

// TestReleaseIdempotency verifies calling Release twice is harmless.
func TestReleaseIdempotency(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, LockFileName)

	lock, err := Acquire(context.Background(), dir, "logsweep-daemon")
	if err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}

	lock.Release()
	lock.Release()

	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Fatal("lock file still exists after multiple releases")
	}
}

// TestReadContentWithRetry covers the retry behavior against valid,
// empty, corrupt, and transiently empty lock files.
func TestReadContentWithRetry(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "retry.lock")

	t.Run("Reads valid file", func(t *testing.T) {
		hostname, _ := os.Hostname()
		content := LockContent{PID: 1, AppID: "valid", Hostname: hostname, Nonce: "abc"}
		data, _ := json.Marshal(content)
		if err := os.WriteFile(lockPath, data, util.UserWritableFilePerms); err != nil {
			t.Fatalf("failed to write test lock file: %v", err)
		}

		got, err := readContentWithRetry(lockPath)
		if err != nil {
			t.Fatalf("failed to read valid content: %v", err)
		}
		if got.AppID != "valid" {
			t.Errorf("expected AppID 'valid', got '%s'", got.AppID)
		}
	})

	t.Run("Fails on persistently empty file", func(t *testing.T) {
		if err := os.WriteFile(lockPath, []byte{}, util.UserWritableFilePerms); err != nil {
			t.Fatalf("failed to write empty file: %v", err)
		}

		_, err := readContentWithRetry(lockPath)
		if err == nil {
			t.Fatal("expected error reading empty file, but got nil")
		}
		if !errors.Is(err, ErrCorruptLockFile) {
			t.Errorf("expected error to be ErrCorruptLockFile, got: %v", err)
		}
	})

	t.Run("Fails on persistently corrupt file", func(t *testing.T) {
		if err := os.WriteFile(lockPath, []byte("{not json"), util.UserWritableFilePerms); err != nil {
			t.Fatalf("failed to write corrupt file: %v", err)
		}

		_, err := readContentWithRetry(lockPath)
		if err == nil {
			t.Fatal("expected error reading corrupt file, but got nil")
		}
		if !errors.Is(err, ErrCorruptLockFile) {
			t.Errorf("expected error to be ErrCorruptLockFile, got: %v", err)
		}
	})

	t.Run("Succeeds after transient empty state", func(t *testing.T) {
		if err := os.WriteFile(lockPath, []byte{}, util.UserWritableFilePerms); err != nil {
			t.Fatalf("failed to write initial empty file: %v", err)
		}

		// Fill the file while the reader is mid-retry.
		go func() {
			time.Sleep(20 * time.Millisecond)
			hostname, _ := os.Hostname()
			content := LockContent{PID: 2, AppID: "transient", Hostname: hostname, Nonce: "xyz"}
			data, _ := json.Marshal(content)
			if err := os.WriteFile(lockPath, data, util.UserWritableFilePerms); err != nil {
				t.Logf("error writing final content in goroutine: %v", err)
			}
		}()

		got, err := readContentWithRetry(lockPath)
		if err != nil {
			t.Fatalf("failed to read transiently empty file: %v", err)
		}
		if got.AppID != "transient" {
			t.Errorf("expected AppID 'transient', got '%s'", got.AppID)
		}
	})
}

// TestSweepTempFiles verifies only temp files older than the stale timeout
// are removed.
func TestSweepTempFiles(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "sweep.lock")

	oldTemp := filepath.Join(dir, "sweep.lock.111.tmp")
	if err := os.WriteFile(oldTemp, []byte("old"), util.UserWritableFilePerms); err != nil {
		t.Fatalf("failed to create old temp file: %v", err)
	}
	oldTime := time.Now().Add(-(staleTimeout + time.Minute))
	if err := os.Chtimes(oldTemp, oldTime, oldTime); err != nil {
		t.Fatalf("failed to set mod time on old temp file: %v", err)
	}

	freshTemp := filepath.Join(dir, "sweep.lock.222.tmp")
	if err := os.WriteFile(freshTemp, []byte("fresh"), util.UserWritableFilePerms); err != nil {
		t.Fatalf("failed to create fresh temp file: %v", err)
	}

	sweepTempFiles(lockPath)

	if _, err := os.Stat(oldTemp); !os.IsNotExist(err) {
		t.Error("expected old temporary file to be deleted, but it still exists")
	}
	if _, err := os.Stat(freshTemp); err != nil {
		t.Errorf("expected fresh temporary file to be kept, got: %v", err)
	}
}
