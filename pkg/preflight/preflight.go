// Package preflight validates cleanup roots before a run deletes anything.
// The checks are stateless and give friendlier errors than letting the
// traversal fail on its first listing.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/logsweep/logsweep/pkg/plog"
)

// UnsafeRootError is the refusal to sweep a catastrophic root like the
// filesystem root or the user's home directory. Callers treat it as a
// configuration problem; every other preflight failure concerns just the
// one root.
type UnsafeRootError struct {
	Root   string
	Reason string
}

func (e *UnsafeRootError) Error() string {
	return fmt.Sprintf("refusing to sweep %s: %s (use -force to override)", e.Root, e.Reason)
}

// CheckLocalRoot verifies that root exists, is a directory, and does not
// point at an obviously catastrophic location like the filesystem root or
// the user's home directory. force skips the safety refusal, not the
// existence checks.
func CheckLocalRoot(root string, force bool) error {
	if reason, unsafe := unsafeRoot(root); unsafe {
		if !force {
			return &UnsafeRootError{Root: root, Reason: reason}
		}
		plog.Warn("Sweeping an unsafe root because -force is set", "root", root, "reason", reason)
	}

	info, err := os.Stat(root)
	if os.IsNotExist(err) {
		return fmt.Errorf("root directory %s does not exist", root)
	}
	if err != nil {
		return fmt.Errorf("cannot access root directory %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root path %s is not a directory", root)
	}

	if mount, err := IsMountPoint(root); err == nil && mount {
		plog.Warn("Cleanup root is the top of a mounted volume", "root", root)
	}

	return nil
}

// unsafeRoot reports whether sweeping root would endanger far more than
// application data, with a human-readable reason.
func unsafeRoot(root string) (string, bool) {
	cleaned := filepath.Clean(root)

	if cleaned == "." || cleaned == ".." {
		return "relative path", true
	}
	if cleaned == string(filepath.Separator) {
		return "filesystem root", true
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" && cleaned == filepath.Clean(home) {
		return "user home directory", true
	}

	return platformUnsafeRoot(cleaned)
}

// LogFreeSpace logs the free space of the filesystem holding root. Purely
// informational; a failure to read it never blocks a run.
func LogFreeSpace(root string) {
	free, err := FreeSpace(root)
	if err != nil {
		plog.Debug("Could not determine free space", "root", root, "error", err)
		return
	}
	plog.Info("Filesystem free space", "root", root, "free_mib", free/1024/1024)
}
