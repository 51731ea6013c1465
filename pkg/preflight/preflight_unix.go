//go:build !windows

package preflight

import (
	"golang.org/x/sys/unix"
)

// platformUnsafeRoot has nothing to add on Unix-like systems; the common
// checks already cover the filesystem root and the home directory.
func platformUnsafeRoot(cleaned string) (string, bool) {
	return "", false
}

// FreeSpace returns the free bytes available to unprivileged users on the
// filesystem holding path.
func FreeSpace(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return uint64(stat.Bavail) * uint64(stat.Bsize), nil
}
