//go:build !windows

package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// IsMountPoint reports whether path is a mount point. A directory whose
// device id differs from its parent's sits on its own filesystem; the
// root path is its own parent and always counts.
func IsMountPoint(path string) (bool, error) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		return false, err
	}

	parent := filepath.Dir(path)
	parentInfo, err := os.Stat(parent)
	if err != nil {
		return false, err
	}

	stat, ok := fileInfo.Sys().(*syscall.Stat_t)
	if !ok {
		return false, fmt.Errorf("unsupported platform for syscall.Stat_t")
	}
	parentStat, ok := parentInfo.Sys().(*syscall.Stat_t)
	if !ok {
		return false, fmt.Errorf("unsupported platform for syscall.Stat_t")
	}

	return stat.Dev != parentStat.Dev || path == parent, nil
}
