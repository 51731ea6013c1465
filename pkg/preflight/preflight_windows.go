//go:build windows

package preflight

import (
	"path/filepath"
	"strings"

	"golang.org/x/sys/windows"
)

// platformUnsafeRoot refuses whole drives and network share roots. A bare
// drive letter like "C:" cleans to "C:.", so both spellings are checked.
func platformUnsafeRoot(cleaned string) (string, bool) {
	vol := filepath.VolumeName(cleaned)
	if vol == "" {
		return "", false
	}

	if cleaned == vol || cleaned == vol+"." {
		if strings.Contains(vol, string(filepath.Separator)) {
			return "network share root", true
		}
		return "bare drive letter", true
	}
	if cleaned == vol+string(filepath.Separator) {
		if strings.Contains(vol, string(filepath.Separator)) {
			return "network share root", true
		}
		return "volume root", true
	}

	return "", false
}

// FreeSpace returns the free bytes available to the calling user on the
// volume holding path.
func FreeSpace(path string) (uint64, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}
	var freeToCaller, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(p, &freeToCaller, &total, &totalFree); err != nil {
		return 0, err
	}
	return freeToCaller, nil
}
