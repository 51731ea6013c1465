//go:build windows

package preflight

import "path/filepath"

// IsMountPoint reports whether path is the root of a volume (e.g. "C:\").
// Volumes mounted into folders are not detected; drive roots cover the
// common case of log directories on a dedicated disk.
func IsMountPoint(path string) (bool, error) {
	return filepath.VolumeName(path)+string(filepath.Separator) == path, nil
}
