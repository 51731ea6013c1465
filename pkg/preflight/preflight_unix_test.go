//go:build !windows

package preflight

import (
	"testing"
)

func TestFreeSpace_Unix(t *testing.T) {
	free, err := FreeSpace(t.TempDir())
	if err != nil {
		t.Fatalf("expected free space lookup to succeed, but got: %v", err)
	}
	if free == 0 {
		t.Error("expected non-zero free space on the test filesystem")
	}
}

func TestIsMountPoint_Unix(t *testing.T) {
	mount, err := IsMountPoint("/")
	if err != nil {
		t.Fatalf("expected mount point check on / to succeed, but got: %v", err)
	}
	if !mount {
		t.Error("expected / to be a mount point")
	}

	// A fresh temp subdirectory shares its parent's device.
	mount, err = IsMountPoint(t.TempDir())
	if err != nil {
		t.Fatalf("expected mount point check to succeed, but got: %v", err)
	}
	if mount {
		t.Error("expected a temp subdirectory not to be a mount point")
	}
}
