//go:build windows

package preflight

import (
	"testing"
)

func TestPlatformUnsafeRoot_Windows(t *testing.T) {
	cases := []struct {
		name    string
		cleaned string // as produced by filepath.Clean
		want    bool
	}{
		{"Bare Drive", `C:`, true},
		{"Cleaned Bare Drive", `C:.`, true},
		{"Volume Root", `C:\`, true},
		{"Network Share Root", `\\server\share`, true},
		{"Drive Subdirectory", `C:\logs`, false},
		{"Share Subdirectory", `\\server\share\logs`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, unsafe := platformUnsafeRoot(tc.cleaned); unsafe != tc.want {
				t.Errorf("platformUnsafeRoot(%q) = %t, want %t", tc.cleaned, unsafe, tc.want)
			}
		})
	}
}

func TestFreeSpace_Windows(t *testing.T) {
	free, err := FreeSpace(t.TempDir())
	if err != nil {
		t.Fatalf("expected free space lookup to succeed, but got: %v", err)
	}
	if free == 0 {
		t.Error("expected non-zero free space on the test volume")
	}
}
