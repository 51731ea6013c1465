package preflight

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckLocalRoot(t *testing.T) {
	t.Run("Existing Directory", func(t *testing.T) {
		if err := CheckLocalRoot(t.TempDir(), false); err != nil {
			t.Errorf("expected no error for existing directory, but got: %v", err)
		}
	})

	t.Run("Missing Root", func(t *testing.T) {
		missing := filepath.Join(t.TempDir(), "nonexistent")
		err := CheckLocalRoot(missing, false)
		if err == nil {
			t.Fatal("expected an error for a missing root, but got nil")
		}
		if !strings.Contains(err.Error(), "does not exist") {
			t.Errorf("expected error about missing root, but got: %v", err)
		}
		var unsafe *UnsafeRootError
		if errors.As(err, &unsafe) {
			t.Error("a missing root is not a safety refusal")
		}
	})

	t.Run("Root Is A File", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "root.txt")
		if err := os.WriteFile(file, []byte("i am a file"), 0644); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}

		err := CheckLocalRoot(file, false)
		if err == nil {
			t.Fatal("expected an error when root is a file, but got nil")
		}
		if !strings.Contains(err.Error(), "is not a directory") {
			t.Errorf("expected error to be about 'not a directory', but got: %v", err)
		}
	})

	t.Run("Refuses Filesystem Root", func(t *testing.T) {
		err := CheckLocalRoot(string(filepath.Separator), false)
		if err == nil {
			t.Fatal("expected the filesystem root to be refused, but got nil")
		}
		if !strings.Contains(err.Error(), "refusing to sweep") {
			t.Errorf("expected a refusal error, but got: %v", err)
		}
		var unsafe *UnsafeRootError
		if !errors.As(err, &unsafe) {
			t.Fatalf("expected an UnsafeRootError, got %T: %v", err, err)
		}
		if unsafe.Reason != "filesystem root" {
			t.Errorf("expected reason 'filesystem root', got %q", unsafe.Reason)
		}
	})

	t.Run("Refuses Relative Dot", func(t *testing.T) {
		if err := CheckLocalRoot(".", false); err == nil {
			t.Fatal("expected the current directory to be refused, but got nil")
		}
	})

	t.Run("Refuses Home Directory", func(t *testing.T) {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			t.Skip("no user home directory available")
		}
		if err := CheckLocalRoot(home, false); err == nil {
			t.Fatal("expected the home directory to be refused, but got nil")
		}
	})

	t.Run("Force Overrides Refusal", func(t *testing.T) {
		// The stat and directory checks still run; only the safety refusal
		// is skipped. Nothing is deleted here.
		if err := CheckLocalRoot(string(filepath.Separator), true); err != nil {
			t.Errorf("expected -force to override the refusal, but got: %v", err)
		}
	})
}

func TestUnsafeRootReasons(t *testing.T) {
	if reason, unsafe := unsafeRoot(string(filepath.Separator)); !unsafe || reason != "filesystem root" {
		t.Errorf("expected filesystem root to be unsafe, got (%q, %t)", reason, unsafe)
	}
	if _, unsafe := unsafeRoot(filepath.Join(string(filepath.Separator), "var", "log", "web")); unsafe {
		t.Error("expected a deep application path to be safe")
	}
}
