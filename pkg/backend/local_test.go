package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalList(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.log"), []byte("payload"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatalf("failed to create test dir: %v", err)
	}

	entries, err := NewLocal().List(context.Background(), dir)
	if err != nil {
		t.Fatalf("expected listing to succeed, got: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	byName := map[string]Entry{}
	for _, e := range entries {
		byName[e.Name] = e
	}
	if e, ok := byName["a.log"]; !ok || e.Dir {
		t.Errorf("expected a.log as a file entry, got %+v", e)
	}
	if e, ok := byName["a.log"]; ok && e.Size != int64(len("payload")) {
		t.Errorf("expected a.log size %d, got %d", len("payload"), e.Size)
	}
	if e, ok := byName["sub"]; !ok || !e.Dir {
		t.Errorf("expected sub as a directory entry, got %+v", e)
	}
}

func TestLocalList_MissingDir(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "gone")

	_, err := NewLocal().List(context.Background(), missing)

	if err == nil {
		t.Fatal("expected an error listing a missing directory, got nil")
	}
	if !IsNotFound(err) {
		t.Errorf("expected a NotFoundError, got %T: %v", err, err)
	}
}

func TestLocalDeleteFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.log")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	l := NewLocal()
	if err := l.DeleteFile(context.Background(), file); err != nil {
		t.Fatalf("expected delete to succeed, got: %v", err)
	}
	if _, err := os.Stat(file); !os.IsNotExist(err) {
		t.Error("expected the file to be gone after delete")
	}

	// Deleting it again must be tolerated, not an error.
	if err := l.DeleteFile(context.Background(), file); err != nil {
		t.Errorf("expected deleting a missing file to be tolerated, got: %v", err)
	}
}

func TestLocalRemoveDir(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	full := filepath.Join(dir, "full")
	if err := os.Mkdir(empty, 0755); err != nil {
		t.Fatalf("failed to create empty dir: %v", err)
	}
	if err := os.Mkdir(full, 0755); err != nil {
		t.Fatalf("failed to create full dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(full, "keep.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("failed to create blocking file: %v", err)
	}

	l := NewLocal()
	if err := l.RemoveDir(context.Background(), empty); err != nil {
		t.Fatalf("expected empty dir removal to succeed, got: %v", err)
	}
	if err := l.RemoveDir(context.Background(), full); err == nil {
		t.Error("expected removing a non-empty dir to fail, got nil")
	}
}

func TestLocalIsEmpty(t *testing.T) {
	dir := t.TempDir()
	l := NewLocal()

	empty, err := l.IsEmpty(context.Background(), dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !empty {
		t.Error("expected a fresh temp dir to be empty")
	}

	if err := os.WriteFile(filepath.Join(dir, "a.log"), []byte("x"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	empty, err = l.IsEmpty(context.Background(), dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if empty {
		t.Error("expected a dir with one file to be non-empty")
	}
}

func TestLocalJoinAndType(t *testing.T) {
	l := NewLocal()
	if got, want := l.Join("parent", "child"), filepath.Join("parent", "child"); got != want {
		t.Errorf("expected join %q, got %q", want, got)
	}
	if l.Type() != "local" {
		t.Errorf("expected type 'local', got %q", l.Type())
	}
	if err := l.Close(); err != nil {
		t.Errorf("expected Close to be a no-op, got: %v", err)
	}
}

func TestLocalList_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLocal().List(ctx, t.TempDir())

	if err == nil {
		t.Fatal("expected an error for a cancelled context, got nil")
	}
}
