package backend

import (
	"context"
	"os"
	"path/filepath"
)

// Local serves cleanup runs against the local filesystem. It is stateless;
// one value can back any number of concurrent runs.
type Local struct{}

var _ Backend = (*Local)(nil)

// NewLocal returns a filesystem backend.
func NewLocal() *Local {
	return &Local{}
}

// List returns the entries of dir in directory order.
func (l *Local) List(ctx context.Context, dir string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, classifyLocal(dir, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		entry := Entry{Name: de.Name(), Dir: de.IsDir()}
		if !entry.Dir {
			if info, err := de.Info(); err == nil {
				entry.Size = info.Size()
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// DeleteFile removes a single file. A file that vanished between listing
// and deletion is not an error.
func (l *Local) DeleteFile(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return classifyLocal(path, err)
	}
	return nil
}

// RemoveDir removes an empty directory. The OS refuses a non-empty one,
// which protects against a directory refilled between the emptiness check
// and the removal.
func (l *Local) RemoveDir(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		return classifyLocal(path, err)
	}
	return nil
}

// IsEmpty reports whether dir holds no entries.
func (l *Local) IsEmpty(ctx context.Context, dir string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return false, classifyLocal(dir, err)
	}
	return len(dirEntries) == 0, nil
}

// Join joins path elements with the OS separator.
func (l *Local) Join(parent, name string) string {
	return filepath.Join(parent, name)
}

// Type identifies this backend in reports.
func (l *Local) Type() string {
	return "local"
}

// Close is a no-op; the local backend holds no session.
func (l *Local) Close() error {
	return nil
}

// classifyLocal maps an os error into the shared taxonomy. Anything that is
// neither "missing" nor clearly permission-related is still recorded
// per-entry, so it lands in AccessError rather than aborting the run.
func classifyLocal(path string, err error) error {
	switch {
	case os.IsNotExist(err):
		return &NotFoundError{Path: path, Cause: err}
	default:
		return &AccessError{Path: path, Cause: err}
	}
}
