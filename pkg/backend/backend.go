// Package backend presents local directories and remote FTP servers through
// a single listing/deletion contract, so the cleanup engine never branches
// on storage kind. Errors surface through the taxonomy in errors.go; the
// engine decides per category whether to record and continue or abort the
// run.
package backend

import "context"

// Entry is one item of a directory listing.
type Entry struct {
	Name string
	Dir  bool
	Size int64
}

// Backend is the capability surface a cleanup run needs from a storage
// location. Implementations return entries in whatever order the underlying
// system yields them; callers must not assume any ordering beyond that.
type Backend interface {
	// List returns the entries of dir. A missing dir yields a
	// *NotFoundError, a permission failure an *AccessError.
	List(ctx context.Context, dir string) ([]Entry, error)

	// DeleteFile removes a single file. A file that is already gone is
	// tolerated where the backend can detect it.
	DeleteFile(ctx context.Context, path string) error

	// RemoveDir removes a single directory the caller has confirmed empty.
	RemoveDir(ctx context.Context, path string) error

	// IsEmpty reports whether dir currently holds no entries at all.
	IsEmpty(ctx context.Context, dir string) (bool, error)

	// Join builds a child path using the backend's separator rules.
	Join(parent, name string) string

	// Type identifies the backend in reports and logs ("local", "ftp").
	Type() string

	// Close tears down any session held by the backend. It runs
	// unconditionally at job-run end and must be safe to call after a
	// failed operation.
	Close() error
}
