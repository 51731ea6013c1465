package backend

import (
	"errors"
	"fmt"
	"time"
)

// NotFoundError reports a path or entry that no longer exists.
// It is tolerated: the run records it and moves on.
type NotFoundError struct {
	// Path is the file or directory that was missing
	Path string

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("path %q not found", e.Path)
}

// Unwrap returns the underlying error for error chain support.
func (e *NotFoundError) Unwrap() error {
	return e.Cause
}

// AccessError reports a permission failure on a single entry.
// Traversal continues with the remaining siblings.
type AccessError struct {
	// Path is the entry the operation was refused on
	Path string

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *AccessError) Error() string {
	return fmt.Sprintf("access denied for %q: %v", e.Path, e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *AccessError) Unwrap() error {
	return e.Cause
}

// ConnectionError reports a session that could not be established or broke
// mid-run. It is fatal to the affected job run.
type ConnectionError struct {
	// Host is the remote endpoint
	Host string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %q failed: %v", e.Host, e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// AuthError reports rejected credentials. Fatal to the affected job run.
type AuthError struct {
	// Host is the remote endpoint that rejected the login
	Host string

	// Username is the rejected account
	Username string

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for user %q on %q", e.Username, e.Host)
}

// Unwrap returns the underlying error for error chain support.
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// TimeoutError reports a command that exceeded the configured timeout.
// The in-flight run is aborted and the session torn down.
type TimeoutError struct {
	// Op is the operation that timed out ("list", "delete", ...)
	Op string

	// Path is the entry being operated on (if any)
	Path string

	// Timeout is the configured bound that was exceeded
	Timeout time.Duration

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s of %q timed out after %s", e.Op, e.Path, e.Timeout)
	}
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Timeout)
}

// Unwrap returns the underlying error for error chain support.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// ConfigError reports a job that cannot run as configured, for example an
// ftp job whose target profile does not exist. It fails the run before any
// traversal begins.
type ConfigError struct {
	// Job is the name of the misconfigured job
	Job string

	// Message describes what is wrong
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("job %q configuration error: %s", e.Job, e.Message)
}

// IsNotFound reports whether err is a NotFoundError anywhere in its chain.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsAccess reports whether err is an AccessError anywhere in its chain.
func IsAccess(err error) bool {
	var target *AccessError
	return errors.As(err, &target)
}

// IsFatal reports whether err must abort the whole job run rather than be
// recorded per-entry: connection, auth and timeout failures plus
// configuration errors.
func IsFatal(err error) bool {
	var connErr *ConnectionError
	var authErr *AuthError
	var timeoutErr *TimeoutError
	var configErr *ConfigError
	return errors.As(err, &connErr) ||
		errors.As(err, &authErr) ||
		errors.As(err, &timeoutErr) ||
		errors.As(err, &configErr)
}

// Kind returns a short stable label for an error's taxonomy category, used
// in report lines.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsNotFound(err):
		return "not-found"
	case IsAccess(err):
		return "access"
	default:
		var connErr *ConnectionError
		var authErr *AuthError
		var timeoutErr *TimeoutError
		var configErr *ConfigError
		switch {
		case errors.As(err, &timeoutErr):
			return "timeout"
		case errors.As(err, &authErr):
			return "auth"
		case errors.As(err, &connErr):
			return "connection"
		case errors.As(err, &configErr):
			return "config"
		}
		return "error"
	}
}
