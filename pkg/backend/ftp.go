package backend

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/textproto"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/logsweep/logsweep/pkg/plog"
)

// FTPOptions is the connection profile for one session.
type FTPOptions struct {
	// Name of the target profile, for log context.
	Name string
	// Addr is the dialable "host:port".
	Addr string
	// Host is the bare hostname, used for TLS verification.
	Host     string
	Username string
	Password string
	// TLS upgrades the control connection after connect (explicit FTPS).
	TLS                bool
	InsecureSkipVerify bool
	// Timeout bounds the connect and every subsequent command.
	Timeout time.Duration
}

// ftpConn is the slice of the FTP client the backend drives. *ftp.ServerConn
// satisfies it; tests substitute a scripted fake.
type ftpConn interface {
	List(path string) ([]*ftp.Entry, error)
	NameList(path string) ([]string, error)
	ChangeDir(path string) error
	CurrentDir() (string, error)
	Delete(path string) error
	RemoveDir(path string) error
	Quit() error
}

// FTP serves cleanup runs against one remote session. One session is
// established per job run and reused for every root and descent of that
// run; Close tears it down unconditionally.
type FTP struct {
	conn ftpConn
	opts FTPOptions
}

var _ Backend = (*FTP)(nil)

// deadlineConn pushes the configured timeout onto every read and write, so
// a stalled server bounds each command instead of hanging the run.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if err := c.Conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	if err := c.Conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(b)
}

// DialFTP connects and authenticates a new session. Connect failures of any
// kind, including connect timeouts, surface as *ConnectionError; rejected
// credentials as *AuthError.
func DialFTP(ctx context.Context, opts FTPOptions) (*FTP, error) {
	dialer := &net.Dialer{Timeout: opts.Timeout}
	dialFunc := func(network, address string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, network, address)
		if err != nil {
			return nil, err
		}
		return &deadlineConn{Conn: conn, timeout: opts.Timeout}, nil
	}

	dialOpts := []ftp.DialOption{ftp.DialWithDialFunc(dialFunc)}
	if opts.TLS {
		dialOpts = append(dialOpts, ftp.DialWithExplicitTLS(&tls.Config{
			ServerName:         opts.Host,
			InsecureSkipVerify: opts.InsecureSkipVerify,
		}))
	}

	conn, err := ftp.Dial(opts.Addr, dialOpts...)
	if err != nil {
		return nil, &ConnectionError{Host: opts.Addr, Cause: err}
	}

	if err := conn.Login(opts.Username, opts.Password); err != nil {
		// The session never reached a usable state; drop it right here.
		if quitErr := conn.Quit(); quitErr != nil {
			plog.Debug("Quit after failed login returned an error", "target", opts.Name, "error", quitErr)
		}
		var proto *textproto.Error
		if errors.As(err, &proto) && (proto.Code == 530 || proto.Code == 532) {
			return nil, &AuthError{Host: opts.Addr, Username: opts.Username, Cause: err}
		}
		return nil, &ConnectionError{Host: opts.Addr, Cause: err}
	}

	plog.Debug("FTP session established", "target", opts.Name, "addr", opts.Addr, "tls", opts.TLS)
	return &FTP{conn: conn, opts: opts}, nil
}

// List returns the entries of dir. The machine-parsable listing is
// authoritative; the legacy name listing plus directory probe runs only
// when the primary command is rejected or its output cannot be parsed,
// never speculatively.
func (f *FTP) List(ctx context.Context, dir string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := f.conn.List(dir)
	if err == nil {
		return convertEntries(raw), nil
	}

	primary := f.classify("list", dir, err)
	if !shouldFallBack(primary) {
		return nil, primary
	}

	plog.Notice("Extended listing unavailable, using legacy name listing", "target", f.opts.Name, "dir", dir, "error", err)
	entries, legacyErr := f.listLegacy(dir)
	if legacyErr != nil {
		// The fallback saw the live server state; its error supersedes
		// the parse-level failure of the primary command.
		return nil, legacyErr
	}
	return entries, nil
}

// DeleteFile issues a remove-file command.
func (f *FTP) DeleteFile(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.conn.Delete(p); err != nil {
		return f.classify("delete", p, err)
	}
	return nil
}

// RemoveDir issues a remove-directory command for a directory the engine
// has already confirmed empty.
func (f *FTP) RemoveDir(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.conn.RemoveDir(p); err != nil {
		return f.classify("remove-dir", p, err)
	}
	return nil
}

// IsEmpty re-lists dir through the same fallback-aware algorithm and
// reports whether it yields zero entries.
func (f *FTP) IsEmpty(ctx context.Context, dir string) (bool, error) {
	entries, err := f.List(ctx, dir)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}

// Join joins remote path elements with forward slashes.
func (f *FTP) Join(parent, name string) string {
	return path.Join(parent, name)
}

// Type identifies this backend in reports.
func (f *FTP) Type() string {
	return "ftp"
}

// WorkingDir reports the session's current remote directory. The connection
// test uses it to prove the session answers commands after login.
func (f *FTP) WorkingDir(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir, err := f.conn.CurrentDir()
	if err != nil {
		return "", f.classify("pwd", "", err)
	}
	return dir, nil
}

// Close logs out and drops the session. Safe to call more than once.
func (f *FTP) Close() error {
	if f.conn == nil {
		return nil
	}
	err := f.conn.Quit()
	f.conn = nil
	if err != nil {
		return &ConnectionError{Host: f.opts.Addr, Cause: err}
	}
	plog.Debug("FTP session closed", "target", f.opts.Name)
	return nil
}

// listLegacy lists dir by bare names and classifies each entry by probing
// it with a directory change. Strictly slower: one extra round trip per
// entry.
func (f *FTP) listLegacy(dir string) ([]Entry, error) {
	names, err := f.conn.NameList(dir)
	if err != nil {
		return nil, f.classify("name-list", dir, err)
	}

	// Every probe must put us back here afterwards.
	prevDir, err := f.conn.CurrentDir()
	if err != nil {
		return nil, f.classify("pwd", dir, err)
	}

	entries := make([]Entry, 0, len(names))
	for _, raw := range names {
		// Servers disagree on whether NLST returns bare names or full
		// paths; reduce everything to the base name.
		name := path.Base(strings.ReplaceAll(raw, "\\", "/"))
		if name == "." || name == ".." || name == "/" || name == "" {
			continue
		}

		isDir, err := f.probeDir(f.Join(dir, name), prevDir)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Name: name, Dir: isDir})
	}
	return entries, nil
}

// probeDir classifies one entry by attempting to change into it. A refusal
// means file, a success means directory. The prior working directory is
// restored on every exit path that moved away from it; a failed restore
// aborts the listing because every later probe would start from the wrong
// place.
func (f *FTP) probeDir(childPath, prevDir string) (bool, error) {
	if err := f.conn.ChangeDir(childPath); err != nil {
		classified := f.classify("cwd-probe", childPath, err)
		if IsFatal(classified) {
			return false, classified
		}
		return false, nil
	}

	if err := f.conn.ChangeDir(prevDir); err != nil {
		return true, f.classify("cwd-restore", prevDir, err)
	}
	return true, nil
}

// convertEntries maps the client's typed entries into the backend contract,
// preserving server order. Links and specials are surfaced as files so the
// engine never descends into them.
func convertEntries(raw []*ftp.Entry) []Entry {
	entries := make([]Entry, 0, len(raw))
	for _, e := range raw {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		entries = append(entries, Entry{
			Name: e.Name,
			Dir:  e.Type == ftp.EntryTypeFolder,
			Size: int64(e.Size),
		})
	}
	return entries
}

// classify maps a raw client error into the shared taxonomy. Reply code 550
// covers both "no such file" and "action not taken"; the reply text decides
// which side it lands on.
func (f *FTP) classify(op, p string, err error) error {
	if err == nil {
		return nil
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Op: op, Path: p, Timeout: f.opts.Timeout, Cause: err}
	}

	var proto *textproto.Error
	if errors.As(err, &proto) {
		switch {
		case proto.Code == 530 || proto.Code == 532:
			return &AuthError{Host: f.opts.Addr, Username: f.opts.Username, Cause: err}
		case proto.Code == 421:
			// Service closing control connection.
			return &ConnectionError{Host: f.opts.Addr, Cause: err}
		case proto.Code == 550:
			if isPermissionText(proto.Msg) {
				return &AccessError{Path: p, Cause: err}
			}
			return &NotFoundError{Path: p, Cause: err}
		case proto.Code == 553:
			return &AccessError{Path: p, Cause: err}
		default:
			// Remaining replies are per-entry command refusals.
			return &AccessError{Path: p, Cause: err}
		}
	}

	if errors.Is(err, io.EOF) || isNetFailure(err) {
		return &ConnectionError{Host: f.opts.Addr, Cause: err}
	}

	return &AccessError{Path: p, Cause: err}
}

// shouldFallBack reports whether a failed primary listing justifies the
// legacy fallback. Errors the taxonomy already explains (missing path,
// permissions, dead session, timeout) are final. Rejected listing commands
// and unparsable listing output get the fallback.
func shouldFallBack(classified error) bool {
	if IsFatal(classified) {
		return false
	}
	if IsNotFound(classified) {
		return false
	}
	var accessErr *AccessError
	if errors.As(classified, &accessErr) {
		var proto *textproto.Error
		if errors.As(accessErr.Cause, &proto) {
			switch proto.Code {
			case 500, 501, 502, 504:
				// Command not implemented or rejected: the fallback is
				// exactly for these servers.
				return true
			}
			// Other replies describe real directory state.
			return false
		}
		// Non-protocol causes are client-side parse failures.
		return true
	}
	return true
}

// isPermissionText sniffs a 550 reply's message for permission wording.
func isPermissionText(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "permission") || strings.Contains(lower, "denied") || strings.Contains(lower, "access")
}

// isNetFailure reports low-level transport failures that mean the session
// is no longer usable.
func isNetFailure(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
