package inbox

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPOptions configures the FTP source.
type FTPOptions struct {
	User     string
	Password string
	Timeout  time.Duration
}

// remote is the part of an FTP session the source needs.
type remote interface {
	List(path string) ([]*ftp.Entry, error)
	Open(path string) (io.ReadCloser, error)
	Quit() error
}

// FTPSource downloads the supported files of one FTP directory into a
// temporary directory.
type FTPSource struct {
	host string
	dir  string
	opts FTPOptions
	dial func(ctx context.Context, host string, opts FTPOptions) (remote, error)

	tmpDir string
}

// NewFTPSource creates an FTPSource for an ftp://host[:port]/dir URL.
func NewFTPSource(rawURL string, opts FTPOptions) (*FTPSource, error) {
	host, dir, err := parseFTPURL(rawURL)
	if err != nil {
		return nil, err
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.User == "" {
		opts.User = "anonymous"
		opts.Password = "anonymous@"
	}
	return &FTPSource{host: host, dir: dir, opts: opts, dial: dialFTP}, nil
}

// parseFTPURL extracts host (with port) and path from an FTP URL.
func parseFTPURL(rawURL string) (host string, dir string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "inbox: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("inbox: expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	dir = u.Path
	if dir == "" {
		dir = "/"
	}
	return host, dir, nil
}

// List downloads every supported file in the remote directory. Files that
// fail to download are logged and skipped.
func (s *FTPSource) List(ctx context.Context) ([]Document, error) {
	zap.L().Debug("inbox: ftp connecting", zap.String("host", s.host), zap.String("dir", s.dir))

	conn, err := s.dial(ctx, s.host, s.opts)
	if err != nil {
		return nil, err
	}
	defer conn.Quit() //nolint:errcheck

	entries, err := conn.List(s.dir)
	if err != nil {
		return nil, eris.Wrapf(err, "inbox: ftp list %s", s.dir)
	}

	if s.tmpDir == "" {
		s.tmpDir, err = os.MkdirTemp("", "nfe-inbox-*")
		if err != nil {
			return nil, eris.Wrap(err, "inbox: create temp dir")
		}
	}

	var docs []Document
	for _, e := range entries {
		if e.Type != ftp.EntryTypeFile || !Supported(e.Name) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return docs, eris.Wrap(err, "inbox: ftp list")
		}
		local := filepath.Join(s.tmpDir, filepath.Base(e.Name))
		if err := download(conn, path.Join(s.dir, e.Name), local); err != nil {
			zap.L().Warn("inbox: ftp download failed", zap.String("file", e.Name), zap.Error(err))
			continue
		}
		docs = append(docs, Document{Name: e.Name, Path: local})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}

// Close removes the downloaded copies.
func (s *FTPSource) Close() error {
	if s.tmpDir == "" {
		return nil
	}
	err := os.RemoveAll(s.tmpDir)
	s.tmpDir = ""
	return eris.Wrap(err, "inbox: remove temp dir")
}

func download(conn remote, remotePath, localPath string) error {
	rc, err := conn.Open(remotePath)
	if err != nil {
		return eris.Wrapf(err, "inbox: ftp retrieve %s", remotePath)
	}
	defer rc.Close() //nolint:errcheck

	f, err := os.Create(localPath)
	if err != nil {
		return eris.Wrap(err, "inbox: create file")
	}
	defer f.Close() //nolint:errcheck

	if _, err := io.Copy(f, rc); err != nil {
		return eris.Wrap(err, "inbox: write file")
	}
	return nil
}

// serverConn adapts *ftp.ServerConn to remote.
type serverConn struct {
	*ftp.ServerConn
}

func (c serverConn) Open(p string) (io.ReadCloser, error) {
	resp, err := c.Retr(p)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func dialFTP(ctx context.Context, host string, opts FTPOptions) (remote, error) {
	conn, err := ftp.Dial(host, ftp.DialWithTimeout(opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "inbox: ftp dial")
	}
	if err := conn.Login(opts.User, opts.Password); err != nil {
		conn.Quit() //nolint:errcheck
		return nil, eris.Wrap(err, "inbox: ftp login")
	}
	return serverConn{conn}, nil
}
