// Package inbox lists the documents of a batch run from a local directory
// or an FTP server.
package inbox

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/nfe-extract/internal/config"
)

// Document is a file ready for extraction on the local filesystem.
type Document struct {
	// Name is the file name as known at the source.
	Name string
	// Path is where the document can be read locally.
	Path string
}

// Source yields documents for a batch run. Close releases any local copies.
type Source interface {
	List(ctx context.Context) ([]Document, error)
	Close() error
}

// supported lists the extensions batch runs pick up.
var supported = map[string]bool{
	".xml": true, ".pdf": true, ".png": true, ".jpg": true, ".jpeg": true, ".txt": true,
}

// Supported reports whether name has an extension batch runs pick up.
func Supported(name string) bool {
	return supported[strings.ToLower(filepath.Ext(name))]
}

// Open returns the Source for target: an ftp:// URL, a directory or a
// single file.
func Open(target string, cfg config.InboxConfig) (Source, error) {
	if strings.HasPrefix(strings.ToLower(target), "ftp://") {
		return NewFTPSource(target, FTPOptions{
			User:     cfg.FTPUser,
			Password: cfg.FTPPassword,
			Timeout:  time.Duration(cfg.TimeoutSecs) * time.Second,
		})
	}

	info, err := os.Stat(target)
	if err != nil {
		return nil, eris.Wrapf(err, "inbox: stat %s", target)
	}
	if !info.IsDir() {
		return &LocalDir{files: []string{target}}, nil
	}
	return &LocalDir{Dir: target}, nil
}

// LocalDir lists the supported files directly inside Dir.
type LocalDir struct {
	Dir   string
	files []string
}

func (l *LocalDir) List(ctx context.Context) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "inbox: list")
	}
	if l.files != nil {
		docs := make([]Document, 0, len(l.files))
		for _, f := range l.files {
			docs = append(docs, Document{Name: filepath.Base(f), Path: f})
		}
		return docs, nil
	}

	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		return nil, eris.Wrapf(err, "inbox: read dir %s", l.Dir)
	}
	var docs []Document
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") || !Supported(name) {
			continue
		}
		docs = append(docs, Document{Name: name, Path: filepath.Join(l.Dir, name)})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}

func (l *LocalDir) Close() error { return nil }
