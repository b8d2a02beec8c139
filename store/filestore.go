package store

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// FileStore is a minimal interface for file-oriented storage.
//
// Paths are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type FileStore interface {
	// Read opens the named file for reading.
	// If the file does not exist, an error wrapping os.ErrNotExist is returned.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens the named file for writing. The content becomes visible
	// under path only when the returned WriteCloser is closed successfully;
	// readers never observe a partially written file.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes the named file. Missing files are not an error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether the named file exists.
	Exists(ctx context.Context, path string) (bool, error)
}

// Local implements FileStore on top of the local filesystem.
type Local struct {
	root string
}

// NewLocal creates a Local store rooted at dir, creating it if needed.
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &Local{root: abs}, nil
}

// Root returns the absolute root directory.
func (l *Local) Root() string {
	return l.root
}

func (l *Local) resolve(path string) (string, error) {
	p := filepath.FromSlash(path)
	if !filepath.IsLocal(p) {
		return "", errors.Errorf("path escapes store root: %q", path)
	}
	return filepath.Join(l.root, p), nil
}

// Read opens the named file for reading.
func (l *Local) Read(_ context.Context, path string) (io.ReadCloser, error) {
	full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

// Write creates a temporary file next to path; Close syncs it and renames it
// over path.
func (l *Local) Write(_ context.Context, path string) (io.WriteCloser, error) {
	full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(filepath.Dir(full), "."+filepath.Base(full)+".tmp-*")
	if err != nil {
		return nil, err
	}
	return &atomicFile{File: f, target: full}, nil
}

// Delete removes the named file.
func (l *Local) Delete(_ context.Context, path string) error {
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	err = os.Remove(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Exists reports whether the named file exists.
func (l *Local) Exists(_ context.Context, path string) (bool, error) {
	full, err := l.resolve(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

type atomicFile struct {
	*os.File
	target string
	done   bool
}

func (f *atomicFile) Close() error {
	if f.done {
		return nil
	}
	f.done = true

	err := f.File.Sync()
	err = multierr.Append(err, f.File.Close())
	if err == nil {
		err = os.Rename(f.File.Name(), f.target)
	}
	if err != nil {
		return multierr.Append(err, os.Remove(f.File.Name()))
	}
	return nil
}

// Abort drops the temporary file without touching the target.
func (f *atomicFile) Abort() error {
	if f.done {
		return nil
	}
	f.done = true
	return multierr.Append(f.File.Close(), os.Remove(f.File.Name()))
}

// writeFile writes data to path as one unit. Writers that support Abort are
// rolled back when the write fails.
func writeFile(ctx context.Context, files FileStore, path string, data []byte) error {
	w, err := files.Write(ctx, path)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		if a, ok := w.(interface{ Abort() error }); ok {
			return multierr.Append(err, a.Abort())
		}
		return multierr.Append(err, w.Close())
	}
	return w.Close()
}

func readFile(ctx context.Context, files FileStore, path string) (data []byte, err error) {
	r, err := files.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err0 := r.Close(); err0 != nil {
			err = multierr.Append(err, err0)
		}
	}()
	return io.ReadAll(r)
}
