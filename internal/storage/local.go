package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Compile-time check that LocalStorage implements FS.
var _ FS = (*LocalStorage)(nil)

// LocalStorage implements FS on local disk.
// Each instance owns a unique directory created under a base directory.
type LocalStorage struct {
	baseDir string
	root    string
}

// NewLocalStorage creates a new LocalStorage instance.
// The baseDir parameter is where scratch directories are created.
// If baseDir is empty, os.TempDir()/audiosplit is used.
// The base directory is created if it doesn't exist.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "audiosplit")
	}

	if err := os.MkdirAll(baseDir, 0750); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}

	root, err := os.MkdirTemp(baseDir, "engine-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}

	return &LocalStorage{baseDir: baseDir, root: root}, nil
}

// BaseDir returns the directory scratch directories are created in.
func (s *LocalStorage) BaseDir() string {
	return s.baseDir
}

// Root returns the scratch directory path.
func (s *LocalStorage) Root() string {
	return s.root
}

// WriteFile writes data to name inside the scratch directory.
// A partially written file is removed on failure.
func (s *LocalStorage) WriteFile(ctx context.Context, name string, data io.Reader) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	path, err := s.resolve(name)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600) // #nosec G304 - name is validated by resolve
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close file: %w", err)
	}

	return nil
}

// ReadFile returns the contents of name.
func (s *LocalStorage) ReadFile(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path) // #nosec G304 - name is validated by resolve
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// Remove deletes the named files.
// Missing files are ignored. It continues on failure and returns the first error.
func (s *LocalStorage) Remove(ctx context.Context, names ...string) error {
	var firstErr error
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled: %w", err)
		}

		path, err := s.resolve(name)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove file %s: %w", name, err)
			}
		}
	}
	return firstErr
}

// List returns the entries of the scratch directory sorted by name.
func (s *LocalStorage) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	dirEntries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		var size int64
		if info, err := de.Info(); err == nil {
			size = info.Size()
		}
		entries = append(entries, Entry{
			Name:  de.Name(),
			IsDir: de.IsDir(),
			Size:  size,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Close removes the scratch directory.
func (s *LocalStorage) Close() error {
	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("remove scratch directory: %w", err)
	}
	return nil
}

// resolve maps a flat file name to a path inside the scratch directory.
func (s *LocalStorage) resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.root, name), nil
}
