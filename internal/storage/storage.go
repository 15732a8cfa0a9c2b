// Package storage provides the scratch filesystem the transcoding engine works in.
// Every engine instance gets its own directory; names inside it are flat
// (no subdirectories), mirroring the engine's virtual filesystem.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrInvalidName is returned when a file name would escape the scratch directory.
var ErrInvalidName = errors.New("storage: invalid file name")

// Entry describes one item in the scratch directory.
type Entry struct {
	Name  string
	IsDir bool
	Size  int64
}

// FS defines the scratch filesystem used by the engine.
type FS interface {
	// Root returns the absolute path of the scratch directory.
	Root() string

	// WriteFile creates or truncates name and fills it from data.
	WriteFile(ctx context.Context, name string, data io.Reader) error

	// ReadFile returns the full contents of name.
	ReadFile(ctx context.Context, name string) ([]byte, error)

	// Remove deletes the named files.
	// It continues even if some files fail to delete and returns the first error.
	Remove(ctx context.Context, names ...string) error

	// List returns the entries of the scratch directory sorted by name.
	List(ctx context.Context) ([]Entry, error)

	// Close removes the scratch directory and everything in it.
	Close() error
}
