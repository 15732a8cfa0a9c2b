// Package engine provides the transcoding engine capability and the session that
// owns its lifecycle.
//
// The engine is modelled as a small capability surface: load once, then write,
// execute, read, list and delete files in its private filesystem while emitting
// human-readable log lines. FFmpegEngine backs it with the ffmpeg CLI.
package engine

import (
	"context"
	"errors"
)

// Static errors for engine operations.
var (
	// ErrNotLoaded is returned when an operation is attempted before Load succeeded.
	ErrNotLoaded = errors.New("engine: not loaded")
	// ErrExecFailed is returned when the engine command exits unsuccessfully.
	ErrExecFailed = errors.New("engine: command failed")
	// ErrUnsupportedPath is returned when ListDir is asked for anything but the root.
	ErrUnsupportedPath = errors.New("engine: unsupported path")
)

// DirEntry is one entry of the engine filesystem.
type DirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
}

// LogEvent is a single log notification emitted by the engine.
type LogEvent struct {
	Message string `json:"message"`
}

// Engine defines the capability the segmentation pipeline needs from a
// transcoding engine.
type Engine interface {
	// Load prepares the engine for use. It may be slow.
	Load(ctx context.Context) error

	// WriteFile stores data under name in the engine filesystem.
	WriteFile(ctx context.Context, name string, data []byte) error

	// Exec runs one engine command with the given arguments.
	Exec(ctx context.Context, args []string) error

	// ReadFile returns the contents of name from the engine filesystem.
	ReadFile(ctx context.Context, name string) ([]byte, error)

	// DeleteFile removes name from the engine filesystem.
	DeleteFile(ctx context.Context, name string) error

	// ListDir lists the entries of path in the engine filesystem.
	ListDir(ctx context.Context, path string) ([]DirEntry, error)

	// OnLog registers fn for every log event and returns a function that
	// removes the registration.
	OnLog(fn func(LogEvent)) (unsubscribe func())
}
