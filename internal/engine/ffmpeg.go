package engine

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/maauso/audiosplit/internal/storage"
)

// defaultArgs are prepended to every command: no banner, never read stdin,
// overwrite outputs left over from an earlier failed run.
var defaultArgs = []string{"-hide_banner", "-nostdin", "-y"}

// FFmpegEngine implements Engine using the ffmpeg CLI.
// Its filesystem is a storage.FS scratch directory used as the working
// directory of every command. Operations are serialized.
type FFmpegEngine struct {
	ffmpegPath string
	fs         storage.FS
	watch      bool
	logger     *slog.Logger

	// opMu serializes engine operations.
	opMu     sync.Mutex
	resolved string

	listenersMu sync.RWMutex
	listeners   map[int]func(LogEvent)
	nextID      int
}

// FFmpegOption configures an FFmpegEngine.
type FFmpegOption func(*FFmpegEngine)

// WithFFmpegPath sets the ffmpeg binary. Defaults to "ffmpeg" found in PATH.
func WithFFmpegPath(path string) FFmpegOption {
	return func(e *FFmpegEngine) {
		if path != "" {
			e.ffmpegPath = path
		}
	}
}

// WithOutputWatch enables filesystem notifications for files created while a
// command runs. Each created file is reported as a log event.
func WithOutputWatch(enabled bool) FFmpegOption {
	return func(e *FFmpegEngine) {
		e.watch = enabled
	}
}

// WithEngineLogger sets the logger for engine diagnostics.
func WithEngineLogger(logger *slog.Logger) FFmpegOption {
	return func(e *FFmpegEngine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewFFmpegEngine creates an FFmpegEngine working inside fs.
func NewFFmpegEngine(fs storage.FS, opts ...FFmpegOption) *FFmpegEngine {
	e := &FFmpegEngine{
		ffmpegPath: "ffmpeg",
		fs:         fs,
		logger:     slog.Default(),
		listeners:  make(map[int]func(LogEvent)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load resolves the ffmpeg binary and checks that it runs.
func (e *FFmpegEngine) Load(ctx context.Context) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	path, err := exec.LookPath(e.ffmpegPath)
	if err != nil {
		return fmt.Errorf("locate ffmpeg %q: %w", e.ffmpegPath, err)
	}

	cmd := exec.CommandContext(ctx, path, "-hide_banner", "-version")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run ffmpeg -version: %w, stderr: %s", err, stderr.String())
	}

	version, _, _ := strings.Cut(stdout.String(), "\n")
	e.resolved = path
	e.logger.Info("ffmpeg located",
		slog.String("path", path),
		slog.String("version", strings.TrimSpace(version)),
	)
	e.emit(strings.TrimSpace(version))
	return nil
}

// WriteFile stores data under name in the scratch directory.
func (e *FFmpegEngine) WriteFile(ctx context.Context, name string, data []byte) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if e.resolved == "" {
		return ErrNotLoaded
	}
	return e.fs.WriteFile(ctx, name, bytes.NewReader(data))
}

// Exec runs ffmpeg with args inside the scratch directory.
// Every stderr line is emitted as a log event.
func (e *FFmpegEngine) Exec(ctx context.Context, args []string) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if e.resolved == "" {
		return ErrNotLoaded
	}

	full := append(append([]string{}, defaultArgs...), args...)
	cmd := exec.CommandContext(ctx, e.resolved, full...)
	cmd.Dir = e.fs.Root()

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("attach stderr: %w", err)
	}

	if e.watch {
		stop, err := watchCreated(e.fs.Root(), e.emit)
		if err != nil {
			e.logger.Warn("output watch unavailable",
				slog.String("error", err.Error()),
			)
		} else {
			defer stop()
		}
	}

	e.logger.Debug("executing ffmpeg",
		slog.String("dir", cmd.Dir),
		slog.Any("args", full),
	)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start: %v", ErrExecFailed, err)
	}

	last := e.pump(stderr)

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("%w: %v, last output: %s", ErrExecFailed, err, last)
	}
	return nil
}

// pump emits every line read from r and returns the last non-empty line.
func (e *FFmpegEngine) pump(r io.Reader) string {
	var last string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(scanLogLines)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		last = line
		e.emit(line)
	}
	return last
}

// ReadFile returns the contents of name.
func (e *FFmpegEngine) ReadFile(ctx context.Context, name string) ([]byte, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if e.resolved == "" {
		return nil, ErrNotLoaded
	}
	return e.fs.ReadFile(ctx, name)
}

// DeleteFile removes name from the scratch directory.
func (e *FFmpegEngine) DeleteFile(ctx context.Context, name string) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if e.resolved == "" {
		return ErrNotLoaded
	}
	return e.fs.Remove(ctx, name)
}

// ListDir lists the scratch directory. Only the root ("." or "") is supported.
func (e *FFmpegEngine) ListDir(ctx context.Context, path string) ([]DirEntry, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if e.resolved == "" {
		return nil, ErrNotLoaded
	}
	if path != "." && path != "" && path != "/" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPath, path)
	}

	entries, err := e.fs.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]DirEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, DirEntry{Name: entry.Name, IsDir: entry.IsDir})
	}
	return out, nil
}

// OnLog registers fn for every log event.
func (e *FFmpegEngine) OnLog(fn func(LogEvent)) func() {
	e.listenersMu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	e.listenersMu.Unlock()

	return func() {
		e.listenersMu.Lock()
		delete(e.listeners, id)
		e.listenersMu.Unlock()
	}
}

func (e *FFmpegEngine) emit(msg string) {
	e.listenersMu.RLock()
	defer e.listenersMu.RUnlock()
	for _, fn := range e.listeners {
		fn(LogEvent{Message: msg})
	}
}

// scanLogLines splits on '\n' and on the bare '\r' ffmpeg uses for progress.
func scanLogLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// Verify interface implementation at compile time.
var _ Engine = (*FFmpegEngine)(nil)
