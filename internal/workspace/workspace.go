// Package workspace holds the user's working state: the selected file, the
// segment duration, and the triggers that start a run or package results.
// It is the single entry point the HTTP surface and the CLI drive.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/maauso/audiosplit/internal/archive"
	"github.com/maauso/audiosplit/internal/audio"
	"github.com/maauso/audiosplit/internal/presenter"
	"github.com/maauso/audiosplit/internal/segment"
)

// Static errors for workspace operations.
var (
	// ErrBusy is returned when the selection or duration changes during a run.
	ErrBusy = errors.New("workspace: a run is in progress")
	// ErrNoFile is returned when a run is started without a selected file.
	ErrNoFile = errors.New("workspace: no file selected")
	// ErrSegmentNotFound is returned for an unknown segment name.
	ErrSegmentNotFound = errors.New("workspace: segment not found")
)

// EngineSession is the part of engine.Session the workspace depends on.
type EngineSession interface {
	Initialize(ctx context.Context) error
	Ready() bool
	Status() string
	Logs() []string
	OnLog(fn func(string)) (unsubscribe func())
}

// FileInfo describes the selected file.
type FileInfo struct {
	Name        string     `json:"name"`
	Size        int64      `json:"size"`
	ContentType string     `json:"content_type"`
	Tags        audio.Tags `json:"tags"`
}

// Snapshot is everything a UI needs to render the current state.
type Snapshot struct {
	View            presenter.View     `json:"view"`
	CanStart        bool               `json:"can_start"`
	CanDownload     bool               `json:"can_download"`
	EngineStatus    string             `json:"engine_status"`
	File            *FileInfo          `json:"file,omitempty"`
	Minutes         int                `json:"minutes"`
	DurationSeconds int                `json:"duration_seconds"`
	Logs            []string           `json:"logs"`
	Segments        []segment.Artifact `json:"segments"`
	Notice          string             `json:"notice,omitempty"`
	RunID           string             `json:"run_id,omitempty"`
}

// Workspace coordinates the engine session, the segmenter and the packager on
// behalf of one user.
type Workspace struct {
	session   EngineSession
	segmenter *segment.Segmenter
	packager  *archive.Packager
	logger    *slog.Logger

	mu       sync.RWMutex
	file     *audio.SourceFile
	info     *FileInfo
	duration audio.Duration

	watchers *notifier
	stopLogs func()
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithDuration sets the initial segment duration.
func WithDuration(d audio.Duration) Option {
	return func(w *Workspace) {
		if d.Validate() == nil {
			w.duration = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workspace) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New creates a Workspace. Call Close to stop following engine logs.
func New(session EngineSession, segmenter *segment.Segmenter, packager *archive.Packager, opts ...Option) *Workspace {
	w := &Workspace{
		session:   session,
		segmenter: segmenter,
		packager:  packager,
		logger:    slog.Default(),
		duration:  audio.DefaultDuration,
		watchers:  newNotifier(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.stopLogs = session.OnLog(func(string) { w.watchers.notify() })
	return w
}

// Close releases the current artifacts and stops following engine logs.
func (w *Workspace) Close() {
	w.stopLogs()
	w.segmenter.Clear()
}

// LoadEngine initializes the engine session. After a failure it is the manual
// retry path.
func (w *Workspace) LoadEngine(ctx context.Context) error {
	defer w.watchers.notify()
	return w.session.Initialize(ctx)
}

// Select makes file the current source. Non-audio files are rejected. Results
// of an earlier file are released.
func (w *Workspace) Select(file *audio.SourceFile) error {
	if err := file.Validate(); err != nil {
		return err
	}

	info := &FileInfo{
		Name:        file.Name(),
		Size:        file.Size(),
		ContentType: file.ContentType(),
	}
	tags, err := file.Tags()
	if err != nil {
		w.logger.Warn("failed to read file tags",
			slog.String("file", file.Name()),
			slog.String("error", err.Error()),
		)
	}
	info.Tags = tags

	w.mu.Lock()
	if w.segmenter.Active() {
		w.mu.Unlock()
		return ErrBusy
	}
	w.file = file
	w.info = info
	w.segmenter.Clear()
	w.mu.Unlock()

	w.logger.Info("file selected",
		slog.String("file", info.Name),
		slog.Int64("size", info.Size),
		slog.String("content_type", info.ContentType),
	)
	w.watchers.notify()
	return nil
}

// Clear drops the current file and its results.
func (w *Workspace) Clear() error {
	w.mu.Lock()
	if w.segmenter.Active() {
		w.mu.Unlock()
		return ErrBusy
	}
	w.file = nil
	w.info = nil
	w.segmenter.Clear()
	w.mu.Unlock()

	w.watchers.notify()
	return nil
}

// SetMinutes sets the segment duration from the minutes control. Values below
// one minute are clamped.
func (w *Workspace) SetMinutes(minutes int) (audio.Duration, error) {
	return w.SetDuration(audio.FromMinutes(minutes))
}

// SetDuration sets the segment duration.
func (w *Workspace) SetDuration(d audio.Duration) (audio.Duration, error) {
	if err := d.Validate(); err != nil {
		return 0, err
	}

	w.mu.Lock()
	if w.segmenter.Active() {
		w.mu.Unlock()
		return 0, ErrBusy
	}
	w.duration = d
	w.mu.Unlock()

	w.watchers.notify()
	return d, nil
}

// Duration returns the current segment duration.
func (w *Workspace) Duration() audio.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.duration
}

// begin reserves a run for the current file and duration. The lock keeps the
// selection stable until the reservation is held.
func (w *Workspace) begin(ctx context.Context) (*segment.Ticket, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil, ErrNoFile
	}
	t, err := w.segmenter.Begin(ctx, w.file, w.duration)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Start runs segmentation on the current file and waits for the result.
func (w *Workspace) Start(ctx context.Context) ([]segment.Artifact, error) {
	t, err := w.begin(ctx)
	if err != nil {
		return nil, err
	}
	w.watchers.notify()
	defer w.watchers.notify()

	return t.Execute(ctx)
}

// StartAsync reserves a run and executes it in the background. Rejections are
// returned synchronously; the run outcome is delivered on the channel.
func (w *Workspace) StartAsync(ctx context.Context) (string, <-chan error, error) {
	t, err := w.begin(ctx)
	if err != nil {
		return "", nil, err
	}
	w.watchers.notify()

	done := make(chan error, 1)
	go func() {
		defer close(done)
		_, err := t.Execute(ctx)
		w.watchers.notify()
		done <- err
	}()
	return t.RunID(), done, nil
}

// Run returns the run with the given ID.
func (w *Workspace) Run(ctx context.Context, id string) (*segment.Run, error) {
	return w.segmenter.FindRun(ctx, id)
}

// Runs returns the retained runs, oldest first.
func (w *Workspace) Runs(ctx context.Context) ([]*segment.Run, error) {
	return w.segmenter.Runs(ctx)
}

// Wait blocks until the active run, if any, has finished or ctx is done.
func (w *Workspace) Wait(ctx context.Context) error {
	return w.segmenter.Wait(ctx)
}

// Segments returns the current artifacts in ordinal order.
func (w *Workspace) Segments() []segment.Artifact {
	return w.segmenter.Artifacts()
}

// Segment returns the artifact with the given name or playable reference,
// and its bytes.
func (w *Workspace) Segment(name string) (segment.Artifact, []byte, error) {
	a, ok := w.segmenter.Find(name)
	if !ok {
		return segment.Artifact{}, nil, fmt.Errorf("%w: %s", ErrSegmentNotFound, name)
	}
	data, err := a.Bytes()
	if err != nil {
		return segment.Artifact{}, nil, fmt.Errorf("%w: %s", ErrSegmentNotFound, name)
	}
	return a, data, nil
}

// Archive packages the current artifacts into one ZIP.
func (w *Workspace) Archive(ctx context.Context) ([]byte, error) {
	artifacts := w.segmenter.Artifacts()
	data, err := w.packager.PackageAll(ctx, artifacts)
	if err != nil {
		return nil, fmt.Errorf("package segments: %w", err)
	}
	w.logger.Info("segments packaged",
		slog.String("method", string(w.packager.Method())),
		slog.Int("segments", len(artifacts)),
		slog.Int("bytes", len(data)),
	)
	return data, nil
}

// Snapshot returns the current presentation state.
func (w *Workspace) Snapshot(ctx context.Context) Snapshot {
	w.mu.RLock()
	info := w.info
	d := w.duration
	w.mu.RUnlock()

	segments := w.segmenter.Artifacts()
	status := segment.StatusIdle
	var runID string
	if run, err := w.segmenter.LastRun(ctx); err == nil {
		status = run.Status
		runID = run.ID
	}
	if w.segmenter.Active() {
		status = segment.StatusRunning
	}

	in := presenter.Input{
		EngineReady: w.session.Ready(),
		HasFile:     info != nil,
		RunStatus:   status,
		Segments:    len(segments),
	}
	view := presenter.Derive(in)

	var file *FileInfo
	if info != nil {
		copied := *info
		file = &copied
	}

	return Snapshot{
		View:            view,
		CanStart:        view.CanStart(),
		CanDownload:     view.CanDownload(),
		EngineStatus:    w.session.Status(),
		File:            file,
		Minutes:         d.Minutes(),
		DurationSeconds: d.Seconds(),
		Logs:            w.session.Logs(),
		Segments:        segments,
		Notice:          presenter.Notice(in),
		RunID:           runID,
	}
}

// Watch returns a channel that receives a value whenever the state may have
// changed. Bursts are coalesced. Call cancel to stop watching.
func (w *Workspace) Watch() (changes <-chan struct{}, cancel func()) {
	return w.watchers.subscribe()
}
