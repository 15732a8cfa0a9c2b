package segment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/maauso/audiosplit/internal/audio"
	"github.com/maauso/audiosplit/internal/blob"
	"github.com/maauso/audiosplit/internal/engine"
)

// Static errors for segmentation.
var (
	// ErrRunInProgress is returned when a run is requested while another is active.
	ErrRunInProgress = errors.New("segment: a run is already in progress")
	// ErrEngineNotReady is returned when the engine session is not ready.
	ErrEngineNotReady = errors.New("segment: engine is not ready")
	// ErrProcessingFailed matches every *ProcessingError.
	ErrProcessingFailed = errors.New("segment: processing failed")
	// ErrNoSegments is returned when the engine finished without producing output.
	ErrNoSegments = errors.New("segment: engine produced no segments")
	// ErrTicketUsed is returned when a Ticket is executed twice.
	ErrTicketUsed = errors.New("segment: ticket already executed")
)

// Step names the stage of a run that failed.
type Step string

// Run steps.
const (
	StepReadSource Step = "read source"
	StepWrite      Step = "write input"
	StepExec       Step = "segment"
	StepList       Step = "list outputs"
	StepRead       Step = "read output"
)

// ProcessingError describes a failed run.
type ProcessingError struct {
	RunID string
	Step  Step
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("run %s failed at %s: %v", e.RunID, e.Step, e.Err)
}

// Is makes every ProcessingError match ErrProcessingFailed.
func (e *ProcessingError) Is(target error) bool {
	return target == ErrProcessingFailed
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// EngineSource hands out the engine once it is ready.
// engine.Session satisfies it.
type EngineSource interface {
	Engine() (engine.Engine, error)
	ResetLogs()
}

// DefaultRunHistory is how many finished runs are kept by default.
const DefaultRunHistory = 20

// Segmenter runs the segmentation pipeline and owns the current artifact set.
// At most one run is active at a time.
type Segmenter struct {
	engines EngineSource
	blobs   *blob.Store
	repo    Repository
	logger  *slog.Logger
	history int

	active atomic.Bool

	mu        sync.RWMutex
	artifacts []Artifact
	lastRunID string
	// idle is closed when the reserved run finishes; nil when none is reserved.
	idle chan struct{}
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Segmenter) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRepository sets where runs are kept. Defaults to a MemoryRepository.
func WithRepository(repo Repository) Option {
	return func(s *Segmenter) {
		if repo != nil {
			s.repo = repo
		}
	}
}

// WithRunHistory sets how many finished runs the repository keeps.
// Older ones are deleted when a new run begins.
func WithRunHistory(n int) Option {
	return func(s *Segmenter) {
		if n > 0 {
			s.history = n
		}
	}
}

// NewSegmenter creates a Segmenter that stores artifact bytes in blobs.
func NewSegmenter(engines EngineSource, blobs *blob.Store, opts ...Option) *Segmenter {
	s := &Segmenter{
		engines: engines,
		blobs:   blobs,
		repo:    NewMemoryRepository(),
		logger:  slog.Default(),
		history: DefaultRunHistory,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ticket is a reserved run waiting to be executed.
type Ticket struct {
	s      *Segmenter
	run    *Run
	engine engine.Engine
	file   *audio.SourceFile
	d      audio.Duration
	ext    string
	used   atomic.Bool
}

// RunID returns the ID of the reserved run.
func (t *Ticket) RunID() string { return t.run.ID }

// Run splits file into segments of duration d and returns the new artifact set.
func (s *Segmenter) Run(ctx context.Context, file *audio.SourceFile, d audio.Duration) ([]Artifact, error) {
	t, err := s.Begin(ctx, file, d)
	if err != nil {
		return nil, err
	}
	return t.Execute(ctx)
}

// Begin validates the request and reserves the single run slot.
// Rejections happen here, before any run state exists. The caller must call
// Execute on the returned ticket.
func (s *Segmenter) Begin(ctx context.Context, file *audio.SourceFile, d audio.Duration) (*Ticket, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	ext, err := file.Extension()
	if err != nil {
		return nil, err
	}

	if !s.active.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}

	eng, err := s.engines.Engine()
	if err != nil {
		s.active.Store(false)
		s.logger.Debug("run rejected", slog.String("error", err.Error()))
		return nil, ErrEngineNotReady
	}

	run := NewRun(file.Name(), d)
	if err := run.Start(); err != nil {
		s.active.Store(false)
		return nil, err
	}
	if err := s.repo.Save(ctx, run); err != nil {
		s.active.Store(false)
		return nil, fmt.Errorf("save run: %w", err)
	}

	s.mu.Lock()
	s.lastRunID = run.ID
	s.idle = make(chan struct{})
	s.mu.Unlock()

	s.pruneRuns(ctx, s.history)
	s.engines.ResetLogs()

	return &Ticket{s: s, run: run, engine: eng, file: file, d: d, ext: ext}, nil
}

// Execute performs the reserved run. On success the previous artifact set is
// released and replaced; on failure it is left untouched.
func (t *Ticket) Execute(ctx context.Context) ([]Artifact, error) {
	if !t.used.CompareAndSwap(false, true) {
		return nil, ErrTicketUsed
	}
	s := t.s
	defer s.release()

	logger := s.logger.With(slog.String("run_id", t.run.ID))
	logger.Info("segmentation started",
		slog.String("source", t.file.Name()),
		slog.Int64("size", t.file.Size()),
		slog.Int("segment_seconds", t.d.Seconds()),
	)

	artifacts, step, err := t.process(ctx, logger)
	saveCtx := context.WithoutCancel(ctx)

	if err != nil {
		releaseAll(artifacts)
		_ = t.run.Fail(err.Error())
		if saveErr := s.repo.Save(saveCtx, t.run); saveErr != nil {
			logger.Warn("failed to save run", slog.String("error", saveErr.Error()))
		}
		logger.Error("segmentation failed",
			slog.String("step", string(step)),
			slog.String("error", err.Error()),
		)
		return nil, &ProcessingError{RunID: t.run.ID, Step: step, Err: err}
	}

	names := make([]string, len(artifacts))
	for i, a := range artifacts {
		names[i] = a.Name
	}
	_ = t.run.Succeed(names)
	if saveErr := s.repo.Save(saveCtx, t.run); saveErr != nil {
		logger.Warn("failed to save run", slog.String("error", saveErr.Error()))
	}

	s.replace(artifacts)
	logger.Info("segmentation completed", slog.Int("segments", len(artifacts)))

	return append([]Artifact(nil), artifacts...), nil
}

// process runs the engine steps. Artifacts created before a failure are
// returned so the caller can release them.
func (t *Ticket) process(ctx context.Context, logger *slog.Logger) (artifacts []Artifact, step Step, err error) {
	input := audio.InputName(t.ext)
	var outputs []audio.Segment
	listed := false

	defer func() {
		t.cleanup(ctx, logger, input, outputs, listed)
	}()

	data, err := t.file.Bytes()
	if err != nil {
		return nil, StepReadSource, err
	}

	if err := t.engine.WriteFile(ctx, input, data); err != nil {
		return nil, StepWrite, err
	}

	if err := t.engine.Exec(ctx, audio.SegmentArgs(input, t.d, t.ext)); err != nil {
		return nil, StepExec, err
	}

	entries, err := t.engine.ListDir(ctx, ".")
	if err != nil {
		return nil, StepList, err
	}
	outputs = audio.MatchSegments(fileNames(entries), t.ext)
	listed = true
	if len(outputs) == 0 {
		return nil, StepList, ErrNoSegments
	}

	contentType := t.file.ContentType()
	for _, seg := range outputs {
		b, err := t.engine.ReadFile(ctx, seg.Name)
		if err != nil {
			return artifacts, StepRead, fmt.Errorf("%s: %w", seg.Name, err)
		}
		artifacts = append(artifacts, NewArtifact(t.s.blobs, seg.Name, seg.Index, b, contentType))
	}
	return artifacts, "", nil
}

// cleanup removes the input and every produced segment from the engine.
// Failures are logged and never returned.
func (t *Ticket) cleanup(ctx context.Context, logger *slog.Logger, input string, outputs []audio.Segment, listed bool) {
	ctx = context.WithoutCancel(ctx)

	if !listed {
		entries, err := t.engine.ListDir(ctx, ".")
		if err != nil {
			logger.Warn("cleanup: failed to list engine files", slog.String("error", err.Error()))
		} else {
			outputs = audio.MatchSegments(fileNames(entries), t.ext)
		}
	}

	names := make([]string, 0, len(outputs)+1)
	names = append(names, input)
	for _, seg := range outputs {
		names = append(names, seg.Name)
	}

	for _, name := range names {
		if err := t.engine.DeleteFile(ctx, name); err != nil {
			logger.Warn("cleanup: failed to delete engine file",
				slog.String("file", name),
				slog.String("error", err.Error()),
			)
		}
	}
}

func fileNames(entries []engine.DirEntry) []string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir {
			names = append(names, e.Name)
		}
	}
	return names
}

// replace swaps in a new artifact set and releases the previous one.
func (s *Segmenter) replace(artifacts []Artifact) {
	s.mu.Lock()
	old := s.artifacts
	s.artifacts = artifacts
	s.mu.Unlock()
	releaseAll(old)
}

// release frees the run slot and wakes Wait callers.
func (s *Segmenter) release() {
	s.mu.Lock()
	if s.idle != nil {
		close(s.idle)
		s.idle = nil
	}
	s.mu.Unlock()
	s.active.Store(false)
}

// Wait blocks until the reserved run, if any, has finished or ctx is done.
func (s *Segmenter) Wait(ctx context.Context) error {
	s.mu.RLock()
	idle := s.idle
	s.mu.RUnlock()
	if idle == nil {
		return nil
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pruneRuns deletes finished runs beyond the newest keep.
func (s *Segmenter) pruneRuns(ctx context.Context, keep int) {
	runs, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Warn("failed to list runs", slog.String("error", err.Error()))
		return
	}

	finished := 0
	for i := len(runs) - 1; i >= 0; i-- {
		run := runs[i]
		if !run.IsTerminal() {
			continue
		}
		finished++
		if finished <= keep {
			continue
		}
		if err := s.repo.Delete(ctx, run.ID); err != nil && !errors.Is(err, ErrRunNotFound) {
			s.logger.Warn("failed to delete run",
				slog.String("run_id", run.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Artifacts returns the current artifact set in ordinal order.
func (s *Segmenter) Artifacts() []Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Artifact(nil), s.artifacts...)
}

// Find returns the current artifact called name. A playable reference is
// accepted in place of the name.
func (s *Segmenter) Find(name string) (Artifact, bool) {
	byRef := blob.IsRef(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.artifacts {
		if (byRef && a.Ref == name) || (!byRef && a.Name == name) {
			return a, true
		}
	}
	return Artifact{}, false
}

// Clear releases the current artifacts and forgets every finished run.
func (s *Segmenter) Clear() {
	s.mu.Lock()
	old := s.artifacts
	s.artifacts = nil
	s.lastRunID = ""
	s.mu.Unlock()
	releaseAll(old)
	s.pruneRuns(context.Background(), 0)
}

// Active reports whether a run is reserved or executing.
func (s *Segmenter) Active() bool {
	return s.active.Load()
}

// FindRun returns the run with the given ID.
func (s *Segmenter) FindRun(ctx context.Context, id string) (*Run, error) {
	return s.repo.FindByID(ctx, id)
}

// Runs returns the retained runs, oldest first.
func (s *Segmenter) Runs(ctx context.Context) ([]*Run, error) {
	return s.repo.List(ctx)
}

// LastRun returns the most recent run since the last Clear.
// Returns ErrRunNotFound if there is none.
func (s *Segmenter) LastRun(ctx context.Context) (*Run, error) {
	s.mu.RLock()
	id := s.lastRunID
	s.mu.RUnlock()
	if id == "" {
		return nil, ErrRunNotFound
	}
	return s.repo.FindByID(ctx, id)
}
