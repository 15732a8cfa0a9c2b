// Package segment provides the segmentation orchestrator: it drives the
// transcoding engine to cut a source file into fixed-duration segments and
// owns the resulting artifact set.
//
// It includes the Run aggregate with its state machine and the repository that
// keeps runs for the lifetime of the process.
package segment

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maauso/audiosplit/internal/audio"
)

// Status represents the current state of a Run.
type Status string

const (
	// StatusIdle indicates the run has been created but not started.
	StatusIdle Status = "idle"
	// StatusRunning indicates the engine is working on the run.
	StatusRunning Status = "running"
	// StatusSucceeded indicates the run produced its artifacts.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates a step of the run failed.
	StatusFailed Status = "failed"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusIdle:      {StatusRunning},
	StatusRunning:   {StatusSucceeded, StatusFailed},
	StatusSucceeded: {},
	StatusFailed:    {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Run is one segmentation attempt over a single source file.
type Run struct {
	mu sync.RWMutex

	// ID is the unique identifier for this run.
	ID string
	// SourceName is the display name of the file being split.
	SourceName string
	// Duration is the requested segment length.
	Duration audio.Duration
	// Status is the current run state.
	Status Status
	// Error holds the failure cause when Status is failed.
	Error string
	// Segments lists the produced segment names in ordinal order.
	Segments []string
	// CreatedAt is when the run was created.
	CreatedAt time.Time
	// UpdatedAt is when the run was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when processing finished.
	CompletedAt time.Time
}

// NewRun creates an idle run with a generated ID.
func NewRun(sourceName string, d audio.Duration) *Run {
	return NewRunWithID(uuid.New().String(), sourceName, d)
}

// NewRunWithID creates an idle run with the specified ID.
func NewRunWithID(runID, sourceName string, d audio.Duration) *Run {
	now := time.Now()
	return &Run{
		ID:         runID,
		SourceName: sourceName,
		Duration:   d,
		Status:     StatusIdle,
		Segments:   make([]string, 0),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// TransitionTo attempts to change the run status.
// Returns ErrInvalidTransition if the transition is not allowed.
func (r *Run) TransitionTo(status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transition(status)
}

func (r *Run) transition(status Status) error {
	if !canTransition(r.Status, status) {
		return ErrInvalidTransition
	}

	r.Status = status
	r.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		r.StartedAt = r.UpdatedAt
	case StatusSucceeded, StatusFailed:
		r.CompletedAt = r.UpdatedAt
	}
	return nil
}

// Start moves the run from idle to running.
func (r *Run) Start() error {
	return r.TransitionTo(StatusRunning)
}

// Succeed records the produced segment names and completes the run.
func (r *Run) Succeed(segments []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.transition(StatusSucceeded); err != nil {
		return err
	}
	r.Segments = append([]string(nil), segments...)
	return nil
}

// Fail records errMsg and moves the run to failed.
func (r *Run) Fail(errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.transition(StatusFailed); err != nil {
		return err
	}
	r.Error = errMsg
	return nil
}

// GetStatus returns the current run status (thread-safe).
func (r *Run) GetStatus() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Status
}

// IsTerminal returns true if the run has finished.
func (r *Run) IsTerminal() bool {
	s := r.GetStatus()
	return s == StatusSucceeded || s == StatusFailed
}

// Clone creates a deep copy of the run for safe reads.
func (r *Run) Clone() *Run {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return &Run{
		ID:          r.ID,
		SourceName:  r.SourceName,
		Duration:    r.Duration,
		Status:      r.Status,
		Error:       r.Error,
		Segments:    append(make([]string, 0, len(r.Segments)), r.Segments...),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
}
