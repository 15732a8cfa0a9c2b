package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// State represents the lifecycle stage of an engine session.
type State string

const (
	// StateUninitialized indicates Load has never been attempted.
	StateUninitialized State = "uninitialized"
	// StateLoading indicates a Load is in flight.
	StateLoading State = "loading"
	// StateReady indicates the engine loaded successfully.
	StateReady State = "ready"
	// StateFailed indicates the last Load attempt failed.
	StateFailed State = "failed"
)

// Static errors for session operations.
var (
	// ErrInitialization is returned when the engine fails to load.
	ErrInitialization = errors.New("engine initialization failed")
	// ErrNotReady is returned when the engine is requested before it is ready.
	ErrNotReady = errors.New("engine is not ready")
)

// Session owns the lifecycle of the single engine instance.
// Initialization is lazy and shared: concurrent callers wait on the same load.
type Session struct {
	engine  Engine
	history *History
	logger  *slog.Logger

	mu      sync.Mutex
	state   State
	err     error
	cause   error
	loading chan struct{}
	// subscribed is set once the engine log listener is registered.
	subscribed bool

	listenersMu sync.RWMutex
	listeners   map[int]func(string)
	nextID      int
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithHistorySize sets how many recent log lines are retained.
func WithHistorySize(n int) SessionOption {
	return func(s *Session) {
		s.history = NewHistory(n)
	}
}

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSession creates an uninitialized session for engine.
func NewSession(engine Engine, opts ...SessionOption) *Session {
	s := &Session{
		engine:    engine,
		history:   NewHistory(DefaultHistorySize),
		logger:    slog.Default(),
		state:     StateUninitialized,
		listeners: make(map[int]func(string)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize loads the engine once.
// If the engine is ready it returns immediately. If a load is in flight it
// waits for that load and reports its outcome. After a failure, a new call
// starts a fresh attempt.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateReady:
		s.mu.Unlock()
		return nil
	case StateLoading:
		done := s.loading
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("wait for engine load: %w", ctx.Err())
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.err
	}

	s.state = StateLoading
	s.err = nil
	s.cause = nil
	done := make(chan struct{})
	s.loading = done
	s.mu.Unlock()

	s.logger.Info("loading transcoding engine")
	loadErr := s.engine.Load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	defer close(done)

	if loadErr != nil {
		s.state = StateFailed
		s.cause = loadErr
		s.err = fmt.Errorf("%w: %v", ErrInitialization, loadErr)
		s.logger.Error("failed to load transcoding engine",
			slog.String("error", loadErr.Error()),
		)
		return s.err
	}

	s.state = StateReady
	if !s.subscribed {
		s.engine.OnLog(s.forward)
		s.subscribed = true
	}
	s.logger.Info("transcoding engine ready")
	return nil
}

// forward records an engine log line and hands it to subscribers.
func (s *Session) forward(ev LogEvent) {
	s.history.Append(ev.Message)
	s.logger.Debug("engine log", slog.String("message", ev.Message))

	s.listenersMu.RLock()
	defer s.listenersMu.RUnlock()
	for _, fn := range s.listeners {
		fn(ev.Message)
	}
}

// OnLog registers fn for every engine log line received after the engine is
// ready. It may be called at any time.
func (s *Session) OnLog(fn func(string)) (unsubscribe func()) {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

// Engine returns the engine if the session is ready.
func (s *Session) Engine() (Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return nil, ErrNotReady
	}
	return s.engine, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ready reports whether the engine is ready for use.
func (s *Session) Ready() bool {
	return s.State() == StateReady
}

// Err returns the error of the last failed load, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Status returns a human-readable description of the session state.
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateReady:
		return "Engine ready"
	case StateLoading:
		return "Loading engine..."
	case StateFailed:
		return fmt.Sprintf("Failed to load engine: %v", s.cause)
	default:
		return "Engine not loaded"
	}
}

// Logs returns the most recent engine log lines, oldest first.
func (s *Session) Logs() []string {
	return s.history.Recent()
}

// ResetLogs clears the retained engine log lines.
func (s *Session) ResetLogs() {
	s.history.Reset()
}
