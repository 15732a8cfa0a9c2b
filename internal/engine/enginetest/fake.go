// Package enginetest provides an in-memory engine.Engine for tests.
package enginetest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/maauso/audiosplit/internal/engine"
)

// Op names an engine operation for failure injection.
type Op string

// Operations that can be made to fail.
const (
	OpLoad   Op = "load"
	OpWrite  Op = "write"
	OpExec   Op = "exec"
	OpRead   Op = "read"
	OpDelete Op = "delete"
	OpList   Op = "list"
)

// ErrInjected is the default error returned by a failing operation.
var ErrInjected = errors.New("enginetest: injected failure")

// ExecFunc simulates one command against the fake filesystem.
type ExecFunc func(e *Engine, args []string) error

// Engine is an in-memory engine.Engine.
type Engine struct {
	mu    sync.Mutex
	files map[string][]byte
	fail  map[Op]error
	// readFailOn makes ReadFile fail only for the named file.
	readFailOn string

	// ExecFunc runs on Exec. Nil means Exec succeeds without side effects.
	ExecFunc ExecFunc
	// Shuffle returns ListDir entries in random order.
	Shuffle bool
	// LoadGate, when non-nil, blocks Load until it is closed.
	LoadGate chan struct{}
	// ExecGate, when non-nil, blocks Exec until it is closed.
	ExecGate chan struct{}

	loadCalls atomic.Int32
	execArgs  [][]string
	deleted   []string

	listenersMu sync.RWMutex
	listeners   map[int]func(engine.LogEvent)
	nextID      int
}

// New returns an empty fake engine.
func New() *Engine {
	return &Engine{
		files:     make(map[string][]byte),
		fail:      make(map[Op]error),
		listeners: make(map[int]func(engine.LogEvent)),
	}
}

// Fail makes op return err (ErrInjected when err is nil) from now on.
func (e *Engine) Fail(op Op, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	e.fail[op] = err
}

// FailReadOf makes ReadFile fail for name only.
func (e *Engine) FailReadOf(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.readFailOn = name
}

// Heal removes every injected failure.
func (e *Engine) Heal() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fail = make(map[Op]error)
	e.readFailOn = ""
}

func (e *Engine) failure(op Op) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fail[op]
}

// Load implements engine.Engine.
func (e *Engine) Load(ctx context.Context) error {
	e.loadCalls.Add(1)
	if e.LoadGate != nil {
		select {
		case <-e.LoadGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := e.failure(OpLoad); err != nil {
		return err
	}
	e.Emit("fake engine loaded")
	return nil
}

// LoadCalls returns how many times Load was invoked.
func (e *Engine) LoadCalls() int {
	return int(e.loadCalls.Load())
}

// WriteFile implements engine.Engine.
func (e *Engine) WriteFile(_ context.Context, name string, data []byte) error {
	if err := e.failure(OpWrite); err != nil {
		return err
	}
	e.Put(name, data)
	return nil
}

// Exec implements engine.Engine.
func (e *Engine) Exec(ctx context.Context, args []string) error {
	e.mu.Lock()
	e.execArgs = append(e.execArgs, append([]string(nil), args...))
	e.mu.Unlock()

	if e.ExecGate != nil {
		select {
		case <-e.ExecGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := e.failure(OpExec); err != nil {
		e.Emit("exec failed")
		return err
	}
	if e.ExecFunc == nil {
		return nil
	}
	return e.ExecFunc(e, args)
}

// ReadFile implements engine.Engine.
func (e *Engine) ReadFile(_ context.Context, name string) ([]byte, error) {
	if err := e.failure(OpRead); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if name == e.readFailOn {
		return nil, ErrInjected
	}
	data, ok := e.files[name]
	if !ok {
		return nil, fmt.Errorf("enginetest: %s: no such file", name)
	}
	return append([]byte(nil), data...), nil
}

// DeleteFile implements engine.Engine.
func (e *Engine) DeleteFile(_ context.Context, name string) error {
	if err := e.failure(OpDelete); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.files, name)
	e.deleted = append(e.deleted, name)
	return nil
}

// ListDir implements engine.Engine.
func (e *Engine) ListDir(_ context.Context, _ string) ([]engine.DirEntry, error) {
	if err := e.failure(OpList); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	entries := []engine.DirEntry{{Name: ".", IsDir: true}, {Name: "..", IsDir: true}}
	for name := range e.files {
		entries = append(entries, engine.DirEntry{Name: name})
	}
	if e.Shuffle {
		rand.Shuffle(len(entries), func(i, j int) { entries[i], entries[j] = entries[j], entries[i] })
	} else {
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	}
	return entries, nil
}

// OnLog implements engine.Engine.
func (e *Engine) OnLog(fn func(engine.LogEvent)) func() {
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

// Emit sends msg to every log listener.
func (e *Engine) Emit(msg string) {
	e.listenersMu.RLock()
	defer e.listenersMu.RUnlock()
	for _, fn := range e.listeners {
		fn(engine.LogEvent{Message: msg})
	}
}

// Put stores a file directly, bypassing failure injection.
func (e *Engine) Put(name string, data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.files[name] = append([]byte(nil), data...)
}

// Files returns the names currently stored, sorted.
func (e *Engine) Files() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.files))
	for name := range e.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExecArgs returns the arguments of every Exec call.
func (e *Engine) ExecArgs() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]string(nil), e.execArgs...)
}

// Deleted returns the names passed to DeleteFile, in order.
func (e *Engine) Deleted() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.deleted...)
}

// Segmenter returns an ExecFunc that behaves like the segment muxer on an
// input of totalSec seconds. Each produced file holds "<start>-<end>" in
// whole seconds so tests can check coverage.
func Segmenter(totalSec int) ExecFunc {
	return func(e *Engine, args []string) error {
		input, segTime, pattern, err := parseSegmentArgs(args)
		if err != nil {
			return err
		}

		e.mu.Lock()
		_, ok := e.files[input]
		e.mu.Unlock()
		if !ok {
			return fmt.Errorf("enginetest: %s: no such file", input)
		}

		count := int(math.Ceil(float64(totalSec) / float64(segTime)))
		for i := 0; i < count; i++ {
			start := i * segTime
			end := min(start+segTime, totalSec)
			name := fmt.Sprintf(pattern, i)
			e.Put(name, []byte(fmt.Sprintf("%d-%d", start, end)))
			e.Emit("created " + name)
		}
		return nil
	}
}

func parseSegmentArgs(args []string) (input string, segTime int, pattern string, err error) {
	for i := 0; i < len(args)-1; i++ {
		switch args[i] {
		case "-i":
			input = args[i+1]
		case "-segment_time":
			segTime, err = strconv.Atoi(args[i+1])
			if err != nil {
				return "", 0, "", fmt.Errorf("enginetest: bad segment_time %q: %w", args[i+1], err)
			}
		}
	}
	if len(args) > 0 {
		pattern = args[len(args)-1]
	}
	if input == "" || segTime <= 0 || pattern == "" {
		return "", 0, "", fmt.Errorf("enginetest: unexpected arguments %v", args)
	}
	return input, segTime, pattern, nil
}

// Verify interface implementation at compile time.
var _ engine.Engine = (*Engine)(nil)
