package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/audiosplit/internal/engine"
	"github.com/maauso/audiosplit/internal/engine/enginetest"
)

func TestSession_InitialState(t *testing.T) {
	s := engine.NewSession(enginetest.New())

	assert.Equal(t, engine.StateUninitialized, s.State())
	assert.False(t, s.Ready())
	assert.Equal(t, "Engine not loaded", s.Status())

	_, err := s.Engine()
	assert.ErrorIs(t, err, engine.ErrNotReady)
}

func TestSession_Initialize(t *testing.T) {
	fake := enginetest.New()
	s := engine.NewSession(fake)

	require.NoError(t, s.Initialize(context.Background()))

	assert.Equal(t, engine.StateReady, s.State())
	assert.True(t, s.Ready())
	assert.Equal(t, "Engine ready", s.Status())

	eng, err := s.Engine()
	require.NoError(t, err)
	assert.Same(t, fake, eng)

	// Already ready: no second load.
	require.NoError(t, s.Initialize(context.Background()))
	assert.Equal(t, 1, fake.LoadCalls())
}

func TestSession_ConcurrentInitializeLoadsOnce(t *testing.T) {
	fake := enginetest.New()
	fake.LoadGate = make(chan struct{})
	s := engine.NewSession(fake)

	const callers = 8
	errs := make([]error, callers)
	var started, wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		started.Add(1)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Done()
			errs[i] = s.Initialize(context.Background())
		}(i)
	}

	started.Wait()
	require.Eventually(t, func() bool { return s.State() == engine.StateLoading }, time.Second, time.Millisecond)
	// Let every caller reach the wait on the in-flight load.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, "Loading engine...", s.Status())
	close(fake.LoadGate)
	wg.Wait()

	assert.Equal(t, 1, fake.LoadCalls())
	for i, err := range errs {
		assert.NoError(t, err, "caller %d", i)
	}
	assert.Equal(t, engine.StateReady, s.State())
}

func TestSession_ConcurrentInitializeSharesFailure(t *testing.T) {
	fake := enginetest.New()
	fake.LoadGate = make(chan struct{})
	fake.Fail(enginetest.OpLoad, errors.New("wasm fetch failed"))
	s := engine.NewSession(fake)

	const callers = 4
	errs := make([]error, callers)
	var started, wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		started.Add(1)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Done()
			errs[i] = s.Initialize(context.Background())
		}(i)
	}

	started.Wait()
	require.Eventually(t, func() bool { return s.State() == engine.StateLoading }, time.Second, time.Millisecond)
	// Let every caller reach the wait on the in-flight load.
	time.Sleep(50 * time.Millisecond)
	close(fake.LoadGate)
	wg.Wait()

	assert.Equal(t, 1, fake.LoadCalls())
	for _, err := range errs {
		assert.ErrorIs(t, err, engine.ErrInitialization)
	}
	assert.Equal(t, engine.StateFailed, s.State())
}

func TestSession_FailureThenManualRetry(t *testing.T) {
	fake := enginetest.New()
	fake.Fail(enginetest.OpLoad, errors.New("binary missing"))
	s := engine.NewSession(fake)

	err := s.Initialize(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrInitialization)
	assert.Equal(t, engine.StateFailed, s.State())
	assert.Equal(t, "Failed to load engine: binary missing", s.Status())
	assert.ErrorIs(t, s.Err(), engine.ErrInitialization)

	_, err = s.Engine()
	assert.ErrorIs(t, err, engine.ErrNotReady)

	fake.Heal()
	require.NoError(t, s.Initialize(context.Background()))
	assert.True(t, s.Ready())
	assert.NoError(t, s.Err())
	assert.Equal(t, 2, fake.LoadCalls())
}

func TestSession_WaiterHonoursContext(t *testing.T) {
	fake := enginetest.New()
	fake.LoadGate = make(chan struct{})
	s := engine.NewSession(fake)

	go func() { _ = s.Initialize(context.Background()) }()
	require.Eventually(t, func() bool { return s.State() == engine.StateLoading }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Initialize(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	close(fake.LoadGate)
	require.Eventually(t, s.Ready, time.Second, time.Millisecond)
}

func TestSession_LogHistoryAndSubscribers(t *testing.T) {
	fake := enginetest.New()
	s := engine.NewSession(fake, engine.WithHistorySize(3))

	var mu sync.Mutex
	var received []string
	unsubscribe := s.OnLog(func(msg string) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, msg)
	})

	// Lines before readiness are not recorded.
	fake.Emit("before ready")
	require.NoError(t, s.Initialize(context.Background()))

	for _, msg := range []string{"one", "two", "three", "four"} {
		fake.Emit(msg)
	}

	assert.Equal(t, []string{"two", "three", "four"}, s.Logs())

	mu.Lock()
	assert.Equal(t, []string{"one", "two", "three", "four"}, received)
	mu.Unlock()

	unsubscribe()
	fake.Emit("five")

	mu.Lock()
	assert.Len(t, received, 4)
	mu.Unlock()

	s.ResetLogs()
	assert.Empty(t, s.Logs())
}

func TestSession_SubscribesOnceAcrossRetries(t *testing.T) {
	fake := enginetest.New()
	s := engine.NewSession(fake)

	require.NoError(t, s.Initialize(context.Background()))
	require.NoError(t, s.Initialize(context.Background()))

	fake.Emit("only once")
	assert.Equal(t, []string{"only once"}, s.Logs())
}
