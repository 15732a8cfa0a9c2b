package workspace_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/audiosplit/internal/archive"
	"github.com/maauso/audiosplit/internal/audio"
	"github.com/maauso/audiosplit/internal/blob"
	"github.com/maauso/audiosplit/internal/engine"
	"github.com/maauso/audiosplit/internal/engine/enginetest"
	"github.com/maauso/audiosplit/internal/presenter"
	"github.com/maauso/audiosplit/internal/segment"
	"github.com/maauso/audiosplit/internal/workspace"
)

func newWorkspace(t *testing.T, fake *enginetest.Engine) (*workspace.Workspace, *engine.Session) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	session := engine.NewSession(fake, engine.WithLogger(logger))
	seg := segment.NewSegmenter(session, blob.NewStore(), segment.WithLogger(logger))
	ws := workspace.New(session, seg, archive.NewPackager(), workspace.WithLogger(logger))
	t.Cleanup(ws.Close)
	return ws, session
}

func newFake(totalSec int) *enginetest.Engine {
	fake := enginetest.New()
	fake.ExecFunc = enginetest.Segmenter(totalSec)
	return fake
}

func podcast() *audio.SourceFile {
	return audio.NewSourceFile("podcast.mp3", "audio/mpeg", []byte("podcast bytes"))
}

func TestWorkspace_ViewLifecycle(t *testing.T) {
	ctx := context.Background()
	ws, _ := newWorkspace(t, newFake(1500))

	snap := ws.Snapshot(ctx)
	assert.Equal(t, presenter.AwaitingEngine, snap.View)
	assert.Equal(t, "Engine not loaded", snap.EngineStatus)
	assert.Equal(t, 10, snap.Minutes)
	assert.False(t, snap.CanStart)

	require.NoError(t, ws.LoadEngine(ctx))
	snap = ws.Snapshot(ctx)
	assert.Equal(t, presenter.AwaitingFile, snap.View)
	assert.Equal(t, "Engine ready", snap.EngineStatus)

	require.NoError(t, ws.Select(podcast()))
	snap = ws.Snapshot(ctx)
	assert.Equal(t, presenter.ReadyToProcess, snap.View)
	assert.True(t, snap.CanStart)
	require.NotNil(t, snap.File)
	assert.Equal(t, "podcast.mp3", snap.File.Name)
	assert.Equal(t, int64(len("podcast bytes")), snap.File.Size)
	assert.Equal(t, "audio/mpeg", snap.File.ContentType)

	artifacts, err := ws.Start(ctx)
	require.NoError(t, err)
	require.Len(t, artifacts, 3)

	snap = ws.Snapshot(ctx)
	assert.Equal(t, presenter.ResultsAvailable, snap.View)
	assert.True(t, snap.CanDownload)
	assert.Len(t, snap.Segments, 3)
	assert.NotEmpty(t, snap.RunID)
	assert.Empty(t, snap.Notice)
	assert.Contains(t, snap.Logs, "created output_002.mp3")

	require.NoError(t, ws.Clear())
	snap = ws.Snapshot(ctx)
	assert.Equal(t, presenter.AwaitingFile, snap.View)
	assert.Empty(t, snap.Segments)
	assert.Nil(t, snap.File)
}

func TestWorkspace_FailedRun(t *testing.T) {
	ctx := context.Background()
	fake := newFake(1500)
	ws, session := newWorkspace(t, fake)
	require.NoError(t, ws.LoadEngine(ctx))
	require.NoError(t, ws.Select(podcast()))

	fake.Fail(enginetest.OpExec, nil)
	_, err := ws.Start(ctx)
	assert.ErrorIs(t, err, segment.ErrProcessingFailed)

	snap := ws.Snapshot(ctx)
	assert.Equal(t, presenter.Failed, snap.View)
	assert.Equal(t, presenter.FailureNotice, snap.Notice)
	assert.True(t, snap.CanStart)
	assert.NotNil(t, snap.File, "file stays selected after a failure")
	assert.True(t, session.Ready())

	fake.Heal()
	_, err = ws.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, presenter.ResultsAvailable, ws.Snapshot(ctx).View)
}

func TestWorkspace_StartWithoutFile(t *testing.T) {
	ctx := context.Background()
	ws, _ := newWorkspace(t, newFake(1500))
	require.NoError(t, ws.LoadEngine(ctx))

	_, err := ws.Start(ctx)
	assert.ErrorIs(t, err, workspace.ErrNoFile)
}

func TestWorkspace_StartBeforeEngineReady(t *testing.T) {
	ws, _ := newWorkspace(t, newFake(1500))
	require.NoError(t, ws.Select(podcast()))

	_, err := ws.Start(context.Background())
	assert.ErrorIs(t, err, segment.ErrEngineNotReady)
}

func TestWorkspace_SelectRejectsNonAudio(t *testing.T) {
	ws, _ := newWorkspace(t, newFake(1500))

	err := ws.Select(audio.NewSourceFile("notes.txt", "text/plain", []byte("hello")))
	assert.ErrorIs(t, err, audio.ErrNotAudio)
	assert.Nil(t, ws.Snapshot(context.Background()).File)
}

func TestWorkspace_SelectReleasesPreviousResults(t *testing.T) {
	ctx := context.Background()
	ws, _ := newWorkspace(t, newFake(1500))
	require.NoError(t, ws.LoadEngine(ctx))
	require.NoError(t, ws.Select(podcast()))

	artifacts, err := ws.Start(ctx)
	require.NoError(t, err)

	require.NoError(t, ws.Select(audio.NewSourceFile("other.mp3", "audio/mpeg", []byte("other"))))
	assert.Empty(t, ws.Segments())
	_, err = artifacts[0].Bytes()
	assert.ErrorIs(t, err, blob.ErrNotFound)
	assert.Equal(t, presenter.ReadyToProcess, ws.Snapshot(ctx).View)
}

func TestWorkspace_SetMinutes(t *testing.T) {
	ws, _ := newWorkspace(t, newFake(1500))

	d, err := ws.SetMinutes(3)
	require.NoError(t, err)
	assert.Equal(t, audio.Duration(180), d)

	d, err = ws.SetMinutes(0)
	require.NoError(t, err)
	assert.Equal(t, audio.Duration(60), d)

	d, err = ws.SetMinutes(-7)
	require.NoError(t, err)
	assert.Equal(t, audio.Duration(60), ws.Duration())
	assert.Equal(t, d, ws.Duration())

	_, err = ws.SetDuration(30)
	assert.ErrorIs(t, err, audio.ErrInvalidDuration)
	assert.Equal(t, audio.Duration(60), ws.Duration())
}

func TestWorkspace_BusyDuringRun(t *testing.T) {
	ctx := context.Background()
	fake := newFake(1500)
	gate := make(chan struct{})
	fake.ExecGate = gate

	ws, _ := newWorkspace(t, fake)
	require.NoError(t, ws.LoadEngine(ctx))
	require.NoError(t, ws.Select(podcast()))

	runID, done, err := ws.StartAsync(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, runID)

	assert.Equal(t, presenter.Processing, ws.Snapshot(ctx).View)

	_, _, err = ws.StartAsync(ctx)
	assert.ErrorIs(t, err, segment.ErrRunInProgress)
	assert.ErrorIs(t, ws.Select(podcast()), workspace.ErrBusy)
	assert.ErrorIs(t, ws.Clear(), workspace.ErrBusy)
	_, err = ws.SetMinutes(5)
	assert.ErrorIs(t, err, workspace.ErrBusy)

	close(gate)
	require.NoError(t, <-done)

	run, err := ws.Run(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, segment.StatusSucceeded, run.Status)
	assert.Len(t, run.Segments, 3)
}

func TestWorkspace_SegmentAndArchive(t *testing.T) {
	ctx := context.Background()
	ws, _ := newWorkspace(t, newFake(1500))
	require.NoError(t, ws.LoadEngine(ctx))
	require.NoError(t, ws.Select(podcast()))
	_, err := ws.Start(ctx)
	require.NoError(t, err)

	a, data, err := ws.Segment("output_001.mp3")
	require.NoError(t, err)
	assert.Equal(t, "audio/mpeg", a.ContentType)
	assert.Equal(t, "600-1200", string(data))

	_, _, err = ws.Segment("output_042.mp3")
	assert.ErrorIs(t, err, workspace.ErrSegmentNotFound)

	zipped, err := ws.Archive(ctx)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(zipped), int64(len(zipped)))
	require.NoError(t, err)
	require.Len(t, zr.File, 3)
	assert.Equal(t, "output_000.mp3", zr.File[0].Name)
}

func TestWorkspace_ArchiveEmpty(t *testing.T) {
	ws, _ := newWorkspace(t, newFake(1500))

	zipped, err := ws.Archive(context.Background())
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(zipped), int64(len(zipped)))
	require.NoError(t, err)
	assert.Empty(t, zr.File)
}

func TestWorkspace_LoadEngineFailure(t *testing.T) {
	ctx := context.Background()
	fake := newFake(1500)
	fake.Fail(enginetest.OpLoad, nil)
	ws, _ := newWorkspace(t, fake)

	err := ws.LoadEngine(ctx)
	assert.ErrorIs(t, err, engine.ErrInitialization)

	snap := ws.Snapshot(ctx)
	assert.Equal(t, presenter.AwaitingEngine, snap.View)
	assert.Contains(t, snap.EngineStatus, "Failed to load engine")

	fake.Heal()
	require.NoError(t, ws.LoadEngine(ctx))
	assert.Equal(t, presenter.AwaitingFile, ws.Snapshot(ctx).View)
}

func TestWorkspace_Watch(t *testing.T) {
	ctx := context.Background()
	fake := newFake(1500)
	ws, _ := newWorkspace(t, fake)

	changes, cancel := ws.Watch()
	defer cancel()

	require.NoError(t, ws.LoadEngine(ctx))
	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("expected a change after loading the engine")
	}

	fake.Emit("progress line")
	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("expected a change after an engine log line")
	}

	cancel()
	fake.Emit("after cancel")
	select {
	case <-changes:
		t.Fatal("unexpected change after cancel")
	case <-time.After(20 * time.Millisecond):
	}
}
