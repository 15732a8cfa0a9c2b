// Package bootstrap provides dependency initialization for audiosplit.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/maauso/audiosplit/internal/archive"
	"github.com/maauso/audiosplit/internal/blob"
	"github.com/maauso/audiosplit/internal/config"
	"github.com/maauso/audiosplit/internal/engine"
	"github.com/maauso/audiosplit/internal/segment"
	"github.com/maauso/audiosplit/internal/storage"
	"github.com/maauso/audiosplit/internal/workspace"
)

// Dependencies holds all initialized dependencies for the commands.
type Dependencies struct {
	Storage   *storage.LocalStorage
	Session   *engine.Session
	Segmenter *segment.Segmenter
	Packager  *archive.Packager
	Workspace *workspace.Workspace
}

// NewDependencies creates and wires all dependencies for the application.
// The engine is not loaded; call Workspace.LoadEngine.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create scratch storage: %w", err)
	}
	logger.Info("scratch storage configured",
		slog.String("temp_dir", store.BaseDir()),
		slog.String("scratch_dir", store.Root()),
	)

	ffmpeg := engine.NewFFmpegEngine(store,
		engine.WithFFmpegPath(cfg.FFmpegPath),
		engine.WithOutputWatch(cfg.WatchOutput),
		engine.WithEngineLogger(logger),
	)
	session := engine.NewSession(ffmpeg,
		engine.WithHistorySize(cfg.LogHistory),
		engine.WithLogger(logger),
	)

	segmenter := segment.NewSegmenter(session, blob.NewStore(),
		segment.WithRepository(segment.NewMemoryRepository()),
		segment.WithLogger(logger),
	)
	packager := archive.NewPackager(archive.WithMethod(cfg.Archive()))

	ws := workspace.New(session, segmenter, packager,
		workspace.WithDuration(cfg.SegmentDuration()),
		workspace.WithLogger(logger),
	)

	return &Dependencies{
		Storage:   store,
		Session:   session,
		Segmenter: segmenter,
		Packager:  packager,
		Workspace: ws,
	}, nil
}

// Close releases in-memory results and removes the scratch directory.
func (d *Dependencies) Close() error {
	d.Workspace.Close()
	if err := d.Storage.Close(); err != nil {
		return fmt.Errorf("remove scratch storage: %w", err)
	}
	return nil
}
