package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maauso/audiosplit/internal/archive"
	"github.com/maauso/audiosplit/internal/audio"
	"github.com/maauso/audiosplit/internal/bootstrap"
	"github.com/maauso/audiosplit/internal/workspace"
)

// splitOptions controls one split command invocation.
type splitOptions struct {
	// Minutes overrides the configured segment length when positive.
	Minutes int
	// Out is the archive path, used when Dir is empty.
	Out string
	// Dir receives the segments as individual files.
	Dir string
}

func newSplitCmd(a *app) *cobra.Command {
	var opts splitOptions

	cmd := &cobra.Command{
		Use:   "split <file>",
		Short: "Split one audio file and write the segments",
		Example: `  audiosplit split episode.mp3
  audiosplit split episode.mp3 --minutes 5 --out parts.zip
  audiosplit split episode.m4a --dir ./parts`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("minutes") && opts.Minutes < 1 {
				opts.Minutes = 1
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			deps, err := bootstrap.NewDependencies(a.cfg, a.logger)
			if err != nil {
				return fmt.Errorf("initialize dependencies: %w", err)
			}
			defer func() { _ = deps.Close() }()

			return splitFile(ctx, deps.Workspace, args[0], opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&opts.Minutes, "minutes", "m", 0, "segment length in minutes (default SEGMENT_MINUTES)")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", archive.ArchiveName, "write a ZIP archive to this path")
	cmd.Flags().StringVarP(&opts.Dir, "dir", "d", "", "write the segments into this directory instead")
	cmd.MarkFlagsMutuallyExclusive("out", "dir")
	return cmd
}

// splitFile runs one segmentation of path through ws and writes the result.
func splitFile(ctx context.Context, ws *workspace.Workspace, path string, opts splitOptions, w io.Writer) error {
	src, err := audio.OpenSourceFile(path)
	if err != nil {
		return err
	}
	if err := ws.Select(src); err != nil {
		return fmt.Errorf("select %s: %w", path, err)
	}
	if opts.Minutes > 0 {
		if _, err := ws.SetMinutes(opts.Minutes); err != nil {
			return err
		}
	}

	if err := ws.LoadEngine(ctx); err != nil {
		return err
	}

	artifacts, err := ws.Start(ctx)
	if err != nil {
		return err
	}

	target := opts.Out
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
		for _, a := range artifacts {
			data, err := a.Bytes()
			if err != nil {
				return fmt.Errorf("read segment %s: %w", a.Name, err)
			}
			if err := os.WriteFile(filepath.Join(opts.Dir, a.Name), data, 0o644); err != nil {
				return fmt.Errorf("write segment %s: %w", a.Name, err)
			}
		}
		target = opts.Dir
	} else {
		data, err := ws.Archive(ctx)
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.Out, data, 0o644); err != nil {
			return fmt.Errorf("write archive: %w", err)
		}
	}

	fmt.Fprintf(w, "%s: %d segments of %d min written to %s\n",
		src.Name(), len(artifacts), ws.Duration().Minutes(), target)
	return nil
}
