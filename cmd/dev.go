package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/weave/internal/build"
	"github.com/conneroisu/weave/internal/config"
	"github.com/conneroisu/weave/internal/errors"
	"github.com/conneroisu/weave/internal/logging"
	"github.com/conneroisu/weave/internal/server"
	"github.com/conneroisu/weave/internal/types"
	"github.com/conneroisu/weave/internal/watcher"
)

// runDev watches the source tree and, with --serve, runs the preview
// server. It returns when ctx is cancelled.
func runDev(ctx context.Context, cfg *config.Config, builder *build.Builder, logger logging.Logger, reg *prometheus.Registry) error {
	fw, err := newSourceWatcher(cfg, builder, logger)
	if err != nil {
		return err
	}
	defer fw.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := fw.Start(gctx); err != nil {
			return fmt.Errorf("starting file watcher: %w", err)
		}
		logger.Info(gctx, "watching for changes", "source", cfg.Source)
		<-gctx.Done()

		return nil
	})

	components := builder.Renderer().Registry()
	events := components.Watch()
	defer components.UnWatch(events)
	g.Go(func() error {
		logComponentEvents(gctx, logger, events)

		return nil
	})

	if cfg.Server.Serve {
		srv := server.New(cfg, builder, logger, reg)
		g.Go(func() error {
			return srv.Start(gctx)
		})
	}

	return g.Wait()
}

// newSourceWatcher watches the source and components directories and
// feeds changes to the builder.
func newSourceWatcher(cfg *config.Config, builder *build.Builder, logger logging.Logger) (*watcher.FileWatcher, error) {
	fw, err := watcher.NewFileWatcher(cfg.Server.Debounce, logger)
	if err != nil {
		return nil, err
	}

	fw.AddFilter(watcher.NoGitFilter)
	fw.AddFilter(watcher.NoEditorTempFilter)
	fw.AddFilter(watcher.ExcludeDirFilter(cfg.Output))
	fw.AddHandler(changeHandler(builder, logger))

	roots := []string{cfg.Source}
	if !within(cfg.Source, cfg.ComponentsRoot()) {
		roots = append(roots, cfg.ComponentsRoot())
	}
	for _, root := range roots {
		if err := fw.AddRecursive(root); err != nil {
			fw.Stop()

			return nil, fmt.Errorf("watching %s: %w", root, err)
		}
	}

	return fw, nil
}

// changeHandler applies a debounced batch of changes to the builder. A
// batch that arrives while a build is running is dropped.
func changeHandler(builder *build.Builder, logger logging.Logger) watcher.ChangeHandler {
	return func(ctx context.Context, events []watcher.ChangeEvent) error {
		paths := make([]string, 0, len(events))
		for _, event := range events {
			logger.Debug(ctx, "source changed", "path", event.Path, "type", event.Type.String())
			paths = append(paths, event.Path)
		}

		outcome, err := builder.ApplyChanges(ctx, paths)
		if stderrors.Is(err, errors.ErrBuildInProgress) {
			return nil
		}
		if err != nil {
			return err
		}

		if outcome.Full {
			logger.Info(ctx, "site rebuilt")
		} else if len(outcome.Paths) > 0 {
			logger.Info(ctx, "files updated", "files", outcome.Paths)
		}

		return nil
	}
}

// logComponentEvents reports component reloads until ctx is done or the
// channel is closed.
func logComponentEvents(ctx context.Context, logger logging.Logger, events <-chan types.ComponentEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			logger.Debug(ctx, "component "+string(event.Type), "component", event.Component.Name)
		}
	}
}

func within(root, path string) bool {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return false
	}

	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
