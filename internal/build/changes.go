package build

import (
	"context"
	"path/filepath"

	"github.com/conneroisu/weave/internal/errors"
)

// ChangeOutcome reports what ApplyChanges did.
type ChangeOutcome struct {
	// Full is set when a component changed and the whole site was rebuilt.
	Full bool
	// Paths lists the output files rewritten or removed by single-file
	// rebuilds, relative to the output root.
	Paths []string
}

// ApplyChanges reacts to a batch of changed source paths. A change under
// the components directory reloads the components and rebuilds everything;
// any other change rebuilds only the affected files. Changes inside the
// output directory are ignored. If a build is already running the batch is
// dropped and errors.ErrBuildInProgress is returned.
//
// Errors from single-file rebuilds are logged and skipped.
func (b *Builder) ApplyChanges(ctx context.Context, changed []string) (ChangeOutcome, error) {
	var outcome ChangeOutcome

	if !b.run.TryLock() {
		b.metrics.RecordDropped()
		b.logger.Info(ctx, "build in progress, dropping changes", "count", len(changed))

		return outcome, errors.ErrBuildInProgress
	}
	defer b.run.Unlock()

	p, err := b.resolvePaths()
	if err != nil {
		return outcome, err
	}

	var files []string
	for _, path := range changed {
		abs, err := filepath.Abs(path)
		if err != nil {
			continue
		}
		switch {
		case within(p.components, abs):
			outcome.Full = true
		case within(p.output, abs), !within(p.source, abs):
		default:
			files = append(files, abs)
		}
	}

	if outcome.Full {
		b.logger.Info(ctx, "components changed, rebuilding site")
		_, err := b.build(ctx)

		return outcome, err
	}

	for _, file := range files {
		rel, err := b.rebuildFile(ctx, file)
		if err != nil {
			b.logger.Warn(ctx, err, "skipping update", "file", file)

			continue
		}
		outcome.Paths = append(outcome.Paths, rel)
	}

	return outcome, nil
}
