// Package build walks a source tree, expands every matching document and
// writes the result to an output tree.
//
// Documents are processed concurrently with a bounded errgroup. Everything
// that is not a processed document is copied through unchanged. A Builder
// runs at most one build at a time; TryBuild and TryRebuildFile drop the
// request with errors.ErrBuildInProgress instead of waiting.
package build

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/weave/internal/config"
	"github.com/conneroisu/weave/internal/errors"
	"github.com/conneroisu/weave/internal/logging"
	"github.com/conneroisu/weave/internal/registry"
	"github.com/conneroisu/weave/internal/renderer"
)

// BuildResult summarizes one full build.
type BuildResult struct {
	StartedAt         time.Time
	Duration          time.Duration
	Documents         int
	Copied            int
	BytesWritten      int64
	CacheHits         int64
	CacheMisses       int64
	FailedResolutions int
	Failures          []renderer.FailureSummary
	// Errors holds per-document failures; the build continued past them.
	Errors []error
}

// EventKind distinguishes full builds from single-file rebuilds.
type EventKind string

const (
	EventFullBuild EventKind = "full"
	EventFile      EventKind = "file"
)

// Event is delivered to callbacks after a build or rebuild completes.
type Event struct {
	Kind EventKind
	// Path is the output path relative to the output root, slash separated.
	// Empty for full builds.
	Path   string
	Result *BuildResult
}

// BuildCallback is called after every successful build or rebuild.
type BuildCallback func(event Event)

// Builder runs builds for one configuration.
type Builder struct {
	config   *config.Config
	renderer *renderer.ComponentRenderer
	logger   logging.Logger
	metrics  *Metrics

	run      sync.Mutex
	building atomic.Bool

	last      *BuildResult
	callbacks []BuildCallback
	mutex     sync.RWMutex
}

// NewBuilder creates a builder. A nil logger discards output and nil
// metrics are registered on a private registry.
func NewBuilder(cfg *config.Config, logger logging.Logger, metrics *Metrics) *Builder {
	if logger == nil {
		logger = logging.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	logger = logger.WithComponent("build")
	reg := registry.NewComponentRegistry(cfg.Components.Extensions...)

	return &Builder{
		config:   cfg,
		renderer: renderer.NewComponentRenderer(reg, logger),
		logger:   logger,
		metrics:  metrics,
	}
}

// Renderer returns the component renderer used by the builder.
func (b *Builder) Renderer() *renderer.ComponentRenderer {
	return b.renderer
}

// Metrics returns the builder's metrics.
func (b *Builder) Metrics() *Metrics {
	return b.metrics
}

// InProgress reports whether a build or rebuild is running.
func (b *Builder) InProgress() bool {
	return b.building.Load()
}

// LastResult returns the result of the most recent full build, or nil. Its
// failure fields follow later single-file rebuilds.
func (b *Builder) LastResult() *BuildResult {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	return b.last
}

// AddCallback registers a callback run after each build or rebuild.
func (b *Builder) AddCallback(callback BuildCallback) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.callbacks = append(b.callbacks, callback)
}

func (b *Builder) notify(event Event) {
	b.mutex.RLock()
	callbacks := append([]BuildCallback(nil), b.callbacks...)
	b.mutex.RUnlock()

	for _, callback := range callbacks {
		callback(event)
	}
}

// Build runs a full build, waiting for any running build to finish first.
func (b *Builder) Build(ctx context.Context) (*BuildResult, error) {
	b.run.Lock()
	defer b.run.Unlock()

	return b.build(ctx)
}

// TryBuild runs a full build unless one is already running, in which case
// the request is dropped and errors.ErrBuildInProgress is returned.
func (b *Builder) TryBuild(ctx context.Context) (*BuildResult, error) {
	if !b.run.TryLock() {
		b.metrics.RecordDropped()

		return nil, errors.ErrBuildInProgress
	}
	defer b.run.Unlock()

	return b.build(ctx)
}

// RebuildFile reprocesses a single source file, waiting for any running
// build first. It returns the output path relative to the output root.
func (b *Builder) RebuildFile(ctx context.Context, path string) (string, error) {
	b.run.Lock()
	defer b.run.Unlock()

	return b.rebuildFile(ctx, path)
}

// TryRebuildFile is RebuildFile with the in-flight guard of TryBuild.
func (b *Builder) TryRebuildFile(ctx context.Context, path string) (string, error) {
	if !b.run.TryLock() {
		b.metrics.RecordDropped()

		return "", errors.ErrBuildInProgress
	}
	defer b.run.Unlock()

	return b.rebuildFile(ctx, path)
}

// paths holds the absolute roots of one build.
type paths struct {
	source     string
	output     string
	components string
}

func (b *Builder) resolvePaths() (paths, error) {
	var p paths
	var err error
	if p.source, err = filepath.Abs(b.config.Source); err != nil {
		return p, err
	}
	if p.output, err = filepath.Abs(b.config.Output); err != nil {
		return p, err
	}
	if p.components, err = filepath.Abs(b.config.ComponentsRoot()); err != nil {
		return p, err
	}

	return p, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}

	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// job is one file of a build.
type job struct {
	rel      string
	document bool
}

func (b *Builder) build(ctx context.Context) (*BuildResult, error) {
	b.building.Store(true)
	defer b.building.Store(false)

	perf := logging.StartOperation(b.logger, "build")
	result := &BuildResult{StartedAt: time.Now()}

	p, err := b.resolvePaths()
	if err != nil {
		return nil, errors.NewBuildError(errors.ErrCodeConfigInvalid, "resolving build paths", err)
	}
	if info, err := os.Stat(p.source); err != nil || !info.IsDir() {
		if err == nil {
			err = fmt.Errorf("%s is not a directory", p.source)
		}

		return nil, errors.ErrSourceDirectoryMissing.WithFile(b.config.Source).WithCause(err)
	}
	if within(p.components, p.output) {
		return nil, errors.NewConfigError(errors.ErrCodeOutputInsideComponents,
			fmt.Sprintf("output directory %s is inside the components directory", b.config.Output))
	}

	b.renderer.Reset()
	if err := b.renderer.Reload(p.components); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(p.output, 0o755); err != nil {
		return nil, errors.NewBuildError(errors.ErrCodeFileWrite,
			"creating output directory "+b.config.Output, err)
	}

	jobs, err := b.collect(p)
	if err != nil {
		return nil, errors.NewBuildError(errors.ErrCodeFileRead, "walking source directory", err)
	}

	var (
		mu      sync.Mutex
		written int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers())
	for _, j := range jobs {
		g.Go(func() error {
			n, err := b.process(gctx, p, j)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, err)
				b.logger.Error(gctx, err, "failed to process file", "file", j.rel)

				return nil
			}
			written += n
			if j.document {
				result.Documents++
			} else {
				result.Copied++
			}

			return nil
		})
	}
	// process never returns an error to the group
	_ = g.Wait()

	stats := b.renderer.Cache().Stats()
	result.BytesWritten = written
	result.CacheHits = stats.Hits
	result.CacheMisses = stats.Misses
	result.FailedResolutions = b.renderer.Failures().Total()
	result.Failures = b.renderer.Failures().Summary()
	result.Duration = perf.End(ctx)

	b.summarize(ctx, result)
	b.metrics.RecordBuild(result, b.renderer.Registry().Count())

	b.mutex.Lock()
	b.last = result
	b.mutex.Unlock()

	b.notify(Event{Kind: EventFullBuild, Result: result})

	return result, nil
}

func (b *Builder) workers() int {
	if b.config.Build.Workers > 0 {
		return b.config.Build.Workers
	}

	return runtime.NumCPU()
}

// collect walks the source tree and classifies every file. The components
// directory and an output directory nested in the source are skipped.
func (b *Builder) collect(p paths) ([]job, error) {
	var jobs []job
	err := filepath.WalkDir(p.source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != p.source && (path == p.components || path == p.output) {
				return filepath.SkipDir
			}

			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(p.source, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		jobs = append(jobs, job{rel: rel, document: b.IsDocument(rel)})

		return nil
	})

	return jobs, err
}

// Documents returns the slash-separated source-relative paths a build would
// expand, in walk order.
func (b *Builder) Documents() ([]string, error) {
	p, err := b.resolvePaths()
	if err != nil {
		return nil, err
	}
	jobs, err := b.collect(p)
	if err != nil {
		return nil, errors.NewBuildError(errors.ErrCodeFileRead, "walking source directory", err)
	}

	var docs []string
	for _, j := range jobs {
		if j.document {
			docs = append(docs, j.rel)
		}
	}

	return docs, nil
}

// IsDocument reports whether the source-relative path rel is expanded
// rather than copied: its extension is a document extension, it lies within
// the configured depth and it passes the filter.
func (b *Builder) IsDocument(rel string) bool {
	rel = filepath.ToSlash(rel)
	if !b.hasDocumentExtension(rel) {
		return false
	}
	if !WithinDepth(rel, b.config.Build.Depth) {
		return false
	}

	return MatchesFilter(rel, b.config.Build.Filter)
}

func (b *Builder) hasDocumentExtension(rel string) bool {
	ext := strings.ToLower(filepath.Ext(rel))
	for _, e := range b.config.Build.Extensions {
		if ext == e {
			return true
		}
	}

	return false
}

// WithinDepth reports whether rel has at most maxDepth directory
// components. A negative maxDepth is unlimited.
func WithinDepth(rel string, maxDepth int) bool {
	if maxDepth < 0 {
		return true
	}

	return strings.Count(filepath.ToSlash(rel), "/") <= maxDepth
}

// MatchesFilter reports whether rel is selected by filter. An empty filter
// selects everything; an entry matches the base name or the full relative
// path.
func MatchesFilter(rel string, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	rel = filepath.ToSlash(rel)
	base := filepath.Base(rel)
	for _, f := range filter {
		f = strings.TrimPrefix(filepath.ToSlash(f), "./")
		if f == base || f == rel {
			return true
		}
	}

	return false
}

func (b *Builder) process(ctx context.Context, p paths, j job) (int64, error) {
	src := filepath.Join(p.source, filepath.FromSlash(j.rel))
	dst := filepath.Join(p.output, filepath.FromSlash(j.rel))

	if !j.document {
		return copyFile(src, dst)
	}

	return b.expandFile(ctx, src, dst, j.rel)
}

// expandFile expands one document. On a cyclic inclusion the document is
// copied through unexpanded and the cycle is returned.
func (b *Builder) expandFile(ctx context.Context, src, dst, rel string) (int64, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return 0, errors.NewIOError(errors.ErrCodeFileRead, rel, err)
	}

	out, err := b.renderer.ExpandDocument(ctx, string(data), rel)
	if err != nil {
		if errors.IsCyclic(err) {
			if _, cerr := writeFile(dst, data); cerr != nil {
				return 0, errors.NewIOError(errors.ErrCodeFileWrite, rel, cerr)
			}
		}

		return 0, err
	}

	n, err := writeFile(dst, []byte(out))
	if err != nil {
		return 0, errors.NewIOError(errors.ErrCodeFileWrite, rel, err)
	}
	b.logger.Debug(ctx, "expanded document", "file", rel, "bytes", n)

	return n, nil
}

func (b *Builder) rebuildFile(ctx context.Context, path string) (string, error) {
	b.building.Store(true)
	defer b.building.Store(false)

	p, err := b.resolvePaths()
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if !within(p.source, abs) || within(p.components, abs) || within(p.output, abs) {
		return "", fmt.Errorf("%s is not a source document", path)
	}

	rel, err := filepath.Rel(p.source, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	dst := filepath.Join(p.output, filepath.FromSlash(rel))

	document := b.IsDocument(rel)
	if document {
		b.renderer.ForgetDocument(rel)
	}

	if _, err := os.Stat(abs); os.IsNotExist(err) {
		if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
			return "", errors.NewIOError(errors.ErrCodeFileWrite, rel, err)
		}
		if document {
			b.refreshFailures()
		}
		b.logger.Info(ctx, "removed output file", "file", rel)
		b.notify(Event{Kind: EventFile, Path: rel})

		return rel, nil
	}

	if document {
		_, err = b.expandFile(ctx, abs, dst, rel)
		b.refreshFailures()
	} else {
		_, err = copyFile(abs, dst)
		if err != nil {
			err = errors.NewIOError(errors.ErrCodeFileWrite, rel, err)
		}
	}
	b.metrics.RecordRebuild(document, err)
	if err != nil {
		return "", err
	}

	b.logger.Info(ctx, "rebuilt file", "file", rel, "document", document)
	b.notify(Event{Kind: EventFile, Path: rel})

	return rel, nil
}

// refreshFailures updates the failure fields of the last full build result
// after a single-file rebuild changed the record.
func (b *Builder) refreshFailures() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.last == nil {
		return
	}
	updated := *b.last
	updated.FailedResolutions = b.renderer.Failures().Total()
	updated.Failures = b.renderer.Failures().Summary()
	b.last = &updated
}

func (b *Builder) summarize(ctx context.Context, result *BuildResult) {
	b.logger.Info(ctx, "build complete",
		"documents", result.Documents,
		"copied", result.Copied,
		"written", humanize.Bytes(uint64(result.BytesWritten)),
		"components", b.renderer.Registry().Count(),
		"cache_hits", result.CacheHits,
		"errors", len(result.Errors),
		"duration", result.Duration)

	for _, f := range result.Failures {
		b.logger.Warn(ctx, errors.ErrComponentNotFound, "unresolved component",
			"component", f.Component,
			"first_file", f.FirstFile,
			"occurrences", humanize.Comma(int64(f.Count)),
			"files", f.Files)
	}
}

func writeFile(dst string, data []byte) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return 0, err
	}

	return int64(len(data)), nil
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}

	return n, err
}
