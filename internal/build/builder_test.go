package build

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/weave/internal/config"
	"github.com/conneroisu/weave/internal/errors"
	"github.com/conneroisu/weave/internal/renderer"
	"github.com/conneroisu/weave/internal/testutils"
)

func newTestBuilder(t *testing.T) (*Builder, *config.Config) {
	t.Helper()

	source := testutils.CreateTempProject(t)
	cfg := testutils.CreateTestConfig(source)

	return NewBuilder(cfg, nil, nil), cfg
}

func TestBuildExpandsDocuments(t *testing.T) {
	b, cfg := newTestBuilder(t)
	testutils.CreateTestComponent(t, cfg.Source, "heading", "<h1>{{title}}</h1>")
	testutils.CreateTestComponent(t, cfg.Source, "ui/badge", "<span>{{label}}</span>")
	testutils.WriteFile(t, cfg.Source, "index.html", `<body><heading title="Hi" /><ui/badge label="new" /></body>`)

	result, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Documents)
	assert.Empty(t, result.Errors)
	out := testutils.ReadFile(t, cfg.Output, "index.html")
	assert.Equal(t, "<body><h1>Hi</h1><span>new</span></body>", renderer.StripTraceMarkers(out))
	assert.Contains(t, out, "<!-- heading -->")
}

func TestBuildCopyThrough(t *testing.T) {
	b, cfg := newTestBuilder(t)
	plain := "<!doctype html>\n<html><body><p>No components here.</p><br/><img src=\"a.png\" /></body></html>\n"
	testutils.WriteFile(t, cfg.Source, "plain.html", plain)
	testutils.WriteFile(t, cfg.Source, "css/site.css", "body { color: red; }")
	testutils.WriteFile(t, cfg.Source, "img/logo.bin", "\x00\x01\x02")

	result, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Documents)
	assert.Equal(t, 2, result.Copied)
	assert.Equal(t, plain, testutils.ReadFile(t, cfg.Output, "plain.html"))
	assert.Equal(t, "body { color: red; }", testutils.ReadFile(t, cfg.Output, "css/site.css"))
	assert.Equal(t, "\x00\x01\x02", testutils.ReadFile(t, cfg.Output, "img/logo.bin"))
}

func TestBuildSkipsComponentsDirectory(t *testing.T) {
	b, cfg := newTestBuilder(t)
	testutils.CreateTestComponent(t, cfg.Source, "card", "<div>card</div>")
	testutils.WriteFile(t, cfg.Source, "index.html", "<card />")

	_, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.NoFileExists(t, filepath.Join(cfg.Output, "components", "card.html"))
}

func TestBuildSkipsNestedOutputDirectory(t *testing.T) {
	b, cfg := newTestBuilder(t)
	cfg.Output = filepath.Join(cfg.Source, "dist")
	testutils.WriteFile(t, cfg.Source, "index.html", "<p>x</p>")

	_, err := b.Build(context.Background())
	require.NoError(t, err)
	result, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Documents)
	assert.Equal(t, 0, result.Copied)
	assert.NoDirExists(t, filepath.Join(cfg.Output, "dist"))
}

func TestBuildDepthLimit(t *testing.T) {
	b, cfg := newTestBuilder(t)
	cfg.Build.Depth = 1
	testutils.CreateTestComponent(t, cfg.Source, "x", "X")
	testutils.WriteFile(t, cfg.Source, "top.html", "<x />")
	testutils.WriteFile(t, cfg.Source, "a/one.html", "<x />")
	testutils.WriteFile(t, cfg.Source, "a/b/two.html", "<x />")

	result, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Documents)
	assert.Equal(t, 1, result.Copied)
	assert.Equal(t, "X", renderer.StripTraceMarkers(testutils.ReadFile(t, cfg.Output, "a/one.html")))
	assert.Equal(t, "<x />", testutils.ReadFile(t, cfg.Output, "a/b/two.html"))
}

func TestBuildFilter(t *testing.T) {
	b, cfg := newTestBuilder(t)
	cfg.Build.Filter = []string{"about.html", "blog/post.html"}
	testutils.CreateTestComponent(t, cfg.Source, "x", "X")
	testutils.WriteFile(t, cfg.Source, "index.html", "<x />")
	testutils.WriteFile(t, cfg.Source, "about.html", "<x />")
	testutils.WriteFile(t, cfg.Source, "blog/post.html", "<x />")
	testutils.WriteFile(t, cfg.Source, "blog/index.html", "<x />")

	result, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Documents)
	assert.Equal(t, "<x />", testutils.ReadFile(t, cfg.Output, "index.html"))
	assert.Equal(t, "<x />", testutils.ReadFile(t, cfg.Output, "blog/index.html"))
	assert.Equal(t, "X", renderer.StripTraceMarkers(testutils.ReadFile(t, cfg.Output, "about.html")))
}

func TestBuildMissingComponentTally(t *testing.T) {
	b, cfg := newTestBuilder(t)
	testutils.WriteFile(t, cfg.Source, "index.html", `<p><ghost a="1" /></p><ghost a="1" />`)

	result, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, `<p><ghost a="1" /></p><ghost a="1" />`, testutils.ReadFile(t, cfg.Output, "index.html"))
	assert.Equal(t, 2, result.FailedResolutions)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, renderer.FailureSummary{Component: "ghost", FirstFile: "index.html", Count: 2, Files: 1}, result.Failures[0])
}

func TestBuildCyclicDocumentCopiedThrough(t *testing.T) {
	b, cfg := newTestBuilder(t)
	testutils.CreateTestComponent(t, cfg.Source, "a", "<b />")
	testutils.CreateTestComponent(t, cfg.Source, "b", "<a />")
	testutils.WriteFile(t, cfg.Source, "loop.html", "<a />")
	testutils.WriteFile(t, cfg.Source, "ok.html", "<p>fine</p>")

	result, err := b.Build(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Errors, 1)
	assert.True(t, errors.IsCyclic(result.Errors[0]))
	assert.Equal(t, 1, result.Documents)
	assert.Equal(t, "<a />", testutils.ReadFile(t, cfg.Output, "loop.html"))
	assert.Equal(t, "<p>fine</p>", testutils.ReadFile(t, cfg.Output, "ok.html"))
}

func TestBuildMissingSourceDirectory(t *testing.T) {
	b, cfg := newTestBuilder(t)
	require.NoError(t, os.RemoveAll(cfg.Source))

	_, err := b.Build(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSourceDirectoryMissing)
	assert.True(t, errors.IsFatal(err))
}

func TestBuildMissingComponentsDirectory(t *testing.T) {
	b, cfg := newTestBuilder(t)
	require.NoError(t, os.RemoveAll(cfg.ComponentsRoot()))

	_, err := b.Build(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrComponentsDirectoryMissing)
}

func TestBuildOutputInsideComponents(t *testing.T) {
	b, cfg := newTestBuilder(t)
	cfg.Output = filepath.Join(cfg.ComponentsRoot(), "out")

	_, err := b.Build(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), errors.ErrCodeOutputInsideComponents)
}

func TestBuildPicksUpComponentChanges(t *testing.T) {
	b, cfg := newTestBuilder(t)
	testutils.CreateTestComponent(t, cfg.Source, "greet", "hello {{who}}")
	testutils.WriteFile(t, cfg.Source, "index.html", `<greet who="you" />`)

	_, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello you", renderer.StripTraceMarkers(testutils.ReadFile(t, cfg.Output, "index.html")))

	testutils.CreateTestComponent(t, cfg.Source, "greet", "bye {{who}}")
	_, err = b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bye you", renderer.StripTraceMarkers(testutils.ReadFile(t, cfg.Output, "index.html")))
}

func TestTryBuildDropsWhileInFlight(t *testing.T) {
	b, cfg := newTestBuilder(t)
	testutils.WriteFile(t, cfg.Source, "index.html", "<p>x</p>")

	b.run.Lock()
	_, err := b.TryBuild(context.Background())
	assert.ErrorIs(t, err, errors.ErrBuildInProgress)
	_, err = b.TryRebuildFile(context.Background(), filepath.Join(cfg.Source, "index.html"))
	assert.ErrorIs(t, err, errors.ErrBuildInProgress)
	b.run.Unlock()

	assert.Equal(t, int64(2), b.Metrics().GetSnapshot().DroppedBuilds)

	result, err := b.TryBuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Documents)
	assert.False(t, b.InProgress())
}

func TestRebuildFileOnlyRewritesThatFile(t *testing.T) {
	b, cfg := newTestBuilder(t)
	testutils.CreateTestComponent(t, cfg.Source, "x", "X")
	testutils.WriteFile(t, cfg.Source, "one.html", "<x />")
	testutils.WriteFile(t, cfg.Source, "two.html", "<x />")

	_, err := b.Build(context.Background())
	require.NoError(t, err)

	// Tamper with two.html's output so a rewrite would be visible.
	testutils.WriteFile(t, cfg.Output, "two.html", "untouched")
	testutils.WriteFile(t, cfg.Source, "one.html", "<p><x /></p>")

	var events []Event
	b.AddCallback(func(e Event) { events = append(events, e) })

	rel, err := b.RebuildFile(context.Background(), filepath.Join(cfg.Source, "one.html"))
	require.NoError(t, err)
	assert.Equal(t, "one.html", rel)
	assert.Equal(t, "<p>X</p>", renderer.StripTraceMarkers(testutils.ReadFile(t, cfg.Output, "one.html")))
	assert.Equal(t, "untouched", testutils.ReadFile(t, cfg.Output, "two.html"))
	require.Len(t, events, 1)
	assert.Equal(t, Event{Kind: EventFile, Path: "one.html"}, events[0])
}

func TestRebuildFileDoesNotInflateFailures(t *testing.T) {
	b, cfg := newTestBuilder(t)
	testutils.CreateTestComponent(t, cfg.Source, "shell", `<div><gone/></div>`)
	page := testutils.WriteFile(t, cfg.Source, "page.html", `<missing/><missing/><shell/>`)

	result, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.FailedResolutions)

	for range 3 {
		_, err = b.RebuildFile(context.Background(), page)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, b.Renderer().Failures().Count("missing", "page.html"))
	assert.Equal(t, 1, b.Renderer().Failures().Count("gone", "page.html"))
	assert.Equal(t, 3, b.LastResult().FailedResolutions)

	testutils.WriteFile(t, cfg.Source, "page.html", `<p>fixed</p>`)
	_, err = b.RebuildFile(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, 0, b.Renderer().Failures().Total())
	assert.Equal(t, 0, b.LastResult().FailedResolutions)
	assert.Empty(t, b.LastResult().Failures)
	assert.Equal(t, 3, result.FailedResolutions, "earlier results are not modified")
}

func TestRebuildFileCopiesAssetsAndRemovesDeleted(t *testing.T) {
	b, cfg := newTestBuilder(t)
	css := testutils.WriteFile(t, cfg.Source, "site.css", "a{}")

	_, err := b.Build(context.Background())
	require.NoError(t, err)

	testutils.WriteFile(t, cfg.Source, "site.css", "b{}")
	_, err = b.RebuildFile(context.Background(), css)
	require.NoError(t, err)
	assert.Equal(t, "b{}", testutils.ReadFile(t, cfg.Output, "site.css"))

	require.NoError(t, os.Remove(css))
	_, err = b.RebuildFile(context.Background(), css)
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(cfg.Output, "site.css"))
}

func TestRebuildFileRejectsComponents(t *testing.T) {
	b, cfg := newTestBuilder(t)
	path := testutils.CreateTestComponent(t, cfg.Source, "card", "c")

	_, err := b.RebuildFile(context.Background(), path)
	assert.Error(t, err)
}

func TestBuildManyDocumentsConcurrently(t *testing.T) {
	b, cfg := newTestBuilder(t)
	cfg.Build.Workers = 4
	testutils.CreateTestComponent(t, cfg.Source, "item", "<li>{{n}}</li>")
	for i := 0; i < 40; i++ {
		name := filepath.Join("pages", strings.Repeat("p", i%5+1)+string(rune('a'+i%26))+".html")
		testutils.WriteFile(t, cfg.Source, filepath.ToSlash(name), `<ul><item n="1" /><item n="2" /></ul>`)
	}

	result, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 2, b.Renderer().Cache().Len())
	assert.Positive(t, result.CacheHits)
}

func TestBuildRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	source := testutils.CreateTempProject(t)
	cfg := testutils.CreateTestConfig(source)
	b := NewBuilder(cfg, nil, NewMetrics(reg))
	testutils.WriteFile(t, source, "index.html", "<ghost />")
	testutils.WriteFile(t, source, "a.txt", "a")

	_, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1.0, gatheredValue(t, reg, "weave_documents_processed_total"))
	assert.Equal(t, 1.0, gatheredValue(t, reg, "weave_files_copied_total"))
	assert.Equal(t, 1.0, gatheredValue(t, reg, "weave_failed_resolutions_total"))
	assert.Equal(t, 1.0, gatheredValue(t, reg, "weave_builds_total"))
	assert.Equal(t, int64(1), b.Metrics().GetSnapshot().TotalBuilds)
	assert.Equal(t, 100.0, b.Metrics().GetSuccessRate())
}

// gatheredValue sums the counter samples of the named metric family.
func gatheredValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		total := 0.0
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}

		return total
	}
	t.Fatalf("metric %s not gathered", name)

	return 0
}

func TestWithinDepth(t *testing.T) {
	testCases := []struct {
		rel      string
		depth    int
		expected bool
	}{
		{"index.html", 0, true},
		{"a/index.html", 0, false},
		{"a/index.html", 1, true},
		{"a/b/index.html", 1, false},
		{"a/b/c/index.html", -1, true},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, WithinDepth(tc.rel, tc.depth), "%s at depth %d", tc.rel, tc.depth)
	}
}

func TestMatchesFilter(t *testing.T) {
	assert.True(t, MatchesFilter("a/b.html", nil))
	assert.True(t, MatchesFilter("a/b.html", []string{"b.html"}))
	assert.True(t, MatchesFilter("a/b.html", []string{"./a/b.html"}))
	assert.False(t, MatchesFilter("a/b.html", []string{"c.html", "a"}))
}

func TestApplyChangesDocument(t *testing.T) {
	b, cfg := newTestBuilder(t)
	testutils.CreateTestComponent(t, cfg.Source, "x", "X")
	doc := testutils.WriteFile(t, cfg.Source, "index.html", "<x />")

	_, err := b.Build(context.Background())
	require.NoError(t, err)

	testutils.WriteFile(t, cfg.Source, "index.html", "<b><x /></b>")
	outcome, err := b.ApplyChanges(context.Background(), []string{
		doc,
		filepath.Join(cfg.Output, "index.html"),
	})
	require.NoError(t, err)

	assert.False(t, outcome.Full)
	assert.Equal(t, []string{"index.html"}, outcome.Paths)
	assert.Equal(t, "<b>X</b>", renderer.StripTraceMarkers(testutils.ReadFile(t, cfg.Output, "index.html")))
}

func TestApplyChangesComponentRebuildsSite(t *testing.T) {
	b, cfg := newTestBuilder(t)
	component := testutils.CreateTestComponent(t, cfg.Source, "x", "X")
	testutils.WriteFile(t, cfg.Source, "one.html", "<x />")
	testutils.WriteFile(t, cfg.Source, "two.html", "<x />")

	_, err := b.Build(context.Background())
	require.NoError(t, err)

	testutils.CreateTestComponent(t, cfg.Source, "x", "Y")
	outcome, err := b.ApplyChanges(context.Background(), []string{component})
	require.NoError(t, err)

	assert.True(t, outcome.Full)
	assert.Equal(t, "Y", renderer.StripTraceMarkers(testutils.ReadFile(t, cfg.Output, "one.html")))
	assert.Equal(t, "Y", renderer.StripTraceMarkers(testutils.ReadFile(t, cfg.Output, "two.html")))
}

func TestApplyChangesDroppedWhileBuilding(t *testing.T) {
	b, cfg := newTestBuilder(t)

	b.run.Lock()
	defer b.run.Unlock()

	_, err := b.ApplyChanges(context.Background(), []string{filepath.Join(cfg.Source, "index.html")})
	assert.ErrorIs(t, err, errors.ErrBuildInProgress)
}

func TestDocumentsFollowsBuildRules(t *testing.T) {
	b, cfg := newTestBuilder(t)
	cfg.Build.Depth = 1
	testutils.CreateTestComponent(t, cfg.Source, "card", "<div></div>")
	testutils.WriteFile(t, cfg.Source, "index.html", "")
	testutils.WriteFile(t, cfg.Source, "blog/post.html", "")
	testutils.WriteFile(t, cfg.Source, "blog/2026/old.html", "")
	testutils.WriteFile(t, cfg.Source, "style.css", "")

	docs, err := b.Documents()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"index.html", "blog/post.html"}, docs)
}
