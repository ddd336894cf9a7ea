package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventType(42), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestNewFileWatcher(t *testing.T) {
	watcher, err := NewFileWatcher(100*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	assert.NotNil(t, watcher.watcher)
	assert.NotNil(t, watcher.debouncer)
	assert.Empty(t, watcher.filters)
	assert.Empty(t, watcher.handlers)
}

func TestStopIsIdempotent(t *testing.T) {
	watcher, err := NewFileWatcher(10*time.Millisecond, nil)
	require.NoError(t, err)

	assert.NoError(t, watcher.Stop())
	assert.NoError(t, watcher.Stop())
}

func TestAddPathMissing(t *testing.T) {
	watcher, err := NewFileWatcher(10*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	assert.Error(t, watcher.AddPath(filepath.Join(t.TempDir(), "missing")))
}

func TestAddRecursiveHonoursFilters(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"a/b", ".git/objects", "dist/assets"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	}

	watcher, err := NewFileWatcher(10*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	watcher.AddFilter(NoGitFilter)
	watcher.AddFilter(ExcludeDirFilter(filepath.Join(root, "dist")))
	require.NoError(t, watcher.AddRecursive(root))

	assert.Equal(t, []string{
		root,
		filepath.Join(root, "a"),
		filepath.Join(root, "a", "b"),
	}, watcher.WatchList())
}

func TestWatcherDeliversDebouncedBatch(t *testing.T) {
	root := t.TempDir()
	watcher, err := NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	require.NoError(t, watcher.AddRecursive(root))

	var mu sync.Mutex
	var batches [][]ChangeEvent
	watcher.AddHandler(func(_ context.Context, events []ChangeEvent) error {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, events)

		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))

	path := filepath.Join(root, "index.html")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte{byte('a' + i)}, 0o644))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(batches) > 0
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, batches[0], 1, "rapid writes to one file coalesce")
	assert.Equal(t, path, batches[0][0].Path)
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	watcher, err := NewFileWatcher(20*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()
	require.NoError(t, watcher.AddRecursive(root))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))

	sub := filepath.Join(root, "blog")
	require.NoError(t, os.Mkdir(sub, 0o755))

	assert.Eventually(t, func() bool {
		for _, p := range watcher.WatchList() {
			if p == sub {
				return true
			}
		}

		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCoalesce(t *testing.T) {
	events := Coalesce([]ChangeEvent{
		{Type: EventTypeCreated, Path: "b"},
		{Type: EventTypeModified, Path: "a"},
		{Type: EventTypeDeleted, Path: "b"},
	})

	assert.Equal(t, []ChangeEvent{
		{Type: EventTypeModified, Path: "a"},
		{Type: EventTypeDeleted, Path: "b"},
	}, events)
}

func TestFilters(t *testing.T) {
	assert.False(t, NoGitFilter("/site/.git/HEAD"))
	assert.True(t, NoGitFilter("/site/.github/x.html"))

	assert.False(t, NoEditorTempFilter("/site/index.html~"))
	assert.False(t, NoEditorTempFilter("/site/.index.html.swp"))
	assert.False(t, NoEditorTempFilter("/site/.#index.html"))
	assert.True(t, NoEditorTempFilter("/site/index.html"))

	root := t.TempDir()
	exclude := ExcludeDirFilter(filepath.Join(root, "dist"))
	assert.False(t, exclude(filepath.Join(root, "dist")))
	assert.False(t, exclude(filepath.Join(root, "dist", "index.html")))
	assert.True(t, exclude(filepath.Join(root, "distant.html")))
	assert.True(t, exclude(filepath.Join(root, "index.html")))
}
