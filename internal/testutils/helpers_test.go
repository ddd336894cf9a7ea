package testutils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTempProject(t *testing.T) {
	source := CreateTempProject(t)

	info, err := os.Stat(filepath.Join(source, "components"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestWriteAndReadFile(t *testing.T) {
	root := t.TempDir()

	path := WriteFile(t, root, "a/b/c.html", "<p>x</p>")
	assert.FileExists(t, path)
	assert.Equal(t, "<p>x</p>", ReadFile(t, root, "a/b/c.html"))
}

func TestCreateTestComponent(t *testing.T) {
	source := CreateTempProject(t)

	path := CreateTestComponent(t, source, "ui/badge", "<span>{{label}}</span>")
	assert.Equal(t, filepath.Join(source, "components", "ui", "badge.html"), path)
	assert.FileExists(t, path)
}

func TestCreateTestConfig(t *testing.T) {
	source := CreateTempProject(t)
	cfg := CreateTestConfig(source)

	assert.Equal(t, source, cfg.Source)
	assert.NotEqual(t, cfg.Source, cfg.Output)
	assert.Equal(t, filepath.Join(source, "components"), cfg.ComponentsRoot())
	assert.Equal(t, -1, cfg.Build.Depth)
}

func TestCreateTestRegistry(t *testing.T) {
	reg := CreateTestRegistry()

	assert.Equal(t, len(StandardComponents), reg.Count())
	card, ok := reg.Get("card")
	require.True(t, ok)
	assert.Contains(t, card.Template, "{{title}}")
	_, ok = reg.Get("layout/head")
	assert.True(t, ok)
}

func TestWaitForFileChange(t *testing.T) {
	tempDir := t.TempDir()
	testFile := filepath.Join(tempDir, "test.txt")

	err := os.WriteFile(testFile, []byte("initial"), 0644)
	require.NoError(t, err)

	info, err := os.Stat(testFile)
	require.NoError(t, err)
	originalModTime := info.ModTime()

	go func() {
		time.Sleep(50 * time.Millisecond)
		later := originalModTime.Add(time.Second)
		_ = os.Chtimes(testFile, later, later)
	}()

	WaitForFileChange(t, testFile, originalModTime, 2*time.Second)

	newInfo, err := os.Stat(testFile)
	require.NoError(t, err)
	assert.True(t, newInfo.ModTime().After(originalModTime))
}
