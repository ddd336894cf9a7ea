package testutils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conneroisu/weave/internal/config"
	"github.com/conneroisu/weave/internal/registry"
	"github.com/conneroisu/weave/internal/types"
)

// CreateTempProject creates a temporary site with a source tree and an
// empty components directory. It returns the source directory.
func CreateTempProject(t *testing.T) string {
	t.Helper()

	source := filepath.Join(t.TempDir(), "site")
	err := os.MkdirAll(filepath.Join(source, config.DefaultComponentsDir), 0o755)
	require.NoError(t, err)

	return source
}

// WriteFile writes content to root/rel, creating parent directories.
func WriteFile(t *testing.T, root, rel, content string) string {
	t.Helper()

	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

// ReadFile returns the content of root/rel.
func ReadFile(t *testing.T, root, rel string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)

	return string(data)
}

// CreateTestComponent writes a component template under the project's
// components directory.
func CreateTestComponent(t *testing.T, source, name, content string) string {
	t.Helper()

	return WriteFile(t, filepath.Join(source, config.DefaultComponentsDir), name+".html", content)
}

// CreateTestConfig returns a validated-looking configuration for a project
// created by CreateTempProject. Output goes next to the source tree.
func CreateTestConfig(source string) *config.Config {
	return &config.Config{
		Source: source,
		Output: filepath.Join(filepath.Dir(source), "dist"),
		Components: config.ComponentsConfig{
			Dir:        config.DefaultComponentsDir,
			Extensions: []string{".html", ".htm"},
		},
		Build: config.BuildConfig{
			Depth:      -1,
			Extensions: []string{".html", ".htm"},
			Workers:    2,
		},
		Server: config.ServerConfig{
			Host:     "localhost",
			Port:     0,
			Debounce: 10 * time.Millisecond,
		},
		Log: config.LogConfig{Level: "error", Format: "text"},
	}
}

// CreateTestRegistry creates a registry with sample components
func CreateTestRegistry() *registry.ComponentRegistry {
	reg := registry.NewComponentRegistry()

	for name, tmpl := range StandardComponents {
		reg.Register(&types.Component{
			Name:     name,
			FilePath: filepath.Join("/test", name+".html"),
			Template: tmpl,
			LoadedAt: time.Now(),
		})
	}

	return reg
}

// StandardComponents provides component templates for testing
var StandardComponents = map[string]string{
	"button": `<button class="btn btn-{{variant}}">{{text}}</button>`,
	"card": `<div class="card">
	<div class="card-header"><h3>{{title}}</h3></div>
	<div class="card-body"><p>{{content}}</p></div>
</div>`,
	"nav":         `<nav class="navbar">{% for item in items %}<a href="/{{item}}.html">{{item}}</a>{% endfor %}</nav>`,
	"layout/head": `<head><title>{{title}}</title><meta charset="UTF-8" /></head>`,
}

// WaitForFileChange waits for a file to be modified (useful for testing file watchers)
func WaitForFileChange(
	t *testing.T,
	filePath string,
	originalModTime time.Time,
	timeout time.Duration,
) {
	t.Helper()

	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		info, err := os.Stat(filePath)
		if err == nil && info.ModTime().After(originalModTime) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("File %s was not modified within %v", filePath, timeout)
}
