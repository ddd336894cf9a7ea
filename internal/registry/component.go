// Package registry implements the component store: it loads component
// templates from a directory tree and indexes them by name.
package registry

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/weave/internal/errors"
	"github.com/conneroisu/weave/internal/types"
)

// DefaultExtensions are the template file extensions registered by Load.
var DefaultExtensions = []string{".html", ".htm"}

// ComponentRegistry manages all loaded components
type ComponentRegistry struct {
	components map[string]*types.Component
	extensions []string
	generation uint64
	mutex      sync.RWMutex
	watchers   []chan types.ComponentEvent
}

// NewComponentRegistry creates a new component registry. With no extensions
// DefaultExtensions is used.
func NewComponentRegistry(extensions ...string) *ComponentRegistry {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	exts := make([]string, len(extensions))
	for i, ext := range extensions {
		exts[i] = strings.ToLower(ext)
	}

	return &ComponentRegistry{
		components: make(map[string]*types.Component),
		extensions: exts,
		watchers:   make([]chan types.ComponentEvent, 0),
	}
}

// ComponentName derives a component name from a template path relative to
// the components root: separators become '/', the extension is dropped.
func ComponentName(rel string) string {
	rel = filepath.ToSlash(rel)

	return strings.TrimSuffix(rel, filepath.Ext(rel))
}

// Load scans root recursively and replaces the registry contents with every
// template found. Returns errors.ErrComponentsDirectoryMissing when root is
// absent or not a directory. On any other error the previous contents are
// kept.
func (r *ComponentRegistry) Load(root string) error {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		if err == nil {
			err = fmt.Errorf("%s is not a directory", root)
		}

		return errors.ErrComponentsDirectoryMissing.WithFile(root).WithCause(err)
	}

	loaded := make(map[string]*types.Component)
	now := time.Now()

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !r.isTemplate(path) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return errors.NewIOError(errors.ErrCodeFileRead, path, err)
		}

		name := ComponentName(rel)
		loaded[name] = &types.Component{
			Name:     name,
			FilePath: path,
			Template: string(content),
			LoadedAt: now,
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("loading components from %s: %w", root, err)
	}

	r.replace(loaded)

	return nil
}

func (r *ComponentRegistry) isTemplate(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range r.extensions {
		if ext == e {
			return true
		}
	}

	return false
}

func (r *ComponentRegistry) replace(loaded map[string]*types.Component) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	previous := r.components
	r.components = loaded
	r.generation++

	now := time.Now()
	for name, component := range loaded {
		r.notify(types.ComponentEvent{Type: types.EventTypeLoaded, Component: component, Timestamp: now})
		delete(previous, name)
	}
	for _, component := range previous {
		r.notify(types.ComponentEvent{Type: types.EventTypeRemoved, Component: component, Timestamp: now})
	}
}

// notify must be called with the write lock held.
func (r *ComponentRegistry) notify(event types.ComponentEvent) {
	for _, watcher := range r.watchers {
		select {
		case watcher <- event:
		default:
			// Skip if channel is full
		}
	}
}

// Register adds or replaces a single component. It bumps the generation like
// a reload does.
func (r *ComponentRegistry) Register(component *types.Component) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.components[component.Name] = component
	r.generation++
	r.notify(types.ComponentEvent{Type: types.EventTypeLoaded, Component: component, Timestamp: time.Now()})
}

// Get retrieves a component by name
func (r *ComponentRegistry) Get(name string) (*types.Component, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	component, exists := r.components[name]

	return component, exists
}

// GetAll returns all registered components
func (r *ComponentRegistry) GetAll() map[string]*types.Component {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make(map[string]*types.Component, len(r.components))
	for name, component := range r.components {
		result[name] = component
	}

	return result
}

// Names returns the registered component names, sorted.
func (r *ComponentRegistry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.components))
	for name := range r.components {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Count returns the number of registered components
func (r *ComponentRegistry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.components)
}

// Generation increases on every Load or Register. Caches built on top of the
// registry compare generations to detect reloaded templates.
func (r *ComponentRegistry) Generation() uint64 {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.generation
}

// Watch returns a channel that receives component events
func (r *ComponentRegistry) Watch() <-chan types.ComponentEvent {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ch := make(chan types.ComponentEvent, 100)
	r.watchers = append(r.watchers, ch)

	return ch
}

// UnWatch removes a watcher channel and closes it
func (r *ComponentRegistry) UnWatch(ch <-chan types.ComponentEvent) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i, watcher := range r.watchers {
		if watcher == ch {
			close(watcher)
			r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)

			break
		}
	}
}
