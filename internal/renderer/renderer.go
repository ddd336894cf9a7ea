// Package renderer resolves component tags into HTML fragments.
//
// A resolution substitutes {{prop}} placeholders into the component
// template, evaluates its directives, expands nested component tags and
// wraps the result in trace comments naming the component:
//
//	<!-- card --><div class="card">...</div><!-- /card -->
//
// Fragments are memoized per build in an ExpansionCache. Missing components
// are tallied in a FailureRecord and leave the original tag in place.
package renderer

import (
	"context"
	"regexp"
	"strings"

	"github.com/conneroisu/weave/internal/directive"
	"github.com/conneroisu/weave/internal/errors"
	"github.com/conneroisu/weave/internal/logging"
	"github.com/conneroisu/weave/internal/registry"
	"github.com/conneroisu/weave/internal/scanner"
	"github.com/conneroisu/weave/internal/types"
)

var traceMarker = regexp.MustCompile(`<!-- /?[A-Za-z_][\w/]* -->`)

// ComponentRenderer expands component invocations against a registry.
type ComponentRenderer struct {
	registry *registry.ComponentRegistry
	scanner  *scanner.TagScanner
	cache    *ExpansionCache
	failures *FailureRecord
	logger   logging.Logger
}

// NewComponentRenderer creates a renderer over registry. A nil logger
// discards output.
func NewComponentRenderer(registry *registry.ComponentRegistry, logger logging.Logger) *ComponentRenderer {
	if logger == nil {
		logger = logging.NewNop()
	}

	return &ComponentRenderer{
		registry: registry,
		scanner:  scanner.NewTagScanner(),
		cache:    NewExpansionCache(),
		failures: NewFailureRecord(),
		logger:   logger.WithComponent("renderer"),
	}
}

// expansion is the state of one top-level document expansion.
type expansion struct {
	origin string
	stack  []string
}

// ExpandDocument expands every component tag in doc. origin names the
// document for failure records and cycle errors.
func (r *ComponentRenderer) ExpandDocument(ctx context.Context, doc, origin string) (string, error) {
	return r.expand(ctx, doc, &expansion{origin: origin})
}

// Resolve expands a single invocation of name. ok is false when the
// component does not exist; the caller keeps the original tag.
func (r *ComponentRenderer) Resolve(ctx context.Context, name string, props types.Props, origin string) (string, bool, error) {
	return r.resolve(ctx, name, props, &expansion{origin: origin})
}

func (r *ComponentRenderer) expand(ctx context.Context, text string, exp *expansion) (string, error) {
	return r.scanner.Expand(text, func(tag scanner.Tag) (string, bool, error) {
		return r.resolve(ctx, tag.Name, tag.Props, exp)
	})
}

func (r *ComponentRenderer) resolve(ctx context.Context, name string, props types.Props, exp *expansion) (string, bool, error) {
	generation := r.registry.Generation()
	key := CacheKey(name, props)
	if fragment, ok := r.cache.Get(key, generation); ok {
		return fragment, true, nil
	}

	component, ok := r.registry.Get(name)
	if !ok {
		r.failures.Record(name, exp.origin)
		r.logger.Warn(ctx, errors.ErrComponentNotFound, "component not found",
			"component", name, "file", exp.origin)

		return "", false, nil
	}

	for i, active := range exp.stack {
		if active == name {
			cycle := make([]string, 0, len(exp.stack)-i+1)
			cycle = append(cycle, exp.stack[i:]...)
			cycle = append(cycle, name)

			return "", false, &errors.CyclicComponentError{Cycle: cycle, File: exp.origin}
		}
	}
	exp.stack = append(exp.stack, name)
	defer func() { exp.stack = exp.stack[:len(exp.stack)-1] }()

	text := Substitute(component.Template, props)
	text = directive.EvalConditionals(text, props)
	text = directive.ExpandLoops(text, props)

	text, err := r.expand(ctx, text, exp)
	if err != nil {
		return "", false, err
	}

	fragment := wrap(name, text)
	r.cache.Set(key, generation, fragment)

	return fragment, true, nil
}

// Substitute replaces each {{name}} in text with the prop's value, in prop
// order. List values are joined with commas.
func Substitute(text string, props types.Props) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	for _, p := range props.Entries() {
		text = strings.ReplaceAll(text, "{{"+p.Name+"}}", p.Value.String())
	}

	return text
}

func wrap(name, body string) string {
	var b strings.Builder
	b.Grow(len(body) + 2*len(name) + 17)
	b.WriteString("<!-- ")
	b.WriteString(name)
	b.WriteString(" -->")
	b.WriteString(body)
	b.WriteString("<!-- /")
	b.WriteString(name)
	b.WriteString(" -->")

	return b.String()
}

// StripTraceMarkers removes the comments added around resolved fragments.
func StripTraceMarkers(s string) string {
	return traceMarker.ReplaceAllString(s, "")
}

// Reload reloads the registry from root and drops every cached fragment.
func (r *ComponentRenderer) Reload(root string) error {
	if err := r.registry.Load(root); err != nil {
		return err
	}
	r.cache.Clear()

	return nil
}

// Reset prepares the renderer for a new build.
func (r *ComponentRenderer) Reset() {
	r.cache.Clear()
	r.failures.Reset()
}

// ForgetDocument prepares origin for re-expansion on its own: its failures
// are dropped and the cache is cleared so that misses nested in cached
// fragments are recorded again.
func (r *ComponentRenderer) ForgetDocument(origin string) {
	r.failures.Forget(origin)
	r.cache.Clear()
}

// Registry returns the component registry.
func (r *ComponentRenderer) Registry() *registry.ComponentRegistry {
	return r.registry
}

// Cache returns the expansion cache.
func (r *ComponentRenderer) Cache() *ExpansionCache {
	return r.cache
}

// Failures returns the failed-resolution record.
func (r *ComponentRenderer) Failures() *FailureRecord {
	return r.failures
}
