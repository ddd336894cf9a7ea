// Package internal contains the implementation packages of the weave CLI.
//
// # Package Organization
//
//   - types: components, props and their tagged values
//   - scanner: finds self-closing component tags, protecting comments
//   - directive: {% if %} and {% for %} blocks inside templates
//   - registry: the component store and its dependency graph
//   - renderer: recursive expansion with a generation-keyed cache
//   - build: full and incremental builds of a source tree
//   - watcher: debounced fsnotify events
//   - server: preview server with live reload
//   - config, logging, errors, version: ambient concerns
//
// # Data Flow
//
// The registry loads templates from the components directory. The builder
// walks the source tree and hands each document to the renderer, which
// finds tags with the scanner, substitutes props, evaluates directives and
// recurses into the result. In watch mode the watcher feeds changed paths
// back to the builder, and the server tells browsers to reload after each
// build.
package internal
