// Package types provides common type definitions used throughout weave.
// This package contains shared types to avoid circular dependencies between packages.
package types

import "time"

// Component is a loaded component template. It is immutable once loaded; a
// reload replaces it wholesale.
type Component struct {
	// Name is the component identifier: the template's path relative to the
	// components root with '/' separators and the extension stripped
	// (e.g. "card", "layout/header").
	Name string
	// FilePath is the path of the template file on disk.
	FilePath string
	// Template is the raw template text.
	Template string
	// LoadedAt records when the template was read.
	LoadedAt time.Time
}

// Size returns the template length in bytes.
func (c *Component) Size() int {
	return len(c.Template)
}

// EventType represents the type of component store event.
type EventType string

const (
	EventTypeLoaded  EventType = "loaded"
	EventTypeRemoved EventType = "removed"
)

// ComponentEvent is sent to store watchers when a reload adds, replaces or
// drops a component.
type ComponentEvent struct {
	Type      EventType
	Component *Component
	Timestamp time.Time
}
