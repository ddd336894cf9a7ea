// Package errors defines the structured error types shared by the weave
// build pipeline. Setup failures (missing source or components directory,
// invalid configuration) are fatal; per-component and per-document failures
// are recoverable and only surface in logs and the build summary.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeConfig    ErrorType = "config"
	ErrorTypeIO        ErrorType = "io"
	ErrorTypeBuild     ErrorType = "build"
	ErrorTypeComponent ErrorType = "component"
	ErrorTypeInternal  ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeSourceMissing          = "ERR_SOURCE_MISSING"
	ErrCodeComponentsMissing      = "ERR_COMPONENTS_MISSING"
	ErrCodeComponentNotFound      = "ERR_COMPONENT_NOT_FOUND"
	ErrCodeCyclicComponent        = "ERR_CYCLIC_COMPONENT"
	ErrCodeBuildInProgress        = "ERR_BUILD_IN_PROGRESS"
	ErrCodeConfigInvalid          = "ERR_CONFIG_INVALID"
	ErrCodeFileRead               = "ERR_FILE_READ"
	ErrCodeFileWrite              = "ERR_FILE_WRITE"
	ErrCodeOutputInsideComponents = "ERR_OUTPUT_INSIDE_COMPONENTS"
)

// WeaveError is a structured error type with context.
type WeaveError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Component   string
	FilePath    string
	Recoverable bool
}

// Error implements the error interface.
func (e *WeaveError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}
	if e.FilePath != "" {
		parts = append(parts, e.FilePath)
	}
	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *WeaveError) Unwrap() error {
	return e.Cause
}

// Is matches on type and code, so sentinel values below work with errors.Is
// regardless of the path or cause attached to a particular instance.
func (e *WeaveError) Is(target error) bool {
	var t *WeaveError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithFile attaches the file the error relates to.
func (e *WeaveError) WithFile(path string) *WeaveError {
	cp := *e
	cp.FilePath = path

	return &cp
}

// WithComponent attaches the component the error relates to.
func (e *WeaveError) WithComponent(component string) *WeaveError {
	cp := *e
	cp.Component = component

	return &cp
}

// WithCause attaches an underlying cause.
func (e *WeaveError) WithCause(cause error) *WeaveError {
	cp := *e
	cp.Cause = cause

	return &cp
}

// Sentinel errors. Use errors.Is against these; instances returned by the
// pipeline carry paths and causes via the With* helpers.
var (
	ErrSourceDirectoryMissing = &WeaveError{
		Type:    ErrorTypeConfig,
		Code:    ErrCodeSourceMissing,
		Message: "source directory does not exist",
	}
	ErrComponentsDirectoryMissing = &WeaveError{
		Type:    ErrorTypeConfig,
		Code:    ErrCodeComponentsMissing,
		Message: "components directory does not exist",
	}
	ErrComponentNotFound = &WeaveError{
		Type:        ErrorTypeComponent,
		Code:        ErrCodeComponentNotFound,
		Message:     "component not found",
		Recoverable: true,
	}
	ErrBuildInProgress = &WeaveError{
		Type:        ErrorTypeBuild,
		Code:        ErrCodeBuildInProgress,
		Message:     "a build is already in progress",
		Recoverable: true,
	}
)

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *WeaveError {
	return &WeaveError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewIOError creates an I/O error. I/O errors on a single document are
// recoverable from the build's point of view.
func NewIOError(code, path string, cause error) *WeaveError {
	return &WeaveError{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     "i/o failure",
		Cause:       cause,
		FilePath:    path,
		Recoverable: true,
	}
}

// NewBuildError creates a build error. Build errors abort the build.
func NewBuildError(code, message string, cause error) *WeaveError {
	return &WeaveError{
		Type:    ErrorTypeBuild,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// CyclicComponentError is returned when a component includes itself, directly
// or through other components.
type CyclicComponentError struct {
	// Cycle lists the component names from the first occurrence of the
	// repeated component to its re-entry, e.g. [card, badge, card].
	Cycle []string
	// File is the document whose expansion hit the cycle.
	File string
}

// Error implements the error interface.
func (e *CyclicComponentError) Error() string {
	msg := fmt.Sprintf("[%s] cyclic component inclusion: %s",
		ErrCodeCyclicComponent, strings.Join(e.Cycle, " -> "))
	if e.File != "" {
		msg += " (in " + e.File + ")"
	}

	return msg
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var ce *CyclicComponentError
	if errors.As(err, &ce) {
		return true
	}

	var we *WeaveError
	if errors.As(err, &we) {
		return we.Recoverable
	}

	return false
}

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	return err != nil && !IsRecoverable(err)
}

// IsCyclic reports whether err is (or wraps) a CyclicComponentError.
func IsCyclic(err error) bool {
	var ce *CyclicComponentError

	return errors.As(err, &ce)
}
