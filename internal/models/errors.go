package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the four failure categories. Use errors.Is to
// classify, errors.As to get the details.
var (
	// ErrValidation marks a request rejected before any state changed.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a reference to an unknown scenario or resource.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState marks an operation not allowed in the current state,
	// such as undo with nothing to undo.
	ErrInvalidState = errors.New("invalid state")

	// ErrIO marks a file open/save failure.
	ErrIO = errors.New("i/o failure")
)

// ValidationError identifies the violated constraint.
type ValidationError struct {
	Field  string `json:"field"`  // e.g. "edges[2].weight", "params.max_iterations"
	Issue  string `json:"issue"`  // "dangling", "duplicate", "out-of-range", "missing", "invalid", "malformed"
	Detail string `json:"detail"` // human-readable description
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Issue)
	}
	return fmt.Sprintf("%s: %s: %s", e.Field, e.Issue, e.Detail)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError reports an unknown id.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InvalidStateError reports an operation refused in the current state.
type InvalidStateError struct {
	Op     string
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// IOError wraps a filesystem failure. Path is already redacted for display.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() []error { return []error{ErrIO, e.Err} }
