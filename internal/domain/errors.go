// Package domain provides shared domain-level sentinel errors.
package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates malformed caller input.
var ErrValidation = errors.New("validation failed")

// ErrUnavailable indicates the backing store could not be reached or did not
// answer in time. Callers may retry.
var ErrUnavailable = errors.New("backend unavailable")

// ErrUpstream indicates an external collaborator (agent pipeline, issue
// tracker) failed or answered with an error.
var ErrUpstream = errors.New("upstream service failed")

// ParentNotFoundError reports the first ancestor in an ID chain that does not
// exist. It matches ErrNotFound via errors.Is.
type ParentNotFoundError struct {
	Kind string // "project", "epic", "feature", "use case", "test case"
	ID   string
}

func (e *ParentNotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// Unwrap lets errors.Is(err, ErrNotFound) succeed.
func (e *ParentNotFoundError) Unwrap() error { return ErrNotFound }

// IsRetryable reports whether err is a transient backend failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
