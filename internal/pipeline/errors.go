package pipeline

import "errors"

var (
	// ErrMissingDependency is returned by New when a collaborator is nil.
	ErrMissingDependency = errors.New("pipeline: missing dependency")

	// ErrNotStarted is returned when the supervisor has no generation yet.
	ErrNotStarted = errors.New("pipeline: not started")

	// ErrClosed is returned after the supervisor has been closed.
	ErrClosed = errors.New("pipeline: closed")
)
