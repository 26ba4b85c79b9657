package pipeline

import "errors"

var (
	// ErrClosed is returned when using a closed session.
	ErrClosed = errors.New("pipeline: session closed")

	// ErrMissingDependency is returned when a required dependency is nil.
	ErrMissingDependency = errors.New("pipeline: missing dependency")
)
