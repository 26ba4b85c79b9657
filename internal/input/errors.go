package input

import "errors"

var (
	// ErrInvalidConfig is returned for unusable scheduler options.
	ErrInvalidConfig = errors.New("input: invalid configuration")

	// ErrInvalidPosition is returned when an operation falls outside the
	// text it is applied to.
	ErrInvalidPosition = errors.New("input: invalid position")

	// ErrClosed is returned by a closed scheduler.
	ErrClosed = errors.New("input: scheduler closed")
)
