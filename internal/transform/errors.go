package transform

import "errors"

var (
	// ErrNoTransformFunc is returned when a script does not define the
	// transform function.
	ErrNoTransformFunc = errors.New("transform: script does not define transform(content, mode)")

	// ErrClosed is returned when using a closed Lua transform.
	ErrClosed = errors.New("transform: closed")
)
