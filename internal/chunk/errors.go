package chunk

import "errors"

var (
	// ErrInvalidConfig is returned for a non-positive chunk size or a
	// negative retention cap.
	ErrInvalidConfig = errors.New("chunk: invalid configuration")

	// ErrRangeOutOfBounds is returned for reads outside the content.
	ErrRangeOutOfBounds = errors.New("chunk: range out of bounds")

	// ErrChunkEvicted is returned when a read touches a chunk dropped
	// under memory pressure. The caller owns the authoritative text and
	// must reload it with SetContent.
	ErrChunkEvicted = errors.New("chunk: evicted")
)
