package viewport

import "errors"

// ErrInvalidConfig is returned when a calculator is configured with
// dimensions that would produce degenerate ranges.
var ErrInvalidConfig = errors.New("viewport: invalid configuration")
