package rekt

import "errors"

// ErrInvalidInterval is returned for non-positive interval lengths or
// unrecognized interval strings. It fails fast and is never retried.
var ErrInvalidInterval = errors.New("invalid interval")
