package rate

import "errors"

// ErrBackendUnavailable wraps any failure of a backend to count a hit.
var ErrBackendUnavailable = errors.New("rate backend unavailable")
