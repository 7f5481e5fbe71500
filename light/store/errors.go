package store

import "errors"

// ErrTrustedStateNotFound is returned when a store does not have the
// requested state.
var ErrTrustedStateNotFound = errors.New("trusted state not found")
