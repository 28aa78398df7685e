package store

import "errors"

// ErrConflict is wrapped by backends when a write collides with an existing
// row, e.g. a second evaluation for the same target.
var ErrConflict = errors.New("conflicting write")
