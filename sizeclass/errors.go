package sizeclass

import "errors"

// ErrBadTable indicates a custom size-class table violates a table invariant.
var ErrBadTable = errors.New("sizeclass: invalid table")
