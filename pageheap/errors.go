package pageheap

import "errors"

var (
	// ErrExhausted indicates that mapping another arena would exceed Config.MaxBytes.
	ErrExhausted = errors.New("pageheap: backing memory exhausted")

	// ErrBadSize indicates a non-positive page count or allocation size.
	ErrBadSize = errors.New("pageheap: bad allocation size")

	// ErrReleased indicates the heap's arenas were already unmapped.
	ErrReleased = errors.New("pageheap: heap released")
)
