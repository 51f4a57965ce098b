package transfer

import "errors"

var (
	// ErrAlreadyInitialized indicates Init was called a second time.
	ErrAlreadyInitialized = errors.New("transfer: already initialized")

	// ErrStorage indicates slot storage could not be allocated during Init.
	ErrStorage = errors.New("transfer: slot storage allocation failed")
)
