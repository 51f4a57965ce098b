//go:build !smallbutslow

package transfer

// Manager is the transfer cache manager selected at build time.
type Manager = CachingManager

// Small reports whether the passthrough variant was selected.
const Small = false

// New returns the build-selected manager.
func New(opts Options) *Manager { return NewCaching(opts) }
