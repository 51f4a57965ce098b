//go:build smallbutslow

package transfer

// Manager is the transfer cache manager selected at build time. The
// "smallbutslow" tag trades latency for footprint by dropping the caches.
type Manager = PassthroughManager

// Small reports whether the passthrough variant was selected.
const Small = true

// New returns the build-selected manager.
func New(opts Options) *Manager { return NewPassthrough(opts) }
