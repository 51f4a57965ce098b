//go:build invariants

package invariants

// Enabled is true when the binary was built with the "invariants" tag.
// Contract checks that are too expensive for the allocation path are
// guarded by it and compile away otherwise.
const Enabled = true
