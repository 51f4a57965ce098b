//go:build !invariants

// Package invariants gates debug-only assertions behind a build tag.
package invariants

// Enabled is false in normal builds.
const Enabled = false
