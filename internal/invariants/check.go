package invariants

import "fmt"

// Check panics with the formatted message when cond is false and the
// invariants build tag is set. In normal builds it is a no-op, and callers
// on hot paths should still guard it with Enabled so the arguments are
// never evaluated.
func Check(cond bool, format string, args ...any) {
	if Enabled && !cond {
		panic(fmt.Sprintf("invariant violated: "+format, args...))
	}
}
