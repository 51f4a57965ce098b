//go:build !unix && !windows

package pageheap

// mapArena allocates ordinary Go memory when the platform has no mmap.
// The heap keeps the slice referenced, so the memory stays live.
func mapArena(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func unmapArena([]byte) error { return nil }
