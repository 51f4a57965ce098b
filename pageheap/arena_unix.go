//go:build unix

package pageheap

import "golang.org/x/sys/unix"

// mapArena reserves and commits size bytes of anonymous private memory.
func mapArena(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
}

// unmapArena returns a mapping obtained from mapArena to the OS.
func unmapArena(data []byte) error {
	return unix.Munmap(data)
}
