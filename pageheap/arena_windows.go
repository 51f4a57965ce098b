//go:build windows

package pageheap

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// mapArena reserves and commits size bytes with VirtualAlloc.
func mapArena(size int) ([]byte, error) {
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_RESERVE|windows.MEM_COMMIT, windows.PAGE_READWRITE)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), nil
}

// unmapArena releases a mapping obtained from mapArena.
func unmapArena(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return windows.VirtualFree(uintptr(unsafe.Pointer(&data[0])), 0, windows.MEM_RELEASE)
}
