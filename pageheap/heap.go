// Package pageheap is the page-level backing allocator beneath the central
// free lists and the transfer caches' slot storage.
//
// # Locking
//
// Heap carries the global heap lock. Every mutating method (AllocPages,
// FreePages, Alloc) requires the caller to hold it:
//
//	h.Lock()
//	span, err := h.AllocPages(2)
//	h.Unlock()
//
// The requirement is a contract, not a runtime check. Builds with the
// "invariants" tag panic when a mutator runs without the lock held.
//
// # Arenas
//
// Memory is mapped in arenas (anonymous mmap on unix, VirtualAlloc on
// windows, Go memory elsewhere) aligned to the page size. Arenas are never
// returned to the OS while the heap is live; freed page runs are recycled
// by exact page count.
package pageheap

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/joshuapare/xfercache/internal/invariants"
	"github.com/joshuapare/xfercache/internal/logger"
)

// metaAlign is the alignment of metadata allocations (one machine word).
const metaAlign = 8

// Config configures a Heap. Zero fields take defaults.
type Config struct {
	PageSize   int   // Bytes per page, power of two. Default 8KiB
	ArenaPages int   // Pages mapped per arena. Default 512
	MaxBytes   int64 // Limit on mapped bytes. 0 means unlimited
}

// DefaultConfig is used for zero Config fields.
var DefaultConfig = Config{
	PageSize:   8 << 10,
	ArenaPages: 512,
}

// Span is a run of contiguous pages.
type Span struct {
	Base  uintptr // Address of the first byte
	Pages int     // Length in pages
}

// Stats holds heap-wide counters. Values are a snapshot taken under the lock.
type Stats struct {
	Arenas        int   // Number of mappings
	MappedBytes   int64 // Bytes obtained from the OS (including alignment slack)
	PagesInUse    int64 // Pages handed out by AllocPages and not yet freed
	PagesFree     int64 // Pages sitting in recycled runs
	MetadataBytes int64 // Bytes handed out by Alloc
	SpansAlloc    int64 // Successful AllocPages calls
	SpansFreed    int64 // FreePages calls
}

// Heap is a page allocator guarded by a single global lock.
type Heap struct {
	mu   sync.Mutex
	held atomic.Bool

	pageSize  int
	pageShift uint
	cfg       Config

	arenas []arena
	pages  region // Bump region for spans
	meta   region // Bump region for metadata
	free   map[int][]uintptr

	released bool
	stats    Stats
}

// arena is one OS mapping.
type arena struct {
	data []byte
}

// region bump-allocates from the usable, page-aligned part of an arena.
type region struct {
	data []byte // Aligned window into an arena
	base uintptr
	off  int
}

// New creates a heap. No memory is mapped until the first allocation.
func New(config *Config) *Heap {
	cfg := DefaultConfig
	if config != nil {
		if config.PageSize > 0 && config.PageSize&(config.PageSize-1) == 0 {
			cfg.PageSize = config.PageSize
		}
		if config.ArenaPages > 0 {
			cfg.ArenaPages = config.ArenaPages
		}
		cfg.MaxBytes = config.MaxBytes
	}

	shift := uint(0)
	for 1<<shift < cfg.PageSize {
		shift++
	}
	return &Heap{
		pageSize:  cfg.PageSize,
		pageShift: shift,
		cfg:       cfg,
		free:      make(map[int][]uintptr),
	}
}

// Lock acquires the global heap lock.
func (h *Heap) Lock() {
	h.mu.Lock()
	h.held.Store(true)
}

// Unlock releases the global heap lock.
func (h *Heap) Unlock() {
	h.held.Store(false)
	h.mu.Unlock()
}

// AssertHeld panics in invariants builds when the heap lock is not held.
// It cannot tell which goroutine holds it; it only catches unlocked calls.
func (h *Heap) AssertHeld() {
	if invariants.Enabled && !h.held.Load() {
		panic("pageheap: heap lock not held")
	}
}

// PageSize returns the page size in bytes.
func (h *Heap) PageSize() int { return h.pageSize }

// PageShift returns log2(PageSize).
func (h *Heap) PageShift() uint { return h.pageShift }

// AllocPages returns a run of n contiguous pages. The caller must hold the
// heap lock.
func (h *Heap) AllocPages(n int) (Span, error) {
	h.AssertHeld()
	if n <= 0 {
		return Span{}, ErrBadSize
	}
	if h.released {
		return Span{}, ErrReleased
	}

	if runs := h.free[n]; len(runs) > 0 {
		base := runs[len(runs)-1]
		h.free[n] = runs[:len(runs)-1]
		h.stats.PagesFree -= int64(n)
		h.stats.PagesInUse += int64(n)
		h.stats.SpansAlloc++
		return Span{Base: base, Pages: n}, nil
	}

	bytes := n * h.pageSize
	if h.pages.off+bytes > len(h.pages.data) {
		if err := h.refill(&h.pages, bytes); err != nil {
			return Span{}, err
		}
	}
	base := h.pages.base + uintptr(h.pages.off)
	h.pages.off += bytes

	h.stats.PagesInUse += int64(n)
	h.stats.SpansAlloc++
	return Span{Base: base, Pages: n}, nil
}

// FreePages returns a span to the heap for reuse by a later AllocPages of
// the same length. The caller must hold the heap lock.
func (h *Heap) FreePages(s Span) {
	h.AssertHeld()
	if s.Pages <= 0 || h.released {
		return
	}
	h.free[s.Pages] = append(h.free[s.Pages], s.Base)
	h.stats.PagesInUse -= int64(s.Pages)
	h.stats.PagesFree += int64(s.Pages)
	h.stats.SpansFreed++
}

// Alloc returns size bytes of word-aligned, zeroed metadata memory. It is
// never freed. The caller must hold the heap lock.
func (h *Heap) Alloc(size int) ([]byte, error) {
	h.AssertHeld()
	if size <= 0 {
		return nil, ErrBadSize
	}
	if h.released {
		return nil, ErrReleased
	}

	size = (size + metaAlign - 1) &^ (metaAlign - 1)
	if h.meta.off+size > len(h.meta.data) {
		if err := h.refill(&h.meta, size); err != nil {
			return nil, err
		}
	}
	buf := h.meta.data[h.meta.off : h.meta.off+size : h.meta.off+size]
	h.meta.off += size
	h.stats.MetadataBytes += int64(size)
	return buf, nil
}

// refill maps a new arena large enough for need bytes and points r at it.
// The unused tail of r's previous arena is abandoned.
func (h *Heap) refill(r *region, need int) error {
	usable := max(h.cfg.ArenaPages*h.pageSize, h.roundUp(need))
	mapped := usable + h.pageSize // slack for page alignment

	if h.cfg.MaxBytes > 0 && h.stats.MappedBytes+int64(mapped) > h.cfg.MaxBytes {
		return fmt.Errorf("%w: mapping %d bytes over limit %d", ErrExhausted, mapped, h.cfg.MaxBytes)
	}

	data, err := mapArena(mapped)
	if err != nil {
		return fmt.Errorf("pageheap: map arena: %w", err)
	}
	h.arenas = append(h.arenas, arena{data: data})

	start := uintptr(unsafe.Pointer(unsafe.SliceData(data)))
	skip := int(h.roundUpAddr(start) - start)
	r.data = data[skip : skip+usable : skip+usable]
	r.base = start + uintptr(skip)
	r.off = 0

	h.stats.Arenas++
	h.stats.MappedBytes += int64(mapped)
	if logger.Verbose {
		logger.Debug("pageheap: mapped arena", "bytes", mapped, "arenas", len(h.arenas))
	}
	return nil
}

// spanBytes returns the memory backing s, or nil when s does not lie in a
// live arena. The caller must not hold the heap lock.
func (h *Heap) spanBytes(s Span) []byte {
	h.mu.Lock()
	arenas := h.arenas
	h.mu.Unlock()

	n := uintptr(s.Pages * h.pageSize)
	for _, a := range arenas {
		start := uintptr(unsafe.Pointer(unsafe.SliceData(a.data)))
		if s.Base >= start && s.Base+n <= start+uintptr(len(a.data)) {
			off := int(s.Base - start)
			return a.data[off : off+int(n) : off+int(n)]
		}
	}
	return nil
}

func (h *Heap) roundUp(n int) int {
	return (n + h.pageSize - 1) &^ (h.pageSize - 1)
}

func (h *Heap) roundUpAddr(a uintptr) uintptr {
	mask := uintptr(h.pageSize - 1)
	return (a + mask) &^ mask
}

// Stats returns a snapshot of the heap counters. The caller must not hold
// the heap lock.
func (h *Heap) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// Release unmaps every arena. Addresses handed out earlier become invalid
// and later allocations fail with ErrReleased. Intended for tests and
// short-lived tools; a process-lifetime heap never calls it.
func (h *Heap) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	h.released = true

	var firstErr error
	for _, a := range h.arenas {
		if err := unmapArena(a.data); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	h.arenas = nil
	h.pages, h.meta = region{}, region{}
	h.free = make(map[int][]uintptr)
	return firstErr
}
