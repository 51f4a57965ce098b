package transfer

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/cpu"

	"github.com/joshuapare/xfercache/central"
	"github.com/joshuapare/xfercache/internal/logger"
	"github.com/joshuapare/xfercache/pageheap"
	"github.com/joshuapare/xfercache/sizeclass"
)

const wordSize = int(unsafe.Sizeof(uintptr(0)))

// CachingManager owns one Cache per size class, routes batches to them and
// arbitrates the shared capacity budget between classes.
type CachingManager struct {
	table     *sizeclass.Table
	heap      *pageheap.Heap
	newList   func(int) CentralFreeList
	growAfter int

	caches      []Cache
	initialized bool

	_           cpu.CacheLinePad
	nextToEvict atomic.Uint32 // Round-robins over [1, NumClasses)
	_           cpu.CacheLinePad
}

// NewCaching creates a manager with every cache at zero capacity. Init
// must run before the first InsertRange or RemoveRange.
func NewCaching(opts Options) *CachingManager {
	opts = opts.withDefaults()
	m := &CachingManager{
		table:     opts.Table,
		heap:      opts.Heap,
		newList:   opts.Central,
		growAfter: opts.GrowAfterMisses,
		caches:    make([]Cache, opts.Table.NumClasses()),
	}
	m.nextToEvict.Store(1)
	return m
}

// Init allocates every class's slot storage at max capacity, then builds
// the central free lists and assigns the initial capacities. The caller
// must hold the heap lock. On error no cache or central list has been
// touched; storage already taken from the heap is not returned, so a
// retry needs a heap with room for the full set again.
func (m *CachingManager) Init() error {
	m.heap.AssertHeld()
	if m.initialized {
		return ErrAlreadyInitialized
	}

	slots := make([][]uintptr, len(m.caches))
	storage := 0
	for cl := range m.caches {
		maxCap := m.table.Info(cl).MaxCapacity
		if maxCap <= 0 {
			continue
		}
		buf, err := m.Alloc(maxCap * wordSize)
		if err != nil {
			return fmt.Errorf("%w: class %d: %w", ErrStorage, cl, err)
		}
		slots[cl] = unsafe.Slice((*uintptr)(unsafe.Pointer(unsafe.SliceData(buf))), maxCap)
		storage += len(buf)
	}

	for cl := range m.caches {
		cfl := m.newList(cl)
		cfl.Init(cl)
		m.caches[cl].init(cl, m.table.Info(cl), slots[cl], cfl, m.growAfter)
	}
	m.initialized = true

	logger.Info("transfer: initialized",
		"table", m.table.Name(),
		"classes", len(m.caches),
		"budget_slots", m.TotalCapacity(),
		"storage_bytes", storage)
	return nil
}

// Alloc returns backing memory for cache storage from the page heap. The
// caller must hold the heap lock.
func (m *CachingManager) Alloc(size int) ([]byte, error) {
	m.heap.AssertHeld()
	return m.heap.Alloc(size)
}

// InsertRange hands batch to the cache of sizeClass.
func (m *CachingManager) InsertRange(sizeClass int, batch []uintptr) {
	m.caches[sizeClass].InsertRange(batch, m)
}

// RemoveRange fills batch from the cache of sizeClass and returns the count.
func (m *CachingManager) RemoveRange(sizeClass int, batch []uintptr) int {
	return m.caches[sizeClass].RemoveRange(batch, m)
}

// DetermineSizeClassToEvict takes one capacity slot from some class other
// than requester. Candidates are visited round-robin from the shared
// cursor, which advances past every class visited. At most one full cycle
// is scanned.
func (m *CachingManager) DetermineSizeClassToEvict(requester int) (int, bool) {
	if len(m.caches) < 2 {
		return 0, false
	}

	span := uint32(len(m.caches) - 1)
	for range span {
		t := m.nextToEvict.Add(1) - 1
		cl := int(1 + (t-1)%span)
		if cl == requester {
			continue
		}
		if m.caches[cl].ShrinkCache() {
			if logger.Verbose {
				logger.Debug("transfer: evicted slot", "donor", cl, "requester", requester)
			}
			return cl, true
		}
	}

	if logger.Verbose {
		logger.Debug("transfer: no donor", "requester", requester)
	}
	return 0, false
}

// ShrinkCache takes one capacity slot from sizeClass without blocking.
func (m *CachingManager) ShrinkCache(sizeClass int) bool {
	return m.caches[sizeClass].ShrinkCache()
}

// NextToEvict returns the class the next eviction scan starts from.
func (m *CachingManager) NextToEvict() int {
	if len(m.caches) < 2 {
		return 0
	}
	span := uint32(len(m.caches) - 1)
	return int(1 + (m.nextToEvict.Load()-1)%span)
}

// TotalCapacity sums the capacity of every cache. Eviction moves slots
// between classes and never changes the total.
func (m *CachingManager) TotalCapacity() int {
	total := 0
	for cl := range m.caches {
		total += m.caches[cl].Capacity()
	}
	return total
}

// CentralLength returns the central free list length of sizeClass.
func (m *CachingManager) CentralLength(sizeClass int) int {
	return m.caches[sizeClass].CentralLength()
}

// TCLength returns the number of objects in the transfer cache of sizeClass.
func (m *CachingManager) TCLength(sizeClass int) int {
	return m.caches[sizeClass].TCLength()
}

// OverheadBytes returns the overhead of sizeClass's central free list.
func (m *CachingManager) OverheadBytes(sizeClass int) uint64 {
	return m.caches[sizeClass].OverheadBytes()
}

// SpanStats returns the span counters of sizeClass's central free list.
func (m *CachingManager) SpanStats(sizeClass int) central.SpanStats {
	return m.caches[sizeClass].SpanStats()
}

// Stats returns the transfer cache counters of sizeClass.
func (m *CachingManager) Stats(sizeClass int) CacheStats {
	return m.caches[sizeClass].Stats()
}

// Snapshot returns diagnostics for every size class.
func (m *CachingManager) Snapshot() []ClassStats {
	out := make([]ClassStats, len(m.caches))
	for cl := range m.caches {
		c := &m.caches[cl]
		out[cl] = ClassStats{
			SizeClass:     cl,
			ObjectSize:    m.table.ClassToSize(cl),
			CentralLength: c.CentralLength(),
			OverheadBytes: c.OverheadBytes(),
			Spans:         c.SpanStats(),
			Cache:         c.Stats(),
		}
	}
	return out
}

// Table returns the size-class table.
func (m *CachingManager) Table() *sizeclass.Table { return m.table }

// Heap returns the page heap whose lock guards Init and Alloc.
func (m *CachingManager) Heap() *pageheap.Heap { return m.heap }
