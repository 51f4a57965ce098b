package transfer

import (
	"github.com/joshuapare/xfercache/central"
	"github.com/joshuapare/xfercache/pageheap"
	"github.com/joshuapare/xfercache/sizeclass"
)

// CentralFreeList is the per-size-class authority a Cache falls back to.
// *central.FreeList is the production implementation.
type CentralFreeList interface {
	// Init binds the list to a size class. Called once under the heap lock.
	Init(sizeClass int)

	// InsertRange absorbs every object in batch. It never fails.
	InsertRange(batch []uintptr)

	// RemoveRange fills up to len(batch) objects and returns the count.
	// A short count means the backing heap is exhausted.
	RemoveRange(batch []uintptr) int

	// Length returns the number of free objects held centrally.
	Length() int

	OverheadBytes() uint64
	SpanStats() central.SpanStats
}

// Evictor finds a donor size class and takes one capacity slot from it.
// The requester itself is never chosen. ok is false when no class could
// give up a slot.
type Evictor interface {
	DetermineSizeClassToEvict(requester int) (donor int, ok bool)
}

// Backend is the allocator-facing surface shared by both manager variants.
type Backend interface {
	// Init assigns every class its storage and initial capacity. The
	// caller must hold the page heap lock. Call exactly once.
	Init() error

	InsertRange(sizeClass int, batch []uintptr)
	RemoveRange(sizeClass int, batch []uintptr) int

	CentralLength(sizeClass int) int
	TCLength(sizeClass int) int
	OverheadBytes(sizeClass int) uint64
	SpanStats(sizeClass int) central.SpanStats

	// Snapshot returns diagnostics for every size class.
	Snapshot() []ClassStats

	Table() *sizeclass.Table
	Heap() *pageheap.Heap
}

var (
	_ Backend         = (*CachingManager)(nil)
	_ Backend         = (*PassthroughManager)(nil)
	_ Evictor         = (*CachingManager)(nil)
	_ CentralFreeList = (*central.FreeList)(nil)
)
