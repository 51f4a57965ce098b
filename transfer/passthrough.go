package transfer

import (
	"github.com/joshuapare/xfercache/central"
	"github.com/joshuapare/xfercache/pageheap"
	"github.com/joshuapare/xfercache/sizeclass"
)

// PassthroughManager has the CachingManager surface without any transfer
// cache storage. Every call goes to the central free list, and TCLength is
// always zero.
type PassthroughManager struct {
	table     *sizeclass.Table
	heap      *pageheap.Heap
	newList   func(int) CentralFreeList
	freelists []CentralFreeList
}

// NewPassthrough creates a manager without transfer caches. Init must run
// before use. Options.GrowAfterMisses is ignored.
func NewPassthrough(opts Options) *PassthroughManager {
	opts = opts.withDefaults()
	return &PassthroughManager{
		table:   opts.Table,
		heap:    opts.Heap,
		newList: opts.Central,
	}
}

// Init builds the central free lists. The caller must hold the heap lock.
func (m *PassthroughManager) Init() error {
	m.heap.AssertHeld()
	if m.freelists != nil {
		return ErrAlreadyInitialized
	}
	m.freelists = make([]CentralFreeList, m.table.NumClasses())
	for cl := range m.freelists {
		m.freelists[cl] = m.newList(cl)
		m.freelists[cl].Init(cl)
	}
	return nil
}

// InsertRange forwards batch to the central free list of sizeClass.
func (m *PassthroughManager) InsertRange(sizeClass int, batch []uintptr) {
	if len(batch) == 0 {
		return
	}
	m.freelists[sizeClass].InsertRange(batch)
}

// RemoveRange fills batch from the central free list of sizeClass.
func (m *PassthroughManager) RemoveRange(sizeClass int, batch []uintptr) int {
	if len(batch) == 0 {
		return 0
	}
	return m.freelists[sizeClass].RemoveRange(batch)
}

func (m *PassthroughManager) CentralLength(sizeClass int) int {
	return m.freelists[sizeClass].Length()
}

// TCLength is always zero.
func (m *PassthroughManager) TCLength(int) int { return 0 }

func (m *PassthroughManager) OverheadBytes(sizeClass int) uint64 {
	return m.freelists[sizeClass].OverheadBytes()
}

func (m *PassthroughManager) SpanStats(sizeClass int) central.SpanStats {
	return m.freelists[sizeClass].SpanStats()
}

// Snapshot returns diagnostics for every size class with empty cache stats.
func (m *PassthroughManager) Snapshot() []ClassStats {
	out := make([]ClassStats, len(m.freelists))
	for cl, fl := range m.freelists {
		out[cl] = ClassStats{
			SizeClass:     cl,
			ObjectSize:    m.table.ClassToSize(cl),
			CentralLength: fl.Length(),
			OverheadBytes: fl.OverheadBytes(),
			Spans:         fl.SpanStats(),
		}
	}
	return out
}

func (m *PassthroughManager) Table() *sizeclass.Table { return m.table }

func (m *PassthroughManager) Heap() *pageheap.Heap { return m.heap }
