// Package central implements the per-size-class central free list: the
// span-owning authority that transfer caches fall back to.
//
// A FreeList carves spans obtained from a pageheap.Heap into objects of
// its class and tracks which span every object belongs to, so a span whose
// objects have all come back is returned to the heap.
//
// # Locking
//
// Each FreeList has its own mutex. The heap lock is only taken while the
// list's own mutex is released, so the order between the two never
// matters to callers.
package central

import (
	"sync"
	"sync/atomic"

	"github.com/joshuapare/xfercache/internal/invariants"
	"github.com/joshuapare/xfercache/internal/logger"
	"github.com/joshuapare/xfercache/pageheap"
	"github.com/joshuapare/xfercache/sizeclass"
)

// SpanStats summarizes the spans a free list has requested from the heap.
type SpanStats struct {
	SpansRequested uint64 // Spans obtained from the page heap
	SpansReturned  uint64 // Spans handed back to the page heap
	ObjCapacity    uint64 // Object slots across live spans
}

// InUse returns the number of live spans.
func (s SpanStats) InUse() uint64 { return s.SpansRequested - s.SpansReturned }

// Add accumulates o into s.
func (s *SpanStats) Add(o SpanStats) {
	s.SpansRequested += o.SpansRequested
	s.SpansReturned += o.SpansReturned
	s.ObjCapacity += o.ObjCapacity
}

// FreeList is the central free list for one size class.
type FreeList struct {
	heap  *pageheap.Heap
	table *sizeclass.Table

	// Fixed by Init
	sizeClass    int
	size         uintptr
	objsPerSpan  int
	pagesPerSpan int // In heap pages
	shift        uint

	mu       sync.Mutex
	nonempty []*span          // Spans with at least one free object
	pages    map[uintptr]*span // Heap page number -> owning span

	length    atomic.Int64 // Free objects across all spans
	requested atomic.Uint64
	returned  atomic.Uint64
}

// span is one heap page run carved into objects.
type span struct {
	ps    pageheap.Span
	free  []uintptr // Free objects (stack)
	index int       // Position in nonempty, -1 when absent
}

// New creates a free list drawing spans from h. Init must be called
// before use.
func New(h *pageheap.Heap, t *sizeclass.Table) *FreeList {
	return &FreeList{heap: h, table: t}
}

// Init binds the list to size class cl. It does not allocate.
func (l *FreeList) Init(cl int) {
	l.sizeClass = cl
	l.size = uintptr(l.table.ClassToSize(cl))
	l.shift = l.heap.PageShift()
	l.pages = make(map[uintptr]*span)
	if l.size == 0 {
		return
	}
	spanBytes := l.table.ClassToPages(cl) * l.table.PageSize()
	l.pagesPerSpan = (spanBytes + l.heap.PageSize() - 1) / l.heap.PageSize()
	l.objsPerSpan = l.pagesPerSpan * l.heap.PageSize() / int(l.size)
}

// InsertRange returns objects to their spans. Every object must have come
// from RemoveRange on this list; anything else is a contract violation
// that panics in invariants builds and is dropped otherwise.
func (l *FreeList) InsertRange(batch []uintptr) {
	if len(batch) == 0 {
		return
	}

	var empty []*span
	l.mu.Lock()
	for _, obj := range batch {
		s := l.pages[obj>>l.shift]
		if s == nil {
			invariants.Check(false, "central: class %d object %#x not from a live span", l.sizeClass, obj)
			continue
		}
		s.free = append(s.free, obj)
		l.length.Add(1)
		if s.index < 0 {
			s.index = len(l.nonempty)
			l.nonempty = append(l.nonempty, s)
		}
		if len(s.free) == l.objsPerSpan {
			l.unlink(s)
			empty = append(empty, s)
		}
	}
	l.mu.Unlock()

	if len(empty) > 0 {
		l.release(empty)
	}
}

// RemoveRange fills batch with free objects, growing by one span at a time
// from the page heap. It returns fewer than len(batch) only when the heap
// is exhausted.
func (l *FreeList) RemoveRange(batch []uintptr) int {
	if l.size == 0 {
		return 0
	}

	n := 0
	l.mu.Lock()
	for n < len(batch) {
		if len(l.nonempty) == 0 {
			l.mu.Unlock()
			s, err := l.grow()
			l.mu.Lock()
			if err != nil {
				logger.Warn("central: span allocation failed",
					"class", l.sizeClass, "got", n, "want", len(batch), "err", err)
				break
			}
			l.link(s)
			continue
		}

		s := l.nonempty[len(l.nonempty)-1]
		take := min(len(s.free), len(batch)-n)
		copy(batch[n:], s.free[len(s.free)-take:])
		s.free = s.free[:len(s.free)-take]
		n += take
		l.length.Add(-int64(take))
		if len(s.free) == 0 {
			l.unlink(s)
		}
	}
	l.mu.Unlock()
	return n
}

// grow allocates and carves a new span. Called without l.mu held.
func (l *FreeList) grow() (*span, error) {
	l.heap.Lock()
	ps, err := l.heap.AllocPages(l.pagesPerSpan)
	l.heap.Unlock()
	if err != nil {
		return nil, err
	}

	s := &span{ps: ps, free: make([]uintptr, l.objsPerSpan), index: -1}
	// Hand out low addresses first.
	for i := range s.free {
		s.free[i] = ps.Base + uintptr(l.objsPerSpan-1-i)*l.size
	}
	l.requested.Add(1)
	if logger.Verbose {
		logger.Debug("central: grew span", "class", l.sizeClass, "pages", ps.Pages, "objects", l.objsPerSpan)
	}
	return s, nil
}

// link registers a freshly carved span. Requires l.mu.
func (l *FreeList) link(s *span) {
	first := s.ps.Base >> l.shift
	for p := range uintptr(s.ps.Pages) {
		l.pages[first+p] = s
	}
	s.index = len(l.nonempty)
	l.nonempty = append(l.nonempty, s)
	l.length.Add(int64(len(s.free)))
}

// unlink removes s from the nonempty set. Requires l.mu.
func (l *FreeList) unlink(s *span) {
	i := s.index
	if i < 0 {
		return
	}
	last := len(l.nonempty) - 1
	l.nonempty[i] = l.nonempty[last]
	l.nonempty[i].index = i
	l.nonempty[last] = nil
	l.nonempty = l.nonempty[:last]
	s.index = -1
}

// release hands fully free spans back to the heap.
func (l *FreeList) release(spans []*span) {
	l.mu.Lock()
	for _, s := range spans {
		first := s.ps.Base >> l.shift
		for p := range uintptr(s.ps.Pages) {
			delete(l.pages, first+p)
		}
		l.length.Add(-int64(len(s.free)))
	}
	l.mu.Unlock()

	l.heap.Lock()
	for _, s := range spans {
		l.heap.FreePages(s.ps)
	}
	l.heap.Unlock()

	l.returned.Add(uint64(len(spans)))
	if logger.Verbose {
		logger.Debug("central: returned spans", "class", l.sizeClass, "spans", len(spans))
	}
}

// Length returns the number of free objects held by the list.
func (l *FreeList) Length() int { return int(l.length.Load()) }

// OverheadBytes returns the span tail bytes that cannot hold an object.
func (l *FreeList) OverheadBytes() uint64 {
	if l.size == 0 {
		return 0
	}
	st := l.SpanStats()
	waste := uint64(l.pagesPerSpan*l.heap.PageSize()) - uint64(l.objsPerSpan)*uint64(l.size)
	return st.InUse() * waste
}

// SpanStats returns the list's span counters.
func (l *FreeList) SpanStats() SpanStats {
	st := SpanStats{
		SpansRequested: l.requested.Load(),
		SpansReturned:  l.returned.Load(),
	}
	st.ObjCapacity = st.InUse() * uint64(l.objsPerSpan)
	return st
}
