package transfer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/xfercache/central"
	"github.com/joshuapare/xfercache/pageheap"
	"github.com/joshuapare/xfercache/sizeclass"
)

// fakeCentral is an in-memory CentralFreeList. It serves preloaded objects
// first and then mints up to mintLimit fresh handles (negative means
// unlimited).
type fakeCentral struct {
	mu        sync.Mutex
	sizeClass int
	objs      []uintptr
	next      uintptr
	mintLimit int
	minted    int

	insertCalls int
	removeCalls int
	inserted    []int // Batch lengths per InsertRange call
	removed     []int // Requested lengths per RemoveRange call

	onCall func() // Runs on every InsertRange/RemoveRange
}

func newFakeCentral(base uintptr) *fakeCentral {
	return &fakeCentral{next: base, mintLimit: 0}
}

func (f *fakeCentral) Init(cl int) { f.sizeClass = cl }

func (f *fakeCentral) InsertRange(batch []uintptr) {
	if f.onCall != nil {
		f.onCall()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertCalls++
	f.inserted = append(f.inserted, len(batch))
	f.objs = append(f.objs, batch...)
}

func (f *fakeCentral) RemoveRange(batch []uintptr) int {
	if f.onCall != nil {
		f.onCall()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeCalls++
	f.removed = append(f.removed, len(batch))

	n := 0
	for n < len(batch) {
		if k := len(f.objs); k > 0 {
			batch[n] = f.objs[k-1]
			f.objs = f.objs[:k-1]
		} else if f.mintLimit < 0 || f.minted < f.mintLimit {
			batch[n] = f.next
			f.next += 8
			f.minted++
		} else {
			break
		}
		n++
	}
	return n
}

// preload puts n fresh handles on the list without counting a call.
func (f *fakeCentral) preload(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for range n {
		f.objs = append(f.objs, f.next)
		f.next += 8
	}
}

func (f *fakeCentral) Length() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objs)
}

func (f *fakeCentral) OverheadBytes() uint64 { return 0 }

func (f *fakeCentral) SpanStats() central.SpanStats {
	return central.SpanStats{SpansRequested: 1, ObjCapacity: uint64(f.minted)}
}

func (f *fakeCentral) contents() []uintptr {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uintptr(nil), f.objs...)
}

func (f *fakeCentral) calls() (inserts, removes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insertCalls, f.removeCalls
}

// testInfos has four usable classes with small, distinct capacities.
func testInfos() []sizeclass.Info {
	return []sizeclass.Info{
		{},
		{Size: 16, BatchSize: 2, InitialCapacity: 4, MaxCapacity: 8},
		{Size: 32, BatchSize: 4, InitialCapacity: 4, MaxCapacity: 16},
		{Size: 64, BatchSize: 2, InitialCapacity: 4, MaxCapacity: 8},
		{Size: 128, BatchSize: 2, InitialCapacity: 4, MaxCapacity: 8},
	}
}

func testTable(t testing.TB, infos []sizeclass.Info) *sizeclass.Table {
	t.Helper()
	table, err := sizeclass.NewCustom(infos)
	require.NoError(t, err)
	return table
}

func testHeap(t testing.TB, cfg *pageheap.Config) *pageheap.Heap {
	t.Helper()
	if cfg == nil {
		cfg = &pageheap.Config{PageSize: 4096, ArenaPages: 64}
	}
	h := pageheap.New(cfg)
	t.Cleanup(func() { _ = h.Release() })
	return h
}

// newFakeManager builds and initializes a CachingManager whose classes are
// backed by fakeCentral lists. Class cl mints handles from cl<<24.
func newFakeManager(t testing.TB, infos []sizeclass.Info, growAfter int) (*CachingManager, []*fakeCentral) {
	t.Helper()
	table := testTable(t, infos)
	fakes := make([]*fakeCentral, table.NumClasses())
	for cl := range fakes {
		fakes[cl] = newFakeCentral(uintptr(cl) << 24)
	}

	m := NewCaching(Options{
		Table:           table,
		Heap:            testHeap(t, nil),
		Central:         func(cl int) CentralFreeList { return fakes[cl] },
		GrowAfterMisses: growAfter,
	})
	initManager(t, m)
	return m, fakes
}

// newRealManager builds a manager over real central free lists.
func newRealManager(t testing.TB, table *sizeclass.Table, cfg *pageheap.Config) *CachingManager {
	t.Helper()
	m := NewCaching(Options{Table: table, Heap: testHeap(t, cfg)})
	initManager(t, m)
	return m
}

func initManager(t testing.TB, b Backend) {
	t.Helper()
	b.Heap().Lock()
	err := b.Init()
	b.Heap().Unlock()
	require.NoError(t, err)
}

// handles returns n distinct fake object references starting at base.
func handles(base uintptr, n int) []uintptr {
	out := make([]uintptr, n)
	for i := range out {
		out[i] = base + uintptr(i)*8
	}
	return out
}

// cacheContents copies the objects buffered by the cache of cl.
func cacheContents(m *CachingManager, cl int) []uintptr {
	c := &m.caches[cl]
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uintptr(nil), c.slots[:c.length]...)
}

// requireInvariants checks 0 ≤ length ≤ capacity ≤ max for every class.
func requireInvariants(t testing.TB, m *CachingManager) {
	t.Helper()
	for cl := range m.caches {
		c := &m.caches[cl]
		c.mu.Lock()
		length, capacity, maxCap := c.length, c.capacity, c.maxCapacity
		c.mu.Unlock()
		require.GreaterOrEqual(t, length, 0, "class %d", cl)
		require.LessOrEqual(t, length, capacity, "class %d", cl)
		require.LessOrEqual(t, capacity, maxCap, "class %d", cl)
	}
}
