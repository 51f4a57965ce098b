package pageheap

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/xfercache/internal/invariants"
)

func newTestHeap(t *testing.T, cfg *Config) *Heap {
	t.Helper()
	h := New(cfg)
	t.Cleanup(func() { require.NoError(t, h.Release()) })
	return h
}

func Test_Heap_DefaultConfig(t *testing.T) {
	h := newTestHeap(t, nil)
	require.Equal(t, 8192, h.PageSize())
	require.Equal(t, uint(13), h.PageShift())

	h = newTestHeap(t, &Config{PageSize: 3000})
	require.Equal(t, 8192, h.PageSize(), "non power of two falls back to default")
}

func Test_Heap_AllocPagesAlignedAndDisjoint(t *testing.T) {
	h := newTestHeap(t, &Config{PageSize: 4096, ArenaPages: 8})

	h.Lock()
	defer h.Unlock()

	seen := make(map[uintptr]bool)
	for range 20 {
		s, err := h.AllocPages(3)
		require.NoError(t, err)
		require.Zero(t, s.Base%4096, "span base must be page aligned")
		for p := range s.Pages {
			page := s.Base + uintptr(p*4096)
			require.False(t, seen[page], "page handed out twice")
			seen[page] = true
		}
	}
}

func Test_Heap_SpanMemoryIsWritable(t *testing.T) {
	h := newTestHeap(t, &Config{PageSize: 4096, ArenaPages: 4})

	h.Lock()
	s, err := h.AllocPages(1)
	h.Unlock()
	require.NoError(t, err)

	buf := h.spanBytes(s)
	require.Len(t, buf, 4096)
	for i := range buf {
		buf[i] = byte(i)
	}
	require.Equal(t, byte(255), buf[255])
}

func Test_Heap_FreePagesRecycled(t *testing.T) {
	h := newTestHeap(t, &Config{PageSize: 4096, ArenaPages: 16})

	h.Lock()
	a, err := h.AllocPages(2)
	require.NoError(t, err)
	h.FreePages(a)
	b, err := h.AllocPages(2)
	require.NoError(t, err)
	c, err := h.AllocPages(1)
	require.NoError(t, err)
	h.Unlock()

	require.Equal(t, a.Base, b.Base)
	require.NotEqual(t, a.Base, c.Base)

	st := h.Stats()
	require.Equal(t, int64(3), st.PagesInUse)
	require.Zero(t, st.PagesFree)
	require.Equal(t, int64(3), st.SpansAlloc)
	require.Equal(t, int64(1), st.SpansFreed)
}

func Test_Heap_LargeRequestGetsOwnArena(t *testing.T) {
	h := newTestHeap(t, &Config{PageSize: 4096, ArenaPages: 2})

	h.Lock()
	s, err := h.AllocPages(10)
	h.Unlock()
	require.NoError(t, err)
	require.Equal(t, 10, s.Pages)
	require.Equal(t, 1, h.Stats().Arenas)
}

func Test_Heap_Exhausted(t *testing.T) {
	h := newTestHeap(t, &Config{PageSize: 4096, ArenaPages: 4, MaxBytes: 5 * 4096})

	h.Lock()
	defer h.Unlock()

	_, err := h.AllocPages(4)
	require.NoError(t, err)
	_, err = h.AllocPages(1)
	require.ErrorIs(t, err, ErrExhausted)
	_, err = h.Alloc(64)
	require.ErrorIs(t, err, ErrExhausted)
}

func Test_Heap_BadSizes(t *testing.T) {
	h := newTestHeap(t, nil)
	h.Lock()
	defer h.Unlock()

	_, err := h.AllocPages(0)
	require.ErrorIs(t, err, ErrBadSize)
	_, err = h.Alloc(-1)
	require.ErrorIs(t, err, ErrBadSize)
}

func Test_Heap_AllocMetadataAligned(t *testing.T) {
	h := newTestHeap(t, &Config{PageSize: 4096, ArenaPages: 1})

	h.Lock()
	defer h.Unlock()

	for _, size := range []int{1, 13, 4000, 24, 9000} {
		buf, err := h.Alloc(size)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(buf), size)
		require.Equal(t, len(buf), cap(buf), "metadata must not alias the next allocation")

		start := uintptr(unsafe.Pointer(&buf[0]))
		require.Zero(t, start%metaAlign)
		for _, b := range buf {
			require.Zero(t, b)
		}
	}
	require.Positive(t, h.stats.MetadataBytes)
}

func Test_Heap_ReleasedRejectsAllocations(t *testing.T) {
	h := New(nil)
	h.Lock()
	_, err := h.AllocPages(1)
	h.Unlock()
	require.NoError(t, err)

	require.NoError(t, h.Release())
	require.NoError(t, h.Release(), "double release is a no-op")

	h.Lock()
	defer h.Unlock()
	_, err = h.AllocPages(1)
	require.ErrorIs(t, err, ErrReleased)
}

func Test_Heap_AssertHeld(t *testing.T) {
	h := newTestHeap(t, nil)
	if !invariants.Enabled {
		require.NotPanics(t, h.AssertHeld)
		return
	}
	require.Panics(t, h.AssertHeld)
	h.Lock()
	require.NotPanics(t, h.AssertHeld)
	h.Unlock()
}
