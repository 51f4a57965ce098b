package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test_Cache_InsertOverflowForwardsRemainder covers the fill-then-forward
// insert path: class 1 has capacity 4.
func Test_Cache_InsertOverflowForwardsRemainder(t *testing.T) {
	m, fakes := newFakeManager(t, testInfos(), -1)

	m.InsertRange(1, handles(0x1000, 3))
	assert.Equal(t, 3, m.TCLength(1))
	assert.Zero(t, m.CentralLength(1))
	inserts, removes := fakes[1].calls()
	assert.Zero(t, inserts, "a fitting insert must not touch the central list")
	assert.Zero(t, removes)

	m.InsertRange(1, handles(0x2000, 2))
	assert.Equal(t, 4, m.TCLength(1))
	assert.Equal(t, 1, m.CentralLength(1))
	assert.Equal(t, []uintptr{0x2008}, fakes[1].contents())
	assert.Equal(t, []int{1}, fakes[1].inserted)
}

func Test_Cache_OverflowIsOneBatchedCall(t *testing.T) {
	m, fakes := newFakeManager(t, testInfos(), -1)

	m.InsertRange(2, handles(0x1000, 12))
	assert.Equal(t, 4, m.TCLength(2))
	assert.Equal(t, []int{8}, fakes[2].inserted, "remainder goes in one call")
	assert.Equal(t, 8, m.CentralLength(2))
}

// Test_Cache_RemovePullsBatchFromCentral: class 2 empty, central holds 10,
// batch size 4, remove 2.
func Test_Cache_RemovePullsBatchFromCentral(t *testing.T) {
	m, fakes := newFakeManager(t, testInfos(), -1)
	fakes[2].preload(10)

	batch := make([]uintptr, 2)
	got := m.RemoveRange(2, batch)

	require.Equal(t, 2, got)
	assert.Equal(t, 6, m.CentralLength(2))
	assert.Equal(t, 2, m.TCLength(2))
	assert.Equal(t, []int{4}, fakes[2].removed)
	assert.NotEqual(t, batch[0], batch[1])
}

func Test_Cache_RemoveFastPath(t *testing.T) {
	m, fakes := newFakeManager(t, testInfos(), -1)
	in := handles(0x1000, 4)
	m.InsertRange(2, in)

	batch := make([]uintptr, 3)
	require.Equal(t, 3, m.RemoveRange(2, batch))
	assert.Equal(t, 1, m.TCLength(2))
	_, removes := fakes[2].calls()
	assert.Zero(t, removes)
	// Most recently inserted objects come back first.
	assert.ElementsMatch(t, in[1:], batch)
}

func Test_Cache_RemoveDrainsThenRefillsWholeBatches(t *testing.T) {
	m, fakes := newFakeManager(t, testInfos(), -1)
	fakes[2].preload(20)
	m.InsertRange(2, handles(0x1000, 1))

	batch := make([]uintptr, 6)
	require.Equal(t, 6, m.RemoveRange(2, batch))

	// 1 from the buffer, then two batches of 4 from central; 3 left over.
	assert.Equal(t, []int{4, 4}, fakes[2].removed)
	assert.Equal(t, 12, m.CentralLength(2))
	assert.Equal(t, 3, m.TCLength(2))
	assert.Equal(t, uintptr(0x1000), batch[0])
}

func Test_Cache_RemoveShortWhenCentralExhausted(t *testing.T) {
	m, fakes := newFakeManager(t, testInfos(), -1)
	fakes[2].preload(3)
	m.InsertRange(2, handles(0x1000, 1))

	batch := make([]uintptr, 8)
	got := m.RemoveRange(2, batch)
	assert.Equal(t, 4, got)
	assert.Zero(t, m.TCLength(2))
	assert.Zero(t, m.CentralLength(2))
}

func Test_Cache_SurplusBeyondCapacityReturnsToCentral(t *testing.T) {
	infos := testInfos()
	infos[2].InitialCapacity = 1
	m, fakes := newFakeManager(t, infos, -1)
	fakes[2].preload(10)

	batch := make([]uintptr, 1)
	require.Equal(t, 1, m.RemoveRange(2, batch))

	// Fetched 4, served 1, kept 1, returned 2.
	assert.Equal(t, 1, m.TCLength(2))
	assert.Equal(t, 8, m.CentralLength(2))
	assert.Equal(t, []int{2}, fakes[2].inserted)
}

func Test_Cache_EmptyBatches(t *testing.T) {
	m, fakes := newFakeManager(t, testInfos(), -1)
	m.InsertRange(1, nil)
	assert.Zero(t, m.RemoveRange(1, nil))
	inserts, removes := fakes[1].calls()
	assert.Zero(t, inserts)
	assert.Zero(t, removes)
}

// Test_Cache_ShrinkFullFails: with length == capacity there is no spare slot.
func Test_Cache_ShrinkFullFails(t *testing.T) {
	m, _ := newFakeManager(t, testInfos(), -1)
	m.InsertRange(3, handles(0x1000, 4))

	require.False(t, m.ShrinkCache(3))
	assert.Equal(t, 4, m.caches[3].Capacity())
	assert.Equal(t, 4, m.TCLength(3))
}

func Test_Cache_ShrinkSpareSlot(t *testing.T) {
	m, _ := newFakeManager(t, testInfos(), -1)
	m.InsertRange(3, handles(0x1000, 2))

	require.True(t, m.ShrinkCache(3))
	require.True(t, m.ShrinkCache(3))
	require.False(t, m.ShrinkCache(3))
	assert.Equal(t, 2, m.caches[3].Capacity())
	assert.Equal(t, uint64(2), m.Stats(3).Evicted)
}

func Test_Cache_ShrinkZeroCapacity(t *testing.T) {
	m, _ := newFakeManager(t, testInfos(), -1)
	assert.False(t, m.ShrinkCache(0), "reserved class never has a slot to give")
}

func Test_Cache_ShrinkDoesNotBlock(t *testing.T) {
	m, _ := newFakeManager(t, testInfos(), -1)

	c := &m.caches[3]
	c.mu.Lock()
	got := c.ShrinkCache()
	c.mu.Unlock()

	assert.False(t, got, "a held lock means try another class")
	assert.Equal(t, 4, c.Capacity())
}

// Test_Cache_NoCentralCallUnderLock checks the cache mutex is free whenever
// the central free list is entered.
func Test_Cache_NoCentralCallUnderLock(t *testing.T) {
	m, fakes := newFakeManager(t, testInfos(), 1)
	for cl, f := range fakes {
		c := &m.caches[cl]
		f.mintLimit = -1
		f.onCall = func() {
			require.True(t, c.mu.TryLock(), "class %d lock held across central call", cl)
			c.mu.Unlock()
		}
	}

	batch := make([]uintptr, 16)
	for cl := 1; cl < len(fakes); cl++ {
		m.InsertRange(cl, handles(0x1000, 16))
		got := m.RemoveRange(cl, batch)
		require.Equal(t, 16, got)
		m.InsertRange(cl, batch[:got])
	}
}

func Test_Cache_StatsCounters(t *testing.T) {
	m, fakes := newFakeManager(t, testInfos(), -1)
	fakes[1].mintLimit = -1

	m.InsertRange(1, handles(0x1000, 2)) // hit
	m.InsertRange(1, handles(0x2000, 4)) // miss
	batch := make([]uintptr, 4)
	m.RemoveRange(1, batch) // hit
	m.RemoveRange(1, batch) // miss

	st := m.Stats(1)
	assert.Equal(t, uint64(1), st.InsertHits)
	assert.Equal(t, uint64(1), st.InsertMisses)
	assert.Equal(t, uint64(1), st.RemoveHits)
	assert.Equal(t, uint64(1), st.RemoveMisses)
	assert.Equal(t, 4, st.Capacity)
	assert.Equal(t, 8, st.MaxCapacity)
	assert.Zero(t, st.LowWaterMark)

	st = m.Stats(1)
	assert.Equal(t, st.Used, st.LowWaterMark, "low-water mark resets on read")
}
