package transfer

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"github.com/joshuapare/xfercache/central"
	"github.com/joshuapare/xfercache/internal/invariants"
	"github.com/joshuapare/xfercache/internal/logger"
	"github.com/joshuapare/xfercache/sizeclass"
)

// Cache is the transfer cache of one size class: a stack of free object
// references bounded by capacity, backed by a central free list.
//
// The zero value holds nothing and has zero capacity; it becomes usable
// after the owning manager's Init.
type Cache struct {
	mu sync.Mutex

	// Guarded by mu. 0 ≤ length ≤ capacity ≤ maxCapacity, and
	// capacity+reserved ≤ maxCapacity.
	slots      []uintptr // len(slots) == maxCapacity
	length     int
	capacity   int
	reserved   int // Slots promised to an in-flight grow
	lowWater   int
	missStreak int

	// Fixed by init.
	sizeClass   int
	batchSize   int
	maxCapacity int
	growAfter   int
	central     CentralFreeList

	insertHits   atomic.Uint64
	insertMisses atomic.Uint64
	removeHits   atomic.Uint64
	removeMisses atomic.Uint64
	grown        atomic.Uint64
	evicted      atomic.Uint64

	// Keeps neighbouring caches' locks and counters off this cache line.
	_ cpu.CacheLinePad
}

func (c *Cache) init(cl int, info sizeclass.Info, slots []uintptr, cfl CentralFreeList, growAfter int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sizeClass = cl
	c.batchSize = info.BatchSize
	c.maxCapacity = len(slots)
	c.capacity = min(info.InitialCapacity, len(slots))
	c.slots = slots
	c.length = 0
	c.lowWater = 0
	c.growAfter = growAfter
	c.central = cfl
}

// InsertRange stores batch in the cache. Whatever does not fit goes to the
// central free list in one call. ev receives growth requests; nil disables
// growth.
func (c *Cache) InsertRange(batch []uintptr, ev Evictor) {
	n := len(batch)
	if n == 0 {
		return
	}

	c.mu.Lock()
	fit := min(n, c.capacity-c.length)
	copy(c.slots[c.length:], batch[:fit])
	c.length += fit
	grow := c.noteLocked(fit == n)
	c.checkLocked()
	c.mu.Unlock()

	if fit == n {
		c.insertHits.Add(1)
		return
	}
	c.insertMisses.Add(1)
	c.central.InsertRange(batch[fit:])
	if grow && ev != nil {
		c.grow(ev)
	}
}

// RemoveRange fills batch and returns how many objects it wrote. When the
// buffer runs short it drains what it has, then pulls whole batches from
// the central free list, keeping any surplus. A result below len(batch)
// means the central list is exhausted.
func (c *Cache) RemoveRange(batch []uintptr, ev Evictor) int {
	n := len(batch)
	if n == 0 {
		return 0
	}

	c.mu.Lock()
	if c.length >= n {
		copy(batch, c.slots[c.length-n:c.length])
		c.length -= n
		c.lowWater = min(c.lowWater, c.length)
		c.noteLocked(true)
		c.checkLocked()
		c.mu.Unlock()
		c.removeHits.Add(1)
		return n
	}

	got := c.length
	copy(batch, c.slots[:got])
	c.length = 0
	c.lowWater = 0
	grow := c.noteLocked(false)
	c.mu.Unlock()
	c.removeMisses.Add(1)

	got += c.refill(batch[got:])

	if grow && ev != nil {
		c.grow(ev)
	}
	return got
}

// refill pulls batches from the central free list until dst is full or the
// list comes up short. Surplus objects from the last batch are kept.
func (c *Cache) refill(dst []uintptr) int {
	var buf [sizeclass.MaxObjectsToMove]uintptr
	want := max(1, min(c.batchSize, len(buf)))

	got := 0
	for got < len(dst) {
		m := c.central.RemoveRange(buf[:want])
		take := min(m, len(dst)-got)
		copy(dst[got:], buf[:take])
		got += take
		if m > take {
			c.stash(buf[take:m])
		}
		if m < want {
			break
		}
	}
	return got
}

// stash keeps surplus objects from a central fetch, returning whatever
// does not fit.
func (c *Cache) stash(objs []uintptr) {
	c.mu.Lock()
	fit := min(len(objs), c.capacity-c.length)
	copy(c.slots[c.length:], objs[:fit])
	c.length += fit
	c.checkLocked()
	c.mu.Unlock()

	if fit < len(objs) {
		c.central.InsertRange(objs[fit:])
	}
}

// noteLocked records a hit or miss and reports whether the miss streak
// just reached the growth threshold. Requires c.mu.
func (c *Cache) noteLocked(hit bool) bool {
	if hit || c.growAfter < 0 {
		c.missStreak = 0
		return false
	}
	c.missStreak++
	if c.missStreak < c.growAfter {
		return false
	}
	c.missStreak = 0
	return true
}

// grow asks ev for up to one batch of extra slots, one donor per slot.
// The slots are reserved first so concurrent growers cannot push capacity
// past maxCapacity. Returns the number of slots gained.
func (c *Cache) grow(ev Evictor) int {
	c.mu.Lock()
	want := min(c.batchSize, c.maxCapacity-c.capacity-c.reserved)
	if want <= 0 {
		c.mu.Unlock()
		return 0
	}
	c.reserved += want
	c.mu.Unlock()

	got := 0
	for got < want {
		if _, ok := ev.DetermineSizeClassToEvict(c.sizeClass); !ok {
			break
		}
		got++
	}

	c.mu.Lock()
	c.reserved -= want
	c.capacity += got
	c.checkLocked()
	c.mu.Unlock()

	c.grown.Add(uint64(got))
	if logger.Verbose {
		logger.Debug("transfer: grow", "class", c.sizeClass, "want", want, "got", got)
	}
	return got
}

// ShrinkCache gives up one capacity slot. It never blocks: it fails when
// the lock is held elsewhere or when no spare slot exists (length ==
// capacity). Callers treat false as "try another class".
func (c *Cache) ShrinkCache() bool {
	if !c.mu.TryLock() {
		return false
	}
	defer c.mu.Unlock()

	if c.length >= c.capacity {
		return false
	}
	c.capacity--
	c.checkLocked()
	c.evicted.Add(1)
	return true
}

// checkLocked verifies the capacity invariants in invariants builds.
// Requires c.mu.
func (c *Cache) checkLocked() {
	if invariants.Enabled {
		invariants.Check(0 <= c.length && c.length <= c.capacity && c.capacity <= c.maxCapacity,
			"class %d: length %d capacity %d max %d", c.sizeClass, c.length, c.capacity, c.maxCapacity)
		invariants.Check(c.capacity+c.reserved <= c.maxCapacity,
			"class %d: capacity %d + reserved %d over max %d", c.sizeClass, c.capacity, c.reserved, c.maxCapacity)
	}
}

// TCLength returns the number of objects in the cache.
func (c *Cache) TCLength() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.length
}

// Capacity returns the current number of usable slots.
func (c *Cache) Capacity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity
}

// CentralLength returns the length of the backing central free list.
func (c *Cache) CentralLength() int {
	if c.central == nil {
		return 0
	}
	return c.central.Length()
}

// OverheadBytes reports the backing central free list's overhead.
func (c *Cache) OverheadBytes() uint64 {
	if c.central == nil {
		return 0
	}
	return c.central.OverheadBytes()
}

// SpanStats reports the backing central free list's span counters.
func (c *Cache) SpanStats() central.SpanStats {
	if c.central == nil {
		return central.SpanStats{}
	}
	return c.central.SpanStats()
}

// Stats returns the cache's counters and resets the low-water mark to the
// current length.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	st := CacheStats{
		Used:         c.length,
		Capacity:     c.capacity,
		MaxCapacity:  c.maxCapacity,
		LowWaterMark: c.lowWater,
	}
	c.lowWater = c.length
	c.mu.Unlock()

	st.InsertHits = c.insertHits.Load()
	st.InsertMisses = c.insertMisses.Load()
	st.RemoveHits = c.removeHits.Load()
	st.RemoveMisses = c.removeMisses.Load()
	st.Grown = c.grown.Load()
	st.Evicted = c.evicted.Load()
	return st
}
