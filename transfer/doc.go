// Package transfer implements the size-class transfer cache layer: a
// bounded, lock-protected buffer of free object references per size class
// sitting between per-thread caches and the central free lists.
//
// # Overview
//
// Thread caches move objects in batches. The transfer cache absorbs those
// batches so that the central free list, whose lock is shared by every
// thread allocating that class, is touched far less often than once per
// allocation:
//
//	thread cache -> Manager.InsertRange / RemoveRange -> Cache -> CentralFreeList
//
// Objects are opaque uintptr handles. The cache never dereferences them.
//
// # Variants
//
// CachingManager: one Cache per size class plus the cross-class eviction
// policy that keeps the sum of all capacities within a global budget.
//
// PassthroughManager: no transfer-cache storage; every call goes straight
// to the central free list. It trades latency for a smaller static
// footprint.
//
// Manager and New name CachingManager by default and PassthroughManager
// when built with the "smallbutslow" tag, so the choice costs nothing per
// call. Both satisfy Backend.
//
// # Capacity and eviction
//
// Each Cache holds length ≤ capacity ≤ max capacity slots. Init assigns
// every class its initial capacity; the sum of those is the budget. A
// cache that keeps missing (insert overflow or remove underflow) asks the
// manager for more slots. For every slot the manager walks the classes
// round-robin from a shared cursor and takes one spare slot from the first
// class that can give it. The cursor moves past every class it visits, so
// no class is targeted over and over. When a full cycle finds nothing the
// growth is simply denied.
//
// # Locking
//
//   - Init and Alloc require the page heap lock held by the caller.
//   - A Cache's mutex is never held while calling into the central free
//     list, and the central free list takes the heap lock only with its
//     own mutex released.
//   - Eviction only TryLocks donor caches, so a busy donor is skipped
//     rather than waited on.
//
// # Usage Example
//
//	m := transfer.New(transfer.Options{})
//	m.Heap().Lock()
//	err := m.Init()
//	m.Heap().Unlock()
//	if err != nil {
//	    return err
//	}
//
//	batch := make([]uintptr, table.NumObjectsToMove(cl))
//	n := m.RemoveRange(cl, batch)
//	// ... hand batch[:n] to the thread cache, later:
//	m.InsertRange(cl, batch[:n])
package transfer
