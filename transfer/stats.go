package transfer

import "github.com/joshuapare/xfercache/central"

// CacheStats holds one transfer cache's counters. Counters are cumulative;
// Used, Capacity and LowWaterMark are a point-in-time snapshot.
type CacheStats struct {
	InsertHits   uint64 // Inserts that fit entirely
	InsertMisses uint64 // Inserts that overflowed to the central list
	RemoveHits   uint64 // Removes served entirely from the buffer
	RemoveMisses uint64 // Removes that pulled from the central list
	Grown        uint64 // Slots gained through eviction
	Evicted      uint64 // Slots given up to other classes

	Used         int
	Capacity     int
	MaxCapacity  int
	LowWaterMark int // Lowest Used since the last Stats call
}

// ClassStats is the per-class diagnostic record returned by Snapshot.
type ClassStats struct {
	SizeClass     int
	ObjectSize    int
	CentralLength int
	OverheadBytes uint64
	Spans         central.SpanStats
	Cache         CacheStats
}

// ResidentBytes returns the bytes of free objects held by the transfer
// cache and the central list together.
func (s ClassStats) ResidentBytes() uint64 {
	return uint64(s.Cache.Used+s.CentralLength) * uint64(s.ObjectSize)
}
