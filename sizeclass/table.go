// Package sizeclass maps size classes to object sizes, span sizes and the
// batch move counts used between transfer caches and central free lists.
//
// Class 0 is reserved: it has size 0, holds no objects and never receives
// transfer-cache capacity. A Table is immutable once built and safe for
// concurrent use.
package sizeclass

import "fmt"

const (
	// MinObjectsToMove is the smallest batch move count a generated table uses.
	MinObjectsToMove = 2

	// MaxObjectsToMove bounds every class's batch move count. Callers may
	// size stack buffers with it.
	MaxObjectsToMove = 128

	// DefaultPageSize is used by NewCustom.
	DefaultPageSize = 8 << 10

	alignment = 8
)

// Info describes one size class.
type Info struct {
	Size            int // Object size in bytes
	Pages           int // Pages per span
	BatchSize       int // num_objects_to_move
	InitialCapacity int // Transfer-cache slots assigned by Init
	MaxCapacity     int // Upper bound on transfer-cache slots
}

// Table holds the computed size classes.
type Table struct {
	name     string
	pageSize int
	classes  []Info
}

// New computes a size-class table from config. Zero fields take the
// ConfigDefault values.
func New(config Config) *Table {
	config = config.withDefaults()

	t := &Table{
		name:     config.Name,
		pageSize: config.PageSize,
		classes:  make([]Info, 1, 80), // class 0 reserved
	}

	// Sizes grow in alignment steps; the step widens at powers of two so
	// the relative gap between neighbouring classes stays around 12.5%.
	align := alignment
	for size := align; size <= config.MaxSmallSize; size += align {
		if size&(size-1) == 0 {
			switch {
			case size >= 2048:
				align = 256
			case size >= 128:
				align = size / 8
			case size >= 16:
				align = 16
			}
		}

		// Pick the smallest span whose tail waste is at most 1/8 of it.
		spanBytes := config.PageSize
		for spanBytes%size > spanBytes/8 {
			spanBytes += config.PageSize
		}
		pages := spanBytes / config.PageSize

		// A larger size with the same span and object count replaces the
		// previous class outright.
		last := len(t.classes) - 1
		if last >= 1 && pages == t.classes[last].Pages &&
			spanBytes/size == spanBytes/t.classes[last].Size {
			t.classes[last].Size = size
			continue
		}
		t.classes = append(t.classes, Info{Size: size, Pages: pages})
	}

	for cl := 1; cl < len(t.classes); cl++ {
		info := &t.classes[cl]
		info.BatchSize = clamp(config.TargetBatchBytes/info.Size, MinObjectsToMove, MaxObjectsToMove)
		info.MaxCapacity = min(config.MaxCapacityInBatches*info.BatchSize, config.MaxBytesPerClass/info.Size)
		info.MaxCapacity = max(info.MaxCapacity, info.BatchSize)
		info.InitialCapacity = min(config.InitialCapacityInBatches*info.BatchSize, info.MaxCapacity)
	}
	return t
}

// NewCustom builds a table from explicit entries. infos[0] must be the
// zero Info for the reserved class. Pages of zero is filled in with the
// fewest DefaultPageSize pages that hold one object.
func NewCustom(infos []Info) (*Table, error) {
	if len(infos) == 0 || infos[0] != (Info{}) {
		return nil, fmt.Errorf("%w: class 0 must be the zero entry", ErrBadTable)
	}

	t := &Table{
		name:     "Custom",
		pageSize: DefaultPageSize,
		classes:  make([]Info, len(infos)),
	}
	copy(t.classes, infos)

	prev := 0
	for cl := 1; cl < len(t.classes); cl++ {
		info := &t.classes[cl]
		switch {
		case info.Size <= prev:
			return nil, fmt.Errorf("%w: class %d size %d not above %d", ErrBadTable, cl, info.Size, prev)
		case info.BatchSize < 1 || info.BatchSize > MaxObjectsToMove:
			return nil, fmt.Errorf("%w: class %d batch size %d", ErrBadTable, cl, info.BatchSize)
		case info.InitialCapacity < 0 || info.InitialCapacity > info.MaxCapacity:
			return nil, fmt.Errorf("%w: class %d capacity %d exceeds max %d",
				ErrBadTable, cl, info.InitialCapacity, info.MaxCapacity)
		}
		if info.Pages <= 0 {
			info.Pages = (info.Size + t.pageSize - 1) / t.pageSize
		}
		prev = info.Size
	}
	return t, nil
}

// NumClasses returns the number of size classes including the reserved class 0.
func (t *Table) NumClasses() int { return len(t.classes) }

// Info returns the full description of size class cl.
func (t *Table) Info(cl int) Info { return t.classes[cl] }

// ClassToSize returns the object size of class cl.
func (t *Table) ClassToSize(cl int) int { return t.classes[cl].Size }

// NumObjectsToMove returns the batch move count of class cl.
func (t *Table) NumObjectsToMove(cl int) int { return t.classes[cl].BatchSize }

// ClassToPages returns the span length of class cl in pages.
func (t *Table) ClassToPages(cl int) int { return t.classes[cl].Pages }

// PageSize returns the page size the table was computed for.
func (t *Table) PageSize() int { return t.pageSize }

// ObjectsPerSpan returns how many objects of class cl fit in one span.
func (t *Table) ObjectsPerSpan(cl int) int {
	info := t.classes[cl]
	if info.Size == 0 {
		return 0
	}
	return info.Pages * t.pageSize / info.Size
}

// SizeToClass returns the smallest class whose objects hold size bytes.
// ok is false for sizes of zero or above the largest class.
func (t *Table) SizeToClass(size int) (cl int, ok bool) {
	if size <= 0 {
		return 0, false
	}
	lo, hi := 1, len(t.classes)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		if size <= t.classes[mid].Size {
			if mid == 1 || size > t.classes[mid-1].Size {
				return mid, true
			}
			hi = mid - 1
		} else {
			lo = mid + 1
		}
	}
	return 0, false
}

// TotalInitialCapacity sums InitialCapacity over all classes. It is the
// global slot budget the transfer caches share.
func (t *Table) TotalInitialCapacity() int {
	total := 0
	for _, info := range t.classes {
		total += info.InitialCapacity
	}
	return total
}

// Name returns the configuration name.
func (t *Table) Name() string { return t.name }

// String returns a human-readable description of the table.
func (t *Table) String() string {
	return fmt.Sprintf("%s (%d classes, %d byte pages)", t.name, len(t.classes), t.pageSize)
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
