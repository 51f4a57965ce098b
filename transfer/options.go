package transfer

import (
	"github.com/joshuapare/xfercache/central"
	"github.com/joshuapare/xfercache/pageheap"
	"github.com/joshuapare/xfercache/sizeclass"
)

// DefaultGrowAfterMisses is the number of consecutive misses after which a
// cache asks for more capacity.
const DefaultGrowAfterMisses = 2

// Options configures a manager. Zero fields take defaults.
type Options struct {
	// Size-class table. Default: sizeclass.New(sizeclass.ConfigDefault)
	Table *sizeclass.Table

	// Page heap backing spans and slot storage. Default: a new heap with
	// the table's page size.
	Heap *pageheap.Heap

	// Central builds the central free list for a class. Default:
	// central.New(Heap, Table).
	Central func(sizeClass int) CentralFreeList

	// GrowAfterMisses consecutive misses trigger a growth request.
	// Default: DefaultGrowAfterMisses. Negative disables growth.
	GrowAfterMisses int
}

func (o Options) withDefaults() Options {
	if o.Table == nil {
		o.Table = sizeclass.New(sizeclass.ConfigDefault)
	}
	if o.Heap == nil {
		o.Heap = pageheap.New(&pageheap.Config{PageSize: o.Table.PageSize()})
	}
	if o.Central == nil {
		h, t := o.Heap, o.Table
		o.Central = func(int) CentralFreeList { return central.New(h, t) }
	}
	if o.GrowAfterMisses == 0 {
		o.GrowAfterMisses = DefaultGrowAfterMisses
	}
	return o
}
