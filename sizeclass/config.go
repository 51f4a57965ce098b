package sizeclass

// Config defines how a size-class table is generated.
// Different configurations trade static footprint against per-class batching.
type Config struct {
	// Name for this configuration (shown by tooling)
	Name string

	MaxSmallSize int // Largest object size served by a size class
	PageSize     int // Span page size in bytes (power of two)

	// TargetBatchBytes sets num_objects_to_move: roughly this many bytes
	// move per central free list interaction, clamped to [MinObjectsToMove, MaxObjectsToMove].
	TargetBatchBytes int

	InitialCapacityInBatches int // Starting transfer-cache capacity
	MaxCapacityInBatches     int // Upper bound on transfer-cache capacity
	MaxBytesPerClass         int // Caps MaxCapacity*Size for large classes
}

// Predefined configurations.
var (
	// ConfigDefault mirrors a general-purpose allocator: 8KiB pages,
	// size classes up to 32KiB (67 classes including the reserved class 0).
	ConfigDefault = Config{
		Name:                     "Default",
		MaxSmallSize:             32 << 10,
		PageSize:                 8 << 10,
		TargetBatchBytes:         64 << 10,
		InitialCapacityInBatches: 2,
		MaxCapacityInBatches:     16,
		MaxBytesPerClass:         4 << 20,
	}

	// ConfigSmall keeps a small static footprint: 4KiB pages, classes up
	// to 4KiB and shallow caches.
	ConfigSmall = Config{
		Name:                     "Small",
		MaxSmallSize:             4 << 10,
		PageSize:                 4 << 10,
		TargetBatchBytes:         8 << 10,
		InitialCapacityInBatches: 1,
		MaxCapacityInBatches:     4,
		MaxBytesPerClass:         256 << 10,
	}
)

func (c Config) withDefaults() Config {
	d := ConfigDefault
	if c.MaxSmallSize <= 0 {
		c.MaxSmallSize = d.MaxSmallSize
	}
	if c.PageSize <= 0 || c.PageSize&(c.PageSize-1) != 0 {
		c.PageSize = d.PageSize
	}
	if c.TargetBatchBytes <= 0 {
		c.TargetBatchBytes = d.TargetBatchBytes
	}
	if c.InitialCapacityInBatches <= 0 {
		c.InitialCapacityInBatches = d.InitialCapacityInBatches
	}
	if c.MaxCapacityInBatches <= 0 {
		c.MaxCapacityInBatches = d.MaxCapacityInBatches
	}
	if c.MaxBytesPerClass <= 0 {
		c.MaxBytesPerClass = d.MaxBytesPerClass
	}
	if c.Name == "" {
		c.Name = "Custom"
	}
	return c
}
