package main

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshuapare/xfercache/internal/logger"
	"github.com/joshuapare/xfercache/pageheap"
	"github.com/joshuapare/xfercache/report"
	"github.com/joshuapare/xfercache/sizeclass"
	"github.com/joshuapare/xfercache/transfer"
)

var simOpts simConfig

func init() {
	cmd := newSimCmd()
	f := cmd.Flags()
	f.StringVar(&simOpts.Config, "config", "default", "Size-class config (default, small)")
	f.BoolVar(&simOpts.Small, "small", false, "Use the passthrough manager (no caching)")
	f.IntVar(&simOpts.Workers, "workers", 4, "Concurrent simulated threads")
	f.IntVar(&simOpts.Ops, "ops", 100000, "Operations per worker")
	f.IntVar(&simOpts.MaxSize, "max-size", 1024, "Largest requested object size in bytes")
	f.IntVar(&simOpts.MaxLive, "max-live", 4096, "Live objects per worker before frees are forced")
	f.Uint64Var(&simOpts.Seed, "seed", 1, "Random seed")
	f.IntVar(&simOpts.GrowAfter, "grow-after", 0, "Misses before a cache grows (0 = default, <0 = never)")
	f.IntVar(&simOpts.MaxHeapMiB, "max-heap", 0, "Page heap limit in MiB (0 = unlimited)")
	f.BoolVar(&simOpts.ShowIdle, "all", false, "Report idle classes too")
	rootCmd.AddCommand(cmd)
}

func newSimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sim",
		Short: "Run a synthetic allocation workload",
		Long: `The sim command drives a cache manager with concurrent workers. Each
worker keeps a per-class thread cache, moving whole batches to and from the
transfer caches, then returns everything and prints per-class statistics.

Example:
  xferctl sim
  xferctl sim --workers 8 --ops 1000000 --max-size 4096
  xferctl sim --small --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := runSimulation(simOpts)
			if err != nil {
				return err
			}
			return printSimResult(res, simOpts)
		},
	}
}

// simConfig holds the sim command's knobs.
type simConfig struct {
	Config     string
	Small      bool
	Workers    int
	Ops        int
	MaxSize    int
	MaxLive    int
	Seed       uint64
	GrowAfter  int
	MaxHeapMiB int
	ShowIdle   bool
}

// simResult is what a simulation run produced.
type simResult struct {
	Manager   string                `json:"manager"`
	Elapsed   time.Duration         `json:"elapsed_ns"`
	Allocs    uint64                `json:"allocs"`
	Frees     uint64                `json:"frees"`
	Failed    uint64                `json:"failed"`
	Leaked    int64                 `json:"leaked"`
	Heap      pageheap.Stats        `json:"heap"`
	Snapshot  []transfer.ClassStats `json:"-"`
	Evictions uint64                `json:"evictions"`
}

// threadCache is one worker's private free lists, mirroring a per-thread
// allocator cache in front of the transfer caches.
type threadCache struct {
	b     transfer.Backend
	table *sizeclass.Table
	free  [][]uintptr
	live  []liveObj
	buf   []uintptr

	allocs, frees, failed uint64
}

type liveObj struct {
	cl  int
	obj uintptr
}

func newThreadCache(b transfer.Backend) *threadCache {
	t := b.Table()
	return &threadCache{
		b:     b,
		table: t,
		free:  make([][]uintptr, t.NumClasses()),
		buf:   make([]uintptr, sizeclass.MaxObjectsToMove),
	}
}

func (tc *threadCache) alloc(cl int) {
	if len(tc.free[cl]) == 0 {
		batch := tc.buf[:tc.table.NumObjectsToMove(cl)]
		n := tc.b.RemoveRange(cl, batch)
		if n == 0 {
			tc.failed++
			return
		}
		tc.free[cl] = append(tc.free[cl], batch[:n]...)
	}
	last := len(tc.free[cl]) - 1
	tc.live = append(tc.live, liveObj{cl: cl, obj: tc.free[cl][last]})
	tc.free[cl] = tc.free[cl][:last]
	tc.allocs++
}

func (tc *threadCache) release(i int) {
	o := tc.live[i]
	tc.live[i] = tc.live[len(tc.live)-1]
	tc.live = tc.live[:len(tc.live)-1]
	tc.frees++

	tc.free[o.cl] = append(tc.free[o.cl], o.obj)
	batch := tc.table.NumObjectsToMove(o.cl)
	if len(tc.free[o.cl]) >= 2*batch {
		n := len(tc.free[o.cl])
		tc.b.InsertRange(o.cl, tc.free[o.cl][n-batch:])
		tc.free[o.cl] = tc.free[o.cl][:n-batch]
	}
}

// drain frees every live object and returns all cached objects in batches.
func (tc *threadCache) drain() {
	for len(tc.live) > 0 {
		tc.release(len(tc.live) - 1)
	}
	for cl, objs := range tc.free {
		batch := max(tc.table.NumObjectsToMove(cl), 1)
		for len(objs) > 0 {
			n := min(batch, len(objs))
			tc.b.InsertRange(cl, objs[len(objs)-n:])
			objs = objs[:len(objs)-n]
		}
		tc.free[cl] = objs
	}
}

func (tc *threadCache) run(rng *rand.Rand, cfg simConfig) {
	for range cfg.Ops {
		if len(tc.live) > 0 && (len(tc.live) >= cfg.MaxLive || rng.IntN(2) == 0) {
			tc.release(rng.IntN(len(tc.live)))
			continue
		}
		cl, ok := tc.table.SizeToClass(1 + rng.IntN(cfg.MaxSize))
		if !ok {
			continue
		}
		tc.alloc(cl)
	}
	tc.drain()
}

func newBackend(cfg simConfig) (transfer.Backend, error) {
	table, err := tableForName(cfg.Config)
	if err != nil {
		return nil, err
	}
	heap := pageheap.New(&pageheap.Config{
		PageSize: table.PageSize(),
		MaxBytes: int64(cfg.MaxHeapMiB) << 20,
	})
	opts := transfer.Options{Table: table, Heap: heap, GrowAfterMisses: cfg.GrowAfter}

	var b transfer.Backend
	if cfg.Small {
		b = transfer.NewPassthrough(opts)
	} else {
		b = transfer.NewCaching(opts)
	}

	heap.Lock()
	err = b.Init()
	heap.Unlock()
	if err != nil {
		return nil, errors.Join(err, heap.Release())
	}
	return b, nil
}

// runSimulation builds a manager, drives it with cfg.Workers goroutines and
// returns once every object has been handed back.
func runSimulation(cfg simConfig) (*simResult, error) {
	if cfg.Workers < 1 || cfg.Ops < 0 || cfg.MaxSize < 1 || cfg.MaxLive < 1 {
		return nil, fmt.Errorf("invalid sim parameters: workers=%d ops=%d max-size=%d max-live=%d",
			cfg.Workers, cfg.Ops, cfg.MaxSize, cfg.MaxLive)
	}

	b, err := newBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize manager: %w", err)
	}
	defer func() {
		if err := b.Heap().Release(); err != nil {
			logger.Warn("sim: heap release failed", "err", err)
		}
	}()

	res := &simResult{Manager: "caching"}
	if cfg.Small {
		res.Manager = "passthrough"
	}
	printVerbose("Running %d workers x %d ops on %s manager (%s)\n",
		cfg.Workers, cfg.Ops, res.Manager, b.Table().Name())

	caches := make([]*threadCache, cfg.Workers)
	var wg sync.WaitGroup
	start := time.Now()
	for i := range caches {
		caches[i] = newThreadCache(b)
		rng := rand.New(rand.NewPCG(cfg.Seed, uint64(i)))
		wg.Go(func() { caches[i].run(rng, cfg) })
	}
	wg.Wait()
	res.Elapsed = time.Since(start)

	for _, tc := range caches {
		res.Allocs += tc.allocs
		res.Frees += tc.frees
		res.Failed += tc.failed
	}
	res.Snapshot = b.Snapshot()
	for _, cs := range res.Snapshot {
		res.Leaked += int64(cs.Spans.ObjCapacity) - int64(cs.Cache.Used+cs.CentralLength)
		res.Evictions += cs.Cache.Evicted
	}
	res.Heap = b.Heap().Stats()
	logger.Info("sim: finished", "manager", res.Manager, "allocs", res.Allocs, "elapsed", res.Elapsed)
	return res, nil
}

func printSimResult(res *simResult, cfg simConfig) error {
	if jsonOut {
		return printJSON(struct {
			*simResult
			Classes []transfer.ClassStats `json:"classes"`
		}{res, res.Snapshot})
	}

	printInfo("%s manager: %d allocs, %d frees, %d failed in %s\n",
		res.Manager, res.Allocs, res.Frees, res.Failed, res.Elapsed.Round(time.Millisecond))
	printInfo("heap: %d arenas, %d bytes mapped, %d pages in use, %d spans allocated, %d freed\n\n",
		res.Heap.Arenas, res.Heap.MappedBytes, res.Heap.PagesInUse, res.Heap.SpansAlloc, res.Heap.SpansFreed)
	if quiet {
		return nil
	}
	if err := report.Write(os.Stdout, res.Snapshot, report.Options{ShowIdle: cfg.ShowIdle}); err != nil {
		return err
	}
	if res.Leaked != 0 {
		return fmt.Errorf("%d objects unaccounted for after drain", res.Leaked)
	}
	return nil
}
