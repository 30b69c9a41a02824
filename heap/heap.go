package heap

import (
	"time"

	mmap "github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"

	"github.com/mootwise/he3vm/herr"
)

// Default sizes per spec.md §4.7.
const (
	DefaultSlabSize    = 16 << 20 // 16 MiB
	DefaultAlignment   = 8
	youngGenerationSize = 4 << 20
	oldGenerationSize   = 8 << 20
	permGenerationSize  = 4 << 20
)

// Stats accumulates garbage-collection statistics across the heap's
// lifetime (spec.md §4.7, enriched with PeakUsed/LargestFree per
// SPEC_FULL.md §D.4, grounded on the original source's memory_test.c).
type Stats struct {
	Collections      int
	ObjectsCollected int
	BytesFreed       uint32
	TotalTime        time.Duration
	PeakUsed         uint32
	LargestFree      uint32
}

// Heap owns a single contiguous, page-backed slab (spec.md §4.7), partitioned
// into either three fixed generations (young/old/perm) or one, depending on
// the slab's size.
type Heap struct {
	slab      mmap.MMap
	alignment uint32

	generations []*generation
	gcCursor    int

	roots RootProvider
	trace Tracer

	stats Stats
}

// New allocates a slabSize-byte anonymous mmap'd slab and lays out
// generations: three fixed ones if slabSize is large enough to fit
// young+old+perm, else one spanning the whole slab.
func New(slabSize int) (*Heap, error) {
	if slabSize <= 0 {
		slabSize = DefaultSlabSize
	}
	slabSize = roundUpToPage(slabSize)
	slab, err := mmap.MapRegion(nil, slabSize, mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return nil, herr.New(herr.PhaseHeap, herr.KindAllocationFailure).
			Detail("mmap slab of %d bytes: %v", slabSize, err).Build()
	}

	h := &Heap{
		slab:      slab,
		alignment: DefaultAlignment,
	}

	if slabSize >= youngGenerationSize+oldGenerationSize+permGenerationSize {
		h.generations = []*generation{
			newGeneration("young", 0, youngGenerationSize),
			newGeneration("old", youngGenerationSize, oldGenerationSize),
			newGeneration("perm", youngGenerationSize+oldGenerationSize, permGenerationSize),
		}
	} else {
		h.generations = []*generation{newGeneration("main", 0, uint32(slabSize))}
	}

	Logger().Sugar().Infof("heap initialised: %d bytes, %d generation(s)", slabSize, len(h.generations))
	return h, nil
}

// roundUpToPage rounds size up to a multiple of the host's page size, since
// mmap always reserves whole pages regardless of what was requested.
func roundUpToPage(size int) int {
	page := unix.Getpagesize()
	if page <= 0 {
		return size
	}
	if rem := size % page; rem != 0 {
		size += page - rem
	}
	return size
}

// SetCollector installs the root set and tracer the garbage collector uses.
// Until installed, Allocate fails immediately on an out-of-space generation
// rather than attempting a collection it has no roots for.
func (h *Heap) SetCollector(roots RootProvider, trace Tracer) {
	h.roots = roots
	h.trace = trace
}

// Close releases the underlying mmap'd slab.
func (h *Heap) Close() error {
	return h.slab.Unmap()
}

func align(size, alignment uint32) uint32 {
	if alignment == 0 {
		return size
	}
	rem := size % alignment
	if rem == 0 {
		return size
	}
	return size + (alignment - rem)
}

// youngGeneration is where every new allocation lands (spec.md §4.7 doesn't
// specify a promotion policy between generations; new objects start in
// young/the sole generation, and perm is reserved for AllocatePermanent).
func (h *Heap) youngGeneration() *generation {
	return h.generations[0]
}

func (h *Heap) permGeneration() *generation {
	return h.generations[len(h.generations)-1]
}

func (h *Heap) generationFor(addr Addr) *generation {
	for _, g := range h.generations {
		if uint32(addr) >= g.base && uint32(addr) < g.base+g.size {
			return g
		}
	}
	return nil
}

// Allocate reserves size bytes for an object of typeID (spec.md §4.7):
// rounds size up to the heap alignment, first-fit allocates from the young
// (or sole) generation, running one GC cycle and retrying if nothing fits.
func (h *Heap) Allocate(size int, typeID uint32) (Addr, error) {
	return h.allocateIn(h.youngGeneration(), size, typeID)
}

// AllocatePermanent reserves size bytes in the perm generation, which is
// never swept (spec.md §3.4's Generation lifecycle note).
func (h *Heap) AllocatePermanent(size int, typeID uint32) (Addr, error) {
	return h.allocateIn(h.permGeneration(), size, typeID)
}

func (h *Heap) allocateIn(g *generation, size int, typeID uint32) (Addr, error) {
	want := align(uint32(size), h.alignment)

	if addr, ok := g.allocate(want, typeID); ok {
		h.trackPeaks()
		return addr, nil
	}

	if h.roots != nil && h.trace != nil {
		start := time.Now()
		h.gcFull(h.roots, h.trace)
		h.stats.TotalTime += time.Since(start)
		if addr, ok := g.allocate(want, typeID); ok {
			h.trackPeaks()
			return addr, nil
		}
	}

	return 0, herr.AllocationFailure(int(want))
}

// IsAllocated reports whether addr is a currently tracked allocation. Callers
// (objsys's ObjectTable) use this after a GC cycle to drop entries for
// objects the sweep phase actually reclaimed.
func (h *Heap) IsAllocated(addr Addr) bool {
	g := h.generationFor(addr)
	if g == nil {
		return false
	}
	_, ok := g.allocs[addr]
	return ok
}

// Deallocate frees the allocation at addr, coalescing with free neighbours.
func (h *Heap) Deallocate(addr Addr) error {
	g := h.generationFor(addr)
	if g == nil || !g.free(addr) {
		return herr.New(herr.PhaseHeap, herr.KindAllocationFailure).
			Detail("deallocate: address %d is not a tracked allocation", addr).Build()
	}
	return nil
}

// Reallocate shrinks the allocation at addr in place when newSize is
// smaller, otherwise allocates a fresh block and frees the old one. The
// caller (objsys) is responsible for copying live data to the new address
// when moved is true.
func (h *Heap) Reallocate(addr Addr, newSize int, typeID uint32) (newAddr Addr, moved bool, err error) {
	g := h.generationFor(addr)
	if g == nil {
		return 0, false, herr.New(herr.PhaseHeap, herr.KindAllocationFailure).
			Detail("reallocate: address %d is not a tracked allocation", addr).Build()
	}
	want := align(uint32(newSize), h.alignment)
	if cur, ok := g.allocationSize(addr); ok && want <= cur {
		if want < cur {
			g.shrink(addr, want)
		}
		return addr, false, nil
	}

	fresh, err := h.allocateIn(g, newSize, typeID)
	if err != nil {
		return 0, false, err
	}
	_ = h.Deallocate(addr)
	return fresh, true, nil
}

// GCCollect runs one collection cycle: full if incremental is false, else
// one generation's worth in round-robin order.
func (h *Heap) GCCollect(incremental bool) []CollectionStats {
	if h.roots == nil || h.trace == nil {
		return nil
	}
	start := time.Now()
	defer func() { h.stats.TotalTime += time.Since(start) }()

	if incremental {
		return []CollectionStats{h.gcIncremental(h.roots, h.trace)}
	}
	return h.gcFull(h.roots, h.trace)
}

func (h *Heap) trackPeaks() {
	var used uint32
	for _, g := range h.generations {
		used += g.used
	}
	if used > h.stats.PeakUsed {
		h.stats.PeakUsed = used
	}
	h.stats.LargestFree = h.LargestFree()
}

// UsedSize sums every generation's used bytes.
func (h *Heap) UsedSize() uint32 {
	var total uint32
	for _, g := range h.generations {
		total += g.used
	}
	return total
}

// FreeSize sums every generation's free bytes.
func (h *Heap) FreeSize() uint32 {
	var total uint32
	for _, g := range h.generations {
		total += g.freeSize()
	}
	return total
}

// TotalSize sums every generation's total byte range.
func (h *Heap) TotalSize() uint32 {
	var total uint32
	for _, g := range h.generations {
		total += g.size
	}
	return total
}

// LargestFree reports the single largest free region across all generations.
func (h *Heap) LargestFree() uint32 {
	var largest uint32
	for _, g := range h.generations {
		if lf := g.largestFree(); lf > largest {
			largest = lf
		}
	}
	return largest
}

// FreeRegionCount reports the total number of free regions across all
// generations, for coalescing assertions (spec.md §8 scenario 5).
func (h *Heap) FreeRegionCount() int {
	var n int
	for _, g := range h.generations {
		n += g.freeRegionCount()
	}
	return n
}

// Stats returns a copy of the accumulated GC statistics.
func (h *Heap) Stats() Stats {
	return h.stats
}

// CheckIntegrity verifies the predicates spec.md §8 requires hold:
// used+free==total per generation, tracked-allocation sizes summing to used,
// and every tracked address lying within its generation's range.
func (h *Heap) CheckIntegrity() error {
	for _, g := range h.generations {
		if g.used+g.freeSize() != g.size {
			return herr.New(herr.PhaseHeap, herr.KindAllocationFailure).
				Detail("generation %s: used(%d)+free(%d) != total(%d)", g.name, g.used, g.freeSize(), g.size).Build()
		}
		var trackedSum uint32
		for addr, a := range g.allocs {
			if uint32(addr) < g.base || uint32(addr) >= g.base+g.size {
				return herr.New(herr.PhaseHeap, herr.KindAllocationFailure).
					Detail("generation %s: tracked address %d lies outside the slab range", g.name, addr).Build()
			}
			trackedSum += a.size
		}
		if trackedSum != g.used {
			return herr.New(herr.PhaseHeap, herr.KindAllocationFailure).
				Detail("generation %s: tracked allocation sizes (%d) != used_size (%d)", g.name, trackedSum, g.used).Build()
		}
	}
	return nil
}
