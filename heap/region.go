package heap

// Addr is a byte offset within a generation's slab range. It stands in for
// the C heap's raw pointers per the arena design note (spec.md §9): callers
// never see a pointer, only an integer they hand back to Allocate/Free.
type Addr uint32

// regionID indexes into a generation's region arena. -1 is the sentinel for
// "no region" (list terminator).
type regionID int32

const noRegion regionID = -1

// region is one MemoryRegion (spec.md §3.4): a run of bytes that is either
// entirely free or entirely one allocation. Regions form a doubly-linked
// list in address order via prev/next region ids, never raw pointers
// (spec.md §9's arena design note) — merged-away regions are tombstoned
// (alive=false) rather than removed from the slice, so ids stay valid.
type region struct {
	start, size uint32
	free        bool
	alive       bool
	prev, next  regionID
}

type allocation struct {
	start, size uint32
	typeID      uint32
	marked      bool
}

// generation is one of the heap's young/old/perm sub-ranges (or the sole
// generation, when the slab is too small to split three ways). It owns an
// independent region list and allocation-tracking map, per spec.md §4.7.
type generation struct {
	name string
	base uint32
	size uint32

	regions      []region
	regionByAddr map[uint32]regionID
	head         regionID

	allocs map[Addr]*allocation
	used   uint32

	peakUsed uint32
}

func newGeneration(name string, base, size uint32) *generation {
	g := &generation{
		name:         name,
		base:         base,
		size:         size,
		regionByAddr: make(map[uint32]regionID),
		allocs:       make(map[Addr]*allocation),
	}
	g.regions = append(g.regions, region{start: base, size: size, free: true, alive: true, prev: noRegion, next: noRegion})
	g.head = 0
	g.regionByAddr[base] = 0
	return g
}

// allocate performs first-fit allocation, splitting the found region if it
// is larger than needed. size must already be alignment-rounded by the
// caller.
func (g *generation) allocate(size uint32, typeID uint32) (Addr, bool) {
	for id := g.head; id != noRegion; id = g.regions[id].next {
		r := &g.regions[id]
		if !r.free || r.size < size {
			continue
		}
		if r.size > size {
			g.split(id, size)
			r = &g.regions[id] // split appends to g.regions, which may move its backing array
		}
		r.free = false
		g.allocs[Addr(r.start)] = &allocation{start: r.start, size: size, typeID: typeID}
		g.used += size
		if g.used > g.peakUsed {
			g.peakUsed = g.used
		}
		return Addr(r.start), true
	}
	return 0, false
}

// split shrinks region id to size and inserts a new free region for the
// remainder immediately after it.
func (g *generation) split(id regionID, size uint32) {
	r := &g.regions[id]
	remainderStart := r.start + size
	remainderSize := r.size - size
	oldNext := r.next

	newID := regionID(len(g.regions))
	g.regions = append(g.regions, region{
		start: remainderStart,
		size:  remainderSize,
		free:  true,
		alive: true,
		prev:  id,
		next:  oldNext,
	})
	g.regionByAddr[remainderStart] = newID

	r.size = size
	r.next = newID
	if oldNext != noRegion {
		g.regions[oldNext].prev = newID
	}
}

// free marks the region owning addr as free and coalesces with free
// neighbours, returning false if addr is not a tracked allocation.
func (g *generation) free(addr Addr) bool {
	alloc, ok := g.allocs[addr]
	if !ok {
		return false
	}
	delete(g.allocs, addr)
	g.used -= alloc.size

	id, ok := g.regionByAddr[alloc.start]
	if !ok {
		return false
	}
	g.regions[id].free = true

	if next := g.regions[id].next; next != noRegion && g.regions[next].free && g.regions[next].alive {
		g.absorb(id, next)
	}
	if prev := g.regions[id].prev; prev != noRegion && g.regions[prev].free && g.regions[prev].alive {
		g.absorb(prev, id)
	}
	return true
}

// absorb merges region `into` and the free region `other` (which must
// immediately follow `into` in address order) into a single free region at
// `into`, tombstoning `other`.
func (g *generation) absorb(into, other regionID) {
	a := &g.regions[into]
	b := &g.regions[other]
	a.size += b.size
	a.next = b.next
	if b.next != noRegion {
		g.regions[b.next].prev = into
	}
	delete(g.regionByAddr, b.start)
	b.alive = false
	if g.head == other {
		g.head = into
	}
}

// shrink reduces an existing allocation's size in place, splitting off the
// remainder as a new free region (coalesced with a following free region, if
// any). Reports false if addr isn't allocated or newSize doesn't actually
// shrink it.
func (g *generation) shrink(addr Addr, newSize uint32) bool {
	alloc, ok := g.allocs[addr]
	if !ok || newSize >= alloc.size {
		return false
	}
	id, ok := g.regionByAddr[alloc.start]
	if !ok {
		return false
	}
	g.used -= alloc.size - newSize
	alloc.size = newSize
	g.split(id, newSize) // split leaves id itself allocated, marks the remainder free
	if next := g.regions[id].next; next != noRegion && g.regions[next].free && g.regions[next].alive {
		if nn := g.regions[next].next; nn != noRegion && g.regions[nn].free && g.regions[nn].alive {
			g.absorb(next, nn)
		}
	}
	return true
}

// allocationSize returns the tracked size of the allocation at addr.
func (g *generation) allocationSize(addr Addr) (uint32, bool) {
	a, ok := g.allocs[addr]
	if !ok {
		return 0, false
	}
	return a.size, true
}

// freeSize sums every alive free region's size.
func (g *generation) freeSize() uint32 {
	var total uint32
	for id := g.head; id != noRegion; id = g.regions[id].next {
		if g.regions[id].free {
			total += g.regions[id].size
		}
	}
	return total
}

// freeRegionCount counts alive free regions, for scenario-style assertions
// about coalescing.
func (g *generation) freeRegionCount() int {
	n := 0
	for id := g.head; id != noRegion; id = g.regions[id].next {
		if g.regions[id].free {
			n++
		}
	}
	return n
}

// largestFree reports the size of the biggest alive free region.
func (g *generation) largestFree() uint32 {
	var largest uint32
	for id := g.head; id != noRegion; id = g.regions[id].next {
		if g.regions[id].free && g.regions[id].size > largest {
			largest = g.regions[id].size
		}
	}
	return largest
}
