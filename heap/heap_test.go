package heap

import "testing"

// TestAllocateDeallocateCoalesce exercises spec.md §8 scenario 5: allocate
// three equal-sized blocks, free the middle one (no coalescing possible yet),
// then free the other two and expect convergence back to a single free
// region spanning the whole generation.
func TestAllocateDeallocateCoalesce(t *testing.T) {
	h, err := New(1 << 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer h.Close()

	const blockSize = 100
	a, err := h.Allocate(blockSize, 1)
	if err != nil {
		t.Fatalf("allocate a: %v", err)
	}
	b, err := h.Allocate(blockSize, 1)
	if err != nil {
		t.Fatalf("allocate b: %v", err)
	}
	c, err := h.Allocate(blockSize, 1)
	if err != nil {
		t.Fatalf("allocate c: %v", err)
	}

	before := h.FreeRegionCount()
	if err := h.Deallocate(b); err != nil {
		t.Fatalf("deallocate b: %v", err)
	}
	if got := h.FreeRegionCount(); got != before {
		t.Fatalf("freeing the middle block with both neighbours allocated changed the free region count: before=%d after=%d", before, got)
	}

	if err := h.Deallocate(a); err != nil {
		t.Fatalf("deallocate a: %v", err)
	}
	if err := h.Deallocate(c); err != nil {
		t.Fatalf("deallocate c: %v", err)
	}

	if got := h.FreeRegionCount(); got != 1 {
		t.Fatalf("expected one coalesced free region after freeing everything, got %d", got)
	}
	if got := h.UsedSize(); got != 0 {
		t.Fatalf("expected used_size 0 after freeing everything, got %d", got)
	}
	if err := h.CheckIntegrity(); err != nil {
		t.Fatalf("integrity check failed: %v", err)
	}
}

// TestCheckIntegrityHoldsAcrossAllocations verifies the predicates spec.md §8
// requires hold before, during, and after a batch of allocations.
func TestCheckIntegrityHoldsAcrossAllocations(t *testing.T) {
	h, err := New(1 << 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer h.Close()

	if err := h.CheckIntegrity(); err != nil {
		t.Fatalf("integrity check failed on an empty heap: %v", err)
	}

	var addrs []Addr
	for i := 0; i < 20; i++ {
		addr, err := h.Allocate(32, 1)
		if err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
		addrs = append(addrs, addr)
		if err := h.CheckIntegrity(); err != nil {
			t.Fatalf("integrity check failed after allocation %d: %v", i, err)
		}
	}

	for i, addr := range addrs {
		if i%2 == 0 {
			if err := h.Deallocate(addr); err != nil {
				t.Fatalf("deallocate %d: %v", i, err)
			}
		}
	}
	if err := h.CheckIntegrity(); err != nil {
		t.Fatalf("integrity check failed after partial deallocation: %v", err)
	}
}

// TestAllocateFailsWhenExhausted checks that a slab with no room and no
// collector installed returns an AllocationFailure rather than panicking.
func TestAllocateFailsWhenExhausted(t *testing.T) {
	h, err := New(1 << 12)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer h.Close()

	total := int(h.TotalSize())
	if _, err := h.Allocate(total+1, 1); err == nil {
		t.Fatalf("expected allocation failure for a request larger than the slab")
	}
}

// TestAllocateTriggersCollectionOnExhaustion verifies that once a collector
// is installed, Allocate runs a full GC and retries before giving up.
func TestAllocateTriggersCollectionOnExhaustion(t *testing.T) {
	h, err := New(1 << 12)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer h.Close()

	total := int(h.TotalSize())
	want := (total * 3) / 4
	garbage, err := h.Allocate(want, 1)
	if err != nil {
		t.Fatalf("allocate garbage: %v", err)
	}
	_ = garbage

	// No roots reference `garbage`, so a full collection should reclaim it
	// and make room for the next allocation, which would not otherwise fit
	// alongside the still-live garbage block.
	h.SetCollector(func() []Addr { return nil }, func(Addr) []Addr { return nil })

	if _, err := h.Allocate(want, 1); err != nil {
		t.Fatalf("allocate after implicit collection: %v", err)
	}
	if got := h.Stats().Collections; got == 0 {
		t.Fatalf("expected Allocate to have triggered at least one collection")
	}
}

// TestReallocateShrinkInPlace checks that shrinking an allocation keeps its
// address stable and updates size accounting.
func TestReallocateShrinkInPlace(t *testing.T) {
	h, err := New(1 << 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer h.Close()

	addr, err := h.Allocate(200, 1)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	newAddr, moved, err := h.Reallocate(addr, 50, 1)
	if err != nil {
		t.Fatalf("reallocate: %v", err)
	}
	if moved {
		t.Fatalf("expected an in-place shrink, got moved=true")
	}
	if newAddr != addr {
		t.Fatalf("expected address to stay stable on shrink, got %d want %d", newAddr, addr)
	}
	if err := h.CheckIntegrity(); err != nil {
		t.Fatalf("integrity check failed after shrink: %v", err)
	}
}

// TestReallocateGrowMoves checks that growing an allocation beyond its
// current size relocates it and frees the old address.
func TestReallocateGrowMoves(t *testing.T) {
	h, err := New(1 << 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer h.Close()

	addr, err := h.Allocate(50, 1)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	newAddr, moved, err := h.Reallocate(addr, 500, 1)
	if err != nil {
		t.Fatalf("reallocate: %v", err)
	}
	if !moved {
		t.Fatalf("expected growth beyond current size to move the allocation")
	}
	if newAddr == addr {
		t.Fatalf("expected a different address after growing")
	}
	if err := h.Deallocate(addr); err == nil {
		t.Fatalf("expected the old address to already be freed by Reallocate")
	}
}

// TestThreeGenerationLayout checks that a slab large enough for all three
// fixed generations is laid out contiguously per spec.md §4.7.
func TestThreeGenerationLayout(t *testing.T) {
	h, err := New(youngGenerationSize + oldGenerationSize + permGenerationSize)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer h.Close()

	if got := len(h.generations); got != 3 {
		t.Fatalf("expected 3 generations, got %d", got)
	}
	if h.generations[0].name != "young" || h.generations[1].name != "old" || h.generations[2].name != "perm" {
		t.Fatalf("unexpected generation order: %v %v %v", h.generations[0].name, h.generations[1].name, h.generations[2].name)
	}
}

// TestPermGenerationSurvivesCollection checks that neither a full nor an
// incremental collection ever sweeps the perm generation, per spec.md §3.4 —
// even with no roots at all, a permanent allocation must stay allocated.
func TestPermGenerationSurvivesCollection(t *testing.T) {
	h, err := New(youngGenerationSize + oldGenerationSize + permGenerationSize)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer h.Close()

	addr, err := h.AllocatePermanent(64, 1)
	if err != nil {
		t.Fatalf("AllocatePermanent: %v", err)
	}

	h.SetCollector(func() []Addr { return nil }, func(Addr) []Addr { return nil })

	h.GCCollect(false)
	if !h.IsAllocated(addr) {
		t.Fatalf("full collection swept a perm-generation allocation")
	}

	h.GCCollect(true)
	h.GCCollect(true)
	h.GCCollect(true)
	if !h.IsAllocated(addr) {
		t.Fatalf("incremental collection swept a perm-generation allocation")
	}
}

// TestSingleGenerationForSmallSlab checks the fallback layout for a slab too
// small to hold all three fixed generations.
func TestSingleGenerationForSmallSlab(t *testing.T) {
	h, err := New(1 << 12)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer h.Close()

	if got := len(h.generations); got != 1 {
		t.Fatalf("expected a single generation for a small slab, got %d", got)
	}
}
