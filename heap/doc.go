// Package heap implements the VM's object heap (spec.md §4.7): a single
// contiguous slab partitioned into a doubly-linked free list of regions,
// first-fit allocation with split-on-alloc and coalesce-on-free, three fixed
// generations when the slab is large enough, and incremental mark-sweep
// garbage collection.
//
// Objects themselves are ordinary Go values owned by package objsys; this
// package only tracks address ranges, sizes, and free/used bookkeeping
// against a real page-backed slab, so the size-accounting invariants spec.md
// §8 requires (used_size + free_size == total_size, and friends) hold against
// an actual allocator rather than being simulated over Go's own GC heap.
package heap
