package objsys

import (
	"sync"

	"github.com/mootwise/he3vm/heap"
	"github.com/mootwise/he3vm/herr"
)

// Array is a fixed-length, homogeneously-typed runtime array (spec.md §4.8's
// NEW_ARRAY/LOAD_ARRAY/STORE_ARRAY). It shares the heap's address space with
// Object but lives in its own table, since an array has no owning Class and
// no field-name lookups.
type Array struct {
	Addr       heap.Addr
	ElemTypeID uint32
	Elements   []Value
}

// ArrayTable is the array-typed counterpart to ObjectTable.
type ArrayTable struct {
	mu     sync.RWMutex
	arrays map[heap.Addr]*Array
}

// NewArrayTable constructs an empty table.
func NewArrayTable() *ArrayTable {
	return &ArrayTable{arrays: make(map[heap.Addr]*Array)}
}

// New allocates a length-element array of elemTypeID, every slot NULL.
func (t *ArrayTable) New(h *heap.Heap, length int, elemTypeID uint32) (*Array, error) {
	size := objectHeaderSize + length*valueSize
	addr, err := h.Allocate(size, elemTypeID)
	if err != nil {
		return nil, err
	}
	a := &Array{Addr: addr, ElemTypeID: elemTypeID, Elements: make([]Value, length)}
	for i := range a.Elements {
		a.Elements[i] = NullValue()
	}
	t.mu.Lock()
	t.arrays[addr] = a
	t.mu.Unlock()
	return a, nil
}

// Get resolves a heap.Addr to its live Array.
func (t *ArrayTable) Get(addr heap.Addr) (*Array, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	a, ok := t.arrays[addr]
	return a, ok
}

// Sweep removes every array the heap no longer tracks as allocated.
func (t *ArrayTable) Sweep(h *heap.Heap) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for addr := range t.arrays {
		if !h.IsAllocated(addr) {
			delete(t.arrays, addr)
		}
	}
}

// Tracer implements heap.Tracer against this table: the addresses directly
// reachable from an array's OBJECT_REF-typed elements.
func (t *ArrayTable) Tracer() heap.Tracer {
	return func(addr heap.Addr) []heap.Addr {
		a, ok := t.Get(addr)
		if !ok {
			return nil
		}
		var out []heap.Addr
		for _, v := range a.Elements {
			if v.Kind == KindObjectRef {
				out = append(out, v.Obj)
			}
		}
		return out
	}
}

// LoadElement reads an array slot (spec.md §4.8's LOAD_ARRAY).
func LoadElement(a *Array, index int) (Value, error) {
	if index < 0 || index >= len(a.Elements) {
		return Value{}, herr.New(herr.PhaseExecute, herr.KindTypeMismatch).
			Detail("array index %d out of range for length %d", index, len(a.Elements)).Build()
	}
	return a.Elements[index], nil
}

// StoreElement writes an array slot (spec.md §4.8's STORE_ARRAY).
func StoreElement(a *Array, index int, v Value) error {
	if index < 0 || index >= len(a.Elements) {
		return herr.New(herr.PhaseExecute, herr.KindTypeMismatch).
			Detail("array index %d out of range for length %d", index, len(a.Elements)).Build()
	}
	a.Elements[index] = v
	return nil
}
