package translate

import "github.com/mootwise/he3vm/ir"

// symbol is spec.md §3.2's Symbol entity.
type symbol struct {
	name      string
	typeID    ir.TypeID
	depth     int
	slot      int
	isLocal   bool
}

// symbolTable implements innermost-first lookup with a stack discipline for
// scope exit (spec.md §4.2 step 5): declare() allocates the next local slot
// and records scope depth; exiting a scope hides deeper symbols without
// discarding their slots (slots are never reused, so later shadowing never
// aliases an earlier variable's storage).
type symbolTable struct {
	stack []symbol // innermost symbol last
	depth int
	next  *slotAllocator
}

// slotAllocator hands out monotonically increasing local slot indices,
// shared across the whole function per spec.md §4.1 (parameters occupy
// [0..param_count), locals continue from there).
type slotAllocator struct {
	n int
}

func (a *slotAllocator) next() int {
	idx := a.n
	a.n++
	return idx
}

func newSymbolTable() *symbolTable {
	return &symbolTable{next: &slotAllocator{}}
}

// enterScope increases the current scope depth.
func (t *symbolTable) enterScope() {
	t.depth++
}

// exitScope pops every symbol declared at the current depth, hiding them
// from subsequent lookups, then decreases the depth.
func (t *symbolTable) exitScope() {
	for len(t.stack) > 0 && t.stack[len(t.stack)-1].depth == t.depth {
		t.stack = t.stack[:len(t.stack)-1]
	}
	t.depth--
}

// declareParam records a parameter at slot idx without consuming a new slot
// from the allocator (parameters are pre-numbered by the caller).
func (t *symbolTable) declareParam(name string, typeID ir.TypeID, slot int) {
	t.stack = append(t.stack, symbol{name: name, typeID: typeID, depth: t.depth, slot: slot, isLocal: true})
	if slot >= t.next.n {
		t.next.n = slot + 1
	}
}

// declare allocates the next local slot for name and returns it.
func (t *symbolTable) declare(name string, typeID ir.TypeID) int {
	slot := t.next.next()
	t.stack = append(t.stack, symbol{name: name, typeID: typeID, depth: t.depth, slot: slot, isLocal: true})
	return slot
}

// lookup returns the innermost symbol matching name, if any.
func (t *symbolTable) lookup(name string) (symbol, bool) {
	for i := len(t.stack) - 1; i >= 0; i-- {
		if t.stack[i].name == name {
			return t.stack[i], true
		}
	}
	return symbol{}, false
}

// localCount reports how many slots have been handed out in total.
func (t *symbolTable) localCount() int {
	return t.next.n
}
