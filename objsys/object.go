package objsys

import (
	"math"
	"sync"

	"github.com/mootwise/he3vm/heap"
	"github.com/mootwise/he3vm/herr"
)

// Object is a live instance (spec.md §3.4's ObjectHeader plus instance
// data). Field storage is an ordinary Go slice indexed by each Field's Slot,
// not raw bytes at an offset — see the package comment.
type Object struct {
	Addr     heap.Addr
	Class    *Class
	RefCount int32

	fields []Value
}

// objectHeaderSize is the nominal byte cost of spec.md §3.4's ObjectHeader
// (type_id, ref_count, size, flags, class pointer — five 32/64-bit words),
// charged against the heap even though objsys stores the header fields as a
// Go struct, so heap size accounting reflects a real per-object fixed cost.
const objectHeaderSize = 5 * 8

// valueSize is the heap-accounting cost of one instance field slot.
const valueSize = 16

// ObjectTable is the process-wide (or per-VM-instance) map from heap.Addr to
// the live Object at that address — the bridge between a Value's
// OBJECT_REF payload and actual instance data, and the Tracer the heap's GC
// calls to walk the object graph.
type ObjectTable struct {
	mu      sync.RWMutex
	objects map[heap.Addr]*Object
}

// NewObjectTable constructs an empty table.
func NewObjectTable() *ObjectTable {
	return &ObjectTable{objects: make(map[heap.Addr]*Object)}
}

// New allocates and zero-initialises a new instance of class (spec.md §4.6):
// ref_count = 1, every field slot NULL until assigned.
func (t *ObjectTable) New(h *heap.Heap, class *Class) (*Object, error) {
	fieldCount := class.InstanceFieldCount()
	size := objectHeaderSize + fieldCount*valueSize
	addr, err := h.Allocate(size, class.TypeID)
	if err != nil {
		return nil, err
	}

	obj := &Object{
		Addr:     addr,
		Class:    class,
		RefCount: 1,
		fields:   make([]Value, fieldCount),
	}
	for i := range obj.fields {
		obj.fields[i] = NullValue()
	}

	t.mu.Lock()
	t.objects[addr] = obj
	t.mu.Unlock()
	return obj, nil
}

// Get resolves a heap.Addr to its live Object.
func (t *ObjectTable) Get(addr heap.Addr) (*Object, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	o, ok := t.objects[addr]
	return o, ok
}

// Sweep removes every object the heap reports as no longer tracked (called
// after a GC cycle finishes freeing the underlying allocations), so the
// table doesn't outlive its backing memory.
func (t *ObjectTable) Sweep(h *heap.Heap) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for addr := range t.objects {
		if !h.IsAllocated(addr) {
			delete(t.objects, addr)
		}
	}
}

// Tracer implements heap.Tracer against this table: the addresses directly
// reachable from obj's OBJECT_REF-typed fields.
func (t *ObjectTable) Tracer() heap.Tracer {
	return func(addr heap.Addr) []heap.Addr {
		obj, ok := t.Get(addr)
		if !ok {
			return nil
		}
		var out []heap.Addr
		for _, v := range obj.fields {
			if v.Kind == KindObjectRef {
				out = append(out, v.Obj)
			}
		}
		return out
	}
}

// Retain increments an object's reference count, clamped at math.MaxInt32
// (SPEC_FULL.md §D.5's saturation rule — a runaway retain storm should not
// wrap back to a small or negative count).
func (o *Object) Retain() {
	if o.RefCount < math.MaxInt32 {
		o.RefCount++
	}
}

// Release decrements an object's reference count, floored at 0. Reaching 0
// makes the object collectable, not collected: actual reclamation happens
// only when the heap's mark-sweep fails to mark it as reachable from the
// current root set (spec.md §4.6 — refcounting alone cannot break cycles).
func (o *Object) Release() {
	if o.RefCount > 0 {
		o.RefCount--
	}
}

// IsInstanceOf walks the superclass chain starting at obj's own class
// (spec.md §4.6).
func IsInstanceOf(obj *Object, class *Class) bool {
	for c := obj.Class; c != nil; c = c.Super {
		if c.TypeID == class.TypeID {
			return true
		}
	}
	return false
}

// IsInstanceOfInterface walks the superclass chain, checking each level's
// implemented-interface list for iface (spec.md §4.6).
func IsInstanceOfInterface(obj *Object, iface *Class) bool {
	for c := obj.Class; c != nil; c = c.Super {
		for _, impl := range c.Interfaces {
			if impl.TypeID == iface.TypeID {
				return true
			}
		}
	}
	return false
}

// ResolveVirtual searches obj's class then each superclass in turn for a
// method named name, returning the first match (spec.md §4.6's CALLV
// semantics — the search itself is the correctness specification; a
// production implementation would materialise a vtable at class load).
func ResolveVirtual(obj *Object, name string) (*Method, bool) {
	for c := obj.Class; c != nil; c = c.Super {
		if m, ok := c.MethodByName(name); ok {
			return m, true
		}
	}
	return nil, false
}

// ResolveInterface resolves method name against iface's declared method
// list to confirm it exists there, then dispatches virtually against obj
// (spec.md §4.6's CALLI semantics).
func ResolveInterface(obj *Object, iface *Class, name string) (*Method, bool) {
	if _, ok := iface.MethodByName(name); !ok {
		return nil, false
	}
	return ResolveVirtual(obj, name)
}

// ResolveField searches obj's class then each superclass in turn for a field
// named name, the same inheritance-walk ResolveVirtual does for methods
// (spec.md §4.6's LOAD_FIELD/STORE_FIELD, resolved against the receiver's
// actual runtime class, not the static type at the call site).
func ResolveField(obj *Object, name string) (*Field, bool) {
	for c := obj.Class; c != nil; c = c.Super {
		if f, ok := c.FieldByName(name); ok {
			return f, true
		}
	}
	return nil, false
}

// LoadField reads an instance field (spec.md §4.6's load_field).
func LoadField(obj *Object, field *Field) (Value, error) {
	if field.Static {
		return Value{}, herr.New(herr.PhaseExecute, herr.KindTypeMismatch).
			Detail("field %q is static; use LOAD_STATIC", field.Name).Build()
	}
	if field.Slot < 0 || field.Slot >= len(obj.fields) {
		return Value{}, herr.New(herr.PhaseExecute, herr.KindTypeMismatch).
			Detail("field %q slot %d out of range for a %d-field instance of %s", field.Name, field.Slot, len(obj.fields), obj.Class.Name).Build()
	}
	return obj.fields[field.Slot], nil
}

// StoreField writes an instance field, destroying (dropping) the previous
// value (spec.md §4.6's store_field).
func StoreField(obj *Object, field *Field, v Value) error {
	if field.Static {
		return herr.New(herr.PhaseExecute, herr.KindTypeMismatch).
			Detail("field %q is static; use STORE_STATIC", field.Name).Build()
	}
	if field.Slot < 0 || field.Slot >= len(obj.fields) {
		return herr.New(herr.PhaseExecute, herr.KindTypeMismatch).
			Detail("field %q slot %d out of range for a %d-field instance of %s", field.Name, field.Slot, len(obj.fields), obj.Class.Name).Build()
	}
	obj.fields[field.Slot] = v
	return nil
}
