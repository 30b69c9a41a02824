package objsys

import "github.com/mootwise/he3vm/heap"

// ValueKind tags the variant held by a runtime Value (spec.md §3.1's Value
// entity, carried into the VM-runtime side per spec.md §9's design note: a
// small, copy-cheap tagged union, distinct from ir.Value which is a
// compile-time construct that still carries raw TEMP_IDs and unintered
// string content).
type ValueKind byte

const (
	KindI64 ValueKind = iota
	KindF64
	KindBool
	KindStringID
	KindObjectRef
	KindNull
)

func (k ValueKind) String() string {
	switch k {
	case KindI64:
		return "I64"
	case KindF64:
		return "F64"
	case KindBool:
		return "BOOL"
	case KindStringID:
		return "STRING_ID"
	case KindObjectRef:
		return "OBJECT_REF"
	case KindNull:
		return "NULL"
	default:
		return "UNKNOWN"
	}
}

// Value is the VM's operand-stack/local-slot/field-storage unit. Exactly one
// payload field is meaningful, selected by Kind. OBJECT_REF holds a
// heap.Addr rather than a Go pointer, so it is always resolvable back to its
// Object through an ObjectTable, and is a valid GC root by construction.
type Value struct {
	Kind ValueKind

	I64      int64
	F64      float64
	Bool     bool
	StringID uint32
	Obj      heap.Addr
}

func I64Value(v int64) Value             { return Value{Kind: KindI64, I64: v} }
func F64Value(v float64) Value           { return Value{Kind: KindF64, F64: v} }
func BoolValue(v bool) Value             { return Value{Kind: KindBool, Bool: v} }
func StringIDValue(id uint32) Value      { return Value{Kind: KindStringID, StringID: id} }
func ObjectRefValue(a heap.Addr) Value   { return Value{Kind: KindObjectRef, Obj: a} }
func NullValue() Value                   { return Value{Kind: KindNull} }

// IsNull reports whether v is the NULL value. Address 0 is a valid,
// allocatable heap address (the very start of the young generation), so an
// OBJECT_REF is never implicitly null by its payload; NULL is its own kind.
func (v Value) IsNull() bool {
	return v.Kind == KindNull
}
