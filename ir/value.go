package ir

// ValueKind tags the variant held by a Value (spec.md §3.1).
type ValueKind byte

const (
	KindI64 ValueKind = iota
	KindF64
	KindBool
	KindStringID
	KindObjectRef
	KindNull
	KindTemp
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
	case KindTemp:
		return "TEMP_ID"
	default:
		return "UNKNOWN"
	}
}

// Value is an immutable, tagged-union operand or instruction result.
// Exactly one of the payload fields is meaningful, selected by Kind.
type Value struct {
	Kind ValueKind
	I64  int64
	F64  float64
	Bool bool
	// Str holds raw string content for KindStringID values. Interning (the
	// byte content -> numeric string-table id mapping) is deferred to the
	// bytecode emitter per spec.md §4.2's literal-lowering rule; the IR
	// never carries a pre-assigned id.
	Str string
	// ObjPtr is only valid for VM-internal bootstrapping (spec.md §4.3).
	ObjPtr uintptr
	// Temp is the builder-local temp id for KindTemp values.
	Temp uint32
}

// I64Value constructs an I64 Value.
func I64Value(v int64) Value { return Value{Kind: KindI64, I64: v} }

// F64Value constructs an F64 Value.
func F64Value(v float64) Value { return Value{Kind: KindF64, F64: v} }

// BoolValue constructs a BOOL Value.
func BoolValue(v bool) Value { return Value{Kind: KindBool, Bool: v} }

// StringValue constructs a deferred-intern STRING_ID Value from raw content.
func StringValue(s string) Value { return Value{Kind: KindStringID, Str: s} }

// NullValue constructs the NULL Value.
func NullValue() Value { return Value{Kind: KindNull} }

// TempValue constructs a TEMP_ID Value referencing a prior instruction's result.
func TempValue(id uint32) Value { return Value{Kind: KindTemp, Temp: id} }
