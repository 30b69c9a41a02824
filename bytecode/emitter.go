package bytecode

import (
	"github.com/mootwise/he3vm/herr"
	"github.com/mootwise/he3vm/internal/henc"
	"github.com/mootwise/he3vm/ir"
)

// FixupKind tags what a recorded Fixup's 4-byte operand word means, so the
// module packager (package moduleio) knows how to rewrite it when merging
// this unit's per-unit ids into the module's global tables.
type FixupKind byte

const (
	// FixupConstant: operand is this unit's constant-pool index.
	FixupConstant FixupKind = iota
	// FixupString: operand is this unit's string-table id.
	FixupString
	// FixupMethod: operand is this unit's method id (a static CALL target).
	FixupMethod
	// FixupJumpBase: operand is a byte offset relative to this function's own
	// start; concatenating method bodies into one blob requires adding the
	// method's final base offset within the blob.
	FixupJumpBase
)

// Fixup records one operand word in Code that still needs rewriting once
// this unit is merged into a module's global tables. Operands that are
// already self-contained (local/arg slot indices, inline BOOL/NULL
// literals) need no fixup and are not recorded.
type Fixup struct {
	Offset uint32
	Kind   FixupKind
}

// FunctionCode is one function's emitted bytecode plus the header fields the
// module packager copies into the method table (spec.md §3.3).
type FunctionCode struct {
	Name       string
	MethodID   uint32
	ParamCount int
	LocalCount int
	Code       []byte
	Fixups     []Fixup
}

// Emitter lowers IR functions to numeric bytecode (C3). It owns the string
// table and constant pool for the compilation unit being emitted, and the
// method-name-to-id table used to resolve static CALL targets.
//
// Field/method access that is resolved by name at VM runtime (LOAD_FIELD,
// STORE_FIELD, LOAD_STATIC, STORE_STATIC, CALLV, CALLI, NEW_OBJECT) encodes a
// string-table id, matching the by-name superclass/interface search spec.md
// §4.6 defines for virtual and interface dispatch. A static CALL is the one
// exception: its target is resolvable at emit time, so it encodes a numeric
// method id instead, assigned by a two-phase declare-then-emit flow
// (DeclareFunctions registers every name in the unit before any body is
// emitted, so forward calls resolve the same as backward ones).
type Emitter struct {
	Strings   *StringTable
	Constants *ConstantPool

	methodIDs    map[string]uint32
	nextMethodID uint32
}

// NewEmitter creates an Emitter with empty string/constant/method tables.
func NewEmitter() *Emitter {
	return &Emitter{
		Strings:      NewStringTable(),
		Constants:    NewConstantPool(),
		methodIDs:    make(map[string]uint32),
		nextMethodID: 1,
	}
}

// DeclareFunctions pre-registers every function name in fns so that a static
// CALL to a function appearing later in source order still resolves.
func (em *Emitter) DeclareFunctions(fns []*ir.Function) {
	for _, fn := range fns {
		em.methodID(fn.Name)
	}
}

func (em *Emitter) methodID(name string) uint32 {
	if id, ok := em.methodIDs[name]; ok {
		return id
	}
	id := em.nextMethodID
	em.nextMethodID++
	em.methodIDs[name] = id
	return id
}

// MethodID looks up an already-declared function's numeric id.
func (em *Emitter) MethodID(name string) (uint32, bool) {
	id, ok := em.methodIDs[name]
	return id, ok
}

// EmitFunction lowers one IR function to a flat byte stream. It runs two
// passes over the function's blocks in declaration order: the first computes
// each block's absolute byte offset (spec.md §9's linearization resolution —
// block ids are never emitted as operand bytes, only resolved offsets are),
// the second emits the opcode stream using those offsets for jump targets.
func (em *Emitter) EmitFunction(fn *ir.Function) (*FunctionCode, *herr.Diagnostics) {
	var diags herr.Diagnostics

	offsets := make(map[ir.BlockID]uint32, len(fn.Order))
	var cursor uint32
	for _, id := range fn.Order {
		offsets[id] = cursor
		for _, instr := range fn.Blocks[id].Instructions {
			op, ok := MapIROpcode(instr.Op)
			if !ok {
				diags.Record(herr.UnknownIrOpcode(instr.Op.String()))
				continue
			}
			cursor += 1 + uint32(OperandWidth(op))
		}
	}

	w := henc.NewWriter()
	var fixups []Fixup
	for _, id := range fn.Order {
		for _, instr := range fn.Blocks[id].Instructions {
			op, ok := MapIROpcode(instr.Op)
			if !ok {
				continue
			}
			w.Byte(byte(op))
			if OperandWidth(op) == 0 {
				continue
			}
			operandPos := uint32(w.Len())
			if instr.HasJump {
				w.WriteU32(offsets[instr.Target])
				fixups = append(fixups, Fixup{Offset: operandPos, Kind: FixupJumpBase})
				continue
			}
			val, kind, hasFixup := em.encodeOperand(op, instr)
			w.WriteU32(val)
			if hasFixup {
				fixups = append(fixups, Fixup{Offset: operandPos, Kind: kind})
			}
		}
		Logger().Sugar().Debugf("emitted block %d of %s at offset %d", id, fn.Name, offsets[id])
	}

	code := &FunctionCode{
		Name:       fn.Name,
		MethodID:   em.methodID(fn.Name),
		ParamCount: len(fn.ParamTypes),
		LocalCount: fn.LocalCount,
		Code:       w.Bytes(),
		Fixups:     fixups,
	}
	return code, &diags
}

// encodeOperand resolves the single 4-byte operand word for an instruction
// whose opcode has a nonzero operand width, along with whether that word
// references a per-unit table (and which one) so the caller can record a
// Fixup for the module packager. Only the trailing, non-temp operand ever
// carries the literal payload: earlier operands in the list are values
// already produced by prior instructions and live on the conceptual operand
// stack, never re-encoded as bytes.
func (em *Emitter) encodeOperand(op Op, instr ir.Instruction) (value uint32, kind FixupKind, hasFixup bool) {
	if len(instr.Operands) == 0 {
		return 0, 0, false
	}
	last := instr.Operands[len(instr.Operands)-1]

	switch op {
	case OpPushConstant:
		switch last.Kind {
		case ir.KindI64:
			return em.Constants.InternI64(last.I64), FixupConstant, true
		case ir.KindF64:
			return em.Constants.InternF64(last.F64), FixupConstant, true
		case ir.KindStringID:
			return em.Strings.Intern(last.Str), FixupString, true
		case ir.KindBool:
			// Constant-pool ids are 1-based (0 means absent, constants.go),
			// which collides with NULL's operand below. Bool literals never
			// touch the pool at all: they're encoded as the two sentinel
			// words at the very top of the uint32 range, far above any id
			// a real pool reaches, so vmrun's PUSH_CONSTANT handler can tell apart
			// "pool id", "null", and "bool" from the bare operand word alone.
			if last.Bool {
				return PushConstTrue, 0, false
			}
			return PushConstFalse, 0, false
		default: // KindNull
			return PushConstNull, 0, false
		}

	case OpCall:
		return em.methodID(last.Str), FixupMethod, true

	case OpCallV, OpCallI, OpLoadField, OpStoreField, OpLoadStatic, OpStoreStatic,
		OpNewObject, OpNewArray, OpIsInstanceOf, OpCast:
		return em.Strings.Intern(last.Str), FixupString, true

	case OpLoadLocal, OpLoadArg, OpStoreLocal:
		return uint32(last.I64), 0, false

	default:
		return 0, 0, false
	}
}
