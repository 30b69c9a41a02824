package vmrun

import (
	"context"
	"math"

	"github.com/mootwise/he3vm/bytecode"
	"github.com/mootwise/he3vm/herr"
	"github.com/mootwise/he3vm/ir"
	"github.com/mootwise/he3vm/moduleio"
	"github.com/mootwise/he3vm/objsys"
	"github.com/mootwise/he3vm/registry"
)

// exec dispatches a single decoded instruction against frame, the current
// top of it.frames. It returns done=true exactly when frame has just been
// popped (RETURN/RETURN_VALUE); result is only meaningful then, and only
// consumed by loop() when the popped frame was the call's outermost one.
func (it *Interpreter) exec(ctx context.Context, op bytecode.Op, operand uint32, frame *callFrame) (bool, objsys.Value, error) {
	switch op {
	case bytecode.OpNop:
		return false, objsys.Value{}, nil

	case bytecode.OpPushConstant:
		return false, objsys.Value{}, it.execPushConstant(frame, operand)

	case bytecode.OpPop:
		_, err := it.stack.pop(op.String())
		return false, objsys.Value{}, err

	case bytecode.OpDup, bytecode.OpCopy:
		v, err := it.stack.peek(op.String())
		if err != nil {
			return false, objsys.Value{}, err
		}
		return false, objsys.Value{}, it.stack.push(v)

	case bytecode.OpLoadLocal, bytecode.OpLoadArg:
		v, err := loadLocal(frame, operand)
		if err != nil {
			return false, objsys.Value{}, err
		}
		return false, objsys.Value{}, it.stack.push(v)

	case bytecode.OpStoreLocal:
		v, err := it.stack.pop(op.String())
		if err != nil {
			return false, objsys.Value{}, err
		}
		return false, objsys.Value{}, storeLocal(frame, operand, v)

	case bytecode.OpLoadStatic:
		return false, objsys.Value{}, it.execLoadStatic(frame, operand)
	case bytecode.OpStoreStatic:
		return false, objsys.Value{}, it.execStoreStatic(frame, operand)

	case bytecode.OpLoadField:
		return false, objsys.Value{}, it.execLoadField(frame, operand)
	case bytecode.OpStoreField:
		return false, objsys.Value{}, it.execStoreField(frame, operand)

	case bytecode.OpLoadArray:
		return false, objsys.Value{}, it.execLoadArray()
	case bytecode.OpStoreArray:
		return false, objsys.Value{}, it.execStoreArray()

	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod:
		return false, objsys.Value{}, it.execArith(op)
	case bytecode.OpNeg:
		return false, objsys.Value{}, it.execUnaryNumeric(op)
	case bytecode.OpInc, bytecode.OpDec:
		return false, objsys.Value{}, it.execIncDec(op)

	case bytecode.OpEq, bytecode.OpNe:
		return false, objsys.Value{}, it.execEquality(op)
	case bytecode.OpLt, bytecode.OpLe, bytecode.OpGt, bytecode.OpGe:
		return false, objsys.Value{}, it.execOrdering(op)

	case bytecode.OpAnd, bytecode.OpOr:
		return false, objsys.Value{}, it.execBoolBinary(op)
	case bytecode.OpNot:
		return false, objsys.Value{}, it.execNot()

	case bytecode.OpJmp:
		frame.r.Seek(int(operand) - frame.method.Offset)
		return false, objsys.Value{}, nil
	case bytecode.OpJmpT, bytecode.OpJmpF:
		return false, objsys.Value{}, it.execConditionalJump(op, operand, frame)

	case bytecode.OpCall:
		return false, objsys.Value{}, it.execCall(frame, operand)
	case bytecode.OpCallV:
		return false, objsys.Value{}, it.execCallV(frame, operand)
	case bytecode.OpCallI:
		return false, objsys.Value{}, it.execCallI(frame, operand)

	case bytecode.OpReturn:
		it.popFrame(frame)
		return true, objsys.NullValue(), nil
	case bytecode.OpReturnValue:
		return it.execReturnValue(frame)

	case bytecode.OpNewObject:
		return false, objsys.Value{}, it.execNewObject(frame, operand)
	case bytecode.OpNewArray:
		return false, objsys.Value{}, it.execNewArray(frame, operand)

	case bytecode.OpIsInstanceOf:
		return false, objsys.Value{}, it.execIsInstanceOf(frame, operand)
	case bytecode.OpCast:
		return false, objsys.Value{}, it.execCast(frame, operand)
	case bytecode.OpIsNull, bytecode.OpIsNotNull:
		return false, objsys.Value{}, it.execNullCheck(op)

	case bytecode.OpBox, bytecode.OpUnbox:
		// objsys.Value is already a tagged union valid in any slot (stack,
		// local, field) whether the payload is a primitive or an
		// OBJECT_REF, so there is no separate unboxed representation for
		// BOX/UNBOX to convert between. Neither the translator nor any
		// hand-built test currently exercises these; they pass the value
		// through unchanged so a future boxed-primitive representation can
		// be slotted in here without moving every other opcode.
		return false, objsys.Value{}, nil

	case bytecode.OpGetType:
		return false, objsys.Value{}, it.execGetType()

	default:
		return false, objsys.Value{}, herr.New(herr.PhaseExecute, herr.KindInvalidOpcode).
			Detail("unimplemented opcode %s", op).Build()
	}
}

func loadLocal(frame *callFrame, slot uint32) (objsys.Value, error) {
	idx := int(slot)
	if idx < 0 || idx >= len(frame.locals) {
		return objsys.Value{}, herr.New(herr.PhaseExecute, herr.KindInvalidOpcode).
			Detail("local slot %d out of range for %q (%d slots)", idx, frame.method.Name, len(frame.locals)).Build()
	}
	return frame.locals[idx], nil
}

func storeLocal(frame *callFrame, slot uint32, v objsys.Value) error {
	idx := int(slot)
	if idx < 0 || idx >= len(frame.locals) {
		return herr.New(herr.PhaseExecute, herr.KindInvalidOpcode).
			Detail("local slot %d out of range for %q (%d slots)", idx, frame.method.Name, len(frame.locals)).Build()
	}
	frame.locals[idx] = v
	return nil
}

func (it *Interpreter) execPushConstant(frame *callFrame, operand uint32) error {
	kind, id := bytecode.DecodePushConstant(operand)
	switch kind {
	case bytecode.PushKindNull:
		return it.stack.push(objsys.NullValue())
	case bytecode.PushKindBoolTrue:
		return it.stack.push(objsys.BoolValue(true))
	case bytecode.PushKindBoolFalse:
		return it.stack.push(objsys.BoolValue(false))
	case bytecode.PushKindStringID:
		return it.stack.push(objsys.StringIDValue(id))
	case bytecode.PushKindConstantPool:
		ce, ok := it.reg.Constant(frame.module, id)
		if !ok {
			return herr.New(herr.PhaseExecute, herr.KindNotFound).
				Detail("constant pool id %d not found", id).Build()
		}
		switch ce.Kind {
		case moduleio.ConstantI64:
			return it.stack.push(objsys.I64Value(int64(ce.Bits)))
		case moduleio.ConstantF64:
			return it.stack.push(objsys.F64Value(math.Float64frombits(ce.Bits)))
		default:
			return herr.New(herr.PhaseExecute, herr.KindTypeMismatch).
				Detail("constant pool id %d has unknown kind %d", id, ce.Kind).Build()
		}
	default:
		return herr.New(herr.PhaseExecute, herr.KindInvalidOpcode).
			Detail("unreachable PUSH_CONSTANT decode result").Build()
	}
}

func (it *Interpreter) execLoadStatic(frame *callFrame, operand uint32) error {
	name := it.resolveOperandString(frame, operand)
	field, ok := it.reg.FindField(frame.module, name)
	if !ok {
		return herr.New(herr.PhaseExecute, herr.KindNotFound).Detail("static field %q not found", name).Build()
	}
	return it.stack.push(field.Owner.LoadStatic(field))
}

func (it *Interpreter) execStoreStatic(frame *callFrame, operand uint32) error {
	v, err := it.stack.pop(bytecode.OpStoreStatic.String())
	if err != nil {
		return err
	}
	name := it.resolveOperandString(frame, operand)
	field, ok := it.reg.FindField(frame.module, name)
	if !ok {
		return herr.New(herr.PhaseExecute, herr.KindNotFound).Detail("static field %q not found", name).Build()
	}
	field.Owner.StoreStatic(field, v)
	return nil
}

// resolveReceiver pops the top stack Value and confirms it is a live,
// non-null OBJECT_REF, the precondition LOAD_FIELD/STORE_FIELD/CALLV share.
func (it *Interpreter) resolveReceiver(op string) (*objsys.Object, error) {
	v, err := it.stack.pop(op)
	if err != nil {
		return nil, err
	}
	if v.Kind == objsys.KindNull {
		return nil, herr.NullDereference(op)
	}
	if v.Kind != objsys.KindObjectRef {
		return nil, herr.TypeMismatch(op)
	}
	obj, ok := it.objects.Get(v.Obj)
	if !ok {
		return nil, herr.New(herr.PhaseExecute, herr.KindNotFound).
			Detail("%s: no live object at %v", op, v.Obj).Build()
	}
	return obj, nil
}

func (it *Interpreter) execLoadField(frame *callFrame, operand uint32) error {
	obj, err := it.resolveReceiver(bytecode.OpLoadField.String())
	if err != nil {
		return err
	}
	name := it.resolveOperandString(frame, operand)
	field, ok := objsys.ResolveField(obj, name)
	if !ok {
		return herr.New(herr.PhaseExecute, herr.KindNotFound).
			Detail("field %q not found on %s or its superclasses", name, obj.Class.Name).Build()
	}
	v, err := objsys.LoadField(obj, field)
	if err != nil {
		return err
	}
	return it.stack.push(v)
}

// execStoreField: lowerAssign's FieldAccessExpr case pushes the RHS value
// before the receiver, so the receiver sits on top (translate/stmt.go).
func (it *Interpreter) execStoreField(frame *callFrame, operand uint32) error {
	obj, err := it.resolveReceiver(bytecode.OpStoreField.String())
	if err != nil {
		return err
	}
	v, err := it.stack.pop(bytecode.OpStoreField.String())
	if err != nil {
		return err
	}
	name := it.resolveOperandString(frame, operand)
	field, ok := objsys.ResolveField(obj, name)
	if !ok {
		return herr.New(herr.PhaseExecute, herr.KindNotFound).
			Detail("field %q not found on %s or its superclasses", name, obj.Class.Name).Build()
	}
	return objsys.StoreField(obj, field, v)
}

// execLoadArray: IndexExpr pushes receiver then index (translate/expr.go).
func (it *Interpreter) execLoadArray() error {
	idxV, err := it.stack.pop(bytecode.OpLoadArray.String())
	if err != nil {
		return err
	}
	recvV, err := it.stack.pop(bytecode.OpLoadArray.String())
	if err != nil {
		return err
	}
	arr, err := it.resolveArray(recvV, bytecode.OpLoadArray.String())
	if err != nil {
		return err
	}
	idx, err := indexOf(idxV, bytecode.OpLoadArray.String())
	if err != nil {
		return err
	}
	v, err := objsys.LoadElement(arr, idx)
	if err != nil {
		return err
	}
	return it.stack.push(v)
}

// execStoreArray: lowerAssign's IndexExpr case pushes RHS, then receiver,
// then index — index ends up on top (translate/stmt.go).
func (it *Interpreter) execStoreArray() error {
	idxV, err := it.stack.pop(bytecode.OpStoreArray.String())
	if err != nil {
		return err
	}
	recvV, err := it.stack.pop(bytecode.OpStoreArray.String())
	if err != nil {
		return err
	}
	v, err := it.stack.pop(bytecode.OpStoreArray.String())
	if err != nil {
		return err
	}
	arr, err := it.resolveArray(recvV, bytecode.OpStoreArray.String())
	if err != nil {
		return err
	}
	idx, err := indexOf(idxV, bytecode.OpStoreArray.String())
	if err != nil {
		return err
	}
	return objsys.StoreElement(arr, idx, v)
}

func (it *Interpreter) resolveArray(v objsys.Value, op string) (*objsys.Array, error) {
	if v.Kind == objsys.KindNull {
		return nil, herr.NullDereference(op)
	}
	if v.Kind != objsys.KindObjectRef {
		return nil, herr.TypeMismatch(op)
	}
	arr, ok := it.arrays.Get(v.Obj)
	if !ok {
		return nil, herr.New(herr.PhaseExecute, herr.KindNotFound).
			Detail("%s: no live array at %v", op, v.Obj).Build()
	}
	return arr, nil
}

func indexOf(v objsys.Value, op string) (int, error) {
	if v.Kind != objsys.KindI64 {
		return 0, herr.TypeMismatch(op)
	}
	return int(v.I64), nil
}

func (it *Interpreter) execArith(op bytecode.Op) error {
	a, b, err := it.popPair(op.String())
	if err != nil {
		return err
	}
	if a.Kind != b.Kind {
		return herr.TypeMismatch(op.String())
	}
	switch a.Kind {
	case objsys.KindI64:
		r, err := arithI64(op, a.I64, b.I64)
		if err != nil {
			return err
		}
		return it.stack.push(objsys.I64Value(r))
	case objsys.KindF64:
		r, err := arithF64(op, a.F64, b.F64)
		if err != nil {
			return err
		}
		return it.stack.push(objsys.F64Value(r))
	default:
		return herr.TypeMismatch(op.String())
	}
}

func arithI64(op bytecode.Op, a, b int64) (int64, error) {
	switch op {
	case bytecode.OpAdd:
		return a + b, nil
	case bytecode.OpSub:
		return a - b, nil
	case bytecode.OpMul:
		return a * b, nil
	case bytecode.OpDiv:
		if b == 0 {
			return 0, herr.DivisionByZero(op.String())
		}
		return a / b, nil
	case bytecode.OpMod:
		if b == 0 {
			return 0, herr.DivisionByZero(op.String())
		}
		return a % b, nil
	default:
		return 0, herr.TypeMismatch(op.String())
	}
}

func arithF64(op bytecode.Op, a, b float64) (float64, error) {
	switch op {
	case bytecode.OpAdd:
		return a + b, nil
	case bytecode.OpSub:
		return a - b, nil
	case bytecode.OpMul:
		return a * b, nil
	case bytecode.OpDiv:
		if b == 0 {
			return 0, herr.DivisionByZero(op.String())
		}
		return a / b, nil
	case bytecode.OpMod:
		if b == 0 {
			return 0, herr.DivisionByZero(op.String())
		}
		return math.Mod(a, b), nil
	default:
		return 0, herr.TypeMismatch(op.String())
	}
}

func (it *Interpreter) execUnaryNumeric(op bytecode.Op) error {
	v, err := it.stack.pop(op.String())
	if err != nil {
		return err
	}
	switch v.Kind {
	case objsys.KindI64:
		return it.stack.push(objsys.I64Value(-v.I64))
	case objsys.KindF64:
		return it.stack.push(objsys.F64Value(-v.F64))
	default:
		return herr.TypeMismatch(op.String())
	}
}

func (it *Interpreter) execIncDec(op bytecode.Op) error {
	v, err := it.stack.pop(op.String())
	if err != nil {
		return err
	}
	delta := int64(1)
	fdelta := 1.0
	if op == bytecode.OpDec {
		delta, fdelta = -1, -1.0
	}
	switch v.Kind {
	case objsys.KindI64:
		return it.stack.push(objsys.I64Value(v.I64 + delta))
	case objsys.KindF64:
		return it.stack.push(objsys.F64Value(v.F64 + fdelta))
	default:
		return herr.TypeMismatch(op.String())
	}
}

func (it *Interpreter) execEquality(op bytecode.Op) error {
	a, b, err := it.popPair(op.String())
	if err != nil {
		return err
	}
	if a.Kind != b.Kind {
		return herr.TypeMismatch(op.String())
	}
	eq := valuesEqual(a, b)
	if op == bytecode.OpNe {
		eq = !eq
	}
	return it.stack.push(objsys.BoolValue(eq))
}

func valuesEqual(a, b objsys.Value) bool {
	switch a.Kind {
	case objsys.KindI64:
		return a.I64 == b.I64
	case objsys.KindF64:
		return a.F64 == b.F64
	case objsys.KindBool:
		return a.Bool == b.Bool
	case objsys.KindStringID:
		return a.StringID == b.StringID
	case objsys.KindObjectRef:
		return a.Obj == b.Obj
	case objsys.KindNull:
		return true
	default:
		return false
	}
}

func (it *Interpreter) execOrdering(op bytecode.Op) error {
	a, b, err := it.popPair(op.String())
	if err != nil {
		return err
	}
	if a.Kind != b.Kind {
		return herr.TypeMismatch(op.String())
	}
	var cmp int
	switch a.Kind {
	case objsys.KindI64:
		cmp = compareInt64(a.I64, b.I64)
	case objsys.KindF64:
		cmp = compareFloat64(a.F64, b.F64)
	default:
		return herr.TypeMismatch(op.String())
	}
	var result bool
	switch op {
	case bytecode.OpLt:
		result = cmp < 0
	case bytecode.OpLe:
		result = cmp <= 0
	case bytecode.OpGt:
		result = cmp > 0
	case bytecode.OpGe:
		result = cmp >= 0
	}
	return it.stack.push(objsys.BoolValue(result))
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (it *Interpreter) execBoolBinary(op bytecode.Op) error {
	a, b, err := it.popPair(op.String())
	if err != nil {
		return err
	}
	if a.Kind != objsys.KindBool || b.Kind != objsys.KindBool {
		return herr.TypeMismatch(op.String())
	}
	var r bool
	if op == bytecode.OpAnd {
		r = a.Bool && b.Bool
	} else {
		r = a.Bool || b.Bool
	}
	return it.stack.push(objsys.BoolValue(r))
}

func (it *Interpreter) execNot() error {
	v, err := it.stack.pop(bytecode.OpNot.String())
	if err != nil {
		return err
	}
	if v.Kind != objsys.KindBool {
		return herr.TypeMismatch(bytecode.OpNot.String())
	}
	return it.stack.push(objsys.BoolValue(!v.Bool))
}

// popPair pops b (pushed second, so popped first) then a, matching
// lowerBinary's left-then-right push order (translate/expr.go).
func (it *Interpreter) popPair(op string) (objsys.Value, objsys.Value, error) {
	b, err := it.stack.pop(op)
	if err != nil {
		return objsys.Value{}, objsys.Value{}, err
	}
	a, err := it.stack.pop(op)
	if err != nil {
		return objsys.Value{}, objsys.Value{}, err
	}
	return a, b, nil
}

func (it *Interpreter) execConditionalJump(op bytecode.Op, operand uint32, frame *callFrame) error {
	v, err := it.stack.pop(op.String())
	if err != nil {
		return err
	}
	if v.Kind != objsys.KindBool {
		return herr.TypeMismatch(op.String())
	}
	take := v.Bool
	if op == bytecode.OpJmpF {
		take = !take
	}
	if take {
		frame.r.Seek(int(operand) - frame.method.Offset)
	}
	return nil
}

// popArgs pops n values and restores their original left-to-right push
// order (they were pushed arg0..argN-1, so the top of the stack is argN-1).
func (it *Interpreter) popArgs(n int, op string) ([]objsys.Value, error) {
	args := make([]objsys.Value, n)
	for i := n - 1; i >= 0; i-- {
		v, err := it.stack.pop(op)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

// dispatch pushes method's frame (or runs it as a native) with args already
// in parameter order. Mirrors Call's native/bytecode split but operates
// directly on it.frames instead of recursing through Call, so the opcode
// that triggered it keeps executing in its own frame right where it left
// off once the callee (for a bytecode method) eventually returns.
func (it *Interpreter) dispatch(mod registry.ModuleID, method *objsys.Method, args []objsys.Value) error {
	if method.IsNative() {
		v, err := it.callNative(mod, method, args)
		if err != nil {
			return err
		}
		if !voidReturn(method.ReturnType) {
			return it.stack.push(v)
		}
		return nil
	}
	it.frames = append(it.frames, newCallFrame(mod, method, args, it.stack.len()))
	return nil
}

func (it *Interpreter) execCall(frame *callFrame, operand uint32) error {
	id := registry.GlobalMethodID{Module: frame.module, Local: operand}
	method, ok := it.reg.FindMethodByID(id)
	if !ok {
		return herr.New(herr.PhaseExecute, herr.KindNotFound).
			Detail("CALL: method id %d not found in module %d", operand, frame.module).Build()
	}
	args, err := it.popArgs(method.ParamCount, bytecode.OpCall.String())
	if err != nil {
		return err
	}
	return it.dispatch(frame.module, method, args)
}

// execCallV: lowerCall's FieldAccessExpr branch pushes the arguments, then
// the receiver last (translate/expr.go), so the receiver is popped first —
// needed to resolve the virtual method (and so its ParamCount) before
// knowing how many argument words remain under it.
func (it *Interpreter) execCallV(frame *callFrame, operand uint32) error {
	name := it.resolveOperandString(frame, operand)
	obj, err := it.resolveReceiver(bytecode.OpCallV.String())
	if err != nil {
		return err
	}
	method, ok := objsys.ResolveVirtual(obj, name)
	if !ok {
		return herr.New(herr.PhaseExecute, herr.KindNotFound).
			Detail("CALLV: no method %q on %s or its superclasses", name, obj.Class.Name).Build()
	}
	args, err := it.popArgs(method.ParamCount, bytecode.OpCallV.String())
	if err != nil {
		return err
	}
	args = append([]objsys.Value{objsys.ObjectRefValue(obj.Addr)}, args...)
	return it.dispatch(frame.module, method, args)
}

// execCallI resolves "IfaceName.MethodName" (vmrun's own convention for an
// opcode the current translator never emits — no interface-call syntax
// exists yet — chosen to reuse the same qualified-name split registry.
// FindMethod/FindField already use), confirms name is declared on that
// interface, then dispatches virtually exactly as CALLV does.
func (it *Interpreter) execCallI(frame *callFrame, operand uint32) error {
	qualified := it.resolveOperandString(frame, operand)
	ifaceName, methodName, ok := splitQualifiedName(qualified)
	if !ok {
		return herr.New(herr.PhaseExecute, herr.KindInvalidOpcode).
			Detail("CALLI: operand %q is not \"Interface.Method\"", qualified).Build()
	}
	iface, ok := it.reg.FindClass(frame.module, ifaceName)
	if !ok {
		return herr.New(herr.PhaseExecute, herr.KindNotFound).Detail("CALLI: interface %q not found", ifaceName).Build()
	}
	obj, err := it.resolveReceiver(bytecode.OpCallI.String())
	if err != nil {
		return err
	}
	method, ok := objsys.ResolveInterface(obj, iface, methodName)
	if !ok {
		return herr.New(herr.PhaseExecute, herr.KindNotFound).
			Detail("CALLI: %s does not implement %s.%s", obj.Class.Name, ifaceName, methodName).Build()
	}
	args, err := it.popArgs(method.ParamCount, bytecode.OpCallI.String())
	if err != nil {
		return err
	}
	args = append([]objsys.Value{objsys.ObjectRefValue(obj.Addr)}, args...)
	return it.dispatch(frame.module, method, args)
}

func splitQualifiedName(s string) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

func (it *Interpreter) popFrame(frame *callFrame) {
	it.stack.truncate(frame.stackBase)
	it.frames = it.frames[:len(it.frames)-1]
}

func (it *Interpreter) execReturnValue(frame *callFrame) (bool, objsys.Value, error) {
	v, err := it.stack.pop(bytecode.OpReturnValue.String())
	if err != nil {
		return false, objsys.Value{}, err
	}
	it.stack.truncate(frame.stackBase)
	it.frames = it.frames[:len(it.frames)-1]
	if err := it.stack.push(v); err != nil {
		return false, objsys.Value{}, err
	}
	return true, v, nil
}

func (it *Interpreter) execNewObject(frame *callFrame, operand uint32) error {
	name := it.resolveOperandString(frame, operand)
	class, ok := it.reg.FindClass(frame.module, name)
	if !ok {
		return herr.New(herr.PhaseExecute, herr.KindNotFound).Detail("NEW_OBJECT: class %q not found", name).Build()
	}
	obj, err := it.objects.New(it.heap, class)
	if err != nil {
		return err
	}
	return it.stack.push(objsys.ObjectRefValue(obj.Addr))
}

// execNewArray pops the array length, resolves the element type from its
// operand's string (the same ir.TypeID names translate/stmt.go's
// resolveVarType uses), and allocates. Not emitted by the current translator — there is
// no array-literal/new-array source syntax yet — so this is exercised only
// by hand-built bytecode.
func (it *Interpreter) execNewArray(frame *callFrame, operand uint32) error {
	lenV, err := it.stack.pop(bytecode.OpNewArray.String())
	if err != nil {
		return err
	}
	if lenV.Kind != objsys.KindI64 {
		return herr.TypeMismatch(bytecode.OpNewArray.String())
	}
	if lenV.I64 < 0 {
		return herr.New(herr.PhaseExecute, herr.KindInvalidOpcode).
			Detail("NEW_ARRAY: negative length %d", lenV.I64).Build()
	}
	name := it.resolveOperandString(frame, operand)
	arr, err := it.arrays.New(it.heap, int(lenV.I64), elementTypeID(name))
	if err != nil {
		return err
	}
	return it.stack.push(objsys.ObjectRefValue(arr.Addr))
}

func elementTypeID(name string) uint32 {
	switch name {
	case "integer":
		return uint32(ir.TypeInteger)
	case "float":
		return uint32(ir.TypeFloat)
	case "boolean":
		return uint32(ir.TypeBoolean)
	case "string":
		return uint32(ir.TypeString)
	default:
		return uint32(ir.TypeObject)
	}
}

func (it *Interpreter) execIsInstanceOf(frame *callFrame, operand uint32) error {
	name := it.resolveOperandString(frame, operand)
	class, classOK := it.reg.FindClass(frame.module, name)
	v, err := it.stack.pop(bytecode.OpIsInstanceOf.String())
	if err != nil {
		return err
	}
	result := false
	if classOK && v.Kind == objsys.KindObjectRef {
		if obj, ok := it.objects.Get(v.Obj); ok {
			result = matchesClass(obj, class)
		}
	}
	return it.stack.push(objsys.BoolValue(result))
}

func matchesClass(obj *objsys.Object, class *objsys.Class) bool {
	if class.IsInterface() {
		return objsys.IsInstanceOfInterface(obj, class)
	}
	return objsys.IsInstanceOf(obj, class)
}

func (it *Interpreter) execCast(frame *callFrame, operand uint32) error {
	name := it.resolveOperandString(frame, operand)
	class, classOK := it.reg.FindClass(frame.module, name)
	v, err := it.stack.pop(bytecode.OpCast.String())
	if err != nil {
		return err
	}
	if v.Kind == objsys.KindNull {
		return it.stack.push(v)
	}
	if !classOK || v.Kind != objsys.KindObjectRef {
		return herr.TypeMismatch(bytecode.OpCast.String())
	}
	obj, ok := it.objects.Get(v.Obj)
	if !ok || !matchesClass(obj, class) {
		return herr.New(herr.PhaseExecute, herr.KindTypeMismatch).
			Detail("CAST: object is not a %s", name).Build()
	}
	return it.stack.push(v)
}

func (it *Interpreter) execNullCheck(op bytecode.Op) error {
	v, err := it.stack.pop(op.String())
	if err != nil {
		return err
	}
	result := v.IsNull()
	if op == bytecode.OpIsNotNull {
		result = !result
	}
	return it.stack.push(objsys.BoolValue(result))
}

// execGetType reports an object's runtime class id as an I64; non-object
// Values (and NULL) have no class-based type id in this model and report
// NULL, since GET_TYPE is never emitted by the current translator and this
// is the most conservative reasonable behaviour for hand-built bytecode.
func (it *Interpreter) execGetType() error {
	v, err := it.stack.pop(bytecode.OpGetType.String())
	if err != nil {
		return err
	}
	if v.Kind != objsys.KindObjectRef {
		return it.stack.push(objsys.NullValue())
	}
	obj, ok := it.objects.Get(v.Obj)
	if !ok {
		return it.stack.push(objsys.NullValue())
	}
	return it.stack.push(objsys.I64Value(int64(obj.Class.TypeID)))
}
