package vmrun

import (
	"context"
	"io"
	"os"

	"github.com/mootwise/he3vm/bytecode"
	"github.com/mootwise/he3vm/heap"
	"github.com/mootwise/he3vm/herr"
	"github.com/mootwise/he3vm/ir"
	"github.com/mootwise/he3vm/objsys"
	"github.com/mootwise/he3vm/registry"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Interpreter runs C8's fetch-decode-execute loop against one Registry/Heap/
// ObjectTable set (spec.md §4.8). It owns the single shared operand stack and
// call-frame stack for its lifetime; both are read live by the GC root
// provider installed on the heap, so an Interpreter must not be shared
// across concurrently-running goroutines (spec.md §5: "single-threaded,
// cooperative. One logical thread of control per VM instance").
type Interpreter struct {
	reg     *registry.Registry
	heap    *heap.Heap
	objects *objsys.ObjectTable
	arrays  *objsys.ArrayTable
	out     io.Writer

	stack  *operandStack
	frames []*callFrame
}

// New wires reg/h together, builds the object/array tables, and installs the
// Interpreter's live stack/frame state as the heap's GC root provider
// (spec.md §4.7's root set: operand stack, every live frame's locals, and
// every loaded class's static fields, the last supplied by reg.StaticRoots).
func New(reg *registry.Registry, h *heap.Heap) *Interpreter {
	objects := objsys.NewObjectTable()
	arrays := objsys.NewArrayTable()
	it := &Interpreter{
		reg:     reg,
		heap:    h,
		objects: objects,
		arrays:  arrays,
		out:     os.Stdout,
		stack:   newOperandStack(DefaultMaxStackEntries),
	}
	h.SetCollector(it.collectRoots, it.trace)
	return it
}

// trace composes the object and array tables into one heap.Tracer: the two
// tables share the same underlying address space, so an address not found in
// one is tried against the other before giving up.
func (it *Interpreter) trace(addr heap.Addr) []heap.Addr {
	if out := it.objects.Tracer()(addr); out != nil {
		return out
	}
	return it.arrays.Tracer()(addr)
}

// collectGarbage runs a GC cycle and sweeps both runtime tables afterward, so
// neither outlives the heap addresses it tracks (heap.Heap's own sweep only
// reclaims raw allocations, see objsys.ObjectTable.Sweep's doc comment).
func (it *Interpreter) collectGarbage(incremental bool) {
	it.heap.GCCollect(incremental)
	it.objects.Sweep(it.heap)
	it.arrays.Sweep(it.heap)
}

// SetOutput redirects native method output (Sys.println), default os.Stdout.
func (it *Interpreter) SetOutput(w io.Writer) {
	it.out = w
}

// SetMaxStackEntries replaces the default operand-stack cap. Must be called
// before Run/Call.
func (it *Interpreter) SetMaxStackEntries(max int) {
	it.stack = newOperandStack(max)
}

func (it *Interpreter) collectRoots() []heap.Addr {
	var out []heap.Addr
	for _, v := range it.stack.data {
		if v.Kind == objsys.KindObjectRef {
			out = append(out, v.Obj)
		}
	}
	for _, f := range it.frames {
		for _, v := range f.locals {
			if v.Kind == objsys.KindObjectRef {
				out = append(out, v.Obj)
			}
		}
	}
	out = append(out, it.reg.StaticRoots()...)
	return out
}

// Run executes the entry module's declared entry point (header's
// entry_point_method_id) with no arguments.
func (it *Interpreter) Run(ctx context.Context) (objsys.Value, error) {
	id, ok := it.reg.EntryPointMethod()
	if !ok {
		return objsys.Value{}, herr.New(herr.PhaseExecute, herr.KindNotFound).
			Detail("no entry module loaded").Build()
	}
	method, ok := it.reg.FindMethodByID(id)
	if !ok {
		return objsys.Value{}, herr.New(herr.PhaseExecute, herr.KindNotFound).
			Detail("entry point method id %d not found in module %d", id.Local, id.Module).Build()
	}
	return it.Call(ctx, id.Module, method, nil)
}

// Call invokes method with args (already in parameter order), running the
// fetch-decode-execute loop until this invocation's own frame returns.
// Native methods (MethodFlagNative) dispatch directly with no bytecode frame.
func (it *Interpreter) Call(ctx context.Context, mod registry.ModuleID, method *objsys.Method, args []objsys.Value) (objsys.Value, error) {
	if method.IsNative() {
		return it.callNative(mod, method, args)
	}

	baseFrames := len(it.frames)
	frame := newCallFrame(mod, method, args, it.stack.len())
	it.frames = append(it.frames, frame)

	result, err := it.loop(ctx, baseFrames)
	if err != nil {
		it.frames = it.frames[:baseFrames]
		it.stack.truncate(frame.stackBase)
		return objsys.Value{}, err
	}
	// The outermost RETURN_VALUE pushed its result for a caller frame that
	// does not exist; the host receives it as Call's return value instead.
	it.stack.truncate(frame.stackBase)
	return result, nil
}

func (it *Interpreter) callNative(mod registry.ModuleID, method *objsys.Method, args []objsys.Value) (objsys.Value, error) {
	switch method.Name {
	case "println":
		ctx := &objsys.NativeContext{
			Strings: func(id uint32) string { return it.reg.ResolveString(mod, id) },
			Objects: it.objects,
			Out:     it.out,
		}
		v, err := objsys.SysPrintln(ctx, args)
		if err != nil {
			return objsys.Value{}, herr.New(herr.PhaseExecute, herr.KindTypeMismatch).Cause(err).Build()
		}
		return v, nil
	default:
		return objsys.Value{}, herr.New(herr.PhaseExecute, herr.KindNotFound).
			Detail("no native implementation for %q", method.Name).Build()
	}
}

// loop runs the fetch-decode-execute cycle (spec.md §4.8) until the frame at
// baseFrames has returned, the host cancels ctx, or an opcode fails.
func (it *Interpreter) loop(ctx context.Context, baseFrames int) (objsys.Value, error) {
	for len(it.frames) > baseFrames {
		if err := ctx.Err(); err != nil {
			return objsys.Value{}, herr.Interrupted()
		}

		frame := it.frames[len(it.frames)-1]
		opByte, err := frame.r.ReadByte()
		if err != nil {
			return objsys.Value{}, herr.New(herr.PhaseExecute, herr.KindInvalidOpcode).
				Detail("method %q ran off the end of its bytecode without a RETURN", frame.method.Name).Build()
		}
		op := bytecode.Op(opByte)

		if ce := Logger().Check(zapcore.DebugLevel, "exec"); ce != nil {
			ce.Write(zap.String("method", frame.method.Name), zap.String("op", op.String()))
		}

		var operand uint32
		if bytecode.OperandWidth(op) > 0 {
			operand, err = frame.r.ReadU32()
			if err != nil {
				return objsys.Value{}, herr.New(herr.PhaseExecute, herr.KindInvalidOpcode).
					Detail("method %q: truncated operand for %s", frame.method.Name, op).Build()
			}
		}

		done, result, err := it.exec(ctx, op, operand, frame)
		if err != nil {
			return objsys.Value{}, err
		}
		if done && len(it.frames) == baseFrames {
			return result, nil
		}
	}
	return objsys.NullValue(), nil
}

// resolveOperandString resolves a LOAD_FIELD/STORE_FIELD/LOAD_STATIC/
// STORE_STATIC/CALLV/CALLI/NEW_OBJECT/NEW_ARRAY/IS_INSTANCE_OF/CAST
// operand's string-table id against the frame's own module (bytecode.Emitter
// encodes these by name, spec.md §4.6's by-name virtual/interface dispatch).
func (it *Interpreter) resolveOperandString(frame *callFrame, id uint32) string {
	return it.reg.ResolveString(frame.module, id)
}

func voidReturn(returnType uint32) bool {
	return returnType == uint32(ir.TypeVoid)
}
