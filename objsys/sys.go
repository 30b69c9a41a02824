package objsys

import (
	"fmt"
	"io"
	"os"
)

// StringResolver resolves an interned string-table id to its content. The
// module registry that owns the string table supplies this; objsys itself
// never parses a module image.
type StringResolver func(id uint32) string

// NativeContext carries the host-provided side channels a native method
// body needs (SPEC_FULL.md §D.1: Sys.println is the only native method a
// correct implementation needs).
type NativeContext struct {
	Strings StringResolver
	Objects *ObjectTable
	Out     io.Writer
}

// DefaultNativeContext returns a context writing to os.Stdout, for hosts
// that don't need to capture output.
func DefaultNativeContext(strings StringResolver, objects *ObjectTable) *NativeContext {
	return &NativeContext{Strings: strings, Objects: objects, Out: os.Stdout}
}

// SysPrintln implements the implicit Sys class's println(object) native
// method (spec.md §4.4, SPEC_FULL.md §D.1, grounded on the original source's
// src/shared/stdlib/sys.c): kind-dispatched stringification rather than a
// single opaque dump.
func SysPrintln(ctx *NativeContext, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, fmt.Errorf("println expects exactly one argument, got %d", len(args))
	}
	fmt.Fprintln(ctx.Out, FormatValue(ctx, args[0]))
	return Value{}, nil
}

// FormatValue renders v the way Sys.println does: each Kind gets its own
// textual form rather than one generic representation.
func FormatValue(ctx *NativeContext, v Value) string {
	switch v.Kind {
	case KindI64:
		return fmt.Sprintf("%d", v.I64)
	case KindF64:
		return fmt.Sprintf("%g", v.F64)
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindStringID:
		if ctx != nil && ctx.Strings != nil {
			return ctx.Strings(v.StringID)
		}
		return fmt.Sprintf("<string#%d>", v.StringID)
	case KindObjectRef:
		if ctx != nil && ctx.Objects != nil {
			if obj, ok := ctx.Objects.Get(v.Obj); ok {
				return fmt.Sprintf("%s@%d", obj.Class.Name, v.Obj)
			}
		}
		return fmt.Sprintf("<object@%d>", v.Obj)
	case KindNull:
		return "null"
	default:
		return "<unknown>"
	}
}
