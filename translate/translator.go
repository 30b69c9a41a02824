package translate

import (
	"github.com/mootwise/he3vm/ast"
	"github.com/mootwise/he3vm/herr"
	"github.com/mootwise/he3vm/ir"
)

// Translator implements C2: translate_compilation_unit (spec.md §4.2).
// It is stateless between calls to TranslateFunction; each call gets its
// own Builder and symbolTable.
type Translator struct {
	// TypeOf resolves a source-level type name to a compile-side TypeID.
	// Defaults to a small built-in table (INTEGER/FLOAT/BOOLEAN/STRING/
	// OBJECT/VOID) when nil, matching spec.md §3.2's reserved built-ins;
	// anything else maps to TypeObject, since full type inference is a
	// Non-goal.
	TypeOf func(name string) ir.TypeID
}

// ResolveType exposes typeOf to callers that need to map a source-level
// type name the same way TranslateFunction does — e.g. a field declaration,
// which carries a type name but never passes through TranslateFunction
// itself.
func (tr *Translator) ResolveType(name string) ir.TypeID {
	return tr.typeOf(name)
}

func (tr *Translator) typeOf(name string) ir.TypeID {
	if tr.TypeOf != nil {
		return tr.TypeOf(name)
	}
	switch name {
	case "integer":
		return ir.TypeInteger
	case "float":
		return ir.TypeFloat
	case "boolean":
		return ir.TypeBoolean
	case "string":
		return ir.TypeString
	case "void":
		return ir.TypeVoid
	default:
		return ir.TypeObject
	}
}

// funcState carries the per-function translation context through every
// lowering method, mirroring the teacher's per-node-kind dispatch
// (asyncify/internal/ir/linearize.go) generalized from a WASM instruction
// tree to a source statement/expression tree.
type funcState struct {
	b      *ir.Builder
	syms   *symbolTable
	diags  *herr.Diagnostics
}

// TranslateFunction performs steps 1-4 of spec.md §4.2 for a single
// FunctionDecl and returns the built IR function together with any
// recorded diagnostics (translation is best-effort: errors are recorded and
// lowering continues where possible, per spec.md §4.2 step 7).
func (tr *Translator) TranslateFunction(fn *ast.FunctionDecl) (*ir.Function, *herr.Diagnostics) {
	b := ir.NewBuilder(fn.Name, tr.typeOf(fn.ReturnType.Name))
	syms := newSymbolTable()

	fs := &funcState{b: b, syms: syms, diags: b.Diagnostics()}

	entry := b.NewBlock("entry")
	b.SetCurrentBlock(entry)

	for _, p := range fn.Params {
		slot := syms.next.next()
		syms.declareParam(p.Name, tr.typeOf(p.Type.Name), slot)
	}

	fs.lowerBlock(fn.Body)

	// A function whose body does not end in a terminator implicitly
	// returns (void functions fall off the end; non-void functions without
	// an explicit return are a translator-detected structural gap, recorded
	// but not fatal).
	if !b.CurrentBlock().Terminated() {
		if tr.typeOf(fn.ReturnType.Name) == ir.TypeVoid {
			b.Emit(ir.OpReturn, loc(fn.P))
		} else {
			fs.diags.Record(herr.UnsupportedStatement("missing return in non-void function", fn.P.Line, fn.P.Col))
			b.Emit(ir.OpReturn, loc(fn.P))
		}
	}

	built, structDiags := b.Finish()
	built.LocalCount = syms.localCount()
	if len(fn.Params) > 0 {
		built.ParamTypes = make([]ir.TypeID, len(fn.Params))
		for i, p := range fn.Params {
			built.ParamTypes[i] = tr.typeOf(p.Type.Name)
		}
	}
	if fn.Static {
		built.Flags |= ir.FlagStatic
	}
	if fn.Virtual {
		built.Flags |= ir.FlagVirtual
	}
	mergeDiagnostics(fs.diags, structDiags)
	return built, fs.diags
}

func mergeDiagnostics(dst, src *herr.Diagnostics) {
	if dst == src {
		return
	}
	for _, e := range src.Errors() {
		dst.Record(e)
	}
}

func loc(p ast.Pos) ir.SourceLoc {
	return ir.SourceLoc{Line: p.Line, Col: p.Col}
}
