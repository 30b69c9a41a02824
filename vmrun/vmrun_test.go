package vmrun

import (
	"context"
	"testing"

	"github.com/mootwise/he3vm/ast"
	"github.com/mootwise/he3vm/bytecode"
	"github.com/mootwise/he3vm/heap"
	"github.com/mootwise/he3vm/internal/henc"
	"github.com/mootwise/he3vm/ir"
	"github.com/mootwise/he3vm/moduleio"
	"github.com/mootwise/he3vm/objsys"
	"github.com/mootwise/he3vm/registry"
	"github.com/mootwise/he3vm/translate"
)

func ret(v ast.Expr) *ast.ReturnStmt  { return &ast.ReturnStmt{Value: v} }
func intLit(v int64) *ast.LiteralExpr { return &ast.LiteralExpr{Kind: ast.LitInt, I: v} }
func ident(n string) *ast.IdentExpr   { return &ast.IdentExpr{Name: n} }

func newInterpreter(t *testing.T) (*Interpreter, *registry.Registry) {
	t.Helper()
	h, err := heap.New(1 << 20)
	if err != nil {
		t.Fatalf("heap.New: %v", err)
	}
	reg := registry.New()
	return New(reg, h), reg
}

func compileMethod(t *testing.T, em *bytecode.Emitter, irFn *ir.Function, paramCount int) moduleio.CompiledMethod {
	t.Helper()
	code, diags := em.EmitFunction(irFn)
	if diags.Err() != nil {
		t.Fatalf("emit %s: %v", irFn.Name, diags.Err())
	}
	return moduleio.CompiledMethod{
		Name:       irFn.Name,
		Code:       code,
		ReturnType: irFn.ReturnType,
		ParamCount: paramCount,
		LocalCount: irFn.LocalCount,
		Static:     true,
	}
}

// loadProgram compiles decls (every function static, no receivers) into a
// single "Program" class, packages it as the executable entry module, and
// loads it into a fresh interpreter — the same translate -> emit -> package
// -> load pipeline moduleio/packager_test.go and registry/registry_test.go
// exercise piecemeal, wired end to end.
func loadProgram(t *testing.T, entry string, decls ...*ast.FunctionDecl) (*Interpreter, registry.ModuleID) {
	t.Helper()
	em := bytecode.NewEmitter()
	tr := &translate.Translator{}

	irFns := make([]*ir.Function, len(decls))
	for i, d := range decls {
		irFn, diags := tr.TranslateFunction(d)
		if diags.Err() != nil {
			t.Fatalf("translate %s: %v", d.Name, diags.Err())
		}
		irFns[i] = irFn
	}
	em.DeclareFunctions(irFns)

	methods := make([]moduleio.CompiledMethod, len(decls))
	for i, d := range decls {
		methods[i] = compileMethod(t, em, irFns[i], len(d.Params))
	}

	unit := moduleio.CompiledUnit{
		Classes: []moduleio.CompiledClass{
			{Name: "Program", Flags: moduleio.TypeFlagClass, Methods: methods},
		},
		Strings:   em.Strings,
		Constants: em.Constants,
	}

	data, diags := moduleio.Package([]moduleio.CompiledUnit{unit}, moduleio.ProjectMetadata{
		ModuleName:      "program",
		ModuleVersion:   "1.0.0",
		Executable:      true,
		EntryPointClass: "Program",
		EntryPointName:  entry,
	})
	if diags.Err() != nil {
		t.Fatalf("Package: %v", diags.Err())
	}

	it, reg := newInterpreter(t)
	modID, err := reg.LoadModule(data)
	if err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	return it, modID
}

// asm hand-assembles one method body, recording a bytecode.Fixup for every
// operand that must be rewritten against the module's own tables once
// moduleio.Package merges this unit in (the same bookkeeping
// bytecode.Emitter.EmitFunction does for compiler-generated code). Used by
// the tests below to exercise opcodes the current translator never emits
// (CALLV, NEW_OBJECT) without duplicating the emitter.
type asm struct {
	w      *henc.Writer
	fixups []bytecode.Fixup
}

func newAsm() *asm { return &asm{w: henc.NewWriter()} }

func (a *asm) op(o bytecode.Op) *asm {
	a.w.Byte(byte(o))
	return a
}

// raw writes an operand word that is already final (a literal local-slot
// index, or Sys.println's fixed global method id 1) and needs no fixup.
func (a *asm) raw(v uint32) *asm {
	a.w.WriteU32(v)
	return a
}

// fixup writes v (a unit-local string-table or constant-pool id) and
// records where it lives so the packager rewrites it to the module-global
// id once this unit is merged.
func (a *asm) fixup(v uint32, kind bytecode.FixupKind) *asm {
	offset := uint32(a.w.Len())
	a.w.WriteU32(v)
	a.fixups = append(a.fixups, bytecode.Fixup{Offset: offset, Kind: kind})
	return a
}

func (a *asm) code(name string) *bytecode.FunctionCode {
	return &bytecode.FunctionCode{Name: name, Code: a.w.Bytes(), Fixups: a.fixups}
}

// TestRunReturnsConstant matches spec.md §8 scenario 1 end to end: compile,
// package, load, and run a function that returns a literal.
func TestRunReturnsConstant(t *testing.T) {
	fn := &ast.FunctionDecl{
		Name:       "main",
		ReturnType: ast.Type{Name: "integer"},
		Body:       &ast.BlockStmt{Stmts: []ast.Stmt{ret(intLit(42))}},
	}
	it, _ := loadProgram(t, "main", fn)

	v, err := it.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if v.Kind != objsys.KindI64 || v.I64 != 42 {
		t.Fatalf("Run result: got %+v, want I64(42)", v)
	}
}

// TestCallDispatchesAndReturns covers a static CALL with arguments, the
// operand-stack calling convention from spec.md §9's decision (push args in
// order, callee's prologue treats them as its first local slots), plus
// RETURN_VALUE's transfer of the popped value back onto the caller's now
// truncated stack.
func TestCallDispatchesAndReturns(t *testing.T) {
	add := &ast.FunctionDecl{
		Name:       "add",
		Params:     []ast.Param{{Name: "a", Type: ast.Type{Name: "integer"}}, {Name: "b", Type: ast.Type{Name: "integer"}}},
		ReturnType: ast.Type{Name: "integer"},
		Body: &ast.BlockStmt{Stmts: []ast.Stmt{
			ret(&ast.BinaryExpr{Op: ast.BinAdd, Left: ident("a"), Right: ident("b")}),
		}},
	}
	main := &ast.FunctionDecl{
		Name:       "main",
		ReturnType: ast.Type{Name: "integer"},
		Body: &ast.BlockStmt{Stmts: []ast.Stmt{
			ret(&ast.CallExpr{Callee: ident("add"), Args: []ast.Expr{intLit(19), intLit(23)}}),
		}},
	}
	it, _ := loadProgram(t, "main", add, main)

	v, err := it.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if v.Kind != objsys.KindI64 || v.I64 != 42 {
		t.Fatalf("Run result: got %+v, want I64(42)", v)
	}
	if depth := it.stack.len(); depth != 0 {
		t.Fatalf("operand stack leaked %d entries after Run", depth)
	}
}

// TestWhileLoopUsesJump exercises JMP/JMPF end to end — in particular that
// a backward jump computed at emit time (method-relative) still lands
// correctly once moduleio/packager.go has rewritten it to blob-absolute
// space and objsys.Method.Offset converts it back (DESIGN.md addendum #10).
func TestWhileLoopUsesJump(t *testing.T) {
	sum := &ast.FunctionDecl{
		Name:       "sum",
		ReturnType: ast.Type{Name: "integer"},
		Body: &ast.BlockStmt{Stmts: []ast.Stmt{
			&ast.VarDeclStmt{Name: "i", Type: ast.Type{Name: "integer"}, Init: intLit(0)},
			&ast.VarDeclStmt{Name: "acc", Type: ast.Type{Name: "integer"}, Init: intLit(0)},
			&ast.WhileStmt{
				Cond: &ast.BinaryExpr{Op: ast.BinLt, Left: ident("i"), Right: intLit(5)},
				Body: &ast.BlockStmt{Stmts: []ast.Stmt{
					&ast.AssignStmt{LHS: ident("acc"), RHS: &ast.BinaryExpr{Op: ast.BinAdd, Left: ident("acc"), Right: ident("i")}},
					&ast.AssignStmt{LHS: ident("i"), RHS: &ast.BinaryExpr{Op: ast.BinAdd, Left: ident("i"), Right: intLit(1)}},
				}},
			},
			ret(ident("acc")),
		}},
	}
	it, _ := loadProgram(t, "sum", sum)

	v, err := it.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// 0+1+2+3+4 == 10.
	if v.Kind != objsys.KindI64 || v.I64 != 10 {
		t.Fatalf("Run result: got %+v, want I64(10)", v)
	}
}

// TestNestedIfReachesInnerBranch guards against nested control flow relying
// on a conditional jump's not-taken successor being physically adjacent
// in fn.Order (DESIGN.md addendum #11): if(c1){ if(c2){ return 1 } } return 0
// with c1=c2=true must still execute the inner branch and return 1, not fall
// through past it into the outer merge block.
func TestNestedIfReachesInnerBranch(t *testing.T) {
	main := &ast.FunctionDecl{
		Name:       "main",
		ReturnType: ast.Type{Name: "integer"},
		Body: &ast.BlockStmt{Stmts: []ast.Stmt{
			&ast.IfStmt{
				Cond: &ast.LiteralExpr{Kind: ast.LitBool, B: true},
				Then: &ast.BlockStmt{Stmts: []ast.Stmt{
					&ast.IfStmt{
						Cond: &ast.LiteralExpr{Kind: ast.LitBool, B: true},
						Then: &ast.BlockStmt{Stmts: []ast.Stmt{ret(intLit(1))}},
					},
				}},
			},
			ret(intLit(0)),
		}},
	}
	it, _ := loadProgram(t, "main", main)

	v, err := it.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if v.Kind != objsys.KindI64 || v.I64 != 1 {
		t.Fatalf("Run result: got %+v, want I64(1) (inner branch must execute)", v)
	}
}

type sliceWriter struct{ buf *[]byte }

func (w sliceWriter) Write(p []byte) (int, error) {
	*w.buf = append(*w.buf, p...)
	return len(p), nil
}

// TestSysPrintlnDispatchesAsStaticCall matches spec.md scenario 6: Sys is
// an implicit class whose println is invoked through the numeric-method-id
// CALL opcode, resolved by Interpreter.callNative rather than CALLV
// (DESIGN.md's "Sys.println dispatch" scope note). Sys is always the first
// class the packager prepends and println its only method, so its global
// method id is always 1 (moduleio/packager.go's sysClass/nextMethodID).
func TestSysPrintlnDispatchesAsStaticCall(t *testing.T) {
	em := bytecode.NewEmitter()
	tr := &translate.Translator{}

	main := &ast.FunctionDecl{
		Name:       "main",
		ReturnType: ast.Type{Name: "void"},
		Body:       &ast.BlockStmt{Stmts: []ast.Stmt{&ast.ReturnStmt{}}},
	}
	irFn, diags := tr.TranslateFunction(main)
	if diags.Err() != nil {
		t.Fatalf("translate main: %v", diags.Err())
	}
	em.DeclareFunctions([]*ir.Function{irFn})
	mainMethod := compileMethod(t, em, irFn, 0)

	a := newAsm()
	a.op(bytecode.OpPushConstant).fixup(bytecode.EncodeStringConstant(em.Strings.Intern("hello")), bytecode.FixupString)
	a.op(bytecode.OpCall).raw(1)
	a.op(bytecode.OpReturn)
	mainMethod.Code = a.code("main")

	unit := moduleio.CompiledUnit{
		Classes: []moduleio.CompiledClass{
			{Name: "Program", Flags: moduleio.TypeFlagClass, Methods: []moduleio.CompiledMethod{mainMethod}},
		},
		Strings:   em.Strings,
		Constants: em.Constants,
	}
	data, pdiags := moduleio.Package([]moduleio.CompiledUnit{unit}, moduleio.ProjectMetadata{
		ModuleName: "prog", ModuleVersion: "1.0.0", Executable: true,
		EntryPointClass: "Program", EntryPointName: "main",
	})
	if pdiags.Err() != nil {
		t.Fatalf("Package: %v", pdiags.Err())
	}

	it, reg := newInterpreter(t)
	var out []byte
	it.SetOutput(sliceWriter{&out})
	if _, err := reg.LoadModule(data); err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	if _, err := it.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := string(out); got != "hello\n" {
		t.Fatalf("println output: got %q want %q", got, "hello\n")
	}
}

// TestCallVVirtualDispatch hand-builds bytecode for two classes overriding
// the same method name, exercising CALLV's "this at local slot 0"
// convention (DESIGN.md scope note) — unreachable from the current
// translator, since it never compiles a method body with a receiver.
func TestCallVVirtualDispatch(t *testing.T) {
	strs := bytecode.NewStringTable()
	consts := bytecode.NewConstantPool()

	animalSpeak := newAsm()
	animalSpeak.op(bytecode.OpPushConstant).fixup(consts.InternI64(1), bytecode.FixupConstant)
	animalSpeak.op(bytecode.OpReturnValue)

	dogSpeak := newAsm()
	dogSpeak.op(bytecode.OpPushConstant).fixup(consts.InternI64(2), bytecode.FixupConstant)
	dogSpeak.op(bytecode.OpReturnValue)

	main := newAsm()
	main.op(bytecode.OpNewObject).fixup(strs.Intern("Dog"), bytecode.FixupString)
	main.op(bytecode.OpCallV).fixup(strs.Intern("speak"), bytecode.FixupString)
	main.op(bytecode.OpReturnValue)

	unit := moduleio.CompiledUnit{
		Classes: []moduleio.CompiledClass{
			{
				Name:  "Animal",
				Flags: moduleio.TypeFlagClass,
				Methods: []moduleio.CompiledMethod{
					{Name: "speak", Virtual: true, Code: animalSpeak.code("speak")},
				},
			},
			{
				Name:   "Dog",
				Parent: "Animal",
				Flags:  moduleio.TypeFlagClass,
				Methods: []moduleio.CompiledMethod{
					{Name: "speak", Virtual: true, Code: dogSpeak.code("speak")},
				},
			},
			{
				Name:  "Program",
				Flags: moduleio.TypeFlagClass,
				Methods: []moduleio.CompiledMethod{
					{Name: "main", Static: true, Code: main.code("main")},
				},
			},
		},
		Strings:   strs,
		Constants: consts,
	}
	data, diags := moduleio.Package([]moduleio.CompiledUnit{unit}, moduleio.ProjectMetadata{
		ModuleName: "virt", ModuleVersion: "1.0.0", Executable: true,
		EntryPointClass: "Program", EntryPointName: "main",
	})
	if diags.Err() != nil {
		t.Fatalf("Package: %v", diags.Err())
	}

	it, reg := newInterpreter(t)
	if _, err := reg.LoadModule(data); err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	v, err := it.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if v.Kind != objsys.KindI64 || v.I64 != 2 {
		t.Fatalf("CALLV result: got %+v, want I64(2) from Dog's override", v)
	}
}

// TestStackUnderflowOnEmptyPop confirms POP on an empty stack surfaces
// herr.KindStackUnderflow rather than panicking.
func TestStackUnderflowOnEmptyPop(t *testing.T) {
	it, _ := newInterpreter(t)
	_, err := it.stack.pop(bytecode.OpPop.String())
	if err == nil {
		t.Fatalf("expected a stack underflow error")
	}
}

// TestStackOverflowAtCapacity confirms a full stack rejects a further push.
func TestStackOverflowAtCapacity(t *testing.T) {
	it, _ := newInterpreter(t)
	it.SetMaxStackEntries(2)
	if err := it.stack.push(objsys.I64Value(1)); err != nil {
		t.Fatalf("unexpected push error: %v", err)
	}
	if err := it.stack.push(objsys.I64Value(2)); err != nil {
		t.Fatalf("unexpected push error: %v", err)
	}
	if err := it.stack.push(objsys.I64Value(3)); err == nil {
		t.Fatalf("expected a stack overflow error")
	}
}

// TestDivisionByZero confirms an integer DIV by zero surfaces through herr
// rather than a Go panic.
func TestDivisionByZero(t *testing.T) {
	fn := &ast.FunctionDecl{
		Name:       "bad",
		ReturnType: ast.Type{Name: "integer"},
		Body: &ast.BlockStmt{Stmts: []ast.Stmt{
			ret(&ast.BinaryExpr{Op: ast.BinDiv, Left: intLit(1), Right: intLit(0)}),
		}},
	}
	it, _ := loadProgram(t, "bad", fn)
	if _, err := it.Run(context.Background()); err == nil {
		t.Fatalf("expected a division-by-zero error")
	}
}
