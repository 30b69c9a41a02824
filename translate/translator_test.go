package translate

import (
	"testing"

	"github.com/mootwise/he3vm/ast"
	"github.com/mootwise/he3vm/ir"
)

func ret(v ast.Expr) *ast.ReturnStmt { return &ast.ReturnStmt{Value: v} }

func intLit(v int64) *ast.LiteralExpr { return &ast.LiteralExpr{Kind: ast.LitInt, I: v} }

// TestIdentityFunction matches spec.md §8 scenario 1.
func TestIdentityFunction(t *testing.T) {
	fn := &ast.FunctionDecl{
		Name:       "main",
		ReturnType: ast.Type{Name: "integer"},
		Body:       &ast.BlockStmt{Stmts: []ast.Stmt{ret(intLit(42))}},
	}

	tr := &Translator{}
	irFn, diags := tr.TranslateFunction(fn)
	if diags.Err() != nil {
		t.Fatalf("unexpected diagnostics: %v", diags.Err())
	}

	entry := irFn.Entry()
	if len(entry.Instructions) != 2 {
		t.Fatalf("expected 2 instructions, got %d", len(entry.Instructions))
	}
	if entry.Instructions[0].Op != ir.OpLoadConst {
		t.Fatalf("expected LOAD_CONST, got %s", entry.Instructions[0].Op)
	}
	if entry.Instructions[1].Op != ir.OpReturnVal {
		t.Fatalf("expected RETURN_VAL, got %s", entry.Instructions[1].Op)
	}
}

// TestLocalVariableRoundTrip matches spec.md §8 scenario 3.
func TestLocalVariableRoundTrip(t *testing.T) {
	fn := &ast.FunctionDecl{
		Name:       "main",
		ReturnType: ast.Type{Name: "integer"},
		Body: &ast.BlockStmt{Stmts: []ast.Stmt{
			&ast.VarDeclStmt{Name: "x", Type: ast.Type{Name: "integer"}, Init: intLit(7)},
			ret(&ast.IdentExpr{Name: "x"}),
		}},
	}

	tr := &Translator{}
	irFn, diags := tr.TranslateFunction(fn)
	if diags.Err() != nil {
		t.Fatalf("unexpected diagnostics: %v", diags.Err())
	}

	entry := irFn.Entry()
	wantOps := []ir.Opcode{ir.OpLoadConst, ir.OpStoreLocal, ir.OpLoadLocal, ir.OpReturnVal}
	if len(entry.Instructions) != len(wantOps) {
		t.Fatalf("expected %d instructions, got %d", len(wantOps), len(entry.Instructions))
	}
	for i, op := range wantOps {
		if entry.Instructions[i].Op != op {
			t.Errorf("instruction %d: got %s want %s", i, entry.Instructions[i].Op, op)
		}
	}
}

func TestUndefinedSymbolRecorded(t *testing.T) {
	fn := &ast.FunctionDecl{
		Name:       "bad",
		ReturnType: ast.Type{Name: "integer"},
		Body:       &ast.BlockStmt{Stmts: []ast.Stmt{ret(&ast.IdentExpr{Name: "nope"})}},
	}
	tr := &Translator{}
	_, diags := tr.TranslateFunction(fn)
	if diags.Err() == nil {
		t.Fatalf("expected an UndefinedSymbol diagnostic")
	}
}

func TestArithmeticPrecedenceAlreadyShaped(t *testing.T) {
	// 2 + 3 * 4 — the AST already nests (3*4) under the Right of (2+_),
	// matching spec.md §8 scenario 2's note that precedence is resolved
	// before C2 sees the tree.
	expr := &ast.BinaryExpr{
		Op:   ast.BinAdd,
		Left: intLit(2),
		Right: &ast.BinaryExpr{
			Op:    ast.BinMul,
			Left:  intLit(3),
			Right: intLit(4),
		},
	}
	fn := &ast.FunctionDecl{
		Name:       "arith",
		ReturnType: ast.Type{Name: "integer"},
		Body:       &ast.BlockStmt{Stmts: []ast.Stmt{ret(expr)}},
	}
	tr := &Translator{}
	irFn, diags := tr.TranslateFunction(fn)
	if diags.Err() != nil {
		t.Fatalf("unexpected diagnostics: %v", diags.Err())
	}
	entry := irFn.Entry()
	last := entry.Instructions[len(entry.Instructions)-1]
	if last.Op != ir.OpReturnVal {
		t.Fatalf("expected RETURN_VAL, got %s", last.Op)
	}
	// Find the ADD and MUL instructions and check MUL precedes ADD.
	mulIdx, addIdx := -1, -1
	for i, instr := range entry.Instructions {
		switch instr.Op {
		case ir.OpMul:
			mulIdx = i
		case ir.OpAdd:
			addIdx = i
		}
	}
	if mulIdx == -1 || addIdx == -1 || mulIdx > addIdx {
		t.Fatalf("expected MUL before ADD, got mul=%d add=%d", mulIdx, addIdx)
	}
}
