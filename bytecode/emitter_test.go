package bytecode

import (
	"encoding/binary"
	"testing"

	"github.com/mootwise/he3vm/ast"
	"github.com/mootwise/he3vm/ir"
	"github.com/mootwise/he3vm/translate"
)

func ret(v ast.Expr) *ast.ReturnStmt { return &ast.ReturnStmt{Value: v} }
func intLit(v int64) *ast.LiteralExpr { return &ast.LiteralExpr{Kind: ast.LitInt, I: v} }

// TestEmitByteCountMatchesOperandWidths exercises spec.md §8's round-trip
// law: total emitted bytes equal sigma(1 + operand_width(op)) across every
// lowered instruction.
func TestEmitByteCountMatchesOperandWidths(t *testing.T) {
	fn := &ast.FunctionDecl{
		Name:       "main",
		ReturnType: ast.Type{Name: "integer"},
		Body: &ast.BlockStmt{Stmts: []ast.Stmt{
			&ast.VarDeclStmt{Name: "x", Type: ast.Type{Name: "integer"}, Init: intLit(7)},
			ret(&ast.IdentExpr{Name: "x"}),
		}},
	}

	tr := &translate.Translator{}
	irFn, diags := tr.TranslateFunction(fn)
	if diags.Err() != nil {
		t.Fatalf("unexpected diagnostics: %v", diags.Err())
	}

	em := NewEmitter()
	code, emitDiags := em.EmitFunction(irFn)
	if emitDiags.Err() != nil {
		t.Fatalf("unexpected emit diagnostics: %v", emitDiags.Err())
	}

	want := 0
	for _, id := range irFn.Order {
		for _, instr := range irFn.Blocks[id].Instructions {
			op, ok := MapIROpcode(instr.Op)
			if !ok {
				t.Fatalf("no bytecode mapping for %s", instr.Op)
			}
			want += 1 + OperandWidth(op)
		}
	}

	if len(code.Code) != want {
		t.Fatalf("emitted %d bytes, want %d", len(code.Code), want)
	}
	// LOAD_CONST, STORE_LOCAL, LOAD_LOCAL, RETURN_VALUE.
	wantOps := []Op{OpPushConstant, OpStoreLocal, OpLoadLocal, OpReturnValue}
	pos := 0
	for _, op := range wantOps {
		if code.Code[pos] != byte(op) {
			t.Errorf("at %d: got opcode %d, want %s", pos, code.Code[pos], op)
		}
		pos += 1 + OperandWidth(op)
	}
	if pos != len(code.Code) {
		t.Fatalf("consumed %d bytes, emitted %d", pos, len(code.Code))
	}
}

// TestPushConstantRoutesThroughConstantPool matches the resolution of
// spec.md §9's PUSH_CONSTANT width open question: integer literals are
// interned into the constant pool rather than truncated to 32 bits.
func TestPushConstantRoutesThroughConstantPool(t *testing.T) {
	fn := &ast.FunctionDecl{
		Name:       "big",
		ReturnType: ast.Type{Name: "integer"},
		Body:       &ast.BlockStmt{Stmts: []ast.Stmt{ret(intLit(1 << 40))}},
	}
	tr := &translate.Translator{}
	irFn, diags := tr.TranslateFunction(fn)
	if diags.Err() != nil {
		t.Fatalf("unexpected diagnostics: %v", diags.Err())
	}

	em := NewEmitter()
	if _, emitDiags := em.EmitFunction(irFn); emitDiags.Err() != nil {
		t.Fatalf("unexpected emit diagnostics: %v", emitDiags.Err())
	}

	if em.Constants.Len() != 1 {
		t.Fatalf("expected 1 constant pool entry, got %d", em.Constants.Len())
	}
	c, ok := em.Constants.Get(1)
	if !ok || c.Kind != ConstI64 || c.I64 != 1<<40 {
		t.Fatalf("constant pool entry mismatch: %+v ok=%v", c, ok)
	}
}

// TestStaticCallResolvesNumericMethodID verifies that a static CALL is
// encoded with a numeric method id (resolved via DeclareFunctions), never a
// string-table id — unlike CALLV/CALLI, which stay name-based for runtime
// dispatch.
func TestStaticCallResolvesNumericMethodID(t *testing.T) {
	callee := &ast.FunctionDecl{
		Name:       "helper",
		ReturnType: ast.Type{Name: "integer"},
		Body:       &ast.BlockStmt{Stmts: []ast.Stmt{ret(intLit(1))}},
	}
	caller := &ast.FunctionDecl{
		Name:       "main",
		ReturnType: ast.Type{Name: "integer"},
		Body: &ast.BlockStmt{Stmts: []ast.Stmt{
			ret(&ast.CallExpr{Callee: &ast.IdentExpr{Name: "helper"}}),
		}},
	}

	tr := &translate.Translator{}
	calleeIR, d1 := tr.TranslateFunction(callee)
	if d1.Err() != nil {
		t.Fatalf("unexpected diagnostics: %v", d1.Err())
	}
	callerIR, d2 := tr.TranslateFunction(caller)
	if d2.Err() != nil {
		t.Fatalf("unexpected diagnostics: %v", d2.Err())
	}

	em := NewEmitter()
	em.DeclareFunctions([]*ir.Function{calleeIR, callerIR})

	wantID, ok := em.MethodID("helper")
	if !ok {
		t.Fatalf("expected helper to be pre-declared")
	}

	callerCode, emitDiags := em.EmitFunction(callerIR)
	if emitDiags.Err() != nil {
		t.Fatalf("unexpected emit diagnostics: %v", emitDiags.Err())
	}

	// Find the CALL opcode byte and check its 4-byte operand is the
	// pre-declared numeric method id, not a string-table id.
	found := false
	for i := 0; i < len(callerCode.Code); {
		op := Op(callerCode.Code[i])
		width := OperandWidth(op)
		if op == OpCall {
			got := binary.LittleEndian.Uint32(callerCode.Code[i+1 : i+1+width])
			if got != wantID {
				t.Errorf("CALL operand: got %d want %d", got, wantID)
			}
			found = true
		}
		i += 1 + width
	}
	if !found {
		t.Fatalf("expected a CALL opcode in emitted code")
	}
}
