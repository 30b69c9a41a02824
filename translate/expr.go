package translate

import (
	"github.com/mootwise/he3vm/ast"
	"github.com/mootwise/he3vm/herr"
	"github.com/mootwise/he3vm/ir"
)

// lowerExpr is a depth-first post-order walk (spec.md §4.2 step 4): children
// emit instructions that push their result onto the conceptual stack, then
// the parent emits the operator instruction consuming those results.
func (fs *funcState) lowerExpr(e ast.Expr) ir.Value {
	switch n := e.(type) {
	case *ast.LiteralExpr:
		return fs.lowerLiteral(n)
	case *ast.IdentExpr:
		return fs.lowerIdent(n)
	case *ast.BinaryExpr:
		return fs.lowerBinary(n)
	case *ast.UnaryExpr:
		return fs.lowerUnary(n)
	case *ast.CallExpr:
		return fs.lowerCall(n)
	case *ast.FieldAccessExpr:
		recv := fs.lowerExpr(n.Receiver)
		return fs.b.EmitWithResult(ir.OpLoadField, loc(n.P), recv, ir.StringValue(n.Field))
	case *ast.IndexExpr:
		recv := fs.lowerExpr(n.Receiver)
		idx := fs.lowerExpr(n.Index)
		return fs.b.EmitWithResult(ir.OpLoadArray, loc(n.P), recv, idx)
	case *ast.NewExpr:
		return fs.lowerNew(n)
	default:
		p := e.Pos()
		fs.diags.Record(herr.UnsupportedExpression(ast.Kind(e), p.Line, p.Col))
		return ir.NullValue()
	}
}

// lowerLiteral implements spec.md §4.2's literal-lowering rule: int -> I64,
// float -> F64, bool -> BOOL, string -> deferred-interned STRING_ID, null ->
// NULL.
func (fs *funcState) lowerLiteral(n *ast.LiteralExpr) ir.Value {
	var v ir.Value
	switch n.Kind {
	case ast.LitInt:
		v = ir.I64Value(n.I)
	case ast.LitFloat:
		v = ir.F64Value(n.F)
	case ast.LitBool:
		v = ir.BoolValue(n.B)
	case ast.LitString:
		v = ir.StringValue(n.S)
	case ast.LitNull:
		v = ir.NullValue()
	}
	return fs.b.EmitWithResult(ir.OpLoadConst, loc(n.P), v)
}

// lowerIdent resolves name against the symbol table; an unresolved
// identifier is an UndefinedSymbol error (spec.md §4.2 step 6).
func (fs *funcState) lowerIdent(n *ast.IdentExpr) ir.Value {
	sym, ok := fs.syms.lookup(n.Name)
	if !ok {
		fs.diags.Record(herr.UndefinedSymbol(n.Name, n.P.Line, n.P.Col))
		return ir.NullValue()
	}
	return fs.b.EmitWithResult(ir.OpLoadLocal, loc(n.P), localSlotValue(sym.slot))
}

var binOpcode = map[ast.BinaryOp]ir.Opcode{
	ast.BinAdd: ir.OpAdd, ast.BinSub: ir.OpSub, ast.BinMul: ir.OpMul,
	ast.BinDiv: ir.OpDiv, ast.BinMod: ir.OpMod,
	ast.BinEq: ir.OpEq, ast.BinNe: ir.OpNe, ast.BinLt: ir.OpLt,
	ast.BinLe: ir.OpLe, ast.BinGt: ir.OpGt, ast.BinGe: ir.OpGe,
	ast.BinAnd: ir.OpAnd, ast.BinOr: ir.OpOr,
}

// lowerBinary lowers operator precedence as already resolved by the parser
// (spec.md §8 scenario 2: "Operator precedence is lowered in C2, not C3" —
// here, by the shape of the AST the parser produced, not by this function).
func (fs *funcState) lowerBinary(n *ast.BinaryExpr) ir.Value {
	l := fs.lowerExpr(n.Left)
	r := fs.lowerExpr(n.Right)
	op, ok := binOpcode[n.Op]
	if !ok {
		fs.diags.Record(herr.UnsupportedExpression("binary operator", n.P.Line, n.P.Col))
		return ir.NullValue()
	}
	return fs.b.EmitWithResult(op, loc(n.P), l, r)
}

func (fs *funcState) lowerUnary(n *ast.UnaryExpr) ir.Value {
	v := fs.lowerExpr(n.Operand)
	switch n.Op {
	case ast.UnaryNeg:
		return fs.b.EmitWithResult(ir.OpNeg, loc(n.P), v)
	case ast.UnaryNot:
		return fs.b.EmitWithResult(ir.OpNot, loc(n.P), v)
	default:
		fs.diags.Record(herr.UnsupportedExpression("unary operator", n.P.Line, n.P.Col))
		return ir.NullValue()
	}
}

// lowerCall implements the operand-stack calling convention chosen for
// spec.md §9's open question: arguments are pushed in order, then the call
// opcode is emitted carrying the callee name as its sole IR operand (the
// bytecode emitter resolves it to a numeric method id, see package bytecode).
// A call through a field access (obj.method(...)) lowers to CALLV; a bare
// name lowers to a static CALL.
//
// CALLV pushes arguments before the receiver, not after: vmrun's virtual
// dispatch has to pop the receiver first to learn which class (and so which
// method, and so which ParamCount) it's calling before it can know how many
// argument words sit below it on the stack. Evaluating the receiver last
// keeps it on top.
func (fs *funcState) lowerCall(n *ast.CallExpr) ir.Value {
	switch callee := n.Callee.(type) {
	case *ast.FieldAccessExpr:
		var args []ir.Value
		for _, a := range n.Args {
			args = append(args, fs.lowerExpr(a))
		}
		recv := fs.lowerExpr(callee.Receiver)
		args = append(args, recv, ir.StringValue(callee.Field))
		return fs.b.EmitWithResult(ir.OpCallV, loc(n.P), args...)
	case *ast.IdentExpr:
		var args []ir.Value
		for _, a := range n.Args {
			args = append(args, fs.lowerExpr(a))
		}
		args = append(args, ir.StringValue(callee.Name))
		return fs.b.EmitWithResult(ir.OpCall, loc(n.P), args...)
	default:
		fs.diags.Record(herr.UnsupportedExpression("call target", n.P.Line, n.P.Col))
		return ir.NullValue()
	}
}

func (fs *funcState) lowerNew(n *ast.NewExpr) ir.Value {
	for _, a := range n.Args {
		fs.lowerExpr(a)
	}
	return fs.b.EmitWithResult(ir.OpNew, loc(n.P), ir.StringValue(n.ClassName))
}
