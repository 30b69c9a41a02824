package translate

import (
	"github.com/mootwise/he3vm/ast"
	"github.com/mootwise/he3vm/herr"
	"github.com/mootwise/he3vm/ir"
)

// lowerBlock walks statements in source order (spec.md §4.2 step 3),
// entering and exiting a lexical scope so declarations shadow correctly.
func (fs *funcState) lowerBlock(blk *ast.BlockStmt) {
	fs.syms.enterScope()
	defer fs.syms.exitScope()
	for _, s := range blk.Stmts {
		fs.lowerStmt(s)
	}
}

func (fs *funcState) lowerStmt(s ast.Stmt) {
	switch n := s.(type) {
	case *ast.VarDeclStmt:
		fs.lowerVarDecl(n)
	case *ast.AssignStmt:
		fs.lowerAssign(n)
	case *ast.ReturnStmt:
		fs.lowerReturn(n)
	case *ast.ExprStmt:
		fs.lowerExpr(n.Expr)
	case *ast.IfStmt:
		fs.lowerIf(n)
	case *ast.WhileStmt:
		fs.lowerWhile(n)
	case *ast.ForStmt:
		fs.lowerFor(n)
	case *ast.BlockStmt:
		fs.lowerBlock(n)
	default:
		p := s.Pos()
		fs.diags.Record(herr.UnsupportedStatement(ast.Kind(s), p.Line, p.Col))
	}
}

func (fs *funcState) lowerVarDecl(n *ast.VarDeclStmt) {
	slot := fs.syms.declare(n.Name, resolveVarType(n.Type))
	if n.Init != nil {
		v := fs.lowerExpr(n.Init)
		fs.b.Emit(ir.OpStoreLocal, loc(n.P), v, localSlotValue(slot))
	}
}

func resolveVarType(t ast.Type) ir.TypeID {
	switch t.Name {
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

func localSlotValue(slot int) ir.Value {
	return ir.I64Value(int64(slot))
}

// lowerAssign implements spec.md §4.2 step 6: lower RHS, then choose the
// STORE_* opcode from the LHS shape.
func (fs *funcState) lowerAssign(n *ast.AssignStmt) {
	rhs := fs.lowerExpr(n.RHS)

	switch lhs := n.LHS.(type) {
	case *ast.IdentExpr:
		sym, ok := fs.syms.lookup(lhs.Name)
		if !ok {
			fs.diags.Record(herr.UndefinedSymbol(lhs.Name, lhs.P.Line, lhs.P.Col))
			return
		}
		fs.b.Emit(ir.OpStoreLocal, loc(n.P), rhs, localSlotValue(sym.slot))
	case *ast.FieldAccessExpr:
		recv := fs.lowerExpr(lhs.Receiver)
		fs.b.Emit(ir.OpStoreField, loc(n.P), recv, ir.StringValue(lhs.Field), rhs)
	case *ast.IndexExpr:
		recv := fs.lowerExpr(lhs.Receiver)
		idx := fs.lowerExpr(lhs.Index)
		fs.b.Emit(ir.OpStoreArray, loc(n.P), recv, idx, rhs)
	default:
		p := n.LHS.Pos()
		fs.diags.Record(herr.UnsupportedExpression("assignment target", p.Line, p.Col))
	}
}

func (fs *funcState) lowerReturn(n *ast.ReturnStmt) {
	if n.Value == nil {
		fs.b.Emit(ir.OpReturn, loc(n.P))
		return
	}
	v := fs.lowerExpr(n.Value)
	fs.b.Emit(ir.OpReturnVal, loc(n.P), v)
}

// lowerIf implements spec.md §4.1's if state machine.
func (fs *funcState) lowerIf(n *ast.IfStmt) {
	cond := fs.lowerExpr(n.Cond)

	thenBlk := fs.b.NewBlock("then")
	mergeBlk := fs.b.NewBlock("merge")
	var elseBlk *ir.BasicBlock
	if n.Else != nil {
		elseBlk = fs.b.NewBlock("else")
		fs.b.EmitJump(ir.OpJmpF, loc(n.P), elseBlk, cond)
	} else {
		fs.b.EmitJump(ir.OpJmpF, loc(n.P), mergeBlk, cond)
	}
	// The not-taken (true) edge must jump to thenBlk explicitly: nested
	// control flow inside n.Then allocates its own blocks after mergeBlk,
	// so thenBlk is not guaranteed to be the physically next block.
	fs.b.EmitJump(ir.OpJmp, loc(n.P), thenBlk)

	fs.b.SetCurrentBlock(thenBlk)
	fs.lowerBlock(n.Then)
	if !fs.b.CurrentBlock().Terminated() {
		fs.b.EmitJump(ir.OpJmp, loc(n.P), mergeBlk)
	}

	if n.Else != nil {
		fs.b.SetCurrentBlock(elseBlk)
		fs.lowerBlock(n.Else)
		if !fs.b.CurrentBlock().Terminated() {
			fs.b.EmitJump(ir.OpJmp, loc(n.P), mergeBlk)
		}
	}

	fs.b.SetCurrentBlock(mergeBlk)
}

// lowerWhile implements spec.md §4.1's while state machine.
func (fs *funcState) lowerWhile(n *ast.WhileStmt) {
	hdr := fs.b.NewBlock("while_hdr")
	body := fs.b.NewBlock("while_body")
	exit := fs.b.NewBlock("while_exit")

	fs.b.EmitJump(ir.OpJmp, loc(n.P), hdr)

	fs.b.SetCurrentBlock(hdr)
	cond := fs.lowerExpr(n.Cond)
	fs.b.EmitJump(ir.OpJmpF, loc(n.P), exit, cond)
	// Explicit not-taken edge: body may not be physically adjacent to hdr
	// once a nested if/while/for inside it pushes body's own blocks later
	// in fn.Order.
	fs.b.EmitJump(ir.OpJmp, loc(n.P), body)

	fs.b.SetCurrentBlock(body)
	fs.lowerBlock(n.Body)
	if !fs.b.CurrentBlock().Terminated() {
		fs.b.EmitJump(ir.OpJmp, loc(n.P), hdr)
	}

	fs.b.SetCurrentBlock(exit)
}

// lowerFor implements spec.md §4.1's for state machine: init -> hdr ->
// (cond JMPF exit) -> body -> step -> hdr, exit.
func (fs *funcState) lowerFor(n *ast.ForStmt) {
	fs.syms.enterScope()
	defer fs.syms.exitScope()

	if n.Init != nil {
		fs.lowerStmt(n.Init)
	}

	hdr := fs.b.NewBlock("for_hdr")
	body := fs.b.NewBlock("for_body")
	exit := fs.b.NewBlock("for_exit")

	fs.b.EmitJump(ir.OpJmp, loc(n.P), hdr)

	fs.b.SetCurrentBlock(hdr)
	if n.Cond != nil {
		cond := fs.lowerExpr(n.Cond)
		fs.b.EmitJump(ir.OpJmpF, loc(n.P), exit, cond)
	}
	// Explicit not-taken edge, for the same reason as lowerWhile: body's
	// own nested blocks can land after exit in fn.Order. This also closes
	// hdr with a terminator when n.Cond is nil, where hdr would otherwise
	// be an empty, unterminated block.
	fs.b.EmitJump(ir.OpJmp, loc(n.P), body)

	fs.b.SetCurrentBlock(body)
	fs.lowerBlock(n.Body)
	if n.Step != nil {
		fs.lowerStmt(n.Step)
	}
	if !fs.b.CurrentBlock().Terminated() {
		fs.b.EmitJump(ir.OpJmp, loc(n.P), hdr)
	}

	fs.b.SetCurrentBlock(exit)
}
