package projectfile

import (
	"encoding/json"
	"fmt"

	"github.com/mootwise/he3vm/ast"
)

// stmtJSON/exprJSON decode a kind-tagged node tree into the matching ast.Stmt
// or ast.Expr, one field set per nodeKind() string ast/node.go already
// defines (BlockStmt, VarDeclStmt, AssignStmt, ReturnStmt, ExprStmt, IfStmt,
// WhileStmt, ForStmt, LiteralExpr, IdentExpr, BinaryExpr, UnaryExpr,
// CallExpr, FieldAccessExpr, IndexExpr, NewExpr). A project file is hand- or
// tool-authored, not user source text, so there is no separate lexer/parser
// stage — this is the one translation from file bytes to an ast.Node tree.
type stmtJSON struct {
	Kind string          `json:"kind"`
	Raw  json.RawMessage `json:"-"`
}

func (s *stmtJSON) UnmarshalJSON(data []byte) error {
	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	s.Kind = head.Kind
	s.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (s *stmtJSON) toStmt() (ast.Stmt, error) {
	if s == nil {
		return nil, nil
	}
	switch s.Kind {
	case "BlockStmt":
		var body struct {
			Stmts []*stmtJSON `json:"stmts"`
		}
		if err := json.Unmarshal(s.Raw, &body); err != nil {
			return nil, err
		}
		out := &ast.BlockStmt{}
		for _, st := range body.Stmts {
			child, err := st.toStmt()
			if err != nil {
				return nil, err
			}
			out.Stmts = append(out.Stmts, child)
		}
		return out, nil

	case "VarDeclStmt":
		var body struct {
			Name string    `json:"name"`
			Type string    `json:"type"`
			Init *exprJSON `json:"init"`
		}
		if err := json.Unmarshal(s.Raw, &body); err != nil {
			return nil, err
		}
		init, err := body.Init.toExpr()
		if err != nil {
			return nil, err
		}
		return &ast.VarDeclStmt{Name: body.Name, Type: ast.Type{Name: body.Type}, Init: init}, nil

	case "AssignStmt":
		var body struct {
			LHS *exprJSON `json:"lhs"`
			RHS *exprJSON `json:"rhs"`
		}
		if err := json.Unmarshal(s.Raw, &body); err != nil {
			return nil, err
		}
		lhs, err := body.LHS.toExpr()
		if err != nil {
			return nil, err
		}
		rhs, err := body.RHS.toExpr()
		if err != nil {
			return nil, err
		}
		return &ast.AssignStmt{LHS: lhs, RHS: rhs}, nil

	case "ReturnStmt":
		var body struct {
			Value *exprJSON `json:"value"`
		}
		if err := json.Unmarshal(s.Raw, &body); err != nil {
			return nil, err
		}
		val, err := body.Value.toExpr()
		if err != nil {
			return nil, err
		}
		return &ast.ReturnStmt{Value: val}, nil

	case "ExprStmt":
		var body struct {
			Expr *exprJSON `json:"expr"`
		}
		if err := json.Unmarshal(s.Raw, &body); err != nil {
			return nil, err
		}
		e, err := body.Expr.toExpr()
		if err != nil {
			return nil, err
		}
		return &ast.ExprStmt{Expr: e}, nil

	case "IfStmt":
		var body struct {
			Cond *exprJSON `json:"cond"`
			Then *stmtJSON `json:"then"`
			Else *stmtJSON `json:"else"`
		}
		if err := json.Unmarshal(s.Raw, &body); err != nil {
			return nil, err
		}
		cond, err := body.Cond.toExpr()
		if err != nil {
			return nil, err
		}
		then, err := body.Then.toStmt()
		if err != nil {
			return nil, err
		}
		thenBlock, ok := then.(*ast.BlockStmt)
		if !ok {
			return nil, fmt.Errorf("IfStmt.then must be a BlockStmt, got %T", then)
		}
		out := &ast.IfStmt{Cond: cond, Then: thenBlock}
		if body.Else != nil {
			els, err := body.Else.toStmt()
			if err != nil {
				return nil, err
			}
			elsBlock, ok := els.(*ast.BlockStmt)
			if !ok {
				return nil, fmt.Errorf("IfStmt.else must be a BlockStmt, got %T", els)
			}
			out.Else = elsBlock
		}
		return out, nil

	case "WhileStmt":
		var body struct {
			Cond *exprJSON `json:"cond"`
			Body *stmtJSON `json:"body"`
		}
		if err := json.Unmarshal(s.Raw, &body); err != nil {
			return nil, err
		}
		cond, err := body.Cond.toExpr()
		if err != nil {
			return nil, err
		}
		bodyStmt, err := body.Body.toStmt()
		if err != nil {
			return nil, err
		}
		block, ok := bodyStmt.(*ast.BlockStmt)
		if !ok {
			return nil, fmt.Errorf("WhileStmt.body must be a BlockStmt, got %T", bodyStmt)
		}
		return &ast.WhileStmt{Cond: cond, Body: block}, nil

	case "ForStmt":
		var body struct {
			Init *stmtJSON `json:"init"`
			Cond *exprJSON `json:"cond"`
			Step *stmtJSON `json:"step"`
			Body *stmtJSON `json:"body"`
		}
		if err := json.Unmarshal(s.Raw, &body); err != nil {
			return nil, err
		}
		out := &ast.ForStmt{}
		if body.Init != nil {
			init, err := body.Init.toStmt()
			if err != nil {
				return nil, err
			}
			out.Init = init
		}
		cond, err := body.Cond.toExpr()
		if err != nil {
			return nil, err
		}
		out.Cond = cond
		if body.Step != nil {
			step, err := body.Step.toStmt()
			if err != nil {
				return nil, err
			}
			out.Step = step
		}
		bodyStmt, err := body.Body.toStmt()
		if err != nil {
			return nil, err
		}
		block, ok := bodyStmt.(*ast.BlockStmt)
		if !ok {
			return nil, fmt.Errorf("ForStmt.body must be a BlockStmt, got %T", bodyStmt)
		}
		out.Body = block
		return out, nil

	default:
		return nil, fmt.Errorf("unknown statement kind %q", s.Kind)
	}
}

type exprJSON struct {
	Kind string          `json:"kind"`
	Raw  json.RawMessage `json:"-"`
}

func (e *exprJSON) UnmarshalJSON(data []byte) error {
	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	e.Kind = head.Kind
	e.Raw = append(json.RawMessage(nil), data...)
	return nil
}

var binaryOps = map[string]ast.BinaryOp{
	"add": ast.BinAdd, "sub": ast.BinSub, "mul": ast.BinMul, "div": ast.BinDiv, "mod": ast.BinMod,
	"eq": ast.BinEq, "ne": ast.BinNe, "lt": ast.BinLt, "le": ast.BinLe, "gt": ast.BinGt, "ge": ast.BinGe,
	"and": ast.BinAnd, "or": ast.BinOr,
}

var unaryOps = map[string]ast.UnaryOp{
	"neg": ast.UnaryNeg, "not": ast.UnaryNot,
}

func (e *exprJSON) toExpr() (ast.Expr, error) {
	if e == nil {
		return nil, nil
	}
	switch e.Kind {
	case "LiteralExpr":
		var body struct {
			LitKind string  `json:"lit_kind"`
			I       int64   `json:"i"`
			F       float64 `json:"f"`
			B       bool    `json:"b"`
			S       string  `json:"s"`
		}
		if err := json.Unmarshal(e.Raw, &body); err != nil {
			return nil, err
		}
		out := &ast.LiteralExpr{I: body.I, F: body.F, B: body.B, S: body.S}
		switch body.LitKind {
		case "int":
			out.Kind = ast.LitInt
		case "float":
			out.Kind = ast.LitFloat
		case "bool":
			out.Kind = ast.LitBool
		case "string":
			out.Kind = ast.LitString
		case "null":
			out.Kind = ast.LitNull
		default:
			return nil, fmt.Errorf("unknown literal kind %q", body.LitKind)
		}
		return out, nil

	case "IdentExpr":
		var body struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(e.Raw, &body); err != nil {
			return nil, err
		}
		return &ast.IdentExpr{Name: body.Name}, nil

	case "BinaryExpr":
		var body struct {
			Op    string    `json:"op"`
			Left  *exprJSON `json:"left"`
			Right *exprJSON `json:"right"`
		}
		if err := json.Unmarshal(e.Raw, &body); err != nil {
			return nil, err
		}
		op, ok := binaryOps[body.Op]
		if !ok {
			return nil, fmt.Errorf("unknown binary op %q", body.Op)
		}
		left, err := body.Left.toExpr()
		if err != nil {
			return nil, err
		}
		right, err := body.Right.toExpr()
		if err != nil {
			return nil, err
		}
		return &ast.BinaryExpr{Op: op, Left: left, Right: right}, nil

	case "UnaryExpr":
		var body struct {
			Op      string    `json:"op"`
			Operand *exprJSON `json:"operand"`
		}
		if err := json.Unmarshal(e.Raw, &body); err != nil {
			return nil, err
		}
		op, ok := unaryOps[body.Op]
		if !ok {
			return nil, fmt.Errorf("unknown unary op %q", body.Op)
		}
		operand, err := body.Operand.toExpr()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: op, Operand: operand}, nil

	case "CallExpr":
		var body struct {
			Callee *exprJSON  `json:"callee"`
			Args   []exprJSON `json:"args"`
		}
		if err := json.Unmarshal(e.Raw, &body); err != nil {
			return nil, err
		}
		callee, err := body.Callee.toExpr()
		if err != nil {
			return nil, err
		}
		out := &ast.CallExpr{Callee: callee}
		for i := range body.Args {
			arg, err := body.Args[i].toExpr()
			if err != nil {
				return nil, err
			}
			out.Args = append(out.Args, arg)
		}
		return out, nil

	case "FieldAccessExpr":
		var body struct {
			Receiver *exprJSON `json:"receiver"`
			Field    string    `json:"field"`
		}
		if err := json.Unmarshal(e.Raw, &body); err != nil {
			return nil, err
		}
		recv, err := body.Receiver.toExpr()
		if err != nil {
			return nil, err
		}
		return &ast.FieldAccessExpr{Receiver: recv, Field: body.Field}, nil

	case "IndexExpr":
		var body struct {
			Receiver *exprJSON `json:"receiver"`
			Index    *exprJSON `json:"index"`
		}
		if err := json.Unmarshal(e.Raw, &body); err != nil {
			return nil, err
		}
		recv, err := body.Receiver.toExpr()
		if err != nil {
			return nil, err
		}
		idx, err := body.Index.toExpr()
		if err != nil {
			return nil, err
		}
		return &ast.IndexExpr{Receiver: recv, Index: idx}, nil

	case "NewExpr":
		var body struct {
			ClassName string     `json:"class_name"`
			Args      []exprJSON `json:"args"`
		}
		if err := json.Unmarshal(e.Raw, &body); err != nil {
			return nil, err
		}
		out := &ast.NewExpr{ClassName: body.ClassName}
		for i := range body.Args {
			arg, err := body.Args[i].toExpr()
			if err != nil {
				return nil, err
			}
			out.Args = append(out.Args, arg)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unknown expression kind %q", e.Kind)
	}
}
