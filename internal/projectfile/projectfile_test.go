package projectfile

import "testing"

func TestDecodeRoundTripsAFunctionBody(t *testing.T) {
	src := []byte(`{
		"module_name": "hello",
		"module_version": "1.0.0",
		"executable": true,
		"entry_point_class": "Program",
		"entry_point_name": "main",
		"classes": [
			{
				"name": "Program",
				"kind": "class",
				"methods": [
					{
						"name": "main",
						"return_type": "integer",
						"static": true,
						"body": {
							"kind": "BlockStmt",
							"stmts": [
								{
									"kind": "ReturnStmt",
									"value": {
										"kind": "BinaryExpr",
										"op": "add",
										"left": {"kind": "LiteralExpr", "lit_kind": "int", "i": 19},
										"right": {"kind": "LiteralExpr", "lit_kind": "int", "i": 23}
									}
								}
							]
						}
					}
				]
			}
		]
	}`)

	proj, err := Decode(src)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if proj.ModuleName != "hello" || len(proj.Classes) != 1 {
		t.Fatalf("unexpected project: %+v", proj)
	}
	method := proj.Classes[0].Methods[0]
	fn, err := method.FunctionDecl()
	if err != nil {
		t.Fatalf("FunctionDecl: %v", err)
	}
	if len(fn.Body.Stmts) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(fn.Body.Stmts))
	}
}

func TestDecodeRejectsUnknownStatementKind(t *testing.T) {
	src := []byte(`{
		"classes": [{
			"name": "Program",
			"methods": [{
				"name": "main",
				"body": {"kind": "BogusStmt"}
			}]
		}]
	}`)
	proj, err := Decode(src)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, err := proj.Classes[0].Methods[0].FunctionDecl(); err == nil {
		t.Fatalf("expected an error for an unknown statement kind")
	}
}
