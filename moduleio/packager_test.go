package moduleio

import (
	"testing"

	"github.com/mootwise/he3vm/ast"
	"github.com/mootwise/he3vm/bytecode"
	"github.com/mootwise/he3vm/ir"
	"github.com/mootwise/he3vm/translate"
)

func compileMethod(t *testing.T, em *bytecode.Emitter, irFn *ir.Function, paramCount int) CompiledMethod {
	t.Helper()
	code, emitDiags := em.EmitFunction(irFn)
	if emitDiags.Err() != nil {
		t.Fatalf("emit %s: %v", irFn.Name, emitDiags.Err())
	}
	return CompiledMethod{
		Name:       irFn.Name,
		Code:       code,
		ReturnType: irFn.ReturnType,
		ParamCount: paramCount,
		LocalCount: irFn.LocalCount,
		Static:     true,
	}
}

func ret(v ast.Expr) *ast.ReturnStmt   { return &ast.ReturnStmt{Value: v} }
func intLit(v int64) *ast.LiteralExpr { return &ast.LiteralExpr{Kind: ast.LitInt, I: v} }

// TestPackageLoadRoundTrip exercises spec.md §8 scenario 4: pack a small
// unit, load it back, and verify the header, string/type/method tables, and
// that a static CALL's remapped method id resolves correctly.
func TestPackageLoadRoundTrip(t *testing.T) {
	em := bytecode.NewEmitter()

	calleeDecl := &ast.FunctionDecl{
		Name:       "helper",
		ReturnType: ast.Type{Name: "integer"},
		Body:       &ast.BlockStmt{Stmts: []ast.Stmt{ret(intLit(42))}},
	}
	callerDecl := &ast.FunctionDecl{
		Name:       "main",
		ReturnType: ast.Type{Name: "integer"},
		Body: &ast.BlockStmt{Stmts: []ast.Stmt{
			ret(&ast.CallExpr{Callee: &ast.IdentExpr{Name: "helper"}}),
		}},
	}

	tr := &translate.Translator{}
	calleeIR, d1 := tr.TranslateFunction(calleeDecl)
	if d1.Err() != nil {
		t.Fatalf("translate helper: %v", d1.Err())
	}
	callerIR, d2 := tr.TranslateFunction(callerDecl)
	if d2.Err() != nil {
		t.Fatalf("translate main: %v", d2.Err())
	}
	em.DeclareFunctions([]*ir.Function{calleeIR, callerIR})

	calleeMethod := compileMethod(t, em, calleeIR, 0)
	callerMethod := compileMethod(t, em, callerIR, 0)

	unit := CompiledUnit{
		Classes: []CompiledClass{
			{
				Name:  "Program",
				Flags: TypeFlagClass,
				Methods: []CompiledMethod{
					calleeMethod,
					callerMethod,
				},
			},
		},
		Strings:   em.Strings,
		Constants: em.Constants,
	}

	meta := ProjectMetadata{
		ModuleName:      "demo",
		ModuleVersion:   "1.0.0",
		Executable:      true,
		EntryPointClass: "Program",
		EntryPointName:  "main",
	}

	data, diags := Package([]CompiledUnit{unit}, meta)
	if diags.Err() != nil {
		t.Fatalf("unexpected packaging diagnostics: %v", diags.Err())
	}

	img, err := Load(data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if img.ModuleName != "demo" {
		t.Errorf("ModuleName: got %q want %q", img.ModuleName, "demo")
	}
	if img.ModuleVersion != "1.0.0" {
		t.Errorf("ModuleVersion: got %q want %q", img.ModuleVersion, "1.0.0")
	}
	if img.Header.Flags&FlagExecutable == 0 {
		t.Errorf("expected FlagExecutable set")
	}

	// Sys is always prepended (spec.md §4.4), so Program is the second type.
	if len(img.Types) != 2 {
		t.Fatalf("expected 2 types (Sys + Program), got %d", len(img.Types))
	}
	if got := stringByOffset(img, img.Types[0].NameOffset); got != sysClassName {
		t.Errorf("first type: got %q want %q", got, sysClassName)
	}
	if got := stringByOffset(img, img.Types[1].NameOffset); got != "Program" {
		t.Errorf("second type: got %q want %q", got, "Program")
	}

	// Sys.println plus helper/main == 3 methods total.
	if len(img.Methods) != 3 {
		t.Fatalf("expected 3 methods, got %d", len(img.Methods))
	}

	var mainEntry, helperEntry *MethodEntry
	for i := range img.Methods {
		switch stringByOffset(img, img.Methods[i].NameOffset) {
		case "main":
			mainEntry = &img.Methods[i]
		case "helper":
			helperEntry = &img.Methods[i]
		}
	}
	if mainEntry == nil || helperEntry == nil {
		t.Fatalf("expected both main and helper methods in the method table")
	}
	if img.Header.EntryPointMethodID != mainEntry.MethodID {
		t.Errorf("entry point: got %d want %d", img.Header.EntryPointMethodID, mainEntry.MethodID)
	}

	// The CALL operand inside main's bytecode must have been rewritten to
	// helper's final global method id.
	mainCode := img.Bytecode[mainEntry.BytecodeOffset : mainEntry.BytecodeOffset+mainEntry.BytecodeSize]
	if !bytesContainMethodID(mainCode, helperEntry.MethodID) {
		t.Errorf("expected main's bytecode to reference helper's method id %d", helperEntry.MethodID)
	}
}

// TestPackageDuplicateType verifies that two units declaring the same class
// name surface a DuplicateType diagnostic rather than silently corrupting
// the type table.
func TestPackageDuplicateType(t *testing.T) {
	em := bytecode.NewEmitter()
	unit := CompiledUnit{
		Classes: []CompiledClass{
			{Name: "Widget", Flags: TypeFlagClass},
			{Name: "Widget", Flags: TypeFlagClass},
		},
		Strings:   em.Strings,
		Constants: em.Constants,
	}

	_, diags := Package([]CompiledUnit{unit}, ProjectMetadata{ModuleName: "dup", ModuleVersion: "1.0.0"})
	if diags.Err() == nil {
		t.Fatalf("expected a DuplicateType diagnostic")
	}
	if diags.Len() != 1 {
		t.Fatalf("expected exactly 1 diagnostic, got %d", diags.Len())
	}
}

// TestPackageAlwaysPrependsSys verifies the implicit Sys class (spec.md
// §4.4) is present even for a unit with no classes at all.
func TestPackageAlwaysPrependsSys(t *testing.T) {
	data, diags := Package(nil, ProjectMetadata{ModuleName: "empty", ModuleVersion: "1.0.0"})
	if diags.Err() != nil {
		t.Fatalf("unexpected diagnostics: %v", diags.Err())
	}
	img, err := Load(data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(img.Types) != 1 {
		t.Fatalf("expected exactly the Sys type, got %d", len(img.Types))
	}
	if got := stringByOffset(img, img.Types[0].NameOffset); got != sysClassName {
		t.Errorf("type name: got %q want %q", got, sysClassName)
	}
	if len(img.Methods) != 1 {
		t.Fatalf("expected exactly Sys.println, got %d", len(img.Methods))
	}
	if img.Methods[0].Flags&MethodFlagNative == 0 {
		t.Errorf("expected Sys.println to carry MethodFlagNative")
	}
}

// stringByOffset resolves one of TypeEntry/MethodEntry/FieldEntry's
// NameOffset fields, which despite the name are 1-based StringTable ids
// (the packager writes strs.Intern(name) directly), not byte offsets into
// the string data blob — only Header.ModuleNameOff/ModuleVerOff are true
// blob offsets.
func stringByOffset(img *Image, id uint32) string {
	if id == 0 || int(id) > len(img.Strings) {
		return ""
	}
	return img.Strings[id-1]
}

func bytesContainMethodID(code []byte, id uint32) bool {
	for i := 0; i+4 <= len(code); i++ {
		v := uint32(code[i]) | uint32(code[i+1])<<8 | uint32(code[i+2])<<16 | uint32(code[i+3])<<24
		if v == id {
			return true
		}
	}
	return false
}
