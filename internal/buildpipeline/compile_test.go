package buildpipeline

import (
	"testing"

	"github.com/mootwise/he3vm/internal/projectfile"
	"github.com/mootwise/he3vm/moduleio"
)

// TestCompileProducesALoadableImage matches vmrun/vmrun_test.go's end-to-end
// pattern, but starting from a projectfile.Project (as he3build compile
// receives it) instead of a hand-built ast.FunctionDecl.
func TestCompileProducesALoadableImage(t *testing.T) {
	proj := &projectfile.Project{
		ModuleName:      "hello",
		ModuleVersion:   "1.0.0",
		Executable:      true,
		EntryPointClass: "Program",
		EntryPointName:  "main",
		Classes: []projectfile.ClassDecl{
			{
				Name: "Program",
				Kind: "class",
				Methods: []projectfile.MethodDecl{
					{
						Name:       "main",
						ReturnType: "integer",
						Static:     true,
					},
				},
			},
		},
	}
	// The one method has no body in this test, matching a bare `return;`
	// once FunctionDecl supplies an empty block — Compile must still
	// produce a well-formed image for it, since return-type mismatch
	// diagnostics are translate's job, not this pipeline's.
	proj.Classes[0].Methods[0].ReturnType = "void"

	image, diags := Compile(proj)
	if diags.Err() != nil {
		t.Fatalf("Compile: %v", diags.Err())
	}
	img, err := moduleio.Load(image)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if img.ModuleName != "hello" {
		t.Fatalf("module name: got %q want %q", img.ModuleName, "hello")
	}
	// Sys is always prepended, so Program is the second type.
	if len(img.Types) != 2 {
		t.Fatalf("expected 2 types (Sys, Program), got %d", len(img.Types))
	}
}

func TestCompileRecordsDiagnosticsForBadBody(t *testing.T) {
	proj := &projectfile.Project{
		ModuleName: "bad",
		Classes: []projectfile.ClassDecl{
			{
				Name: "Program",
				Methods: []projectfile.MethodDecl{
					{
						Name: "main",
						Body: nil,
					},
				},
			},
		},
	}
	// A method whose body JSON fails to parse is exercised via
	// projectfile's own tests; here the method has no body and no return
	// type (which translates as a non-void object return), so translate
	// records a missing-return diagnostic and Compile returns it rather
	// than panicking. Compile stops after the translate phase, so the
	// unknown parent class below is never reached by the packager.
	proj.Classes[0].Parent = "Nonexistent"

	_, diags := Compile(proj)
	if diags.Err() == nil {
		t.Fatalf("expected a diagnostic for a body-less non-void method")
	}
}
