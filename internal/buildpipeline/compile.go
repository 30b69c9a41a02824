// Package buildpipeline wires projectfile -> translate -> bytecode -> moduleio
// into the single call cmd/he3build's compile subcommand needs, the same
// translate/emit/package sequence moduleio/packager_test.go and
// vmrun/vmrun_test.go already exercise piecemeal in tests.
package buildpipeline

import (
	"github.com/mootwise/he3vm/bytecode"
	"github.com/mootwise/he3vm/herr"
	"github.com/mootwise/he3vm/internal/projectfile"
	"github.com/mootwise/he3vm/ir"
	"github.com/mootwise/he3vm/moduleio"
	"github.com/mootwise/he3vm/translate"
)

// Compile translates and packages proj into one module image. All methods
// across every class share a single bytecode.Emitter, so a static CALL can
// name any other declared method by its source name regardless of which
// class declares it — matching the flat per-project method namespace
// spec.md §4.4's entry-point lookup already assumes ("first method by
// declaration order" has no notion of class-qualified names either).
func Compile(proj *projectfile.Project) ([]byte, *herr.Diagnostics) {
	var diags herr.Diagnostics
	em := bytecode.NewEmitter()
	tr := &translate.Translator{}

	type pending struct {
		classIdx, methodIdx int
		irFn                *ir.Function
	}

	classes := make([]moduleio.CompiledClass, len(proj.Classes))
	var toEmit []pending

	for ci, cd := range proj.Classes {
		cc := moduleio.CompiledClass{
			Name:       cd.Name,
			Parent:     cd.Parent,
			Interfaces: cd.Interfaces,
			Flags:      cd.TypeFlags(),
		}
		for _, fd := range cd.Fields {
			cc.Fields = append(cc.Fields, moduleio.CompiledField{
				Name:   fd.Name,
				Type:   tr.ResolveType(fd.Type),
				Static: fd.Static,
			})
		}
		cc.Methods = make([]moduleio.CompiledMethod, len(cd.Methods))
		for mi, md := range cd.Methods {
			cm := moduleio.CompiledMethod{
				Name:       md.Name,
				ReturnType: tr.ResolveType(md.ReturnType),
				ParamCount: len(md.Params),
				Static:     md.Static,
				Virtual:    md.Virtual,
				Abstract:   md.Abstract,
				Native:     md.Native,
			}
			cc.Methods[mi] = cm

			if md.Abstract || md.Native {
				continue
			}
			fn, err := md.FunctionDecl()
			if err != nil {
				diags.Record(herr.New(herr.PhaseTranslate, herr.KindUnsupportedStmt).
					Detail("class %q: %v", cd.Name, err).Build())
				continue
			}
			irFn, fnDiags := tr.TranslateFunction(fn)
			for _, e := range fnDiags.Errors() {
				diags.Record(e)
			}
			toEmit = append(toEmit, pending{classIdx: ci, methodIdx: mi, irFn: irFn})
		}
		classes[ci] = cc
	}

	if diags.Len() > 0 {
		return nil, &diags
	}

	irFns := make([]*ir.Function, len(toEmit))
	for i, p := range toEmit {
		irFns[i] = p.irFn
	}
	em.DeclareFunctions(irFns)

	for _, p := range toEmit {
		code, emitDiags := em.EmitFunction(p.irFn)
		for _, e := range emitDiags.Errors() {
			diags.Record(e)
		}
		m := &classes[p.classIdx].Methods[p.methodIdx]
		m.Code = code
		m.LocalCount = p.irFn.LocalCount
	}

	if diags.Len() > 0 {
		return nil, &diags
	}

	unit := moduleio.CompiledUnit{
		Classes:   classes,
		Strings:   em.Strings,
		Constants: em.Constants,
	}
	meta := moduleio.ProjectMetadata{
		ModuleName:      proj.ModuleName,
		ModuleVersion:   proj.ModuleVersion,
		Executable:      proj.Executable,
		Debug:           proj.Debug,
		Optimised:       proj.Optimised,
		EntryPointClass: proj.EntryPointClass,
		EntryPointName:  proj.EntryPointName,
	}
	data, pdiags := moduleio.Package([]moduleio.CompiledUnit{unit}, meta)
	for _, e := range pdiags.Errors() {
		diags.Record(e)
	}
	if diags.Len() > 0 {
		return nil, &diags
	}
	return data, &diags
}
