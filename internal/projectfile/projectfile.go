// Package projectfile decodes the JSON project file he3build compile takes
// as input. spec.md treats lexing/parsing He3 source text as out of scope
// (no grammar is specified); this package is the CLI-local substitute that
// lets a real binary exercise the translate/emit/package pipeline end to
// end from a file on disk, the same way every existing test builds an
// ast.FunctionDecl tree directly in Go.
package projectfile

import (
	"encoding/json"
	"fmt"

	"github.com/mootwise/he3vm/ast"
	"github.com/mootwise/he3vm/moduleio"
)

// Project is the root of a project file: module metadata plus every class
// declaration to compile into one module image.
type Project struct {
	ModuleName      string      `json:"module_name"`
	ModuleVersion   string      `json:"module_version"`
	Executable      bool        `json:"executable"`
	Debug           bool        `json:"debug"`
	Optimised       bool        `json:"optimised"`
	EntryPointClass string      `json:"entry_point_class"`
	EntryPointName  string      `json:"entry_point_name"`
	Classes         []ClassDecl `json:"classes"`
}

// ClassDecl mirrors moduleio.CompiledClass at the source level, prior to
// translation: its methods carry an ast.FunctionDecl body instead of
// emitted bytecode.
type ClassDecl struct {
	Name       string       `json:"name"`
	Parent     string       `json:"parent"`
	Interfaces []string     `json:"interfaces"`
	Kind       string       `json:"kind"` // "class" or "interface"
	Fields     []FieldDecl  `json:"fields"`
	Methods    []MethodDecl `json:"methods"`
}

// FieldDecl is one field declaration.
type FieldDecl struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Static bool   `json:"static"`
}

// MethodDecl is one method declaration: signature plus an ast.FunctionDecl
// body ready for translate.Translator.TranslateFunction. Body is nil for an
// abstract or native method.
type MethodDecl struct {
	Name       string      `json:"name"`
	Params     []ParamDecl `json:"params"`
	ReturnType string      `json:"return_type"`
	Static     bool        `json:"static"`
	Virtual    bool        `json:"virtual"`
	Abstract   bool        `json:"abstract"`
	Native     bool        `json:"native"`
	Body       *stmtJSON   `json:"body"`
}

// ParamDecl is one parameter declaration.
type ParamDecl struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TypeFlags returns the moduleio.TypeFlag bits for this class's kind.
func (c ClassDecl) TypeFlags() uint32 {
	if c.Kind == "interface" {
		return moduleio.TypeFlagInterface
	}
	return moduleio.TypeFlagClass
}

// Decode parses a project file's JSON bytes.
func Decode(data []byte) (*Project, error) {
	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("projectfile: %w", err)
	}
	return &p, nil
}

// FunctionDecl builds the ast.FunctionDecl that translate.Translator
// expects from this method declaration.
func (m MethodDecl) FunctionDecl() (*ast.FunctionDecl, error) {
	fn := &ast.FunctionDecl{
		Name:       m.Name,
		ReturnType: ast.Type{Name: m.ReturnType},
		Static:     m.Static,
		Virtual:    m.Virtual,
	}
	for _, p := range m.Params {
		fn.Params = append(fn.Params, ast.Param{Name: p.Name, Type: ast.Type{Name: p.Type}})
	}
	if m.Body == nil {
		fn.Body = &ast.BlockStmt{}
		return fn, nil
	}
	body, err := m.Body.toStmt()
	if err != nil {
		return nil, fmt.Errorf("method %q: %w", m.Name, err)
	}
	block, ok := body.(*ast.BlockStmt)
	if !ok {
		return nil, fmt.Errorf("method %q: body must be a BlockStmt, got %T", m.Name, body)
	}
	fn.Body = block
	return fn, nil
}
