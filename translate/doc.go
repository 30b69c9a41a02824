// Package translate implements C2: walking a parsed AST (package ast) and
// emitting an IR function (package ir) via a per-function symbol table and
// block-structured control flow, per spec.md §4.2.
package translate
