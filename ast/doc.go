// Package ast defines the narrow AST surface the translator (package
// translate) consumes. Lexing and parsing are out-of-scope collaborators
// per spec.md §1 — this package only fixes the shape a parser must hand the
// translator: statement and expression nodes as a tagged sum type, dispatched
// by a type switch rather than a visitor interface (spec.md §9's design note
// prefers pattern matching over a vtable-of-function-pointers).
package ast
