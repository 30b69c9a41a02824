// Package bytecode implements C3: mapping IR opcodes to the numeric,
// fixed-width bytecode of spec.md §6.3, interning strings and constants, and
// assigning per-unit method ids. The type/method/field tables themselves are
// built by the module packager (package moduleio).
package bytecode
