// Package herr provides the structured error type shared by every stage of
// the he3 compiler and VM.
//
// Errors are categorized by Phase (where in the pipeline they occurred) and
// Kind (what went wrong). Compile-side passes accumulate them into a
// Diagnostics list instead of stopping at the first error; VM-side errors
// are returned singly and are fatal to the current invocation.
//
//	err := herr.New(herr.PhaseTranslate, herr.KindUndefinedSymbol).
//		Detail("undefined symbol %q", name).
//		Line(12).
//		Build()
package herr
