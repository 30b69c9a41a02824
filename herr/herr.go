package herr

import (
	"fmt"
	"strings"
)

// Phase identifies which pipeline stage raised the error.
type Phase string

const (
	PhaseLex       Phase = "lex"
	PhaseParse     Phase = "parse"
	PhaseTranslate Phase = "translate" // C2: AST -> IR
	PhaseEmit      Phase = "emit"      // C3: IR -> bytecode
	PhasePackage   Phase = "package"   // C4: packager/linker
	PhaseLoad      Phase = "load"      // C5: module registry load
	PhaseLink      Phase = "link"      // C5/C6: cross-module resolution
	PhaseExecute   Phase = "execute"   // C8: interpreter
	PhaseHeap      Phase = "heap"      // C7: allocator/GC
)

// Kind categorizes the error, per spec.md §7's error taxonomy.
type Kind string

const (
	KindLexical              Kind = "lexical_error"
	KindSyntax               Kind = "syntax_error"
	KindUndefinedSymbol      Kind = "undefined_symbol"
	KindUnsupportedExpr      Kind = "unsupported_expression"
	KindUnsupportedStmt      Kind = "unsupported_statement"
	KindUnknownIrOpcode      Kind = "unknown_ir_opcode"
	KindDuplicateType        Kind = "duplicate_type"
	KindDuplicateMethod      Kind = "duplicate_method"
	KindInvalidModule        Kind = "invalid_module"
	KindStackOverflow        Kind = "stack_overflow"
	KindStackUnderflow       Kind = "stack_underflow"
	KindTypeMismatch         Kind = "type_mismatch"
	KindDivisionByZero       Kind = "division_by_zero"
	KindNullDereference      Kind = "null_dereference"
	KindInvalidOpcode        Kind = "invalid_opcode"
	KindAllocationFailure    Kind = "allocation_failure"
	KindInterrupted          Kind = "interrupted"
	KindNotFound             Kind = "not_found"
	KindIncompatibleVersion  Kind = "incompatible_version"
	KindStructuralError      Kind = "structural_error" // unterminated block (§4.1)
	KindForbiddenOperation   Kind = "forbidden_operation"
)

// Error is the structured error type used throughout the toolchain.
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	File   string
	Line   int
	Col    int
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.File != "" || e.Line != 0 {
		fmt.Fprintf(&b, " at %s:%d:%d", e.File, e.Line, e.Col)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}
	return b.String()
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error's Phase and Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Builder provides fluent, structured error construction.
type Builder struct {
	err Error
}

// New starts building an error for the given phase and kind.
func New(phase Phase, kind Kind) *Builder {
	return &Builder{err: Error{Phase: phase, Kind: kind}}
}

// Cause attaches an underlying error.
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable message, optionally formatted.
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// At sets the source location.
func (b *Builder) At(file string, line, col int) *Builder {
	b.err.File = file
	b.err.Line = line
	b.err.Col = col
	return b
}

// Line sets only the line number (bytecode-offset style locations).
func (b *Builder) Line(line int) *Builder {
	b.err.Line = line
	return b
}

// Build returns the constructed error.
func (b *Builder) Build() *Error {
	e := b.err
	return &e
}

// Convenience one-shot constructors for the most common kinds.

func UndefinedSymbol(name string, line, col int) *Error {
	return New(PhaseTranslate, KindUndefinedSymbol).
		Detail("undefined symbol %q", name).At("", line, col).Build()
}

func UnsupportedExpression(kind string, line, col int) *Error {
	return New(PhaseTranslate, KindUnsupportedExpr).
		Detail("unsupported expression kind %q", kind).At("", line, col).Build()
}

func UnsupportedStatement(kind string, line, col int) *Error {
	return New(PhaseTranslate, KindUnsupportedStmt).
		Detail("unsupported statement kind %q", kind).At("", line, col).Build()
}

func UnknownIrOpcode(op string) *Error {
	return New(PhaseEmit, KindUnknownIrOpcode).
		Detail("no bytecode mapping for IR opcode %q", op).Build()
}

func DuplicateType(name string) *Error {
	return New(PhasePackage, KindDuplicateType).
		Detail("type %q declared in more than one compilation unit", name).Build()
}

func InvalidModule(detail string) *Error {
	return New(PhaseLoad, KindInvalidModule).Detail(detail).Build()
}

func TypeMismatch(op string) *Error {
	return New(PhaseExecute, KindTypeMismatch).
		Detail("operand type mismatch in %s", op).Build()
}

func DivisionByZero(op string) *Error {
	return New(PhaseExecute, KindDivisionByZero).Detail("%s by zero", op).Build()
}

func NullDereference(context string) *Error {
	return New(PhaseExecute, KindNullDereference).Detail(context).Build()
}

func StackOverflow() *Error {
	return New(PhaseExecute, KindStackOverflow).Detail("operand stack capacity exceeded").Build()
}

func StackUnderflow(op string) *Error {
	return New(PhaseExecute, KindStackUnderflow).Detail("%s popped an empty stack", op).Build()
}

func AllocationFailure(size int) *Error {
	return New(PhaseHeap, KindAllocationFailure).
		Detail("no free region fits %d bytes after a GC retry", size).Build()
}

func Interrupted() *Error {
	return New(PhaseExecute, KindInterrupted).Detail("halted by host").Build()
}
