package vmrun

import (
	"github.com/mootwise/he3vm/internal/henc"
	"github.com/mootwise/he3vm/objsys"
	"github.com/mootwise/he3vm/registry"
)

// callFrame owns one activation's locals and instruction pointer (spec.md
// §4.8: "each frame owns its locals"). Params occupy the method's first
// ParamCount local slots, matching translate.Translator's symbol table,
// which hands out param and local slots from the same counter.
type callFrame struct {
	module registry.ModuleID
	method *objsys.Method
	locals []objsys.Value

	r          *henc.Reader
	stackBase  int // operand stack depth on entry, for unwinding
}

func newCallFrame(mod registry.ModuleID, m *objsys.Method, args []objsys.Value, stackBase int) *callFrame {
	locals := make([]objsys.Value, m.LocalCount)
	copy(locals, args)
	for i := len(args); i < len(locals); i++ {
		locals[i] = objsys.NullValue()
	}
	return &callFrame{
		module:    mod,
		method:    m,
		locals:    locals,
		r:         henc.NewReader(m.Bytecode),
		stackBase: stackBase,
	}
}
