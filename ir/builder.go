package ir

import "github.com/mootwise/he3vm/herr"

// Builder is the per-compilation-unit construction state (spec.md §3.1):
// the current function, current block, and monotonically increasing
// temp-id/block-id counters. Emitting an instruction appends it to the
// current block.
type Builder struct {
	fn      *Function
	current *BasicBlock
	diags   herr.Diagnostics
}

// NewBuilder starts building a new function named name with the given
// return type. The first block created becomes the implicit entry block.
func NewBuilder(name string, returnType TypeID) *Builder {
	return &Builder{fn: newFunction(name, returnType)}
}

// Function returns the function under construction.
func (b *Builder) Function() *Function { return b.fn }

// Diagnostics returns the structural errors recorded during building.
func (b *Builder) Diagnostics() *herr.Diagnostics { return &b.diags }

// NewBlock creates a block owned by the current function. The first block
// ever created becomes the entry block automatically.
func (b *Builder) NewBlock(label string) *BasicBlock {
	id := b.fn.nextBlockID
	b.fn.nextBlockID++
	blk := newBlock(id, label)
	b.fn.Blocks[id] = blk
	b.fn.Order = append(b.fn.Order, id)
	if len(b.fn.Order) == 1 {
		blk.Entry = true
		b.fn.EntryID = id
	}
	return blk
}

// SetCurrentBlock makes blk the target of subsequent Emit calls. Per
// spec.md §4.1, every previously-current block must already be closed by a
// terminator; violating this records a structural error rather than
// panicking, so the translator can keep best-effort lowering.
func (b *Builder) SetCurrentBlock(blk *BasicBlock) {
	if b.current != nil && !b.current.Terminated() && b.current.ID != blk.ID {
		b.diags.Record(herr.New(herr.PhaseTranslate, herr.KindStructuralError).
			Detail("block %q (id=%d) closed without a terminator before block %q became current",
				b.current.Label, b.current.ID, blk.Label).Build())
	}
	b.current = blk
}

// CurrentBlock returns the block instructions are currently appended to.
func (b *Builder) CurrentBlock() *BasicBlock { return b.current }

func (b *Builder) nextTemp() uint32 {
	id := b.fn.nextTempID
	b.fn.nextTempID++
	return id
}

// Emit appends an instruction with no result to the current block.
func (b *Builder) Emit(op Opcode, loc SourceLoc, operands ...Value) *Instruction {
	return b.emit(op, loc, nil, BlockNone, false, operands...)
}

// EmitWithResult appends an instruction and allocates a fresh temp-id Value
// as its result, returning that Value so callers can thread it as an operand
// to later instructions (spec.md §3.1: every operand temp-id must have been
// produced by a prior instruction).
func (b *Builder) EmitWithResult(op Opcode, loc SourceLoc, operands ...Value) Value {
	result := TempValue(b.nextTemp())
	b.emit(op, loc, &result, BlockNone, false, operands...)
	return result
}

// EmitJump appends a branch instruction targeting another block and records
// the successor/predecessor edge. For JMPT/JMPF the condition Value is the
// sole operand.
func (b *Builder) EmitJump(op Opcode, loc SourceLoc, target *BasicBlock, operands ...Value) *Instruction {
	instr := b.emit(op, loc, nil, target.ID, true, operands...)
	if b.current != nil {
		b.current.addSucc(b.fn, target.ID)
	}
	return instr
}

func (b *Builder) emit(op Opcode, loc SourceLoc, result *Value, target BlockID, hasJump bool, operands ...Value) *Instruction {
	if b.current == nil {
		b.diags.Record(herr.New(herr.PhaseTranslate, herr.KindStructuralError).
			Detail("emit %s with no current block set", op).Build())
		return nil
	}
	instr := Instruction{
		Op:       op,
		Operands: operands,
		Result:   result,
		Target:   target,
		HasJump:  hasJump,
		Loc:      loc,
	}
	b.current.Instructions = append(b.current.Instructions, instr)
	Logger().Sugar().Debugf("emit %s in block %d of %s", op, b.current.ID, b.fn.Name)
	return &b.current.Instructions[len(b.current.Instructions)-1]
}

// DeclareLocal reserves the next local slot and returns its index, bumping
// the function's LocalCount (spec.md §3.2 Symbol table backing store).
func (b *Builder) DeclareLocal() int {
	idx := b.fn.LocalCount
	b.fn.LocalCount++
	return idx
}

// Finish validates that every non-trailing block is terminated and returns
// the built function together with any structural diagnostics.
func (b *Builder) Finish() (*Function, *herr.Diagnostics) {
	for i, id := range b.fn.Order {
		blk := b.fn.Blocks[id]
		isTrailing := i == len(b.fn.Order)-1
		if !isTrailing && !blk.Terminated() {
			b.diags.Record(herr.New(herr.PhaseTranslate, herr.KindStructuralError).
				Detail("block %q (id=%d) is not the last block and has no terminator", blk.Label, blk.ID).Build())
		}
	}
	markReachable(b.fn)
	markExits(b.fn)
	return b.fn, &b.diags
}

// markReachable runs a BFS from the entry block and sets Reachable on every
// block it visits, leaving dead blocks false (spec.md §3.1 block flags).
func markReachable(fn *Function) {
	if fn.EntryID == BlockNone {
		return
	}
	visited := map[BlockID]bool{fn.EntryID: true}
	queue := []BlockID{fn.EntryID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		blk := fn.Blocks[id]
		blk.Reachable = true
		for succ := range blk.Succs {
			if !visited[succ] {
				visited[succ] = true
				queue = append(queue, succ)
			}
		}
	}
}

// markExits flags blocks that end in RETURN/RETURN_VAL (no successors) as
// exit blocks.
func markExits(fn *Function) {
	for _, blk := range fn.Blocks {
		if len(blk.Instructions) == 0 {
			continue
		}
		last := blk.Instructions[len(blk.Instructions)-1]
		if last.Op == OpReturn || last.Op == OpReturnVal {
			blk.Exit = true
		}
	}
}
