// Package ir provides the in-memory control-flow-graph representation that
// sits between the AST translator (package translate) and the bytecode
// emitter (package bytecode): functions own basic blocks, basic blocks own
// instructions, and every instruction carries an ordered operand list built
// from the small tagged-union Value type.
package ir
