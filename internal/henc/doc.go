// Package henc provides fixed-width little-endian binary read/write
// utilities shared by the bytecode emitter and module image reader/writer.
// It is a direct descendant of the teacher's wasm/internal/binary package,
// with LEB128 varint support dropped: spec.md §6.1 mandates every module
// image field be a plain 32-bit little-endian integer, never a variable-length
// encoding.
package henc
