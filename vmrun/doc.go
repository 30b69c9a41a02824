// Package vmrun implements C8, the interpreter: a single-threaded cooperative
// stack machine executing one loaded module's bytecode (spec.md §4.8, §5).
// It owns the operand stack and call-frame stack, drives the fetch-decode-
// execute loop over bytecode.Op, and wires registry/objsys/heap together
// into the root-set provider and tracer the garbage collector needs.
package vmrun
