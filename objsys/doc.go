// Package objsys implements the VM's object/class system (spec.md §4.6):
// runtime Class/Method/Field metadata built from a loaded module image,
// object allocation and reference counting, instance-of and interface
// checks, and static/virtual/interface method dispatch.
//
// Object field storage lives here as ordinary Go values keyed by the
// heap.Addr package heap hands back from Allocate (see heap's package
// comment for the split of responsibility); objsys never reads or writes
// raw bytes against the slab itself.
package objsys
