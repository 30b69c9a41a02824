package objsys

import (
	"github.com/mootwise/he3vm/heap"
	"github.com/mootwise/he3vm/moduleio"
)

// Class is a runtime class/interface/record/enum (spec.md §3.4, built from a
// moduleio.TypeEntry by the registry that loaded its module). Method
// discovery keeps a slice reference into the module's bytecode blob rather
// than copying it (spec.md §4.5).
type Class struct {
	TypeID uint32
	Name   string
	Flags  uint32

	Super      *Class
	Interfaces []*Class

	Methods []*Method
	Fields  []*Field

	methodsByName map[string]*Method
	fieldsByName  map[string]*Field

	// fieldSlotBase is this class's own instance fields' starting index
	// within an instance's full field slice, once Super's field count is
	// known (computed by NewClass after Super is linked).
	fieldSlotBase int

	statics map[uint32]Value // FieldID -> Value, for this class's own static fields
}

// NewClass constructs a Class shell; Super/Interfaces/Methods/Fields are
// filled in afterward by the registry once every class in a module (and its
// dependencies) has been constructed, since a parent may be declared after
// its child.
func NewClass(typeID uint32, name string, flags uint32) *Class {
	return &Class{
		TypeID:        typeID,
		Name:          name,
		Flags:         flags,
		methodsByName: make(map[string]*Method),
		fieldsByName:  make(map[string]*Field),
		statics:       make(map[uint32]Value),
	}
}

// IsClass, IsInterface, IsRecord, IsEnum report the TypeEntry flag bits
// (spec.md §3.3).
func (c *Class) IsClass() bool     { return c.Flags&moduleio.TypeFlagClass != 0 }
func (c *Class) IsInterface() bool { return c.Flags&moduleio.TypeFlagInterface != 0 }
func (c *Class) IsRecord() bool    { return c.Flags&moduleio.TypeFlagRecord != 0 }
func (c *Class) IsEnum() bool      { return c.Flags&moduleio.TypeFlagEnum != 0 }

// AddMethod registers a method declared directly on this class.
func (c *Class) AddMethod(m *Method) {
	m.Owner = c
	c.Methods = append(c.Methods, m)
	c.methodsByName[m.Name] = m
}

// AddField registers a field declared directly on this class. declOrder
// records its position among this class's own non-static fields so Link can
// compute its final instance slot once the superclass's field count, which
// may not be known yet, is linked in.
func (c *Class) AddField(f *Field) {
	f.Owner = c
	if !f.Static {
		f.declOrder = c.ownFieldCount()
	}
	c.Fields = append(c.Fields, f)
	c.fieldsByName[f.Name] = f
	f.Slot = c.fieldSlotBase + f.declOrder
}

func (c *Class) ownFieldCount() int {
	n := 0
	for _, f := range c.Fields {
		if !f.Static {
			n++
		}
	}
	return n
}

// Link attaches super/interfaces and computes this class's field slot base
// once the superclass's total instance field count is known. Must be called
// before InstanceFieldCount/AddField's slot assignment is meaningful for a
// class with a superclass.
func (c *Class) Link(super *Class, interfaces []*Class) {
	c.Super = super
	c.Interfaces = interfaces
	if super != nil {
		c.fieldSlotBase = super.InstanceFieldCount()
	}
	for _, f := range c.Fields {
		if !f.Static {
			f.Slot = c.fieldSlotBase + f.declOrder
		}
	}
}

// InstanceFieldCount is the total number of non-static fields an instance of
// this class carries, including every ancestor's.
func (c *Class) InstanceFieldCount() int {
	n := c.fieldSlotBase
	for _, f := range c.Fields {
		if !f.Static {
			n++
		}
	}
	return n
}

// MethodByName looks up a method declared directly on this class (not its
// ancestors — callers needing inherited lookup use ResolveVirtual).
func (c *Class) MethodByName(name string) (*Method, bool) {
	m, ok := c.methodsByName[name]
	return m, ok
}

// FieldByName looks up a field declared directly on this class.
func (c *Class) FieldByName(name string) (*Field, bool) {
	f, ok := c.fieldsByName[name]
	return f, ok
}

// LoadStatic reads a static field's per-class storage slot (spec.md §4.6).
func (c *Class) LoadStatic(field *Field) Value {
	if v, ok := c.statics[field.FieldID]; ok {
		return v
	}
	return NullValue()
}

// StoreStatic writes a static field's per-class storage slot.
func (c *Class) StoreStatic(field *Field, v Value) {
	c.statics[field.FieldID] = v
}

// StaticRoots returns the heap addresses held by this class's own
// OBJECT_REF-typed static fields, for the root set a RootProvider assembles
// (spec.md §4.7's "static-field store of every loaded class").
func (c *Class) StaticRoots() []heap.Addr {
	var out []heap.Addr
	for _, v := range c.statics {
		if v.Kind == KindObjectRef {
			out = append(out, v.Obj)
		}
	}
	return out
}

// Method is a runtime method record (spec.md §3.4). Bytecode is a slice into
// its owning module's bytecode blob, never copied.
type Method struct {
	MethodID   uint32
	Name       string
	Owner      *Class
	Bytecode   []byte
	// Offset is this method's byte offset within the owning module's full
	// bytecode blob (moduleio.MethodEntry.BytecodeOffset). JMP/JMPT/JMPF
	// targets are fixed up to that blob-absolute space at package time
	// (bytecode.FixupJumpBase), so a frame seeking within its own
	// method-local Bytecode slice must subtract Offset back off first.
	Offset     int
	LocalCount int
	ParamCount int
	ReturnType uint32
	Flags      uint32
	Line, Col  int
}

func (m *Method) IsStatic() bool   { return m.Flags&moduleio.MethodFlagStatic != 0 }
func (m *Method) IsVirtual() bool  { return m.Flags&moduleio.MethodFlagVirtual != 0 }
func (m *Method) IsAbstract() bool { return m.Flags&moduleio.MethodFlagAbstract != 0 }
func (m *Method) IsNative() bool   { return m.Flags&moduleio.MethodFlagNative != 0 }

// Field is a runtime field record (spec.md §3.4).
type Field struct {
	FieldID uint32
	Name    string
	Owner   *Class
	TypeID  uint32
	Static  bool

	// Slot is this field's index into an instance's field slice (only
	// meaningful when !Static); declOrder is its position among this
	// class's own non-static fields, used by Link to compute Slot once the
	// superclass's field count is known.
	Slot      int
	declOrder int
}
