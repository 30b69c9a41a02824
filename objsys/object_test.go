package objsys

import (
	"bytes"
	"testing"

	"github.com/mootwise/he3vm/heap"
	"github.com/mootwise/he3vm/moduleio"
)

func newField(id uint32, name string, static bool) *Field {
	return &Field{FieldID: id, Name: name, Static: static}
}

func TestInstanceFieldSlotsAcrossInheritance(t *testing.T) {
	base := NewClass(1, "Base", moduleio.TypeFlagClass)
	base.AddField(newField(1, "x", false))
	base.AddField(newField(2, "y", false))

	derived := NewClass(2, "Derived", moduleio.TypeFlagClass)
	derived.AddField(newField(3, "z", false))
	derived.Link(base, nil)

	if got := base.InstanceFieldCount(); got != 2 {
		t.Fatalf("base instance field count = %d, want 2", got)
	}
	if got := derived.InstanceFieldCount(); got != 3 {
		t.Fatalf("derived instance field count = %d, want 3", got)
	}
	zField, _ := derived.FieldByName("z")
	if zField.Slot != 2 {
		t.Fatalf("z.Slot = %d, want 2 (after Base's x,y)", zField.Slot)
	}
}

func TestNewObjectZeroInitialisesFields(t *testing.T) {
	h, err := heap.New(1 << 16)
	if err != nil {
		t.Fatalf("heap.New: %v", err)
	}
	defer h.Close()

	class := NewClass(1, "Widget", moduleio.TypeFlagClass)
	class.AddField(newField(1, "count", false))

	table := NewObjectTable()
	obj, err := table.New(h, class)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if obj.RefCount != 1 {
		t.Fatalf("RefCount = %d, want 1", obj.RefCount)
	}
	field, _ := class.FieldByName("count")
	v, err := LoadField(obj, field)
	if err != nil {
		t.Fatalf("LoadField: %v", err)
	}
	if !v.IsNull() {
		t.Fatalf("expected a freshly allocated field to be NULL, got %v", v)
	}
}

func TestIsInstanceOfWalksSuperclassChain(t *testing.T) {
	h, err := heap.New(1 << 16)
	if err != nil {
		t.Fatalf("heap.New: %v", err)
	}
	defer h.Close()

	animal := NewClass(1, "Animal", moduleio.TypeFlagClass)
	dog := NewClass(2, "Dog", moduleio.TypeFlagClass)
	dog.Link(animal, nil)

	table := NewObjectTable()
	obj, err := table.New(h, dog)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !IsInstanceOf(obj, dog) {
		t.Fatalf("expected a Dog instance to be instance-of Dog")
	}
	if !IsInstanceOf(obj, animal) {
		t.Fatalf("expected a Dog instance to be instance-of Animal via superclass chain")
	}

	other := NewClass(3, "Plant", moduleio.TypeFlagClass)
	if IsInstanceOf(obj, other) {
		t.Fatalf("did not expect a Dog instance to be instance-of Plant")
	}
}

func TestIsInstanceOfInterfaceChecksEveryLevel(t *testing.T) {
	h, err := heap.New(1 << 16)
	if err != nil {
		t.Fatalf("heap.New: %v", err)
	}
	defer h.Close()

	comparable := NewClass(10, "Comparable", moduleio.TypeFlagInterface)
	animal := NewClass(1, "Animal", moduleio.TypeFlagClass)
	animal.Link(nil, []*Class{comparable})
	dog := NewClass(2, "Dog", moduleio.TypeFlagClass)
	dog.Link(animal, nil)

	table := NewObjectTable()
	obj, err := table.New(h, dog)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !IsInstanceOfInterface(obj, comparable) {
		t.Fatalf("expected Dog to implement Comparable via Animal's interface list")
	}
}

func TestResolveVirtualFindsFirstMatchUpTheChain(t *testing.T) {
	h, err := heap.New(1 << 16)
	if err != nil {
		t.Fatalf("heap.New: %v", err)
	}
	defer h.Close()

	animal := NewClass(1, "Animal", moduleio.TypeFlagClass)
	speak := &Method{MethodID: 1, Name: "speak"}
	animal.AddMethod(speak)

	dog := NewClass(2, "Dog", moduleio.TypeFlagClass)
	dog.Link(animal, nil)

	table := NewObjectTable()
	obj, err := table.New(h, dog)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	m, ok := ResolveVirtual(obj, "speak")
	if !ok {
		t.Fatalf("expected to resolve 'speak' via Animal")
	}
	if m.MethodID != speak.MethodID {
		t.Fatalf("resolved wrong method: got id %d, want %d", m.MethodID, speak.MethodID)
	}

	// An override on Dog itself must win over Animal's.
	override := &Method{MethodID: 2, Name: "speak"}
	dog.AddMethod(override)
	m, ok = ResolveVirtual(obj, "speak")
	if !ok || m.MethodID != override.MethodID {
		t.Fatalf("expected Dog's override to win, got %+v ok=%v", m, ok)
	}
}

func TestRetainSaturatesAtMaxInt32(t *testing.T) {
	obj := &Object{RefCount: 1<<31 - 1}
	obj.Retain()
	if obj.RefCount != 1<<31-1 {
		t.Fatalf("RefCount overflowed past MaxInt32: %d", obj.RefCount)
	}
}

func TestReleaseFloorsAtZero(t *testing.T) {
	obj := &Object{RefCount: 0}
	obj.Release()
	if obj.RefCount != 0 {
		t.Fatalf("RefCount went negative: %d", obj.RefCount)
	}
}

func TestSysPrintlnFormatsByKind(t *testing.T) {
	var buf bytes.Buffer
	ctx := &NativeContext{
		Strings: func(id uint32) string {
			if id == 7 {
				return "hello"
			}
			return ""
		},
		Out: &buf,
	}

	cases := []struct {
		v    Value
		want string
	}{
		{I64Value(42), "42\n"},
		{BoolValue(true), "true\n"},
		{StringIDValue(7), "hello\n"},
		{NullValue(), "null\n"},
	}
	for _, c := range cases {
		buf.Reset()
		if _, err := SysPrintln(ctx, []Value{c.v}); err != nil {
			t.Fatalf("SysPrintln: %v", err)
		}
		if got := buf.String(); got != c.want {
			t.Fatalf("SysPrintln(%v) = %q, want %q", c.v, got, c.want)
		}
	}
}

func TestObjectTableSweepDropsFreedAddresses(t *testing.T) {
	h, err := heap.New(1 << 16)
	if err != nil {
		t.Fatalf("heap.New: %v", err)
	}
	defer h.Close()

	class := NewClass(1, "Widget", moduleio.TypeFlagClass)
	table := NewObjectTable()
	obj, err := table.New(h, class)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := h.Deallocate(obj.Addr); err != nil {
		t.Fatalf("Deallocate: %v", err)
	}
	table.Sweep(h)
	if _, ok := table.Get(obj.Addr); ok {
		t.Fatalf("expected Sweep to drop a freed object's table entry")
	}
}
