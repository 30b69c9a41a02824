package registry

import (
	"testing"

	"github.com/coreos/go-semver/semver"

	"github.com/mootwise/he3vm/bytecode"
	"github.com/mootwise/he3vm/moduleio"
)

func newVersion(t *testing.T, s string) *semver.Version {
	t.Helper()
	v, err := semver.NewVersion(s)
	if err != nil {
		t.Fatalf("semver.NewVersion(%q): %v", s, err)
	}
	return v
}

func buildTestModule(t *testing.T) []byte {
	t.Helper()

	unit := moduleio.CompiledUnit{
		Classes: []moduleio.CompiledClass{
			{
				Name:  "Comparable",
				Flags: moduleio.TypeFlagInterface,
				Methods: []moduleio.CompiledMethod{
					{Name: "compareTo", ParamCount: 1, Virtual: true, Abstract: true},
				},
			},
			{
				Name:  "Animal",
				Flags: moduleio.TypeFlagClass,
				Fields: []moduleio.CompiledField{
					{Name: "legs"},
				},
			},
			{
				Name:       "Dog",
				Parent:     "Animal",
				Interfaces: []string{"Comparable"},
				Flags:      moduleio.TypeFlagClass,
				Fields: []moduleio.CompiledField{
					{Name: "name"},
					{Name: "registeredCount", Static: true},
				},
				Methods: []moduleio.CompiledMethod{
					{Name: "bark", ParamCount: 0},
				},
			},
		},
		Strings:   bytecode.NewStringTable(),
		Constants: bytecode.NewConstantPool(),
	}

	data, diags := moduleio.Package([]moduleio.CompiledUnit{unit}, moduleio.ProjectMetadata{
		ModuleName:    "animals",
		ModuleVersion: "1.2.0",
	})
	if diags.Len() > 0 {
		t.Fatalf("Package: %v", diags.Err())
	}
	return data
}

func TestLoadModuleBuildsClassHierarchy(t *testing.T) {
	data := buildTestModule(t)
	r := New()

	id, err := r.LoadModule(data)
	if err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	if id != r.EntryModule() {
		t.Fatalf("first loaded module should become the entry module")
	}

	dog, ok := r.FindClass(id, "Dog")
	if !ok {
		t.Fatalf("expected to find class Dog")
	}
	if dog.Super == nil || dog.Super.Name != "Animal" {
		t.Fatalf("expected Dog.Super == Animal, got %v", dog.Super)
	}
	if len(dog.Interfaces) != 1 || dog.Interfaces[0].Name != "Comparable" {
		t.Fatalf("expected Dog to implement Comparable, got %v", dog.Interfaces)
	}
	if dog.InstanceFieldCount() != 2 {
		t.Fatalf("Dog instance field count = %d, want 2 (Animal.legs + Dog.name)", dog.InstanceFieldCount())
	}

	nameField, ok := dog.FieldByName("name")
	if !ok {
		t.Fatalf("expected to find field Dog.name")
	}
	if nameField.Slot != 1 {
		t.Fatalf("name.Slot = %d, want 1 (after Animal's legs)", nameField.Slot)
	}

	staticField, ok := dog.FieldByName("registeredCount")
	if !ok || !staticField.Static {
		t.Fatalf("expected registeredCount to be a static field")
	}

	bark, ok := r.FindMethodInType(dog, "bark")
	if !ok || bark.Name != "bark" {
		t.Fatalf("expected to resolve Dog.bark")
	}

	ver, ok := r.ModuleVersion(id)
	if !ok || ver.String() != "1.2.0" {
		t.Fatalf("expected module version 1.2.0, got %v", ver)
	}
}

func TestFindMethodQualifiedName(t *testing.T) {
	data := buildTestModule(t)
	r := New()
	id, err := r.LoadModule(data)
	if err != nil {
		t.Fatalf("LoadModule: %v", err)
	}

	m, ok := r.FindMethod(id, "Dog.bark")
	if !ok || m.Name != "bark" {
		t.Fatalf("expected FindMethod(\"Dog.bark\") to resolve")
	}

	if _, ok := r.FindMethod(id, "Dog.fly"); ok {
		t.Fatalf("did not expect to resolve a nonexistent method")
	}
}

func TestUnloadModuleForbiddenForRunningEntryModule(t *testing.T) {
	data := buildTestModule(t)
	r := New()
	id, err := r.LoadModule(data)
	if err != nil {
		t.Fatalf("LoadModule: %v", err)
	}

	r.SetRunning(true)
	if err := r.UnloadModule(id); err == nil {
		t.Fatalf("expected UnloadModule to fail while the entry module is running")
	}

	r.SetRunning(false)
	if err := r.UnloadModule(id); err != nil {
		t.Fatalf("UnloadModule after stopping: %v", err)
	}
	if _, ok := r.FindClass(id, "Dog"); ok {
		t.Fatalf("expected Dog to be gone after unload")
	}
}

func TestUnloadModuleUnknownID(t *testing.T) {
	r := New()
	if err := r.UnloadModule(999); err == nil {
		t.Fatalf("expected an error unloading a module id that was never loaded")
	}
}

func TestCheckCompatibleRejectsOlderMajor(t *testing.T) {
	data := buildTestModule(t)
	r := New()
	id, err := r.LoadModule(data)
	if err != nil {
		t.Fatalf("LoadModule: %v", err)
	}

	required := newVersion(t, "2.0.0")
	if err := r.CheckCompatible(id, required); err == nil {
		t.Fatalf("expected an incompatible-major-version error")
	}

	required = newVersion(t, "1.0.0")
	if err := r.CheckCompatible(id, required); err != nil {
		t.Fatalf("expected v1.2.0 to satisfy a v1.0.0 requirement: %v", err)
	}

	required = newVersion(t, "1.5.0")
	if err := r.CheckCompatible(id, required); err == nil {
		t.Fatalf("expected v1.2.0 to fail a v1.5.0 requirement")
	}
}
