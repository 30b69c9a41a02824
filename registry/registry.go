package registry

import (
	"fmt"
	"sync"

	"github.com/coreos/go-semver/semver"

	"github.com/mootwise/he3vm/heap"
	"github.com/mootwise/he3vm/herr"
	"github.com/mootwise/he3vm/moduleio"
	"github.com/mootwise/he3vm/objsys"
)

// ModuleID identifies a loaded module for the lifetime of the process
// (spec.md §4.5). IDs are assigned in load order starting at 1; 0 is never
// valid.
type ModuleID uint32

// GlobalTypeID, GlobalMethodID, GlobalFieldID pair a ModuleID with the
// on-disk local id moduleio assigned within that module, the same
// index-space idiom the teacher uses for its component type/func/value
// spaces (component/internal/arena/state.go): small integers, bounds
// checked at lookup, never raw pointers across a module boundary.
type GlobalTypeID struct {
	Module ModuleID
	Local  uint32
}

type GlobalMethodID struct {
	Module ModuleID
	Local  uint32
}

type GlobalFieldID struct {
	Module ModuleID
	Local  uint32
}

// loadedModule holds everything built from one module image: the runtime
// Class/Method/Field records indexed by local id, plus a per-module
// qualified-name index (spec.md §4.5: "populates ... registries ... also
// indexed by qualified name").
type loadedModule struct {
	id      ModuleID
	name    string
	version *semver.Version
	image   *moduleio.Image

	classesByLocal map[uint32]*objsys.Class
	methodsByLocal map[uint32]*objsys.Method
	fieldsByLocal  map[uint32]*objsys.Field

	classesByName map[string]*objsys.Class // "ClassName"
}

// Registry is the process-wide module store. A Registry is safe for
// concurrent use; once loaded, a module's classes/methods/fields are never
// mutated again (spec.md §4.5: "a loaded module is immutable for the rest
// of the process lifetime").
type Registry struct {
	mu           sync.RWMutex
	modules      map[ModuleID]*loadedModule
	nextModuleID ModuleID

	entryModule ModuleID
	running     bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		modules:      make(map[ModuleID]*loadedModule),
		nextModuleID: 1,
	}
}

// SetRunning marks whether the VM is currently executing the entry module,
// gating UnloadModule's "forbidden for the entry module while running" rule
// (spec.md §4.5). The caller (vmrun) toggles this around a run.
func (r *Registry) SetRunning(running bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = running
}

// LoadModule validates and parses a module image (moduleio.Load), then
// builds the runtime Class/Method/Field records spec.md §4.6 describes,
// returning the ModuleID under which they are now registered. The first
// module loaded into a fresh Registry becomes the entry module.
//
// Mirrors the teacher's accept-bytes-not-a-path signature
// (runtime.LoadComponent(ctx, wasm []byte)): the caller does its own file
// I/O (explicitly out of scope, spec.md line 14) and hands the bytes in.
func (r *Registry) LoadModule(data []byte) (ModuleID, error) {
	img, err := moduleio.Load(data)
	if err != nil {
		return 0, err
	}

	ver, verErr := semver.NewVersion(img.ModuleVersion)
	if verErr != nil {
		ver = &semver.Version{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextModuleID
	r.nextModuleID++
	if id == 1 {
		r.entryModule = id
	}

	lm := &loadedModule{
		id:             id,
		name:           img.ModuleName,
		version:        ver,
		image:          img,
		classesByLocal: make(map[uint32]*objsys.Class, len(img.Types)),
		methodsByLocal: make(map[uint32]*objsys.Method, len(img.Methods)),
		fieldsByLocal:  make(map[uint32]*objsys.Field, len(img.Fields)),
		classesByName:  make(map[string]*objsys.Class, len(img.Types)),
	}

	if err := buildClasses(lm, img); err != nil {
		return 0, err
	}
	if err := buildMethods(lm, img); err != nil {
		return 0, err
	}
	if err := buildFields(lm, img); err != nil {
		return 0, err
	}

	// buildClasses linked every class before any field existed, so each
	// fieldSlotBase it computed was 0. Link again now, parents first, so
	// inherited fields come before a class's own.
	relinked := make(map[*objsys.Class]bool, len(lm.classesByLocal))
	var relink func(c *objsys.Class)
	relink = func(c *objsys.Class) {
		if c == nil || relinked[c] {
			return
		}
		relinked[c] = true
		relink(c.Super)
		c.Link(c.Super, c.Interfaces)
	}
	for _, te := range img.Types {
		relink(lm.classesByLocal[te.TypeID])
	}

	r.modules[id] = lm
	Logger().Sugar().Infof("loaded module %q v%s as id %d: %d types, %d methods, %d fields",
		lm.name, lm.version, id, len(img.Types), len(img.Methods), len(img.Fields))
	return id, nil
}

// buildClasses creates a Class shell for every TypeEntry, then links each
// one's superclass and implemented interfaces in a second pass so a class
// declared before its parent or an interface still resolves (moduleio's
// packager already guarantees every TypeID a ParentTypeID/InterfaceTypeID
// refers to exists in this same image).
func buildClasses(lm *loadedModule, img *moduleio.Image) error {
	for _, te := range img.Types {
		name := resolveString(img, te.NameOffset)
		class := objsys.NewClass(te.TypeID, name, te.Flags)
		lm.classesByLocal[te.TypeID] = class
		lm.classesByName[name] = class
	}

	ifacesByOwner := make(map[uint32][]uint32, len(img.Interfaces))
	for _, ie := range img.Interfaces {
		ifacesByOwner[ie.OwningTypeID] = append(ifacesByOwner[ie.OwningTypeID], ie.InterfaceTypeID)
	}

	for _, te := range img.Types {
		class := lm.classesByLocal[te.TypeID]

		var super *objsys.Class
		if te.ParentTypeID != 0 {
			super = lm.classesByLocal[te.ParentTypeID]
			if super == nil {
				return herr.New(herr.PhaseLink, herr.KindNotFound).
					Detail("class %q references parent type id %d, not present in this module", class.Name, te.ParentTypeID).Build()
			}
		}

		var interfaces []*objsys.Class
		for _, ifaceID := range ifacesByOwner[te.TypeID] {
			iface := lm.classesByLocal[ifaceID]
			if iface == nil {
				return herr.New(herr.PhaseLink, herr.KindNotFound).
					Detail("class %q references interface type id %d, not present in this module", class.Name, ifaceID).Build()
			}
			interfaces = append(interfaces, iface)
		}

		class.Link(super, interfaces)
	}
	return nil
}

func buildMethods(lm *loadedModule, img *moduleio.Image) error {
	for _, me := range img.Methods {
		owner := lm.classesByLocal[me.OwningTypeID]
		if owner == nil {
			return herr.New(herr.PhaseLink, herr.KindNotFound).
				Detail("method id %d owned by unknown type id %d", me.MethodID, me.OwningTypeID).Build()
		}
		method := &objsys.Method{
			MethodID:   me.MethodID,
			Name:       resolveString(img, me.NameOffset),
			Bytecode:   img.Bytecode[me.BytecodeOffset : me.BytecodeOffset+me.BytecodeSize],
			Offset:     int(me.BytecodeOffset),
			LocalCount: int(me.LocalCount),
			ParamCount: int(me.ParamCount),
			ReturnType: me.ReturnTypeID,
			Flags:      me.Flags,
			Line:       int(me.Line),
			Col:        int(me.Col),
		}
		owner.AddMethod(method)
		lm.methodsByLocal[me.MethodID] = method
	}
	return nil
}

func buildFields(lm *loadedModule, img *moduleio.Image) error {
	for _, fe := range img.Fields {
		owner := lm.classesByLocal[fe.OwningTypeID]
		if owner == nil {
			return herr.New(herr.PhaseLink, herr.KindNotFound).
				Detail("field id %d owned by unknown type id %d", fe.FieldID, fe.OwningTypeID).Build()
		}
		// Slot is left unset here: AddField and LoadModule's second Link
		// pass compute it from the owning class's fieldSlotBase plus this
		// field's position among the class's own fields, which lands
		// on the same value the packager already assigned to
		// InstanceOffset — recomputing rather than trusting the disk value
		// keeps one formula as the source of truth for both sides.
		field := &objsys.Field{
			FieldID: fe.FieldID,
			Name:    resolveString(img, fe.NameOffset),
			TypeID:  fe.FieldTypeID,
			Static:  fe.Flags&moduleio.FieldFlagStatic != 0,
		}
		owner.AddField(field)
		lm.fieldsByLocal[fe.FieldID] = field
	}
	return nil
}

// resolveString resolves a moduleio string-table id (1-based) against an
// already-loaded image. Name offsets recorded in the type/method/field
// tables are string-table ids, not byte offsets into the blob (those are
// reserved for the header's module_name_off/module_ver_off, spec.md §6.1).
func resolveString(img *moduleio.Image, id uint32) string {
	if id == 0 || int(id) > len(img.Strings) {
		return ""
	}
	return img.Strings[id-1]
}

// FindClass resolves a class by name within a module (spec.md §4.5's
// find_class(name)).
func (r *Registry) FindClass(mod ModuleID, name string) (*objsys.Class, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lm, ok := r.modules[mod]
	if !ok {
		return nil, false
	}
	c, ok := lm.classesByName[name]
	return c, ok
}

// FindClassByID resolves a class by its global (module, local) type id.
func (r *Registry) FindClassByID(id GlobalTypeID) (*objsys.Class, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lm, ok := r.modules[id.Module]
	if !ok {
		return nil, false
	}
	c, ok := lm.classesByLocal[id.Local]
	return c, ok
}

// FindMethod resolves "ClassName.MethodName" within a module.
func (r *Registry) FindMethod(mod ModuleID, qualifiedName string) (*objsys.Method, bool) {
	className, methodName, ok := splitQualified(qualifiedName)
	if !ok {
		return nil, false
	}
	class, ok := r.FindClass(mod, className)
	if !ok {
		return nil, false
	}
	return r.FindMethodInType(class, methodName)
}

// FindMethodInType looks up a method declared directly on class (spec.md
// §4.5's find_method_in_type — not a virtual/inherited search; callers
// needing inheritance use objsys.ResolveVirtual against a live object).
func (r *Registry) FindMethodInType(class *objsys.Class, name string) (*objsys.Method, bool) {
	if class == nil {
		return nil, false
	}
	return class.MethodByName(name)
}

// FindMethodByID resolves a method by its global (module, local) method id.
func (r *Registry) FindMethodByID(id GlobalMethodID) (*objsys.Method, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lm, ok := r.modules[id.Module]
	if !ok {
		return nil, false
	}
	m, ok := lm.methodsByLocal[id.Local]
	return m, ok
}

// FindField resolves "ClassName.FieldName" within a module.
func (r *Registry) FindField(mod ModuleID, qualifiedName string) (*objsys.Field, bool) {
	className, fieldName, ok := splitQualified(qualifiedName)
	if !ok {
		return nil, false
	}
	class, ok := r.FindClass(mod, className)
	if !ok {
		return nil, false
	}
	return r.FindFieldInType(class, fieldName)
}

// FindFieldInType looks up a field declared directly on class.
func (r *Registry) FindFieldInType(class *objsys.Class, name string) (*objsys.Field, bool) {
	if class == nil {
		return nil, false
	}
	return class.FieldByName(name)
}

// FindFieldByID resolves a field by its global (module, local) field id.
func (r *Registry) FindFieldByID(id GlobalFieldID) (*objsys.Field, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lm, ok := r.modules[id.Module]
	if !ok {
		return nil, false
	}
	f, ok := lm.fieldsByLocal[id.Local]
	return f, ok
}

// UnloadModule removes a module from the registry. Forbidden for the entry
// module while the VM reports itself running (spec.md §4.5).
func (r *Registry) UnloadModule(mod ModuleID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.modules[mod]; !ok {
		return herr.New(herr.PhaseLink, herr.KindNotFound).
			Detail("module id %d is not loaded", mod).Build()
	}
	if mod == r.entryModule && r.running {
		return herr.New(herr.PhaseLink, herr.KindForbiddenOperation).
			Detail("cannot unload the entry module while it is running").Build()
	}
	delete(r.modules, mod)
	return nil
}

// ModuleVersion returns the semantic version a loaded module declared.
func (r *Registry) ModuleVersion(mod ModuleID) (*semver.Version, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lm, ok := r.modules[mod]
	if !ok {
		return nil, false
	}
	return lm.version, true
}

// CheckCompatible reports whether a loaded module's version satisfies a
// caller-declared minimum (SPEC_FULL.md §B's module-version compatibility
// check): same major version, and not older than required.
func (r *Registry) CheckCompatible(mod ModuleID, required *semver.Version) error {
	ver, ok := r.ModuleVersion(mod)
	if !ok {
		return herr.New(herr.PhaseLink, herr.KindNotFound).
			Detail("module id %d is not loaded", mod).Build()
	}
	if ver.Major != required.Major {
		return herr.New(herr.PhaseLink, herr.KindIncompatibleVersion).
			Detail("module requires major version %d, loaded module is v%s", required.Major, ver).Build()
	}
	if ver.LessThan(*required) {
		return herr.New(herr.PhaseLink, herr.KindIncompatibleVersion).
			Detail("module requires at least v%s, loaded module is v%s", required, ver).Build()
	}
	return nil
}

func splitQualified(qualifiedName string) (className, memberName string, ok bool) {
	for i := len(qualifiedName) - 1; i >= 0; i-- {
		if qualifiedName[i] == '.' {
			return qualifiedName[:i], qualifiedName[i+1:], true
		}
	}
	return "", "", false
}

// EntryModule returns the ModuleID of the first module loaded into this
// registry.
func (r *Registry) EntryModule() ModuleID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entryModule
}

// EntryPointMethod resolves the entry module's declared entry-point method
// (the header's entry_point_method_id, spec.md §6.1), so vmrun's Run can
// locate its start method without needing a qualified name.
func (r *Registry) EntryPointMethod() (GlobalMethodID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lm, ok := r.modules[r.entryModule]
	if !ok {
		return GlobalMethodID{}, false
	}
	return GlobalMethodID{Module: lm.id, Local: lm.image.Header.EntryPointMethodID}, true
}

// StaticRoots returns every loaded class's static-field object references,
// across every loaded module: the GC root set's "static-field store of every
// loaded class" (spec.md §4.7).
func (r *Registry) StaticRoots() []heap.Addr {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []heap.Addr
	for _, lm := range r.modules {
		for _, c := range lm.classesByLocal {
			out = append(out, c.StaticRoots()...)
		}
	}
	return out
}

// ResolveString resolves a string-table id against the module it belongs to
// (the Value-formatting path, e.g. Sys.println, needs this to turn a
// STRING_ID payload back into text).
func (r *Registry) ResolveString(mod ModuleID, id uint32) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lm, ok := r.modules[mod]
	if !ok {
		return ""
	}
	return resolveString(lm.image, id)
}

// Constant resolves a constant-pool id against the module it belongs to
// (vmrun's PUSH_CONSTANT handler).
func (r *Registry) Constant(mod ModuleID, id uint32) (moduleio.ConstantEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lm, ok := r.modules[mod]
	if !ok || id == 0 || int(id) > len(lm.image.Constants) {
		return moduleio.ConstantEntry{}, false
	}
	return lm.image.Constants[id-1], true
}

func (e GlobalTypeID) String() string   { return fmt.Sprintf("%d:%d", e.Module, e.Local) }
func (e GlobalMethodID) String() string { return fmt.Sprintf("%d:%d", e.Module, e.Local) }
func (e GlobalFieldID) String() string  { return fmt.Sprintf("%d:%d", e.Module, e.Local) }
