package moduleio

import (
	"encoding/binary"
	"hash/fnv"
	"math"

	"github.com/mootwise/he3vm/bytecode"
	"github.com/mootwise/he3vm/herr"
	"github.com/mootwise/he3vm/internal/henc"
	"github.com/mootwise/he3vm/ir"
)

// CompiledField is one unit's field declaration, prior to module-wide id
// assignment.
type CompiledField struct {
	Name   string
	Type   ir.TypeID
	Static bool
}

// CompiledMethod is one unit's method, carrying the emitter's output for a
// non-native method. Native carries no Code (the implicit Sys.println is the
// only native method a correct implementation needs, SPEC_FULL.md §D.1).
type CompiledMethod struct {
	Name       string
	Code       *bytecode.FunctionCode
	ReturnType ir.TypeID
	ParamCount int
	LocalCount int
	Static     bool
	Virtual    bool
	Abstract   bool
	Native     bool
	Line, Col  int
}

// CompiledClass is one unit's type declaration.
type CompiledClass struct {
	Name       string
	Parent     string
	Fields     []CompiledField
	Methods    []CompiledMethod
	Interfaces []string
	Flags      uint32
}

// CompiledUnit is one compilation unit's packaging input: its declared
// classes plus the string/constant tables its emitter accumulated while
// lowering them (spec.md §4.4's "private type/field/method table").
type CompiledUnit struct {
	Classes   []CompiledClass
	Strings   *bytecode.StringTable
	Constants *bytecode.ConstantPool
}

// ProjectMetadata mirrors spec.md §4.4's project_metadata parameter.
type ProjectMetadata struct {
	ModuleName      string
	ModuleVersion   string
	Executable      bool
	Debug           bool
	Optimised       bool
	EntryPointClass string
	EntryPointName  string
}

// sysClassName/sysMethodName name the implicit class every module gets
// (spec.md §4.4).
const (
	sysClassName  = "Sys"
	sysMethodName = "println"
)

func sysClass() CompiledClass {
	return CompiledClass{
		Name:  sysClassName,
		Flags: TypeFlagClass,
		Methods: []CompiledMethod{
			{
				Name:       sysMethodName,
				ReturnType: ir.TypeVoid,
				ParamCount: 1,
				Static:     true,
				Native:     true,
			},
		},
	}
}

// Package links units into a single module image (spec.md §4.4). The
// implicit Sys class is always prepended; a DuplicateType error is recorded
// if any unit redeclares a name Sys or another unit already used.
func Package(units []CompiledUnit, meta ProjectMetadata) ([]byte, *herr.Diagnostics) {
	var diags herr.Diagnostics

	classes := append([]CompiledClass{sysClass()}, flattenClasses(units)...)
	// unitOf[ci] is the index in units of the unit classes[ci] came from
	// (-1 for the prepended Sys class).
	unitOf := []int{-1}
	for ui, u := range units {
		for range u.Classes {
			unitOf = append(unitOf, ui)
		}
	}
	firstIndex := make(map[string]int, len(classes))
	for i, c := range classes {
		if _, ok := firstIndex[c.Name]; ok {
			diags.Record(herr.DuplicateType(c.Name))
			continue
		}
		firstIndex[c.Name] = i
	}

	strs := bytecode.NewStringTable()
	consts := bytecode.NewConstantPool()

	moduleNameID := strs.Intern(meta.ModuleName)
	moduleVerID := strs.Intern(meta.ModuleVersion)

	var (
		typeEntries      []TypeEntry
		methodEntries    []MethodEntry
		fieldEntries     []FieldEntry
		interfaceEntries []InterfaceEntry
		blob             []byte
		entryPointID     uint32
	)

	// Assign every class's type id before building entries, so a class
	// declared before its parent (or any forward reference) still resolves
	// ParentTypeID correctly.
	typeIDByName := make(map[string]uint32, len(classes))
	nextTypeID := uint32(1)
	for ci, class := range classes {
		if firstIndex[class.Name] != ci {
			continue
		}
		typeIDByName[class.Name] = nextTypeID
		nextTypeID++
	}

	nextMethodID := uint32(1)
	nextFieldID := uint32(1)

	for ci, class := range classes {
		if firstIndex[class.Name] != ci {
			continue // a duplicate past the first declaration was already flagged
		}
		typeID := typeIDByName[class.Name]
		nameOff := strs.Intern(class.Name)

		var parentTypeID uint32
		if class.Parent != "" {
			id, ok := typeIDByName[class.Parent]
			if !ok {
				diags.Record(herr.New(herr.PhasePackage, herr.KindUndefinedSymbol).
					Detail("class %q extends unknown class %q", class.Name, class.Parent).Build())
			}
			parentTypeID = id
		}

		for _, ifaceName := range class.Interfaces {
			id, ok := typeIDByName[ifaceName]
			if !ok {
				diags.Record(herr.New(herr.PhasePackage, herr.KindUndefinedSymbol).
					Detail("class %q implements unknown interface %q", class.Name, ifaceName).Build())
				continue
			}
			interfaceEntries = append(interfaceEntries, InterfaceEntry{OwningTypeID: typeID, InterfaceTypeID: id})
		}

		// Two passes: first assign every method in this class its global id
		// (so sibling forward/backward calls within the class resolve),
		// then rewrite and append bytecode.
		assigned := make([]uint32, len(class.Methods))
		localMap := make(map[uint32]uint32)
		for i, m := range class.Methods {
			assigned[i] = nextMethodID
			if m.Code != nil {
				localMap[m.Code.MethodID] = nextMethodID
			}
			nextMethodID++
		}

		for i, m := range class.Methods {
			methodID := assigned[i]
			mNameOff := strs.Intern(m.Name)
			flags := uint32(0)
			if m.Static {
				flags |= MethodFlagStatic
			}
			if m.Virtual {
				flags |= MethodFlagVirtual
			}
			if m.Abstract {
				flags |= MethodFlagAbstract
			}
			if m.Native {
				flags |= MethodFlagNative
			}

			var bcOff, bcSize uint32
			if m.Code != nil {
				bcOff = uint32(len(blob))
				var own []CompiledUnit
				if u := unitOf[ci]; u >= 0 {
					own = units[u : u+1]
				}
				rewritten := rewriteFixups(m.Code, bcOff, strs, consts, localMap, own)
				blob = append(blob, rewritten...)
				bcSize = uint32(len(rewritten))
			}

			methodEntries = append(methodEntries, MethodEntry{
				MethodID:        methodID,
				OwningTypeID:    typeID,
				NameOffset:      mNameOff,
				SignatureOffset: 0,
				BytecodeOffset:  bcOff,
				BytecodeSize:    bcSize,
				LocalCount:      uint32(m.LocalCount),
				ParamCount:      uint32(m.ParamCount),
				ReturnTypeID:    uint32(m.ReturnType),
				Flags:           flags,
				Line:            uint32(m.Line),
				Col:             uint32(m.Col),
			})

			if isEntryPoint(meta, class.Name, m.Name, ci, i) {
				entryPointID = methodID
			}
		}

		instanceSlot := uint32(0)
		for _, f := range class.Fields {
			entry := FieldEntry{
				FieldID:      nextFieldID,
				OwningTypeID: typeID,
				NameOffset:   strs.Intern(f.Name),
				FieldTypeID:  uint32(f.Type),
			}
			if f.Static {
				entry.Flags |= FieldFlagStatic
			} else {
				entry.InstanceOffset = instanceSlot
				instanceSlot++
			}
			fieldEntries = append(fieldEntries, entry)
			nextFieldID++
		}

		typeEntries = append(typeEntries, TypeEntry{
			TypeID:         typeID,
			NameOffset:     nameOff,
			ParentTypeID:   parentTypeID,
			Size:           instanceSlot * 8,
			FieldCount:     uint32(len(class.Fields)),
			MethodCount:    uint32(len(class.Methods)),
			InterfaceCount: uint32(len(class.Interfaces)),
			VTableOffset:   0,
			Flags:          class.Flags,
		})
	}

	if diags.Len() > 0 {
		return nil, &diags
	}

	return encodeImage(Header{
		VersionMajor:       CurrentVersionMajor,
		VersionMinor:       CurrentVersionMinor,
		Flags:              buildFlags(meta),
		EntryPointMethodID: entryPointID,
	}, moduleNameID, moduleVerID, strs, typeEntries, methodEntries, fieldEntries, interfaceEntries, consts, blob), &diags
}

func buildFlags(meta ProjectMetadata) uint32 {
	var f uint32
	if meta.Executable {
		f |= FlagExecutable
	} else {
		f |= FlagLibrary
	}
	if meta.Debug {
		f |= FlagDebug
	}
	if meta.Optimised {
		f |= FlagOptimised
	}
	return f
}

func isEntryPoint(meta ProjectMetadata, className, methodName string, classIdx, methodIdx int) bool {
	if meta.EntryPointClass != "" || meta.EntryPointName != "" {
		return className == meta.EntryPointClass && methodName == meta.EntryPointName
	}
	// Default (spec.md §4.4): the first method by declaration order, among
	// user classes — Sys is synthetic infrastructure, not a user declaration,
	// so it is skipped when no explicit entry point is named.
	return classIdx == 1 && methodIdx == 0
}

func flattenClasses(units []CompiledUnit) []CompiledClass {
	var out []CompiledClass
	for _, u := range units {
		out = append(out, u.Classes...)
	}
	return out
}

// rewriteFixups patches every recorded Fixup in code against the
// module-wide string table, constant pool, and this class's method-id map,
// then returns the patched byte slice (a copy; the original FunctionCode is
// left untouched). units holds only the method's owning unit, whose string
// table and constant pool the unit-local ids in code refer to; Package
// tracks which unit each class came from. baseOffset is this method's final position within the
// module bytecode blob, added to every jump target so intra-method offsets
// (computed relative to the method's own start by the emitter) become
// absolute within the blob per spec.md §6.2.
func rewriteFixups(code *bytecode.FunctionCode, baseOffset uint32, globalStrs *bytecode.StringTable, globalConsts *bytecode.ConstantPool, localMethodMap map[uint32]uint32, units []CompiledUnit) []byte {
	out := make([]byte, len(code.Code))
	copy(out, code.Code)

	for _, fx := range code.Fixups {
		old := binary.LittleEndian.Uint32(out[fx.Offset : fx.Offset+4])
		var patched uint32
		switch fx.Kind {
		case bytecode.FixupJumpBase:
			patched = old + baseOffset
		case bytecode.FixupString:
			s := resolveUnitString(units, old)
			id := globalStrs.Intern(s)
			// A string-table id used as a LOAD_FIELD/CALLV/NEW_OBJECT/etc.
			// operand is unambiguous — that opcode's own identity is the
			// type tag. The one case that needs an explicit tag is a string
			// literal pushed via PUSH_CONSTANT, since that opcode's operand
			// space is shared with constant-pool ids and the BOOL/NULL
			// sentinels (bytecode.DecodePushConstant). fx.Offset-1 is the
			// opcode byte this fixup's operand belongs to.
			if fx.Offset > 0 && bytecode.Op(out[fx.Offset-1]) == bytecode.OpPushConstant {
				id = bytecode.EncodeStringConstant(id)
			}
			patched = id
		case bytecode.FixupConstant:
			c := resolveUnitConstant(units, old)
			switch c.Kind {
			case bytecode.ConstI64:
				patched = globalConsts.InternI64(c.I64)
			case bytecode.ConstF64:
				patched = globalConsts.InternF64(c.F64)
			}
		case bytecode.FixupMethod:
			if g, ok := localMethodMap[old]; ok {
				patched = g
			} else {
				patched = old
			}
		}
		binary.LittleEndian.PutUint32(out[fx.Offset:fx.Offset+4], patched)
	}
	return out
}

// resolveUnitString finds the first unit whose string table has an entry at
// id. Every unit's emitter numbers its ids from 1, so the same id exists in
// several units; rewriteFixups passes only the method's own unit.
func resolveUnitString(units []CompiledUnit, id uint32) string {
	for _, u := range units {
		if s, ok := u.Strings.Get(id); ok {
			return s
		}
	}
	return ""
}

func resolveUnitConstant(units []CompiledUnit, id uint32) bytecode.Constant {
	for _, u := range units {
		if c, ok := u.Constants.Get(id); ok {
			return c
		}
	}
	return bytecode.Constant{}
}

// encodeImage serialises the header and every table section in spec.md
// §3.3/§6.1 order (plus the §E constant table), patching the header's
// offset/size fields once every section's position is known.
func encodeImage(h Header, moduleNameID, moduleVerID uint32, strs *bytecode.StringTable,
	types []TypeEntry, methods []MethodEntry, fields []FieldEntry, interfaces []InterfaceEntry,
	consts *bytecode.ConstantPool, blob []byte) []byte {

	w := henc.NewWriter()
	WriteHeader(w, h) // placeholder; patched below

	stringEntries, stringBlob := layoutStrings(strs.All())
	h.ModuleNameOff = stringEntries[moduleNameID-1].Offset
	h.ModuleVerOff = stringEntries[moduleVerID-1].Offset

	h.StringTableOff = uint32(w.Len())
	w.WriteU32(uint32(len(stringEntries)))
	w.WriteU32(uint32(len(stringBlob)))
	for _, e := range stringEntries {
		e.write(w)
	}
	w.WriteBytes(stringBlob)
	h.StringTableSize = uint32(w.Len()) - h.StringTableOff

	h.TypeTableOff = uint32(w.Len())
	w.WriteU32(uint32(len(types)))
	for _, e := range types {
		e.write(w)
	}
	h.TypeTableSize = uint32(w.Len()) - h.TypeTableOff

	h.MethodTableOff = uint32(w.Len())
	w.WriteU32(uint32(len(methods)))
	for _, e := range methods {
		e.write(w)
	}
	h.MethodTableSize = uint32(w.Len()) - h.MethodTableOff

	h.FieldTableOff = uint32(w.Len())
	w.WriteU32(uint32(len(fields)))
	for _, e := range fields {
		e.write(w)
	}
	h.FieldTableSize = uint32(w.Len()) - h.FieldTableOff

	h.InterfaceTableOff = uint32(w.Len())
	w.WriteU32(uint32(len(interfaces)))
	for _, e := range interfaces {
		e.write(w)
	}
	h.InterfaceTableSize = uint32(w.Len()) - h.InterfaceTableOff

	h.ConstantTableOff = uint32(w.Len())
	constEntries := constantEntries(consts)
	w.WriteU32(uint32(len(constEntries)))
	for _, e := range constEntries {
		e.write(w)
	}
	h.ConstantTableSize = uint32(w.Len()) - h.ConstantTableOff

	h.BytecodeOff = uint32(w.Len())
	w.WriteBytes(blob)
	h.BytecodeSize = uint32(len(blob))

	final := w.Bytes()
	patched := henc.NewWriter()
	WriteHeader(patched, h)
	headerBytes := patched.Bytes()
	copy(final[:HeaderSize], headerBytes)

	Logger().Sugar().Infof("packaged module: %d bytes, %d types, %d methods, %d fields",
		len(final), len(types), len(methods), len(fields))
	return final
}

func layoutStrings(values []string) ([]StringEntry, []byte) {
	entries := make([]StringEntry, len(values))
	var blob []byte
	for i, s := range values {
		entries[i] = StringEntry{
			Offset: uint32(len(blob)),
			Length: uint32(len(s)),
			Hash:   hashForOffset(s),
		}
		blob = append(blob, s...)
	}
	return entries, blob
}

// hashForOffset recomputes the same FNV-1a hash bytecode.StringTable uses
// internally, so the on-disk StringEntry.Hash matches what a loader would
// compute when re-hashing for lookup.
func hashForOffset(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

func constantEntries(pool *bytecode.ConstantPool) []ConstantEntry {
	all := pool.All()
	out := make([]ConstantEntry, len(all))
	for i, c := range all {
		switch c.Kind {
		case bytecode.ConstI64:
			out[i] = ConstantEntry{Kind: ConstantI64, Bits: uint64(c.I64)}
		case bytecode.ConstF64:
			out[i] = ConstantEntry{Kind: ConstantF64, Bits: math.Float64bits(c.F64)}
		}
	}
	return out
}
