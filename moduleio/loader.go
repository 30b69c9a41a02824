package moduleio

import (
	"github.com/mootwise/he3vm/herr"
	"github.com/mootwise/he3vm/internal/henc"
)

// Image is a fully parsed, in-memory module file (spec.md §4.5's
// load_module contract stops here; registry.LoadModule wraps this with the
// process-wide id-assignment and name indexing).
type Image struct {
	Header Header

	ModuleName    string
	ModuleVersion string

	Strings    []string
	Types      []TypeEntry
	Methods    []MethodEntry
	Fields     []FieldEntry
	Interfaces []InterfaceEntry
	Constants  []ConstantEntry
	Bytecode   []byte
}

// Load validates a module image's header and reads every table section,
// bounds-checking each read (SPEC_FULL.md §D.3) rather than trusting the
// header's declared offsets/sizes.
func Load(data []byte) (*Image, error) {
	r := henc.NewReader(data)
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	img := &Image{Header: h}

	entries, strs, err := readStringSection(data, h.StringTableOff, h.StringTableSize)
	if err != nil {
		return nil, err
	}
	img.Strings = strs
	img.ModuleName = stringAt(entries, strs, h.ModuleNameOff)
	img.ModuleVersion = stringAt(entries, strs, h.ModuleVerOff)

	if err := readTableSection(data, h.TypeTableOff, h.TypeTableSize, "type table", readTypeEntry, &img.Types); err != nil {
		return nil, err
	}
	if err := readTableSection(data, h.MethodTableOff, h.MethodTableSize, "method table", readMethodEntry, &img.Methods); err != nil {
		return nil, err
	}
	if err := readTableSection(data, h.FieldTableOff, h.FieldTableSize, "field table", readFieldEntry, &img.Fields); err != nil {
		return nil, err
	}
	if err := readTableSection(data, h.InterfaceTableOff, h.InterfaceTableSize, "interface table", readInterfaceEntry, &img.Interfaces); err != nil {
		return nil, err
	}
	if err := readTableSection(data, h.ConstantTableOff, h.ConstantTableSize, "constant table", readConstantEntry, &img.Constants); err != nil {
		return nil, err
	}

	if int(h.BytecodeOff)+int(h.BytecodeSize) > len(data) {
		return nil, herr.InvalidModule("bytecode section out of range")
	}
	img.Bytecode = data[h.BytecodeOff : h.BytecodeOff+h.BytecodeSize]

	return img, nil
}

// readStringSection reads the string table section, returning both the raw
// entries (needed to resolve the header's byte-offset fields) and the
// decoded string values in table order.
func readStringSection(data []byte, off, size uint32) ([]StringEntry, []string, error) {
	if int(off)+int(size) > len(data) || size < 8 {
		return nil, nil, herr.InvalidModule("string table section out of range")
	}
	r := henc.NewReader(data[off : off+size])
	count, err := r.ReadU32()
	if err != nil {
		return nil, nil, herr.InvalidModule("could not read string table count")
	}
	totalBytes, err := r.ReadU32()
	if err != nil {
		return nil, nil, herr.InvalidModule("could not read string table total_string_bytes")
	}
	entries := make([]StringEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		e, err := readStringEntry(r)
		if err != nil {
			return nil, nil, herr.InvalidModule("truncated string table entry")
		}
		entries = append(entries, e)
	}
	blobStart := r.Position()
	if uint32(blobStart)+totalBytes > size {
		return nil, nil, herr.InvalidModule("string data blob exceeds declared section size")
	}
	blob, err := r.ReadBytes(int(totalBytes))
	if err != nil {
		return nil, nil, herr.InvalidModule("truncated string data blob")
	}

	out := make([]string, len(entries))
	for i, e := range entries {
		if uint64(e.Offset)+uint64(e.Length) > uint64(len(blob)) {
			return nil, nil, herr.InvalidModule("string entry out of range of data blob")
		}
		out[i] = string(blob[e.Offset : e.Offset+e.Length])
	}
	return entries, out, nil
}

// stringAt resolves a header *byte offset into the string data blob* (not a
// string-table id — spec.md §6.1's module_name_off/module_ver_off are blob
// offsets) to the string that starts there. Returns "" if off doesn't match
// any entry start.
func stringAt(entries []StringEntry, strs []string, off uint32) string {
	for i, e := range entries {
		if e.Offset == off {
			return strs[i]
		}
	}
	return ""
}

func readTableSection[T any](data []byte, off, size uint32, name string, decode func(*henc.Reader) (T, error), out *[]T) error {
	if int(off)+int(size) > len(data) {
		return herr.InvalidModule(name + " section out of range")
	}
	r := henc.NewReader(data[off : off+size])
	entries, err := readCountedSection(r, name, decode)
	if err != nil {
		return err
	}
	*out = entries
	return nil
}
