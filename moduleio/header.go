package moduleio

import (
	"github.com/mootwise/he3vm/herr"
	"github.com/mootwise/he3vm/internal/henc"
)

// Magic is the fixed 8-byte module file signature (spec.md §6.1).
const Magic = "HELIUM3\x00"

// CurrentVersionMajor/Minor are the version this package reads and writes.
const (
	CurrentVersionMajor uint16 = 1
	CurrentVersionMinor uint16 = 0
)

// Flag bits (spec.md §6.1).
const (
	FlagExecutable uint32 = 1 << 0
	FlagLibrary    uint32 = 1 << 1
	FlagDebug      uint32 = 1 << 2
	FlagOptimised  uint32 = 1 << 3
)

// reservedWords is SPEC_FULL.md §E's header addendum: two of spec.md §6.1's
// eight reserved words are spent on the added constant-table offset/size
// pair, and two more on the interface-table offset/size pair, leaving four
// written as zero.
const reservedWords = 4

// HeaderSize is the fixed byte length of the header, magic through the last
// reserved word.
const HeaderSize = 8 /*magic*/ + 2 + 2 /*version*/ + 4 /*flags*/ + 4 + 4 /*name/ver off*/ +
	4*2*7 /*seven (off,size) pairs: string/type/method/field/interface/constant/bytecode*/ +
	4 /*entry point*/ + 4*reservedWords

// Header mirrors spec.md §6.1's on-disk layout, extended per SPEC_FULL.md
// §E with an interface table and then a constant table (off, size) pair,
// inserted after the field table and before the bytecode blob.
type Header struct {
	VersionMajor uint16
	VersionMinor uint16
	Flags        uint32

	ModuleNameOff uint32
	ModuleVerOff  uint32

	StringTableOff  uint32
	StringTableSize uint32
	TypeTableOff    uint32
	TypeTableSize   uint32
	MethodTableOff  uint32
	MethodTableSize uint32
	FieldTableOff   uint32
	FieldTableSize  uint32

	InterfaceTableOff  uint32
	InterfaceTableSize uint32

	ConstantTableOff  uint32
	ConstantTableSize uint32

	BytecodeOff  uint32
	BytecodeSize uint32

	EntryPointMethodID uint32
}

// WriteHeader writes h at the writer's current position (expected to be
// offset 0). It always writes HeaderSize bytes, so a caller that only learns
// the section offsets after writing the tables can write a placeholder
// header first and later copy a second WriteHeader result over it, as
// encodeImage does.
func WriteHeader(w *henc.Writer, h Header) {
	w.WriteString(Magic)
	w.WriteU16(h.VersionMajor)
	w.WriteU16(h.VersionMinor)
	w.WriteU32(h.Flags)
	w.WriteU32(h.ModuleNameOff)
	w.WriteU32(h.ModuleVerOff)
	w.WriteU32(h.StringTableOff)
	w.WriteU32(h.StringTableSize)
	w.WriteU32(h.TypeTableOff)
	w.WriteU32(h.TypeTableSize)
	w.WriteU32(h.MethodTableOff)
	w.WriteU32(h.MethodTableSize)
	w.WriteU32(h.FieldTableOff)
	w.WriteU32(h.FieldTableSize)
	w.WriteU32(h.InterfaceTableOff)
	w.WriteU32(h.InterfaceTableSize)
	w.WriteU32(h.ConstantTableOff)
	w.WriteU32(h.ConstantTableSize)
	w.WriteU32(h.BytecodeOff)
	w.WriteU32(h.BytecodeSize)
	w.WriteU32(h.EntryPointMethodID)
	for i := 0; i < reservedWords; i++ {
		w.WriteU32(0)
	}
}

// ReadHeader reads and validates the magic and version, returning
// herr.InvalidModule on any mismatch or truncated read.
func ReadHeader(r *henc.Reader) (Header, error) {
	var h Header
	if r.Remaining() < HeaderSize {
		return h, herr.InvalidModule("file shorter than the fixed header size")
	}
	magic, err := r.ReadBytes(len(Magic))
	if err != nil {
		return h, herr.InvalidModule("could not read magic")
	}
	if string(magic) != Magic {
		return h, herr.InvalidModule("bad magic: expected \"HELIUM3\\0\"")
	}
	if h.VersionMajor, err = r.ReadU16(); err != nil {
		return h, herr.InvalidModule("could not read version_major")
	}
	if h.VersionMinor, err = r.ReadU16(); err != nil {
		return h, herr.InvalidModule("could not read version_minor")
	}
	if h.VersionMajor != CurrentVersionMajor {
		return h, herr.InvalidModule("unsupported module version")
	}
	fields := []*uint32{
		&h.Flags, &h.ModuleNameOff, &h.ModuleVerOff,
		&h.StringTableOff, &h.StringTableSize,
		&h.TypeTableOff, &h.TypeTableSize,
		&h.MethodTableOff, &h.MethodTableSize,
		&h.FieldTableOff, &h.FieldTableSize,
		&h.InterfaceTableOff, &h.InterfaceTableSize,
		&h.ConstantTableOff, &h.ConstantTableSize,
		&h.BytecodeOff, &h.BytecodeSize,
		&h.EntryPointMethodID,
	}
	for _, f := range fields {
		v, err := r.ReadU32()
		if err != nil {
			return h, herr.InvalidModule("truncated header")
		}
		*f = v
	}
	if _, err := r.ReadBytes(4 * reservedWords); err != nil {
		return h, herr.InvalidModule("truncated header reserved words")
	}
	return h, nil
}
