package henc

import (
	"bytes"
	"encoding/binary"
)

// Writer is a growable little-endian byte-buffer writer.
type Writer struct {
	buf *bytes.Buffer
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer {
	return &Writer{buf: &bytes.Buffer{}}
}

// Bytes returns the bytes written so far.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Byte writes a single byte.
func (w *Writer) Byte(b byte) {
	w.buf.WriteByte(b)
}

// WriteBytes writes a raw byte slice.
func (w *Writer) WriteBytes(p []byte) {
	w.buf.Write(p)
}

// WriteU16 writes a little-endian uint16.
func (w *Writer) WriteU16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

// WriteU32 writes a little-endian uint32.
func (w *Writer) WriteU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

// WriteI32 writes a little-endian int32.
func (w *Writer) WriteI32(v int32) {
	w.WriteU32(uint32(v))
}

// WriteString writes a raw UTF-8 string with no length prefix; callers track
// offsets/lengths themselves via the string table (spec.md §3.3).
func (w *Writer) WriteString(s string) {
	w.buf.WriteString(s)
}

// PatchU32 overwrites 4 bytes at byte offset pos with v, for fields that are
// only known after the rest of the section is written (e.g. table offsets
// computed last per spec.md §4.4).
func (w *Writer) PatchU32(pos int, v uint32) {
	b := w.buf.Bytes()
	binary.LittleEndian.PutUint32(b[pos:pos+4], v)
}
