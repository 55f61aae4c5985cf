// Package bytecode implements the loader for C7's bytecode module format:
// a little-endian, length-prefixed section container decoded once at load
// time into the type registry, global declarations, I/O bindings, and the
// Expr/Stmt tree internal/eval walks every cycle (internal/eval/ir.go never
// re-interprets raw opcodes). Section list, entry shapes, and validation
// rules are grounded on spec.md §4.7 and on
// original_source/.../tests/bytecode_encoder.rs's section/opcode tables.
package bytecode

import (
	"encoding/binary"
	"fmt"

	"github.com/trustplatform/trustrun/internal/value"
)

var magic = [4]byte{'T', 'R', 'B', 'C'}

const formatVersion uint16 = 1

// SectionID tags one top-level section of a module, in spec.md §4.7's
// declared order (order is not required on the wire; sections are found by
// id).
type SectionID uint16

const (
	SectionStringTable SectionID = iota + 1
	SectionTypeTable
	SectionPouIndex
	SectionRefTable
	SectionConstPool
	SectionPouBodies
	SectionVarMeta
	SectionRetainInit
	SectionIoMap
	SectionDebugStringTable
	SectionDebugMap
)

// rawSections is the container's decoded-but-uninterpreted form: each
// section's id and payload bytes, before any section-specific parsing.
type rawSections map[SectionID][]byte

// encodeContainer writes the magic, version, section count, then each
// section as {id uint16, length uint32, payload}.
func encodeContainer(sections []struct {
	ID      SectionID
	Payload []byte
}) []byte {
	var buf []byte
	buf = append(buf, magic[:]...)
	buf = appendUint16(buf, formatVersion)
	buf = appendUint16(buf, uint16(len(sections)))
	for _, s := range sections {
		buf = appendUint16(buf, uint16(s.ID))
		buf = appendUint32(buf, uint32(len(s.Payload)))
		buf = append(buf, s.Payload...)
	}
	return buf
}

func decodeContainer(data []byte) (rawSections, error) {
	if len(data) < 8 {
		return nil, value.NewFault(value.FaultInvalidConfig, "bytecode module truncated before header")
	}
	if [4]byte{data[0], data[1], data[2], data[3]} != magic {
		return nil, value.NewFault(value.FaultInvalidConfig, "bytecode module missing TRBC magic")
	}
	version := binary.LittleEndian.Uint16(data[4:6])
	if version != formatVersion {
		return nil, value.NewFault(value.FaultInvalidConfig, "bytecode module version %d unsupported (want %d)", version, formatVersion)
	}
	count := binary.LittleEndian.Uint16(data[6:8])
	out := make(rawSections, count)
	off := 8
	for i := uint16(0); i < count; i++ {
		if off+6 > len(data) {
			return nil, value.NewFault(value.FaultInvalidConfig, "bytecode module truncated in section header %d", i)
		}
		id := SectionID(binary.LittleEndian.Uint16(data[off:]))
		length := binary.LittleEndian.Uint32(data[off+2:])
		off += 6
		if off+int(length) > len(data) {
			return nil, value.NewFault(value.FaultInvalidConfig, "bytecode module section %d overruns buffer", id)
		}
		out[id] = data[off : off+int(length)]
		off += int(length)
	}
	return out, nil
}

func appendUint8(buf []byte, v uint8) []byte   { return append(buf, v) }
func appendUint16(buf []byte, v uint16) []byte { return appendN(buf, 2, uint64(v)) }
func appendUint32(buf []byte, v uint32) []byte { return appendN(buf, 4, uint64(v)) }
func appendUint64(buf []byte, v uint64) []byte { return appendN(buf, 8, v) }

func appendN(buf []byte, n int, v uint64) []byte {
	tmp := make([]byte, n)
	switch n {
	case 2:
		binary.LittleEndian.PutUint16(tmp, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(tmp, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(tmp, v)
	}
	return append(buf, tmp...)
}

func appendString(buf []byte, s string) []byte {
	buf = appendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// byteReader sequentially decodes fixed-width fields, returning the first
// error encountered and refusing every call after.
type byteReader struct {
	data []byte
	off  int
	err  error
}

func newByteReader(data []byte) *byteReader { return &byteReader{data: data} }

func (r *byteReader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.off+n > len(r.data) {
		r.err = fmt.Errorf("bytecode: unexpected end of section at offset %d (need %d more bytes)", r.off, n)
		return false
	}
	return true
}

func (r *byteReader) u8() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

func (r *byteReader) u16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

func (r *byteReader) u32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

func (r *byteReader) u64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(r.data[r.off:])
	r.off += 8
	return v
}

func (r *byteReader) i64() int64 { return int64(r.u64()) }

func (r *byteReader) bytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	v := r.data[r.off : r.off+n]
	r.off += n
	return v
}

func (r *byteReader) str() string {
	n := r.u32()
	return string(r.bytes(int(n)))
}

func (r *byteReader) bool() bool { return r.u8() != 0 }

func (r *byteReader) atEnd() bool { return r.err != nil || r.off >= len(r.data) }
