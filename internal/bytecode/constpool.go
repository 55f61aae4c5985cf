package bytecode

import (
	"encoding/binary"
	"math"

	"github.com/trustplatform/trustrun/internal/value"
)

// ConstPool holds the module's typed constant values (spec.md §4.7's
// CONST_POOL). VAR_META's global initializers and IO_MAP's safe-state
// values reference entries by index; POU_BODIES literals and parameter
// defaults do not use the pool and are encoded inline in the node tree.
type ConstPool struct {
	values []value.Value
}

func newConstPool() *ConstPool { return &ConstPool{} }

// Add appends v and returns its index.
func (p *ConstPool) Add(v value.Value) uint32 {
	p.values = append(p.values, v)
	return uint32(len(p.values) - 1)
}

func (p *ConstPool) Get(idx uint32) (value.Value, error) {
	if int(idx) >= len(p.values) {
		return value.Value{}, value.NewFault(value.FaultInvalidConfig, "const pool index %d out of range", idx)
	}
	return p.values[idx], nil
}

func (p *ConstPool) Len() int { return len(p.values) }

func (p *ConstPool) encode(strings *StringTable) []byte {
	var buf []byte
	buf = appendUint32(buf, uint32(len(p.values)))
	for _, v := range p.values {
		buf = appendConstValue(buf, v, strings)
	}
	return buf
}

func decodeConstPool(data []byte, strings *StringTable) (*ConstPool, error) {
	r := newByteReader(data)
	n := r.u32()
	p := newConstPool()
	for i := uint32(0); i < n && r.err == nil; i++ {
		v, err := readConstValue(r, strings)
		if err != nil {
			return nil, err
		}
		p.values = append(p.values, v)
	}
	if r.err != nil {
		return nil, r.err
	}
	return p, nil
}

// appendConstValue/readConstValue are a standalone scalar value codec, kept
// separate from internal/runtime's retain-store codec (encodeRetainValue)
// so C7 does not import C5: the two serve different sections of the wire
// format and evolve independently even though the scalar cases overlap.
func appendConstValue(buf []byte, v value.Value, strings *StringTable) []byte {
	buf = appendUint8(buf, uint8(v.Kind))
	switch {
	case v.Kind == value.KindEnum:
		buf = appendUint32(buf, uint32(v.Type))
		buf = appendUint32(buf, strings.Intern(v.EnumVariant()))
		buf = appendUint64(buf, uint64(v.EnumNumeric()))
	case v.Kind == value.KindString || v.Kind == value.KindWideString:
		buf = appendString(buf, v.AsString())
	case v.Kind == value.KindF32:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v.AsFloat())))
		buf = append(buf, b...)
	case v.Kind == value.KindF64:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, math.Float64bits(v.AsFloat()))
		buf = append(buf, b...)
	case v.Kind == value.KindBool:
		buf = appendUint64(buf, v.AsUint())
	default:
		buf = appendUint64(buf, v.AsUint())
	}
	return buf
}

func readConstValue(r *byteReader, strings *StringTable) (value.Value, error) {
	kind := value.Kind(r.u8())
	switch {
	case kind == value.KindEnum:
		typeID := r.u32()
		nameIdx := r.u32()
		n := r.i64()
		if r.err != nil {
			return value.Value{}, r.err
		}
		return value.Enum(value.TypeID(typeID), strings.Get(nameIdx), n), nil
	case kind == value.KindString || kind == value.KindWideString:
		s := r.str()
		if r.err != nil {
			return value.Value{}, r.err
		}
		return value.Str(kind, s), nil
	case kind == value.KindF32:
		bits := r.u32()
		if r.err != nil {
			return value.Value{}, r.err
		}
		return value.Real(value.KindF32, float64(math.Float32frombits(bits))), nil
	case kind == value.KindF64:
		bits := r.u64()
		if r.err != nil {
			return value.Value{}, r.err
		}
		return value.Real(value.KindF64, math.Float64frombits(bits)), nil
	case kind == value.KindBool:
		n := r.u64()
		if r.err != nil {
			return value.Value{}, r.err
		}
		return value.Bool(n != 0), nil
	default:
		n := r.u64()
		if r.err != nil {
			return value.Value{}, r.err
		}
		return value.Uint(kind, n), nil
	}
}
