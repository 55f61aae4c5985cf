package runtime

import (
	"encoding/binary"
	"math"

	"github.com/trustplatform/trustrun/internal/value"
)

// encodeRetainValue serializes v to the opaque byte blob the retain store
// persists (spec.md §6's "abstract key-value blob keyed by global name").
// Scalar, time, and enum kinds round-trip exactly; struct/array/reference
// retained globals are out of scope (RETAIN is declared on scalar globals
// in every scenario spec.md exercises) and return TypeMismatch.
func encodeRetainValue(v value.Value) ([]byte, error) {
	switch {
	case v.Kind == value.KindEnum:
		name := v.EnumVariant()
		buf := make([]byte, 1+8+len(name))
		buf[0] = byte(v.Kind)
		binary.LittleEndian.PutUint64(buf[1:], uint64(v.EnumNumeric()))
		copy(buf[9:], name)
		return buf, nil
	case v.Kind == value.KindString || v.Kind == value.KindWideString:
		s := v.AsString()
		buf := make([]byte, 1+len(s))
		buf[0] = byte(v.Kind)
		copy(buf[1:], s)
		return buf, nil
	case v.Kind == value.KindF32:
		buf := make([]byte, 5)
		buf[0] = byte(v.Kind)
		binary.LittleEndian.PutUint32(buf[1:], math.Float32bits(float32(v.AsFloat())))
		return buf, nil
	case v.Kind == value.KindF64:
		buf := make([]byte, 9)
		buf[0] = byte(v.Kind)
		binary.LittleEndian.PutUint64(buf[1:], math.Float64bits(v.AsFloat()))
		return buf, nil
	case v.Kind == value.KindBool || v.Kind.IsInteger() || v.Kind == value.KindDuration || v.Kind.IsTime() ||
		v.Kind == value.KindChar || v.Kind == value.KindWideChar:
		buf := make([]byte, 9)
		buf[0] = byte(v.Kind)
		binary.LittleEndian.PutUint64(buf[1:], v.AsUint())
		return buf, nil
	}
	return nil, value.NewFault(value.FaultTypeMismatch, "retained global of kind %v cannot be persisted", v.Kind)
}

// decodeRetainValue reverses encodeRetainValue, then coerces the decoded
// scalar into typeID so subrange/enum validity is enforced the same way any
// other assignment is.
func decodeRetainValue(reg *value.TypeRegistry, raw []byte, typeID value.TypeID) (value.Value, error) {
	if len(raw) == 0 {
		return value.Value{}, value.NewFault(value.FaultTypeMismatch, "empty retain value")
	}
	kind := value.Kind(raw[0])
	payload := raw[1:]

	if kind == value.KindEnum {
		if len(payload) < 8 {
			return value.Value{}, value.NewFault(value.FaultTypeMismatch, "truncated retained enum")
		}
		n := int64(binary.LittleEndian.Uint64(payload))
		name := string(payload[8:])
		// Enum values carry their own TypeID; since the declared type is
		// already known here, build the Enum directly rather than going
		// through Coerce (which only accepts an already-matching TypeID).
		return value.Enum(typeID, name, n), nil
	}

	var natural value.Value
	switch kind {
	case value.KindString, value.KindWideString:
		natural = value.Str(kind, string(payload))
	case value.KindF32:
		if len(payload) < 4 {
			return value.Value{}, value.NewFault(value.FaultTypeMismatch, "truncated retained f32")
		}
		natural = value.Real(value.KindF32, float64(math.Float32frombits(binary.LittleEndian.Uint32(payload))))
	case value.KindF64:
		if len(payload) < 8 {
			return value.Value{}, value.NewFault(value.FaultTypeMismatch, "truncated retained f64")
		}
		natural = value.Real(value.KindF64, math.Float64frombits(binary.LittleEndian.Uint64(payload)))
	case value.KindBool:
		if len(payload) < 8 {
			return value.Value{}, value.NewFault(value.FaultTypeMismatch, "truncated retained bool")
		}
		natural = value.Bool(binary.LittleEndian.Uint64(payload) != 0)
	default:
		if len(payload) < 8 {
			return value.Value{}, value.NewFault(value.FaultTypeMismatch, "truncated retained scalar")
		}
		natural = value.Uint(kind, binary.LittleEndian.Uint64(payload))
	}
	return value.Coerce(reg, natural, typeID)
}
