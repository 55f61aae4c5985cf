package ioimage

import (
	"math"

	"github.com/trustplatform/trustrun/internal/value"
)

// Binding associates one storage target with an IoAddress and the target's
// declared type, used to coerce between the image's raw encoding and
// storage's typed Value on every read_inputs/write_outputs pass.
type Binding struct {
	Addr IoAddress
	Ref  *value.Reference
	Type value.TypeID
}

func withField(base *value.Reference, field string) *value.Reference {
	r := *base
	r.Path = append(append([]value.RefSegment{}, base.Path...), value.RefSegment{Kind: value.SegField, Field: field})
	return &r
}

func withIndex(base *value.Reference, idx int64) *value.Reference {
	r := *base
	r.Path = append(append([]value.RefSegment{}, base.Path...), value.RefSegment{Kind: value.SegIndex, Index: idx})
	return &r
}

// ExpandBinding walks typeID's structure starting at addr/base and returns
// one leaf Binding per scalar member, summing byte offsets as it descends
// (honoring a field's RelativeAddress override per spec's %Xn/%Bn/%Wn/%Dn
// per-field override rule) — the "structured-type leaf-binding expansion"
// of spec.md §4.4. Array expansion only supports the single-dimension case,
// matching internal/storage's own single-dimension flatIndex.
func ExpandBinding(reg *value.TypeRegistry, base *value.Reference, typeID value.TypeID, addr IoAddress) ([]Binding, error) {
	d, err := reg.ResolveAlias(typeID)
	if err != nil {
		return nil, err
	}

	switch d.Kind {
	case value.TypeArray:
		elemSize, err := value.SizeOf(reg, d.ElemType)
		if err != nil {
			return nil, err
		}
		var lo, hi int64
		if len(d.Bounds) > 0 {
			lo, hi = d.Bounds[0][0], d.Bounds[0][1]
		}
		var out []Binding
		for i, idx := 0, lo; idx <= hi; i, idx = i+1, idx+1 {
			elemAddr := addr
			elemAddr.Byte += int64(i) * elemSize
			sub, err := ExpandBinding(reg, withIndex(base, idx), d.ElemType, elemAddr)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
		return out, nil

	case value.TypeStruct, value.TypeUnion, value.TypeFunctionBlock, value.TypeClass:
		ancestors, err := reg.Ancestors(typeID)
		if err != nil {
			return nil, err
		}
		var out []Binding
		var running int64
		for _, anc := range ancestors {
			for _, fd := range anc.Fields {
				fs, err := value.SizeOf(reg, fd.Type)
				if err != nil {
					return nil, err
				}
				off := running
				if fd.RelativeAddress >= 0 {
					off = fd.RelativeAddress
				}
				fieldAddr := addr
				fieldAddr.Byte += off
				sub, err := ExpandBinding(reg, withField(base, fd.Name), fd.Type, fieldAddr)
				if err != nil {
					return nil, err
				}
				out = append(out, sub...)
				running = off + fs
			}
		}
		return out, nil

	case value.TypeReference, value.TypePointer, value.TypeInterface:
		return nil, value.NewFault(value.FaultInvalidConfig, "cannot bind a reference/pointer/interface type to an I/O address")

	default:
		// TypePrimitive, TypeSubrange, TypeEnum, TypeStringN: a scalar leaf.
		return []Binding{{Addr: addr, Ref: base, Type: typeID}}, nil
	}
}

// rawToTypedValue decodes raw (the bit pattern ReadRaw returned) into a
// Value of binding's declared type, going through the type's own default
// value to discover its natural Kind before coercing (so subrange bounds
// and enum identity are enforced the same way any other assignment is).
func rawToTypedValue(reg *value.TypeRegistry, profile value.Profile, raw uint64, targetType value.TypeID) (value.Value, error) {
	zero, err := value.DefaultValue(reg, targetType, profile)
	if err != nil {
		return value.Value{}, err
	}
	var natural value.Value
	switch zero.Kind {
	case value.KindF32:
		natural = value.Real(value.KindF32, float64(math.Float32frombits(uint32(raw))))
	case value.KindF64:
		natural = value.Real(value.KindF64, math.Float64frombits(raw))
	case value.KindBool:
		natural = value.Bool(raw != 0)
	default:
		natural = value.Uint(zero.Kind, raw)
	}
	return value.Coerce(reg, natural, targetType)
}

// typedValueToRaw encodes v's current bit pattern for writing into the
// image; Value already stores integers/bools/durations/dates as a raw
// uint64 internally, so only the real kinds need explicit bit-reinterpretation.
func typedValueToRaw(v value.Value) (uint64, error) {
	switch {
	case v.Kind == value.KindF32:
		return uint64(math.Float32bits(float32(v.AsFloat()))), nil
	case v.Kind == value.KindF64:
		return math.Float64bits(v.AsFloat()), nil
	case v.Kind.IsInteger() || v.Kind == value.KindBool || v.Kind == value.KindDuration || v.Kind.IsTime():
		return v.AsUint(), nil
	}
	return 0, value.NewFault(value.FaultTypeMismatch, "value kind %v cannot be written to a process-image address", v.Kind)
}
