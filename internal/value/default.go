package value

// Profile carries the configurable knobs default_value/coerce/size_of need:
// the tick resolution for short Date/TOD/DT values. Per the decided Open
// Question, it defaults to 1ms.
type Profile struct {
	ShortTickNanos int64
}

func DefaultProfile() Profile { return Profile{ShortTickNanos: 1_000_000} }

// DefaultValue produces the deterministic zero value for a type: numeric
// 0, bool false, empty strings, zero durations, Null for reference/instance
// types, and zero-filled composites with every field/element recursively
// defaulted, except that a field with a declared initializer takes its
// InitConst value.
func DefaultValue(reg *TypeRegistry, id TypeID, profile Profile) (Value, error) {
	d, err := reg.Lookup(id)
	if err != nil {
		return Value{}, err
	}
	switch d.Kind {
	case TypePrimitive:
		return defaultPrimitive(d.Primitive), nil
	case TypeAlias:
		return DefaultValue(reg, d.Base, profile)
	case TypeSubrange:
		base, err := DefaultValue(reg, d.Base, profile)
		if err != nil {
			return Value{}, err
		}
		if d.SubLower > 0 || d.SubUpper < 0 {
			// zero is outside the declared range: default to the lower bound
			return Int(base.Kind, d.SubLower), nil
		}
		return base, nil
	case TypeStringN:
		return Str(KindString, ""), nil
	case TypeEnum:
		if len(d.Variants) == 0 {
			return Value{}, NewFault(FaultInvalidConfig, "enum %s has no variants", d.Name)
		}
		v := d.Variants[0]
		return Enum(id, v.Name, v.Value), nil
	case TypeArray:
		return defaultArray(reg, d, id, profile)
	case TypeStruct, TypeUnion, TypeFunctionBlock, TypeClass:
		return defaultComposite(reg, d, id, profile)
	case TypeReference, TypePointer:
		return Null(), nil
	case TypeInterface:
		return Null(), nil
	}
	return Value{}, NewFault(FaultTypeMismatch, "no default for type kind %v", d.Kind)
}

func defaultPrimitive(k Kind) Value {
	switch k {
	case KindBool:
		return Bool(false)
	case KindS8, KindS16, KindS32, KindS64,
		KindU8, KindU16, KindU32, KindU64,
		KindB8, KindB16, KindB32, KindB64:
		return Value{Kind: k, num: 0}
	case KindF32, KindF64:
		return Real(k, 0)
	case KindDuration:
		return Duration(0)
	case KindDateShort, KindDateLong, KindTODShort, KindTODLong, KindDTShort, KindDTLong:
		return Value{Kind: k, num: 0}
	case KindString, KindWideString:
		return Str(k, "")
	case KindChar, KindWideChar:
		return Str(k, "\x00")
	}
	return Value{Kind: KindNull}
}

func defaultArray(reg *TypeRegistry, d *TypeDescriptor, id TypeID, profile Profile) (Value, error) {
	n := 1
	for _, b := range d.Bounds {
		n *= int(b[1]-b[0]) + 1
	}
	elems := make([]Value, n)
	elem, err := DefaultValue(reg, d.ElemType, profile)
	if err != nil {
		return Value{}, err
	}
	for i := range elems {
		elems[i] = elem
	}
	return Array(id, elems, d.Bounds), nil
}

func defaultComposite(reg *TypeRegistry, d *TypeDescriptor, id TypeID, profile Profile) (Value, error) {
	ancestors, err := reg.Ancestors(id)
	if err != nil {
		return Value{}, err
	}
	var fields []Field
	for _, anc := range ancestors {
		for _, fd := range anc.Fields {
			fv, err := DefaultValue(reg, fd.Type, profile)
			if err != nil {
				return Value{}, err
			}
			if fd.HasInitializer {
				fv = fd.InitConst
			}
			fields = append(fields, Field{Name: fd.Name, Value: fv})
		}
	}
	kind := KindStruct
	if d.Kind == TypeUnion {
		kind = KindUnion
	}
	v := Value{Kind: kind, Type: id, comp: &Composite{Fields: fields}}
	return v, nil
}
