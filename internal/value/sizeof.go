package value

// SizeOf computes the packed little-endian byte size of a type, honoring
// per-field relative-address overrides the same way I/O binding expansion
// does: a field with an explicit RelativeAddress contributes only up to
// its own end, not a running packed offset, so overlapping manual layouts
// are possible by design (matching IEC AT-clause layouts on FBs mirrored
// onto hardware registers).
func SizeOf(reg *TypeRegistry, id TypeID) (int64, error) {
	d, err := reg.Lookup(id)
	if err != nil {
		return 0, err
	}
	switch d.Kind {
	case TypePrimitive:
		return int64(d.Primitive.BitWidth()+7) / 8, nil
	case TypeAlias:
		return SizeOf(reg, d.Base)
	case TypeSubrange:
		return SizeOf(reg, d.Base)
	case TypeStringN:
		return int64(d.MaxLen) + 1, nil
	case TypeEnum:
		return int64(d.EnumBase.BitWidth()+7) / 8, nil
	case TypeReference, TypePointer, TypeInterface:
		return 8, nil
	case TypeArray:
		elemSize, err := SizeOf(reg, d.ElemType)
		if err != nil {
			return 0, err
		}
		n := int64(1)
		for _, b := range d.Bounds {
			n *= b[1] - b[0] + 1
		}
		return n * elemSize, nil
	case TypeStruct, TypeUnion, TypeFunctionBlock, TypeClass:
		return sizeOfComposite(reg, d)
	}
	return 0, NewFault(FaultTypeMismatch, "no size for type kind %v", d.Kind)
}

func sizeOfComposite(reg *TypeRegistry, d *TypeDescriptor) (int64, error) {
	ancestors, err := reg.Ancestors(d.ID)
	if err != nil {
		return 0, err
	}
	var maxEnd, running int64
	for _, anc := range ancestors {
		for _, fd := range anc.Fields {
			fs, err := SizeOf(reg, fd.Type)
			if err != nil {
				return 0, err
			}
			off := running
			if fd.RelativeAddress >= 0 {
				off = fd.RelativeAddress
			}
			end := off + fs
			if end > maxEnd {
				maxEnd = end
			}
			running = off + fs
		}
	}
	if d.Kind == TypeUnion {
		// unions overlap every member at offset 0, so the packed maxEnd above
		// does not apply; the size is that of the widest member.
		var widest int64
		for _, anc := range ancestors {
			for _, fd := range anc.Fields {
				fs, err := SizeOf(reg, fd.Type)
				if err != nil {
					return 0, err
				}
				if fs > widest {
					widest = fs
				}
			}
		}
		return widest, nil
	}
	return maxEnd, nil
}
