package bytecode

import "github.com/trustplatform/trustrun/internal/value"

// encodeTypeTable/decodeTypeTable translate the registry-shaped
// value.TypeDescriptor list to and from spec.md §4.7's TYPE_TABLE entries
// {kind, optional name_idx, data} — data's shape depends on kind exactly as
// §3's data model defines per TypeKind.
func encodeTypeTable(descs []value.TypeDescriptor, strings *StringTable) []byte {
	var buf []byte
	buf = appendUint32(buf, uint32(len(descs)))
	for _, d := range descs {
		buf = appendUint8(buf, uint8(d.Kind))
		hasName := d.Name != ""
		buf = appendUint8(buf, boolByte(hasName))
		if hasName {
			buf = appendUint32(buf, strings.Intern(d.Name))
		}
		switch d.Kind {
		case value.TypePrimitive:
			buf = appendUint8(buf, uint8(d.Primitive))
		case value.TypeAlias, value.TypePointer, value.TypeReference:
			buf = appendUint32(buf, uint32(d.Base))
		case value.TypeSubrange:
			buf = appendUint8(buf, uint8(d.Primitive))
			buf = appendUint64(buf, uint64(d.SubLower))
			buf = appendUint64(buf, uint64(d.SubUpper))
		case value.TypeArray:
			buf = appendUint32(buf, uint32(d.ElemType))
			buf = appendUint32(buf, uint32(len(d.Bounds)))
			for _, b := range d.Bounds {
				buf = appendUint64(buf, uint64(b[0]))
				buf = appendUint64(buf, uint64(b[1]))
			}
		case value.TypeStruct, value.TypeUnion, value.TypeFunctionBlock, value.TypeClass, value.TypeInterface:
			buf = appendUint32(buf, uint32(d.ParentType))
			buf = appendUint32(buf, uint32(len(d.Fields)))
			for _, f := range d.Fields {
				buf = appendString(buf, f.Name)
				buf = appendUint32(buf, uint32(f.Type))
				buf = appendUint64(buf, uint64(f.RelativeAddress))
				buf = appendUint8(buf, boolByte(f.HasInitializer))
				if f.HasInitializer {
					buf = appendConstValue(buf, f.InitConst, strings)
				}
			}
			buf = appendUint32(buf, uint32(len(d.Methods)))
			for _, m := range d.Methods {
				buf = appendString(buf, m.Name)
				buf = appendUint32(buf, uint32(m.Slot))
				buf = appendUint32(buf, m.POU)
			}
		case value.TypeEnum:
			buf = appendUint8(buf, uint8(d.EnumBase))
			buf = appendUint32(buf, uint32(len(d.Variants)))
			for _, v := range d.Variants {
				buf = appendString(buf, v.Name)
				buf = appendUint64(buf, uint64(v.Value))
			}
		case value.TypeStringN:
			buf = appendUint32(buf, uint32(d.MaxLen))
		}
	}
	return buf
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func decodeTypeTable(data []byte, strings *StringTable) ([]value.TypeDescriptor, error) {
	r := newByteReader(data)
	n := r.u32()
	out := make([]value.TypeDescriptor, 0, n)
	for i := uint32(0); i < n && r.err == nil; i++ {
		var d value.TypeDescriptor
		d.Kind = value.TypeKind(r.u8())
		if r.bool() {
			d.Name = strings.Get(r.u32())
		}
		switch d.Kind {
		case value.TypePrimitive:
			d.Primitive = value.Kind(r.u8())
		case value.TypeAlias, value.TypePointer, value.TypeReference:
			d.Base = value.TypeID(r.u32())
		case value.TypeSubrange:
			d.Primitive = value.Kind(r.u8())
			d.SubLower = r.i64()
			d.SubUpper = r.i64()
		case value.TypeArray:
			d.ElemType = value.TypeID(r.u32())
			nb := r.u32()
			for j := uint32(0); j < nb; j++ {
				lo := r.i64()
				hi := r.i64()
				d.Bounds = append(d.Bounds, [2]int64{lo, hi})
			}
		case value.TypeStruct, value.TypeUnion, value.TypeFunctionBlock, value.TypeClass, value.TypeInterface:
			d.ParentType = value.TypeID(r.u32())
			nf := r.u32()
			for j := uint32(0); j < nf; j++ {
				var f value.FieldDecl
				f.Name = r.str()
				f.Type = value.TypeID(r.u32())
				f.RelativeAddress = r.i64()
				if r.bool() {
					f.HasInitializer = true
					v, err := readConstValue(r, strings)
					if err != nil {
						return nil, err
					}
					f.InitConst = v
				}
				d.Fields = append(d.Fields, f)
			}
			nm := r.u32()
			for j := uint32(0); j < nm; j++ {
				var m value.MethodSlot
				m.Name = r.str()
				m.Slot = int(r.u32())
				m.POU = r.u32()
				d.Methods = append(d.Methods, m)
			}
		case value.TypeEnum:
			d.EnumBase = value.Kind(r.u8())
			nv := r.u32()
			for j := uint32(0); j < nv; j++ {
				name := r.str()
				val := r.i64()
				d.Variants = append(d.Variants, value.EnumVariant{Name: name, Value: val})
			}
		case value.TypeStringN:
			d.MaxLen = int(r.u32())
		}
		out = append(out, d)
	}
	if r.err != nil {
		return nil, r.err
	}
	return out, nil
}
