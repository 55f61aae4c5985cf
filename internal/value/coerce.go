package value

// Coerce implements the legal-widenings contract: integer -> wider integer,
// int -> real of sufficient range, narrow-string -> wide-string,
// enum -> underlying int. Every other pairing fails with TypeMismatch. It
// never panics; all failure is returned.
func Coerce(reg *TypeRegistry, v Value, target TypeID) (Value, error) {
	td, err := reg.ResolveAlias(target)
	if err != nil {
		return Value{}, err
	}

	if v.Kind == KindNull {
		dv, err := DefaultValue(reg, target, DefaultProfile())
		if err != nil {
			return Value{}, err
		}
		if td.Kind == TypeReference || td.Kind == TypePointer || td.Kind == TypeInterface {
			return Null(), nil
		}
		return dv, nil
	}

	switch td.Kind {
	case TypePrimitive:
		return coercePrimitive(v, td.Primitive)
	case TypeSubrange:
		coerced, err := Coerce(reg, v, td.Base)
		if err != nil {
			return Value{}, err
		}
		n := coerced.AsInt()
		if n < td.SubLower || n > td.SubUpper {
			return Value{}, NewFault(FaultOutOfRange, "%d outside subrange [%d, %d]", n, td.SubLower, td.SubUpper)
		}
		return coerced, nil
	case TypeEnum:
		if v.Kind == KindEnum {
			if v.Type == target {
				return v, nil
			}
			return Value{}, NewFault(FaultTypeMismatch, "enum type mismatch")
		}
		return Value{}, NewFault(FaultTypeMismatch, "cannot coerce %v to enum", v.Kind)
	case TypeStringN:
		if v.Kind == KindString || v.Kind == KindWideString {
			s := v.AsString()
			if td.MaxLen > 0 && len(s) > td.MaxLen {
				return Value{}, NewFault(FaultOutOfRange, "string length %d exceeds max %d", len(s), td.MaxLen)
			}
			return Str(KindString, s), nil
		}
		return Value{}, NewFault(FaultTypeMismatch, "cannot coerce %v to string", v.Kind)
	case TypeArray:
		if v.Kind != KindArray {
			return Value{}, NewFault(FaultTypeMismatch, "cannot coerce %v to ARRAY", v.Kind)
		}
		if v.Type == target {
			return v, nil
		}
		// An untyped array literal (Type == 0, built fresh by ArrayInitExpr)
		// adopts the target array type once every element legally coerces to
		// the declared element type; a literal with a concrete, mismatched
		// Type is rejected rather than silently reinterpreted.
		if v.Type != 0 {
			return Value{}, NewFault(FaultTypeMismatch, "cannot coerce array type %d to %d", v.Type, target)
		}
		elems := v.Elems()
		coerced := make([]Value, len(elems))
		for i, e := range elems {
			ce, err := Coerce(reg, e, td.ElemType)
			if err != nil {
				return Value{}, err
			}
			coerced[i] = ce
		}
		bounds := v.Bounds()
		if bounds == nil {
			bounds = td.Bounds
		}
		return Array(target, coerced, bounds), nil
	default:
		// structs/instances/references: identity-only coercion.
		if v.Type == target || v.Kind == KindInstanceID || v.Kind == KindReference {
			return v, nil
		}
		return Value{}, NewFault(FaultTypeMismatch, "cannot coerce %v to %v", v.Kind, td.Kind)
	}
}

func coercePrimitive(v Value, target Kind) (Value, error) {
	if v.Kind == target {
		return v, nil
	}

	switch {
	case v.Kind.IsInteger() && target.IsInteger():
		return widenInteger(v, target)
	case v.Kind.IsInteger() && target.IsReal():
		return Real(target, intToFloat(v)), nil
	case v.Kind == KindEnum && target.IsInteger():
		return Int(target, v.EnumNumeric()), nil
	case v.Kind == KindString && target == KindWideString:
		return Str(KindWideString, v.AsString()), nil
	case v.Kind == KindChar && target == KindWideChar:
		return Str(KindWideChar, v.AsString()), nil
	case v.Kind.IsReal() && target.IsReal():
		if v.Kind == KindF32 && target == KindF64 {
			return Real(KindF64, v.AsFloat()), nil
		}
		if v.Kind == KindF64 && target == KindF32 {
			return Value{}, NewFault(FaultTypeMismatch, "LREAL to REAL is a narrowing, not a legal widening")
		}
	}
	return Value{}, NewFault(FaultTypeMismatch, "illegal coercion %v -> %v", v.Kind, target)
}

// widenInteger only allows widening to a type with equal-or-greater bit
// width and compatible signedness domain (unsigned source may widen to a
// signed target of strictly greater width, matching typical IEC integer
// promotion; signed-to-unsigned is rejected as it isn't a pure widening).
func widenInteger(v Value, target Kind) (Value, error) {
	srcWidth, dstWidth := v.Kind.BitWidth(), target.BitWidth()
	if v.Kind.IsSigned() && !target.IsSigned() {
		return Value{}, NewFault(FaultTypeMismatch, "signed %v cannot widen to unsigned %v", v.Kind, target)
	}
	if dstWidth < srcWidth {
		return Value{}, NewFault(FaultTypeMismatch, "%v -> %v is a narrowing, not a legal widening", v.Kind, target)
	}
	if !v.Kind.IsSigned() && target.IsSigned() && dstWidth == srcWidth {
		return Value{}, NewFault(FaultTypeMismatch, "unsigned %v cannot widen to signed %v of equal width", v.Kind, target)
	}
	if v.Kind.IsSigned() {
		return Int(target, v.AsInt()), nil
	}
	return Uint(target, v.AsUint()), nil
}

func intToFloat(v Value) float64 {
	if v.Kind.IsSigned() {
		return float64(v.AsInt())
	}
	return float64(v.AsUint())
}
