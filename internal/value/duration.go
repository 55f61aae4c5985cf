package value

// ShortToLong converts a short (tick-resolution) time value to its long
// (nanosecond) form using the profile's tick resolution. LongToShort
// truncates (no rounding) per the "explicit truncation rules" contract;
// leap seconds are never modeled.
func ShortToLong(v Value, profile Profile) (Value, error) {
	var longKind Kind
	switch v.Kind {
	case KindDateShort:
		longKind = KindDateLong
	case KindTODShort:
		longKind = KindTODLong
	case KindDTShort:
		longKind = KindDTLong
	default:
		return Value{}, NewFault(FaultTypeMismatch, "%v is not a short time kind", v.Kind)
	}
	ticks := v.AsInt()
	ns := ticks * profile.ShortTickNanos
	if profile.ShortTickNanos != 0 && ns/profile.ShortTickNanos != ticks {
		return Value{}, NewFault(FaultOverflow, "short-to-long time conversion overflow")
	}
	return Value{Kind: longKind, Type: v.Type, num: uint64(ns)}, nil
}

func LongToShort(v Value, profile Profile) (Value, error) {
	var shortKind Kind
	switch v.Kind {
	case KindDateLong:
		shortKind = KindDateShort
	case KindTODLong:
		shortKind = KindTODShort
	case KindDTLong:
		shortKind = KindDTShort
	default:
		return Value{}, NewFault(FaultTypeMismatch, "%v is not a long time kind", v.Kind)
	}
	if profile.ShortTickNanos <= 0 {
		return Value{}, NewFault(FaultInvalidConfig, "non-positive tick resolution")
	}
	ns := v.AsInt()
	return Value{Kind: shortKind, Type: v.Type, num: uint64(ns / profile.ShortTickNanos)}, nil
}

// AddDuration adds a signed-nanosecond Duration to a Date/TOD/DateTime
// value, always operating in the long (nanosecond) domain and converting
// back to the source's short/long form. Overflow is a fault, never a
// silent wrap.
func AddDuration(t, d Value, profile Profile) (Value, error) {
	if d.Kind != KindDuration {
		return Value{}, NewFault(FaultTypeMismatch, "expected TIME operand, got %v", d.Kind)
	}
	isShort := t.Kind == KindDateShort || t.Kind == KindTODShort || t.Kind == KindDTShort
	long := t
	var err error
	if isShort {
		long, err = ShortToLong(t, profile)
		if err != nil {
			return Value{}, err
		}
	}
	sum := long.AsInt() + d.AsDurationNanos()
	if (d.AsDurationNanos() > 0 && sum < long.AsInt()) || (d.AsDurationNanos() < 0 && sum > long.AsInt()) {
		return Value{}, NewFault(FaultOverflow, "date/time arithmetic overflow")
	}
	result := Value{Kind: long.Kind, Type: long.Type, num: uint64(sum)}
	if isShort {
		return LongToShort(result, profile)
	}
	return result, nil
}
