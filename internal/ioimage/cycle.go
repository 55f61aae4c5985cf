package ioimage

import (
	"sort"
	"strings"

	"github.com/trustplatform/trustrun/internal/storage"
	"github.com/trustplatform/trustrun/internal/value"
)

// UnresolvedWildcardError reports wildcard bindings (`%I*`) that were never
// resolved by a VAR_CONFIG entry — spec.md §4.4's "abort load with a list of
// unresolved names" rule, surfaced to the host as exit code 3 (spec.md §6).
type UnresolvedWildcardError struct {
	Names []string
}

func (e *UnresolvedWildcardError) Error() string {
	return "unresolved wildcard I/O addresses: " + strings.Join(e.Names, ", ")
}

// ValidateBindings rejects any binding that is still a wildcard placeholder,
// aggregating every offending name into one error rather than failing on
// the first.
func ValidateBindings(bindings []Binding) error {
	var names []string
	for _, b := range bindings {
		if b.Addr.Wildcard {
			names = append(names, b.Ref.Name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)
	return &UnresolvedWildcardError{Names: names}
}

// ReadInputs implements spec.md §4.4's read_inputs(storage): for every
// Input/Memory binding, read the image, coerce to the declared type, and
// write to storage.
func ReadInputs(img *ProcessImage, bindings []Binding, reg *value.TypeRegistry, profile value.Profile, st *storage.VariableStorage) error {
	for _, b := range bindings {
		if b.Addr.Area != AreaInput && b.Addr.Area != AreaMemory {
			continue
		}
		raw, err := img.ReadRaw(b.Addr)
		if err != nil {
			return err
		}
		v, err := rawToTypedValue(reg, profile, raw, b.Type)
		if err != nil {
			return err
		}
		if err := st.WriteByRef(b.Ref, v); err != nil {
			return err
		}
	}
	return nil
}

// WriteOutputs implements spec.md §4.4's write_outputs(storage): for every
// Output/Memory binding, read from storage, coerce to the image encoding,
// and write to the image.
func WriteOutputs(img *ProcessImage, bindings []Binding, st *storage.VariableStorage) error {
	for _, b := range bindings {
		if b.Addr.Area != AreaOutput && b.Addr.Area != AreaMemory {
			continue
		}
		v, err := st.ReadByRef(b.Ref)
		if err != nil {
			return err
		}
		raw, err := typedValueToRaw(v)
		if err != nil {
			return err
		}
		if err := img.WriteRaw(b.Addr, raw); err != nil {
			return err
		}
	}
	return nil
}

// SafeStateEntry is one (address, value) pair from the declared safe-state
// list, applied directly to the output image on a fault decision, bypassing
// storage entirely per spec.md §4.4.
type SafeStateEntry struct {
	Addr  IoAddress
	Value value.Value
}

// ApplySafeState writes every declared safe-state entry straight into the
// image, in declaration order.
func ApplySafeState(img *ProcessImage, entries []SafeStateEntry) error {
	for _, e := range entries {
		raw, err := typedValueToRaw(e.Value)
		if err != nil {
			return err
		}
		if err := img.WriteRaw(e.Addr, raw); err != nil {
			return err
		}
	}
	return nil
}
