package control

import (
	"fmt"

	"github.com/trustplatform/trustrun/internal/value"
)

var kindByName = map[string]value.Kind{
	"BOOL":  value.KindBool,
	"SINT":  value.KindS8,
	"INT":   value.KindS16,
	"DINT":  value.KindS32,
	"LINT":  value.KindS64,
	"USINT": value.KindU8,
	"UINT":  value.KindU16,
	"UDINT": value.KindU32,
	"ULINT": value.KindU64,
	"BYTE":  value.KindB8,
	"WORD":  value.KindB16,
	"DWORD": value.KindB32,
	"LWORD": value.KindB64,
}

// ResolveValues zips Names[i] with Values[i] into a name->Value map for a
// VariableWrite request's mesh-apply command.
func ResolveValues(names []string, values []RequestValue) (map[string]value.Value, error) {
	if len(names) != len(values) {
		return nil, fmt.Errorf("control: variable_write: %d names but %d values", len(names), len(values))
	}
	out := make(map[string]value.Value, len(names))
	for i, name := range names {
		kind, ok := valueKind(values[i].Kind)
		if !ok {
			return nil, fmt.Errorf("control: variable_write: unknown kind %q for %q", values[i].Kind, name)
		}
		if kind == value.KindBool {
			out[name] = value.Bool(values[i].Value != 0)
			continue
		}
		if kind.IsSigned() {
			out[name] = value.Int(kind, values[i].Value)
		} else {
			out[name] = value.Uint(kind, uint64(values[i].Value))
		}
	}
	return out, nil
}
