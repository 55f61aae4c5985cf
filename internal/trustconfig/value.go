package trustconfig

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

// resolveValue builds a value.Value from a SafeStateEntry's Kind/Value
// pair, covering the integer and bit-string kinds a config-file literal
// can unambiguously express.
func (e SafeStateEntry) resolveValue() (value.Value, error) {
	kind, ok := kindByName[e.Kind]
	if !ok {
		return value.Value{}, fmt.Errorf("trustconfig: safe-state kind %q is not a plain integer/bit-string kind", e.Kind)
	}
	if kind == value.KindBool {
		return value.Bool(e.Value != 0), nil
	}
	if kind.IsSigned() {
		return value.Int(kind, e.Value), nil
	}
	return value.Uint(kind, uint64(e.Value)), nil
}
