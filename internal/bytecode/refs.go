package bytecode

import "github.com/trustplatform/trustrun/internal/value"

// RefEntry is one REF_TABLE row (spec.md §4.7's REF_TABLE): a root kind
// and a storage name. The table is decoded, validated for non-empty names
// and re-encoded; ToRuntimeConfig does not use it, and POU_BODIES names
// are resolved by string at access time.
type RefEntry struct {
	Root value.RefRootKind
	Name string
}

func encodeRefTable(refs []RefEntry, strings *StringTable) []byte {
	var buf []byte
	buf = appendUint32(buf, uint32(len(refs)))
	for _, r := range refs {
		buf = appendUint8(buf, uint8(r.Root))
		buf = appendUint32(buf, strings.Intern(r.Name))
	}
	return buf
}

func decodeRefTable(data []byte, strings *StringTable) ([]RefEntry, error) {
	r := newByteReader(data)
	n := r.u32()
	out := make([]RefEntry, 0, n)
	for i := uint32(0); i < n && r.err == nil; i++ {
		root := value.RefRootKind(r.u8())
		name := strings.Get(r.u32())
		out = append(out, RefEntry{Root: root, Name: name})
	}
	if r.err != nil {
		return nil, r.err
	}
	return out, nil
}
