package bytecode

// StringTable is the module's deduplicated UTF-8 string pool; every other
// section references entries by index (spec.md §4.7's STRING_TABLE).
type StringTable struct {
	entries []string
	index   map[string]uint32 // encoder-side dedup
}

func newStringTable() *StringTable {
	return &StringTable{index: make(map[string]uint32)}
}

// NewStringTable builds an empty table, exported for callers outside this
// package that need to seed a DebugSession before any module has been
// loaded (internal/control).
func NewStringTable() *StringTable {
	return newStringTable()
}

// Intern returns s's index, adding it if not already present.
func (t *StringTable) Intern(s string) uint32 {
	if idx, ok := t.index[s]; ok {
		return idx
	}
	idx := uint32(len(t.entries))
	t.entries = append(t.entries, s)
	t.index[s] = idx
	return idx
}

// Get returns the string at idx, or "" if out of range.
func (t *StringTable) Get(idx uint32) string {
	if int(idx) >= len(t.entries) {
		return ""
	}
	return t.entries[idx]
}

func (t *StringTable) Len() int { return len(t.entries) }

// IndexOf returns s's index and true if s is already interned, used by the
// control plane to resolve a breakpoint's file name against DEBUG_STRING_TABLE
// without mutating it.
func (t *StringTable) IndexOf(s string) (uint32, bool) {
	idx, ok := t.index[s]
	return idx, ok
}

func (t *StringTable) encode() []byte {
	var buf []byte
	buf = appendUint32(buf, uint32(len(t.entries)))
	for _, s := range t.entries {
		buf = appendString(buf, s)
	}
	return buf
}

func decodeStringTable(data []byte) (*StringTable, error) {
	r := newByteReader(data)
	n := r.u32()
	t := newStringTable()
	for i := uint32(0); i < n && r.err == nil; i++ {
		t.Intern(r.str())
	}
	if r.err != nil {
		return nil, r.err
	}
	return t, nil
}
