package bytecode

import (
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru"
)

// DebugEntry is one DEBUG_MAP row: a source location a bytecode cursor maps
// to, in ascending (pou_id, code_offset) order per spec.md §4.7.
type DebugEntry struct {
	PouID      uint32
	FileIdx    uint32
	Line       int
	Column     int
	Kind       DebugEntryKind
	CodeOffset uint32
}

// DebugEntryKind tags what a DEBUG_MAP row marks: a statement boundary
// (where pause/breakpoint checks apply) or a call-site (for stack traces).
type DebugEntryKind uint8

const (
	DebugStatement DebugEntryKind = iota
	DebugCallSite
)

func encodeDebugMap(entries []DebugEntry) []byte {
	var buf []byte
	buf = appendUint32(buf, uint32(len(entries)))
	for _, e := range entries {
		buf = appendUint32(buf, e.PouID)
		buf = appendUint32(buf, e.FileIdx)
		buf = appendUint32(buf, uint32(e.Line))
		buf = appendUint32(buf, uint32(e.Column))
		buf = appendUint8(buf, uint8(e.Kind))
		buf = appendUint32(buf, e.CodeOffset)
	}
	return buf
}

func decodeDebugMap(data []byte) ([]DebugEntry, error) {
	r := newByteReader(data)
	n := r.u32()
	out := make([]DebugEntry, 0, n)
	for i := uint32(0); i < n && r.err == nil; i++ {
		out = append(out, DebugEntry{
			PouID:      r.u32(),
			FileIdx:    r.u32(),
			Line:       int(r.u32()),
			Column:     int(r.u32()),
			Kind:       DebugEntryKind(r.u8()),
			CodeOffset: r.u32(),
		})
	}
	if r.err != nil {
		return nil, r.err
	}
	return out, nil
}

// validateDebugMap enforces spec.md §4.7's "debug-map entries reference
// valid POUs and monotonic offsets" validation rule.
func validateDebugMap(entries []DebugEntry, pouCount int) error {
	lastOffset := make(map[uint32]uint32)
	seen := make(map[uint32]bool)
	for _, e := range entries {
		if int(e.PouID) >= pouCount {
			return fmt.Errorf("bytecode: debug map entry references unknown POU id %d", e.PouID)
		}
		if seen[e.PouID] && e.CodeOffset < lastOffset[e.PouID] {
			return fmt.Errorf("bytecode: debug map offsets for POU %d are not monotonic", e.PouID)
		}
		lastOffset[e.PouID] = e.CodeOffset
		seen[e.PouID] = true
	}
	return nil
}

// BreakpointIndex resolves (file, line, column) requests to the nearest
// statement boundary, per spec.md §4.7's breakpoint resolution algorithm,
// caching recent resolutions since a debug session re-resolves the same
// handful of source lines repeatedly across step/continue cycles.
type BreakpointIndex struct {
	byFile map[uint32][]DebugEntry // sorted by (line, column)
	cache  *lru.Cache
}

// ResolvedBreakpoint is a breakpoint request snapped to the first statement
// at or after the requested position: its source position and bytecode
// cursor.
type ResolvedBreakpoint struct {
	Line       int
	Column     int
	PouID      uint32
	CodeOffset uint32
}

func NewBreakpointIndex(entries []DebugEntry) *BreakpointIndex {
	byFile := make(map[uint32][]DebugEntry)
	for _, e := range entries {
		if e.Kind != DebugStatement {
			continue
		}
		byFile[e.FileIdx] = append(byFile[e.FileIdx], e)
	}
	for _, list := range byFile {
		sort.Slice(list, func(i, j int) bool {
			if list[i].Line != list[j].Line {
				return list[i].Line < list[j].Line
			}
			return list[i].Column < list[j].Column
		})
	}
	cache, _ := lru.New(256)
	return &BreakpointIndex{byFile: byFile, cache: cache}
}

type breakpointKey struct {
	file, line, col uint32
}

// Resolve finds the least DEBUG_MAP entry for fileIdx whose (line, column)
// is >= (line, column), and returns the adjusted position plus the bytecode
// cursor to arm. ok is false when no statement at or after the request
// exists in the file.
func (b *BreakpointIndex) Resolve(fileIdx uint32, line, column int) (ResolvedBreakpoint, bool) {
	key := breakpointKey{fileIdx, uint32(line), uint32(column)}
	if v, ok := b.cache.Get(key); ok {
		return v.(ResolvedBreakpoint), true
	}

	list := b.byFile[fileIdx]
	idx := sort.Search(len(list), func(i int) bool {
		if list[i].Line != line {
			return list[i].Line > line
		}
		return list[i].Column >= column
	})
	if idx >= len(list) {
		return ResolvedBreakpoint{}, false
	}
	e := list[idx]
	resolved := ResolvedBreakpoint{Line: e.Line, Column: e.Column, PouID: e.PouID, CodeOffset: e.CodeOffset}
	b.cache.Add(key, resolved)
	return resolved, true
}
