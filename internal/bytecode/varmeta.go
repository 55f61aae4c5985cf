package bytecode

import (
	"github.com/trustplatform/trustrun/internal/eval"
	"github.com/trustplatform/trustrun/internal/ioimage"
	"github.com/trustplatform/trustrun/internal/runtime"
	"github.com/trustplatform/trustrun/internal/value"
)

// ImageSizes carries the process image's declared Input/Output/Memory byte
// extents, folded into VAR_META's header since spec.md §4.7 has no
// dedicated section for them and they are intrinsically global-scope
// metadata.
type ImageSizes struct {
	Input, Output, Memory int
}

// encodeVarMeta/decodeVarMeta carry spec.md §4.7's VAR_META section: the
// global variable declarations a loaded module installs, including their
// RETAIN flag and optional initializer (the RETAIN_INIT section the spec
// names separately is folded in here as the initializer payload, since
// runtime.GlobalDecl already carries both together).
func encodeVarMeta(sizes ImageSizes, globals []runtime.GlobalDecl, strings *StringTable, cp *ConstPool) []byte {
	var buf []byte
	buf = appendUint32(buf, uint32(sizes.Input))
	buf = appendUint32(buf, uint32(sizes.Output))
	buf = appendUint32(buf, uint32(sizes.Memory))
	buf = appendUint32(buf, uint32(len(globals)))
	for _, g := range globals {
		buf = appendUint32(buf, strings.Intern(g.Name))
		buf = appendUint32(buf, uint32(g.Type))
		buf = appendUint8(buf, boolByte(g.Retain))
		buf = appendUint8(buf, boolByte(g.HasInitializer))
		if g.HasInitializer {
			idx := cp.Add(constOf(g.Initializer))
			buf = appendUint32(buf, idx)
		}
	}
	return buf
}

// constOf extracts the literal value backing a global initializer. Only
// LiteralExpr initializers round-trip through the const pool; any other
// initializer expression is stored as Null and is not encoded anywhere
// else in the module.
func constOf(e eval.Expr) value.Value {
	if lit, ok := e.(eval.LiteralExpr); ok {
		return lit.Value
	}
	return value.Null()
}

func decodeVarMeta(data []byte, strings *StringTable, cp *ConstPool) (ImageSizes, []runtime.GlobalDecl, error) {
	r := newByteReader(data)
	sizes := ImageSizes{Input: int(r.u32()), Output: int(r.u32()), Memory: int(r.u32())}
	n := r.u32()
	out := make([]runtime.GlobalDecl, 0, n)
	for i := uint32(0); i < n && r.err == nil; i++ {
		var g runtime.GlobalDecl
		g.Name = strings.Get(r.u32())
		g.Type = value.TypeID(r.u32())
		g.Retain = r.bool()
		g.HasInitializer = r.bool()
		if g.HasInitializer {
			idx := r.u32()
			if r.err != nil {
				break
			}
			v, err := cp.Get(idx)
			if err != nil {
				return sizes, nil, err
			}
			g.Initializer = eval.LiteralExpr{Value: v}
		}
		out = append(out, g)
	}
	if r.err != nil {
		return sizes, nil, r.err
	}
	return sizes, out, nil
}

// BindingEntry is one IO_MAP row before expansion: a single declared global
// bound to an external address, expanded to leaf Bindings at load time via
// ioimage.ExpandBinding (the struct/array leaf-walk needs the sealed type
// registry, so expansion happens in module.go, not here).
type BindingEntry struct {
	GlobalName string
	Type       value.TypeID
	Addr       ioimage.IoAddress
}

func encodeIoMap(entries []BindingEntry, safeState []ioimage.SafeStateEntry, strings *StringTable, cp *ConstPool) []byte {
	var buf []byte
	buf = appendUint32(buf, uint32(len(entries)))
	for _, e := range entries {
		buf = appendUint32(buf, strings.Intern(e.GlobalName))
		buf = appendUint32(buf, uint32(e.Type))
		buf = appendString(buf, e.Addr.String())
	}
	buf = appendUint32(buf, uint32(len(safeState)))
	for _, s := range safeState {
		buf = appendString(buf, s.Addr.String())
		idx := cp.Add(s.Value)
		buf = appendUint32(buf, idx)
	}
	return buf
}

func decodeIoMap(data []byte, strings *StringTable, cp *ConstPool) ([]BindingEntry, []ioimage.SafeStateEntry, error) {
	r := newByteReader(data)
	n := r.u32()
	entries := make([]BindingEntry, 0, n)
	for i := uint32(0); i < n && r.err == nil; i++ {
		name := strings.Get(r.u32())
		typeID := value.TypeID(r.u32())
		addrStr := r.str()
		if r.err != nil {
			break
		}
		addr, err := ioimage.ParseIoAddress(addrStr)
		if err != nil {
			return nil, nil, err
		}
		entries = append(entries, BindingEntry{GlobalName: name, Type: typeID, Addr: addr})
	}
	if r.err != nil {
		return nil, nil, r.err
	}

	ns := r.u32()
	safeState := make([]ioimage.SafeStateEntry, 0, ns)
	for i := uint32(0); i < ns && r.err == nil; i++ {
		addrStr := r.str()
		idx := r.u32()
		if r.err != nil {
			break
		}
		addr, err := ioimage.ParseIoAddress(addrStr)
		if err != nil {
			return nil, nil, err
		}
		v, err := cp.Get(idx)
		if err != nil {
			return nil, nil, err
		}
		safeState = append(safeState, ioimage.SafeStateEntry{Addr: addr, Value: v})
	}
	if r.err != nil {
		return nil, nil, r.err
	}
	return entries, safeState, nil
}
