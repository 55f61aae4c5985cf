package value

// TypeID indexes into a sealed TypeRegistry. Zero is never a valid type id;
// the registry never assigns it, and it is the Type of an untyped value
// (Null, or a Value built without a registered type).
type TypeID uint32

// InstanceID is an opaque handle into the storage instance arena (C2).
// InstanceIDs are monotonic and never reused within a run, matching the
// storage invariant that a stale handle fails resolution rather than
// aliasing a reused slot.
type InstanceID uint64

// FrameID is a monotonic, never-reused call-frame handle.
type FrameID uint64

// RefSegment is one step of a Reference's path: a struct field, an array
// index, or a pointer dereference.
type RefSegmentKind uint8

const (
	SegField RefSegmentKind = iota
	SegIndex
	SegDeref
)

type RefSegment struct {
	Kind  RefSegmentKind
	Field string
	Index int64
}

// RefRootKind tags what a Reference's path is anchored to.
type RefRootKind uint8

const (
	RootGlobal RefRootKind = iota
	RootFrameLocal
	RootInstance
)

// Reference is the payload of a KindReference value: an address-of a slot
// plus a path of field/index/deref segments, resolved fresh on every read
// or write per the storage model.
type Reference struct {
	Root     RefRootKind
	Name     string     // global name, or local name within the frame
	Frame    FrameID    // valid when Root == RootFrameLocal
	Instance InstanceID // valid when Root == RootInstance
	Path     []RefSegment
}

// Field is one named member of a Struct/Union value, carried in declaration
// order so traversal is deterministic (no implicit hash-map iteration order).
type Field struct {
	Name  string
	Value Value
}

// Composite is the heap payload for Struct, Union, and Array values. Struct
// and Union share a representation (an ordered field list); only Array uses
// Elems/Bounds. Kept as a separate allocation so scalar Values stay
// allocation-free in the hot evaluation path.
type Composite struct {
	Fields []Field    // Struct / Union
	Elems  []Value    // Array, dense, row-major
	Bounds [][2]int64 // Array, per-dimension [lo, hi] inclusive
}

// Value is the tagged union at the heart of the evaluator: the atomic
// currency passed between expressions, storage, and I/O. Scalar kinds are
// stored inline (num/f/str) to avoid allocation; composite kinds carry a
// pointer to a Composite.
type Value struct {
	Kind Kind
	Type TypeID

	num uint64  // bool, signed/unsigned/bit-string integers (reinterpreted bits), Duration ns, Date/TOD/DT ticks
	f   float64 // REAL / LREAL
	str string  // STRING / WSTRING / CHAR / WCHAR content, Enum variant name

	comp *Composite
	ref  *Reference
	inst InstanceID
}

func Null() Value { return Value{Kind: KindNull} }

func Bool(b bool) Value {
	var n uint64
	if b {
		n = 1
	}
	return Value{Kind: KindBool, num: n}
}

func (v Value) AsBool() bool { return v.num != 0 }

func Int(kind Kind, n int64) Value {
	return Value{Kind: kind, num: uint64(n)}
}

func (v Value) AsInt() int64 { return int64(v.num) }

func Uint(kind Kind, n uint64) Value {
	return Value{Kind: kind, num: n}
}

func (v Value) AsUint() uint64 { return v.num }

func Real(kind Kind, f float64) Value {
	return Value{Kind: kind, f: f}
}

func (v Value) AsFloat() float64 { return v.f }

func Duration(ns int64) Value {
	return Value{Kind: KindDuration, num: uint64(ns)}
}

func (v Value) AsDurationNanos() int64 { return int64(v.num) }

func Str(kind Kind, s string) Value {
	return Value{Kind: kind, str: s}
}

func (v Value) AsString() string { return v.str }

func Enum(typeID TypeID, variant string, numeric int64) Value {
	return Value{Kind: KindEnum, Type: typeID, str: variant, num: uint64(numeric)}
}

func (v Value) EnumVariant() string   { return v.str }
func (v Value) EnumNumeric() int64    { return int64(v.num) }

func Instance(typeID TypeID, id InstanceID) Value {
	return Value{Kind: KindInstanceID, Type: typeID, inst: id}
}

func (v Value) InstanceHandle() InstanceID { return v.inst }

func RefValue(r *Reference) Value {
	return Value{Kind: KindReference, ref: r}
}

func (v Value) Reference() *Reference { return v.ref }

func Struct(typeID TypeID, fields []Field) Value {
	return Value{Kind: KindStruct, Type: typeID, comp: &Composite{Fields: fields}}
}

func Union(typeID TypeID, fields []Field) Value {
	return Value{Kind: KindUnion, Type: typeID, comp: &Composite{Fields: fields}}
}

func Array(typeID TypeID, elems []Value, bounds [][2]int64) Value {
	return Value{Kind: KindArray, Type: typeID, comp: &Composite{Elems: elems, Bounds: bounds}}
}

func (v Value) Fields() []Field {
	if v.comp == nil {
		return nil
	}
	return v.comp.Fields
}

func (v Value) Elems() []Value {
	if v.comp == nil {
		return nil
	}
	return v.comp.Elems
}

func (v Value) Bounds() [][2]int64 {
	if v.comp == nil {
		return nil
	}
	return v.comp.Bounds
}

// Field looks up a struct/union member by name, returning ok=false if absent.
func (v Value) Field(name string) (Value, bool) {
	if v.comp == nil {
		return Value{}, false
	}
	for _, f := range v.comp.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// WithField returns a copy of v with the named field replaced. The
// underlying Composite is copied so Values behave as immutable snapshots
// once handed to the caller; storage.go owns the single mutable copy per
// slot and replaces it wholesale on write.
func (v Value) WithField(name string, newValue Value) (Value, bool) {
	if v.comp == nil {
		return v, false
	}
	fields := make([]Field, len(v.comp.Fields))
	copy(fields, v.comp.Fields)
	found := false
	for i := range fields {
		if fields[i].Name == name {
			fields[i].Value = newValue
			found = true
			break
		}
	}
	if !found {
		return v, false
	}
	nv := v
	nv.comp = &Composite{Fields: fields}
	return nv, true
}

// WithElem returns a copy of v with array element i (absolute, zero-based
// into the dense storage, already adjusted for the declared lower bound)
// replaced.
func (v Value) WithElem(i int, newValue Value) (Value, bool) {
	if v.comp == nil || i < 0 || i >= len(v.comp.Elems) {
		return v, false
	}
	elems := make([]Value, len(v.comp.Elems))
	copy(elems, v.comp.Elems)
	elems[i] = newValue
	nv := v
	nv.comp = &Composite{Fields: v.comp.Fields, Elems: elems, Bounds: v.comp.Bounds}
	return nv, true
}
