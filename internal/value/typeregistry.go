package value

import "fmt"

// TypeKind tags a TypeDescriptor's shape, mirroring the bytecode TYPE_TABLE
// kinds exactly (C7 decodes straight into these).
type TypeKind uint8

const (
	TypePrimitive TypeKind = iota
	TypeAlias
	TypeSubrange
	TypeArray
	TypeStruct
	TypeUnion
	TypeEnum
	TypeStringN
	TypeReference
	TypePointer
	TypeFunctionBlock
	TypeClass
	TypeInterface
)

// FieldDecl is one declared member of a Struct/Union/FunctionBlock/Class
// type, in declaration order. RelativeAddress, when >= 0, overrides the
// packed-layout offset for %Xn/%Bn/%Wn/%Dn per-field address overrides.
type FieldDecl struct {
	Name            string
	Type            TypeID
	RelativeAddress int64
	HasInitializer  bool
	InitConst       Value
}

// EnumVariant is one declared enum member with its backing numeric value.
type EnumVariant struct {
	Name  string
	Value int64
}

// MethodSlot is a vtable entry for a class/interface method, addressed by
// slot index rather than name for dispatch speed (per the "polymorphism is
// a tagged variant dispatched by vtable slot" design note).
type MethodSlot struct {
	Name string
	Slot int
	POU  uint32 // POU id implementing this slot
}

// TypeDescriptor is one immutable entry of the sealed TypeRegistry.
type TypeDescriptor struct {
	ID   TypeID
	Name string
	Kind TypeKind

	// TypePrimitive
	Primitive Kind

	// TypeAlias / TypePointer / TypeReference
	Base TypeID

	// TypeSubrange
	SubLower, SubUpper int64

	// TypeArray
	ElemType TypeID
	Bounds   [][2]int64

	// TypeStruct / TypeUnion / TypeFunctionBlock / TypeClass / TypeInterface
	Fields []FieldDecl

	// TypeEnum
	EnumBase     Kind
	Variants     []EnumVariant

	// TypeStringN
	MaxLen int

	// TypeFunctionBlock / TypeClass
	ParentType TypeID // 0 if none
	Methods    []MethodSlot
}

// TypeRegistry holds every TypeDescriptor produced by the bytecode loader.
// It is mutable only while being built (before Seal); all read paths after
// Seal are safe for concurrent use by multiple cycle-executor goroutines
// (each resource reads the same immutable registry).
type TypeRegistry struct {
	descs  []TypeDescriptor // index 0 unused; TypeID 0 is invalid
	byName map[string]TypeID
	sealed bool
}

func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		descs:  make([]TypeDescriptor, 1),
		byName: make(map[string]TypeID),
	}
}

// Register adds a new type descriptor and returns its assigned id. Must be
// called before Seal.
func (r *TypeRegistry) Register(d TypeDescriptor) (TypeID, error) {
	if r.sealed {
		return 0, fmt.Errorf("type registry is sealed")
	}
	id := TypeID(len(r.descs))
	d.ID = id
	r.descs = append(r.descs, d)
	if d.Name != "" {
		r.byName[d.Name] = id
	}
	return id, nil
}

// Seal locks the registry against further mutation, matching the "Type
// Registry: immutable after program load" invariant.
func (r *TypeRegistry) Seal() { r.sealed = true }

func (r *TypeRegistry) Sealed() bool { return r.sealed }

func (r *TypeRegistry) Lookup(id TypeID) (*TypeDescriptor, error) {
	if id == 0 || int(id) >= len(r.descs) {
		return nil, NewFault(FaultInvalidReference, "unknown type id %d", id)
	}
	return &r.descs[id], nil
}

func (r *TypeRegistry) LookupByName(name string) (*TypeDescriptor, error) {
	id, ok := r.byName[name]
	if !ok {
		return nil, NewFault(FaultInvalidReference, "unknown type name %q", name)
	}
	return r.Lookup(id)
}

// ResolveAlias follows TypeAlias chains transitively to the first
// non-alias descriptor.
func (r *TypeRegistry) ResolveAlias(id TypeID) (*TypeDescriptor, error) {
	seen := map[TypeID]bool{}
	for {
		d, err := r.Lookup(id)
		if err != nil {
			return nil, err
		}
		if d.Kind != TypeAlias {
			return d, nil
		}
		if seen[id] {
			return nil, NewFault(FaultInvalidConfig, "alias cycle at type %d", id)
		}
		seen[id] = true
		id = d.Base
	}
}

// ResolveArithmetic unwraps subrange (and alias) to the underlying base
// type for arithmetic purposes, per "subrange resolution unwraps to base
// for arithmetic but is enforced at assignment".
func (r *TypeRegistry) ResolveArithmetic(id TypeID) (*TypeDescriptor, error) {
	d, err := r.ResolveAlias(id)
	if err != nil {
		return nil, err
	}
	if d.Kind == TypeSubrange {
		return r.ResolveAlias(d.Base)
	}
	return d, nil
}

// Ancestors walks a FunctionBlock/Class type's base-type chain, base-most
// first, for instance-creation member initialization order.
func (r *TypeRegistry) Ancestors(id TypeID) ([]*TypeDescriptor, error) {
	var chain []*TypeDescriptor
	cur := id
	seen := map[TypeID]bool{}
	for cur != 0 {
		d, err := r.Lookup(cur)
		if err != nil {
			return nil, err
		}
		if seen[cur] {
			return nil, NewFault(FaultInvalidConfig, "inheritance cycle at type %d", cur)
		}
		seen[cur] = true
		chain = append([]*TypeDescriptor{d}, chain...)
		cur = d.ParentType
	}
	return chain, nil
}

// ResolveMethod finds a method slot by name across a class's ancestor
// chain, most-derived override winning (later entries in Ancestors shadow
// earlier ones of the same name).
func (r *TypeRegistry) ResolveMethod(id TypeID, name string) (*MethodSlot, error) {
	chain, err := r.Ancestors(id)
	if err != nil {
		return nil, err
	}
	var found *MethodSlot
	for _, d := range chain {
		for i := range d.Methods {
			if d.Methods[i].Name == name {
				m := d.Methods[i]
				found = &m
			}
		}
	}
	if found == nil {
		return nil, NewFault(FaultUndefinedFunction, "method %q not found", name)
	}
	return found, nil
}
