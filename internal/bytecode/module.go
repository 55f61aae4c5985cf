package bytecode

import (
	"fmt"

	"github.com/trustplatform/trustrun/internal/eval"
	"github.com/trustplatform/trustrun/internal/ioimage"
	"github.com/trustplatform/trustrun/internal/runtime"
	"github.com/trustplatform/trustrun/internal/value"
)

// BytecodeModule is a fully decoded module: every section parsed into its
// Go-native shape, validated, but not yet bound into a running Runtime
// (that binding is ToRuntimeConfig's job, since it needs a Profile the
// container itself does not carry).
type BytecodeModule struct {
	Strings    *StringTable
	Types      []value.TypeDescriptor
	Pous       []PouEntry
	Refs       []RefEntry
	Consts     *ConstPool
	ImageSizes ImageSizes
	Globals    []runtime.GlobalDecl
	Bindings   []BindingEntry
	SafeState  []ioimage.SafeStateEntry
	DebugFiles *StringTable
	DebugMap   []DebugEntry
}

// Encode serializes m back into a container's raw bytes. The string table,
// const pool, and POU_BODIES offsets are recomputed fresh (m.Strings and
// m.Consts, if set from a prior Decode, are ignored) so Encode can also
// build a module from scratch, as bytecode_test.go's round-trip tests do.
func (m *BytecodeModule) Encode() []byte {
	strings := newStringTable()
	cp := newConstPool()
	bodies := newBodyEncoder()

	// Every payload that can intern new strings or const-pool entries must
	// be computed before strings.encode()/cp.encode() run, since both
	// snapshot their tables at the moment they're called.
	pouIndexPayload := encodePouIndex(m.Pous, strings, bodies)
	typeTablePayload := encodeTypeTable(m.Types, strings)
	refTablePayload := encodeRefTable(m.Refs, strings)
	varMetaPayload := encodeVarMeta(m.ImageSizes, m.Globals, strings, cp)
	ioMapPayload := encodeIoMap(m.Bindings, m.SafeState, strings, cp)
	debugMapPayload := encodeDebugMap(m.DebugMap)
	constPoolPayload := cp.encode(strings)
	stringTablePayload := strings.encode()

	debugFiles := m.DebugFiles
	if debugFiles == nil {
		debugFiles = newStringTable()
	}
	debugStringPayload := debugFiles.encode()

	sections := []struct {
		ID      SectionID
		Payload []byte
	}{
		{SectionStringTable, stringTablePayload},
		{SectionTypeTable, typeTablePayload},
		{SectionPouIndex, pouIndexPayload},
		{SectionRefTable, refTablePayload},
		{SectionConstPool, constPoolPayload},
		{SectionPouBodies, bodies.buf},
		{SectionVarMeta, varMetaPayload},
		{SectionRetainInit, nil},
		{SectionIoMap, ioMapPayload},
		{SectionDebugStringTable, debugStringPayload},
		{SectionDebugMap, debugMapPayload},
	}
	return encodeContainer(sections)
}

// Decode parses and validates a module's raw bytes into a BytecodeModule.
func Decode(data []byte) (*BytecodeModule, error) {
	sections, err := decodeContainer(data)
	if err != nil {
		return nil, err
	}

	strings, err := decodeStringTable(sections[SectionStringTable])
	if err != nil {
		return nil, fmt.Errorf("STRING_TABLE: %w", err)
	}

	cp, err := decodeConstPool(sections[SectionConstPool], strings)
	if err != nil {
		return nil, fmt.Errorf("CONST_POOL: %w", err)
	}

	types, err := decodeTypeTable(sections[SectionTypeTable], strings)
	if err != nil {
		return nil, fmt.Errorf("TYPE_TABLE: %w", err)
	}

	pous, err := decodePouIndex(sections[SectionPouIndex], strings, sections[SectionPouBodies])
	if err != nil {
		return nil, fmt.Errorf("POU_INDEX: %w", err)
	}

	refs, err := decodeRefTable(sections[SectionRefTable], strings)
	if err != nil {
		return nil, fmt.Errorf("REF_TABLE: %w", err)
	}

	sizes, globals, err := decodeVarMeta(sections[SectionVarMeta], strings, cp)
	if err != nil {
		return nil, fmt.Errorf("VAR_META: %w", err)
	}

	bindings, safeState, err := decodeIoMap(sections[SectionIoMap], strings, cp)
	if err != nil {
		return nil, fmt.Errorf("IO_MAP: %w", err)
	}

	debugFiles, err := decodeStringTable(sections[SectionDebugStringTable])
	if err != nil {
		return nil, fmt.Errorf("DEBUG_STRING_TABLE: %w", err)
	}
	debugMap, err := decodeDebugMap(sections[SectionDebugMap])
	if err != nil {
		return nil, fmt.Errorf("DEBUG_MAP: %w", err)
	}

	m := &BytecodeModule{
		Strings:    strings,
		Types:      types,
		Pous:       pous,
		Refs:       refs,
		Consts:     cp,
		ImageSizes: sizes,
		Globals:    globals,
		Bindings:   bindings,
		SafeState:  safeState,
		DebugFiles: debugFiles,
		DebugMap:   debugMap,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate runs the module's pre-execution checks: the type graph acyclic
// except via named references, every REF_TABLE entry named, debug-map
// entries referencing valid POUs with monotonic offsets, and IO_MAP type
// ids within the type table. String-table indices are not range-checked
// (an out-of-range index decodes as the empty string), and nothing checks
// that POU bodies reference REF_TABLE by a valid index. POU body
// non-overlap is enforced structurally by
// decodePouIndex addressing POU_BODIES by byte range, so it cannot express
// an overlap that would pass decoding.
func (m *BytecodeModule) Validate() error {
	reg := value.NewTypeRegistry()
	for _, d := range m.Types {
		if _, err := reg.Register(d); err != nil {
			return fmt.Errorf("bytecode: registering type %q: %w", d.Name, err)
		}
	}
	reg.Seal()
	for id := range m.Types {
		typeID := value.TypeID(id + 1)
		if _, err := reg.ResolveAlias(typeID); err != nil {
			return fmt.Errorf("bytecode: type graph: %w", err)
		}
	}

	for _, ref := range m.Refs {
		if ref.Name == "" {
			return fmt.Errorf("bytecode: REF_TABLE entry has no name")
		}
	}

	if err := validateDebugMap(m.DebugMap, len(m.Pous)); err != nil {
		return err
	}

	for _, b := range m.Bindings {
		if int(b.Type) > len(m.Types) {
			return fmt.Errorf("bytecode: IO_MAP entry %q references unknown type %d", b.GlobalName, b.Type)
		}
	}

	return nil
}

// ToRuntimeConfig builds runtime.Config, ready to pass to runtime.New,
// plus the eval.Program every POU decodes into. The sealed type registry
// is shared by both (it must outlive the module's other buffers).
func (m *BytecodeModule) ToRuntimeConfig(profile value.Profile) (runtime.Config, error) {
	reg := value.NewTypeRegistry()
	for _, d := range m.Types {
		if _, err := reg.Register(d); err != nil {
			return runtime.Config{}, err
		}
	}
	reg.Seal()

	prog := eval.NewProgram()
	for _, p := range m.Pous {
		switch p.Kind {
		case PouProgram:
			prog.Programs[p.Name] = &eval.ProgramDef{Name: p.Name, Members: p.Locals, Body: p.Body}
		case PouFunction:
			prog.Functions[p.Name] = &eval.FunctionDef{
				Name: p.Name, Params: p.Params, Locals: p.Locals,
				ReturnType: p.RetType, ReturnName: p.ReturnName, Body: p.Body,
			}
		case PouFunctionBlock:
			prog.FunctionBlocks[p.Name] = &eval.FunctionBlockDef{
				Name: p.Name, ParentType: p.ParentType, Params: p.Params, Members: p.Locals, Body: p.Body,
			}
		case PouClass:
			// Class bodies (constructors) are not separately modeled; a
			// Class POU entry only declares members, methods arrive as
			// their own PouMethod entries keyed by owner type name below.
			prog.Classes[p.Name] = &eval.ClassDef{
				Name: p.Name, ParentType: p.ParentType, Members: p.Locals, Methods: map[string]*eval.MethodDef{},
			}
		case PouMethod:
			ownerName, err := ownerTypeName(reg, p.Owner)
			if err != nil {
				return runtime.Config{}, err
			}
			key := ownerName + "." + p.Name
			prog.Methods[key] = &eval.MethodDef{
				Name: p.Name, OwnerType: p.Owner, Params: p.Params, Locals: p.Locals,
				ReturnType: p.RetType, ReturnName: p.ReturnName, Body: p.Body,
			}
			if cls, ok := prog.Classes[ownerName]; ok {
				cls.Methods[p.Name] = prog.Methods[key]
			}
		default:
			return runtime.Config{}, fmt.Errorf("bytecode: unknown POU kind %d for %q", p.Kind, p.Name)
		}
	}

	var bindings []ioimage.Binding
	for _, b := range m.Bindings {
		ref := &value.Reference{Root: value.RootGlobal, Name: b.GlobalName}
		expanded, err := ioimage.ExpandBinding(reg, ref, b.Type, b.Addr)
		if err != nil {
			return runtime.Config{}, fmt.Errorf("bytecode: expanding IO_MAP binding %q: %w", b.GlobalName, err)
		}
		bindings = append(bindings, expanded...)
	}

	return runtime.Config{
		Registry:    reg,
		Program:     prog,
		Globals:     m.Globals,
		Bindings:    bindings,
		SafeState:   m.SafeState,
		ImageInput:  m.ImageSizes.Input,
		ImageOutput: m.ImageSizes.Output,
		ImageMemory: m.ImageSizes.Memory,
		Profile:     profile,
	}, nil
}

func ownerTypeName(reg *value.TypeRegistry, id value.TypeID) (string, error) {
	d, err := reg.Lookup(id)
	if err != nil {
		return "", err
	}
	return d.Name, nil
}

// BreakpointIndex builds a BreakpointIndex over the module's debug map,
// scoped to statement-kind entries only (spec.md §4.7's resolution
// algorithm only ever snaps to a statement boundary).
func (m *BytecodeModule) BreakpointIndex() *BreakpointIndex {
	return NewBreakpointIndex(m.DebugMap)
}
