package eval

import "github.com/trustplatform/trustrun/internal/value"

// ParamDirection tags an In/Out/InOut parameter per the argument-binding
// rules shared by functions, methods, and function blocks.
type ParamDirection uint8

const (
	DirIn ParamDirection = iota
	DirOut
	DirInOut
)

type Param struct {
	Name           string
	Type           value.TypeID
	Direction      ParamDirection
	HasDefault     bool
	DefaultExpr    Expr
	IsEN, IsENO    bool
}

type VarDef struct {
	Name           string
	Type           value.TypeID
	HasInitializer bool
	Initializer    Expr
	Retain         bool
}

// FunctionDef is a pure callable: a fresh frame, a named return slot,
// locals, and a body.
type FunctionDef struct {
	Name       string
	Params     []Param
	Locals     []VarDef
	ReturnType value.TypeID
	ReturnName string
	Body       []Stmt
}

// FunctionBlockDef is a stateful callable executed against an instance; it
// has no typed return, only output/inout bindings.
type FunctionBlockDef struct {
	Name       string
	ParentType value.TypeID
	Params     []Param
	Members    []VarDef
	Body       []Stmt
}

// MethodDef executes against a given instance; THIS and member names
// resolve via the instance arena.
type MethodDef struct {
	Name       string
	OwnerType  value.TypeID
	Params     []Param
	Locals     []VarDef
	ReturnType value.TypeID // 0 if the method has no return value
	ReturnName string
	Body       []Stmt
}

type ClassDef struct {
	Name       string
	ParentType value.TypeID
	Members    []VarDef
	Methods    map[string]*MethodDef
}

type InterfaceDef struct {
	Name    string
	Methods []string
}

// ProgramDef is a top-level, always-instantiated POU scheduled by tasks.
type ProgramDef struct {
	Name    string
	Members []VarDef
	Body    []Stmt
}

// Callable tags the dispatch kind per the "tagged variant {Function,
// Method, FunctionBlock}" polymorphism design note; dispatch is by kind and
// (for methods) by vtable slot, never by a language-level virtual table.
type CallableKind uint8

const (
	CallableFunction CallableKind = iota
	CallableMethod
	CallableFunctionBlock
)

// Program holds every POU definition decoded from a bytecode module,
// looked up by name for call dispatch.
type Program struct {
	Functions      map[string]*FunctionDef
	FunctionBlocks map[string]*FunctionBlockDef
	Methods        map[string]*MethodDef // keyed "Type.Method"
	Classes        map[string]*ClassDef
	Interfaces     map[string]*InterfaceDef
	Programs       map[string]*ProgramDef
}

func NewProgram() *Program {
	return &Program{
		Functions:      map[string]*FunctionDef{},
		FunctionBlocks: map[string]*FunctionBlockDef{},
		Methods:        map[string]*MethodDef{},
		Classes:        map[string]*ClassDef{},
		Interfaces:     map[string]*InterfaceDef{},
		Programs:       map[string]*ProgramDef{},
	}
}
