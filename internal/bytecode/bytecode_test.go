package bytecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustplatform/trustrun/internal/eval"
	"github.com/trustplatform/trustrun/internal/ioimage"
	"github.com/trustplatform/trustrun/internal/runtime"
	"github.com/trustplatform/trustrun/internal/value"
)

func simpleModule() *BytecodeModule {
	dint := value.TypeDescriptor{Name: "DINT", Kind: value.TypePrimitive, Primitive: value.KindS32}
	bool_ := value.TypeDescriptor{Name: "BOOL", Kind: value.TypePrimitive, Primitive: value.KindBool}

	main := PouEntry{
		Kind: PouProgram,
		Name: "Main",
		Locals: []eval.VarDef{
			{Name: "c", Type: 1, HasInitializer: true, Initializer: eval.LiteralExpr{Value: value.Int(value.KindS32, 0)}},
		},
		Body: []eval.Stmt{
			eval.AssignStmt{
				Target: eval.NameExpr{Name: "c"},
				Value: eval.BinaryExpr{
					Op:    value.OpAdd,
					Left:  eval.NameExpr{Name: "c"},
					Right: eval.LiteralExpr{Value: value.Int(value.KindS32, 1)},
				},
			},
			eval.IfStmt{
				Branches: []eval.IfBranch{{
					Cond: eval.BinaryExpr{Op: value.OpGt, Left: eval.NameExpr{Name: "c"}, Right: eval.LiteralExpr{Value: value.Int(value.KindS32, 10)}},
					Body: []eval.Stmt{eval.AssignStmt{Target: eval.NameExpr{Name: "c"}, Value: eval.LiteralExpr{Value: value.Int(value.KindS32, 0)}}},
				}},
			},
		},
	}

	return &BytecodeModule{
		Types: []value.TypeDescriptor{dint, bool_},
		Pous:  []PouEntry{main},
		Refs:  []RefEntry{{Root: value.RootGlobal, Name: "g"}},
		Globals: []runtime.GlobalDecl{
			{Name: "g", Type: 1, Retain: true, HasInitializer: true, Initializer: eval.LiteralExpr{Value: value.Int(value.KindS32, 0)}},
		},
		Bindings: []BindingEntry{
			{GlobalName: "g", Type: 1, Addr: mustAddr("%QD0")},
		},
		SafeState: []ioimage.SafeStateEntry{
			{Addr: mustAddr("%QD0"), Value: value.Int(value.KindS32, -1)},
		},
		ImageSizes: ImageSizes{Output: 4},
		DebugMap: []DebugEntry{
			{PouID: 0, FileIdx: 0, Line: 3, Column: 1, Kind: DebugStatement, CodeOffset: 0},
			{PouID: 0, FileIdx: 0, Line: 5, Column: 1, Kind: DebugStatement, CodeOffset: 10},
		},
	}
}

func mustAddr(s string) ioimage.IoAddress {
	a, err := ioimage.ParseIoAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func TestRoundTripSimpleProgram(t *testing.T) {
	m := simpleModule()
	data := m.Encode()

	decoded, err := Decode(data)
	require.NoError(t, err)

	require.Len(t, decoded.Types, 2)
	assert.Equal(t, "DINT", decoded.Types[0].Name)
	assert.Equal(t, value.KindS32, decoded.Types[0].Primitive)

	require.Len(t, decoded.Pous, 1)
	pou := decoded.Pous[0]
	assert.Equal(t, PouProgram, pou.Kind)
	assert.Equal(t, "Main", pou.Name)
	require.Len(t, pou.Locals, 1)
	assert.Equal(t, "c", pou.Locals[0].Name)
	assert.True(t, pou.Locals[0].HasInitializer)
	require.Len(t, pou.Body, 2)

	assign, ok := pou.Body[0].(eval.AssignStmt)
	require.True(t, ok)
	name, ok := assign.Target.(eval.NameExpr)
	require.True(t, ok)
	assert.Equal(t, "c", name.Name)
	bin, ok := assign.Value.(eval.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, value.OpAdd, bin.Op)

	ifStmt, ok := pou.Body[1].(eval.IfStmt)
	require.True(t, ok)
	require.Len(t, ifStmt.Branches, 1)

	require.Len(t, decoded.Globals, 1)
	assert.Equal(t, "g", decoded.Globals[0].Name)
	assert.True(t, decoded.Globals[0].Retain)

	require.Len(t, decoded.Bindings, 1)
	assert.Equal(t, "%QD0", decoded.Bindings[0].Addr.String())

	require.Len(t, decoded.SafeState, 1)
	assert.Equal(t, int64(-1), decoded.SafeState[0].Value.AsInt())

	require.Len(t, decoded.DebugMap, 2)
	assert.Equal(t, 3, decoded.DebugMap[0].Line)
}

func TestToRuntimeConfigBuildsProgramAndBindings(t *testing.T) {
	m := simpleModule()
	data := m.Encode()
	decoded, err := Decode(data)
	require.NoError(t, err)

	cfg, err := decoded.ToRuntimeConfig(value.DefaultProfile())
	require.NoError(t, err)

	require.Contains(t, cfg.Program.Programs, "Main")
	require.Len(t, cfg.Globals, 1)
	require.NotEmpty(t, cfg.Bindings)
	assert.Equal(t, 4, cfg.ImageOutput)
}

func TestValidateRejectsOutOfRangeIoMapType(t *testing.T) {
	m := simpleModule()
	m.Bindings[0].Type = 99
	err := m.Validate()
	assert.Error(t, err)
}

func TestConstPoolEnumRoundTrip(t *testing.T) {
	strings := newStringTable()
	cp := newConstPool()
	idx := cp.Add(value.Enum(7, "RUNNING", 2))

	data := cp.encode(strings)
	stringData := strings.encode()

	strings2, err := decodeStringTable(stringData)
	require.NoError(t, err)
	cp2, err := decodeConstPool(data, strings2)
	require.NoError(t, err)

	v, err := cp2.Get(idx)
	require.NoError(t, err)
	assert.Equal(t, value.Kind(value.KindEnum), v.Kind)
	assert.EqualValues(t, 7, v.Type)
	assert.Equal(t, "RUNNING", v.EnumVariant())
	assert.EqualValues(t, 2, v.EnumNumeric())
}

func TestBreakpointResolutionSnapsToNextStatement(t *testing.T) {
	entries := []DebugEntry{
		{PouID: 0, FileIdx: 0, Line: 2, Column: 1, Kind: DebugStatement, CodeOffset: 0},
		{PouID: 0, FileIdx: 0, Line: 5, Column: 1, Kind: DebugStatement, CodeOffset: 8},
		{PouID: 0, FileIdx: 0, Line: 9, Column: 1, Kind: DebugStatement, CodeOffset: 20},
	}
	idx := NewBreakpointIndex(entries)

	resolved, ok := idx.Resolve(0, 3, 1)
	require.True(t, ok)
	assert.Equal(t, 5, resolved.Line)
	assert.EqualValues(t, 8, resolved.CodeOffset)

	resolved, ok = idx.Resolve(0, 5, 1)
	require.True(t, ok)
	assert.Equal(t, 5, resolved.Line)

	_, ok = idx.Resolve(0, 100, 1)
	assert.False(t, ok)
}

func TestValidateCatchesDebugMapNonMonotonicOffsets(t *testing.T) {
	entries := []DebugEntry{
		{PouID: 0, FileIdx: 0, Line: 1, Column: 1, Kind: DebugStatement, CodeOffset: 10},
		{PouID: 0, FileIdx: 0, Line: 2, Column: 1, Kind: DebugStatement, CodeOffset: 4},
	}
	err := validateDebugMap(entries, 1)
	assert.Error(t, err)
}
