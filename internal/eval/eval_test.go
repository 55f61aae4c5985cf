package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustplatform/trustrun/internal/storage"
	"github.com/trustplatform/trustrun/internal/value"
)

func newRegistry(t *testing.T) (*value.TypeRegistry, value.TypeID) {
	t.Helper()
	reg := value.NewTypeRegistry()
	dint, err := reg.Register(value.TypeDescriptor{Name: "DINT", Kind: value.TypePrimitive, Primitive: value.KindS32})
	require.NoError(t, err)
	reg.Seal()
	return reg, dint
}

func newCtx(t *testing.T) (*EvalContext, value.TypeID) {
	t.Helper()
	reg, dint := newRegistry(t)
	st := storage.New(reg)
	prog := NewProgram()
	ctx := &EvalContext{Storage: st, Program: prog, Profile: value.DefaultProfile(), Debug: NoopDebugHook}
	return ctx, dint
}

func lit(kind value.Kind, n int64) Expr { return LiteralExpr{Value: value.Int(kind, n)} }

// TestFunctionCallReturnsNamedResult exercises a plain function call:
// positional binding, a named return slot defaulted then reassigned by the
// body, and cleanup of the pushed frame on return.
func TestFunctionCallReturnsNamedResult(t *testing.T) {
	ctx, dint := newCtx(t)
	ctx.Program.Functions["Double"] = &FunctionDef{
		Name:       "Double",
		Params:     []Param{{Name: "x", Type: dint, Direction: DirIn}},
		ReturnType: dint,
		ReturnName: "Double",
		Body: []Stmt{
			AssignStmt{
				Target: NameExpr{Name: "Double"},
				Value:  BinaryExpr{Op: value.OpMul, Left: NameExpr{Name: "x"}, Right: lit(value.KindS32, 2)},
			},
		},
	}

	frame := ctx.Storage.PushFrame("main")
	result, err := Call(ctx, frame, CallExpr{Callee: "Double", Args: []CallArg{{ValueExpr: lit(value.KindS32, 21)}}})
	require.NoError(t, err)
	assert.Equal(t, int64(42), result.AsInt())

	_, err = ctx.Storage.CurrentFrame()
	require.NoError(t, err)
}

// TestENFalseShortCircuitsBeforeBody verifies EN=FALSE skips local
// initialization and the body entirely, per the fixed EN/ENO ordering.
func TestENFalseShortCircuitsBeforeBody(t *testing.T) {
	ctx, dint := newCtx(t)
	ctx.Storage.DeclareGlobal("sideEffects", value.Int(value.KindS32, 0), false)

	ctx.Program.Functions["Guarded"] = &FunctionDef{
		Name: "Guarded",
		Params: []Param{
			{Name: "EN", Type: dint, Direction: DirIn, IsEN: true},
		},
		Locals: []VarDef{{Name: "tmp", Type: dint}},
		Body: []Stmt{
			AssignStmt{Target: NameExpr{Name: "sideEffects"}, Value: lit(value.KindS32, 1)},
		},
	}

	frame := ctx.Storage.PushFrame("main")
	_, err := Call(ctx, frame, CallExpr{Callee: "Guarded", Args: []CallArg{{Name: "EN", ValueExpr: LiteralExpr{Value: value.Bool(false)}}}})
	require.NoError(t, err)

	v, err := ctx.Storage.GetGlobal("sideEffects")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v.AsInt(), "body must not run when EN is false")
}

// TestOutParamWritesBackToCaller exercises Out-parameter write-back: the
// callee's local is written into the caller-supplied l-value once the call
// returns successfully.
func TestOutParamWritesBackToCaller(t *testing.T) {
	ctx, dint := newCtx(t)
	ctx.Program.Functions["SetTen"] = &FunctionDef{
		Name: "SetTen",
		Params: []Param{
			{Name: "result", Type: dint, Direction: DirOut},
		},
		Body: []Stmt{
			AssignStmt{Target: NameExpr{Name: "result"}, Value: lit(value.KindS32, 10)},
		},
	}

	frame := ctx.Storage.PushFrame("main")
	ctx.Storage.SetLocal(frame, "out", value.Int(value.KindS32, 0))

	_, err := Call(ctx, frame, CallExpr{Callee: "SetTen", Args: []CallArg{{ValueExpr: NameExpr{Name: "out"}}}})
	require.NoError(t, err)

	v, err := ctx.Storage.ReadByRef(ctx.Storage.RefForLocal(frame, "out"))
	require.NoError(t, err)
	assert.Equal(t, int64(10), v.AsInt())
}

// TestCaseStmtMatchesRangeLabel exercises CASE with a subrange label and a
// fallthrough-free ELSE arm.
func TestCaseStmtMatchesRangeLabel(t *testing.T) {
	ctx, _ := newCtx(t)
	ctx.Storage.DeclareGlobal("out", value.Int(value.KindS32, 0), false)

	frame := ctx.Storage.PushFrame("main")
	stmt := CaseStmt{
		Selector: lit(value.KindS32, 5),
		Arms: []CaseArm{
			{
				Labels: []CaseLabel{{Low: value.Int(value.KindS32, 1), High: value.Int(value.KindS32, 10), IsRange: true}},
				Body:   []Stmt{AssignStmt{Target: NameExpr{Name: "out"}, Value: lit(value.KindS32, 111)}},
			},
		},
		Else: []Stmt{AssignStmt{Target: NameExpr{Name: "out"}, Value: lit(value.KindS32, 999)}},
	}
	res, err := ExecStmt(ctx, frame, "main", stmt, flowCtx{})
	require.NoError(t, err)
	assert.Equal(t, ResultContinue, res.Kind)

	v, err := ctx.Storage.GetGlobal("out")
	require.NoError(t, err)
	assert.Equal(t, int64(111), v.AsInt())
}

// TestExitOutsideLoopIsControlFlowFault ensures EXIT/CONTINUE discipline is
// enforced: using EXIT outside a loop is a fault, not a no-op.
func TestExitOutsideLoopIsControlFlowFault(t *testing.T) {
	ctx, _ := newCtx(t)
	frame := ctx.Storage.PushFrame("main")
	_, err := ExecStmt(ctx, frame, "main", ExitStmt{}, flowCtx{inLoop: false})
	require.Error(t, err)
	f, ok := err.(*value.Fault)
	require.True(t, ok)
	assert.Equal(t, value.FaultInvalidControlFlow, f.Kind)
}

// TestForLoopCountsInclusive verifies a FOR loop runs for every value in
// [from, to] inclusive, including the boundary.
func TestForLoopCountsInclusive(t *testing.T) {
	ctx, _ := newCtx(t)
	ctx.Storage.DeclareGlobal("count", value.Int(value.KindS32, 0), false)

	frame := ctx.Storage.PushFrame("main")
	stmt := ForStmt{
		Var:  "i",
		From: lit(value.KindS32, 1),
		To:   lit(value.KindS32, 3),
		Body: []Stmt{
			AssignStmt{
				Target: NameExpr{Name: "count"},
				Value:  BinaryExpr{Op: value.OpAdd, Left: NameExpr{Name: "count"}, Right: lit(value.KindS32, 1)},
			},
		},
	}
	_, err := ExecStmt(ctx, frame, "main", stmt, flowCtx{})
	require.NoError(t, err)

	v, err := ctx.Storage.GetGlobal("count")
	require.NoError(t, err)
	assert.Equal(t, int64(3), v.AsInt())
}

// TestCallFaultRevertsPartialMutations exercises the journal-revert
// contract: a call that faults mid-body leaves no trace of its partial
// global mutations.
func TestCallFaultRevertsPartialMutations(t *testing.T) {
	ctx, _ := newCtx(t)
	ctx.Storage.DeclareGlobal("g", value.Int(value.KindS32, 1), false)

	ctx.Program.Functions["Bad"] = &FunctionDef{
		Name: "Bad",
		Body: []Stmt{
			AssignStmt{Target: NameExpr{Name: "g"}, Value: lit(value.KindS32, 2)},
			ExprStmt{Expr: CallExpr{Callee: "DoesNotExist"}},
		},
	}

	frame := ctx.Storage.PushFrame("main")
	snapshot := ctx.Storage.Snapshot()
	_, err := Call(ctx, frame, CallExpr{Callee: "Bad"})
	require.Error(t, err)
	ctx.Storage.Revert(snapshot)

	v, err := ctx.Storage.GetGlobal("g")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.AsInt())
}
