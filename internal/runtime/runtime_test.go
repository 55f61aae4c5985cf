package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustplatform/trustrun/internal/eval"
	"github.com/trustplatform/trustrun/internal/value"
)

func newIntRegistry(t *testing.T) (*value.TypeRegistry, value.TypeID) {
	t.Helper()
	reg := value.NewTypeRegistry()
	dint, err := reg.Register(value.TypeDescriptor{Name: "DINT", Kind: value.TypePrimitive, Primitive: value.KindS32})
	require.NoError(t, err)
	reg.Seal()
	return reg, dint
}

func lit(kind value.Kind, n int64) eval.Expr { return eval.LiteralExpr{Value: value.Int(kind, n)} }

// addOneProgram builds "PROGRAM Main VAR c:INT:=0; END_VAR c := c+1; END_PROGRAM",
// scenario 1 of spec.md §8.
func addOneProgram(dint value.TypeID) *eval.ProgramDef {
	return &eval.ProgramDef{
		Name: "Main",
		Members: []eval.VarDef{
			{Name: "c", Type: dint, HasInitializer: true, Initializer: lit(value.KindS32, 0)},
		},
		Body: []eval.Stmt{
			eval.AssignStmt{
				Target: eval.NameExpr{Name: "c"},
				Value:  eval.BinaryExpr{Op: value.OpAdd, Left: eval.NameExpr{Name: "c"}, Right: lit(value.KindS32, 1)},
			},
		},
	}
}

func newTestRuntime(t *testing.T, reg *value.TypeRegistry, def *eval.ProgramDef) (*Runtime, eval.ProgramDef) {
	t.Helper()
	prog := eval.NewProgram()
	prog.Programs["Main"] = def

	rt, err := New(Config{
		Registry: reg,
		Program:  prog,
		Profile:  value.DefaultProfile(),
	})
	require.NoError(t, err)
	return rt, *def
}

func TestAddOneProgramThreeCycles(t *testing.T) {
	reg, dint := newIntRegistry(t)
	def := addOneProgram(dint)
	rt, _ := newTestRuntime(t, reg, def)

	instID, err := eval.CreateProgramInstance(rt.EvalCtx, def)
	require.NoError(t, err)

	due := []ProgramInvocation{{Def: def, Instance: instID}}
	now := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, rt.ExecuteCycle(context.Background(), now, due, nil, nil))
	}

	v, err := rt.Storage.GetInstanceField(instID, "c")
	require.NoError(t, err)
	assert.Equal(t, int64(3), v.AsInt())
	assert.EqualValues(t, 3, rt.CycleCounter)
}

// TestRetainedAcrossWarmRestart is scenario 2 of spec.md §8.
func TestRetainedAcrossWarmRestart(t *testing.T) {
	reg, dint := newIntRegistry(t)

	prog := eval.NewProgram()
	rtReal, err := New(Config{
		Registry: reg,
		Program:  prog,
		Globals: []GlobalDecl{
			{Name: "g", Type: dint, Retain: true, HasInitializer: true, Initializer: lit(value.KindS32, 0)},
		},
		Profile: value.DefaultProfile(),
	})
	require.NoError(t, err)

	now := time.Now()
	for i := 0; i < 5; i++ {
		v, err := rtReal.Storage.GetGlobal("g")
		require.NoError(t, err)
		require.NoError(t, rtReal.Storage.SetGlobal("g", value.Int(value.KindS32, v.AsInt()+1)))
	}
	v, err := rtReal.Storage.GetGlobal("g")
	require.NoError(t, err)
	assert.Equal(t, int64(5), v.AsInt())

	rtReal.RequestRestart(RestartWarm)
	require.NoError(t, rtReal.ExecuteCycle(context.Background(), now, nil, nil, nil))

	v, err = rtReal.Storage.GetGlobal("g")
	require.NoError(t, err)
	assert.Equal(t, int64(5), v.AsInt(), "warm restart must reload the last persisted value before the next increment")

	require.NoError(t, rtReal.Storage.SetGlobal("g", value.Int(value.KindS32, v.AsInt()+1)))
	v, err = rtReal.Storage.GetGlobal("g")
	require.NoError(t, err)
	assert.Equal(t, int64(6), v.AsInt())
}

// TestWatchdogFaultTransition is scenario 3 of spec.md §8.
func TestWatchdogFaultTransition(t *testing.T) {
	reg, _ := newIntRegistry(t)
	prog := eval.NewProgram()
	rt, err := New(Config{Registry: reg, Program: prog, Profile: value.DefaultProfile()})
	require.NoError(t, err)

	rt.ConfigureWatchdog(true, 5*time.Millisecond, WatchdogPolicyFault)
	rt.MeasureDuration = func(time.Time) time.Duration { return 10 * time.Millisecond }

	now := time.Now()
	err = rt.ExecuteCycle(context.Background(), now, nil, nil, nil)
	require.Error(t, err)
	assert.Equal(t, StateFaulted, rt.State)
	assert.Equal(t, value.FaultWatchdogTimeout, rt.Fault.LastFaultKind())
}

func TestWatchdogRestartPolicyReturnsToRunning(t *testing.T) {
	reg, dint := newIntRegistry(t)
	prog := eval.NewProgram()
	rt, err := New(Config{
		Registry: reg,
		Program:  prog,
		Globals: []GlobalDecl{
			{Name: "g", Type: dint, HasInitializer: true, Initializer: lit(value.KindS32, 7)},
		},
		Profile: value.DefaultProfile(),
	})
	require.NoError(t, err)

	rt.ConfigureWatchdog(true, 5*time.Millisecond, WatchdogPolicyRestart)
	rt.MeasureDuration = func(time.Time) time.Duration { return 10 * time.Millisecond }

	now := time.Now()
	err = rt.ExecuteCycle(context.Background(), now, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, rt.State)
	assert.Equal(t, value.FaultWatchdogTimeout, rt.Fault.LastFaultKind())
}

func TestColdRestartZeroesImageAndResetsCycleCounter(t *testing.T) {
	reg, dint := newIntRegistry(t)
	prog := eval.NewProgram()
	rt, err := New(Config{
		Registry: reg,
		Program:  prog,
		Globals: []GlobalDecl{
			{Name: "g", Type: dint, Retain: true, HasInitializer: true, Initializer: lit(value.KindS32, 0)},
		},
		ImageOutput: 1,
		Profile:     value.DefaultProfile(),
	})
	require.NoError(t, err)
	rt.Image.Output[0] = 0xFF
	rt.CycleCounter = 42

	require.NoError(t, rt.Storage.SetGlobal("g", value.Int(value.KindS32, 99)))

	rt.RequestRestart(RestartCold)
	now := time.Now()
	require.NoError(t, rt.ExecuteCycle(context.Background(), now, nil, nil, nil))

	v, err := rt.Storage.GetGlobal("g")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v.AsInt())
	assert.Equal(t, byte(0), rt.Image.Output[0])
	// The restart resets the counter to 0; the cycle that ran after it counts.
	assert.EqualValues(t, 1, rt.CycleCounter)
}
