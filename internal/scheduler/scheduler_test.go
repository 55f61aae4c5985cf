package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustplatform/trustrun/internal/eval"
	"github.com/trustplatform/trustrun/internal/runtime"
	"github.com/trustplatform/trustrun/internal/value"
)

func newSchedulerRuntime(t *testing.T) *runtime.Runtime {
	t.Helper()
	reg := value.NewTypeRegistry()
	reg.Seal()
	rt, err := runtime.New(runtime.Config{
		Registry: reg,
		Program:  eval.NewProgram(),
		Profile:  value.DefaultProfile(),
	})
	require.NoError(t, err)
	return rt
}

// TestPeriodicTaskFiresExactlyNTimes is the first scheduler property of
// spec.md §8: over [0, N*I) a periodic task with interval I fires exactly
// N times when the runner advances in lockstep with the task period.
func TestPeriodicTaskFiresExactlyNTimes(t *testing.T) {
	rt := newSchedulerRuntime(t)
	clock := NewManualClock()

	fireCount := 0
	task := &Task{Name: "fast", Interval: 10 * time.Millisecond}
	ts := newTaskState(task, 0)

	const n = 20
	for i := 0; i < n; i++ {
		fired, err := ts.due(clock.Now(), rt.Storage)
		require.NoError(t, err)
		if fired {
			fireCount++
		}
		clock.Advance(10 * time.Millisecond)
	}
	assert.Equal(t, n, fireCount)
	assert.Zero(t, ts.OverrunCount())
}

// TestOverrunCountedNotStacked is the overrun half of the same property: a
// cycle arriving 3*I after the previous firing counts two missed periods
// and fires exactly once.
func TestOverrunCountedNotStacked(t *testing.T) {
	rt := newSchedulerRuntime(t)
	task := &Task{Name: "slow", Interval: 10 * time.Millisecond}
	ts := newTaskState(task, 0)

	fired, err := ts.due(0, rt.Storage)
	require.NoError(t, err)
	assert.True(t, fired)

	fired, err = ts.due(30*time.Millisecond, rt.Storage)
	require.NoError(t, err)
	assert.True(t, fired)
	assert.EqualValues(t, 2, ts.OverrunCount())

	fired, err = ts.due(30*time.Millisecond, rt.Storage)
	require.NoError(t, err)
	assert.False(t, fired, "no firing stacks up behind the one already counted")
}

// TestSingleTriggerFiresOnRisingEdgeOnly covers the single-trigger task
// kind of spec.md §4.6.
func TestSingleTriggerFiresOnRisingEdgeOnly(t *testing.T) {
	rt := newSchedulerRuntime(t)
	rt.Storage.DeclareGlobal("trigger", value.Bool(false), false)

	task := &Task{Name: "onrise", Single: "trigger"}
	ts := newTaskState(task, 0)

	fired, err := ts.due(0, rt.Storage)
	require.NoError(t, err)
	assert.False(t, fired)

	require.NoError(t, rt.Storage.SetGlobal("trigger", value.Bool(true)))
	fired, err = ts.due(0, rt.Storage)
	require.NoError(t, err)
	assert.True(t, fired)

	fired, err = ts.due(0, rt.Storage)
	require.NoError(t, err)
	assert.False(t, fired, "no second firing while the signal stays high")

	require.NoError(t, rt.Storage.SetGlobal("trigger", value.Bool(false)))
	require.NoError(t, rt.Storage.SetGlobal("trigger", value.Bool(true)))
	fired, err = ts.due(0, rt.Storage)
	require.NoError(t, err)
	assert.True(t, fired, "a fresh rising edge fires again")
}

// TestPriorityOrderingRunsLowerFirst is the second scheduler property: of
// two tasks due at the same instant, the lower-priority-number task's
// programs run first.
func TestPriorityOrderingRunsLowerFirst(t *testing.T) {
	reg := value.NewTypeRegistry()
	dint, err := reg.Register(value.TypeDescriptor{Name: "DINT", Kind: value.TypePrimitive, Primitive: value.KindS32})
	require.NoError(t, err)
	reg.Seal()

	rt, err := runtime.New(runtime.Config{
		Registry: reg,
		Program:  eval.NewProgram(),
		Globals: []runtime.GlobalDecl{
			{Name: "order", Type: dint, HasInitializer: true, Initializer: eval.LiteralExpr{Value: value.Int(value.KindS32, 0)}},
		},
		Profile: value.DefaultProfile(),
	})
	require.NoError(t, err)

	appendOrder := func(tag int64) *eval.ProgramDef {
		return &eval.ProgramDef{
			Name: "tagger",
			Body: []eval.Stmt{
				eval.AssignStmt{
					Target: eval.NameExpr{Name: "order"},
					Value: eval.BinaryExpr{
						Op:    value.OpAdd,
						Left:  eval.NameExpr{Name: "order"},
						Right: eval.LiteralExpr{Value: value.Int(value.KindS32, tag)},
					},
				},
			},
		}
	}
	high := appendOrder(1) // runs first: wants order to read 0 and write 1
	low := appendOrder(10) // runs second: wants order to read 1 and write 11

	highInst, err := eval.CreateProgramInstance(rt.EvalCtx, high)
	require.NoError(t, err)
	lowInst, err := eval.CreateProgramInstance(rt.EvalCtx, low)
	require.NoError(t, err)

	taskHigh := &Task{Name: "high", Priority: 0, Programs: []runtime.ProgramInvocation{{Def: high, Instance: highInst}}}
	taskLow := &Task{Name: "low", Priority: 5, Programs: []runtime.ProgramInvocation{{Def: low, Instance: lowInst}}}

	runner := NewRunner(Config{
		Runtime: rt,
		Clock:   NewManualClock(),
		// Registered in low-before-high order so only the priority field,
		// not registration order, can explain the result.
		Tasks: []*Task{taskLow, taskHigh},
	})

	require.NoError(t, runner.RunCycle(context.Background()))

	v, err := rt.Storage.GetGlobal("order")
	require.NoError(t, err)
	assert.Equal(t, int64(11), v.AsInt())
}

// TestPauseSuspendsProgramExecution is the third scheduler property: no
// program body runs between a Pause and the matching Resume.
func TestPauseSuspendsProgramExecution(t *testing.T) {
	reg := value.NewTypeRegistry()
	dint, err := reg.Register(value.TypeDescriptor{Name: "DINT", Kind: value.TypePrimitive, Primitive: value.KindS32})
	require.NoError(t, err)
	reg.Seal()

	rt, err := runtime.New(runtime.Config{
		Registry: reg,
		Program:  eval.NewProgram(),
		Globals: []runtime.GlobalDecl{
			{Name: "c", Type: dint, HasInitializer: true, Initializer: eval.LiteralExpr{Value: value.Int(value.KindS32, 0)}},
		},
		Profile: value.DefaultProfile(),
	})
	require.NoError(t, err)

	def := &eval.ProgramDef{
		Name: "incr",
		Body: []eval.Stmt{
			eval.AssignStmt{
				Target: eval.NameExpr{Name: "c"},
				Value: eval.BinaryExpr{
					Op:    value.OpAdd,
					Left:  eval.NameExpr{Name: "c"},
					Right: eval.LiteralExpr{Value: value.Int(value.KindS32, 1)},
				},
			},
		},
	}
	inst, err := eval.CreateProgramInstance(rt.EvalCtx, def)
	require.NoError(t, err)
	task := &Task{Name: "incr", Interval: time.Millisecond, Programs: []runtime.ProgramInvocation{{Def: def, Instance: inst}}}

	clock := NewManualClock()
	runner := NewRunner(Config{Runtime: rt, Clock: clock, Tasks: []*Task{task}, CommandBuffer: 4})

	clock.Advance(time.Millisecond)
	require.NoError(t, runner.RunCycle(context.Background()))
	v, _ := rt.Storage.GetGlobal("c")
	assert.Equal(t, int64(1), v.AsInt())

	runner.Send(Command{Kind: CmdPause})
	for i := 0; i < 5; i++ {
		clock.Advance(time.Millisecond)
		require.NoError(t, runner.RunCycle(context.Background()))
	}
	v, _ = rt.Storage.GetGlobal("c")
	assert.Equal(t, int64(1), v.AsInt(), "paused cycles must not execute program bodies")
	assert.Equal(t, StatePaused, runner.State())

	runner.Send(Command{Kind: CmdResume})
	clock.Advance(time.Millisecond)
	require.NoError(t, runner.RunCycle(context.Background()))
	v, _ = rt.Storage.GetGlobal("c")
	assert.Equal(t, int64(2), v.AsInt())
}
