package scheduler

import (
	"time"

	"github.com/trustplatform/trustrun/internal/runtime"
	"github.com/trustplatform/trustrun/internal/storage"
)

// Task is one scheduled unit, decoded from a bytecode module's task table
// (spec.md §4.6). A Task with an empty Single name is periodic; otherwise
// it fires on a rising edge of that Bool global.
type Task struct {
	Name     string
	Interval time.Duration
	Priority int // lower runs first; ties break by registration order
	Offset   time.Duration
	Single   string
	Programs []runtime.ProgramInvocation
}

// taskState is the scheduler's private per-task bookkeeping: next periodic
// deadline, overrun count, and the single-trigger's last observed value.
type taskState struct {
	task         *Task
	regIndex     int
	nextDeadline time.Duration
	overrunCount uint64
	lastSingle   bool
}

func newTaskState(t *Task, regIndex int) *taskState {
	return &taskState{task: t, regIndex: regIndex, nextDeadline: t.Offset}
}

// due reports whether t is ready to fire at now, updating its bookkeeping
// per spec.md §4.6: periodic firings are counted-not-stacked when missed,
// single triggers fire only on a false->true edge.
func (ts *taskState) due(now time.Duration, st *storage.VariableStorage) (bool, error) {
	if ts.task.Single != "" {
		v, err := st.GetGlobal(ts.task.Single)
		if err != nil {
			return false, err
		}
		cur := v.AsBool()
		rising := cur && !ts.lastSingle
		ts.lastSingle = cur
		return rising, nil
	}

	if now < ts.nextDeadline {
		return false, nil
	}
	period := ts.task.Interval
	if period <= 0 {
		period = time.Millisecond
	}
	missed := int64((now - ts.nextDeadline) / period)
	ts.overrunCount += uint64(missed)
	ts.nextDeadline += period * time.Duration(missed+1)
	return true, nil
}

// OverrunCount returns the number of whole periods t has missed (never
// stacked as separate firings), for status reporting.
func (ts *taskState) OverrunCount() uint64 { return ts.overrunCount }
