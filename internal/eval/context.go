package eval

import (
	"time"

	"github.com/trustplatform/trustrun/internal/storage"
	"github.com/trustplatform/trustrun/internal/value"
)

// DebugHook is the abstract object the evaluator calls at statement
// boundaries, per the "debug hook is modeled as an abstract object" design
// note. Its implementation may bridge to a protocol server; the evaluator
// itself knows nothing about transport.
type DebugHook interface {
	// ShouldPause is consulted between every statement. It returns true to
	// request a cooperative suspend.
	ShouldPause(pou string, stmtIndex int) bool
	// BreakpointHit reports whether a breakpoint is set at a source
	// location. The evaluator does not call it (statements carry no source
	// location), so a set breakpoint does not suspend execution; only
	// ShouldPause does.
	BreakpointHit(file string, line, column int) bool
}

type noopDebugHook struct{}

func (noopDebugHook) ShouldPause(string, int) bool         { return false }
func (noopDebugHook) BreakpointHit(string, int, int) bool { return false }

// NoopDebugHook is used when no debugger is attached.
var NoopDebugHook DebugHook = noopDebugHook{}

// Suspended is returned by exec/eval when a cooperative pause point is hit.
// It is not an error: the scheduler treats it as a pause signal, not a
// fault.
type Suspended struct {
	Frame value.FrameID
}

func (s *Suspended) Error() string { return "execution suspended at a statement boundary" }

// EvalContext carries everything a single call needs: storage, the type
// registry, the program (callable lookup table), the debug hook, and the
// deadline/pause flags checked cooperatively between statements.
type EvalContext struct {
	Storage *storage.VariableStorage
	Program *Program
	Profile value.Profile

	Debug DebugHook

	// PauseRequested, when non-nil and true, is polled between statements;
	// it is never touched mid-expression. Nothing in the control plane sets
	// it: its step request goes through Debug.ShouldPause instead.
	PauseRequested *bool

	// Deadline, if non-zero, aborts evaluation with a Timeout fault once
	// exceeded; EvalExpr checks it at every expression step, so an overrun
	// can abort mid-statement.
	Deadline time.Time

	// sideEffectCounter-style globals used by EN/ENO tests are ordinary
	// storage globals; EvalContext carries no special hook for them.

	callDepth int
}

const maxCallDepth = 256

func (c *EvalContext) checkDeadline() error {
	if !c.Deadline.IsZero() && time.Now().After(c.Deadline) {
		return value.NewFault(value.FaultTimeout, "execution deadline exceeded")
	}
	return nil
}

func (c *EvalContext) pausePending() bool {
	return c.PauseRequested != nil && *c.PauseRequested
}
