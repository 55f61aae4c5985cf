package scheduler

import (
	"github.com/trustplatform/trustrun/internal/eval"
	"github.com/trustplatform/trustrun/internal/runtime"
	"github.com/trustplatform/trustrun/internal/value"
)

// CommandKind is the full command-channel vocabulary of spec.md §4.6,
// supersetting internal/runtime's Command with the four that need the
// scheduler's cooperation: a bytecode swap, mesh global snapshot/apply,
// and installing a debug hook.
type CommandKind uint8

const (
	CmdPause CommandKind = iota
	CmdResume
	CmdUpdateWatchdog
	CmdUpdateFaultPolicy
	CmdUpdateRetainSaveInterval
	CmdUpdateIoSafeState
	CmdReloadBytecode
	CmdMeshSnapshot
	CmdMeshApply
	// CmdSetDebugHook installs a new eval.DebugHook on the running
	// resource's EvalContext, the control plane's path for breakpoint
	// set/clear and step/continue (internal/control computes the new hook
	// from its breakpoint table and sends it here, since EvalCtx is only
	// ever touched from the runner's own goroutine).
	CmdSetDebugHook
)

// ReloadResult is delivered on a ReloadBytecode command's reply channel.
type ReloadResult struct {
	Metadata runtime.Config
	Err      error
}

// Command is one entry on the scheduler's single-producer command channel,
// delivered at cycle boundaries (spec.md §4.6).
type Command struct {
	Kind CommandKind

	// RuntimeCmd carries the fields for the four kinds internal/runtime
	// applies directly (UpdateWatchdog..UpdateIoSafeState); Pause/Resume
	// are handled by the scheduler itself, since they gate whether a cycle
	// runs at all. Resume is also forwarded to the runtime, so a runtime
	// paused by a debug suspension returns to Running.
	RuntimeCmd runtime.Command

	// ReloadBytecode
	Bytecode    []byte
	ReloadReply chan<- ReloadResult

	// MeshSnapshot / MeshApply
	MeshNames   []string
	MeshReply   chan<- map[string]value.Value
	MeshUpdates map[string]value.Value

	// SetDebugHook
	DebugHook eval.DebugHook
}

// BytecodeLoader decodes a raw module into the Config a Runtime can be
// rebuilt from; internal/bytecode's loader satisfies this. Left nil, a
// ReloadBytecode command fails with an explanatory error rather than a
// panic or silent no-op.
type BytecodeLoader interface {
	Load(bytes []byte) (runtime.Config, error)
}

func (r *Runner) applyCommand(cmd Command) {
	switch cmd.Kind {
	case CmdPause:
		r.paused = true
	case CmdResume:
		r.paused = false
		r.pendingRuntimeCmds = append(r.pendingRuntimeCmds, runtime.Command{Kind: runtime.CmdResume})
	case CmdUpdateWatchdog, CmdUpdateFaultPolicy, CmdUpdateRetainSaveInterval, CmdUpdateIoSafeState:
		// Forwarded to the runtime via ExecuteCycle's own command drain
		// (step 2 of spec.md §4.5) rather than applied here directly.
		r.pendingRuntimeCmds = append(r.pendingRuntimeCmds, toRuntimeCommand(cmd))
	case CmdReloadBytecode:
		r.reloadBytecode(cmd)
	case CmdMeshSnapshot:
		r.meshSnapshot(cmd)
	case CmdMeshApply:
		r.meshApply(cmd)
	case CmdSetDebugHook:
		if cmd.DebugHook != nil {
			r.rt.EvalCtx.Debug = cmd.DebugHook
		} else {
			r.rt.EvalCtx.Debug = eval.NoopDebugHook
		}
	}
}

func toRuntimeCommand(cmd Command) runtime.Command {
	rc := cmd.RuntimeCmd
	switch cmd.Kind {
	case CmdUpdateWatchdog:
		rc.Kind = runtime.CmdUpdateWatchdog
	case CmdUpdateFaultPolicy:
		rc.Kind = runtime.CmdUpdateFaultPolicy
	case CmdUpdateRetainSaveInterval:
		rc.Kind = runtime.CmdUpdateRetainSaveInterval
	case CmdUpdateIoSafeState:
		rc.Kind = runtime.CmdUpdateIoSafeState
	}
	return rc
}

func (r *Runner) reloadBytecode(cmd Command) {
	result := ReloadResult{}
	if r.loader == nil {
		result.Err = errNoBytecodeLoader
	} else if cfg, err := r.loader.Load(cmd.Bytecode); err != nil {
		result.Err = err
	} else if rt, err := runtime.New(cfg); err != nil {
		result.Err = err
	} else {
		result.Metadata = cfg
		r.rt = rt
	}
	if cmd.ReloadReply != nil {
		cmd.ReloadReply <- result
	}
}

func (r *Runner) meshSnapshot(cmd Command) {
	out := make(map[string]value.Value, len(cmd.MeshNames))
	for _, n := range cmd.MeshNames {
		if v, err := r.rt.Storage.GetGlobal(n); err == nil {
			out[n] = v
		}
	}
	if cmd.MeshReply != nil {
		cmd.MeshReply <- out
	}
}

func (r *Runner) meshApply(cmd Command) {
	for n, v := range cmd.MeshUpdates {
		_ = r.rt.Storage.SetGlobal(n, v)
	}
}
