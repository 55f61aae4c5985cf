package runtime

import (
	"time"

	"github.com/trustplatform/trustrun/internal/ioimage"
)

// CommandKind tags the subset of spec.md §4.6's command-channel vocabulary
// that the runtime itself applies directly; ReloadBytecode/MeshSnapshot/
// MeshApply need the scheduler's and bytecode loader's cooperation and are
// handled at that layer instead.
type CommandKind uint8

const (
	CmdPause CommandKind = iota
	CmdResume
	CmdUpdateWatchdog
	CmdUpdateFaultPolicy
	CmdUpdateRetainSaveInterval
	CmdUpdateIoSafeState
)

// Command is one entry drained from the scheduler's command channel at a
// cycle boundary (execute_cycle step 2).
type Command struct {
	Kind CommandKind

	WatchdogEnabled bool
	WatchdogTimeout time.Duration
	WatchdogPolicy  WatchdogPolicy

	FaultPolicy FaultPolicy

	RetainSaveInterval time.Duration

	SafeState []ioimage.SafeStateEntry
}

func (r *Runtime) applyCommand(cmd Command) {
	switch cmd.Kind {
	case CmdPause:
		if r.State == StateRunning {
			r.State = StatePaused
		}
	case CmdResume:
		if r.State == StatePaused {
			r.State = StateRunning
		}
	case CmdUpdateWatchdog:
		r.Watchdog.Configure(cmd.WatchdogEnabled, cmd.WatchdogTimeout, cmd.WatchdogPolicy)
	case CmdUpdateFaultPolicy:
		r.FaultPolicy = cmd.FaultPolicy
	case CmdUpdateRetainSaveInterval:
		r.Retain.SetSaveInterval(cmd.RetainSaveInterval)
	case CmdUpdateIoSafeState:
		r.cfg.SafeState = cmd.SafeState
	}
}
