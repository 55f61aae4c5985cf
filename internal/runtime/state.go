// Package runtime implements the cyclic execution core (C5): the
// execute_cycle sequence, the fault/watchdog state machine, cold/warm
// restart, and retain persistence ticking, wiring C1-C4 together into one
// runnable resource.
package runtime

import "github.com/trustplatform/trustrun/internal/value"

// State is the runtime's top-level lifecycle state.
type State uint8

const (
	StateBoot State = iota
	StateReady
	StateRunning
	StatePaused
	StateFaulted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateBoot:
		return "Boot"
	case StateReady:
		return "Ready"
	case StateRunning:
		return "Running"
	case StatePaused:
		return "Paused"
	case StateFaulted:
		return "Faulted"
	case StateStopped:
		return "Stopped"
	}
	return "Unknown"
}

// FaultPolicy governs how an ordinary runtime fault (any error a cycle's
// program execution bubbles out, per spec's "statement-level errors bubble
// out of the current cycle") is handled.
type FaultPolicy uint8

const (
	// FaultPolicyFault transitions to Faulted (the default).
	FaultPolicyFault FaultPolicy = iota
	// FaultPolicyContinue records the fault but stays Running.
	FaultPolicyContinue
	// FaultPolicyRestart performs a warm restart.
	FaultPolicyRestart
)

// WatchdogPolicy governs how a watchdog timeout is handled; unlike
// FaultPolicy it has no Continue option, since a missed deadline is never
// silently absorbed.
type WatchdogPolicy uint8

const (
	WatchdogPolicyFault WatchdogPolicy = iota
	WatchdogPolicyRestart
)

// FaultDecision is the outcome apply_fault computes from the configured
// policy: whether to push the safe-state image and which state transition
// to make.
type FaultDecision struct {
	ApplySafeState bool
	Transition     State
	Restart        RestartKind // valid only when Transition == StateRunning (a restart happened)
}

func faultDecision(policy FaultPolicy) FaultDecision {
	switch policy {
	case FaultPolicyContinue:
		return FaultDecision{ApplySafeState: false, Transition: StateRunning}
	case FaultPolicyRestart:
		return FaultDecision{ApplySafeState: true, Transition: StateRunning, Restart: RestartWarm}
	default:
		return FaultDecision{ApplySafeState: true, Transition: StateFaulted}
	}
}

func watchdogDecision(policy WatchdogPolicy) FaultDecision {
	switch policy {
	case WatchdogPolicyRestart:
		return FaultDecision{ApplySafeState: true, Transition: StateRunning, Restart: RestartWarm}
	default:
		return FaultDecision{ApplySafeState: true, Transition: StateFaulted}
	}
}

// RestartKind tags a cold vs. warm restart, per spec.md §4.5.
type RestartKind uint8

const (
	RestartNone RestartKind = iota
	RestartCold
	RestartWarm
)

// Fault records the runtime's terminal condition: the error that caused the
// last fault/restart and the current faulted flag.
type Fault struct {
	kind    value.FaultKind
	message string
	faulted bool
}

func (f *Fault) record(err error) {
	f.faulted = true
	if fl, ok := err.(*value.Fault); ok {
		f.kind = fl.Kind
		f.message = fl.Error()
		return
	}
	f.kind = value.FaultSimulation
	f.message = err.Error()
}

func (f *Fault) clear() { *f = Fault{} }

func (f *Fault) IsFaulted() bool          { return f.faulted }
func (f *Fault) LastFaultKind() value.FaultKind { return f.kind }
func (f *Fault) LastFaultMessage() string { return f.message }
