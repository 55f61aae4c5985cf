package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/trustplatform/trustrun/internal/eval"
	"github.com/trustplatform/trustrun/internal/ioimage"
	"github.com/trustplatform/trustrun/internal/retainstore"
	"github.com/trustplatform/trustrun/internal/storage"
	"github.com/trustplatform/trustrun/internal/value"
)

// ProgramInvocation is one due program body to run this cycle, computed by
// the scheduler (C6) and handed to ExecuteCycle.
type ProgramInvocation struct {
	Def      *eval.ProgramDef
	Instance value.InstanceID
}

// Config bundles the declarations a Runtime needs to (re)initialize its
// globals, program instances, and I/O bindings — what a bytecode module
// (C7) decodes into once at load time.
type Config struct {
	Registry    *value.TypeRegistry
	Program     *eval.Program
	Globals     []GlobalDecl
	Bindings    []ioimage.Binding
	SafeState   []ioimage.SafeStateEntry
	ImageInput  int
	ImageOutput int
	ImageMemory int
	Profile     value.Profile
}

// Runtime owns C1-C4 and drives the cycle described in spec.md §4.5: one
// resource's storage, registry, evaluator context, process image, and
// fault/watchdog/retain subsystems.
type Runtime struct {
	cfg Config

	State State

	Registry *value.TypeRegistry
	Storage  *storage.VariableStorage
	EvalCtx  *eval.EvalContext
	Image    *ioimage.ProcessImage

	Drivers    []ioimage.RegisteredDriver
	StatusSink ioimage.StatusSink

	FaultPolicy FaultPolicy
	Watchdog    *Watchdog
	Fault       Fault

	Retain *retainstore.Manager

	CycleCounter uint64
	CurrentTime  time.Duration

	pendingRestart RestartKind

	// MeasureDuration computes a cycle's elapsed execution time given its
	// start instant. Production use leaves this nil (time.Since is used);
	// deterministic watchdog tests override it to simulate a workload of a
	// known duration without an actual sleep.
	MeasureDuration func(start time.Time) time.Duration
}

// New assembles a fresh Runtime from cfg and performs the equivalent of a
// cold restart (global init, instance allocation, zeroed image).
func New(cfg Config) (*Runtime, error) {
	r := &Runtime{
		cfg:      cfg,
		Registry: cfg.Registry,
		Image:    ioimage.NewProcessImage(cfg.ImageInput, cfg.ImageOutput, cfg.ImageMemory),
		Watchdog: NewWatchdog(),
		Retain:   retainstore.NewManager(),
		State:    StateBoot,
	}
	r.Storage = storage.New(cfg.Registry)
	r.Storage.OnRetainWrite = func(string) { r.Retain.MarkDirty() }
	r.EvalCtx = &eval.EvalContext{
		Storage: r.Storage,
		Program: cfg.Program,
		Profile: cfg.Profile,
		Debug:   eval.NoopDebugHook,
	}

	if err := r.coldInitGlobals(); err != nil {
		return nil, err
	}
	if err := ioimage.ValidateBindings(cfg.Bindings); err != nil {
		return nil, err
	}
	r.State = StateReady
	return r, nil
}

func (r *Runtime) coldInitGlobals() error {
	for _, g := range r.cfg.Globals {
		v, err := initGlobal(r.EvalCtx, r.Registry, g)
		if err != nil {
			return err
		}
		r.Storage.DeclareGlobal(g.Name, v, g.Retain)
	}
	return nil
}

// ConfigureRetain wires a retain backend and save cadence into the
// runtime's retain manager (spec.md §4.5's set_retain_store).
func (r *Runtime) ConfigureRetain(store retainstore.Store, saveInterval time.Duration, now time.Time) {
	r.Retain.Configure(store, saveInterval, now)
}

// ConfigureWatchdog wires the watchdog timeout and policy.
func (r *Runtime) ConfigureWatchdog(enabled bool, timeout time.Duration, policy WatchdogPolicy) {
	r.Watchdog.Configure(enabled, timeout, policy)
}

// RequestRestart arms a pending restart signal honored at the start of the
// next cycle (step 1 of execute_cycle).
func (r *Runtime) RequestRestart(kind RestartKind) {
	r.pendingRestart = kind
}

// snapshotRetained builds the map the retain manager flushes: every
// retained global's current value, opaque-encoded.
func (r *Runtime) snapshotRetained() (map[string][]byte, error) {
	out := make(map[string][]byte)
	for _, name := range r.Storage.RetainedNames() {
		v, err := r.Storage.GetGlobal(name)
		if err != nil {
			return nil, err
		}
		raw, err := encodeRetainValue(v)
		if err != nil {
			return nil, err
		}
		out[name] = raw
	}
	return out, nil
}

// restartCold implements spec.md §4.5's cold restart: every global
// (including retained) re-runs its declared initializer, the retain store
// is cleared, the image is zeroed, fault state clears, and the cycle
// counter resets.
func (r *Runtime) restartCold(now time.Time) error {
	r.Storage = storage.New(r.Registry)
	r.Storage.OnRetainWrite = func(string) { r.Retain.MarkDirty() }
	r.EvalCtx.Storage = r.Storage

	if err := r.coldInitGlobals(); err != nil {
		return err
	}
	if err := r.Retain.Flush(now, func() (map[string][]byte, error) { return map[string][]byte{}, nil }); err != nil {
		return err
	}
	for i := range r.Image.Input {
		r.Image.Input[i] = 0
	}
	for i := range r.Image.Output {
		r.Image.Output[i] = 0
	}
	for i := range r.Image.Memory {
		r.Image.Memory[i] = 0
	}
	r.Fault.clear()
	r.CycleCounter = 0
	return nil
}

// restartWarm implements spec.md §4.5's warm restart: non-retained globals
// re-run their initializers; retained globals reload from the store, and a
// retained global the store has no entry for keeps its current value;
// program/FB instance state and the cycle counter are left untouched.
func (r *Runtime) restartWarm(now time.Time) error {
	if err := r.Retain.Flush(now, r.snapshotRetained); err != nil {
		return err
	}
	persisted, err := r.Retain.Load()
	if err != nil {
		return err
	}
	for _, g := range r.cfg.Globals {
		if g.Retain {
			if raw, ok := persisted[g.Name]; ok {
				v, err := decodeRetainValue(r.Registry, raw, g.Type)
				if err != nil {
					return err
				}
				if err := r.Storage.SetGlobal(g.Name, v); err != nil {
					return err
				}
				continue
			}
			if _, err := r.Storage.GetGlobal(g.Name); err == nil {
				continue
			}
		}
		v, err := initGlobal(r.EvalCtx, r.Registry, g)
		if err != nil {
			return err
		}
		if err := r.Storage.SetGlobal(g.Name, v); err != nil {
			return err
		}
	}
	return nil
}

// applyFault runs the fault-policy decision: optional safe-state push,
// fault recording, and state transition (or warm restart).
func (r *Runtime) applyFault(now time.Time, err error, decision FaultDecision) error {
	if decision.ApplySafeState {
		_ = ioimage.ApplySafeState(r.Image, r.cfg.SafeState)
	}
	r.Fault.record(err)
	if decision.Restart == RestartWarm {
		if werr := r.restartWarm(now); werr != nil {
			return werr
		}
		r.State = StateRunning
		return nil
	}
	r.State = decision.Transition
	if decision.Transition == StateFaulted {
		return err
	}
	return nil
}

// ExecuteCycle runs the canonical ten-step sequence of spec.md §4.5 once.
// due is the set of program invocations the scheduler determined are ready
// this cycle; metrics is an optional sink invoked at step 10.
func (r *Runtime) ExecuteCycle(ctx context.Context, now time.Time, due []ProgramInvocation, commands []Command, metrics MetricsSink) error {
	// Step 1: honor a pending restart.
	if r.pendingRestart != RestartNone {
		kind := r.pendingRestart
		r.pendingRestart = RestartNone
		var err error
		if kind == RestartCold {
			err = r.restartCold(now)
		} else {
			err = r.restartWarm(now)
		}
		if err != nil {
			return err
		}
	}

	// Step 2: drain control commands.
	for _, cmd := range commands {
		r.applyCommand(cmd)
	}
	if r.State == StatePaused {
		return nil
	}

	start := now

	// Step 3-4: drivers read inputs, then image -> storage.
	if err := ioimage.RunDriverReads(ctx, r.Image, r.Drivers, r.StatusSink); err != nil {
		return r.applyFault(now, err, faultDecision(r.FaultPolicy))
	}
	if err := ioimage.ReadInputs(r.Image, r.cfg.Bindings, r.Registry, r.cfg.Profile, r.Storage); err != nil {
		return r.applyFault(now, err, faultDecision(r.FaultPolicy))
	}

	// Step 5: run every due program's body against its instance.
	for _, inv := range due {
		if err := eval.RunProgram(r.EvalCtx, inv.Instance, inv.Def); err != nil {
			var suspended *eval.Suspended
			if errors.As(err, &suspended) {
				// A breakpoint or cooperative pause fired mid-cycle: this
				// is a debug-session pause, not a fault. The cycle ends
				// here; a later Resume command (the control plane's
				// continue or step) returns the runtime to Running.
				r.State = StatePaused
				return nil
			}
			return r.applyFault(now, err, faultDecision(r.FaultPolicy))
		}
	}

	// Step 6-7: storage -> image, then drivers write outputs.
	if err := ioimage.WriteOutputs(r.Image, r.cfg.Bindings, r.Storage); err != nil {
		return r.applyFault(now, err, faultDecision(r.FaultPolicy))
	}
	if err := ioimage.RunDriverWrites(ctx, r.Image, r.Drivers, r.StatusSink); err != nil {
		return r.applyFault(now, err, faultDecision(r.FaultPolicy))
	}

	// Step 8: tick retain persistence.
	if err := r.Retain.Tick(now, r.snapshotRetained); err != nil {
		return err
	}

	// Step 9: watchdog check.
	measure := r.MeasureDuration
	if measure == nil {
		measure = func(s time.Time) time.Duration { return time.Since(s) }
	}
	duration := measure(start)
	if r.Watchdog.Exceeded(duration) {
		werr := value.NewFault(value.FaultWatchdogTimeout, "cycle took %s, exceeding watchdog timeout", duration)
		return r.applyFault(now, werr, r.Watchdog.Decision())
	}

	// Step 10: metrics/health.
	if metrics != nil {
		metrics.RecordCycle(duration)
	}
	r.CycleCounter++
	r.CurrentTime += duration
	if r.State == StateReady || r.State == StateBoot {
		r.State = StateRunning
	}
	return nil
}

// MetricsSink receives per-cycle measurements; internal/metrics's registry
// satisfies this.
type MetricsSink interface {
	RecordCycle(duration time.Duration)
}

// Stop implements spec.md §4.5's "On stop: save retained state; release
// drivers."
func (r *Runtime) Stop(now time.Time) error {
	if err := r.Retain.Flush(now, r.snapshotRetained); err != nil {
		return err
	}
	r.State = StateStopped
	return nil
}
