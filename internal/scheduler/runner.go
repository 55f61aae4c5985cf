package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set"
	"golang.org/x/sync/errgroup"

	"github.com/trustplatform/trustrun/internal/runtime"
)

var errNoBytecodeLoader = errors.New("scheduler: no bytecode loader configured")

// State mirrors internal/runtime's resource lifecycle states, reported at
// the scheduler layer (spec.md §4.6's Boot/Ready/Running/Paused/Faulted/
// Stopped), since original_source's ResourceState and runtime::State carry
// identical variants.
type State = runtime.State

const (
	StateBoot    = runtime.StateBoot
	StateReady   = runtime.StateReady
	StateRunning = runtime.StateRunning
	StatePaused  = runtime.StatePaused
	StateFaulted = runtime.StateFaulted
	StateStopped = runtime.StateStopped
)

// Runner drives a Runtime on a Clock, computing task readiness each cycle
// and applying the cooperative interval of spec.md §4.6.
type Runner struct {
	rt    *runtime.Runtime
	clock Clock
	base  time.Time

	tasks         []*taskState
	cycleInterval time.Duration

	startGate *StartGate
	shared    *SharedGlobals
	loader    BytecodeLoader
	metrics   runtime.MetricsSink

	commands           chan Command
	pendingRuntimeCmds []runtime.Command
	paused             bool

	firedThisCycle mapset.Set

	mu      sync.Mutex
	state   State
	lastErr error
}

// Config bundles a Runner's construction-time dependencies.
type Config struct {
	Runtime   *runtime.Runtime
	Clock     Clock
	Tasks     []*Task
	StartGate *StartGate
	Shared    *SharedGlobals
	Loader    BytecodeLoader
	Metrics   runtime.MetricsSink
	// CommandBuffer sizes the command channel; 0 means unbuffered.
	CommandBuffer int
}

// NewRunner assembles a Runner. The cooperative cycle interval is the
// smallest task interval present, or 10ms if there are none (spec.md
// §4.6).
func NewRunner(cfg Config) *Runner {
	interval := 10 * time.Millisecond
	haveInterval := false
	for _, t := range cfg.Tasks {
		if t.Interval > 0 && (!haveInterval || t.Interval < interval) {
			interval = t.Interval
			haveInterval = true
		}
	}
	states := make([]*taskState, len(cfg.Tasks))
	for i, t := range cfg.Tasks {
		states[i] = newTaskState(t, i)
	}
	return &Runner{
		rt:             cfg.Runtime,
		clock:          cfg.Clock,
		base:           time.Now(),
		tasks:          states,
		cycleInterval:  interval,
		startGate:      cfg.StartGate,
		shared:         cfg.Shared,
		loader:         cfg.Loader,
		metrics:        cfg.Metrics,
		commands:       make(chan Command, cfg.CommandBuffer),
		firedThisCycle: mapset.NewSet(),
		state:          StateBoot,
	}
}

// Send enqueues a command for the next cycle boundary. Blocks if
// CommandBuffer is exhausted; callers that cannot block should select
// against a context instead.
func (r *Runner) Send(cmd Command) { r.commands <- cmd }

func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *Runner) setFault(err error) {
	r.mu.Lock()
	r.lastErr = err
	r.state = StateFaulted
	r.mu.Unlock()
}

// drainCommands applies every command currently queued without blocking.
func (r *Runner) drainCommands() {
	for {
		select {
		case cmd := <-r.commands:
			r.applyCommand(cmd)
		default:
			return
		}
	}
}

// due computes, in priority-then-registration order, which tasks are ready
// to fire this cycle and flattens their program lists into the invocation
// slice ExecuteCycle expects.
func (r *Runner) due(now time.Duration) ([]runtime.ProgramInvocation, error) {
	order := make([]int, len(r.tasks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return r.tasks[order[a]].task.Priority < r.tasks[order[b]].task.Priority
	})

	r.firedThisCycle.Clear()
	var invocations []runtime.ProgramInvocation
	for _, idx := range order {
		ts := r.tasks[idx]
		fire, err := ts.due(now, r.rt.Storage)
		if err != nil {
			return nil, err
		}
		if !fire {
			continue
		}
		r.firedThisCycle.Add(ts.task.Name)
		invocations = append(invocations, ts.task.Programs...)
	}
	return invocations, nil
}

// RunCycle drains pending commands, computes due tasks, and runs exactly
// one ExecuteCycle — the unit of work a cooperative sleep loop, or a test,
// drives directly.
func (r *Runner) RunCycle(ctx context.Context) error {
	r.drainCommands()
	if r.paused {
		r.setState(StatePaused)
		return nil
	}

	now := r.clock.Now()
	due, err := r.due(now)
	if err != nil {
		r.setFault(err)
		return err
	}

	cmds := r.pendingRuntimeCmds
	r.pendingRuntimeCmds = nil
	asTime := r.base.Add(now)

	run := func() error { return r.rt.ExecuteCycle(ctx, asTime, due, cmds, r.metrics) }
	if r.shared != nil {
		err = r.shared.RunLocked(r.rt, run)
	} else {
		err = run()
	}
	if err != nil {
		r.setFault(err)
		return err
	}
	r.setState(StateRunning)
	return nil
}

// Run drives RunCycle in a loop on the Runner's own Clock until ctx is
// canceled, honoring the start gate and the cooperative interval (no
// catch-up sleep pile-up: a cycle that overruns the interval skips
// straight to the next boundary instead of sleeping a negative amount).
func (r *Runner) Run(ctx context.Context) error {
	if r.startGate != nil {
		r.setState(StateReady)
		if !r.startGate.Wait(ctx.Done()) {
			r.setState(StateStopped)
			return ctx.Err()
		}
	}
	r.setState(StateRunning)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				if err := r.rt.Stop(r.base.Add(r.clock.Now())); err != nil {
					return err
				}
				r.setState(StateStopped)
				return gctx.Err()
			default:
			}

			start := r.clock.Now()
			if err := r.RunCycle(gctx); err != nil {
				return err
			}
			if r.State() == StatePaused {
				r.clock.SleepUntil(start + r.cycleInterval)
				continue
			}
			deadline := start + r.cycleInterval
			if r.clock.Now() < deadline {
				r.clock.SleepUntil(deadline)
			}
		}
	})
	return g.Wait()
}

// Stop wakes a sleeping clock; it does not end Run, which exits only when
// its context is canceled or a cycle returns an error.
func (r *Runner) Stop() { r.clock.Wake() }
