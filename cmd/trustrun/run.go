package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"gopkg.in/urfave/cli.v1"

	"github.com/trustplatform/trustrun/internal/bytecode"
	"github.com/trustplatform/trustrun/internal/control"
	"github.com/trustplatform/trustrun/internal/eval"
	"github.com/trustplatform/trustrun/internal/ioimage"
	"github.com/trustplatform/trustrun/internal/metrics"
	"github.com/trustplatform/trustrun/internal/retainstore"
	"github.com/trustplatform/trustrun/internal/runtime"
	"github.com/trustplatform/trustrun/internal/scheduler"
	"github.com/trustplatform/trustrun/internal/trustconfig"
	"github.com/trustplatform/trustrun/internal/trustlog"
	"github.com/trustplatform/trustrun/internal/value"
)

var bytecodeFlag = cli.StringFlag{
	Name:  "bytecode",
	Usage: "compiled module file (overrides [Runtime] bytecode_path)",
}

var runCommand = cli.Command{
	Name:   "run",
	Usage:  "load a module and drive the cyclic scheduler",
	Flags:  []cli.Flag{bytecodeFlag},
	Action: runAction,
}

func runAction(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "trustrun:", err)
		os.Exit(exitInvalidConfig)
	}

	log := newRootLogger(ctx)
	log.Info("starting", "commit", gitCommit)

	bcPath := cfg.Runtime.BytecodePath
	if p := ctx.String(bytecodeFlag.Name); p != "" {
		bcPath = p
	}
	if bcPath == "" {
		fmt.Fprintln(os.Stderr, "trustrun: no bytecode file configured (set [Runtime] bytecode_path or pass --bytecode)")
		os.Exit(exitInvalidConfig)
	}

	data, err := os.ReadFile(bcPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "trustrun:", err)
		os.Exit(exitInvalidConfig)
	}

	profile := value.DefaultProfile()
	mod, rtCfg, err := decodeModule(data, cfg, profile)
	if err != nil {
		var uw *ioimage.UnresolvedWildcardError
		if errors.As(err, &uw) {
			fmt.Fprintln(os.Stderr, "trustrun:", err)
			os.Exit(exitUnresolvedWildcards)
		}
		fmt.Fprintln(os.Stderr, "trustrun:", err)
		os.Exit(exitFaultAtStartup)
	}

	rt, err := runtime.New(rtCfg)
	if err != nil {
		var uw *ioimage.UnresolvedWildcardError
		if errors.As(err, &uw) {
			fmt.Fprintln(os.Stderr, "trustrun:", err)
			os.Exit(exitUnresolvedWildcards)
		}
		fmt.Fprintln(os.Stderr, "trustrun:", err)
		os.Exit(exitFaultAtStartup)
	}

	watchdogPolicy, err := cfg.Runtime.WatchdogPolicyValue()
	if err != nil {
		fmt.Fprintln(os.Stderr, "trustrun:", err)
		os.Exit(exitInvalidConfig)
	}
	faultPolicy, err := cfg.Runtime.FaultPolicyValue()
	if err != nil {
		fmt.Fprintln(os.Stderr, "trustrun:", err)
		os.Exit(exitInvalidConfig)
	}
	rt.FaultPolicy = faultPolicy
	rt.ConfigureWatchdog(cfg.Runtime.WatchdogEnabled, cfg.Runtime.WatchdogTimeout, watchdogPolicy)

	store, err := openRetainStore(cfg.Runtime)
	if err != nil {
		fmt.Fprintln(os.Stderr, "trustrun:", err)
		os.Exit(exitFaultAtStartup)
	}
	if store != nil {
		rt.ConfigureRetain(store, cfg.Runtime.RetainSaveInterval, time.Now())
	}

	reg := metrics.NewRegistry()
	rt.StatusSink = reg

	tasks, err := buildTasks(rt, mod, cfg.Runtime.CycleInterval)
	if err != nil {
		fmt.Fprintln(os.Stderr, "trustrun:", err)
		os.Exit(exitFaultAtStartup)
	}

	gate := scheduler.NewStartGate()
	runner := scheduler.NewRunner(scheduler.Config{
		Runtime:       rt,
		Clock:         scheduler.NewStdClock(),
		Tasks:         tasks,
		StartGate:     gate,
		Loader:        bytecode.NewLoader(profile),
		Metrics:       reg,
		CommandBuffer: 16,
	})

	session := control.NewDebugSession(mod.DebugFiles)
	ctrl := control.NewServer(runner, reg, session, log.New("component", "control"), cfg.Control.AuthToken)

	var watcher *bytecode.Watcher
	if cfg.Runtime.WatchBytecode {
		watcher, err = bytecode.WatchFile(bcPath)
		if err != nil {
			log.Warn("bytecode watch disabled", "err", err)
			watcher = nil
		}
	}

	stopCtrl, err := startControlListeners(cfg.Control, ctrl, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "trustrun:", err)
		if errors.Is(err, control.ErrAuthRequired) {
			os.Exit(exitControlAuthMissing)
		}
		os.Exit(exitFaultAtStartup)
	}
	defer stopCtrl()

	sigCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	gate.Open()

	go watchLoop(sigCtx, watcher, runner, log)

	if err := runner.Run(sigCtx); err != nil && sigCtx.Err() == nil {
		log.Error("runner exited", "err", err)
		os.Exit(exitFaultAtStartup)
	}
	log.Info("stopped")
	return nil
}

func watchLoop(ctx context.Context, watcher *bytecode.Watcher, runner *scheduler.Runner, log trustlog.Logger) {
	if watcher == nil {
		return
	}
	defer watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-watcher.Changes:
			reply := make(chan scheduler.ReloadResult, 1)
			runner.Send(scheduler.Command{Kind: scheduler.CmdReloadBytecode, Bytecode: data, ReloadReply: reply})
			res := <-reply
			if res.Err != nil {
				log.Error("bytecode reload failed", "err", res.Err)
			} else {
				log.Info("bytecode reloaded")
			}
		}
	}
}

// decodeModule decodes the raw container for its POU table (task
// derivation needs program bodies by name) and builds the runtime.Config a
// Runtime is constructed from; any configured safe-state overrides are
// merged on top of the module's own.
func decodeModule(data []byte, cfg trustconfig.Config, profile value.Profile) (*bytecode.BytecodeModule, runtime.Config, error) {
	mod, err := bytecode.Decode(data)
	if err != nil {
		return nil, runtime.Config{}, err
	}
	rtCfg, err := mod.ToRuntimeConfig(profile)
	if err != nil {
		return nil, runtime.Config{}, err
	}
	extra, err := cfg.IO.Resolve()
	if err != nil {
		return nil, runtime.Config{}, err
	}
	rtCfg.SafeState = append(rtCfg.SafeState, extra...)
	return mod, rtCfg, nil
}

// buildTasks derives a single periodic task running every decoded program
// once per cycle at the scheduler's cooperative interval: the container
// format carries no independent task/OB table of its own
// (bytecode.BytecodeModule has no Tasks section), so a degenerate
// single-task resource is the closest faithful reading of spec.md §4.6's
// scheduling model for a module compiled without one.
func buildTasks(rt *runtime.Runtime, mod *bytecode.BytecodeModule, interval time.Duration) ([]*scheduler.Task, error) {
	var invocations []runtime.ProgramInvocation
	for _, p := range mod.Pous {
		if p.Kind != bytecode.PouProgram {
			continue
		}
		def, ok := rt.EvalCtx.Program.Programs[p.Name]
		if !ok {
			continue
		}
		inst, err := eval.CreateProgramInstance(rt.EvalCtx, def)
		if err != nil {
			return nil, fmt.Errorf("trustrun: initializing program %s: %w", p.Name, err)
		}
		invocations = append(invocations, runtime.ProgramInvocation{Def: def, Instance: inst})
	}
	if len(invocations) == 0 {
		return nil, nil
	}
	return []*scheduler.Task{{
		Name:     "main",
		Interval: interval,
		Programs: invocations,
	}}, nil
}

func openRetainStore(rc trustconfig.RuntimeConfig) (retainstore.Store, error) {
	switch rc.RetainStore {
	case "":
		return nil, nil
	case "file":
		return retainstore.NewFileStore(rc.RetainPath), nil
	case "leveldb":
		return retainstore.OpenLevelDBStore(rc.RetainPath)
	default:
		return nil, fmt.Errorf("trustrun: unknown retain store kind %q", rc.RetainStore)
	}
}

// startControlListeners starts every configured control-plane transport and
// returns a func that shuts them down. TCP refuses to start without an auth
// token (control.ErrAuthRequired), the exit-4 case spec.md §6 requires; the
// unix socket and HTTP surface may run without one for a trusted local
// operator.
func startControlListeners(cc trustconfig.ControlConfig, s *control.Server, log trustlog.Logger) (func(), error) {
	limiter := control.NewLimiter(cc.RateLimit, cc.RateBurst)
	var closers []func() error

	var hub *control.Hub
	if cc.HTTPAddress != "" {
		hub = control.NewHub()
		s.Broadcast = hub.Broadcast
	}

	if cc.TCPAddress != "" {
		ln, err := control.ListenTCP(cc.TCPAddress, s, limiter)
		if err != nil {
			return nil, err
		}
		log.Info("control TCP listening", "addr", cc.TCPAddress)
		closers = append(closers, ln.Close)
	}

	if cc.UnixSocket != "" {
		ln, err := control.ListenUnix(cc.UnixSocket, s, limiter)
		if err != nil {
			return nil, err
		}
		log.Info("control unix socket listening", "path", cc.UnixSocket)
		closers = append(closers, ln.Close)
	}

	if cc.HTTPAddress != "" {
		httpLn, err := net.Listen("tcp", cc.HTTPAddress)
		if err != nil {
			return nil, err
		}
		srv := &http.Server{Handler: control.NewHTTPHandler(s, hub, cc.AuthToken != "")}
		go srv.Serve(httpLn)
		log.Info("control HTTP listening", "addr", cc.HTTPAddress)
		closers = append(closers, srv.Close)
	}

	return func() {
		for _, c := range closers {
			c()
		}
	}, nil
}
