package control

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trustplatform/trustrun/internal/metrics"
	"github.com/trustplatform/trustrun/internal/scheduler"
	"github.com/trustplatform/trustrun/internal/trustlog"
	"github.com/trustplatform/trustrun/internal/value"
)

// Server holds everything dispatch needs: the running resource's command
// producer, the metrics registry driver statuses and cycle stats are read
// from, the active debug session, and the audit/broadcast sinks.
type Server struct {
	Runner    *scheduler.Runner
	Metrics   *metrics.Registry
	Session   *DebugSession
	Log       trustlog.Logger
	AuthToken string

	Broadcast func(AuditEvent) // optional, e.g. the websocket hub's Broadcast

	replyTimeout time.Duration
}

// NewServer builds a Server with a 2s default reply timeout for commands
// that round-trip through the runner's command channel.
func NewServer(runner *scheduler.Runner, reg *metrics.Registry, session *DebugSession, log trustlog.Logger, authToken string) *Server {
	return &Server{
		Runner:       runner,
		Metrics:      reg,
		Session:      session,
		Log:          log,
		AuthToken:    authToken,
		replyTimeout: 2 * time.Second,
	}
}

// Handle authenticates, dispatches, and audit-logs a single request. client
// identifies the caller for the audit event (a remote address, or "local"
// for a unix-socket connection). requireAuth is true
// for every TCP listener, per spec.md §6.
func (s *Server) Handle(ctx context.Context, req Request, client string, requireAuth bool) Response {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	authPresent := req.AuthToken != ""
	if requireAuth {
		if s.AuthToken == "" || req.AuthToken != s.AuthToken {
			resp := Response{ID: req.ID, OK: false, Error: "auth token missing or invalid"}
			s.audit(req, client, authPresent, resp)
			return resp
		}
	}

	resp := s.dispatch(ctx, req)
	resp.ID = req.ID
	s.audit(req, client, authPresent, resp)
	return resp
}

func (s *Server) audit(req Request, client string, authPresent bool, resp Response) {
	ev := AuditEvent{
		ID:          req.ID,
		Type:        string(req.Type),
		OK:          resp.OK,
		Error:       resp.Error,
		AuthPresent: authPresent,
		Client:      client,
		Timestamp:   time.Now(),
	}
	if s.Log != nil {
		if resp.OK {
			s.Log.Info("control request", "id", ev.ID, "type", ev.Type, "client", client)
		} else {
			s.Log.Warn("control request failed", "id", ev.ID, "type", ev.Type, "client", client, "error", ev.Error)
		}
	}
	if s.Broadcast != nil {
		s.Broadcast(ev)
	}
}

func (s *Server) dispatch(ctx context.Context, req Request) Response {
	switch req.Type {
	case ReqMetadataSnapshot:
		return s.metadataSnapshot(ctx)
	case ReqIoStateSnapshot:
		return s.ioStateSnapshot()
	case ReqVariableRead:
		return s.variableRead(ctx, req)
	case ReqVariableWrite:
		return s.variableWrite(req)
	case ReqBreakpointSet:
		return s.breakpointSet(req)
	case ReqBreakpointClear:
		return s.breakpointClear(req)
	case ReqContinue:
		return s.continueRun(req)
	case ReqPause:
		return s.pauseRun(req)
	case ReqReload:
		return s.reload(ctx, req)
	default:
		return Response{OK: false, Error: fmt.Sprintf("control: unknown request type %q", req.Type)}
	}
}

func (s *Server) metadataSnapshot(ctx context.Context) Response {
	body := MetadataSnapshot{State: s.Runner.State().String()}
	if err := s.Runner.LastError(); err != nil {
		body.LastError = err.Error()
	}
	if s.Metrics != nil {
		stats := s.Metrics.Snapshot()
		body.CycleCount, body.CycleMin, body.CycleMax, body.CycleMean = stats.Count, stats.Min, stats.Max, stats.Mean()
		if host, err := metrics.SampleHost(ctx, 200*time.Millisecond); err == nil {
			body.HostUptime = host.Uptime
			body.HostOS = host.OS
			body.HostCPUPct = host.CPUPercent
			body.HostMemUsed = host.MemUsedBytes
			body.HostMemTotal = host.MemTotalBytes
		}
	}
	return Response{OK: true, Body: body}
}

func (s *Server) ioStateSnapshot() Response {
	body := IoStateSnapshot{Drivers: map[string]DriverState{}}
	if s.Metrics != nil {
		for name, st := range s.Metrics.DriverStatuses() {
			ds := DriverState{Health: st.Health.String()}
			if st.Err != nil {
				ds.Error = st.Err.Error()
			}
			body.Drivers[name] = ds
		}
	}
	return Response{OK: true, Body: body}
}

func (s *Server) variableRead(ctx context.Context, req Request) Response {
	out, err := s.meshSnapshot(ctx, req.Names)
	if err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	return Response{OK: true, Body: out}
}

func (s *Server) meshSnapshot(ctx context.Context, names []string) (map[string]value.Value, error) {
	reply := make(chan map[string]value.Value, 1)
	s.Runner.Send(scheduler.Command{Kind: scheduler.CmdMeshSnapshot, MeshNames: names, MeshReply: reply})
	select {
	case out := <-reply:
		return out, nil
	case <-time.After(s.replyTimeout):
		return nil, fmt.Errorf("control: variable_read timed out waiting for the runner")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Server) variableWrite(req Request) Response {
	updates, err := ResolveValues(req.Names, req.Values)
	if err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	s.Runner.Send(scheduler.Command{Kind: scheduler.CmdMeshApply, MeshUpdates: updates})
	return Response{OK: true}
}

func (s *Server) breakpointSet(req Request) Response {
	if s.Session == nil {
		return Response{OK: false, Error: "control: no debug session attached"}
	}
	if !s.Session.Set(req.File, req.Line, req.Column) {
		return Response{OK: false, Error: fmt.Sprintf("control: file %q not present in the loaded module's debug map", req.File)}
	}
	s.Runner.Send(scheduler.Command{Kind: scheduler.CmdSetDebugHook, DebugHook: s.Session})
	return Response{OK: true}
}

func (s *Server) breakpointClear(req Request) Response {
	if s.Session == nil {
		return Response{OK: false, Error: "control: no debug session attached"}
	}
	s.Session.Clear(req.File, req.Line, req.Column)
	s.Runner.Send(scheduler.Command{Kind: scheduler.CmdSetDebugHook, DebugHook: s.Session})
	return Response{OK: true}
}

func (s *Server) continueRun(req Request) Response {
	s.Runner.Send(scheduler.Command{Kind: scheduler.CmdResume})
	return Response{OK: true}
}

func (s *Server) pauseRun(req Request) Response {
	if len(req.Names) > 0 && req.Names[0] == "step" && s.Session != nil {
		s.Session.StepOnce()
		s.Runner.Send(scheduler.Command{Kind: scheduler.CmdSetDebugHook, DebugHook: s.Session})
		s.Runner.Send(scheduler.Command{Kind: scheduler.CmdResume})
		return Response{OK: true}
	}
	s.Runner.Send(scheduler.Command{Kind: scheduler.CmdPause})
	return Response{OK: true}
}

func (s *Server) reload(ctx context.Context, req Request) Response {
	reply := make(chan scheduler.ReloadResult, 1)
	s.Runner.Send(scheduler.Command{Kind: scheduler.CmdReloadBytecode, Bytecode: req.Bytecode, ReloadReply: reply})
	select {
	case result := <-reply:
		if result.Err != nil {
			return Response{OK: false, Error: result.Err.Error()}
		}
		return Response{OK: true}
	case <-time.After(s.replyTimeout):
		return Response{OK: false, Error: "control: reload timed out waiting for the runner"}
	case <-ctx.Done():
		return Response{OK: false, Error: ctx.Err().Error()}
	}
}
