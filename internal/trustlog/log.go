// Package trustlog provides the structured, leveled logger threaded through
// every component constructor. It wraps log15 rather than exposing it
// directly so call sites depend on a small interface instead of the
// upstream package.
package trustlog

import (
	"os"

	"github.com/go-stack/stack"
	log15 "github.com/inconshreveable/log15"
)

// Logger is the structured logging interface every component takes as a
// constructor argument. Call sites use the key-value shape throughout:
// log.Info("cycle overrun", "task", name, "missed", n).
type Logger interface {
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	Crit(msg string, ctx ...interface{})

	// New returns a child logger with ctx appended to every record it
	// emits, without mutating the receiver.
	New(ctx ...interface{}) Logger
}

type logger struct {
	l log15.Logger
}

// New constructs a root logger writing to w at the given level,
// terminal-formatted (log15.TerminalFormat) whether or not w is a TTY. Components never
// reach for a package-global logger; one root is built in cmd/trustrun and
// threaded down via New(ctx...) child loggers.
func New(lvl log15.Lvl, w *os.File) Logger {
	handler := log15.LvlFilterHandler(lvl, log15.StreamHandler(w, log15.TerminalFormat()))
	root := log15.New()
	root.SetHandler(handler)
	return &logger{l: root}
}

// NewJSON constructs a root logger emitting one JSON object per record,
// for deployments that ship logs to a collector rather than a terminal.
func NewJSON(lvl log15.Lvl, w *os.File) Logger {
	handler := log15.LvlFilterHandler(lvl, log15.StreamHandler(w, log15.JsonFormat()))
	root := log15.New()
	root.SetHandler(handler)
	return &logger{l: root}
}

func (g *logger) Debug(msg string, ctx ...interface{}) { g.l.Debug(msg, ctx...) }
func (g *logger) Info(msg string, ctx ...interface{})  { g.l.Info(msg, ctx...) }
func (g *logger) Warn(msg string, ctx ...interface{})  { g.l.Warn(msg, ctx...) }
func (g *logger) Error(msg string, ctx ...interface{}) { g.l.Error(msg, ctx...) }
func (g *logger) Crit(msg string, ctx ...interface{})  { g.l.Crit(msg, ctx...) }

func (g *logger) New(ctx ...interface{}) Logger {
	return &logger{l: g.l.New(ctx...)}
}

// CallStack captures a compact call-stack string starting skip frames
// above its caller. No other package calls it; internal/runtime's cycle
// executor has no panic-recovery path.
func CallStack(skip int) string {
	return stack.Trace().TrimBelow(stack.Caller(skip + 1)).TrimRuntime().String()
}

// Discard is a Logger that drops every record; used by tests and any
// constructor path that does not need to wire a real logger through.
var Discard Logger = discardLogger{}

type discardLogger struct{}

func (discardLogger) Debug(string, ...interface{}) {}
func (discardLogger) Info(string, ...interface{})  {}
func (discardLogger) Warn(string, ...interface{})  {}
func (discardLogger) Error(string, ...interface{}) {}
func (discardLogger) Crit(string, ...interface{})  {}
func (discardLogger) New(...interface{}) Logger    { return discardLogger{} }
