package control

import (
	"sync"

	"github.com/trustplatform/trustrun/internal/bytecode"
	"github.com/trustplatform/trustrun/internal/eval"
)

// breakpointKey is a resolved (file-index, line, column) triple.
type breakpointKey struct {
	fileIdx uint32
	line    int
	column  int
}

// DebugSession holds the control plane's active breakpoint set and
// satisfies eval.DebugHook, so it can be installed on the running
// resource's EvalContext via scheduler.CmdSetDebugHook. Set, Clear and
// StepOnce mutate the session in place; every access, from the control
// plane or from the runner's goroutine, holds the session's mutex.
type DebugSession struct {
	mu     sync.Mutex
	files  *bytecode.StringTable
	active map[breakpointKey]struct{}
	step   bool
}

// NewDebugSession builds an empty session scoped to a module's
// DEBUG_STRING_TABLE, used to resolve a breakpoint request's file name to
// the index DEBUG_MAP entries carry.
func NewDebugSession(files *bytecode.StringTable) *DebugSession {
	return &DebugSession{files: files, active: map[breakpointKey]struct{}{}}
}

// Set adds a breakpoint at (file, line, column). Returns false if file is
// not present in the module's debug string table (nothing in DEBUG_MAP
// could reference it).
func (s *DebugSession) Set(file string, line, column int) bool {
	idx, ok := s.files.IndexOf(file)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[breakpointKey{idx, line, column}] = struct{}{}
	return true
}

// Clear removes a breakpoint; a no-op if it was never set.
func (s *DebugSession) Clear(file string, line, column int) {
	idx, ok := s.files.IndexOf(file)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, breakpointKey{idx, line, column})
}

// BreakpointHit implements eval.DebugHook. file is matched against the
// session's own string table, so a file name the module never declared
// never matches.
func (s *DebugSession) BreakpointHit(file string, line, column int) bool {
	idx, ok := s.files.IndexOf(file)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, hit := s.active[breakpointKey{idx, line, column}]
	return hit
}

// ShouldPause implements eval.DebugHook: it returns true exactly once after
// StepOnce has armed a step, and false otherwise. Declared breakpoints are
// not consulted here.
func (s *DebugSession) ShouldPause(pou string, stmtIndex int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.step {
		return false
	}
	s.step = false
	return true
}

// StepOnce arms a single cooperative pause at the next statement boundary
// evaluated by any POU, regardless of breakpoints — the control-plane
// "step" request.
func (s *DebugSession) StepOnce() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step = true
}

var _ eval.DebugHook = (*DebugSession)(nil)
