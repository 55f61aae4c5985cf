// Package storage implements the storage and instance model (C2): globals,
// the call-frame stack, and the function-block/class instance arena, all
// addressed through stable references resolved fresh on every read/write.
package storage

import (
	"strings"

	"github.com/trustplatform/trustrun/internal/value"
)

// Frame is one call-frame: a locals map, an optional bound instance (for
// method/function-block execution), and an optional named return slot
// (for function calls).
type Frame struct {
	ID          value.FrameID
	Name        string
	Locals      map[string]value.Value
	HasInstance bool
	Instance    value.InstanceID
	ReturnName  string
	HasReturn   bool
}

// Instance is one allocation in the instance arena: a type plus a member
// variable map. Instances live for the duration of their owner (program-
// lifetime for globals/programs, call-lifetime for locals of FB/class
// type, matching spec's instance lifecycle).
type Instance struct {
	ID   value.InstanceID
	Type value.TypeID
	Vars map[string]value.Value
}

// VariableStorage is the single owner of all mutable evaluation state for
// one resource. It is never shared across resources except through the
// scheduler's SharedGlobals copy-in/copy-out mechanism, so no internal
// locking is required.
type VariableStorage struct {
	reg *value.TypeRegistry

	globals    map[string]value.Value
	canonical  map[string]string // lower(name) -> canonical declared name
	retained   map[string]bool

	frames      []*Frame
	nextFrameID value.FrameID

	instances      map[value.InstanceID]*Instance
	nextInstanceID value.InstanceID

	journal *journal

	// OnRetainWrite, if set, fires whenever a retained global's value
	// changes, so the runtime's retain manager can mark its persisted set
	// dirty without scanning every global each cycle.
	OnRetainWrite func(name string)
}

func New(reg *value.TypeRegistry) *VariableStorage {
	return &VariableStorage{
		reg:       reg,
		globals:   make(map[string]value.Value),
		canonical: make(map[string]string),
		retained:  make(map[string]bool),
		instances: make(map[value.InstanceID]*Instance),
		journal:   newJournal(),
	}
}

func canonKey(name string) string { return strings.ToLower(name) }

// DeclareGlobal registers a global's canonical name and initial value. It
// does not go through the journal: it is load-time setup, not a runtime
// mutation.
func (s *VariableStorage) DeclareGlobal(name string, v value.Value, retain bool) {
	key := canonKey(name)
	s.canonical[key] = name
	s.globals[key] = v
	if retain {
		s.retained[key] = true
	}
}

func (s *VariableStorage) IsRetained(name string) bool {
	return s.retained[canonKey(name)]
}

func (s *VariableStorage) RetainedNames() []string {
	names := make([]string, 0, len(s.retained))
	for k := range s.retained {
		names = append(names, s.canonical[k])
	}
	return names
}

func (s *VariableStorage) GetGlobal(name string) (value.Value, error) {
	key := canonKey(name)
	v, ok := s.globals[key]
	if !ok {
		return value.Value{}, value.UndefinedVariable(name)
	}
	return v, nil
}

func (s *VariableStorage) SetGlobal(name string, v value.Value) error {
	key := canonKey(name)
	prev, ok := s.globals[key]
	if !ok {
		return value.UndefinedVariable(name)
	}
	s.journal.append(&globalChange{key: key, prev: prev, hadPrev: true})
	s.globals[key] = v
	if s.retained[key] && s.OnRetainWrite != nil {
		s.OnRetainWrite(s.canonical[key])
	}
	return nil
}

// PushFrame pushes a new, instance-less call frame (a Function call).
func (s *VariableStorage) PushFrame(name string) *Frame {
	f := &Frame{ID: s.nextFrameID, Name: name, Locals: make(map[string]value.Value)}
	s.nextFrameID++
	s.frames = append(s.frames, f)
	s.journal.append(&pushFrameChange{})
	return f
}

// PushFrameWithInstance pushes a frame bound to an existing instance (a
// Method or FunctionBlock invocation).
func (s *VariableStorage) PushFrameWithInstance(name string, id value.InstanceID) *Frame {
	f := s.PushFrame(name)
	f.HasInstance = true
	f.Instance = id
	return f
}

// PopFrame pops the top frame. Per the storage invariants, pushes and pops
// must nest strictly; popping an empty stack is a programming error in the
// evaluator and returns InvalidFrame rather than panicking.
func (s *VariableStorage) PopFrame() (*Frame, error) {
	if len(s.frames) == 0 {
		return nil, value.NewFault(value.FaultInvalidFrame, "pop on empty frame stack")
	}
	top := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	s.journal.append(&popFrameChange{frame: top})
	return top, nil
}

func (s *VariableStorage) CurrentFrame() (*Frame, error) {
	if len(s.frames) == 0 {
		return nil, value.NewFault(value.FaultInvalidFrame, "no active frame")
	}
	return s.frames[len(s.frames)-1], nil
}

func (s *VariableStorage) FrameByID(id value.FrameID) (*Frame, error) {
	for _, f := range s.frames {
		if f.ID == id {
			return f, nil
		}
	}
	return nil, value.InvalidFrame(uint64(id))
}

// WithFrame temporarily re-enters a saved frame (by id, which must still be
// live on the stack) to run f for debug evaluation, per C2's with_frame
// contract. It does not push a new frame; it just validates the frame is
// still reachable before invoking f.
func (s *VariableStorage) WithFrame(id value.FrameID, f func(*Frame) error) error {
	fr, err := s.FrameByID(id)
	if err != nil {
		return err
	}
	return f(fr)
}

// CreateInstance allocates a new arena entry for a function-block/class/
// program instance.
func (s *VariableStorage) CreateInstance(typeID value.TypeID, vars map[string]value.Value) value.InstanceID {
	id := s.nextInstanceID
	s.nextInstanceID++
	s.instances[id] = &Instance{ID: id, Type: typeID, Vars: vars}
	s.journal.append(&createInstanceChange{id: id})
	return id
}

func (s *VariableStorage) Instance(id value.InstanceID) (*Instance, error) {
	inst, ok := s.instances[id]
	if !ok {
		return nil, value.NewFault(value.FaultNullReference, "instance %d does not exist", id)
	}
	return inst, nil
}

func (s *VariableStorage) GetInstanceField(id value.InstanceID, field string) (value.Value, error) {
	inst, err := s.Instance(id)
	if err != nil {
		return value.Value{}, err
	}
	v, ok := inst.Vars[field]
	if !ok {
		return value.Value{}, value.UndefinedVariable(field)
	}
	return v, nil
}

func (s *VariableStorage) SetInstanceField(id value.InstanceID, field string, v value.Value) error {
	inst, err := s.Instance(id)
	if err != nil {
		return err
	}
	prev, ok := inst.Vars[field]
	if !ok {
		return value.UndefinedVariable(field)
	}
	s.journal.append(&instanceFieldChange{instance: id, field: field, prev: prev})
	inst.Vars[field] = v
	return nil
}

func (s *VariableStorage) SetLocal(fr *Frame, name string, v value.Value) {
	prev, had := fr.Locals[name]
	s.journal.append(&localChange{frame: fr, name: name, prev: prev, had: had})
	fr.Locals[name] = v
}

// Snapshot returns a journal position that Revert can later roll back to.
func (s *VariableStorage) Snapshot() int { return s.journal.length() }

// Revert undoes every mutation recorded since snapshot, in LIFO order. Used
// by the evaluator to restore consistent state after a call faults
// mid-body, matching the "statement-level errors bubble out" contract
// while leaving storage internally consistent.
func (s *VariableStorage) Revert(snapshot int) { s.journal.revert(s, snapshot) }

func (s *VariableStorage) Registry() *value.TypeRegistry { return s.reg }
