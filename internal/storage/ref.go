package storage

import "github.com/trustplatform/trustrun/internal/value"

// RefForGlobal builds a stable ValueRef rooted at a global.
func (s *VariableStorage) RefForGlobal(name string) *value.Reference {
	return &value.Reference{Root: value.RootGlobal, Name: canonKey(name)}
}

// RefForLocal builds a ValueRef rooted at a named local in the given frame.
func (s *VariableStorage) RefForLocal(frame *Frame, name string) *value.Reference {
	return &value.Reference{Root: value.RootFrameLocal, Name: name, Frame: frame.ID}
}

// RefForInstance builds a ValueRef rooted at an instance member.
func (s *VariableStorage) RefForInstance(id value.InstanceID, member string) *value.Reference {
	return &value.Reference{Root: value.RootInstance, Name: member, Instance: id}
}

// ReadByRef resolves every path segment (field, index, deref) and returns
// the leaf value. A resolution failure (stale frame, missing field, index
// out of bounds) is a typed fault, never undefined behavior.
func (s *VariableStorage) ReadByRef(ref *value.Reference) (value.Value, error) {
	root, err := s.resolveRoot(ref)
	if err != nil {
		return value.Value{}, err
	}
	return s.resolvePath(root, ref.Path)
}

// WriteByRef resolves the path down to the leaf's parent and writes the
// new value, propagating the rebuilt composite back up to the root slot.
func (s *VariableStorage) WriteByRef(ref *value.Reference, v value.Value) error {
	root, err := s.resolveRoot(ref)
	if err != nil {
		return err
	}
	newRoot, err := s.writePath(root, ref.Path, v)
	if err != nil {
		return err
	}
	return s.storeRoot(ref, newRoot)
}

func (s *VariableStorage) resolveRoot(ref *value.Reference) (value.Value, error) {
	switch ref.Root {
	case value.RootGlobal:
		v, ok := s.globals[ref.Name]
		if !ok {
			return value.Value{}, value.UndefinedVariable(ref.Name)
		}
		return v, nil
	case value.RootFrameLocal:
		fr, err := s.FrameByID(ref.Frame)
		if err != nil {
			return value.Value{}, value.NewFault(value.FaultInvalidReference,
				"reference root frame %d is no longer live", ref.Frame)
		}
		v, ok := fr.Locals[ref.Name]
		if !ok {
			return value.Value{}, value.UndefinedVariable(ref.Name)
		}
		return v, nil
	case value.RootInstance:
		return s.GetInstanceField(ref.Instance, ref.Name)
	}
	return value.Value{}, value.NewFault(value.FaultInvalidReference, "unknown reference root kind")
}

func (s *VariableStorage) storeRoot(ref *value.Reference, v value.Value) error {
	switch ref.Root {
	case value.RootGlobal:
		return s.SetGlobal(ref.Name, v)
	case value.RootFrameLocal:
		fr, err := s.FrameByID(ref.Frame)
		if err != nil {
			return value.NewFault(value.FaultInvalidReference,
				"reference root frame %d is no longer live", ref.Frame)
		}
		s.SetLocal(fr, ref.Name, v)
		return nil
	case value.RootInstance:
		return s.SetInstanceField(ref.Instance, ref.Name, v)
	}
	return value.NewFault(value.FaultInvalidReference, "unknown reference root kind")
}

// resolvePath walks field/index/deref segments from root to the leaf. A
// SegDeref segment recurses back through ReadByRef so a chain of nested
// references (e.g. a struct field holding a Reference to another
// Reference-typed slot) resolves transitively rather than stopping one
// level deep.
func (s *VariableStorage) resolvePath(root value.Value, path []value.RefSegment) (value.Value, error) {
	cur := root
	for i, seg := range path {
		switch seg.Kind {
		case value.SegField:
			f, ok := cur.Field(seg.Field)
			if !ok {
				return value.Value{}, value.UndefinedVariable(seg.Field)
			}
			cur = f
		case value.SegIndex:
			elems := cur.Elems()
			bounds := cur.Bounds()
			idx, err := flatIndex(bounds, seg.Index)
			if err != nil {
				return value.Value{}, err
			}
			if idx < 0 || idx >= len(elems) {
				lo, hi := int64(0), int64(len(elems)-1)
				if len(bounds) == 1 {
					lo, hi = bounds[0][0], bounds[0][1]
				}
				return value.Value{}, value.IndexOutOfBounds(seg.Index, lo, hi)
			}
			cur = elems[idx]
		case value.SegDeref:
			if cur.Kind == value.KindNull {
				return value.Value{}, value.NewFault(value.FaultNullReference, "dereference of Null")
			}
			inner := cur.Reference()
			if inner == nil {
				return value.Value{}, value.NewFault(value.FaultInvalidReference, "deref of non-reference value")
			}
			v, err := s.ReadByRef(inner)
			if err != nil {
				return value.Value{}, err
			}
			if i == len(path)-1 {
				return v, nil
			}
			cur = v
		default:
			return value.Value{}, value.NewFault(value.FaultInvalidReference, "unknown path segment")
		}
	}
	return cur, nil
}

func (s *VariableStorage) writePath(root value.Value, path []value.RefSegment, newValue value.Value) (value.Value, error) {
	if len(path) == 0 {
		return newValue, nil
	}
	seg := path[0]
	rest := path[1:]
	switch seg.Kind {
	case value.SegField:
		child, ok := root.Field(seg.Field)
		if !ok {
			return value.Value{}, value.UndefinedVariable(seg.Field)
		}
		updatedChild, err := s.writePath(child, rest, newValue)
		if err != nil {
			return value.Value{}, err
		}
		updated, ok := root.WithField(seg.Field, updatedChild)
		if !ok {
			return value.Value{}, value.UndefinedVariable(seg.Field)
		}
		return updated, nil
	case value.SegIndex:
		elems := root.Elems()
		bounds := root.Bounds()
		idx, err := flatIndex(bounds, seg.Index)
		if err != nil {
			return value.Value{}, err
		}
		if idx < 0 || idx >= len(elems) {
			lo, hi := int64(0), int64(len(elems)-1)
			if len(bounds) == 1 {
				lo, hi = bounds[0][0], bounds[0][1]
			}
			return value.Value{}, value.IndexOutOfBounds(seg.Index, lo, hi)
		}
		updatedChild, err := s.writePath(elems[idx], rest, newValue)
		if err != nil {
			return value.Value{}, err
		}
		updated, ok := root.WithElem(idx, updatedChild)
		if !ok {
			return value.Value{}, value.NewFault(value.FaultIndexOutOfBounds, "array write failed")
		}
		return updated, nil
	case value.SegDeref:
		if root.Kind == value.KindNull {
			return value.Value{}, value.NewFault(value.FaultNullReference, "dereference of Null")
		}
		inner := root.Reference()
		if inner == nil {
			return value.Value{}, value.NewFault(value.FaultInvalidReference, "deref of non-reference value")
		}
		if len(rest) == 0 {
			if err := s.WriteByRef(inner, newValue); err != nil {
				return value.Value{}, err
			}
			return root, nil
		}
		target, err := s.ReadByRef(inner)
		if err != nil {
			return value.Value{}, err
		}
		updatedTarget, err := s.writePath(target, rest, newValue)
		if err != nil {
			return value.Value{}, err
		}
		if err := s.WriteByRef(inner, updatedTarget); err != nil {
			return value.Value{}, err
		}
		return root, nil
	}
	return value.Value{}, value.NewFault(value.FaultInvalidReference, "unknown path segment")
}

// flatIndex converts a (currently single-dimension) declared index into a
// zero-based offset into the dense Elems slice by subtracting the declared
// lower bound. It does no bounds check; callers compare the offset against
// len(Elems).
func flatIndex(bounds [][2]int64, index int64) (int, error) {
	if len(bounds) == 0 {
		return int(index), nil
	}
	lo := bounds[0][0]
	return int(index - lo), nil
}
