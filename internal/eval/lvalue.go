package eval

import (
	"github.com/trustplatform/trustrun/internal/storage"
	"github.com/trustplatform/trustrun/internal/value"
)

// resolveName finds where a bare name resolves: frame-local first, then the
// bound instance's members (THIS is implicit), then globals. This fixed
// order is what makes resolution deterministic and is exercised by every
// call/method dispatch test.
func resolveName(ctx *EvalContext, frame *storage.Frame, name string) (*value.Reference, error) {
	if _, ok := frame.Locals[name]; ok {
		return ctx.Storage.RefForLocal(frame, name), nil
	}
	if frame.HasInstance {
		if _, err := ctx.Storage.GetInstanceField(frame.Instance, name); err == nil {
			return ctx.Storage.RefForInstance(frame.Instance, name), nil
		}
	}
	if _, err := ctx.Storage.GetGlobal(name); err == nil {
		return ctx.Storage.RefForGlobal(name), nil
	}
	return nil, value.UndefinedVariable(name)
}

// exprToRef computes the ValueRef an l-value expression designates,
// without reading through it. Used by assignment targets, AddrOf, and
// Out/InOut argument binding.
func exprToRef(ctx *EvalContext, frame *storage.Frame, e Expr) (*value.Reference, error) {
	switch n := e.(type) {
	case NameExpr:
		return resolveName(ctx, frame, n.Name)
	case ThisExpr:
		if !frame.HasInstance {
			return nil, value.NewFault(value.FaultInvalidReference, "THIS used outside an instance method")
		}
		return &value.Reference{Root: value.RootInstance, Instance: frame.Instance}, nil
	case FieldExpr:
		base, err := exprToRef(ctx, frame, n.Base)
		if err != nil {
			return nil, err
		}
		ref := *base
		ref.Path = append(append([]value.RefSegment{}, base.Path...), value.RefSegment{Kind: value.SegField, Field: n.Field})
		return &ref, nil
	case IndexExpr:
		base, err := exprToRef(ctx, frame, n.Base)
		if err != nil {
			return nil, err
		}
		ref := *base
		ref.Path = append([]value.RefSegment{}, base.Path...)
		for _, idxExpr := range n.Indices {
			iv, err := EvalExpr(ctx, frame, idxExpr)
			if err != nil {
				return nil, err
			}
			ref.Path = append(ref.Path, value.RefSegment{Kind: value.SegIndex, Index: iv.AsInt()})
		}
		return &ref, nil
	case ParenExpr:
		return exprToRef(ctx, frame, n.Inner)
	case DerefExpr:
		v, err := EvalExpr(ctx, frame, n.Base)
		if err != nil {
			return nil, err
		}
		if v.Kind == value.KindNull {
			return nil, value.NewFault(value.FaultNullReference, "dereference of Null")
		}
		ref := v.Reference()
		if ref == nil {
			return nil, value.NewFault(value.FaultInvalidReference, "deref of a non-reference value")
		}
		return ref, nil
	}
	return nil, value.NewFault(value.FaultInvalidReference, "expression is not an l-value")
}
