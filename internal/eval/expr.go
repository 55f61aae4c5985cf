package eval

import (
	"github.com/trustplatform/trustrun/internal/storage"
	"github.com/trustplatform/trustrun/internal/value"
)

// EvalExpr evaluates e within frame. Every step checks the deadline; the
// pause flag is checked only at statement boundaries (stmt.go), never
// mid-expression, per spec's "no mid-expression suspension" contract.
func EvalExpr(ctx *EvalContext, frame *storage.Frame, e Expr) (value.Value, error) {
	if err := ctx.checkDeadline(); err != nil {
		return value.Value{}, err
	}

	switch n := e.(type) {
	case LiteralExpr:
		return n.Value, nil

	case UntypedRealExpr:
		return value.PromoteUntypedReal(n.Literal, value.KindF64), nil

	case NameExpr, ThisExpr, FieldExpr, IndexExpr:
		ref, err := exprToRef(ctx, frame, e)
		if err != nil {
			return value.Value{}, err
		}
		return ctx.Storage.ReadByRef(ref)

	case SuperExpr:
		if !frame.HasInstance {
			return value.Value{}, value.NewFault(value.FaultInvalidReference, "SUPER used outside an instance method")
		}
		inst, err := ctx.Storage.Instance(frame.Instance)
		if err != nil {
			return value.Value{}, err
		}
		desc, err := ctx.Storage.Registry().Lookup(inst.Type)
		if err != nil {
			return value.Value{}, err
		}
		if desc.ParentType == 0 {
			return value.Value{}, value.NewFault(value.FaultInvalidReference, "%q has no base type for SUPER", desc.Name)
		}
		return value.Instance(desc.ParentType, frame.Instance), nil

	case UnaryExpr:
		v, err := EvalExpr(ctx, frame, n.Operand)
		if err != nil {
			return value.Value{}, err
		}
		return value.ApplyUnary(n.Op, v)

	case BinaryExpr:
		l, err := evalMaybeUntypedReal(ctx, frame, n.Left, n.Right)
		if err != nil {
			return value.Value{}, err
		}
		r, err := evalMaybeUntypedReal(ctx, frame, n.Right, n.Left)
		if err != nil {
			return value.Value{}, err
		}
		return value.ApplyBinary(n.Op, l, r)

	case ParenExpr:
		return EvalExpr(ctx, frame, n.Inner)

	case DerefExpr:
		ref, err := exprToRef(ctx, frame, e)
		if err != nil {
			return value.Value{}, err
		}
		return ctx.Storage.ReadByRef(ref)

	case AddrOfExpr:
		ref, err := exprToRef(ctx, frame, n.Target)
		if err != nil {
			return value.Value{}, err
		}
		return value.RefValue(ref), nil

	case CallExpr:
		return Call(ctx, frame, n)

	case SizeofExpr:
		sz, err := value.SizeOf(ctx.Storage.Registry(), n.TargetType)
		if err != nil {
			return value.Value{}, err
		}
		return value.Int(value.KindU32, sz), nil

	case ArrayInitExpr:
		// Built with TypeID 0 (untyped); value.Coerce recognizes a
		// zero-typed array literal and binds it to the assignment target's
		// declared array type, coercing each element in the same step.
		elems := make([]value.Value, len(n.Elements))
		for i, el := range n.Elements {
			v, err := EvalExpr(ctx, frame, el)
			if err != nil {
				return value.Value{}, err
			}
			elems[i] = v
		}
		return value.Array(0, elems, [][2]int64{{0, int64(len(elems) - 1)}}), nil
	}

	return value.Value{}, value.NewFault(value.FaultTypeMismatch, "unknown expression node %T", e)
}

// evalMaybeUntypedReal evaluates e, and if e is an untyped real literal,
// promotes it against the other operand's static kind rather than
// defaulting blindly to LREAL — this only matters when exactly one side of
// a binary expression is an untyped literal.
func evalMaybeUntypedReal(ctx *EvalContext, frame *storage.Frame, e, other Expr) (value.Value, error) {
	if lit, ok := e.(UntypedRealExpr); ok {
		otherKind, err := staticRealKind(ctx, frame, other)
		if err != nil {
			return value.Value{}, err
		}
		return value.PromoteUntypedReal(lit.Literal, otherKind), nil
	}
	return EvalExpr(ctx, frame, e)
}

func staticRealKind(ctx *EvalContext, frame *storage.Frame, e Expr) (value.Kind, error) {
	if _, ok := e.(UntypedRealExpr); ok {
		return value.KindF64, nil
	}
	v, err := EvalExpr(ctx, frame, e)
	if err != nil {
		return value.KindF64, err
	}
	return v.Kind, nil
}
