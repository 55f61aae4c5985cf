package eval

import (
	"github.com/trustplatform/trustrun/internal/storage"
	"github.com/trustplatform/trustrun/internal/value"
)

// StmtResultKind tags the control-flow sum type statements return.
type StmtResultKind uint8

const (
	ResultContinue StmtResultKind = iota
	ResultReturn
	ResultExit
	ResultLoopContinue
	ResultJump
)

type StmtResult struct {
	Kind       StmtResultKind
	ReturnVal  value.Value
	HasReturn  bool
	JumpLabel  string
}

var continueResult = StmtResult{Kind: ResultContinue}

// flowCtx tracks whether Exit/LoopContinue are legal at the current
// nesting depth, enforcing "Exit/LoopContinue only inside a loop".
type flowCtx struct {
	inLoop bool
}

// ExecStmtList runs a statement list in order, honoring jmp/label
// resolution within the list (forward references permitted) and
// propagating non-Continue results to the caller.
func ExecStmtList(ctx *EvalContext, frame *storage.Frame, pou string, stmts []Stmt, fc flowCtx) (StmtResult, error) {
	i := 0
	for i < len(stmts) {
		if ctx.pausePending() {
			return StmtResult{}, &Suspended{Frame: frame.ID}
		}
		if err := ctx.checkDeadline(); err != nil {
			return StmtResult{}, err
		}
		if ctx.Debug != nil && ctx.Debug.ShouldPause(pou, i) {
			return StmtResult{}, &Suspended{Frame: frame.ID}
		}

		res, err := ExecStmt(ctx, frame, pou, stmts[i], fc)
		if err != nil {
			return StmtResult{}, err
		}
		if res.Kind == ResultJump {
			target := findLabel(stmts, res.JumpLabel)
			if target < 0 {
				return StmtResult{}, value.NewFault(value.FaultInvalidControlFlow, "label %q not in scope", res.JumpLabel)
			}
			i = target
			continue
		}
		if res.Kind != ResultContinue {
			return res, nil
		}
		i++
	}
	return continueResult, nil
}

func findLabel(stmts []Stmt, name string) int {
	for i, s := range stmts {
		if l, ok := s.(LabelStmt); ok && l.Name == name {
			return i
		}
	}
	return -1
}

// ExecStmt executes one statement, returning the control-flow result.
func ExecStmt(ctx *EvalContext, frame *storage.Frame, pou string, s Stmt, fc flowCtx) (StmtResult, error) {
	switch n := s.(type) {
	case LabelStmt:
		return continueResult, nil

	case AssignStmt:
		v, err := EvalExpr(ctx, frame, n.Value)
		if err != nil {
			return StmtResult{}, err
		}
		ref, err := exprToRef(ctx, frame, n.Target)
		if err != nil {
			return StmtResult{}, err
		}
		if err := ctx.Storage.WriteByRef(ref, v); err != nil {
			return StmtResult{}, err
		}
		return continueResult, nil

	case ExprStmt:
		if _, err := EvalExpr(ctx, frame, n.Expr); err != nil {
			return StmtResult{}, err
		}
		return continueResult, nil

	case IfStmt:
		for _, br := range n.Branches {
			cond, err := EvalExpr(ctx, frame, br.Cond)
			if err != nil {
				return StmtResult{}, err
			}
			if cond.AsBool() {
				return ExecStmtList(ctx, frame, pou, br.Body, fc)
			}
		}
		if n.Else != nil {
			return ExecStmtList(ctx, frame, pou, n.Else, fc)
		}
		return continueResult, nil

	case WhileStmt:
		return execLoop(ctx, frame, pou, fc, func() (bool, error) {
			cond, err := EvalExpr(ctx, frame, n.Cond)
			return cond.AsBool(), err
		}, n.Body, nil)

	case RepeatStmt:
		first := true
		return execLoop(ctx, frame, pou, fc, func() (bool, error) {
			if first {
				first = false
				return true, nil
			}
			cond, err := EvalExpr(ctx, frame, n.Cond)
			if err != nil {
				return false, err
			}
			return !cond.AsBool(), nil
		}, n.Body, nil)

	case ForStmt:
		return execForStmt(ctx, frame, pou, n, fc)

	case CaseStmt:
		return execCaseStmt(ctx, frame, pou, n, fc)

	case ReturnStmt:
		if n.Value == nil {
			return StmtResult{Kind: ResultReturn}, nil
		}
		v, err := EvalExpr(ctx, frame, n.Value)
		if err != nil {
			return StmtResult{}, err
		}
		return StmtResult{Kind: ResultReturn, ReturnVal: v, HasReturn: true}, nil

	case ExitStmt:
		if !fc.inLoop {
			return StmtResult{}, value.NewFault(value.FaultInvalidControlFlow, "EXIT outside a loop")
		}
		return StmtResult{Kind: ResultExit}, nil

	case ContinueStmt:
		if !fc.inLoop {
			return StmtResult{}, value.NewFault(value.FaultInvalidControlFlow, "CONTINUE outside a loop")
		}
		return StmtResult{Kind: ResultLoopContinue}, nil

	case JumpStmt:
		return StmtResult{Kind: ResultJump, JumpLabel: n.Label}, nil

	case StmtList:
		return ExecStmtList(ctx, frame, pou, n.Stmts, fc)
	}
	return StmtResult{}, value.NewFault(value.FaultTypeMismatch, "unknown statement node %T", s)
}

func execLoop(ctx *EvalContext, frame *storage.Frame, pou string, fc flowCtx, cond func() (bool, error), body []Stmt, advance func() error) (StmtResult, error) {
	inner := flowCtx{inLoop: true}
	for {
		ok, err := cond()
		if err != nil {
			return StmtResult{}, err
		}
		if !ok {
			return continueResult, nil
		}
		res, err := ExecStmtList(ctx, frame, pou, body, inner)
		if err != nil {
			return StmtResult{}, err
		}
		switch res.Kind {
		case ResultExit:
			return continueResult, nil
		case ResultReturn, ResultJump:
			return res, nil
		}
		if advance != nil {
			if err := advance(); err != nil {
				return StmtResult{}, err
			}
		}
	}
}

func execForStmt(ctx *EvalContext, frame *storage.Frame, pou string, n ForStmt, fc flowCtx) (StmtResult, error) {
	fromV, err := EvalExpr(ctx, frame, n.From)
	if err != nil {
		return StmtResult{}, err
	}
	toV, err := EvalExpr(ctx, frame, n.To)
	if err != nil {
		return StmtResult{}, err
	}
	step := int64(1)
	if n.StepExpr != nil {
		sv, err := EvalExpr(ctx, frame, n.StepExpr)
		if err != nil {
			return StmtResult{}, err
		}
		step = sv.AsInt()
	}
	if step == 0 {
		return StmtResult{}, value.NewFault(value.FaultInvalidConfig, "FOR step must not be zero")
	}

	kind := fromV.Kind
	ref := ctx.Storage.RefForLocal(frame, n.Var)
	ctx.Storage.SetLocal(frame, n.Var, fromV)

	inner := flowCtx{inLoop: true}
	for {
		cur, err := ctx.Storage.ReadByRef(ref)
		if err != nil {
			return StmtResult{}, err
		}
		if step > 0 && cur.AsInt() > toV.AsInt() {
			break
		}
		if step < 0 && cur.AsInt() < toV.AsInt() {
			break
		}
		res, err := ExecStmtList(ctx, frame, pou, n.Body, inner)
		if err != nil {
			return StmtResult{}, err
		}
		if res.Kind == ResultExit {
			break
		}
		if res.Kind == ResultReturn || res.Kind == ResultJump {
			return res, nil
		}
		next := value.Int(kind, cur.AsInt()+step)
		if err := ctx.Storage.WriteByRef(ref, next); err != nil {
			return StmtResult{}, err
		}
	}
	return continueResult, nil
}

func execCaseStmt(ctx *EvalContext, frame *storage.Frame, pou string, n CaseStmt, fc flowCtx) (StmtResult, error) {
	sel, err := EvalExpr(ctx, frame, n.Selector)
	if err != nil {
		return StmtResult{}, err
	}
	for _, arm := range n.Arms {
		if caseLabelMatches(sel, arm.Labels) {
			return ExecStmtList(ctx, frame, pou, arm.Body, fc)
		}
	}
	if n.Else != nil {
		return ExecStmtList(ctx, frame, pou, n.Else, fc)
	}
	return continueResult, nil
}

func caseLabelMatches(sel value.Value, labels []CaseLabel) bool {
	for _, l := range labels {
		if l.IsRange {
			if sel.Kind == value.KindEnum {
				n := sel.EnumNumeric()
				if n >= l.Low.EnumNumeric() && n <= l.High.EnumNumeric() {
					return true
				}
				continue
			}
			if sel.AsInt() >= l.Low.AsInt() && sel.AsInt() <= l.High.AsInt() {
				return true
			}
			continue
		}
		if sel.Kind == value.KindEnum && l.Low.Kind == value.KindEnum {
			if sel.EnumVariant() == l.Low.EnumVariant() {
				return true
			}
			continue
		}
		if sel.AsInt() == l.Low.AsInt() && sel.Kind.IsInteger() {
			return true
		}
	}
	return false
}

// ValidateCaseLabels checks for overlapping labels across arms at load
// time, per "duplicate overlapping label errors at that range" — a
// MissingElse diagnostic is never required (no ELSE branch is mandatory).
func ValidateCaseLabels(arms []CaseArm) error {
	type span struct{ lo, hi int64 }
	var spans []span
	for _, arm := range arms {
		for _, l := range arm.Labels {
			lo, hi := l.Low.AsInt(), l.Low.AsInt()
			if l.Low.Kind == value.KindEnum {
				lo, hi = l.Low.EnumNumeric(), l.Low.EnumNumeric()
			}
			if l.IsRange {
				hi = l.High.AsInt()
				if l.High.Kind == value.KindEnum {
					hi = l.High.EnumNumeric()
				}
			}
			for _, s := range spans {
				if lo <= s.hi && hi >= s.lo {
					return value.NewFault(value.FaultInvalidConfig, "overlapping CASE label range [%d,%d]", lo, hi)
				}
			}
			spans = append(spans, span{lo, hi})
		}
	}
	return nil
}
