package eval

import (
	"github.com/trustplatform/trustrun/internal/storage"
	"github.com/trustplatform/trustrun/internal/value"
)

// Call dispatches a CallExpr to a Function, Method, or FunctionBlock
// invocation by name, binding arguments under the shared positional/named
// discipline before running the body.
func Call(ctx *EvalContext, frame *storage.Frame, n CallExpr) (value.Value, error) {
	if ctx.callDepth >= maxCallDepth {
		return value.Value{}, value.NewFault(value.FaultInvalidControlFlow, "call depth exceeded (%d)", maxCallDepth)
	}

	if fn, ok := ctx.Program.Functions[n.Callee]; ok {
		return callFunction(ctx, frame, fn, n.Args)
	}
	if fb, ok := ctx.Program.FunctionBlocks[n.Callee]; ok {
		return value.Value{}, callFunctionBlockByName(ctx, frame, fb, n.Callee, n.Args)
	}
	// Method calls of the form Instance.Method arrive pre-split by the
	// decoder into Callee == "Type.Method" against an already-bound THIS;
	// bare calls inside a method/FB body resolve via the frame's instance.
	if frame.HasInstance {
		inst, err := ctx.Storage.Instance(frame.Instance)
		if err == nil {
			if key, ok := resolveMethodKey(ctx, inst.Type, n.Callee); ok {
				if def, ok := ctx.Program.Methods[key]; ok {
					return callMethod(ctx, frame, def, frame.Instance, n.Args)
				}
			}
		}
	}
	if def, ok := ctx.Program.Methods[n.Callee]; ok {
		return callMethod(ctx, frame, def, frame.Instance, n.Args)
	}
	return value.Value{}, value.NewFault(value.FaultUndefinedFunction, "undefined callable %q", n.Callee)
}

// resolveMethodKey finds the most-derived ancestor type declaring name and
// returns the "Type.Method" key used by Program.Methods, per the
// most-derived-override-wins vtable lookup.
func resolveMethodKey(ctx *EvalContext, typeID value.TypeID, name string) (string, bool) {
	chain, err := ctx.Storage.Registry().Ancestors(typeID)
	if err != nil {
		return "", false
	}
	owner := ""
	for _, d := range chain {
		for _, m := range d.Methods {
			if m.Name == name {
				owner = d.Name
			}
		}
	}
	if owner == "" {
		return "", false
	}
	return owner + "." + name, true
}

// boundArg captures where an Out/InOut argument must be written back once
// the call returns.
type boundArg struct {
	param Param
	ref   *value.Reference // nil for In-only args with no caller-side l-value
}

// bindArguments enforces positional-XOR-named exclusivity, resolves
// defaults for omitted In parameters, and evaluates EN/ENO before any
// other binding happens, per the fixed ordering: EN is evaluated first; if
// EN is present and false, the call short-circuits without evaluating any
// other argument, without running local initializers, and without
// executing the body.
func bindArguments(ctx *EvalContext, callerFrame *storage.Frame, params []Param, args []CallArg, target *storage.Frame) (bound []boundArg, enabled bool, err error) {
	hasNamed, hasPositional := false, false
	for _, a := range args {
		if a.Name == "" {
			hasPositional = true
		} else {
			hasNamed = true
		}
	}
	if hasNamed && hasPositional {
		return nil, false, value.NewFault(value.FaultInvalidArgumentCount, "positional and named arguments cannot be mixed in one call")
	}

	enabled = true
	for _, p := range params {
		if !p.IsEN {
			continue
		}
		v, ferr := findArg(ctx, callerFrame, params, args, p, hasNamed)
		if ferr != nil {
			return nil, false, ferr
		}
		if v != nil {
			enabled = v.AsBool()
		}
		break
	}
	if !enabled {
		return nil, false, nil
	}

	if hasPositional {
		positional := 0
		for _, p := range params {
			if p.IsEN || p.IsENO {
				continue
			}
			if positional >= len(args) {
				if p.Direction == DirIn && p.HasDefault {
					b, err := bindOne(ctx, callerFrame, target, p, p.DefaultExpr)
					if err != nil {
						return nil, false, err
					}
					bound = append(bound, b)
					continue
				}
				return nil, false, value.InvalidArgumentCount(len(params), len(args))
			}
			arg := args[positional]
			positional++
			b, err := bindOne(ctx, callerFrame, target, p, arg.ValueExpr)
			if err != nil {
				return nil, false, err
			}
			bound = append(bound, b)
		}
		return bound, true, nil
	}

	for _, p := range params {
		if p.IsEN || p.IsENO {
			continue
		}
		var found *CallArg
		for i := range args {
			if args[i].Name == p.Name {
				found = &args[i]
				break
			}
		}
		if found == nil {
			if p.Direction == DirIn && p.HasDefault {
				b, err := bindOne(ctx, callerFrame, target, p, p.DefaultExpr)
				if err != nil {
					return nil, false, err
				}
				bound = append(bound, b)
				continue
			}
			if p.Direction == DirIn {
				// Unsupplied optional-less In parameter: leave target default.
				continue
			}
			return nil, false, value.NewFault(value.FaultInvalidArgumentCount, "missing required argument %q", p.Name)
		}
		b, err := bindOne(ctx, callerFrame, target, p, found.ValueExpr)
		if err != nil {
			return nil, false, err
		}
		bound = append(bound, b)
	}
	return bound, true, nil
}

func findArg(ctx *EvalContext, callerFrame *storage.Frame, params []Param, args []CallArg, p Param, named bool) (*value.Value, error) {
	if named {
		for _, a := range args {
			if a.Name == p.Name {
				v, err := EvalExpr(ctx, callerFrame, a.ValueExpr)
				if err != nil {
					return nil, err
				}
				return &v, nil
			}
		}
		return nil, nil
	}
	idx := 0
	for _, q := range params {
		if q.IsEN || q.IsENO {
			continue
		}
		if q.Name == p.Name {
			break
		}
		idx++
	}
	if idx >= len(args) {
		return nil, nil
	}
	v, err := EvalExpr(ctx, callerFrame, args[idx].ValueExpr)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func bindOne(ctx *EvalContext, callerFrame, target *storage.Frame, p Param, argExpr Expr) (boundArg, error) {
	switch p.Direction {
	case DirIn:
		v, err := EvalExpr(ctx, callerFrame, argExpr)
		if err != nil {
			return boundArg{}, err
		}
		v, err = value.Coerce(ctx.Storage.Registry(), v, p.Type)
		if err != nil {
			return boundArg{}, err
		}
		ctx.Storage.SetLocal(target, p.Name, v)
		return boundArg{param: p}, nil
	case DirOut, DirInOut:
		ref, err := exprToRef(ctx, callerFrame, argExpr)
		if err != nil {
			return boundArg{}, err
		}
		if p.Direction == DirInOut {
			v, err := ctx.Storage.ReadByRef(ref)
			if err != nil {
				return boundArg{}, err
			}
			ctx.Storage.SetLocal(target, p.Name, v)
		} else {
			dv, err := defaultValue(ctx, p.Type)
			if err != nil {
				return boundArg{}, err
			}
			ctx.Storage.SetLocal(target, p.Name, dv)
		}
		return boundArg{param: p, ref: ref}, nil
	}
	return boundArg{}, value.NewFault(value.FaultTypeMismatch, "unknown parameter direction")
}

func defaultValue(ctx *EvalContext, t value.TypeID) (value.Value, error) {
	return value.DefaultValue(ctx.Storage.Registry(), t, ctx.Profile)
}

func writeBack(ctx *EvalContext, target *storage.Frame, bound []boundArg) error {
	for _, b := range bound {
		if b.ref == nil {
			continue
		}
		v, ok := target.Locals[b.param.Name]
		if !ok {
			continue
		}
		if err := ctx.Storage.WriteByRef(b.ref, v); err != nil {
			return err
		}
	}
	return nil
}

func callFunction(ctx *EvalContext, callerFrame *storage.Frame, def *FunctionDef, args []CallArg) (value.Value, error) {
	snapshot := ctx.Storage.Snapshot()
	target := ctx.Storage.PushFrame(def.Name)
	ctx.callDepth++
	defer func() { ctx.callDepth-- }()

	bound, enabled, err := bindArguments(ctx, callerFrame, def.Params, args, target)
	if err != nil {
		ctx.Storage.PopFrame()
		ctx.Storage.Revert(snapshot)
		return value.Value{}, err
	}

	retName := def.ReturnName
	if retName == "" {
		retName = def.Name
	}
	if def.ReturnType != 0 {
		dv, err := defaultValue(ctx, def.ReturnType)
		if err != nil {
			ctx.Storage.PopFrame()
			ctx.Storage.Revert(snapshot)
			return value.Value{}, err
		}
		ctx.Storage.SetLocal(target, retName, dv)
	}

	if !enabled {
		ctx.Storage.PopFrame()
		if def.ReturnType == 0 {
			return value.Value{}, nil
		}
		return defaultValue(ctx, def.ReturnType)
	}

	for _, v := range def.Locals {
		if err := initVariable(ctx, target, v); err != nil {
			ctx.Storage.PopFrame()
			ctx.Storage.Revert(snapshot)
			return value.Value{}, err
		}
	}

	res, err := ExecStmtList(ctx, target, def.Name, def.Body, flowCtx{})
	if err != nil {
		ctx.Storage.PopFrame()
		ctx.Storage.Revert(snapshot)
		return value.Value{}, err
	}

	if err := writeBack(ctx, target, bound); err != nil {
		ctx.Storage.PopFrame()
		ctx.Storage.Revert(snapshot)
		return value.Value{}, err
	}

	var ret value.Value
	if res.HasReturn {
		ret = res.ReturnVal
	} else if def.ReturnType != 0 {
		ret, _ = ctx.Storage.ReadByRef(ctx.Storage.RefForLocal(target, retName))
	}

	if _, err := ctx.Storage.PopFrame(); err != nil {
		return value.Value{}, err
	}
	return ret, nil
}

func callMethod(ctx *EvalContext, callerFrame *storage.Frame, def *MethodDef, instance value.InstanceID, args []CallArg) (value.Value, error) {
	snapshot := ctx.Storage.Snapshot()
	target := ctx.Storage.PushFrameWithInstance(def.Name, instance)
	ctx.callDepth++
	defer func() { ctx.callDepth-- }()

	bound, enabled, err := bindArguments(ctx, callerFrame, def.Params, args, target)
	if err != nil {
		ctx.Storage.PopFrame()
		ctx.Storage.Revert(snapshot)
		return value.Value{}, err
	}

	retName := def.ReturnName
	if retName == "" {
		retName = def.Name
	}
	if def.ReturnType != 0 {
		dv, err := defaultValue(ctx, def.ReturnType)
		if err != nil {
			ctx.Storage.PopFrame()
			ctx.Storage.Revert(snapshot)
			return value.Value{}, err
		}
		ctx.Storage.SetLocal(target, retName, dv)
	}

	if !enabled {
		ctx.Storage.PopFrame()
		if def.ReturnType == 0 {
			return value.Value{}, nil
		}
		return defaultValue(ctx, def.ReturnType)
	}

	for _, v := range def.Locals {
		if err := initVariable(ctx, target, v); err != nil {
			ctx.Storage.PopFrame()
			ctx.Storage.Revert(snapshot)
			return value.Value{}, err
		}
	}

	res, err := ExecStmtList(ctx, target, def.Name, def.Body, flowCtx{})
	if err != nil {
		ctx.Storage.PopFrame()
		ctx.Storage.Revert(snapshot)
		return value.Value{}, err
	}

	if err := writeBack(ctx, target, bound); err != nil {
		ctx.Storage.PopFrame()
		ctx.Storage.Revert(snapshot)
		return value.Value{}, err
	}

	var ret value.Value
	if res.HasReturn {
		ret = res.ReturnVal
	} else if def.ReturnType != 0 {
		ret, _ = ctx.Storage.ReadByRef(ctx.Storage.RefForLocal(target, retName))
	}

	if _, err := ctx.Storage.PopFrame(); err != nil {
		return value.Value{}, err
	}
	return ret, nil
}

// callFunctionBlockByName invokes a standalone function-block call (one
// that is not routed through a Method lookup): the callee names a
// FunctionBlock-typed local/global instance directly and its body runs
// against that instance's members.
func callFunctionBlockByName(ctx *EvalContext, callerFrame *storage.Frame, def *FunctionBlockDef, instanceVarName string, args []CallArg) error {
	ref, err := resolveName(ctx, callerFrame, instanceVarName)
	if err != nil {
		return err
	}
	v, err := ctx.Storage.ReadByRef(ref)
	if err != nil {
		return err
	}
	instID := v.InstanceHandle()

	snapshot := ctx.Storage.Snapshot()
	target := ctx.Storage.PushFrameWithInstance(def.Name, instID)
	ctx.callDepth++
	defer func() { ctx.callDepth-- }()

	bound, enabled, err := bindArguments(ctx, callerFrame, def.Params, args, target)
	if err != nil {
		ctx.Storage.PopFrame()
		ctx.Storage.Revert(snapshot)
		return err
	}
	if !enabled {
		ctx.Storage.PopFrame()
		return nil
	}

	if _, err := ExecStmtList(ctx, target, def.Name, def.Body, flowCtx{}); err != nil {
		ctx.Storage.PopFrame()
		ctx.Storage.Revert(snapshot)
		return err
	}

	if err := writeBack(ctx, target, bound); err != nil {
		ctx.Storage.PopFrame()
		ctx.Storage.Revert(snapshot)
		return err
	}

	_, err = ctx.Storage.PopFrame()
	return err
}

func initVariable(ctx *EvalContext, frame *storage.Frame, v VarDef) error {
	if v.HasInitializer {
		val, err := EvalExpr(ctx, frame, v.Initializer)
		if err != nil {
			return err
		}
		ctx.Storage.SetLocal(frame, v.Name, val)
		return nil
	}
	dv, err := defaultValue(ctx, v.Type)
	if err != nil {
		return err
	}
	ctx.Storage.SetLocal(frame, v.Name, dv)
	return nil
}
