package eval

import "github.com/trustplatform/trustrun/internal/value"

// CreateProgramInstance allocates the storage-backed member set a
// ProgramDef runs against. Programs are always-instantiated per spec's
// "program bodies execute against a single, implicitly created instance"
// rule: the host (cmd/trustrun's buildTasks) calls this once at load time
// per program, and the task keeps the returned handle for every
// subsequent cycle.
func CreateProgramInstance(ctx *EvalContext, def *ProgramDef) (value.InstanceID, error) {
	vars := make(map[string]value.Value, len(def.Members))
	for _, m := range def.Members {
		v, err := programMemberInit(ctx, m)
		if err != nil {
			return 0, err
		}
		vars[m.Name] = v
	}
	return ctx.Storage.CreateInstance(0, vars), nil
}

func programMemberInit(ctx *EvalContext, v VarDef) (value.Value, error) {
	if v.HasInitializer {
		frame := ctx.Storage.PushFrame(v.Name)
		defer ctx.Storage.PopFrame()
		return EvalExpr(ctx, frame, v.Initializer)
	}
	return defaultValue(ctx, v.Type)
}

// RunProgram executes def's body once against instance, the scheduler's
// per-cycle entry point into a program POU (execute_cycle step 5: "entering
// a frame at that program's instance and running its body"). Unlike
// function/method/FB calls, a program has no arguments, no EN/ENO gate, and
// no caller frame to bind against or write back to — its members persist in
// the instance arena across cycles rather than living in a transient frame.
func RunProgram(ctx *EvalContext, instance value.InstanceID, def *ProgramDef) error {
	if ctx.callDepth >= maxCallDepth {
		return value.NewFault(value.FaultInvalidControlFlow, "call depth exceeded (%d)", maxCallDepth)
	}
	target := ctx.Storage.PushFrameWithInstance(def.Name, instance)
	ctx.callDepth++
	defer func() { ctx.callDepth-- }()

	if _, err := ExecStmtList(ctx, target, def.Name, def.Body, flowCtx{}); err != nil {
		ctx.Storage.PopFrame()
		return err
	}
	_, err := ctx.Storage.PopFrame()
	return err
}
