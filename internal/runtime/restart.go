package runtime

import (
	"github.com/trustplatform/trustrun/internal/eval"
	"github.com/trustplatform/trustrun/internal/storage"
	"github.com/trustplatform/trustrun/internal/value"
)

// GlobalDecl is one declared global, carried by the runtime so cold/warm
// restart can re-run its initializer independent of whatever the bytecode
// loader's one-time load pass already did.
type GlobalDecl struct {
	Name           string
	Type           value.TypeID
	Retain         bool
	HasInitializer bool
	Initializer    eval.Expr
}

// evalInitializer runs e against a scratch frame, the same pattern
// CreateProgramInstance uses for member initializers: globals have no
// caller frame of their own, so a transient one is pushed and discarded.
func evalInitializer(ctx *eval.EvalContext, name string, e eval.Expr) (value.Value, error) {
	frame := ctx.Storage.PushFrame(name)
	defer ctx.Storage.PopFrame()
	return eval.EvalExpr(ctx, frame, e)
}

// instantiateIfFunctionBlock converts a freshly-defaulted/initialized
// function-block or class value into an arena-backed instance handle, the
// bootstrapping step the bytecode loader's global-init pass performs once
// at load: FB/class-typed globals hold a KindInstanceID referencing the
// arena, not the composite value inline, so method/FB-call dispatch (which
// reads InstanceHandle()) can target them.
func instantiateIfFunctionBlock(reg *value.TypeRegistry, st *storage.VariableStorage, typeID value.TypeID, v value.Value) (value.Value, error) {
	d, err := reg.ResolveAlias(typeID)
	if err != nil {
		return value.Value{}, err
	}
	if d.Kind != value.TypeFunctionBlock && d.Kind != value.TypeClass {
		return v, nil
	}
	if v.Kind == value.KindInstanceID {
		return v, nil // already an instance handle (e.g. re-used on warm restart)
	}
	vars := make(map[string]value.Value, len(v.Fields()))
	for _, f := range v.Fields() {
		vars[f.Name] = f.Value
	}
	id := st.CreateInstance(typeID, vars)
	return value.Instance(typeID, id), nil
}

// initGlobal computes name's initial value (declared initializer, or the
// type's default) and, for FB/class-typed globals, allocates the backing
// instance.
func initGlobal(ctx *eval.EvalContext, reg *value.TypeRegistry, g GlobalDecl) (value.Value, error) {
	var v value.Value
	var err error
	if g.HasInitializer {
		v, err = evalInitializer(ctx, g.Name, g.Initializer)
	} else {
		v, err = value.DefaultValue(reg, g.Type, ctx.Profile)
	}
	if err != nil {
		return value.Value{}, err
	}
	return instantiateIfFunctionBlock(reg, ctx.Storage, g.Type, v)
}
