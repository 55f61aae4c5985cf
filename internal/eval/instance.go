package eval

import (
	"github.com/trustplatform/trustrun/internal/storage"
	"github.com/trustplatform/trustrun/internal/value"
)

// CreateInstance allocates a new FunctionBlock/Class instance, walking the
// type's ancestor chain base-most first so a derived type's initializers
// can see already-initialized inherited members, per the ordered
// default-then-initializer instance lifecycle.
func CreateInstance(ctx *EvalContext, typeID value.TypeID) (value.InstanceID, error) {
	reg := ctx.Storage.Registry()
	chain, err := reg.Ancestors(typeID)
	if err != nil {
		return 0, err
	}

	vars := make(map[string]value.Value)
	for _, desc := range chain {
		for _, f := range desc.Fields {
			dv, err := value.DefaultValue(reg, f.Type, ctx.Profile)
			if err != nil {
				return 0, err
			}
			vars[f.Name] = dv
		}
	}

	id := ctx.Storage.CreateInstance(typeID, vars)

	// Member initializers (constant InitConst values, coerced to the
	// member's type) are applied in declaration order, after every member
	// (including inherited ones) has its default value.
	scratch := ctx.Storage.PushFrameWithInstance("<init>", id)
	ctx.callDepth++
	for _, desc := range chain {
		for _, f := range desc.Fields {
			if !f.HasInitializer {
				continue
			}
			v, err := value.Coerce(reg, f.InitConst, f.Type)
			if err != nil {
				ctx.callDepth--
				ctx.Storage.PopFrame()
				return 0, err
			}
			if err := ctx.Storage.SetInstanceField(id, f.Name, v); err != nil {
				ctx.callDepth--
				ctx.Storage.PopFrame()
				return 0, err
			}
		}
	}
	ctx.callDepth--
	if _, err := ctx.Storage.PopFrame(); err != nil {
		return 0, err
	}

	return id, nil
}

// CreateLocalInstance creates an instance for a FunctionBlock/Class-typed
// local or member declaration and binds it under name in frame, matching
// the storage rule that FB/class locals own their own instance allocation
// for the lifetime of the declaring call (or program, for globals).
func CreateLocalInstance(ctx *EvalContext, frame *storage.Frame, name string, typeID value.TypeID) error {
	id, err := CreateInstance(ctx, typeID)
	if err != nil {
		return err
	}
	ctx.Storage.SetLocal(frame, name, value.Instance(typeID, id))
	return nil
}
