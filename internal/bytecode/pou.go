package bytecode

import (
	"fmt"

	"github.com/trustplatform/trustrun/internal/eval"
	"github.com/trustplatform/trustrun/internal/value"
)

// PouKind tags a POU_INDEX entry's invocation shape, matching spec.md
// §4.7's {Program|Function|FunctionBlock|Class|Method|Interface} set
// (Interface carries no body and is represented in TYPE_TABLE only).
type PouKind uint8

const (
	PouProgram PouKind = iota
	PouFunction
	PouFunctionBlock
	PouClass
	PouMethod
)

// PouEntry is one POU_INDEX row: spec.md §4.7 groups a POU's signature
// (name, kind, params, owning type for methods) separately from its body,
// which lives at a byte range within POU_BODIES.
type PouEntry struct {
	Kind       PouKind
	Name       string
	Owner      value.TypeID // owning Class/FunctionBlock type; valid for PouMethod
	ParentType value.TypeID // valid for PouFunctionBlock/PouClass
	Params     []eval.Param
	Locals     []eval.VarDef // Program.Members / FunctionBlock.Members / Function|Method.Locals
	RetType    value.TypeID  // 0 when the POU has no return value
	ReturnName string
	Body       []eval.Stmt
}

func encodePouIndex(pous []PouEntry, strings *StringTable, bodies *bodyEncoder) []byte {
	var buf []byte
	buf = appendUint32(buf, uint32(len(pous)))
	for _, p := range pous {
		buf = appendUint8(buf, uint8(p.Kind))
		buf = appendUint32(buf, strings.Intern(p.Name))
		buf = appendUint32(buf, uint32(p.Owner))
		buf = appendUint32(buf, uint32(p.ParentType))
		buf = appendUint32(buf, uint32(p.RetType))
		buf = appendUint32(buf, strings.Intern(p.ReturnName))
		buf = appendParamList(buf, p.Params, strings)
		buf = appendVarDefList(buf, p.Locals, strings)
		offset, length := bodies.encode(p.Body, strings)
		buf = appendUint32(buf, offset)
		buf = appendUint32(buf, length)
	}
	return buf
}

func appendParamList(buf []byte, params []eval.Param, strings *StringTable) []byte {
	buf = appendUint32(buf, uint32(len(params)))
	for _, p := range params {
		buf = appendUint32(buf, strings.Intern(p.Name))
		buf = appendUint32(buf, uint32(p.Type))
		buf = appendUint8(buf, uint8(p.Direction))
		buf = appendUint8(buf, boolByte(p.HasDefault))
		if p.HasDefault {
			buf = appendExpr(buf, p.DefaultExpr, strings)
		}
		buf = appendUint8(buf, boolByte(p.IsEN))
		buf = appendUint8(buf, boolByte(p.IsENO))
	}
	return buf
}

func readParamList(r *byteReader, strings *StringTable) ([]eval.Param, error) {
	n := r.u32()
	out := make([]eval.Param, 0, n)
	for i := uint32(0); i < n && r.err == nil; i++ {
		var p eval.Param
		p.Name = strings.Get(r.u32())
		p.Type = value.TypeID(r.u32())
		p.Direction = eval.ParamDirection(r.u8())
		p.HasDefault = r.bool()
		if p.HasDefault {
			def, err := decodeExpr(r, strings)
			if err != nil {
				return nil, err
			}
			p.DefaultExpr = def
		}
		p.IsEN = r.bool()
		p.IsENO = r.bool()
		out = append(out, p)
	}
	return out, r.err
}

func appendVarDefList(buf []byte, vars []eval.VarDef, strings *StringTable) []byte {
	buf = appendUint32(buf, uint32(len(vars)))
	for _, v := range vars {
		buf = appendUint32(buf, strings.Intern(v.Name))
		buf = appendUint32(buf, uint32(v.Type))
		buf = appendUint8(buf, boolByte(v.Retain))
		buf = appendUint8(buf, boolByte(v.HasInitializer))
		if v.HasInitializer {
			buf = appendExpr(buf, v.Initializer, strings)
		}
	}
	return buf
}

func readVarDefList(r *byteReader, strings *StringTable) ([]eval.VarDef, error) {
	n := r.u32()
	out := make([]eval.VarDef, 0, n)
	for i := uint32(0); i < n && r.err == nil; i++ {
		var v eval.VarDef
		v.Name = strings.Get(r.u32())
		v.Type = value.TypeID(r.u32())
		v.Retain = r.bool()
		v.HasInitializer = r.bool()
		if v.HasInitializer {
			init, err := decodeExpr(r, strings)
			if err != nil {
				return nil, err
			}
			v.Initializer = init
		}
		out = append(out, v)
	}
	return out, r.err
}

func decodePouIndex(data []byte, strings *StringTable, bodies []byte) ([]PouEntry, error) {
	r := newByteReader(data)
	n := r.u32()
	out := make([]PouEntry, 0, n)
	for i := uint32(0); i < n && r.err == nil; i++ {
		var p PouEntry
		p.Kind = PouKind(r.u8())
		p.Name = strings.Get(r.u32())
		p.Owner = value.TypeID(r.u32())
		p.ParentType = value.TypeID(r.u32())
		p.RetType = value.TypeID(r.u32())
		p.ReturnName = strings.Get(r.u32())
		params, err := readParamList(r, strings)
		if err != nil {
			return nil, err
		}
		p.Params = params
		locals, err := readVarDefList(r, strings)
		if err != nil {
			return nil, err
		}
		p.Locals = locals
		offset := r.u32()
		length := r.u32()
		if r.err != nil {
			break
		}
		if int(offset)+int(length) > len(bodies) {
			return nil, value.NewFault(value.FaultInvalidConfig, "POU %q body range overruns POU_BODIES", p.Name)
		}
		body, err := decodeStmtList(newByteReader(bodies[offset:offset+length]), strings)
		if err != nil {
			return nil, fmt.Errorf("POU %q: %w", p.Name, err)
		}
		p.Body = body
		out = append(out, p)
	}
	if r.err != nil {
		return nil, r.err
	}
	return out, nil
}

// bodyEncoder accumulates POU_BODIES: each POU's statement list is encoded
// independently and appended, so POU_INDEX can address it by
// {offset,length} without POUs needing to share a global instruction
// counter.
type bodyEncoder struct {
	buf []byte
}

func newBodyEncoder() *bodyEncoder { return &bodyEncoder{} }

func (b *bodyEncoder) encode(stmts []eval.Stmt, strings *StringTable) (offset, length uint32) {
	offset = uint32(len(b.buf))
	b.buf = appendStmtList(b.buf, stmts, strings)
	length = uint32(len(b.buf)) - offset
	return offset, length
}

// Node tags for the tree-tagged POU_BODIES encoding: each Expr/Stmt kind
// gets one byte followed by its fields, children encoded recursively.
// POU_BODIES is a serialized form of the same Expr/Stmt tree internal/eval
// walks, not a flat jump-based opcode stream: internal/eval decodes a POU's
// body once at load time and walks the resulting tree every cycle, so the
// wire format mirrors the tree shape directly instead of requiring a
// separate decompilation pass from branch/jump opcodes back into
// structured control flow.
const (
	tagLiteral uint8 = iota
	tagName
	tagThis
	tagSuper
	tagUnary
	tagBinary
	tagUntypedReal
	tagParen
	tagIndex
	tagField
	tagDeref
	tagAddrOf
	tagCall
	tagSizeof
	tagArrayInit
)

const (
	tagAssign uint8 = iota
	tagIf
	tagFor
	tagWhile
	tagRepeat
	tagCase
	tagReturn
	tagExprStmt
	tagExit
	tagContinue
	tagJump
	tagLabel
	tagStmtList
)

func appendExpr(buf []byte, e eval.Expr, strings *StringTable) []byte {
	switch n := e.(type) {
	case eval.LiteralExpr:
		buf = appendUint8(buf, tagLiteral)
		buf = appendConstValue(buf, n.Value, strings)
	case eval.NameExpr:
		buf = appendUint8(buf, tagName)
		buf = appendUint32(buf, strings.Intern(n.Name))
	case eval.ThisExpr:
		buf = appendUint8(buf, tagThis)
	case eval.SuperExpr:
		buf = appendUint8(buf, tagSuper)
	case eval.UnaryExpr:
		buf = appendUint8(buf, tagUnary)
		buf = appendUint8(buf, uint8(n.Op))
		buf = appendExpr(buf, n.Operand, strings)
	case eval.BinaryExpr:
		buf = appendUint8(buf, tagBinary)
		buf = appendUint8(buf, uint8(n.Op))
		buf = appendExpr(buf, n.Left, strings)
		buf = appendExpr(buf, n.Right, strings)
	case eval.UntypedRealExpr:
		buf = appendUint8(buf, tagUntypedReal)
		buf = appendConstValue(buf, value.Real(value.KindF64, n.Literal), strings)
	case eval.ParenExpr:
		buf = appendUint8(buf, tagParen)
		buf = appendExpr(buf, n.Inner, strings)
	case eval.IndexExpr:
		buf = appendUint8(buf, tagIndex)
		buf = appendExpr(buf, n.Base, strings)
		buf = appendUint32(buf, uint32(len(n.Indices)))
		for _, idx := range n.Indices {
			buf = appendExpr(buf, idx, strings)
		}
	case eval.FieldExpr:
		buf = appendUint8(buf, tagField)
		buf = appendExpr(buf, n.Base, strings)
		buf = appendUint32(buf, strings.Intern(n.Field))
	case eval.DerefExpr:
		buf = appendUint8(buf, tagDeref)
		buf = appendExpr(buf, n.Base, strings)
	case eval.AddrOfExpr:
		buf = appendUint8(buf, tagAddrOf)
		buf = appendExpr(buf, n.Target, strings)
	case eval.CallExpr:
		buf = appendUint8(buf, tagCall)
		buf = appendUint32(buf, strings.Intern(n.Callee))
		buf = appendUint32(buf, uint32(len(n.Args)))
		for _, a := range n.Args {
			hasName := a.Name != ""
			buf = appendUint8(buf, boolByte(hasName))
			if hasName {
				buf = appendUint32(buf, strings.Intern(a.Name))
			}
			buf = appendExpr(buf, a.ValueExpr, strings)
		}
	case eval.SizeofExpr:
		buf = appendUint8(buf, tagSizeof)
		buf = appendUint32(buf, uint32(n.TargetType))
	case eval.ArrayInitExpr:
		buf = appendUint8(buf, tagArrayInit)
		buf = appendUint32(buf, uint32(len(n.Elements)))
		for _, el := range n.Elements {
			buf = appendExpr(buf, el, strings)
		}
	default:
		panic(fmt.Sprintf("bytecode: unhandled expr node %T", e))
	}
	return buf
}

func decodeExpr(r *byteReader, strings *StringTable) (eval.Expr, error) {
	tag := r.u8()
	if r.err != nil {
		return nil, r.err
	}
	switch tag {
	case tagLiteral:
		v, err := readConstValue(r, strings)
		if err != nil {
			return nil, err
		}
		return eval.LiteralExpr{Value: v}, nil
	case tagName:
		return eval.NameExpr{Name: strings.Get(r.u32())}, nil
	case tagThis:
		return eval.ThisExpr{}, nil
	case tagSuper:
		return eval.SuperExpr{}, nil
	case tagUnary:
		op := value.UnOp(r.u8())
		operand, err := decodeExpr(r, strings)
		if err != nil {
			return nil, err
		}
		return eval.UnaryExpr{Op: op, Operand: operand}, nil
	case tagBinary:
		op := value.BinOp(r.u8())
		left, err := decodeExpr(r, strings)
		if err != nil {
			return nil, err
		}
		right, err := decodeExpr(r, strings)
		if err != nil {
			return nil, err
		}
		return eval.BinaryExpr{Op: op, Left: left, Right: right}, nil
	case tagUntypedReal:
		v, err := readConstValue(r, strings)
		if err != nil {
			return nil, err
		}
		return eval.UntypedRealExpr{Literal: v.AsFloat()}, nil
	case tagParen:
		inner, err := decodeExpr(r, strings)
		if err != nil {
			return nil, err
		}
		return eval.ParenExpr{Inner: inner}, nil
	case tagIndex:
		base, err := decodeExpr(r, strings)
		if err != nil {
			return nil, err
		}
		n := r.u32()
		indices := make([]eval.Expr, 0, n)
		for i := uint32(0); i < n; i++ {
			idx, err := decodeExpr(r, strings)
			if err != nil {
				return nil, err
			}
			indices = append(indices, idx)
		}
		return eval.IndexExpr{Base: base, Indices: indices}, nil
	case tagField:
		base, err := decodeExpr(r, strings)
		if err != nil {
			return nil, err
		}
		return eval.FieldExpr{Base: base, Field: strings.Get(r.u32())}, nil
	case tagDeref:
		base, err := decodeExpr(r, strings)
		if err != nil {
			return nil, err
		}
		return eval.DerefExpr{Base: base}, nil
	case tagAddrOf:
		target, err := decodeExpr(r, strings)
		if err != nil {
			return nil, err
		}
		return eval.AddrOfExpr{Target: target}, nil
	case tagCall:
		callee := strings.Get(r.u32())
		n := r.u32()
		args := make([]eval.CallArg, 0, n)
		for i := uint32(0); i < n; i++ {
			var name string
			if r.bool() {
				name = strings.Get(r.u32())
			}
			ve, err := decodeExpr(r, strings)
			if err != nil {
				return nil, err
			}
			args = append(args, eval.CallArg{Name: name, ValueExpr: ve})
		}
		return eval.CallExpr{Callee: callee, Args: args}, nil
	case tagSizeof:
		return eval.SizeofExpr{TargetType: value.TypeID(r.u32())}, nil
	case tagArrayInit:
		n := r.u32()
		elems := make([]eval.Expr, 0, n)
		for i := uint32(0); i < n; i++ {
			el, err := decodeExpr(r, strings)
			if err != nil {
				return nil, err
			}
			elems = append(elems, el)
		}
		return eval.ArrayInitExpr{Elements: elems}, nil
	default:
		return nil, fmt.Errorf("bytecode: unknown expr tag %d", tag)
	}
}

func appendOptExpr(buf []byte, e eval.Expr, strings *StringTable) []byte {
	hasIt := e != nil
	buf = appendUint8(buf, boolByte(hasIt))
	if hasIt {
		buf = appendExpr(buf, e, strings)
	}
	return buf
}

func decodeOptExpr(r *byteReader, strings *StringTable) (eval.Expr, error) {
	if !r.bool() {
		return nil, nil
	}
	return decodeExpr(r, strings)
}

func appendStmt(buf []byte, s eval.Stmt, strings *StringTable) []byte {
	switch n := s.(type) {
	case eval.AssignStmt:
		buf = appendUint8(buf, tagAssign)
		buf = appendExpr(buf, n.Target, strings)
		buf = appendExpr(buf, n.Value, strings)
	case eval.IfStmt:
		buf = appendUint8(buf, tagIf)
		buf = appendUint32(buf, uint32(len(n.Branches)))
		for _, br := range n.Branches {
			buf = appendExpr(buf, br.Cond, strings)
			buf = appendStmtList(buf, br.Body, strings)
		}
		buf = appendStmtList(buf, n.Else, strings)
	case eval.ForStmt:
		buf = appendUint8(buf, tagFor)
		buf = appendUint32(buf, strings.Intern(n.Var))
		buf = appendExpr(buf, n.From, strings)
		buf = appendExpr(buf, n.To, strings)
		buf = appendOptExpr(buf, n.StepExpr, strings)
		buf = appendStmtList(buf, n.Body, strings)
	case eval.WhileStmt:
		buf = appendUint8(buf, tagWhile)
		buf = appendExpr(buf, n.Cond, strings)
		buf = appendStmtList(buf, n.Body, strings)
	case eval.RepeatStmt:
		buf = appendUint8(buf, tagRepeat)
		buf = appendStmtList(buf, n.Body, strings)
		buf = appendExpr(buf, n.Cond, strings)
	case eval.CaseStmt:
		buf = appendUint8(buf, tagCase)
		buf = appendExpr(buf, n.Selector, strings)
		buf = appendUint32(buf, uint32(len(n.Arms)))
		for _, arm := range n.Arms {
			buf = appendUint32(buf, uint32(len(arm.Labels)))
			for _, lbl := range arm.Labels {
				buf = appendUint8(buf, boolByte(lbl.IsRange))
				buf = appendConstValue(buf, lbl.Low, strings)
				if lbl.IsRange {
					buf = appendConstValue(buf, lbl.High, strings)
				}
			}
			buf = appendStmtList(buf, arm.Body, strings)
		}
		buf = appendStmtList(buf, n.Else, strings)
	case eval.ReturnStmt:
		buf = appendUint8(buf, tagReturn)
		buf = appendOptExpr(buf, n.Value, strings)
	case eval.ExprStmt:
		buf = appendUint8(buf, tagExprStmt)
		buf = appendExpr(buf, n.Expr, strings)
	case eval.ExitStmt:
		buf = appendUint8(buf, tagExit)
	case eval.ContinueStmt:
		buf = appendUint8(buf, tagContinue)
	case eval.JumpStmt:
		buf = appendUint8(buf, tagJump)
		buf = appendUint32(buf, strings.Intern(n.Label))
	case eval.LabelStmt:
		buf = appendUint8(buf, tagLabel)
		buf = appendUint32(buf, strings.Intern(n.Name))
	case eval.StmtList:
		buf = appendUint8(buf, tagStmtList)
		buf = appendStmtList(buf, n.Stmts, strings)
	default:
		panic(fmt.Sprintf("bytecode: unhandled stmt node %T", s))
	}
	return buf
}

func decodeStmt(r *byteReader, strings *StringTable) (eval.Stmt, error) {
	tag := r.u8()
	if r.err != nil {
		return nil, r.err
	}
	switch tag {
	case tagAssign:
		target, err := decodeExpr(r, strings)
		if err != nil {
			return nil, err
		}
		val, err := decodeExpr(r, strings)
		if err != nil {
			return nil, err
		}
		return eval.AssignStmt{Target: target, Value: val}, nil
	case tagIf:
		n := r.u32()
		branches := make([]eval.IfBranch, 0, n)
		for i := uint32(0); i < n; i++ {
			cond, err := decodeExpr(r, strings)
			if err != nil {
				return nil, err
			}
			body, err := decodeStmtList(r, strings)
			if err != nil {
				return nil, err
			}
			branches = append(branches, eval.IfBranch{Cond: cond, Body: body})
		}
		elseBody, err := decodeStmtList(r, strings)
		if err != nil {
			return nil, err
		}
		return eval.IfStmt{Branches: branches, Else: elseBody}, nil
	case tagFor:
		varName := strings.Get(r.u32())
		from, err := decodeExpr(r, strings)
		if err != nil {
			return nil, err
		}
		to, err := decodeExpr(r, strings)
		if err != nil {
			return nil, err
		}
		step, err := decodeOptExpr(r, strings)
		if err != nil {
			return nil, err
		}
		body, err := decodeStmtList(r, strings)
		if err != nil {
			return nil, err
		}
		return eval.ForStmt{Var: varName, From: from, To: to, StepExpr: step, Body: body}, nil
	case tagWhile:
		cond, err := decodeExpr(r, strings)
		if err != nil {
			return nil, err
		}
		body, err := decodeStmtList(r, strings)
		if err != nil {
			return nil, err
		}
		return eval.WhileStmt{Cond: cond, Body: body}, nil
	case tagRepeat:
		body, err := decodeStmtList(r, strings)
		if err != nil {
			return nil, err
		}
		cond, err := decodeExpr(r, strings)
		if err != nil {
			return nil, err
		}
		return eval.RepeatStmt{Body: body, Cond: cond}, nil
	case tagCase:
		selector, err := decodeExpr(r, strings)
		if err != nil {
			return nil, err
		}
		n := r.u32()
		arms := make([]eval.CaseArm, 0, n)
		for i := uint32(0); i < n; i++ {
			nl := r.u32()
			labels := make([]eval.CaseLabel, 0, nl)
			for j := uint32(0); j < nl; j++ {
				isRange := r.bool()
				low, err := readConstValue(r, strings)
				if err != nil {
					return nil, err
				}
				var high value.Value
				if isRange {
					high, err = readConstValue(r, strings)
					if err != nil {
						return nil, err
					}
				}
				labels = append(labels, eval.CaseLabel{Low: low, High: high, IsRange: isRange})
			}
			body, err := decodeStmtList(r, strings)
			if err != nil {
				return nil, err
			}
			arms = append(arms, eval.CaseArm{Labels: labels, Body: body})
		}
		elseBody, err := decodeStmtList(r, strings)
		if err != nil {
			return nil, err
		}
		return eval.CaseStmt{Selector: selector, Arms: arms, Else: elseBody}, nil
	case tagReturn:
		val, err := decodeOptExpr(r, strings)
		if err != nil {
			return nil, err
		}
		return eval.ReturnStmt{Value: val}, nil
	case tagExprStmt:
		e, err := decodeExpr(r, strings)
		if err != nil {
			return nil, err
		}
		return eval.ExprStmt{Expr: e}, nil
	case tagExit:
		return eval.ExitStmt{}, nil
	case tagContinue:
		return eval.ContinueStmt{}, nil
	case tagJump:
		return eval.JumpStmt{Label: strings.Get(r.u32())}, nil
	case tagLabel:
		return eval.LabelStmt{Name: strings.Get(r.u32())}, nil
	case tagStmtList:
		stmts, err := decodeStmtList(r, strings)
		if err != nil {
			return nil, err
		}
		return eval.StmtList{Stmts: stmts}, nil
	default:
		return nil, fmt.Errorf("bytecode: unknown stmt tag %d", tag)
	}
}

func appendStmtList(buf []byte, stmts []eval.Stmt, strings *StringTable) []byte {
	buf = appendUint32(buf, uint32(len(stmts)))
	for _, s := range stmts {
		buf = appendStmt(buf, s, strings)
	}
	return buf
}

func decodeStmtList(r *byteReader, strings *StringTable) ([]eval.Stmt, error) {
	n := r.u32()
	out := make([]eval.Stmt, 0, n)
	for i := uint32(0); i < n && r.err == nil; i++ {
		s, err := decodeStmt(r, strings)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if r.err != nil {
		return nil, r.err
	}
	return out, nil
}
