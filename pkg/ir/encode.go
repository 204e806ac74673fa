package ir

import (
	"errors"
	"fmt"
	"go/constant"
	"go/token"
	"go/types"
	"strconv"

	"golang.org/x/tools/go/ssa"
)

var (
	// ErrUnsupportedEncoding is returned when an instruction cannot be mapped
	// onto a statement variant.
	ErrUnsupportedEncoding = errors.New("unsupported encoding")
	// ErrMalformedInput is returned for persisted data missing a required
	// field or of the wrong shape.
	ErrMalformedInput = errors.New("malformed input")
)

// Encode maps one SSA instruction onto its statement variant.
func Encode(instr ssa.Instruction) (Statement, error) {
	switch in := instr.(type) {
	case *ssa.Call:
		return encodeCall(in)

	case *ssa.BinOp:
		res, err := result(in)
		if err != nil {
			return nil, err
		}
		x, y := ValueOf(in.X), ValueOf(in.Y)
		if op, pred, ok := comparison(in.Op, in.X.Type()); ok {
			return &Assume{Op: op, Predicate: pred, Result: res, Op0: x, Op1: y}, nil
		}
		op, err := arithmetic(in.Op, in.X.Type())
		if err != nil {
			return nil, err
		}
		return &Binary{Op: op, Result: res, Op0: x, Op1: y}, nil

	case *ssa.UnOp:
		res, err := result(in)
		if err != nil {
			return nil, err
		}
		x := ValueOf(in.X)
		switch in.Op {
		case token.MUL:
			return &Load{Result: res, Op0: x}, nil
		case token.SUB:
			if isFloat(in.X.Type()) {
				return &Unary{Op: "fneg", Result: res, Op0: x}, nil
			}
			return &Unary{Op: "neg", Result: res, Op0: x}, nil
		case token.NOT:
			return &Unary{Op: "not", Result: res, Op0: x}, nil
		case token.XOR:
			return &Unary{Op: "compl", Result: res, Op0: x}, nil
		case token.ARROW:
			return &Unary{Op: "recv", Result: res, Op0: x}, nil
		}
		return nil, fmt.Errorf("%w: unary operator %s in %s", ErrUnsupportedEncoding, in.Op, in)

	case *ssa.Convert:
		return unary(in, conversion(in.X.Type(), in.Type()), in.X)
	case *ssa.MultiConvert:
		return unary(in, "convert", in.X)
	case *ssa.ChangeType:
		return unary(in, "bitcast", in.X)
	case *ssa.ChangeInterface:
		return unary(in, "bitcast", in.X)
	case *ssa.SliceToArrayPointer:
		return unary(in, "bitcast", in.X)
	case *ssa.MakeInterface:
		return unary(in, "makeinterface", in.X)
	case *ssa.TypeAssert:
		return unary(in, "typeassert", in.X)
	case *ssa.Extract:
		return unary(in, "extractvalue", in.Tuple)
	case *ssa.Field:
		return unary(in, "extractvalue", in.X)

	case *ssa.Index:
		return binary(in, "extractelement", in.X, in.Index)
	case *ssa.Lookup:
		return binary(in, "extractelement", in.X, in.Index)

	case *ssa.FieldAddr:
		res, err := result(in)
		if err != nil {
			return nil, err
		}
		return &GetElementPtr{Result: res, Op0: ValueOf(in.X)}, nil
	case *ssa.IndexAddr:
		res, err := result(in)
		if err != nil {
			return nil, err
		}
		return &GetElementPtr{Result: res, Op0: ValueOf(in.X)}, nil

	case *ssa.Store:
		return &Store{Op0: ValueOf(in.Val), Op1: ValueOf(in.Addr)}, nil

	case *ssa.Return:
		if len(in.Results) == 0 {
			return &Ret{}, nil
		}
		v := ValueOf(in.Results[0])
		return &Ret{Op0: &v}, nil
	case *ssa.If:
		v := ValueOf(in.Cond)
		return &Br{Cond: &v}, nil
	case *ssa.Jump:
		return &Br{}, nil

	case *ssa.Phi:
		res, err := result(in)
		if err != nil {
			return nil, err
		}
		incoming := make([]Value, len(in.Edges))
		for i, e := range in.Edges {
			incoming[i] = ValueOf(e)
		}
		return &Phi{Result: res, Incoming: incoming}, nil

	case *ssa.Alloc:
		return &Opaque{Op: OpAlloca}, nil
	case *ssa.MakeChan:
		return &Opaque{Op: "makechan"}, nil
	case *ssa.MakeClosure:
		return &Opaque{Op: "makeclosure"}, nil
	case *ssa.MakeMap:
		return &Opaque{Op: "makemap"}, nil
	case *ssa.MakeSlice:
		return &Opaque{Op: "makeslice"}, nil
	case *ssa.Slice:
		return &Opaque{Op: "slice"}, nil
	case *ssa.Range:
		return &Opaque{Op: "range"}, nil
	case *ssa.Next:
		return &Opaque{Op: "next"}, nil
	case *ssa.Select:
		return &Opaque{Op: "select"}, nil
	case *ssa.Go:
		return &Opaque{Op: "go"}, nil
	case *ssa.Defer:
		return &Opaque{Op: "defer"}, nil
	case *ssa.RunDefers:
		return &Opaque{Op: "rundefers"}, nil
	case *ssa.Panic:
		return &Opaque{Op: "panic"}, nil
	case *ssa.Send:
		return &Opaque{Op: "send"}, nil
	case *ssa.MapUpdate:
		return &Opaque{Op: "mapupdate"}, nil
	case *ssa.DebugRef:
		return &Opaque{Op: "debugref"}, nil
	}
	return nil, fmt.Errorf("%w: instruction %T", ErrUnsupportedEncoding, instr)
}

func encodeCall(in *ssa.Call) (Statement, error) {
	common := in.Common()
	call := &Call{}
	if common.Signature().Results().Len() > 0 {
		res, err := result(in)
		if err != nil {
			return nil, err
		}
		call.Result = &res
	}

	args := make([]Value, 0, len(common.Args)+1)
	switch {
	case common.IsInvoke():
		call.Func = Global(common.Method.FullName())
		args = append(args, ValueOf(common.Value))
	case common.StaticCallee() != nil:
		call.Func = Global(common.StaticCallee().String())
	default:
		call.Func = ValueOf(common.Value)
	}
	for _, a := range common.Args {
		args = append(args, ValueOf(a))
	}
	call.Args = args
	return call, nil
}

func unary(in ssa.Value, op string, x ssa.Value) (Statement, error) {
	res, err := result(in)
	if err != nil {
		return nil, err
	}
	return &Unary{Op: op, Result: res, Op0: ValueOf(x)}, nil
}

func binary(in ssa.Value, op string, x, y ssa.Value) (Statement, error) {
	res, err := result(in)
	if err != nil {
		return nil, err
	}
	return &Binary{Op: op, Result: res, Op0: ValueOf(x), Op1: ValueOf(y)}, nil
}

// result names the register defined by a value-producing instruction.
func result(v ssa.Value) (Value, error) {
	name := v.Name()
	if !isRegisterName(name) {
		return Value{}, fmt.Errorf("%w: %T defines no register (%q)", ErrUnsupportedEncoding, v, name)
	}
	return Register(name), nil
}

// isRegisterName matches the t<N> names the SSA builder assigns.
func isRegisterName(name string) bool {
	if len(name) < 2 || name[0] != 't' {
		return false
	}
	_, err := strconv.ParseUint(name[1:], 10, 32)
	return err == nil
}

// ValueOf names an SSA operand. Parameters and free variables carry a
// prefix so that a source name such as t3 never collides with a register.
func ValueOf(v ssa.Value) Value {
	switch v := v.(type) {
	case nil:
		return Undef()
	case *ssa.Parameter:
		return Register(ParamPrefix + v.Name())
	case *ssa.FreeVar:
		return Register(FreeVarPrefix + v.Name())
	case *ssa.Const:
		return constValue(v)
	case *ssa.Function:
		return Global(v.String())
	case *ssa.Global:
		return Global(v.String())
	case *ssa.Builtin:
		return Global(v.Name())
	}
	return Register(v.Name())
}

// Register name prefixes of function parameters and closure free variables.
const (
	ParamPrefix   = "arg."
	FreeVarPrefix = "free."
)

func constValue(c *ssa.Const) Value {
	if c.Value == nil {
		return Null()
	}
	switch c.Value.Kind() {
	case constant.Bool:
		return ParseValue(strconv.FormatBool(constant.BoolVal(c.Value)))
	case constant.Int:
		return ParseValue(c.Value.ExactString())
	case constant.Float:
		f, _ := constant.Float64Val(c.Value)
		return ParseValue(fmt.Sprintf("%e", f))
	case constant.String, constant.Complex:
		return ParseValue(c.Value.ExactString())
	}
	return Undef()
}

var (
	floatPredicates = map[token.Token]string{
		token.EQL: "oeq", token.NEQ: "une",
		token.LSS: "olt", token.LEQ: "ole",
		token.GTR: "ogt", token.GEQ: "oge",
	}
	unsignedPredicates = map[token.Token]string{
		token.EQL: "eq", token.NEQ: "ne",
		token.LSS: "ult", token.LEQ: "ule",
		token.GTR: "ugt", token.GEQ: "uge",
	}
	signedPredicates = map[token.Token]string{
		token.EQL: "eq", token.NEQ: "ne",
		token.LSS: "slt", token.LEQ: "sle",
		token.GTR: "sgt", token.GEQ: "sge",
	}
)

// comparison returns the compare opcode and predicate for a comparison
// operator applied to operands of type t.
func comparison(op token.Token, t types.Type) (string, string, bool) {
	if _, ok := signedPredicates[op]; !ok {
		return "", "", false
	}
	switch {
	case isFloat(t) || isComplex(t):
		return OpFCmp, floatPredicates[op], true
	case isUnsigned(t) || isString(t):
		return OpICmp, unsignedPredicates[op], true
	}
	return OpICmp, signedPredicates[op], true
}

func arithmetic(op token.Token, t types.Type) (string, error) {
	float := isFloat(t) || isComplex(t)
	switch op {
	case token.ADD:
		if float {
			return "fadd", nil
		}
		return "add", nil
	case token.SUB:
		if float {
			return "fsub", nil
		}
		return "sub", nil
	case token.MUL:
		if float {
			return "fmul", nil
		}
		return "mul", nil
	case token.QUO:
		switch {
		case float:
			return "fdiv", nil
		case isUnsigned(t):
			return "udiv", nil
		}
		return "sdiv", nil
	case token.REM:
		if isUnsigned(t) {
			return "urem", nil
		}
		return "srem", nil
	case token.AND:
		return "and", nil
	case token.OR:
		return "or", nil
	case token.XOR:
		return "xor", nil
	case token.AND_NOT:
		return "andnot", nil
	case token.SHL:
		return "shl", nil
	case token.SHR:
		if isUnsigned(t) {
			return "lshr", nil
		}
		return "ashr", nil
	}
	return "", fmt.Errorf("%w: binary operator %s", ErrUnsupportedEncoding, op)
}

// conversion picks the cast mnemonic for a numeric conversion.
func conversion(from, to types.Type) string {
	fb, fok := basic(from)
	tb, tok := basic(to)
	if !fok || !tok {
		return "convert"
	}
	fi, ti := fb.Info(), tb.Info()
	fw, tw := width(fb), width(tb)
	switch {
	case fi&types.IsInteger != 0 && ti&types.IsInteger != 0:
		switch {
		case tw < fw:
			return "trunc"
		case tw > fw && fi&types.IsUnsigned != 0:
			return "zext"
		case tw > fw:
			return "sext"
		}
		return "bitcast"
	case fi&types.IsInteger != 0 && ti&types.IsFloat != 0:
		if fi&types.IsUnsigned != 0 {
			return "uitofp"
		}
		return "sitofp"
	case fi&types.IsFloat != 0 && ti&types.IsInteger != 0:
		if ti&types.IsUnsigned != 0 {
			return "fptoui"
		}
		return "fptosi"
	case fi&types.IsFloat != 0 && ti&types.IsFloat != 0:
		switch {
		case tw < fw:
			return "fptrunc"
		case tw > fw:
			return "fpext"
		}
		return "bitcast"
	}
	return "convert"
}

func basic(t types.Type) (*types.Basic, bool) {
	b, ok := t.Underlying().(*types.Basic)
	return b, ok
}

// width is the bit width of a numeric basic type on a 64-bit target.
func width(b *types.Basic) int {
	switch b.Kind() {
	case types.Int8, types.Uint8:
		return 8
	case types.Int16, types.Uint16:
		return 16
	case types.Int32, types.Uint32, types.Float32:
		return 32
	}
	return 64
}

func hasInfo(t types.Type, flag types.BasicInfo) bool {
	b, ok := basic(t)
	return ok && b.Info()&flag != 0
}

func isFloat(t types.Type) bool    { return hasInfo(t, types.IsFloat) }
func isComplex(t types.Type) bool  { return hasInfo(t, types.IsComplex) }
func isUnsigned(t types.Type) bool { return hasInfo(t, types.IsUnsigned) }
func isString(t types.Type) bool   { return hasInfo(t, types.IsString) }
