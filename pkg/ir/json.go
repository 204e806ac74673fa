package ir

import (
	"encoding/json"
	"fmt"
)

var binaryOps = map[string]bool{
	"add": true, "fadd": true, "sub": true, "fsub": true, "mul": true, "fmul": true,
	"sdiv": true, "udiv": true, "fdiv": true, "srem": true, "urem": true, "frem": true,
	"and": true, "or": true, "xor": true, "andnot": true,
	"shl": true, "ashr": true, "lshr": true,
	"extractelement": true,
}

var unaryOps = map[string]bool{
	"neg": true, "fneg": true, "not": true, "compl": true, "recv": true,
	"trunc": true, "zext": true, "sext": true, "fptrunc": true, "fpext": true,
	"sitofp": true, "uitofp": true, "fptosi": true, "fptoui": true,
	"bitcast": true, "ptrtoint": true, "inttoptr": true, "convert": true,
	"makeinterface": true, "typeassert": true, "extractvalue": true,
}

// Wire shapes. Field order is the order keys appear in the output.
type (
	wireOpaque struct {
		Opcode string `json:"opcode"`
	}
	wireCall struct {
		Opcode string   `json:"opcode"`
		Result *string  `json:"result"`
		Func   string   `json:"func"`
		Args   []string `json:"args"`
	}
	wireCompare struct {
		Opcode    string `json:"opcode"`
		Result    string `json:"result"`
		Predicate string `json:"predicate"`
		Op0       string `json:"op0"`
		Op1       string `json:"op1"`
	}
	wireBinary struct {
		Opcode string `json:"opcode"`
		Result string `json:"result"`
		Op0    string `json:"op0"`
		Op1    string `json:"op1"`
	}
	wireUnary struct {
		Opcode string `json:"opcode"`
		Result string `json:"result"`
		Op0    string `json:"op0"`
	}
	wireStore struct {
		Opcode string `json:"opcode"`
		Op0    string `json:"op0"`
		Op1    string `json:"op1"`
	}
	wireRet struct {
		Opcode string  `json:"opcode"`
		Op0    *string `json:"op0"`
	}
	wireBr struct {
		Opcode string  `json:"opcode"`
		Cond   *string `json:"cond"`
	}
	wireSwitch struct {
		Opcode string `json:"opcode"`
		Op0    string `json:"op0"`
	}
	wirePhi struct {
		Opcode   string   `json:"opcode"`
		Result   string   `json:"result"`
		Incoming []string `json:"incoming"`
	}
)

// MarshalStatement encodes s in the persisted JSON form.
func MarshalStatement(s Statement) ([]byte, error) {
	var w any
	switch s := s.(type) {
	case *Call:
		var res *string
		if s.Result != nil {
			name := s.Result.Name
			res = &name
		}
		w = wireCall{Opcode: OpCall, Result: res, Func: calleeText(s.Func), Args: names(s.Args)}
	case *Assume:
		w = wireCompare{Opcode: s.Op, Result: s.Result.Name, Predicate: s.Predicate, Op0: s.Op0.Name, Op1: s.Op1.Name}
	case *Binary:
		w = wireBinary{Opcode: s.Op, Result: s.Result.Name, Op0: s.Op0.Name, Op1: s.Op1.Name}
	case *Unary:
		w = wireUnary{Opcode: s.Op, Result: s.Result.Name, Op0: s.Op0.Name}
	case *Load:
		w = wireUnary{Opcode: OpLoad, Result: s.Result.Name, Op0: s.Op0.Name}
	case *GetElementPtr:
		w = wireUnary{Opcode: OpGEP, Result: s.Result.Name, Op0: s.Op0.Name}
	case *Store:
		w = wireStore{Opcode: OpStore, Op0: s.Op0.Name, Op1: s.Op1.Name}
	case *Ret:
		w = wireRet{Opcode: OpRet, Op0: nameOrNil(s.Op0)}
	case *Br:
		w = wireBr{Opcode: OpBr, Cond: nameOrNil(s.Cond)}
	case *Switch:
		w = wireSwitch{Opcode: OpSwitch, Op0: s.Op0.Name}
	case *Phi:
		w = wirePhi{Opcode: OpPhi, Result: s.Result.Name, Incoming: names(s.Incoming)}
	case *Opaque:
		w = wireOpaque{Opcode: s.Op}
	default:
		return nil, fmt.Errorf("%w: statement %T", ErrUnsupportedEncoding, s)
	}
	return json.Marshal(w)
}

// UnmarshalStatement decodes the persisted JSON form. Unknown opcodes decode
// to Opaque; missing or mistyped fields yield ErrMalformedInput.
func UnmarshalStatement(data []byte) (Statement, error) {
	var f fields
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: statement: %v", ErrMalformedInput, err)
	}
	if f == nil {
		return nil, fmt.Errorf("%w: statement is null", ErrMalformedInput)
	}
	op, err := f.str("opcode")
	if err != nil {
		return nil, err
	}

	switch {
	case op == OpCall:
		res, err := f.optional("result")
		if err != nil {
			return nil, err
		}
		fn, err := f.str("func")
		if err != nil {
			return nil, err
		}
		args, err := f.list("args")
		if err != nil {
			return nil, err
		}
		return &Call{Result: res, Func: parseCallee(fn), Args: args}, nil

	case op == OpICmp || op == OpFCmp:
		pred, err := f.str("predicate")
		if err != nil {
			return nil, err
		}
		vs, err := f.values("result", "op0", "op1")
		if err != nil {
			return nil, err
		}
		return &Assume{Op: op, Predicate: pred, Result: vs[0], Op0: vs[1], Op1: vs[2]}, nil

	case binaryOps[op]:
		vs, err := f.values("result", "op0", "op1")
		if err != nil {
			return nil, err
		}
		return &Binary{Op: op, Result: vs[0], Op0: vs[1], Op1: vs[2]}, nil

	case unaryOps[op], op == OpLoad, op == OpGEP:
		vs, err := f.values("result", "op0")
		if err != nil {
			return nil, err
		}
		switch op {
		case OpLoad:
			return &Load{Result: vs[0], Op0: vs[1]}, nil
		case OpGEP:
			return &GetElementPtr{Result: vs[0], Op0: vs[1]}, nil
		}
		return &Unary{Op: op, Result: vs[0], Op0: vs[1]}, nil

	case op == OpStore:
		vs, err := f.values("op0", "op1")
		if err != nil {
			return nil, err
		}
		return &Store{Op0: vs[0], Op1: vs[1]}, nil

	case op == OpRet:
		v, err := f.optional("op0")
		if err != nil {
			return nil, err
		}
		return &Ret{Op0: v}, nil

	case op == OpBr:
		v, err := f.optional("cond")
		if err != nil {
			return nil, err
		}
		return &Br{Cond: v}, nil

	case op == OpSwitch:
		vs, err := f.values("op0")
		if err != nil {
			return nil, err
		}
		return &Switch{Op0: vs[0]}, nil

	case op == OpPhi:
		vs, err := f.values("result")
		if err != nil {
			return nil, err
		}
		incoming, err := f.list("incoming")
		if err != nil {
			return nil, err
		}
		return &Phi{Result: vs[0], Incoming: incoming}, nil
	}
	return &Opaque{Op: op}, nil
}

// calleeText is the persisted callee name: the bare symbol for functions,
// the register text for indirect calls.
func calleeText(v Value) string {
	if v.Kind == ValueGlobal {
		return v.Symbol()
	}
	return v.Name
}

func parseCallee(text string) Value {
	v := ParseValue(text)
	if v.Kind == ValueRegister || v.Kind == ValueGlobal {
		return v
	}
	return Global(text)
}

func names(vs []Value) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Name
	}
	return out
}

func nameOrNil(v *Value) *string {
	if v == nil {
		return nil
	}
	name := v.Name
	return &name
}

type fields map[string]json.RawMessage

func (f fields) raw(key string) (json.RawMessage, error) {
	raw, ok := f[key]
	if !ok {
		return nil, fmt.Errorf("%w: missing field %q", ErrMalformedInput, key)
	}
	return raw, nil
}

func (f fields) str(key string) (string, error) {
	raw, err := f.raw(key)
	if err != nil {
		return "", err
	}
	var s *string
	if err := json.Unmarshal(raw, &s); err != nil || s == nil {
		return "", fmt.Errorf("%w: field %q must be a string", ErrMalformedInput, key)
	}
	return *s, nil
}

func (f fields) values(keys ...string) ([]Value, error) {
	out := make([]Value, len(keys))
	for i, key := range keys {
		s, err := f.str(key)
		if err != nil {
			return nil, err
		}
		out[i] = ParseValue(s)
	}
	return out, nil
}

// optional decodes a field that must be present but may be null.
func (f fields) optional(key string) (*Value, error) {
	raw, err := f.raw(key)
	if err != nil {
		return nil, err
	}
	var s *string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: field %q must be a string or null", ErrMalformedInput, key)
	}
	if s == nil {
		return nil, nil
	}
	v := ParseValue(*s)
	return &v, nil
}

func (f fields) list(key string) ([]Value, error) {
	raw, err := f.raw(key)
	if err != nil {
		return nil, err
	}
	var ss []string
	if err := json.Unmarshal(raw, &ss); err != nil || ss == nil {
		return nil, fmt.Errorf("%w: field %q must be a list of strings", ErrMalformedInput, key)
	}
	out := make([]Value, len(ss))
	for i, s := range ss {
		out[i] = ParseValue(s)
	}
	return out, nil
}
