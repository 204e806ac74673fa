package ir

// Opcode mnemonics shared by the encoder and the JSON codec.
const (
	OpCall   = "call"
	OpICmp   = "icmp"
	OpFCmp   = "fcmp"
	OpLoad   = "load"
	OpGEP    = "getelementptr"
	OpStore  = "store"
	OpRet    = "ret"
	OpBr     = "br"
	OpSwitch = "switch"
	OpPhi    = "phi"
	OpAlloca = "alloca"
)

// Statement is a normalized instruction. The variant set is closed: Call,
// Assume, Binary, Unary, Load, GetElementPtr, Store, Ret, Br, Switch, Phi
// and Opaque. Opaque carries no operands and never takes part in data flow.
type Statement interface {
	// Opcode returns the lowercase mnemonic.
	Opcode() string
	// Defines returns the value this statement defines, if any.
	Defines() (Value, bool)
	// Uses returns the operands this statement reads, in operand order.
	Uses() []Value

	isStatement()
}

// Call is a function call. Result is nil for void calls.
type Call struct {
	Result *Value
	Func   Value
	Args   []Value
}

// Assume is a compare-like statement (icmp/fcmp).
type Assume struct {
	Op        string // icmp or fcmp
	Predicate string
	Result    Value
	Op0       Value
	Op1       Value
}

// Binary is a two-operand arithmetic or extraction statement.
type Binary struct {
	Op     string
	Result Value
	Op0    Value
	Op1    Value
}

// Unary is a one-operand statement: negation, conversion, extraction.
type Unary struct {
	Op     string
	Result Value
	Op0    Value
}

// Load reads through the pointer Op0.
type Load struct {
	Result Value
	Op0    Value
}

// GetElementPtr computes an address derived from Op0.
type GetElementPtr struct {
	Result Value
	Op0    Value
}

// Store writes Op0 through the pointer Op1.
type Store struct {
	Op0 Value
	Op1 Value
}

// Ret returns Op0, or nothing when Op0 is nil.
type Ret struct {
	Op0 *Value
}

// Br branches on Cond, or unconditionally when Cond is nil.
type Br struct {
	Cond *Value
}

// Switch dispatches on Op0.
type Switch struct {
	Op0 Value
}

// Phi merges Incoming values at a join point.
type Phi struct {
	Result   Value
	Incoming []Value
}

// Opaque is every other opcode.
type Opaque struct {
	Op string
}

func (*Call) isStatement()          {}
func (*Assume) isStatement()        {}
func (*Binary) isStatement()        {}
func (*Unary) isStatement()         {}
func (*Load) isStatement()          {}
func (*GetElementPtr) isStatement() {}
func (*Store) isStatement()         {}
func (*Ret) isStatement()           {}
func (*Br) isStatement()            {}
func (*Switch) isStatement()        {}
func (*Phi) isStatement()           {}
func (*Opaque) isStatement()        {}

func (*Call) Opcode() string          { return OpCall }
func (s *Assume) Opcode() string      { return s.Op }
func (s *Binary) Opcode() string      { return s.Op }
func (s *Unary) Opcode() string       { return s.Op }
func (*Load) Opcode() string          { return OpLoad }
func (*GetElementPtr) Opcode() string { return OpGEP }
func (*Store) Opcode() string         { return OpStore }
func (*Ret) Opcode() string           { return OpRet }
func (*Br) Opcode() string            { return OpBr }
func (*Switch) Opcode() string        { return OpSwitch }
func (*Phi) Opcode() string           { return OpPhi }
func (s *Opaque) Opcode() string      { return s.Op }

func (s *Call) Defines() (Value, bool) {
	if s.Result == nil {
		return Value{}, false
	}
	return *s.Result, true
}
func (s *Assume) Defines() (Value, bool)        { return s.Result, true }
func (s *Binary) Defines() (Value, bool)        { return s.Result, true }
func (s *Unary) Defines() (Value, bool)         { return s.Result, true }
func (s *Load) Defines() (Value, bool)          { return s.Result, true }
func (s *GetElementPtr) Defines() (Value, bool) { return s.Result, true }
func (*Store) Defines() (Value, bool)           { return Value{}, false }
func (*Ret) Defines() (Value, bool)             { return Value{}, false }
func (*Br) Defines() (Value, bool)              { return Value{}, false }
func (*Switch) Defines() (Value, bool)          { return Value{}, false }
func (s *Phi) Defines() (Value, bool)           { return s.Result, true }
func (*Opaque) Defines() (Value, bool)          { return Value{}, false }

func (s *Call) Uses() []Value {
	uses := make([]Value, 0, len(s.Args)+1)
	if s.Func.Kind == ValueRegister {
		uses = append(uses, s.Func)
	}
	return append(uses, s.Args...)
}
func (s *Assume) Uses() []Value        { return []Value{s.Op0, s.Op1} }
func (s *Binary) Uses() []Value        { return []Value{s.Op0, s.Op1} }
func (s *Unary) Uses() []Value         { return []Value{s.Op0} }
func (s *Load) Uses() []Value          { return []Value{s.Op0} }
func (s *GetElementPtr) Uses() []Value { return []Value{s.Op0} }
func (s *Store) Uses() []Value         { return []Value{s.Op0, s.Op1} }
func (s *Ret) Uses() []Value           { return optional(s.Op0) }
func (s *Br) Uses() []Value            { return optional(s.Cond) }
func (s *Switch) Uses() []Value        { return []Value{s.Op0} }
func (s *Phi) Uses() []Value           { return append([]Value(nil), s.Incoming...) }
func (*Opaque) Uses() []Value          { return nil }

func optional(v *Value) []Value {
	if v == nil {
		return nil
	}
	return []Value{*v}
}

// Callee returns the callee symbol of a call statement.
func Callee(s Statement) (string, bool) {
	c, ok := s.(*Call)
	if !ok {
		return "", false
	}
	return c.Func.Symbol(), true
}
