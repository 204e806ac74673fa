// Package ir defines the normalized statement and value encoding used for
// def-use graphs. Statements are a closed set of variants over the SSA
// instruction set; every operand is a Value named by its source-level text.
package ir

import (
	"strconv"
	"strings"
)

// ValueKind classifies an operand reference.
type ValueKind int

const (
	ValueRegister ValueKind = iota // %t3, %x
	ValueGlobal                    // @os.Open, @p.counter
	ValueInt                       // 42, -1, true
	ValueFloat                     // 2.500000e+00
	ValueNull                      // 0
	ValueUndef                     // undef
	ValueLiteral                   // "abc", (1 + 2i)
)

const (
	registerSigil = "%"
	globalSigil   = "@"

	// NullName is the fixed text of null (and integer zero) constants.
	NullName = "0"
	// UndefName is the fixed text of undefined values.
	UndefName = "undef"
)

func (k ValueKind) String() string {
	switch k {
	case ValueRegister:
		return "register"
	case ValueGlobal:
		return "global"
	case ValueInt:
		return "int"
	case ValueFloat:
		return "float"
	case ValueNull:
		return "null"
	case ValueUndef:
		return "undef"
	case ValueLiteral:
		return "literal"
	default:
		return "unknown"
	}
}

// Value is a tagged operand reference. Two values are equal iff they have the
// same kind and text.
type Value struct {
	Kind ValueKind
	Name string
}

// ParseValue classifies operand text. The kind is a pure function of the
// text, so a persisted value always decodes to the value that produced it.
func ParseValue(text string) Value {
	switch {
	case strings.HasPrefix(text, registerSigil):
		return Value{Kind: ValueRegister, Name: text}
	case strings.HasPrefix(text, globalSigil):
		return Value{Kind: ValueGlobal, Name: text}
	case text == NullName:
		return Value{Kind: ValueNull, Name: text}
	case text == UndefName:
		return Value{Kind: ValueUndef, Name: text}
	case text == "true" || text == "false":
		return Value{Kind: ValueInt, Name: text}
	}
	if _, err := strconv.ParseInt(text, 10, 64); err == nil {
		return Value{Kind: ValueInt, Name: text}
	}
	if isDecimalInteger(text) {
		// exceeds int64 but is still an integer literal
		return Value{Kind: ValueInt, Name: text}
	}
	if _, err := strconv.ParseFloat(text, 64); err == nil {
		return Value{Kind: ValueFloat, Name: text}
	}
	return Value{Kind: ValueLiteral, Name: text}
}

func isDecimalInteger(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Register returns the value naming an SSA register.
func Register(name string) Value {
	return ParseValue(registerSigil + name)
}

// Global returns the value naming a function or global symbol.
func Global(symbol string) Value {
	return ParseValue(globalSigil + symbol)
}

// Null returns the null constant.
func Null() Value { return ParseValue(NullName) }

// Undef returns the undefined value.
func Undef() Value { return ParseValue(UndefName) }

// IsConst reports whether the value is a compile-time constant. Function and
// global addresses are link-time constants.
func (v Value) IsConst() bool {
	return v.Kind != ValueRegister
}

// Equal reports whether v and o denote the same operand.
func (v Value) Equal(o Value) bool {
	return v.Kind == o.Kind && v.Name == o.Name
}

// Symbol returns the text without its register or global sigil.
func (v Value) Symbol() string {
	switch v.Kind {
	case ValueRegister:
		return strings.TrimPrefix(v.Name, registerSigil)
	case ValueGlobal:
		return strings.TrimPrefix(v.Name, globalSigil)
	default:
		return v.Name
	}
}

func (v Value) String() string {
	return v.Name
}
