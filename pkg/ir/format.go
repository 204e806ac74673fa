package ir

import (
	"strings"
)

// Format renders s as a single line of assembly-like text.
func Format(s Statement) string {
	var b strings.Builder
	if d, ok := s.Defines(); ok {
		b.WriteString(d.Name)
		b.WriteString(" = ")
	}
	b.WriteString(s.Opcode())

	switch s := s.(type) {
	case *Call:
		b.WriteString(" " + s.Func.Name + "(" + joinValues(s.Args) + ")")
	case *Assume:
		b.WriteString(" " + s.Predicate + " " + joinValues([]Value{s.Op0, s.Op1}))
	case *Phi:
		b.WriteString(" [" + joinValues(s.Incoming) + "]")
	default:
		if uses := s.Uses(); len(uses) > 0 {
			b.WriteString(" " + joinValues(uses))
		}
	}
	return b.String()
}

func joinValues(vs []Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.Name
	}
	return strings.Join(parts, ", ")
}
