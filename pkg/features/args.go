package features

import (
	"strconv"

	"github.com/l3aro/go-trace-slicer/pkg/ir"
	"github.com/l3aro/go-trace-slicer/pkg/slicer"
)

// ArgPrecondition describes where argument Index of the target call comes
// from. Comparisons on the argument read its definition on a branch the
// trace does not follow, so only the provenance is reported.
type ArgPrecondition struct {
	Index int
}

// ArgPreconditionFeature is the value of ArgPrecondition.
type ArgPreconditionFeature struct {
	Const bool `json:"const"`
	Null  bool `json:"null"`

	// DefinedBy is the opcode of the defining statement when it is part of
	// the trace. Parameters and constants have none.
	DefinedBy string `json:"defined_by,omitempty"`

	// Source is the callee that returned the argument or the global it was
	// loaded from.
	Source string `json:"source,omitempty"`

	// Merged is set when the argument is a phi of several incoming values.
	Merged bool `json:"merged"`
}

func (a ArgPrecondition) Name() string { return "arg." + strconv.Itoa(a.Index) + ".pre" }

func (a ArgPrecondition) Applies(call *ir.Call) bool { return a.Index < len(call.Args) }

func (a ArgPrecondition) Extract(t *slicer.Trace, call *ir.Call) interface{} {
	arg := call.Args[a.Index]
	f := ArgPreconditionFeature{Const: arg.IsConst(), Null: arg.Kind == ir.ValueNull}
	if f.Const {
		return f
	}

	g := t.Graph
	for _, pred := range g.Preds(t.Target) {
		stmt := g.Node(pred).Stmt
		if d, ok := stmt.Defines(); !ok || d != arg {
			continue
		}
		f.DefinedBy = stmt.Opcode()
		switch s := stmt.(type) {
		case *ir.Call:
			if s.Func.Kind == ir.ValueGlobal {
				f.Source = s.Func.Symbol()
			}
		case *ir.Load:
			if s.Op0.Kind == ir.ValueGlobal {
				f.Source = s.Op0.Symbol()
			}
		case *ir.Phi:
			f.Merged = true
		}
		break
	}
	return f
}
