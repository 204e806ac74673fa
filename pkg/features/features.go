// Package features computes per-trace facts about how the result of a
// target call is used and where its arguments come from.
package features

import (
	"fmt"

	"github.com/l3aro/go-trace-slicer/pkg/dugraph"
	"github.com/l3aro/go-trace-slicer/pkg/ir"
	"github.com/l3aro/go-trace-slicer/pkg/slicer"
)

// MaxArgs is the number of leading arguments that get precondition
// features.
const MaxArgs = 4

// Extractor computes one named feature of a trace.
type Extractor interface {
	Name() string
	// Applies reports whether the feature is defined for the target call.
	Applies(call *ir.Call) bool
	Extract(t *slicer.Trace, call *ir.Call) interface{}
}

// Features maps extractor names to their values. JSON encoding sorts the
// keys, so a feature file is a function of its trace.
type Features map[string]interface{}

// Set is an ordered list of extractors.
type Set []Extractor

// All returns the return value check and the preconditions of the first
// MaxArgs arguments.
func All() Set {
	s := Set{ReturnCheck{}}
	for i := 0; i < MaxArgs; i++ {
		s = append(s, ArgPrecondition{Index: i})
	}
	return s
}

// Extract runs every extractor that applies to the trace's target call.
func (s Set) Extract(t *slicer.Trace) (Features, error) {
	if t.Target < 0 || t.Target >= t.Graph.Len() {
		return nil, fmt.Errorf("%w: trace %s/%d/%d: target %d out of range", ir.ErrMalformedInput, t.TargetFunc, t.SliceID, t.TraceID, t.Target)
	}
	call, ok := t.TargetNode().Stmt.(*ir.Call)
	if !ok {
		return nil, fmt.Errorf("%w: trace %s/%d/%d: target is %s, not a call", ir.ErrMalformedInput, t.TargetFunc, t.SliceID, t.TraceID, t.TargetNode().Stmt.Opcode())
	}
	out := make(Features, len(s))
	for _, e := range s {
		if e.Applies(call) {
			out[e.Name()] = e.Extract(t, call)
		}
	}
	return out, nil
}

// Check describes the first comparison that tests a value.
type Check struct {
	Checked   bool   `json:"checked"`
	Predicate string `json:"predicate,omitempty"`

	// AgainstConst is set when the other operand is a constant, AgainstNull
	// when that constant is null or zero.
	AgainstConst bool `json:"against_const"`
	AgainstNull  bool `json:"against_null"`

	// Branch is set when the comparison result decides a branch.
	Branch bool `json:"branch"`
}

// check fills a Check from the comparison node id, where tested holds the
// operands that stand for the tested value.
func check(g *dugraph.Graph, id int, tested map[ir.Value]bool) Check {
	a := g.Node(id).Stmt.(*ir.Assume)
	c := Check{Checked: true, Predicate: a.Predicate}
	other := a.Op1
	if tested[a.Op1] && !tested[a.Op0] {
		other = a.Op0
	}
	c.AgainstConst = other.IsConst()
	c.AgainstNull = other.Kind == ir.ValueNull
	for _, succ := range g.Succs(id) {
		if _, ok := g.Node(succ).Stmt.(*ir.Br); ok {
			c.Branch = true
			break
		}
	}
	return c
}

// Writer persists the features of one trace. *store.Store implements it.
type Writer interface {
	SaveFeatures(fn string, sliceID, traceID int, features interface{}) error
}

// Report counts the traces whose features were written and, per
// extractor, the traces it applied to.
type Report struct {
	Traces  int            `json:"traces"`
	Applied map[string]int `json:"applied"`
}

// Run extracts the features of every trace and writes them to w. The first
// error aborts the run.
func (s Set) Run(traces []slicer.Trace, w Writer) (Report, error) {
	report := Report{Applied: make(map[string]int)}
	for i := range traces {
		t := &traces[i]
		f, err := s.Extract(t)
		if err != nil {
			return report, err
		}
		if err := w.SaveFeatures(t.TargetFunc, t.SliceID, t.TraceID, f); err != nil {
			return report, err
		}
		report.Traces++
		for name := range f {
			report.Applied[name]++
		}
	}
	return report, nil
}
