// Package filter grades traces and labels the ones that carry too little
// data flow around their call site.
//
// A trace is kept when its call arguments are all initialized by a
// reachable definition, or when its result reaches a use. Both checks
// recognize only a fixed subset of statement kinds as definition and use
// sites; Store, GetElementPtr, Phi, terminators and opaque statements never
// count.
package filter

import (
	"fmt"

	"github.com/l3aro/go-trace-slicer/internal/log"
	"github.com/l3aro/go-trace-slicer/pkg/dugraph"
	"github.com/l3aro/go-trace-slicer/pkg/idset"
	"github.com/l3aro/go-trace-slicer/pkg/ir"
	"github.com/l3aro/go-trace-slicer/pkg/slicer"
)

// UndersizedLabel is the label written for traces that are not kept.
const UndersizedLabel = "undersized"

// State is the outcome of grading one trace.
type State int

const (
	Unvisited State = iota
	Kept
	Undersized
)

func (s State) String() string {
	switch s {
	case Kept:
		return "kept"
	case Undersized:
		return "undersized"
	default:
		return "unvisited"
	}
}

func targetCall(t *slicer.Trace) (*ir.Call, error) {
	n := t.TargetNode()
	if n == nil {
		return nil, fmt.Errorf("%w: trace %s/%d/%d: target %d not in graph",
			ir.ErrMalformedInput, t.TargetFunc, t.SliceID, t.TraceID, t.Target)
	}
	call, ok := n.Stmt.(*ir.Call)
	if !ok {
		return nil, fmt.Errorf("%w: trace %s/%d/%d: target is %s, not a call",
			ir.ErrMalformedInput, t.TargetFunc, t.SliceID, t.TraceID, n.Stmt.Opcode())
	}
	return call, nil
}

// definesValue reports whether s is a definition site of v. Only call,
// compare, load, binary and unary results count.
func definesValue(s ir.Statement, v ir.Value) bool {
	switch s := s.(type) {
	case *ir.Call:
		return s.Result != nil && s.Result.Equal(v)
	case *ir.Assume:
		return s.Result.Equal(v)
	case *ir.Load:
		return s.Result.Equal(v)
	case *ir.Binary:
		return s.Result.Equal(v)
	case *ir.Unary:
		return s.Result.Equal(v)
	}
	return false
}

// usesValue reports whether s is a use site of v. Only call arguments,
// compare and binary operands, and unary operands count.
func usesValue(s ir.Statement, v ir.Value) bool {
	switch s := s.(type) {
	case *ir.Call:
		for _, a := range s.Args {
			if a.Equal(v) {
				return true
			}
		}
		return false
	case *ir.Assume:
		return s.Op0.Equal(v) || s.Op1.Equal(v)
	case *ir.Binary:
		return s.Op0.Equal(v) || s.Op1.Equal(v)
	case *ir.Unary:
		return s.Op0.Equal(v)
	}
	return false
}

// ArgsInitialized reports whether every non-constant argument of the target
// call has a definition reachable backward from the call. A call with no
// non-constant argument is not initialized.
func ArgsInitialized(t *slicer.Trace) (bool, error) {
	call, err := targetCall(t)
	if err != nil {
		return false, err
	}

	var args []ir.Value
	for _, a := range call.Args {
		if !a.IsConst() {
			args = append(args, a)
		}
	}
	if len(args) == 0 {
		return false, nil
	}

	for _, a := range args {
		found := dugraph.Reaches(t.Graph, t.Target, dugraph.Backward, func(n *dugraph.Node) bool {
			return definesValue(n.Stmt, a)
		})
		if !found {
			return false, nil
		}
	}
	return true, nil
}

// ResultUsed reports whether the target call's result reaches a use site
// going forward from the call. Void calls are never used.
func ResultUsed(t *slicer.Trace) (bool, error) {
	call, err := targetCall(t)
	if err != nil {
		return false, err
	}
	if call.Result == nil {
		return false, nil
	}
	res := *call.Result
	return dugraph.Reaches(t.Graph, t.Target, dugraph.Forward, func(n *dugraph.Node) bool {
		return usesValue(n.Stmt, res)
	}), nil
}

// Keep reports whether a trace carries enough data flow to be kept.
func Keep(t *slicer.Trace) (bool, error) {
	initialized, err := ArgsInitialized(t)
	if err != nil {
		return false, err
	}
	used, err := ResultUsed(t)
	if err != nil {
		return false, err
	}
	return initialized || used, nil
}

// Grade evaluates both checks and returns the trace's terminal state.
func Grade(t *slicer.Trace) (State, error) {
	keep, err := Keep(t)
	if err != nil {
		return Unvisited, err
	}
	if keep {
		return Kept, nil
	}
	return Undersized, nil
}

// Report counts the outcome of a run.
type Report struct {
	Total      int `json:"total"`
	Kept       int `json:"kept"`
	Undersized int `json:"undersized"`
}

// Options configures a run.
type Options struct {
	Debug  bool
	Logger log.Logger
}

// Run grades traces in order and accumulates the identifiers of undersized
// ones. The first error aborts the run and no set is returned.
func Run(traces []slicer.Trace, opts Options) (idset.Set, Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}

	var labels idset.Builder
	var report Report
	for i := range traces {
		t := &traces[i]
		state, err := Grade(t)
		if err != nil {
			return idset.Set{}, Report{}, err
		}
		report.Total++
		if state == Undersized {
			labels.Add(t.TargetFunc, t.SliceID, t.TraceID)
			report.Undersized++
		} else {
			report.Kept++
		}
		if opts.Debug {
			logger.Debug("graded trace",
				"func", t.TargetFunc, "slice", t.SliceID, "trace", t.TraceID, "state", state)
		}
	}
	return labels.Set(), report, nil
}

// Relabel combines the previous contents of a label with the undersized
// set of a run that graded the traces of fn. Entries of other functions are
// carried over; entries of fn are replaced. An empty fn means every function
// was graded, so nothing is carried over.
func Relabel(prev, undersized idset.Set, fn string) idset.Set {
	var b idset.Builder
	if fn != "" {
		for _, id := range prev.Sorted() {
			if id.Func != fn {
				b.AddID(id)
			}
		}
	}
	b.AddSet(undersized)
	return b.Set()
}
