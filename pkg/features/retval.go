package features

import (
	"sort"

	"github.com/l3aro/go-trace-slicer/pkg/ir"
	"github.com/l3aro/go-trace-slicer/pkg/slicer"
)

// ReturnCheck tells whether the target's result is compared and where else
// it flows. Values derived from the result by one-operand statements
// (extraction, conversion) and phis stand for the result itself.
type ReturnCheck struct{}

// ReturnCheckFeature is the value of ReturnCheck.
type ReturnCheckFeature struct {
	Used     bool `json:"used"`
	Returned bool `json:"returned"`
	Stored   bool `json:"stored"`

	// PassedTo lists the callees receiving the result, sorted.
	PassedTo []string `json:"passed_to,omitempty"`
	Check
}

func (ReturnCheck) Name() string { return "ret.check" }

func (ReturnCheck) Applies(call *ir.Call) bool { return call.Result != nil }

func (ReturnCheck) Extract(t *slicer.Trace, call *ir.Call) interface{} {
	g := t.Graph
	f := ReturnCheckFeature{Used: len(g.Succs(t.Target)) > 0}

	tested := map[ir.Value]bool{*call.Result: true}
	callees := make(map[string]bool)
	seen := map[int]bool{t.Target: true}
	var assumes []int
	queue := []int{t.Target}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, succ := range g.Succs(id) {
			if seen[succ] {
				continue
			}
			seen[succ] = true
			switch s := g.Node(succ).Stmt.(type) {
			case *ir.Assume:
				assumes = append(assumes, succ)
			case *ir.Ret:
				f.Returned = true
			case *ir.Store:
				f.Stored = f.Stored || tested[s.Op0]
			case *ir.Call:
				if s.Func.Kind == ir.ValueGlobal {
					callees[s.Func.Symbol()] = true
				}
			case *ir.Unary:
				tested[s.Result] = true
				queue = append(queue, succ)
			case *ir.Phi:
				tested[s.Result] = true
				queue = append(queue, succ)
			}
		}
	}

	for callee := range callees {
		f.PassedTo = append(f.PassedTo, callee)
	}
	sort.Strings(f.PassedTo)
	if len(assumes) > 0 {
		sort.Ints(assumes)
		f.Check = check(g, assumes[0], tested)
	}
	return f
}
