package slicer

import (
	"regexp"
	"sort"

	"github.com/l3aro/go-trace-slicer/pkg/dugraph"
	"github.com/l3aro/go-trace-slicer/pkg/ir"
)

// TargetFilter selects the callees that are sliced when no single target is
// named. A nil pattern places no restriction.
type TargetFilter struct {
	Include *regexp.Regexp
	Exclude *regexp.Regexp
}

// Empty reports whether the filter has no pattern set.
func (f TargetFilter) Empty() bool {
	return f.Include == nil && f.Exclude == nil
}

// Match reports whether callee passes the filter. A callee must match
// Include when it is set and must not match Exclude.
func (f TargetFilter) Match(callee string) bool {
	if f.Include != nil && !f.Include.MatchString(callee) {
		return false
	}
	if f.Exclude != nil && f.Exclude.MatchString(callee) {
		return false
	}
	return true
}

// Targets returns the sorted, distinct callee symbols of g's direct calls
// that pass f.
func Targets(g *dugraph.Graph, f TargetFilter) []string {
	seen := make(map[string]bool)
	for _, n := range g.Nodes() {
		call, ok := n.Stmt.(*ir.Call)
		if !ok || call.Func.Kind != ir.ValueGlobal {
			continue
		}
		seen[call.Func.Symbol()] = true
	}

	var targets []string
	for callee := range seen {
		if f.Match(callee) {
			targets = append(targets, callee)
		}
	}
	sort.Strings(targets)
	return targets
}
