// Package slicer extracts bounded def-use neighborhoods around the call
// sites of a target function.
package slicer

import (
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/l3aro/go-trace-slicer/internal/log"
	"github.com/l3aro/go-trace-slicer/pkg/dugraph"
	"github.com/l3aro/go-trace-slicer/pkg/ir"
)

// DefaultDepth is the default neighborhood radius in hops.
const DefaultDepth = 5

var (
	// ErrUnknownFunction is returned when the target function does not
	// exist in the program being sliced.
	ErrUnknownFunction = errors.New("unknown function")
	// ErrInvalidOptions is returned for a non-positive depth or empty target.
	ErrInvalidOptions = errors.New("invalid slicer options")
)

// Options configures extraction. It is built once and passed by value.
type Options struct {
	Target string
	Depth  int
	// Callers, when set, keeps only call sites whose enclosing function
	// symbol matches.
	Callers *regexp.Regexp
}

// Validate checks that the options can drive an extraction.
func (o Options) Validate() error {
	if o.Target == "" {
		return fmt.Errorf("%w: target function is required", ErrInvalidOptions)
	}
	if o.Depth <= 0 {
		return fmt.Errorf("%w: depth must be positive, got %d", ErrInvalidOptions, o.Depth)
	}
	return nil
}

// Trace is the neighborhood of one call site. Target is the ID of the call
// node inside Graph.
type Trace struct {
	TargetFunc string
	SliceID    int
	TraceID    int
	Target     int
	Graph      *dugraph.Graph
}

// TargetNode returns the call node the trace is centered on.
func (t *Trace) TargetNode() *dugraph.Node {
	return t.Graph.Node(t.Target)
}

// FindCallSites returns the IDs of every call node whose callee symbol is
// target, in ID order.
func FindCallSites(g *dugraph.Graph, target string) []int {
	var sites []int
	for _, n := range g.Nodes() {
		if callee, ok := ir.Callee(n.Stmt); ok && callee == target {
			sites = append(sites, n.ID)
		}
	}
	return sites
}

// Neighborhood returns the sorted IDs of the nodes within depth hops of
// center. Hops alternate between a backward frontier, which follows
// predecessor edges, and a forward frontier, which follows successor edges,
// starting with the backward one. A smaller depth always yields a subset of
// the result for a larger one.
func Neighborhood(g *dugraph.Graph, center, depth int) []int {
	seen := map[int]bool{center: true}
	back := frontier{visited: map[int]bool{center: true}, ids: []int{center}}
	fwd := frontier{visited: map[int]bool{center: true}, ids: []int{center}}

	for hop := 0; hop < depth; hop++ {
		var next []int
		if hop%2 == 0 {
			next = back.expand(g.Preds)
		} else {
			next = fwd.expand(g.Succs)
		}
		for _, id := range next {
			seen[id] = true
		}
	}

	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

type frontier struct {
	visited map[int]bool
	ids     []int
}

// expand advances the frontier one hop and returns the newly visited nodes.
func (f *frontier) expand(neighbors func(int) []int) []int {
	var next []int
	for _, id := range f.ids {
		for _, n := range neighbors(id) {
			if f.visited[n] {
				continue
			}
			f.visited[n] = true
			next = append(next, n)
		}
	}
	f.ids = next
	return next
}

// Extractor materializes traces from a module graph.
type Extractor struct {
	opts   Options
	logger log.Logger
}

// NewExtractor validates opts and returns an extractor. A nil logger
// discards output.
func NewExtractor(opts Options, logger log.Logger) (*Extractor, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Extractor{opts: opts, logger: logger}, nil
}

// Options returns the extractor's configuration.
func (e *Extractor) Options() Options { return e.opts }

// Extract builds one trace per call site of the target in g. Trace IDs run
// from 0 in call-site order. g is not modified.
func (e *Extractor) Extract(g *dugraph.Graph, sliceID int) []Trace {
	var traces []Trace
	for _, site := range FindCallSites(g, e.opts.Target) {
		if e.opts.Callers != nil && !e.opts.Callers.MatchString(g.Node(site).Func) {
			continue
		}
		ids := Neighborhood(g, site, e.opts.Depth)
		sub, remap := g.Subgraph(ids)
		traces = append(traces, Trace{
			TargetFunc: e.opts.Target,
			SliceID:    sliceID,
			TraceID:    len(traces),
			Target:     remap[site],
			Graph:      sub,
		})
		e.logger.Debug("extracted trace",
			"func", e.opts.Target, "slice", sliceID, "trace", len(traces)-1,
			"caller", g.Node(site).Func, "nodes", sub.Len())
	}
	return traces
}

// ExtractProgram is Extract over a whole program graph. symbols lists every
// function the program defines or declares; when the target has no call
// sites and is not among them, ErrUnknownFunction is returned.
func (e *Extractor) ExtractProgram(g *dugraph.Graph, symbols []string, sliceID int) ([]Trace, error) {
	traces := e.Extract(g, sliceID)
	if len(traces) > 0 || len(FindCallSites(g, e.opts.Target)) > 0 {
		return traces, nil
	}
	for _, s := range symbols {
		if s == e.opts.Target {
			return traces, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, e.opts.Target)
}
