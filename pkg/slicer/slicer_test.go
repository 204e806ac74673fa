package slicer

import (
	"errors"
	"regexp"
	"testing"

	"github.com/l3aro/go-trace-slicer/pkg/dugraph"
	"github.com/l3aro/go-trace-slicer/pkg/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reg(name string) ir.Value { return ir.Register(name) }

func ptr(v ir.Value) *ir.Value { return &v }

// program builds two callers of p.open:
//
//	p.a: 0 t0 = load @p.g
//	     1 t1 = call @p.open(%t0)
//	     2 t2 = extractvalue %t1
//	     3 t3 = add %t2, 1
//	     4 ret %t3
//	p.b: 5 t0 = call @p.open(undef)
func program() *dugraph.Graph {
	g := dugraph.New()
	a := []*dugraph.Node{
		g.AddNode(&ir.Load{Result: reg("t0"), Op0: ir.Global("p.g")}, "p.a", "a.go", 3),
		g.AddNode(&ir.Call{Result: ptr(reg("t1")), Func: ir.Global("p.open"), Args: []ir.Value{reg("t0")}}, "p.a", "a.go", 4),
		g.AddNode(&ir.Unary{Op: "extractvalue", Result: reg("t2"), Op0: reg("t1")}, "p.a", "a.go", 4),
		g.AddNode(&ir.Binary{Op: "add", Result: reg("t3"), Op0: reg("t2"), Op1: ir.ParseValue("1")}, "p.a", "a.go", 5),
		g.AddNode(&ir.Ret{Op0: ptr(reg("t3"))}, "p.a", "a.go", 5),
	}
	dugraph.Link(g, a)
	b := []*dugraph.Node{
		g.AddNode(&ir.Call{Result: ptr(reg("t0")), Func: ir.Global("p.open"), Args: []ir.Value{ir.Undef()}}, "p.b", "b.go", 9),
	}
	dugraph.Link(g, b)
	return g
}

func TestFindCallSites(t *testing.T) {
	g := program()
	assert.Equal(t, []int{1, 5}, FindCallSites(g, "p.open"))
	assert.Empty(t, FindCallSites(g, "p.close"))
}

func TestNeighborhoodAlternates(t *testing.T) {
	g := program()
	tests := []struct {
		depth int
		want  []int
	}{
		{1, []int{0, 1}},
		{2, []int{0, 1, 2}},
		{3, []int{0, 1, 2}},
		{4, []int{0, 1, 2, 3}},
		{6, []int{0, 1, 2, 3, 4}},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Neighborhood(g, 1, tc.depth), "depth %d", tc.depth)
	}
}

func TestNeighborhoodMonotone(t *testing.T) {
	g := program()
	prev := Neighborhood(g, 1, 0)
	assert.Equal(t, []int{1}, prev)
	for depth := 1; depth <= 8; depth++ {
		cur := Neighborhood(g, 1, depth)
		assert.Subset(t, cur, prev, "depth %d lost nodes", depth)
		assert.IsIncreasing(t, cur)
		prev = cur
	}
}

func TestNeighborhoodCycle(t *testing.T) {
	g := dugraph.New()
	nodes := []*dugraph.Node{
		g.AddNode(&ir.Phi{Result: reg("t1"), Incoming: []ir.Value{ir.ParseValue("0"), reg("t2")}}, "p.loop", "", 0),
		g.AddNode(&ir.Call{Result: ptr(reg("t2")), Func: ir.Global("p.step"), Args: []ir.Value{reg("t1")}}, "p.loop", "", 0),
	}
	dugraph.Link(g, nodes)
	assert.Equal(t, []int{0, 1}, Neighborhood(g, 1, 50))
}

func TestExtract(t *testing.T) {
	ex, err := NewExtractor(Options{Target: "p.open", Depth: 2}, nil)
	require.NoError(t, err)

	g := program()
	traces := ex.Extract(g, 3)
	require.Len(t, traces, 2)

	first := traces[0]
	assert.Equal(t, "p.open", first.TargetFunc)
	assert.Equal(t, 3, first.SliceID)
	assert.Equal(t, 0, first.TraceID)
	assert.Equal(t, 3, first.Graph.Len())
	assert.Equal(t, 1, first.Target)
	assert.Equal(t, ir.OpCall, first.TargetNode().Stmt.Opcode())
	assert.True(t, first.Graph.HasEdge(0, 1))
	assert.True(t, first.Graph.HasEdge(1, 2))

	second := traces[1]
	assert.Equal(t, 1, second.TraceID)
	assert.Equal(t, 1, second.Graph.Len())
	assert.Equal(t, 0, second.Target)
	assert.Equal(t, "p.b", second.TargetNode().Func)

	// extraction leaves the module graph intact
	assert.Equal(t, 6, g.Len())
}

func TestExtractCallers(t *testing.T) {
	opts := Options{Target: "p.open", Depth: 2, Callers: regexp.MustCompile(`^p\.b$`)}
	ex, err := NewExtractor(opts, nil)
	require.NoError(t, err)

	traces := ex.Extract(program(), 0)
	require.Len(t, traces, 1)
	assert.Equal(t, 0, traces[0].TraceID)
	assert.Equal(t, "p.b", traces[0].TargetNode().Func)
}

func TestExtractProgramUnknownFunction(t *testing.T) {
	ex, err := NewExtractor(Options{Target: "p.missing", Depth: 1}, nil)
	require.NoError(t, err)

	_, err = ex.ExtractProgram(program(), []string{"p.a", "p.b"}, 0)
	assert.True(t, errors.Is(err, ErrUnknownFunction))

	traces, err := ex.ExtractProgram(program(), []string{"p.a", "p.b", "p.missing"}, 0)
	require.NoError(t, err)
	assert.Empty(t, traces)
}

func TestExtractProgramDeclaredOnly(t *testing.T) {
	// p.open has call sites but no body, so it is not among the symbols
	ex, err := NewExtractor(Options{Target: "p.open", Depth: 1}, nil)
	require.NoError(t, err)

	traces, err := ex.ExtractProgram(program(), nil, 0)
	require.NoError(t, err)
	assert.Len(t, traces, 2)
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"empty target", Options{Depth: 5}},
		{"zero depth", Options{Target: "p.open"}},
		{"negative depth", Options{Target: "p.open", Depth: -1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewExtractor(tc.opts, nil)
			assert.True(t, errors.Is(err, ErrInvalidOptions))
		})
	}
}

func TestNewSlice(t *testing.T) {
	ex, err := NewExtractor(Options{Target: "p.open", Depth: DefaultDepth}, nil)
	require.NoError(t, err)
	traces := ex.Extract(program(), 2)

	sl := NewSlice("./...", 2, "p.open", traces)
	assert.Equal(t, "p.open", sl.Func)
	assert.Equal(t, 2, sl.SliceID)
	assert.Equal(t, 2, sl.Traces())
	assert.Equal(t, []Site{
		{TraceID: 0, Caller: "p.a", File: "a.go", Line: 4},
		{TraceID: 1, Caller: "p.b", File: "b.go", Line: 9},
	}, sl.Sites)

	site, ok := sl.Site(1)
	assert.True(t, ok)
	assert.Equal(t, "p.b", site.Caller)
	_, ok = sl.Site(7)
	assert.False(t, ok)
}
