package dugraph

import (
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"github.com/l3aro/go-trace-slicer/pkg/ir"
	"github.com/l3aro/go-trace-slicer/pkg/loader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reg(name string) ir.Value { return ir.Register(name) }

func ptr(v ir.Value) *ir.Value { return &v }

// chain builds t0 = call f(); t1 = add t0, 1; ret t1.
func chain() *Graph {
	g := New()
	nodes := []*Node{
		g.AddNode(&ir.Call{Result: ptr(reg("t0")), Func: ir.Global("f"), Args: []ir.Value{}}, "p.main", "", 0),
		g.AddNode(&ir.Binary{Op: "add", Result: reg("t1"), Op0: reg("t0"), Op1: ir.ParseValue("1")}, "p.main", "", 0),
		g.AddNode(&ir.Ret{Op0: ptr(reg("t1"))}, "p.main", "", 0),
	}
	Link(g, nodes)
	return g
}

func TestLink(t *testing.T) {
	g := chain()

	assert.Equal(t, 3, g.Len())
	assert.Equal(t, 2, g.EdgeCount())
	assert.True(t, g.HasEdge(0, 1))
	assert.True(t, g.HasEdge(1, 2))
	assert.False(t, g.HasEdge(0, 2))
	assert.Equal(t, []int{1}, g.Succs(0))
	assert.Equal(t, []int{0}, g.Preds(1))
	assert.Equal(t, []Edge{{From: 0, To: 1}, {From: 1, To: 2}}, g.Edges())
}

func TestAddEdgeIdempotent(t *testing.T) {
	g := chain()
	assert.False(t, g.AddEdge(0, 1))
	assert.Equal(t, 2, g.EdgeCount())
	assert.Equal(t, []int{1}, g.Succs(0))

	assert.Panics(t, func() { g.AddEdge(0, 9) })
	assert.Nil(t, g.Node(9))
	assert.Nil(t, g.Node(-1))
}

func TestLinkIgnoresConstants(t *testing.T) {
	g := New()
	nodes := []*Node{
		// a statement whose result text collides with a constant use
		g.AddNode(&ir.Call{Result: ptr(reg("t0")), Func: ir.Global("f"), Args: []ir.Value{}}, "p.f", "", 0),
		g.AddNode(&ir.Call{Func: ir.Global("g"), Args: []ir.Value{ir.ParseValue("0"), ir.Global("t0")}}, "p.f", "", 0),
	}
	Link(g, nodes)
	assert.Equal(t, 0, g.EdgeCount())
}

func TestReachesPhiCycle(t *testing.T) {
	// t1 = phi [0, t2]; t2 = add t1, 1 forms a cycle.
	g := New()
	nodes := []*Node{
		g.AddNode(&ir.Phi{Result: reg("t1"), Incoming: []ir.Value{ir.ParseValue("0"), reg("t2")}}, "p.loop", "", 0),
		g.AddNode(&ir.Binary{Op: "add", Result: reg("t2"), Op0: reg("t1"), Op1: ir.ParseValue("1")}, "p.loop", "", 0),
	}
	Link(g, nodes)
	require.True(t, g.HasEdge(0, 1))
	require.True(t, g.HasEdge(1, 0))

	visits := 0
	found := Reaches(g, 0, Forward, func(n *Node) bool {
		visits++
		return false
	})
	assert.False(t, found)
	assert.Equal(t, 2, visits)
}

func TestReachesTestsStartFirst(t *testing.T) {
	g := chain()
	first := -1
	Reaches(g, 2, Backward, func(n *Node) bool {
		if first < 0 {
			first = n.ID
		}
		return false
	})
	assert.Equal(t, 2, first)
	assert.True(t, Reaches(g, 2, Backward, func(n *Node) bool { return n.ID == 0 }))
	assert.False(t, Reaches(g, 0, Backward, func(n *Node) bool { return n.ID == 2 }))
}

func TestSubgraph(t *testing.T) {
	g := chain()
	sub, remap := g.Subgraph([]int{1, 2})

	assert.Equal(t, 2, sub.Len())
	assert.Equal(t, map[int]int{1: 0, 2: 1}, remap)
	assert.True(t, sub.HasEdge(0, 1))
	assert.Equal(t, 1, sub.EdgeCount())
	assert.Equal(t, "add", sub.Node(0).Stmt.Opcode())

	// the source graph is untouched
	assert.Equal(t, 3, g.Len())
	assert.Equal(t, 2, g.EdgeCount())
}

func TestEncodeDecode(t *testing.T) {
	g := chain()
	data, err := json.Marshal(g)
	require.NoError(t, err)

	var wire struct {
		Vertices []json.RawMessage `json:"vertices"`
		Edges    [][2]int          `json:"edges"`
	}
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, [][2]int{{0, 1}, {1, 2}}, wire.Edges)

	back, err := Decode(wire.Vertices, wire.Edges)
	require.NoError(t, err)
	assert.Equal(t, g.Len(), back.Len())
	assert.Equal(t, g.Edges(), back.Edges())
	for i := 0; i < g.Len(); i++ {
		assert.Equal(t, g.Node(i).Stmt, back.Node(i).Stmt)
	}
}

func TestDecodeRejectsDanglingEdge(t *testing.T) {
	vertices := []json.RawMessage{json.RawMessage(`{"opcode":"ret","op0":null}`)}
	_, err := Decode(vertices, [][2]int{{0, 1}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ir.ErrMalformedInput))
}

const source = `package p

func keep(x int) {}

func compute(a int) int {
	b := a * 3
	keep(b)
	return b + 1
}

func loop(n int) int {
	s := 0
	for i := 0; i < n; i++ {
		s += i
	}
	return s
}
`

func TestBuildFunctions(t *testing.T) {
	prog, err := loader.FromSource("p.go", source)
	require.NoError(t, err)

	b := NewBuilder()
	g, err := b.BuildFunctions(prog.Functions())
	require.NoError(t, err)
	require.Greater(t, g.Len(), 0)

	// functions are laid out in symbol order and never share edges
	var funcs []string
	for _, n := range g.Nodes() {
		if len(funcs) == 0 || funcs[len(funcs)-1] != n.Func {
			funcs = append(funcs, n.Func)
		}
	}
	assert.IsIncreasing(t, funcs)
	for _, e := range g.Edges() {
		assert.Equal(t, g.Node(e.From).Func, g.Node(e.To).Func)
	}

	// every edge is a def-use pair
	for _, e := range g.Edges() {
		d, ok := g.Node(e.From).Stmt.Defines()
		require.True(t, ok)
		assert.Contains(t, g.Node(e.To).Stmt.Uses(), d)
	}

	var mul, call *Node
	for _, n := range g.Nodes() {
		switch s := n.Stmt.(type) {
		case *ir.Binary:
			if s.Op == "mul" {
				mul = n
			}
		case *ir.Call:
			if callee, _ := ir.Callee(s); callee == "p.keep" {
				call = n
			}
		}
	}
	require.NotNil(t, mul)
	require.NotNil(t, call)
	assert.True(t, g.HasEdge(mul.ID, call.ID))
	assert.Equal(t, "p.compute", call.Func)
	assert.Equal(t, "p.go", call.File)
	assert.Equal(t, 7, call.Line)
}

func TestBuildFunctionLoopHasPhiCycle(t *testing.T) {
	prog, err := loader.FromSource("p.go", source)
	require.NoError(t, err)

	var g *Graph
	for _, fn := range prog.Functions() {
		if fn.String() == "p.loop" {
			g, err = NewBuilder().BuildFunction(fn)
			require.NoError(t, err)
		}
	}
	require.NotNil(t, g)

	cyclic := false
	for _, n := range g.Nodes() {
		if _, ok := n.Stmt.(*ir.Phi); !ok {
			continue
		}
		start := n.ID
		if Reaches(g, start, Forward, func(m *Node) bool {
			return m.ID != start && g.HasEdge(m.ID, start)
		}) {
			cyclic = true
		}
	}
	assert.True(t, cyclic)
}

func TestBuilderSkipsIntrinsics(t *testing.T) {
	prog, err := loader.FromSource("p.go", source)
	require.NoError(t, err)

	b := NewBuilder(WithIntrinsics(regexp.MustCompile(`^p\.keep$`)))
	assert.True(t, b.IsIntrinsic("p.keep"))
	assert.False(t, b.IsIntrinsic("p.compute"))

	g, err := b.BuildFunctions(prog.Functions())
	require.NoError(t, err)
	for _, n := range g.Nodes() {
		assert.NotEqual(t, "p.keep", n.Func)
		callee, ok := ir.Callee(n.Stmt)
		assert.False(t, ok && callee == "p.keep", "call to intrinsic kept: %s", ir.Format(n.Stmt))
	}
}

func TestDefaultIntrinsics(t *testing.T) {
	b := NewBuilder()
	for _, sym := range []string{"llvm.dbg.declare", "llvm.lifetime.start.p0", "runtime.KeepAlive"} {
		assert.True(t, b.IsIntrinsic(sym), sym)
	}
	for _, sym := range []string{"llvm.memcpy", "runtime.GC", "os.Open"} {
		assert.False(t, b.IsIntrinsic(sym), sym)
	}
}

func TestDirectionString(t *testing.T) {
	assert.Equal(t, "backward", Backward.String())
	assert.Equal(t, "forward", Forward.String())
}
