// Package dugraph builds def-use graphs over normalized SSA statements.
//
// Nodes live in an arena and are addressed by their index. Node identity is
// the index alone: two nodes holding identical statements at different
// program points are different nodes. Phi statements admit loop-carried
// values, so graphs may contain cycles; every traversal in this package and
// its callers must track explored nodes.
package dugraph

import (
	"encoding/json"
	"fmt"

	"github.com/l3aro/go-trace-slicer/pkg/ir"
)

// Node is one statement at one program point.
type Node struct {
	ID   int
	Stmt ir.Statement
	Func string // enclosing function symbol
	File string
	Line int
}

// Edge connects a definition to one of its uses.
type Edge struct {
	From int
	To   int
}

// Graph is a directed def-use graph. Successor and predecessor lists keep
// insertion order.
type Graph struct {
	nodes []*Node
	succs [][]int
	preds [][]int
	edges map[Edge]struct{}
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{edges: make(map[Edge]struct{})}
}

// AddNode appends a node and returns it. The node's ID is its arena index.
func (g *Graph) AddNode(stmt ir.Statement, fn, file string, line int) *Node {
	n := &Node{ID: len(g.nodes), Stmt: stmt, Func: fn, File: file, Line: line}
	g.nodes = append(g.nodes, n)
	g.succs = append(g.succs, nil)
	g.preds = append(g.preds, nil)
	return n
}

// AddEdge inserts from → to. Adding an existing edge is a no-op; the
// return value reports whether the edge was new.
func (g *Graph) AddEdge(from, to int) bool {
	g.mustHave(from)
	g.mustHave(to)
	e := Edge{From: from, To: to}
	if _, ok := g.edges[e]; ok {
		return false
	}
	g.edges[e] = struct{}{}
	g.succs[from] = append(g.succs[from], to)
	g.preds[to] = append(g.preds[to], from)
	return true
}

func (g *Graph) mustHave(id int) {
	if id < 0 || id >= len(g.nodes) {
		panic(fmt.Sprintf("dugraph: node %d out of range [0,%d)", id, len(g.nodes)))
	}
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Node returns the node with the given ID, or nil.
func (g *Graph) Node(id int) *Node {
	if id < 0 || id >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}

// Nodes returns all nodes in ID order.
func (g *Graph) Nodes() []*Node {
	return append([]*Node(nil), g.nodes...)
}

// Succs returns the uses of the value node id defines.
func (g *Graph) Succs(id int) []int { return g.succs[id] }

// Preds returns the definitions node id uses.
func (g *Graph) Preds(id int) []int { return g.preds[id] }

// HasEdge reports whether from → to exists.
func (g *Graph) HasEdge(from, to int) bool {
	_, ok := g.edges[Edge{From: from, To: to}]
	return ok
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Edges returns every edge ordered by source ID, then by insertion order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for from, succs := range g.succs {
		for _, to := range succs {
			out = append(out, Edge{From: from, To: to})
		}
	}
	return out
}

// Subgraph copies the nodes in ids, in the given order, together with every
// edge between them. IDs are renumbered 0..len(ids)-1; the returned map
// translates original IDs to new ones. g is not modified.
func (g *Graph) Subgraph(ids []int) (*Graph, map[int]int) {
	sub := New()
	remap := make(map[int]int, len(ids))
	for _, id := range ids {
		if _, dup := remap[id]; dup {
			continue
		}
		n := g.nodes[id]
		remap[id] = sub.AddNode(n.Stmt, n.Func, n.File, n.Line).ID
	}
	for _, id := range ids {
		for _, to := range g.succs[id] {
			if nt, ok := remap[to]; ok {
				sub.AddEdge(remap[id], nt)
			}
		}
	}
	return sub, remap
}

type wireGraph struct {
	Vertices []json.RawMessage `json:"vertices"`
	Edges    [][2]int          `json:"edges"`
}

// MarshalJSON encodes the graph as a vertex list of statements and an edge
// list of [src, dst] index pairs.
func (g *Graph) MarshalJSON() ([]byte, error) {
	vertices, edges, err := g.Encode()
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireGraph{Vertices: vertices, Edges: edges})
}

// Encode returns the persisted vertex and edge lists.
func (g *Graph) Encode() ([]json.RawMessage, [][2]int, error) {
	vertices := make([]json.RawMessage, len(g.nodes))
	for i, n := range g.nodes {
		data, err := ir.MarshalStatement(n.Stmt)
		if err != nil {
			return nil, nil, fmt.Errorf("node %d: %w", i, err)
		}
		vertices[i] = data
	}
	edges := make([][2]int, 0, len(g.edges))
	for _, e := range g.Edges() {
		edges = append(edges, [2]int{e.From, e.To})
	}
	return vertices, edges, nil
}

// Decode rebuilds a graph from persisted vertex and edge lists. Edges that
// reference missing vertices yield ir.ErrMalformedInput.
func Decode(vertices []json.RawMessage, edges [][2]int) (*Graph, error) {
	g := New()
	for i, raw := range vertices {
		stmt, err := ir.UnmarshalStatement(raw)
		if err != nil {
			return nil, fmt.Errorf("vertex %d: %w", i, err)
		}
		g.AddNode(stmt, "", "", 0)
	}
	for _, e := range edges {
		if g.Node(e[0]) == nil || g.Node(e[1]) == nil {
			return nil, fmt.Errorf("%w: edge [%d,%d] out of range", ir.ErrMalformedInput, e[0], e[1])
		}
		g.AddEdge(e[0], e[1])
	}
	return g, nil
}
