package dugraph

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/l3aro/go-trace-slicer/internal/log"
	"github.com/l3aro/go-trace-slicer/pkg/ir"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// DefaultIntrinsicPattern matches debug/lifetime intrinsics. Functions with
// matching symbols contribute no nodes, and calls to them are dropped.
const DefaultIntrinsicPattern = `^(llvm\.(dbg|lifetime)\..*|runtime\.KeepAlive)$`

var defaultIntrinsics = regexp.MustCompile(DefaultIntrinsicPattern)

// Builder constructs def-use graphs from SSA functions.
type Builder struct {
	intrinsics *regexp.Regexp
	logger     log.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithIntrinsics replaces the intrinsic symbol pattern.
func WithIntrinsics(re *regexp.Regexp) Option {
	return func(b *Builder) {
		if re != nil {
			b.intrinsics = re
		}
	}
}

// WithLogger sets the logger used for per-function diagnostics.
func WithLogger(l log.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBuilder creates a builder with the given options.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		intrinsics: defaultIntrinsics,
		logger:     log.Discard(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// IsIntrinsic reports whether symbol names an intrinsic.
func (b *Builder) IsIntrinsic(symbol string) bool {
	return b.intrinsics.MatchString(symbol)
}

// Skip reports whether fn is excluded from graph construction: it has no
// body or it is an intrinsic.
func (b *Builder) Skip(fn *ssa.Function) bool {
	return fn.Blocks == nil || b.IsIntrinsic(fn.String())
}

// BuildFunction returns the def-use graph of one function. Skipped
// functions yield an empty graph.
func (b *Builder) BuildFunction(fn *ssa.Function) (*Graph, error) {
	g := New()
	if err := b.add(g, fn); err != nil {
		return nil, err
	}
	return g, nil
}

// BuildFunctions returns the disjoint union of the graphs of fns, visited in
// symbol order.
func (b *Builder) BuildFunctions(fns []*ssa.Function) (*Graph, error) {
	sorted := append([]*ssa.Function(nil), fns...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })

	g := New()
	for _, fn := range sorted {
		if err := b.add(g, fn); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// BuildProgram returns the graph of every function in prog.
func (b *Builder) BuildProgram(prog *ssa.Program) (*Graph, error) {
	all := ssautil.AllFunctions(prog)
	fns := make([]*ssa.Function, 0, len(all))
	for fn := range all {
		fns = append(fns, fn)
	}
	return b.BuildFunctions(fns)
}

// add appends fn's nodes and edges to g. Registers are function-local, so
// edges never cross the boundary of a single call to add.
func (b *Builder) add(g *Graph, fn *ssa.Function) error {
	if b.Skip(fn) {
		return nil
	}
	symbol := fn.String()

	var local []*Node
	for _, block := range fn.Blocks {
		for _, instr := range block.Instrs {
			stmt, err := ir.Encode(instr)
			if err != nil {
				return fmt.Errorf("encoding %s in %s: %w", instr, symbol, err)
			}
			if callee, ok := ir.Callee(stmt); ok && b.IsIntrinsic(callee) {
				continue
			}
			var file string
			var line int
			if pos := instr.Pos(); pos.IsValid() {
				p := fn.Prog.Fset.Position(pos)
				file, line = p.Filename, p.Line
			}
			local = append(local, g.AddNode(stmt, symbol, file, line))
		}
	}

	Link(g, local)
	b.logger.Debug("built function graph", "func", symbol, "nodes", len(local))
	return nil
}

// Link adds every def-use edge among nodes: a → b iff the value a defines
// is one of b's operands.
func Link(g *Graph, nodes []*Node) {
	defs := make(map[ir.Value][]int)
	for _, n := range nodes {
		if d, ok := n.Stmt.Defines(); ok {
			defs[d] = append(defs[d], n.ID)
		}
	}
	for _, n := range nodes {
		for _, u := range n.Stmt.Uses() {
			for _, d := range defs[u] {
				g.AddEdge(d, n.ID)
			}
		}
	}
}
