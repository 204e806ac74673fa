package features

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/l3aro/go-trace-slicer/pkg/dugraph"
	"github.com/l3aro/go-trace-slicer/pkg/ir"
	"github.com/l3aro/go-trace-slicer/pkg/loader"
	"github.com/l3aro/go-trace-slicer/pkg/slicer"
	"github.com/l3aro/go-trace-slicer/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reg(name string) ir.Value { return ir.Register(name) }

func ptr(v ir.Value) *ir.Value { return &v }

func trace(target int, stmts ...ir.Statement) *slicer.Trace {
	g := dugraph.New()
	nodes := make([]*dugraph.Node, len(stmts))
	for i, s := range stmts {
		nodes[i] = g.AddNode(s, "p.main", "main.go", i+1)
	}
	dugraph.Link(g, nodes)
	return &slicer.Trace{TargetFunc: "os.Open", Target: target, Graph: g}
}

func TestExtractCheckedResult(t *testing.T) {
	tr := trace(1,
		&ir.Call{Result: ptr(reg("t0")), Func: ir.Global("p.lookup")},
		&ir.Call{Result: ptr(reg("t1")), Func: ir.Global("os.Open"), Args: []ir.Value{reg("t0"), ir.ParseValue("1")}},
		&ir.Unary{Op: "extractvalue", Result: reg("t2"), Op0: reg("t1")},
		&ir.Assume{Op: ir.OpICmp, Predicate: "eq", Result: reg("t3"), Op0: reg("t2"), Op1: ir.Null()},
		&ir.Br{Cond: ptr(reg("t3"))},
		&ir.Call{Func: ir.Global("p.log"), Args: []ir.Value{reg("t2")}},
		&ir.Store{Op0: reg("t2"), Op1: ir.Global("p.last")},
		&ir.Ret{Op0: ptr(reg("t2"))},
	)

	got, err := All().Extract(tr)
	require.NoError(t, err)
	assert.Equal(t, Features{
		"ret.check": ReturnCheckFeature{
			Used:     true,
			Returned: true,
			Stored:   true,
			PassedTo: []string{"p.log"},
			Check:    Check{Checked: true, Predicate: "eq", AgainstConst: true, AgainstNull: true, Branch: true},
		},
		"arg.0.pre": ArgPreconditionFeature{DefinedBy: "call", Source: "p.lookup"},
		"arg.1.pre": ArgPreconditionFeature{Const: true},
	}, got)
}

func TestExtractVoidCall(t *testing.T) {
	tr := trace(2,
		&ir.Load{Result: reg("t0"), Op0: ir.Global("p.path")},
		&ir.Phi{Result: reg("t1"), Incoming: []ir.Value{reg("t0"), ir.ParseValue(`"b"`)}},
		&ir.Call{Func: ir.Global("os.Remove"), Args: []ir.Value{reg("t0"), reg("t1"), ir.Null()}},
	)

	got, err := All().Extract(tr)
	require.NoError(t, err)
	assert.NotContains(t, got, "ret.check")
	assert.Equal(t, ArgPreconditionFeature{DefinedBy: "load", Source: "p.path"}, got["arg.0.pre"])
	assert.Equal(t, ArgPreconditionFeature{DefinedBy: "phi", Merged: true}, got["arg.1.pre"])
	assert.Equal(t, ArgPreconditionFeature{Const: true, Null: true}, got["arg.2.pre"])
	assert.NotContains(t, got, "arg.3.pre")
}

func TestExtractParameterArgument(t *testing.T) {
	tr := trace(0,
		&ir.Call{Result: ptr(reg("t0")), Func: ir.Global("os.Open"), Args: []ir.Value{reg(ir.ParamPrefix + "name")}},
	)
	got, err := All().Extract(tr)
	require.NoError(t, err)
	assert.Equal(t, ReturnCheckFeature{}, got["ret.check"])
	assert.Equal(t, ArgPreconditionFeature{}, got["arg.0.pre"])
}

func TestExtractComparedOperandOrder(t *testing.T) {
	// the result may be the right-hand operand
	tr := trace(0,
		&ir.Call{Result: ptr(reg("t0")), Func: ir.Global("os.Open")},
		&ir.Assume{Op: ir.OpICmp, Predicate: "slt", Result: reg("t1"), Op0: reg("limit"), Op1: reg("t0")},
	)
	got, err := All().Extract(tr)
	require.NoError(t, err)
	f := got["ret.check"].(ReturnCheckFeature)
	assert.True(t, f.Checked)
	assert.Equal(t, "slt", f.Predicate)
	assert.False(t, f.AgainstConst)
	assert.False(t, f.Branch)
}

func TestExtractMalformed(t *testing.T) {
	tr := trace(0, &ir.Load{Result: reg("t0"), Op0: ir.Global("p.path")})
	_, err := All().Extract(tr)
	assert.True(t, errors.Is(err, ir.ErrMalformedInput))

	tr.Target = 5
	_, err = All().Extract(tr)
	assert.True(t, errors.Is(err, ir.ErrMalformedInput))
}

func TestAllNames(t *testing.T) {
	var names []string
	for _, e := range All() {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"ret.check", "arg.0.pre", "arg.1.pre", "arg.2.pre", "arg.3.pre"}, names)
}

const program = `package p

func lookup() string { return "a" }

func open(name string) int { return len(name) }

func guarded() int {
	fd := open(lookup())
	if fd < 0 {
		return 0
	}
	return fd
}

func careless() {
	open("b")
}
`

func TestExtractStoredTraces(t *testing.T) {
	file := filepath.Join(t.TempDir(), "p.go")
	require.NoError(t, os.WriteFile(file, []byte(program), 0644))
	prog, err := loader.FromSource(file, program)
	require.NoError(t, err)
	g, err := dugraph.NewBuilder().BuildFunctions(prog.Functions())
	require.NoError(t, err)

	ex, err := slicer.NewExtractor(slicer.Options{Target: "p.open", Depth: 5}, nil)
	require.NoError(t, err)
	traces, err := ex.ExtractProgram(g, prog.Symbols(), 0)
	require.NoError(t, err)
	require.Len(t, traces, 2)

	st := store.New(t.TempDir())
	for i := range traces {
		require.NoError(t, st.SaveTrace(&traces[i]))
	}

	// functions are built in symbol order: p.careless, then p.guarded
	careless, err := st.LoadTrace("p.open", 0, 0)
	require.NoError(t, err)
	got, err := All().Extract(careless)
	require.NoError(t, err)
	assert.Equal(t, ReturnCheckFeature{}, got["ret.check"])
	assert.Equal(t, ArgPreconditionFeature{Const: true}, got["arg.0.pre"])

	guarded, err := st.LoadTrace("p.open", 0, 1)
	require.NoError(t, err)
	got, err = All().Extract(guarded)
	require.NoError(t, err)
	assert.Equal(t, ReturnCheckFeature{
		Used:     true,
		Returned: true,
		Check:    Check{Checked: true, Predicate: "slt", AgainstConst: true, AgainstNull: true, Branch: true},
	}, got["ret.check"])
	assert.Equal(t, ArgPreconditionFeature{DefinedBy: "call", Source: "p.lookup"}, got["arg.0.pre"])

	require.NoError(t, st.SaveFeatures("p.open", 0, 1, got))
	var back map[string]map[string]interface{}
	require.NoError(t, st.LoadFeatures("p.open", 0, 1, &back))
	assert.Equal(t, true, back["ret.check"]["checked"])
	assert.Equal(t, "p.lookup", back["arg.0.pre"]["source"])
}

type recorder struct {
	saved []string
	fail  error
}

func (r *recorder) SaveFeatures(fn string, sliceID, traceID int, features interface{}) error {
	if r.fail != nil {
		return r.fail
	}
	r.saved = append(r.saved, fmt.Sprintf("%s/%d/%d", fn, sliceID, traceID))
	return nil
}

func TestRun(t *testing.T) {
	withResult := trace(0, &ir.Call{Result: ptr(reg("t0")), Func: ir.Global("os.Open"), Args: []ir.Value{ir.ParseValue(`"a"`)}})
	void := trace(0, &ir.Call{Func: ir.Global("os.Open")})
	void.TraceID = 1

	var w recorder
	report, err := All().Run([]slicer.Trace{*withResult, *void}, &w)
	require.NoError(t, err)
	assert.Equal(t, Report{Traces: 2, Applied: map[string]int{"ret.check": 1, "arg.0.pre": 1}}, report)
	assert.Equal(t, []string{"os.Open/0/0", "os.Open/0/1"}, w.saved)

	broken := trace(0, &ir.Ret{})
	_, err = All().Run([]slicer.Trace{*withResult, *broken}, &w)
	assert.True(t, errors.Is(err, ir.ErrMalformedInput))

	full := errors.New("disk full")
	_, err = All().Run([]slicer.Trace{*withResult}, &recorder{fail: full})
	assert.ErrorIs(t, err, full)
}
