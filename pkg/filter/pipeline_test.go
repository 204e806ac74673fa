package filter_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/l3aro/go-trace-slicer/pkg/dugraph"
	"github.com/l3aro/go-trace-slicer/pkg/filter"
	"github.com/l3aro/go-trace-slicer/pkg/idset"
	"github.com/l3aro/go-trace-slicer/pkg/loader"
	"github.com/l3aro/go-trace-slicer/pkg/slicer"
	"github.com/l3aro/go-trace-slicer/pkg/source"
	"github.com/l3aro/go-trace-slicer/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const program = `package p

var path = "a"

func open(name string) int { return len(name) }

func used() int {
	fd := open(path)
	return fd + 1
}

func ignored() {
	open("b")
}
`

// writeProgram puts the program on disk so call sites resolve to a real file.
func writeProgram(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "p.go")
	require.NoError(t, os.WriteFile(path, []byte(program), 0644))
	return path
}

// extract slices every call of p.open into a fresh store rooted at dir.
func extract(t *testing.T, dir, file string) *store.Store {
	t.Helper()
	prog, err := loader.FromSource(file, program)
	require.NoError(t, err)
	g, err := dugraph.NewBuilder().BuildFunctions(prog.Functions())
	require.NoError(t, err)

	ex, err := slicer.NewExtractor(slicer.Options{Target: "p.open", Depth: 3}, nil)
	require.NoError(t, err)
	st := store.New(dir)
	require.NoError(t, st.Init())
	sliceID, err := st.NextSliceID("p.open")
	require.NoError(t, err)
	traces, err := ex.ExtractProgram(g, prog.Symbols(), sliceID)
	require.NoError(t, err)
	require.Len(t, traces, 2)

	for i := range traces {
		require.NoError(t, st.SaveTrace(&traces[i]))
	}
	require.NoError(t, st.AddSlice(slicer.NewSlice("p", sliceID, "p.open", traces)))
	return st
}

// label grades the stored traces of p.open and returns the label bytes.
func label(t *testing.T, st *store.Store) ([]byte, filter.Report) {
	t.Helper()
	traces, err := st.LoadTraces("p.open")
	require.NoError(t, err)
	undersized, report, err := filter.Run(traces, filter.Options{})
	require.NoError(t, err)

	prev, err := idset.LoadLabel(st.LabelDir(), filter.UndersizedLabel)
	require.NoError(t, err)
	require.NoError(t, idset.Label(st.LabelDir(), filter.UndersizedLabel, filter.Relabel(prev, undersized, "p.open")))
	data, err := os.ReadFile(idset.LabelPath(st.LabelDir(), filter.UndersizedLabel))
	require.NoError(t, err)
	return data, report
}

func TestPipelineLabelsAreDeterministic(t *testing.T) {
	file := writeProgram(t)

	first, report := label(t, extract(t, t.TempDir(), file))
	assert.Equal(t, filter.Report{Total: 2, Kept: 1, Undersized: 1}, report)

	second, _ := label(t, extract(t, t.TempDir(), file))
	assert.Equal(t, first, second)

	// functions are built in symbol order, so p.ignored holds trace 0
	assert.Equal(t, []idset.ID{{Func: "p.open", SliceID: 0, TraceID: 0}}, readLabel(t, first).Sorted())
}

func TestPipelineRelabelIsStable(t *testing.T) {
	st := extract(t, t.TempDir(), writeProgram(t))
	first, _ := label(t, st)
	again, _ := label(t, st)
	assert.Equal(t, first, again)
}

func TestPipelineKeepsCallSitePositions(t *testing.T) {
	file := writeProgram(t)
	st := extract(t, t.TempDir(), file)

	tr, err := st.LoadTrace("p.open", 0, 0)
	require.NoError(t, err)
	target := tr.TargetNode()
	assert.Equal(t, "p.ignored", target.Func)
	assert.Equal(t, file, target.File)
	assert.Equal(t, 13, target.Line)

	decl, err := source.EnclosingFunction(target.File, target.Line)
	require.NoError(t, err)
	assert.Equal(t, "ignored", decl.Name)
	assert.Equal(t, 12, decl.StartLine)
}

func readLabel(t *testing.T, data []byte) idset.Set {
	t.Helper()
	dir := t.TempDir()
	path := idset.LabelPath(dir, "check")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
	s, err := idset.LoadLabel(dir, "check")
	require.NoError(t, err)
	return s
}
