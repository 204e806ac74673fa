// Package store reads and writes the on-disk trace database:
//
//	<root>/
//	  slices.json                                  manifest
//	  dugraphs/<func>/<slice_id>/<trace_id>.json   one trace per file
//	  dugraphs/_labels/<label>.json                label artifacts
//	  features/<func>/<slice_id>/<trace_id>.json   extracted trace features
//	  cache/graphs.msgpack                         module graph cache
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/l3aro/go-trace-slicer/pkg/dugraph"
	"github.com/l3aro/go-trace-slicer/pkg/ir"
	"github.com/l3aro/go-trace-slicer/pkg/slicer"
)

const (
	manifestFile = "slices.json"
	dugraphsDir  = "dugraphs"
	featuresDir  = "features"
	cacheDir     = "cache"
	cacheFile    = "graphs.msgpack"
)

// ErrTraceNotFound is returned when a requested trace file does not exist.
var ErrTraceNotFound = errors.New("trace not found")

// Store is a trace database rooted at a directory.
type Store struct {
	Root string
}

// New returns a store rooted at root. Nothing is created until Init.
func New(root string) *Store {
	return &Store{Root: root}
}

// Init creates the directory layout.
func (s *Store) Init() error {
	for _, dir := range []string{s.DugraphDir(), filepath.Join(s.Root, cacheDir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DugraphDir is the directory holding trace files and labels.
func (s *Store) DugraphDir() string { return filepath.Join(s.Root, dugraphsDir) }

// LabelDir is the directory passed to idset.Label and idset.LoadLabel.
func (s *Store) LabelDir() string { return s.DugraphDir() }

// FeatureDir is the directory holding feature files.
func (s *Store) FeatureDir() string { return filepath.Join(s.Root, featuresDir) }

// CachePath is the module graph cache file.
func (s *Store) CachePath() string { return filepath.Join(s.Root, cacheDir, cacheFile) }

// ManifestPath is the slice manifest file.
func (s *Store) ManifestPath() string { return filepath.Join(s.Root, manifestFile) }

// funcDir escapes a function symbol into a single path element. A leading
// underscore is escaped too, which keeps function directories apart from
// idset.LabelsDir.
func funcDir(fn string) string {
	dir := url.PathEscape(fn)
	if strings.HasPrefix(dir, "_") {
		dir = "%5F" + dir[1:]
	}
	return dir
}

// TracePath returns the file of one trace.
func (s *Store) TracePath(fn string, sliceID, traceID int) string {
	return filepath.Join(s.DugraphDir(), funcDir(fn), strconv.Itoa(sliceID), strconv.Itoa(traceID)+".json")
}

// FeaturePath returns the feature file of one trace.
func (s *Store) FeaturePath(fn string, sliceID, traceID int) string {
	return filepath.Join(s.FeatureDir(), funcDir(fn), strconv.Itoa(sliceID), strconv.Itoa(traceID)+".json")
}

type wireTrace struct {
	TargetFunc *string           `json:"target_func_name"`
	SliceID    *int              `json:"slice_id"`
	TraceID    *int              `json:"trace_id"`
	Target     *int              `json:"target"`
	Vertices   []json.RawMessage `json:"vertices"`
	Edges      [][2]int          `json:"edges"`
	Positions  []wirePosition    `json:"positions,omitempty"`
}

// wirePosition locates vertex i of the trace in the source program.
type wirePosition struct {
	Func string `json:"func"`
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
}

// MarshalTrace encodes t in the persisted form.
func MarshalTrace(t *slicer.Trace) ([]byte, error) {
	vertices, edges, err := t.Graph.Encode()
	if err != nil {
		return nil, err
	}
	positions := make([]wirePosition, 0, t.Graph.Len())
	for _, n := range t.Graph.Nodes() {
		positions = append(positions, wirePosition{Func: n.Func, File: n.File, Line: n.Line})
	}
	return json.MarshalIndent(wireTrace{
		TargetFunc: &t.TargetFunc,
		SliceID:    &t.SliceID,
		TraceID:    &t.TraceID,
		Target:     &t.Target,
		Vertices:   vertices,
		Edges:      edges,
		Positions:  positions,
	}, "", "  ")
}

// UnmarshalTrace decodes a persisted trace. Missing fields, a target outside
// the graph, a target that is not a call, or a position list that does not
// match the vertices yield ir.ErrMalformedInput.
func UnmarshalTrace(data []byte) (*slicer.Trace, error) {
	var w wireTrace
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: trace: %v", ir.ErrMalformedInput, err)
	}
	switch {
	case w.TargetFunc == nil:
		return nil, missing("target_func_name")
	case w.SliceID == nil:
		return nil, missing("slice_id")
	case w.TraceID == nil:
		return nil, missing("trace_id")
	case w.Target == nil:
		return nil, missing("target")
	case w.Vertices == nil:
		return nil, missing("vertices")
	case w.Edges == nil:
		return nil, missing("edges")
	}

	g, err := dugraph.Decode(w.Vertices, w.Edges)
	if err != nil {
		return nil, err
	}
	// positions are optional; when present there is one per vertex
	if w.Positions != nil {
		if len(w.Positions) != g.Len() {
			return nil, fmt.Errorf("%w: %d positions for %d vertices", ir.ErrMalformedInput, len(w.Positions), g.Len())
		}
		for i, pos := range w.Positions {
			n := g.Node(i)
			n.Func, n.File, n.Line = pos.Func, pos.File, pos.Line
		}
	}
	n := g.Node(*w.Target)
	if n == nil {
		return nil, fmt.Errorf("%w: target %d out of range", ir.ErrMalformedInput, *w.Target)
	}
	if _, ok := n.Stmt.(*ir.Call); !ok {
		return nil, fmt.Errorf("%w: target %d is %s, not a call", ir.ErrMalformedInput, *w.Target, n.Stmt.Opcode())
	}
	return &slicer.Trace{
		TargetFunc: *w.TargetFunc,
		SliceID:    *w.SliceID,
		TraceID:    *w.TraceID,
		Target:     *w.Target,
		Graph:      g,
	}, nil
}

func missing(field string) error {
	return fmt.Errorf("%w: trace: missing field %q", ir.ErrMalformedInput, field)
}

// SaveTrace writes one trace file.
func (s *Store) SaveTrace(t *slicer.Trace) error {
	data, err := MarshalTrace(t)
	if err != nil {
		return fmt.Errorf("encoding trace %s/%d/%d: %w", t.TargetFunc, t.SliceID, t.TraceID, err)
	}
	path := s.TracePath(t.TargetFunc, t.SliceID, t.TraceID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write trace %s: %w", path, err)
	}
	return nil
}

// LoadTrace reads one trace file.
func (s *Store) LoadTrace(fn string, sliceID, traceID int) (*slicer.Trace, error) {
	path := s.TracePath(fn, sliceID, traceID)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s/%d/%d", ErrTraceNotFound, fn, sliceID, traceID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read trace %s: %w", path, err)
	}
	t, err := UnmarshalTrace(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// LoadManifest reads the slice manifest. A missing manifest is empty.
func (s *Store) LoadManifest() ([]slicer.Slice, error) {
	data, err := os.ReadFile(s.ManifestPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var slices []slicer.Slice
	if err := json.Unmarshal(data, &slices); err != nil {
		return nil, fmt.Errorf("%w: manifest: %v", ir.ErrMalformedInput, err)
	}
	return slices, nil
}

// SaveManifest writes the manifest sorted by function, then slice ID.
func (s *Store) SaveManifest(slices []slicer.Slice) error {
	sorted := append([]slicer.Slice(nil), slices...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Func != sorted[j].Func {
			return sorted[i].Func < sorted[j].Func
		}
		return sorted[i].SliceID < sorted[j].SliceID
	})
	if sorted == nil {
		sorted = []slicer.Slice{}
	}

	data, err := json.MarshalIndent(sorted, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.MkdirAll(s.Root, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", s.Root, err)
	}
	if err := os.WriteFile(s.ManifestPath(), data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// AddSlice records sl in the manifest, replacing an existing record with
// the same function and slice ID.
func (s *Store) AddSlice(sl slicer.Slice) error {
	slices, err := s.LoadManifest()
	if err != nil {
		return err
	}
	out := slices[:0]
	for _, existing := range slices {
		if existing.Func != sl.Func || existing.SliceID != sl.SliceID {
			out = append(out, existing)
		}
	}
	return s.SaveManifest(append(out, sl))
}

// NextSliceID returns one past the highest slice ID recorded for fn.
func (s *Store) NextSliceID(fn string) (int, error) {
	slices, err := s.LoadManifest()
	if err != nil {
		return 0, err
	}
	next := 0
	for _, sl := range slices {
		if sl.Func == fn && sl.SliceID >= next {
			next = sl.SliceID + 1
		}
	}
	return next, nil
}

// LoadTraces reads every trace the manifest lists for fn, in manifest
// order. An empty fn loads the traces of every function.
func (s *Store) LoadTraces(fn string) ([]slicer.Trace, error) {
	slices, err := s.LoadManifest()
	if err != nil {
		return nil, err
	}
	var traces []slicer.Trace
	for _, sl := range slices {
		if fn != "" && sl.Func != fn {
			continue
		}
		for _, site := range sl.Sites {
			t, err := s.LoadTrace(sl.Func, sl.SliceID, site.TraceID)
			if err != nil {
				return nil, err
			}
			traces = append(traces, *t)
		}
	}
	return traces, nil
}

// SaveFeatures writes the features of one trace as JSON.
func (s *Store) SaveFeatures(fn string, sliceID, traceID int, features interface{}) error {
	data, err := json.MarshalIndent(features, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding features %s/%d/%d: %w", fn, sliceID, traceID, err)
	}
	path := s.FeaturePath(fn, sliceID, traceID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write features %s: %w", path, err)
	}
	return nil
}

// LoadFeatures decodes the feature file of one trace into v.
func (s *Store) LoadFeatures(fn string, sliceID, traceID int, v interface{}) error {
	path := s.FeaturePath(fn, sliceID, traceID)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: features of %s/%d/%d", ErrTraceNotFound, fn, sliceID, traceID)
	}
	if err != nil {
		return fmt.Errorf("failed to read features %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ir.ErrMalformedInput, path, err)
	}
	return nil
}

// Count is the number of slices and traces recorded for one function.
type Count struct {
	Func   string `json:"func"`
	Slices int    `json:"slices"`
	Traces int    `json:"traces"`
}

// Counts tallies the manifest per function, sorted by function. An empty fn
// counts every function.
func (s *Store) Counts(fn string) ([]Count, error) {
	slices, err := s.LoadManifest()
	if err != nil {
		return nil, err
	}
	index := make(map[string]int)
	var counts []Count
	for _, sl := range slices {
		if fn != "" && sl.Func != fn {
			continue
		}
		i, ok := index[sl.Func]
		if !ok {
			i = len(counts)
			index[sl.Func] = i
			counts = append(counts, Count{Func: sl.Func})
		}
		counts[i].Slices++
		counts[i].Traces += sl.Traces()
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Func < counts[j].Func })
	return counts, nil
}
