package slicer

// Site locates the call site a trace was centered on.
type Site struct {
	TraceID int    `json:"trace_id"`
	Caller  string `json:"caller"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// Slice is the manifest record of one extraction unit: all traces of one
// target function taken from one input program.
type Slice struct {
	Func    string `json:"func"`
	SliceID int    `json:"slice_id"`
	Package string `json:"package"`
	Sites   []Site `json:"sites"`
}

// NewSlice summarizes traces extracted from pkg. Each site is read from
// the trace's target node, which keeps the enclosing function and position
// of the original call.
func NewSlice(pkg string, sliceID int, target string, traces []Trace) Slice {
	s := Slice{Func: target, SliceID: sliceID, Package: pkg, Sites: make([]Site, 0, len(traces))}
	for _, t := range traces {
		n := t.TargetNode()
		s.Sites = append(s.Sites, Site{TraceID: t.TraceID, Caller: n.Func, File: n.File, Line: n.Line})
	}
	return s
}

// Traces returns the number of traces the slice recorded.
func (s Slice) Traces() int { return len(s.Sites) }

// Site returns the site of the given trace.
func (s Slice) Site(traceID int) (Site, bool) {
	for _, site := range s.Sites {
		if site.TraceID == traceID {
			return site, true
		}
	}
	return Site{}, false
}
