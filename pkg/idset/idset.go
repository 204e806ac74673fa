// Package idset implements the persisted set of (function, slice, trace)
// identifiers used to record labels.
package idset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/l3aro/go-trace-slicer/pkg/ir"
)

// ID identifies one trace.
type ID struct {
	Func    string `json:"func"`
	SliceID int    `json:"slice_id"`
	TraceID int    `json:"trace_id"`
}

func (id ID) String() string {
	return fmt.Sprintf("%s/%d/%d", id.Func, id.SliceID, id.TraceID)
}

func (id ID) less(o ID) bool {
	if id.Func != o.Func {
		return id.Func < o.Func
	}
	if id.SliceID != o.SliceID {
		return id.SliceID < o.SliceID
	}
	return id.TraceID < o.TraceID
}

// Set is an immutable set of IDs. Add and Union return new sets and leave
// their receivers unchanged. The zero value is the empty set.
type Set struct {
	ids map[ID]struct{}
}

// Empty returns the empty set.
func Empty() Set { return Set{} }

// Of returns the set holding ids.
func Of(ids ...ID) Set {
	s := Set{ids: make(map[ID]struct{}, len(ids))}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

// Add returns s with the given identifier added. Adding an identifier that
// is already present returns an equal set.
func (s Set) Add(fn string, sliceID, traceID int) Set {
	id := ID{Func: fn, SliceID: sliceID, TraceID: traceID}
	if s.Contains(id) {
		return s
	}
	next := s.clone(len(s.ids) + 1)
	next.ids[id] = struct{}{}
	return next
}

// Union returns the identifiers in s or o.
func (s Set) Union(o Set) Set {
	next := s.clone(len(s.ids) + len(o.ids))
	for id := range o.ids {
		next.ids[id] = struct{}{}
	}
	return next
}

func (s Set) clone(capacity int) Set {
	next := Set{ids: make(map[ID]struct{}, capacity)}
	for id := range s.ids {
		next.ids[id] = struct{}{}
	}
	return next
}

// Builder accumulates identifiers in place. The zero value is ready to use.
// A Builder must not be copied after first use.
type Builder struct {
	ids map[ID]struct{}
}

// Add inserts the identifier. Adding an existing identifier is a no-op.
func (b *Builder) Add(fn string, sliceID, traceID int) {
	b.AddID(ID{Func: fn, SliceID: sliceID, TraceID: traceID})
}

// AddID inserts id.
func (b *Builder) AddID(id ID) {
	if b.ids == nil {
		b.ids = make(map[ID]struct{})
	}
	b.ids[id] = struct{}{}
}

// AddSet inserts every identifier of s.
func (b *Builder) AddSet(s Set) {
	for id := range s.ids {
		b.AddID(id)
	}
}

// Len returns the number of identifiers added so far.
func (b *Builder) Len() int { return len(b.ids) }

// Set returns the accumulated set and resets the builder, so later adds
// never reach the returned set.
func (b *Builder) Set() Set {
	s := Set{ids: b.ids}
	b.ids = nil
	return s
}

// Contains reports whether id is in s.
func (s Set) Contains(id ID) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of identifiers.
func (s Set) Len() int { return len(s.ids) }

// Equal reports whether s and o hold the same identifiers.
func (s Set) Equal(o Set) bool {
	if len(s.ids) != len(o.ids) {
		return false
	}
	for id := range s.ids {
		if !o.Contains(id) {
			return false
		}
	}
	return true
}

// Sorted returns the identifiers ordered by function, slice, then trace.
func (s Set) Sorted() []ID {
	out := make([]ID, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}

// LabelsDir is the subdirectory of a label root holding label artifacts.
const LabelsDir = "_labels"

// LabelPath returns the path of the named label artifact under dir.
func LabelPath(dir, name string) string {
	return filepath.Join(dir, LabelsDir, name+".json")
}

// Marshal encodes s as a sorted, indented JSON array. Equal sets always
// encode to identical bytes.
func (s Set) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.Sorted()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Label persists s as the named label artifact under dir, replacing any
// previous artifact of that name.
func Label(dir, name string, s Set) error {
	if name == "" {
		return fmt.Errorf("label name is required")
	}
	data, err := s.Marshal()
	if err != nil {
		return fmt.Errorf("encoding label %s: %w", name, err)
	}

	path := LabelPath(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write label %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to write label %s: %w", name, err)
	}
	return nil
}

// LoadLabel reads the named label artifact under dir. A missing artifact is
// the empty set.
func LoadLabel(dir, name string) (Set, error) {
	data, err := os.ReadFile(LabelPath(dir, name))
	if os.IsNotExist(err) {
		return Empty(), nil
	}
	if err != nil {
		return Set{}, fmt.Errorf("failed to read label %s: %w", name, err)
	}
	var ids []ID
	if err := json.Unmarshal(data, &ids); err != nil {
		return Set{}, fmt.Errorf("%w: label %s: %v", ir.ErrMalformedInput, name, err)
	}
	return Of(ids...), nil
}
