// Package cache keeps built module graphs between runs. Entries are keyed
// by a content hash of the source files a graph was built from and are
// persisted with msgpack.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/l3aro/go-trace-slicer/pkg/dugraph"
	"github.com/l3aro/go-trace-slicer/pkg/ir"
	"github.com/vmihailenco/msgpack/v5"
)

// formatVersion is mixed into every key so that entries written by an
// incompatible encoder are never reused.
const formatVersion = "gts-graph-v1"

// DefaultMaxEntries bounds the number of cached graphs.
const DefaultMaxEntries = 16

// NodeRecord is the persisted form of one graph node.
type NodeRecord struct {
	Stmt []byte `msgpack:"stmt"` // statement JSON
	Func string `msgpack:"func"`
	File string `msgpack:"file"`
	Line int    `msgpack:"line"`
}

// Entry is one cached module graph together with the function symbols of
// the program it was built from.
type Entry struct {
	Key        string       `msgpack:"key"`
	Nodes      []NodeRecord `msgpack:"nodes"`
	Edges      [][2]int     `msgpack:"edges"`
	Symbols    []string     `msgpack:"symbols"`
	CreatedAt  int64        `msgpack:"created_at"`
	AccessedAt int64        `msgpack:"accessed_at"`
}

// NewEntry snapshots g.
func NewEntry(key string, g *dugraph.Graph, symbols []string) (*Entry, error) {
	e := &Entry{
		Key:       key,
		Nodes:     make([]NodeRecord, 0, g.Len()),
		Edges:     make([][2]int, 0, g.EdgeCount()),
		Symbols:   append([]string(nil), symbols...),
		CreatedAt: time.Now().Unix(),
	}
	for _, n := range g.Nodes() {
		stmt, err := ir.MarshalStatement(n.Stmt)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", n.ID, err)
		}
		e.Nodes = append(e.Nodes, NodeRecord{Stmt: stmt, Func: n.Func, File: n.File, Line: n.Line})
	}
	for _, edge := range g.Edges() {
		e.Edges = append(e.Edges, [2]int{edge.From, edge.To})
	}
	return e, nil
}

// Graph rebuilds the cached graph.
func (e *Entry) Graph() (*dugraph.Graph, error) {
	g := dugraph.New()
	for i, rec := range e.Nodes {
		stmt, err := ir.UnmarshalStatement(rec.Stmt)
		if err != nil {
			return nil, fmt.Errorf("cached node %d: %w", i, err)
		}
		g.AddNode(stmt, rec.Func, rec.File, rec.Line)
	}
	for _, edge := range e.Edges {
		if g.Node(edge[0]) == nil || g.Node(edge[1]) == nil {
			return nil, fmt.Errorf("%w: cached edge [%d,%d] out of range", ir.ErrMalformedInput, edge[0], edge[1])
		}
		g.AddEdge(edge[0], edge[1])
	}
	return g, nil
}

// GraphCache is an LRU cache of module graphs with msgpack persistence.
// It is not safe for concurrent use.
type GraphCache struct {
	items    map[string]*listItem
	lru      *list
	maxSize  int
	hits     int64
	misses   int64
	modified bool
}

// listItem is an item in the doubly-linked list.
type listItem struct {
	*Entry
	prev *listItem
	next *listItem
}

// list represents a doubly-linked list.
type list struct {
	head *listItem // most recently accessed
	tail *listItem // least recently accessed
	len  int
}

func (l *list) unlink(item *listItem) {
	if item.prev != nil {
		item.prev.next = item.next
	} else {
		l.head = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	} else {
		l.tail = item.prev
	}
	item.prev, item.next = nil, nil
	l.len--
}

func (l *list) pushFront(item *listItem) {
	item.next = l.head
	item.prev = nil
	if l.head != nil {
		l.head.prev = item
	}
	l.head = item
	if l.tail == nil {
		l.tail = item
	}
	l.len++
}

func (l *list) moveToFront(item *listItem) {
	if item == l.head {
		return
	}
	l.unlink(item)
	l.pushFront(item)
}

// New creates a cache holding at most maxSize graphs. A non-positive
// maxSize selects DefaultMaxEntries.
func New(maxSize int) *GraphCache {
	if maxSize <= 0 {
		maxSize = DefaultMaxEntries
	}
	return &GraphCache{
		items:   make(map[string]*listItem),
		lru:     &list{},
		maxSize: maxSize,
	}
}

// Get returns the entry stored under key.
func (c *GraphCache) Get(key string) (*Entry, bool) {
	item, found := c.items[key]
	if !found {
		c.misses++
		return nil, false
	}
	c.hits++
	item.AccessedAt = time.Now().Unix()
	c.lru.moveToFront(item)
	return item.Entry, true
}

// Put stores an entry, evicting the least recently used one when full.
func (c *GraphCache) Put(e *Entry) {
	c.modified = true
	e.AccessedAt = time.Now().Unix()
	if item, exists := c.items[e.Key]; exists {
		item.Entry = e
		c.lru.moveToFront(item)
		return
	}
	item := &listItem{Entry: e}
	c.items[e.Key] = item
	c.lru.pushFront(item)
	for c.lru.len > c.maxSize {
		oldest := c.lru.tail
		c.lru.unlink(oldest)
		delete(c.items, oldest.Key)
	}
}

// Delete removes a key from the cache.
func (c *GraphCache) Delete(key string) {
	item, found := c.items[key]
	if !found {
		return
	}
	c.lru.unlink(item)
	delete(c.items, key)
	c.modified = true
}

// Len returns the number of entries in the cache.
func (c *GraphCache) Len() int {
	return len(c.items)
}

// Modified reports whether entries were added or removed since the cache
// was created or loaded.
func (c *GraphCache) Modified() bool {
	return c.modified
}

// Stats returns the hit and miss counts.
func (c *GraphCache) Stats() (hits, misses int64) {
	return c.hits, c.misses
}

// Save persists the cache to a writer using msgpack, most recent first.
func (c *GraphCache) Save(w io.Writer) error {
	entries := make([]*Entry, 0, len(c.items))
	for item := c.lru.head; item != nil; item = item.next {
		entries = append(entries, item.Entry)
	}
	return msgpack.NewEncoder(w).Encode(entries)
}

// Load restores the cache from a reader using msgpack.
func (c *GraphCache) Load(r io.Reader) error {
	var entries []*Entry
	if err := msgpack.NewDecoder(r).Decode(&entries); err != nil {
		return fmt.Errorf("failed to decode cache: %w", err)
	}

	c.items = make(map[string]*listItem)
	c.lru = &list{}
	c.modified = false
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i] == nil {
			continue
		}
		item := &listItem{Entry: entries[i]}
		c.items[item.Key] = item
		c.lru.pushFront(item)
	}
	for c.lru.len > c.maxSize {
		oldest := c.lru.tail
		c.lru.unlink(oldest)
		delete(c.items, oldest.Key)
	}
	return nil
}

// SaveFile writes the cache to path, creating parent directories.
func (c *GraphCache) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer f.Close()
	return c.Save(f)
}

// LoadFile loads the cache from path. A missing file leaves it empty.
func (c *GraphCache) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	defer f.Close()
	return c.Load(f)
}

// HashFiles computes a cache key from the contents of paths and any extra
// strings that affect how a graph is built. The order of paths does not
// matter.
func HashFiles(paths []string, extra ...string) (string, error) {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	hasher := sha256.New()
	io.WriteString(hasher, formatVersion)
	for _, s := range extra {
		fmt.Fprintf(hasher, "\x00%s", s)
	}
	for _, path := range sorted {
		sum, err := computeHash(path)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(hasher, "\x00%s\x00%s", path, sum)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// computeHash computes SHA256 hash of file contents.
func computeHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("failed to hash file %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
