// Package vectorindex implements the persistent approximate
// nearest-neighbor store shared by the four logical pattern indices
// (attack-patterns, coherence, audit-coherence, clean-reference): a single-layer
// navigable small-world graph over cosine distance, with a frozen
// per-node degree bound and atomic on-disk persistence.
package vectorindex

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/natefinch/atomic"
)

// Params are the HNSW-style construction parameters. M is frozen at
// creation: reopening a persisted index with a different M is an
// error.
type Params struct {
	M              int
	EfConstruction int
	EfSearch       int
	MaxElements    int
}

// PatternEntry is a single indexed pattern: a unit-length vector plus
// free-form metadata. Entries are never updated in place.
type PatternEntry struct {
	ID       string
	Vector   []float64
	Metadata map[string]string
}

// SearchResult is one nearest-neighbor hit.
type SearchResult struct {
	ID       string
	Distance float64
	Metadata map[string]string
}

type node struct {
	entry     PatternEntry
	neighbors []string
}

// Index is a single logical pattern store. It is safe for concurrent
// use.
type Index struct {
	mu     sync.RWMutex
	path   string
	dim    int
	params Params

	nodes      map[string]*node
	entryPoint string
}

// Open opens the index at path, or creates a new empty one if path is
// empty or does not yet exist. Reopening an existing index with a
// different dim or M is an error; every other field of params may
// change between opens (they only bound construction/search cost, not
// the graph's invariants).
func Open(path string, dim int, params Params) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("vectorindex: dim %d: %w", dim, ErrInvalidDimension)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return openExisting(path, dim, params)
		}
	}

	return &Index{
		path:   path,
		dim:    dim,
		params: params,
		nodes:  make(map[string]*node),
	}, nil
}

func openExisting(path string, dim int, params Params) (*Index, error) {
	img, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	if img.Dim != dim {
		return nil, fmt.Errorf("vectorindex: on-disk dim %d vs requested %d: %w", img.Dim, dim, ErrDimensionMismatch)
	}
	if img.Params.M != params.M {
		return nil, fmt.Errorf("vectorindex: on-disk m=%d vs requested m=%d: %w", img.Params.M, params.M, ErrFrozenParameterMismatch)
	}

	idx := &Index{
		path:       path,
		dim:        dim,
		params:     params,
		nodes:      make(map[string]*node, len(img.Nodes)),
		entryPoint: img.EntryPoint,
	}
	for _, sn := range img.Nodes {
		idx.nodes[sn.Entry.ID] = &node{entry: sn.Entry, neighbors: sn.Neighbors}
	}
	return idx, nil
}

// OpenOrEmpty opens the index at path, degrading to an empty,
// in-memory index on any error instead of propagating it. A missing
// or unopenable pattern store is "zero known patterns", not a startup
// failure.
func OpenOrEmpty(path string, dim int, params Params) *Index {
	idx, err := Open(path, dim, params)
	if err != nil {
		slog.Warn("vectorindex: treating unopenable index as empty", "path", path, "error", err)
		return &Index{dim: dim, params: params, nodes: make(map[string]*node)}
	}
	return idx
}

// Insert adds entry to the graph, connecting it to its M nearest
// existing neighbors and pruning any neighbor whose degree now
// exceeds M.
func (idx *Index) Insert(entry PatternEntry) error {
	if len(entry.Vector) != idx.dim {
		return fmt.Errorf("vectorindex: entry %q dim %d vs index dim %d: %w", entry.ID, len(entry.Vector), idx.dim, ErrDimensionMismatch)
	}
	if entry.ID == "" {
		return ErrEmptyID
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.nodes[entry.ID]; exists {
		return fmt.Errorf("vectorindex: id %q: %w", entry.ID, ErrDuplicateID)
	}
	if idx.params.MaxElements > 0 && len(idx.nodes) >= idx.params.MaxElements {
		return ErrMaxElements
	}

	n := &node{entry: entry}

	if idx.entryPoint == "" {
		idx.nodes[entry.ID] = n
		idx.entryPoint = entry.ID
		return nil
	}

	candidates := idx.searchLayer(entry.Vector, idx.params.EfConstruction, "")
	if m := idx.params.M; len(candidates) > m {
		candidates = candidates[:m]
	}

	idx.nodes[entry.ID] = n
	for _, c := range candidates {
		n.neighbors = append(n.neighbors, c.id)
		nb := idx.nodes[c.id]
		nb.neighbors = append(nb.neighbors, entry.ID)
		idx.pruneNeighbors(nb)
	}
	return nil
}

// Search returns up to k nearest neighbors of query, ordered by
// ascending cosine distance. k is clamped to efSearch: the search
// never explores more than efSearch candidates, so it cannot return
// more than that regardless of the requested k.
func (idx *Index) Search(query []float64, k int) ([]SearchResult, error) {
	if len(query) != idx.dim {
		return nil, fmt.Errorf("vectorindex: query dim %d vs index dim %d: %w", len(query), idx.dim, ErrDimensionMismatch)
	}
	if k > idx.params.EfSearch {
		k = idx.params.EfSearch
	}
	if k <= 0 {
		return nil, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.nodes) == 0 {
		return nil, nil
	}

	cands := idx.searchLayer(query, idx.params.EfSearch, "")
	if len(cands) > k {
		cands = cands[:k]
	}

	out := make([]SearchResult, len(cands))
	for i, c := range cands {
		n := idx.nodes[c.id]
		out[i] = SearchResult{ID: c.id, Distance: c.dist, Metadata: n.entry.Metadata}
	}
	return out, nil
}

// Len reports the number of entries currently in the index.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.nodes)
}

// Close persists the index to disk, if it has a path, and releases no
// further resources (the index holds no file descriptors while
// open).
func (idx *Index) Close() error {
	return idx.Save()
}

type fileImage struct {
	Dim        int
	Params     Params
	EntryPoint string
	Nodes      []storedNode
}

type storedNode struct {
	Entry     PatternEntry
	Neighbors []string
}

// Save writes the index to its configured path via an atomic
// rename-based write, so a crash mid-write cannot corrupt the file a
// subsequent Open would read.
func (idx *Index) Save() error {
	if idx.path == "" {
		return nil
	}

	idx.mu.RLock()
	img := fileImage{Dim: idx.dim, Params: idx.params, EntryPoint: idx.entryPoint}
	for _, n := range idx.nodes {
		img.Nodes = append(img.Nodes, storedNode{Entry: n.entry, Neighbors: n.neighbors})
	}
	idx.mu.RUnlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(img); err != nil {
		return fmt.Errorf("vectorindex: encode %s: %w", idx.path, err)
	}
	if err := atomic.WriteFile(idx.path, &buf); err != nil {
		return fmt.Errorf("vectorindex: atomic write %s: %w", idx.path, err)
	}
	return nil
}

func loadFile(path string) (*fileImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: open %s: %w", path, err)
	}
	defer f.Close()

	var img fileImage
	if err := gob.NewDecoder(f).Decode(&img); err != nil {
		return nil, fmt.Errorf("vectorindex: decode %s: %w", path, err)
	}
	return &img, nil
}
