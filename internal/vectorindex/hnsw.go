// Package vectorindex provides the embedded approximate-nearest-neighbor
// index backing the Store's vector entries (spec: "vector index of
// dimension 1024 using cosine distance" living inside memory.db's data
// directory). It wraps coder/hnsw, a pure-Go HNSW implementation with no
// CGO dependency.
package vectorindex

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	"github.com/mycelicmemory/memengine/internal/logging"
)

var log = logging.GetLogger("vectorindex")

// Config controls graph construction parameters.
type Config struct {
	Dimensions int
	M          int
	EfSearch   int
}

// Index is a record-id-keyed cosine-distance ANN index with lazy
// deletion: removing an id only drops it from the id mapping, it is
// never deleted from the underlying graph. coder/hnsw has a known bug
// where deleting the last remaining node corrupts the graph; avoiding
// Delete entirely sidesteps it at the cost of orphaned graph nodes that
// Stats reports and a future rebuild can reclaim.
type Index struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[int64]
	config  Config
	ids     map[int64]struct{}    // live record ids
	vectors map[int64][]float32   // exact (normalized) vector per live id, for Get/rebuild
	closed  bool
}

type metadata struct {
	IDs     map[int64]struct{}
	Vectors map[int64][]float32
	Config  Config
}

// Result is one entry of a Search call: a record id and the raw cosine
// distance to the query vector, in [0, 2].
type Result struct {
	ID       int64
	Distance float32
}

// Stats reports live vs orphaned graph nodes for compaction decisions.
type Stats struct {
	ValidIDs   int
	GraphNodes int
	Orphans    int
}

// New creates an empty cosine-distance index of the given dimension.
func New(cfg Config) (*Index, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vectorindex: dimension must be positive, got %d", cfg.Dimensions)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[int64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &Index{
		graph:   graph,
		config:  cfg,
		ids:     make(map[int64]struct{}),
		vectors: make(map[int64][]float32),
	}, nil
}

// Add inserts or replaces the vector for id. Vectors are normalized to
// unit length in place before insertion, matching the unit-norm
// invariant on Vector entries.
func (idx *Index) Add(id int64, vector []float32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return fmt.Errorf("vectorindex: index is closed")
	}
	if len(vector) != idx.config.Dimensions {
		return fmt.Errorf("vectorindex: dimension mismatch: expected %d, got %d", idx.config.Dimensions, len(vector))
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)
	normalizeInPlace(vec)

	// Lazy-replace: if id already present, the old graph node becomes an
	// orphan (it stays but will never be returned since ids no longer
	// contains it under its own key — here the key IS the id, so we
	// overwrite the node value by adding the same key again).
	idx.graph.Add(hnsw.MakeNode(id, vec))
	idx.ids[id] = struct{}{}
	idx.vectors[id] = vec

	return nil
}

// Delete removes id from the live set without touching the graph.
func (idx *Index) Delete(id int64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return fmt.Errorf("vectorindex: index is closed")
	}
	delete(idx.ids, id)
	delete(idx.vectors, id)
	return nil
}

// Get returns the exact (unit-normalized) stored vector for id, if live.
func (idx *Index) Get(id int64) ([]float32, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	v, ok := idx.vectors[id]
	if !ok {
		return nil, false
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, true
}

// Search returns up to k nearest neighbors of query by cosine distance.
// query is normalized internally; callers pass the raw embedding.
func (idx *Index) Search(query []float32, k int) ([]Result, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, fmt.Errorf("vectorindex: index is closed")
	}
	if len(query) != idx.config.Dimensions {
		return nil, fmt.Errorf("vectorindex: dimension mismatch: expected %d, got %d", idx.config.Dimensions, len(query))
	}
	if idx.graph.Len() == 0 || k <= 0 {
		return []Result{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalizeInPlace(q)

	// Over-fetch to absorb lazily-deleted/orphaned nodes that the graph
	// still returns but the live id set has dropped.
	fetch := k
	if idx.graph.Len() > idx.config.Dimensions {
		fetch = k * 3
	}
	nodes := idx.graph.Search(q, fetch)

	results := make([]Result, 0, k)
	for _, node := range nodes {
		if _, live := idx.ids[node.Key]; !live {
			continue
		}
		distance := idx.graph.Distance(q, node.Value)
		results = append(results, Result{ID: node.Key, Distance: distance})
		if len(results) == k {
			break
		}
	}

	return results, nil
}

// Dimensions returns the configured vector dimension.
func (idx *Index) Dimensions() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.config.Dimensions
}

// Contains reports whether id has a live vector entry.
func (idx *Index) Contains(id int64) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.ids[id]
	return ok
}

// Count returns the number of live vector entries.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.ids)
}

// Stats reports live vs orphaned graph node counts.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	valid := len(idx.ids)
	nodes := idx.graph.Len()
	return Stats{ValidIDs: valid, GraphNodes: nodes, Orphans: nodes - valid}
}

// Save persists the graph and id mapping to disk via a temp-file-plus-
// rename so a crash mid-write never leaves a truncated index behind.
func (idx *Index) Save(path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return fmt.Errorf("vectorindex: index is closed")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("vectorindex: create directory: %w", err)
		}
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("vectorindex: create index file: %w", err)
	}
	if err := idx.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("vectorindex: export graph: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("vectorindex: close index file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("vectorindex: rename index file: %w", err)
	}

	return idx.saveMetadata(path + ".meta")
}

func (idx *Index) saveMetadata(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("vectorindex: create metadata file: %w", err)
	}

	meta := metadata{IDs: idx.ids, Vectors: idx.vectors, Config: idx.config}
	if err := gob.NewEncoder(f).Encode(meta); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("vectorindex: encode metadata: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("vectorindex: close metadata file: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load replaces the index's contents with what was previously Saved.
func (idx *Index) Load(path string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return fmt.Errorf("vectorindex: index is closed")
	}

	if err := idx.loadMetadata(path + ".meta"); err != nil {
		return fmt.Errorf("vectorindex: load metadata: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("vectorindex: open index file: %w", err)
	}
	defer f.Close()

	if err := idx.graph.Import(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("vectorindex: import graph: %w", err)
	}

	return nil
}

func (idx *Index) loadMetadata(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open metadata file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			log.Warn("failed to close metadata file", "error", cerr)
		}
	}()

	var meta metadata
	if err := gob.NewDecoder(f).Decode(&meta); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}

	idx.ids = meta.IDs
	if idx.ids == nil {
		idx.ids = make(map[int64]struct{})
	}
	idx.vectors = meta.Vectors
	if idx.vectors == nil {
		idx.vectors = make(map[int64][]float32)
	}
	idx.config = meta.Config
	return nil
}

// Close releases resources held by the index. The graph is dropped;
// coder/hnsw needs no explicit teardown.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil
	}
	idx.closed = true
	idx.graph = nil
	return nil
}

// normalizeInPlace scales v to unit length. A zero vector is left
// untouched rather than dividing by zero.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
