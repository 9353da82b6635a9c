// Package retriever implements hybrid lexical/vector search over the
// Store, combining BM25-or-substring lexical scores with cosine vector
// similarity, and falling back to lexical-only ranking when the
// Embedder gateway is unavailable.
package retriever

import (
	"context"
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mycelicmemory/memengine/internal/database"
	"github.com/mycelicmemory/memengine/internal/embedder"
	"github.com/mycelicmemory/memengine/internal/logging"
	"github.com/mycelicmemory/memengine/internal/vectorindex"
)

var log = logging.GetLogger("retriever")

// queryCacheSize bounds the per-query embedding memoization cache.
const queryCacheSize = 256

// Retriever runs hybrid search over a Store.
type Retriever struct {
	db       *database.Database
	vectors  *vectorindex.Index
	embedder *embedder.Client
	cache    *lru.Cache[string, []float32]
}

// New returns a Retriever over the given Store and Embedder gateway
// client. embed may be nil to force lexical-only mode.
func New(db *database.Database, vectors *vectorindex.Index, embed *embedder.Client) *Retriever {
	cache, _ := lru.New[string, []float32](queryCacheSize)
	return &Retriever{db: db, vectors: vectors, embedder: embed, cache: cache}
}

// Filters narrows search results.
type Filters struct {
	MinConfidence float64
	Type          string
	Domain        string
}

// Result is one ranked hit: Content is the structured body when
// present, else raw content; RawContent is always the unstructured
// text.
type Result struct {
	Record     *database.Record
	Content    string
	RawContent string
	Combined   float64
	BM25       float64
	VecSim     float64
}

type candidate struct {
	record *database.Record
	bm25   float64
	vecSim float64
}

// Search implements the full algorithm: lexical pass, vector
// pass (skipped if the Embedder gateway is unavailable), filtering,
// combine, sort-and-truncate.
func (r *Retriever) Search(ctx context.Context, query string, k int, filters Filters) ([]Result, error) {
	candidates, err := r.lexicalPass(query, k)
	if err != nil {
		return nil, fmt.Errorf("retriever: lexical pass: %w", err)
	}

	useVector := r.embedder != nil
	if useVector {
		if err := r.vectorPass(ctx, query, k, candidates); err != nil {
			log.Warn("vector pass failed, falling back to lexical-only ranking", "error", err)
			useVector = false
		}
	}

	results := make([]Result, 0, len(candidates))
	for _, cand := range candidates {
		if !passesFilters(cand.record, filters) {
			continue
		}
		combined := cand.bm25
		if useVector {
			combined = combine(cand.vecSim, cand.bm25)
		}
		results = append(results, Result{
			Record:     cand.record,
			Content:    cand.record.Body(),
			RawContent: cand.record.Content,
			Combined:   combined,
			BM25:       cand.bm25,
			VecSim:     cand.vecSim,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Combined > results[j].Combined })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// QuickSearch implements the "quick" lexical-only mode: the
// vector pass and combine step are skipped outright, ranking by bm25.
func (r *Retriever) QuickSearch(query string, k int, filters Filters) ([]Result, error) {
	candidates, err := r.lexicalPass(query, k)
	if err != nil {
		return nil, fmt.Errorf("retriever: lexical pass: %w", err)
	}

	results := make([]Result, 0, len(candidates))
	for _, cand := range candidates {
		if !passesFilters(cand.record, filters) {
			continue
		}
		results = append(results, Result{
			Record:     cand.record,
			Content:    cand.record.Body(),
			RawContent: cand.record.Content,
			Combined:   cand.bm25,
			BM25:       cand.bm25,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Combined > results[j].Combined })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// lexicalPass implements step 1: full_text_search(query, 2k), seeding
// the id -> candidate map with bm25 scores and vec_sim=0.
func (r *Retriever) lexicalPass(query string, k int) (map[int64]*candidate, error) {
	hits, err := r.db.FullTextSearch(query, 2*k)
	if err != nil {
		return nil, err
	}

	candidates := make(map[int64]*candidate, len(hits))
	for _, hit := range hits {
		record, err := r.db.GetRecord(hit.ID)
		if err != nil {
			return nil, fmt.Errorf("get record %d: %w", hit.ID, err)
		}
		if record == nil {
			continue
		}
		candidates[hit.ID] = &candidate{record: record, bm25: hit.Score}
	}
	return candidates, nil
}

// vectorPass implements step 2: embed(query), vector_search(q, 2k),
// overwriting or inserting vec_sim into the candidate map.
func (r *Retriever) vectorPass(ctx context.Context, query string, k int, candidates map[int64]*candidate) error {
	q, ok := r.cachedEmbed(ctx, query)
	if !ok {
		return fmt.Errorf("embed unavailable")
	}

	hits, err := r.vectors.Search(q, 2*k)
	if err != nil {
		return fmt.Errorf("vector search: %w", err)
	}

	for _, hit := range hits {
		vecSim := 1 - float64(hit.Distance)
		if cand, ok := candidates[hit.ID]; ok {
			cand.vecSim = vecSim
			continue
		}
		record, err := r.db.GetRecord(hit.ID)
		if err != nil {
			return fmt.Errorf("get record %d: %w", hit.ID, err)
		}
		if record == nil {
			continue
		}
		candidates[hit.ID] = &candidate{record: record, bm25: 0, vecSim: vecSim}
	}
	return nil
}

func (r *Retriever) cachedEmbed(ctx context.Context, query string) ([]float32, bool) {
	if r.cache != nil {
		if v, ok := r.cache.Get(query); ok {
			return v, true
		}
	}
	v, ok := r.embedder.Embed(ctx, query)
	if ok && r.cache != nil {
		r.cache.Add(query, v)
	}
	return v, ok
}

// combine implements the score-combination formula.
func combine(vecSim, bm25 float64) float64 {
	bm25Term := bm25 / 10
	if bm25Term > 1 {
		bm25Term = 1
	}
	return 0.7*vecSim + 0.3*bm25Term
}

func passesFilters(r *database.Record, f Filters) bool {
	if f.MinConfidence > 0 && r.Confidence < f.MinConfidence {
		return false
	}
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.Domain != "" && r.Domain != f.Domain {
		return false
	}
	return true
}
