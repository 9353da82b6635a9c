// Package curator implements the save path: dedup-by-Jaccard, online
// and batch clustering, cluster merge, and confidence/decay
// bookkeeping. Its service-struct shape follows the rest of this
// codebase — a struct holding *database.Database plus collaborators,
// methods returning typed result structs, errors wrapped with %w.
package curator

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mycelicmemory/memengine/internal/database"
	"github.com/mycelicmemory/memengine/internal/embedder"
	"github.com/mycelicmemory/memengine/internal/logging"
	"github.com/mycelicmemory/memengine/internal/memory"
	"github.com/mycelicmemory/memengine/internal/structurer"
	"github.com/mycelicmemory/memengine/internal/vectorindex"
)

// autoClusterConcurrency bounds how many domains AutoCluster scores
// concurrently in one batch pass.
const autoClusterConcurrency = 4

var log = logging.GetLogger("curator")

// ClusterSimThreshold is the default online-join similarity threshold.
const ClusterSimThreshold = 0.70

// Config holds the maturity rule parameters.
type Config struct {
	SimilarityThreshold float64
	MaturityCount       int
	MaturityConfidence  float64
}

// DefaultConfig returns its documented cluster defaults.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: ClusterSimThreshold,
		MaturityCount:       5,
		MaturityConfidence:  0.65,
	}
}

// Curator wires the Store (database + vector index) with the Embedder
// and Structurer gateways to implement the save/dedup/cluster pipeline.
type Curator struct {
	db        *database.Database
	vectors   *vectorindex.Index
	embedder  *embedder.Client
	structure *structurer.Client
	chunker   *memory.Chunker
	cfg       Config
}

// New returns a Curator over the given Store and gateway clients.
// structurerClient may be nil when structuring is disabled.
func New(db *database.Database, vectors *vectorindex.Index, embed *embedder.Client, structure *structurer.Client, cfg Config) *Curator {
	if cfg.MaturityCount == 0 {
		cfg = DefaultConfig()
	}
	chunkCfg := memory.DefaultChunkConfig()
	return &Curator{db: db, vectors: vectors, embedder: embed, structure: structure, chunker: memory.NewChunker(&chunkCfg), cfg: cfg}
}

// SaveOptions mirrors the save(text, {...}) parameter bag.
type SaveOptions struct {
	Type            string
	Domain          string
	Tags            []string
	Confidence      float64
	Source          string
	SkipStructurize bool
	PreStructured   string
	SuppressCluster bool
	SessionID       string
}

// SaveOutcome is exactly one of Created, Updated, or Rejected
// (reject/dedup are normal outcomes, not errors).
type SaveOutcome struct {
	Created     bool
	Updated     bool
	Rejected    bool
	ID          int64
	Similarity  float64
	Reason      string
	ClusterJoin *JoinResult
	// ChunkIDs holds the ids of any additional records created when text
	// exceeded the chunker's threshold (see saveChunked). ID above is
	// always the first chunk's record id; these are its successors,
	// chained to it and each other by "sequential" relationship edges.
	ChunkIDs []int64
	// ChunksDropped is set when a later chunk was rejected mid-save,
	// leaving the tail of the original content unsaved. Reason explains
	// the rejection that caused the stop.
	ChunksDropped bool
}

// Save implements the save path. Content too large for a single
// record (per memory.Chunker) is split and saved as a sequential chain
// of records instead of one oversized row.
func (c *Curator) Save(ctx context.Context, text string, opts SaveOptions) (*SaveOutcome, error) {
	if opts.Type == "" {
		opts.Type = "context"
	}
	if opts.Domain == "" {
		opts.Domain = "general"
	}
	if opts.Source == "" {
		opts.Source = "user"
	}

	// Step 1: dedup against the 10 most recent matching (type, domain) records.
	recent, err := c.db.RecentByTypeDomain(opts.Type, opts.Domain, 10)
	if err != nil {
		return nil, fmt.Errorf("curator: recent lookup: %w", err)
	}
	for _, r := range recent {
		sim := jaccard(text, r.Content)
		if sim >= 0.95 {
			newConfidence := math.Min(0.9, r.Confidence+0.05)
			now := time.Now()
			newAccess := r.AccessCount + 1
			if err := c.db.UpdateFields(r.ID, &database.RecordUpdate{
				AccessCount:    &newAccess,
				LastAccessedAt: &now,
				Confidence:     &newConfidence,
			}); err != nil {
				return nil, fmt.Errorf("curator: dedup update: %w", err)
			}
			return &SaveOutcome{Updated: true, ID: r.ID, Similarity: sim}, nil
		}
	}

	if opts.PreStructured == "" && c.chunker.ShouldChunk(text) {
		return c.saveChunked(ctx, text, opts)
	}

	return c.saveOne(ctx, text, opts)
}

// saveChunked splits text into sequential chunks and saves each as its
// own record via saveOne, chaining them with "sequential" relationship
// edges so a reader can walk from the first chunk to the last. A
// structurer rejection of the first chunk is returned as is; a
// rejection of a later chunk stops the save, keeps the chunks already
// saved, and sets ChunksDropped and Reason on the first chunk's
// outcome. A store error on any chunk is returned as an error; chunks
// saved before it are not removed.
func (c *Curator) saveChunked(ctx context.Context, text string, opts SaveOptions) (*SaveOutcome, error) {
	chunks := c.chunker.ChunkContent(text)
	if len(chunks) <= 1 {
		return c.saveOne(ctx, text, opts)
	}

	var first *SaveOutcome
	prevID := int64(0)
	for _, chunk := range chunks {
		chunkOpts := opts
		chunkOpts.PreStructured = ""
		outcome, err := c.saveOne(ctx, chunk.Content, chunkOpts)
		if err != nil {
			return nil, fmt.Errorf("curator: save chunk %d: %w", chunk.Index, err)
		}
		if outcome.Rejected {
			if first == nil {
				return outcome, nil
			}
			first.ChunksDropped = true
			first.Reason = fmt.Sprintf("chunk %d rejected: %s", chunk.Index, outcome.Reason)
			log.Warn("chunked save stopped early, remaining chunks dropped", "reason", outcome.Reason, "chunk", chunk.Index, "total_chunks", len(chunks))
			break
		}
		if first == nil {
			first = outcome
		} else {
			first.ChunkIDs = append(first.ChunkIDs, outcome.ID)
			if _, err := c.db.InsertRelationship(&database.Relationship{
				SourceMemoryID:   prevID,
				TargetMemoryID:   outcome.ID,
				RelationshipType: "sequential",
				Strength:         1.0,
				AutoGenerated:    true,
			}); err != nil {
				log.Warn("sequential edge insert failed", "source", prevID, "target", outcome.ID, "error", err)
			}
		}
		prevID = outcome.ID
	}
	return first, nil
}

// saveOne performs the single-record save path shared by Save and
// saveChunked: structurize, insert, catalog bookkeeping, embed, and
// online cluster join.
func (c *Curator) saveOne(ctx context.Context, text string, opts SaveOptions) (*SaveOutcome, error) {
	// Obtain structured XML.
	var structuredXML string
	switch {
	case opts.PreStructured != "":
		structuredXML = opts.PreStructured
	case opts.SkipStructurize || c.structure == nil:
		structuredXML = ""
	default:
		result, err := c.structure.Structurize(ctx, text, opts.Type)
		if err != nil {
			log.Warn("structurize failed, proceeding with blank structured body", "error", err)
		} else if result.Rejected {
			return &SaveOutcome{Rejected: true, Reason: result.Reason}, nil
		} else {
			structuredXML = result.XML
		}
	}

	// Insert the Record.
	confidence := opts.Confidence
	if confidence == 0 {
		confidence = 0.5
	}
	record := &database.Record{
		Content:    text,
		Structured: structuredXML,
		Summary:    summarize(text),
		Keywords:   keywords(text),
		Tags:       opts.Tags,
		Type:       opts.Type,
		Domain:     opts.Domain,
		Confidence: clamp(confidence, 0.3, 0.9),
		Source:     opts.Source,
		SessionID:  opts.SessionID,
	}

	id, err := c.db.InsertRecord(record)
	if err != nil {
		return nil, fmt.Errorf("curator: insert record: %w", err)
	}

	if err := c.db.UpsertDomain(opts.Domain, ""); err != nil {
		log.Warn("domain catalog upsert failed", "domain", opts.Domain, "error", err)
	}
	if opts.SessionID != "" {
		if err := c.db.TouchSession(opts.SessionID, opts.Source); err != nil {
			log.Warn("session touch failed", "session", opts.SessionID, "error", err)
		}
	}

	outcome := &SaveOutcome{Created: true, ID: id}

	// Embed and insert the vector entry.
	if c.embedder != nil {
		body := record.Body()
		input := embedder.BuildEmbeddingInput(body, opts.Domain)
		if v, ok := c.embedder.Embed(ctx, input); ok {
			if err := c.vectors.Add(id, v); err != nil {
				log.Warn("vector insert failed", "id", id, "error", err)
			} else {
				// Online cluster join.
				if !opts.SuppressCluster {
					join, err := c.TryJoinCluster(id, v, opts.Domain, record.Confidence)
					if err != nil {
						log.Warn("cluster join failed", "id", id, "error", err)
					} else {
						outcome.ClusterJoin = join
					}
				}
			}
		}
	}

	return outcome, nil
}

// JoinResult is the outcome of TryJoinCluster.
type JoinResult struct {
	Joined    bool
	ClusterID int64
}

// TryJoinCluster implements the online cluster join.
func (c *Curator) TryJoinCluster(id int64, v []float32, domain string, confidence float64) (*JoinResult, error) {
	candidates, err := c.db.ClustersInDomain(domain)
	if err != nil {
		return nil, fmt.Errorf("curator: clusters in domain: %w", err)
	}
	if len(candidates) == 0 {
		return &JoinResult{}, nil
	}

	var best *database.Cluster
	var bestSim float64
	for _, cl := range candidates {
		sim := cosineSimilarity(v, cl.Centroid)
		if sim >= c.cfg.SimilarityThreshold && sim > bestSim {
			best = cl
			bestSim = sim
		}
	}
	if best == nil {
		return &JoinResult{}, nil
	}

	newMemberCount := best.MemberCount + 1
	newAvgConfidence := (best.AvgConfidence*float64(best.MemberCount) + confidence) / float64(newMemberCount)
	best.MemberCount = newMemberCount
	best.AvgConfidence = newAvgConfidence
	if best.Status == "growing" && newMemberCount >= c.cfg.MaturityCount && newAvgConfidence >= c.cfg.MaturityConfidence {
		best.Status = "mature"
	}

	if err := c.db.UpdateCluster(best); err != nil {
		return nil, fmt.Errorf("curator: update cluster: %w", err)
	}
	clusterID := best.ID
	if err := c.db.UpdateFields(id, &database.RecordUpdate{ClusterID: &clusterID}); err != nil {
		return nil, fmt.Errorf("curator: assign cluster: %w", err)
	}

	return &JoinResult{Joined: true, ClusterID: best.ID}, nil
}

// AutoClusterOptions mirrors the auto_cluster parameter bag.
type AutoClusterOptions struct {
	Domain        string
	MinConfidence float64
	MinSize       int
	Threshold     float64
	HoursBack     *float64
}

// AutoClusterResult summarizes one batch clustering pass.
type AutoClusterResult struct {
	ClustersCreated int
	RecordsGrouped  int
}

// AutoCluster implements batch clustering.
func (c *Curator) AutoCluster(opts AutoClusterOptions) (*AutoClusterResult, error) {
	if opts.MinConfidence == 0 {
		opts.MinConfidence = 0.5
	}
	if opts.MinSize == 0 {
		opts.MinSize = 2
	}
	if opts.Threshold == 0 {
		opts.Threshold = c.cfg.SimilarityThreshold
	}

	var since *time.Time
	if opts.HoursBack != nil {
		t := time.Now().Add(-time.Duration(*opts.HoursBack * float64(time.Hour)))
		since = &t
	}

	records, err := c.db.UnclusteredMemories(database.UnclusteredOptions{
		Domain:        opts.Domain,
		MinConfidence: opts.MinConfidence,
		Limit:         100,
		Since:         since,
	})
	if err != nil {
		return nil, fmt.Errorf("curator: unclustered memories: %w", err)
	}

	byDomain := make(map[string][]*database.Record)
	for _, r := range records {
		byDomain[r.Domain] = append(byDomain[r.Domain], r)
	}

	// Centroid scoring within each domain's candidate search is the
	// expensive part of a batch pass; score domains concurrently
	// (bounded) while committing each domain's winning clusters
	// sequentially against the Store.
	domains := make([]string, 0, len(byDomain))
	for domain := range byDomain {
		domains = append(domains, domain)
	}
	scored := make([][]candidateCluster, len(domains))

	var eg errgroup.Group
	eg.SetLimit(autoClusterConcurrency)
	for i, domain := range domains {
		i, group := i, byDomain[domain]
		eg.Go(func() error {
			scored[i] = c.greedyCluster(group, opts.Threshold)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("curator: auto cluster scoring: %w", err)
	}

	result := &AutoClusterResult{}
	for i, candidates := range scored {
		domain := domains[i]
		for _, cand := range candidates {
			if len(cand.members) < opts.MinSize {
				continue
			}
			if err := c.commitCandidate(domain, cand); err != nil {
				return result, err
			}
			result.ClustersCreated++
			result.RecordsGrouped += len(cand.members)
		}
	}

	return result, nil
}

type candidateCluster struct {
	members []*database.Record
	vectors [][]float32
}

// greedyCluster performs single-pass greedy grouping: each unassigned
// record seeds a candidate and absorbs any later unassigned record
// whose cosine similarity to the seed is at least threshold.
func (c *Curator) greedyCluster(records []*database.Record, threshold float64) []candidateCluster {
	assigned := make([]bool, len(records))
	vectors := make([][]float32, len(records))
	for i, r := range records {
		if v, ok := c.vectors.Get(r.ID); ok {
			vectors[i] = v
		}
	}

	var candidates []candidateCluster
	for i, r := range records {
		if assigned[i] || vectors[i] == nil {
			continue
		}
		assigned[i] = true
		cand := candidateCluster{members: []*database.Record{r}, vectors: [][]float32{vectors[i]}}

		for j := i + 1; j < len(records); j++ {
			if assigned[j] || vectors[j] == nil {
				continue
			}
			if cosineSimilarity(vectors[i], vectors[j]) >= threshold {
				assigned[j] = true
				cand.members = append(cand.members, records[j])
				cand.vectors = append(cand.vectors, vectors[j])
			}
		}
		candidates = append(candidates, cand)
	}
	return candidates
}

func (c *Curator) commitCandidate(domain string, cand candidateCluster) error {
	centroid := meanVector(cand.vectors)
	avgConfidence := 0.0
	for _, m := range cand.members {
		avgConfidence += m.Confidence
	}
	avgConfidence /= float64(len(cand.members))

	status := "growing"
	if len(cand.members) >= c.cfg.MaturityCount && avgConfidence >= c.cfg.MaturityConfidence {
		status = "mature"
	}

	cluster := &database.Cluster{
		Theme:         inferTheme(cand.members),
		Domain:        domain,
		Centroid:      centroid,
		MemberCount:   len(cand.members),
		AvgConfidence: avgConfidence,
		Status:        status,
	}
	clusterID, err := c.db.InsertCluster(cluster)
	if err != nil {
		return fmt.Errorf("curator: insert cluster: %w", err)
	}

	for _, m := range cand.members {
		if err := c.db.UpdateFields(m.ID, &database.RecordUpdate{ClusterID: &clusterID}); err != nil {
			return fmt.Errorf("curator: assign cluster member %d: %w", m.ID, err)
		}
	}
	return nil
}

// MergeResult is the outcome of MergeCluster.
type MergeResult struct {
	NewRecordID  int64
	UsedFallback bool
}

// MergeCluster implements the cluster merge.
func (c *Curator) MergeCluster(ctx context.Context, clusterID int64) (*MergeResult, error) {
	cluster, err := c.db.GetCluster(clusterID)
	if err != nil {
		return nil, fmt.Errorf("curator: get cluster: %w", err)
	}
	if cluster == nil {
		return nil, fmt.Errorf("curator: cluster %d not found", clusterID)
	}
	if cluster.Status != "mature" {
		return nil, fmt.Errorf("curator: cluster %d is not mature", clusterID)
	}

	members, err := c.db.ClusterMembers(clusterID)
	if err != nil {
		return nil, fmt.Errorf("curator: cluster members: %w", err)
	}
	if len(members) < 2 {
		return nil, fmt.Errorf("curator: cluster %d has fewer than 2 members", clusterID)
	}

	texts := make([]string, len(members))
	for i, m := range members {
		texts[i] = m.Body()
	}

	var mergedContent string
	var confidence float64
	usedFallback := false

	if c.structure != nil {
		merged, err := c.structure.Merge(ctx, texts, cluster.Domain)
		if err != nil {
			log.Warn("merge LLM call failed, using concatenation fallback", "cluster", clusterID, "error", err)
			mergedContent = strings.Join(texts, "\n---\n")
			confidence = 0.85
			usedFallback = true
		} else {
			mergedContent = merged
			confidence = 0.9
		}
	} else {
		mergedContent = strings.Join(texts, "\n---\n")
		confidence = 0.85
		usedFallback = true
	}

	newRecord := &database.Record{
		Content:    mergedContent,
		Type:       modeType(members),
		Domain:     cluster.Domain,
		Confidence: confidence,
		Source:     "cluster-merge",
	}
	if !usedFallback {
		newRecord.Structured = mergedContent
	}
	newID, err := c.db.InsertRecord(newRecord)
	if err != nil {
		return nil, fmt.Errorf("curator: insert merged record: %w", err)
	}

	if c.embedder != nil {
		input := embedder.BuildEmbeddingInput(newRecord.Body(), cluster.Domain)
		if v, ok := c.embedder.Embed(ctx, input); ok {
			if err := c.vectors.Add(newID, v); err != nil {
				log.Warn("merged record vector insert failed", "id", newID, "error", err)
			}
		}
	}

	for _, m := range members {
		if err := c.vectors.Delete(m.ID); err != nil {
			log.Warn("vector delete failed during merge", "id", m.ID, "error", err)
		}
		if err := c.db.DeleteRecord(m.ID); err != nil {
			return nil, fmt.Errorf("curator: delete member %d: %w", m.ID, err)
		}
	}

	now := time.Now()
	cluster.Status = "merged"
	cluster.EvolvedAt = &now
	if err := c.db.UpdateCluster(cluster); err != nil {
		return nil, fmt.Errorf("curator: mark cluster merged: %w", err)
	}

	return &MergeResult{NewRecordID: newID, UsedFallback: usedFallback}, nil
}

// Validate implements validate(id, is_valid).
func (c *Curator) Validate(id int64, isValid bool) error {
	r, err := c.db.GetRecord(id)
	if err != nil {
		return fmt.Errorf("curator: get record: %w", err)
	}
	if r == nil {
		return fmt.Errorf("curator: record %d not found", id)
	}

	delta := -0.05
	if isValid {
		delta = 0.1
	}
	newConfidence := clamp(r.Confidence+delta, 0.3, 0.9)
	newEvidence := r.EvidenceCount + 1

	return c.db.UpdateFields(id, &database.RecordUpdate{
		Confidence:    &newConfidence,
		EvidenceCount: &newEvidence,
	})
}

// MarkUsed implements mark_used(ids).
func (c *Curator) MarkUsed(ids []int64) error {
	now := time.Now()
	for _, id := range ids {
		r, err := c.db.GetRecord(id)
		if err != nil {
			return fmt.Errorf("curator: get record %d: %w", id, err)
		}
		if r == nil {
			continue
		}
		newAccess := r.AccessCount + 1
		if err := c.db.UpdateFields(id, &database.RecordUpdate{
			LastAccessedAt: &now,
			AccessCount:    &newAccess,
		}); err != nil {
			return fmt.Errorf("curator: mark used %d: %w", id, err)
		}
	}
	return nil
}

// AutoBoost implements auto_boost(id, delta=0.1); also
// marks the record used.
func (c *Curator) AutoBoost(id int64, delta float64) error {
	if delta == 0 {
		delta = 0.1
	}
	r, err := c.db.GetRecord(id)
	if err != nil {
		return fmt.Errorf("curator: get record: %w", err)
	}
	if r == nil {
		return fmt.Errorf("curator: record %d not found", id)
	}

	newConfidence := math.Min(0.9, r.Confidence+delta)
	if err := c.db.UpdateFields(id, &database.RecordUpdate{Confidence: &newConfidence}); err != nil {
		return err
	}
	return c.MarkUsed([]int64{id})
}

// decayParams is the per-type (half_life_days, min_weight) table.
// Types absent from the table default to context parameters.
var decayParams = map[string]struct {
	halfLifeDays float64
	minWeight    float64
}{
	"fact":       {90, 0.3},
	"decision":   {90, 0.3},
	"bug":        {60, 0.3},
	"pattern":    {90, 0.4},
	"preference": {60, 0.2},
	"context":    {30, 0.2},
	"session":    {14, 0.1},
	"learned":    {90, 0.4},
	"skill":      {math.Inf(1), 1.0},
	"permanent":  {math.Inf(1), 1.0},
}

// Decay implements the time-decay weight function.
func Decay(createdAt time.Time, recordType string) float64 {
	params, ok := decayParams[recordType]
	if !ok {
		params = decayParams["context"]
	}
	if math.IsInf(params.halfLifeDays, 1) {
		return params.minWeight
	}

	ageDays := time.Since(createdAt).Hours() / 24
	weight := math.Pow(0.5, ageDays/params.halfLifeDays)
	return math.Max(params.minWeight, weight)
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

func meanVector(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dims := len(vectors[0])
	mean := make([]float32, dims)
	for _, v := range vectors {
		for i := 0; i < dims && i < len(v); i++ {
			mean[i] += v[i]
		}
	}
	n := float32(len(vectors))
	for i := range mean {
		mean[i] /= n
	}
	return mean
}

func modeType(records []*database.Record) string {
	counts := make(map[string]int)
	for _, r := range records {
		counts[r.Type]++
	}
	best := ""
	bestCount := -1
	for t, n := range counts {
		if n > bestCount {
			best, bestCount = t, n
		}
	}
	return best
}

var themeSplitRegex = regexp.MustCompile(`[^\p{L}\p{N}]+`)

var themeStopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "that": {}, "this": {},
	"from": {}, "have": {}, "are": {}, "was": {}, "were": {},
}

// inferTheme implements theme inference: concatenate
// members' content, split on non-word/non-CJK characters, drop
// stopwords and tokens of length <= 2, pick the 3 most frequent tokens.
func inferTheme(members []*database.Record) string {
	var all strings.Builder
	for _, m := range members {
		all.WriteString(m.Content)
		all.WriteString(" ")
	}

	counts := make(map[string]int)
	var order []string
	for _, token := range themeSplitRegex.Split(strings.ToLower(all.String()), -1) {
		if len([]rune(token)) <= 2 {
			continue
		}
		if _, stop := themeStopwords[token]; stop {
			continue
		}
		if counts[token] == 0 {
			order = append(order, token)
		}
		counts[token]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	if len(order) == 0 {
		return "general-pattern"
	}
	n := 3
	if len(order) < n {
		n = len(order)
	}
	return strings.Join(order[:n], "-")
}
