package database

import "time"

// Record is one persistent memory, following the nullable-field and
// JSON-array-in-TEXT conventions used throughout operations.go.
type Record struct {
	ID             int64
	Content        string
	Structured     string // empty iff structuring was skipped or pre-structured with none supplied
	Summary        string
	Keywords       string // comma-joined top-10 tokens
	Tags           []string
	Type           string
	Domain         string
	Confidence     float64
	EvidenceCount  int
	AccessCount    int
	LastAccessedAt *time.Time
	ClusterID      *int64
	Source         string
	SessionID      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	PromotedAt     *time.Time
}

// HasStructured reports whether the record carries a structured XML body.
func (r *Record) HasStructured() bool {
	return r.Structured != ""
}

// Body returns the structured XML when present, else the raw content —
// the "content" attribute of a Retriever result.
func (r *Record) Body() string {
	if r.HasStructured() {
		return r.Structured
	}
	return r.Content
}

// RecordUpdate carries optional field updates for update_fields; a nil
// pointer means "leave unchanged".
type RecordUpdate struct {
	Content        *string
	Structured     *string
	Summary        *string
	Keywords       *string
	Tags           []string
	Type           *string
	Domain         *string
	Confidence     *float64
	EvidenceCount  *int
	AccessCount    *int
	LastAccessedAt *time.Time
	ClusterID      *int64
	ClearClusterID bool
	Source         *string
	PromotedAt     *time.Time
}

// Cluster is one online-clustering group.
type Cluster struct {
	ID            int64
	Theme         string
	Domain        string
	Centroid      []float32
	MemberCount   int
	AvgConfidence float64
	Status        string // growing | mature | merged
	CreatedAt     time.Time
	UpdatedAt     time.Time
	EvolvedAt     *time.Time
}

// SearchFilters narrows full_text_search / vector_search / Retriever
// results.
type SearchFilters struct {
	MinConfidence float64
	Type          string
	Domain        string
}

// Relationship is one edge of the supplemented relationship graph
// Supplemented feature: a typed edge between two memories.
type Relationship struct {
	ID              int64
	SourceMemoryID  int64
	TargetMemoryID  int64
	RelationshipType string
	Strength        float64
	Context         string
	AutoGenerated   bool
	CreatedAt       time.Time
}

// FullTextResult is one hit of full_text_search: a record id and its
// BM25-or-substring-path score.
type FullTextResult struct {
	ID    int64
	Score float64
}

// VectorResult is one hit of vector_search: a record id and the raw
// cosine distance, in [0, 2].
type VectorResult struct {
	ID       int64
	Distance float32
}
