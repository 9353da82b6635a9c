package curator

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mycelicmemory/memengine/internal/database"
	"github.com/mycelicmemory/memengine/internal/vectorindex"
)

func newTestStore(t *testing.T) (*database.Database, *vectorindex.Index) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := db.InitSchema(); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	idx, err := vectorindex.New(vectorindex.Config{Dimensions: 4})
	if err != nil {
		t.Fatalf("new vector index: %v", err)
	}
	return db, idx
}

func TestSaveCreatesRecordWithoutEmbedder(t *testing.T) {
	db, idx := newTestStore(t)
	c := New(db, idx, nil, nil, DefaultConfig())

	outcome, err := c.Save(context.Background(), "channels are typed pipes in go", SaveOptions{
		Type:            "fact",
		Domain:          "go",
		SkipStructurize: true,
	})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !outcome.Created {
		t.Fatalf("expected created outcome, got %+v", outcome)
	}

	r, err := db.GetRecord(outcome.ID)
	if err != nil || r == nil {
		t.Fatalf("expected record to be persisted: %v", err)
	}
	if r.Keywords == "" {
		t.Errorf("expected keywords to be computed")
	}
	if r.Summary == "" {
		t.Errorf("expected summary to be computed")
	}
}

func TestSaveDedupUpdatesInsteadOfCreating(t *testing.T) {
	db, idx := newTestStore(t)
	c := New(db, idx, nil, nil, DefaultConfig())

	text := "the build pipeline retries failed jobs three times before alerting"
	first, err := c.Save(context.Background(), text, SaveOptions{Type: "fact", Domain: "ci", SkipStructurize: true})
	if err != nil {
		t.Fatalf("first save failed: %v", err)
	}

	second, err := c.Save(context.Background(), text, SaveOptions{Type: "fact", Domain: "ci", SkipStructurize: true})
	if err != nil {
		t.Fatalf("second save failed: %v", err)
	}
	if !second.Updated {
		t.Fatalf("expected duplicate save to update, got %+v", second)
	}
	if second.ID != first.ID {
		t.Fatalf("expected dedup to target the original record")
	}
	if second.Similarity < 0.95 {
		t.Fatalf("expected similarity >= 0.95, got %f", second.Similarity)
	}
}

func TestSaveConfidenceClampedOnCreate(t *testing.T) {
	db, idx := newTestStore(t)
	c := New(db, idx, nil, nil, DefaultConfig())

	outcome, err := c.Save(context.Background(), "low confidence note", SaveOptions{
		Type: "context", Domain: "general", Confidence: 0.05, SkipStructurize: true,
	})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	r, _ := db.GetRecord(outcome.ID)
	if r.Confidence != 0.3 {
		t.Errorf("expected confidence clamped to 0.3, got %f", r.Confidence)
	}
}

func TestSaveChunksOversizedContentWithSequentialEdges(t *testing.T) {
	db, idx := newTestStore(t)
	c := New(db, idx, nil, nil, DefaultConfig())

	paragraph := "Large language models store context in a rolling window, and long-running agents spill that context to an external memory store instead of keeping everything resident. "
	var sb strings.Builder
	for i := 0; i < 15; i++ {
		sb.WriteString(paragraph)
		sb.WriteString("\n\n")
	}
	text := sb.String()

	outcome, err := c.Save(context.Background(), text, SaveOptions{Type: "context", Domain: "architecture", SkipStructurize: true})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !outcome.Created {
		t.Fatalf("expected created outcome, got %+v", outcome)
	}
	if len(outcome.ChunkIDs) == 0 {
		t.Fatalf("expected oversized content to be split into multiple chunks, got %+v", outcome)
	}

	rels, err := db.RelationshipsFrom(outcome.ID, "sequential")
	if err != nil {
		t.Fatalf("relationships from: %v", err)
	}
	if len(rels) != 1 {
		t.Fatalf("expected one sequential edge out of the first chunk, got %d", len(rels))
	}
	if rels[0].TargetMemoryID != outcome.ChunkIDs[0] {
		t.Errorf("expected first edge to point at the second chunk")
	}
	if !rels[0].AutoGenerated {
		t.Errorf("expected sequential edges to be marked auto-generated")
	}
}

func TestTryJoinClusterPromotesToMatureAtFifthMember(t *testing.T) {
	db, idx := newTestStore(t)
	c := New(db, idx, nil, nil, DefaultConfig())

	centroid := []float32{1, 0, 0, 0}
	clusterID, err := db.InsertCluster(&database.Cluster{
		Theme: "retry-logic", Domain: "ci", Centroid: centroid,
		MemberCount: 4, AvgConfidence: 0.65, Status: "growing",
	})
	if err != nil {
		t.Fatalf("insert cluster: %v", err)
	}

	id, err := db.InsertRecord(&database.Record{Content: "fifth member", Type: "pattern", Domain: "ci"})
	if err != nil {
		t.Fatalf("insert record: %v", err)
	}

	join, err := c.TryJoinCluster(id, []float32{1, 0, 0, 0}, "ci", 0.7)
	if err != nil {
		t.Fatalf("try join cluster failed: %v", err)
	}
	if !join.Joined || join.ClusterID != clusterID {
		t.Fatalf("expected join into cluster %d, got %+v", clusterID, join)
	}

	updated, err := db.GetCluster(clusterID)
	if err != nil {
		t.Fatalf("get cluster: %v", err)
	}
	if updated.MemberCount != 5 {
		t.Errorf("expected member count 5, got %d", updated.MemberCount)
	}
	if updated.Status != "mature" {
		t.Errorf("expected cluster promoted to mature, got %s", updated.Status)
	}
}

func TestTryJoinClusterNoCandidateBelowThreshold(t *testing.T) {
	db, idx := newTestStore(t)
	c := New(db, idx, nil, nil, DefaultConfig())

	_, err := db.InsertCluster(&database.Cluster{
		Theme: "unrelated", Domain: "ci", Centroid: []float32{0, 1, 0, 0},
		MemberCount: 2, AvgConfidence: 0.5, Status: "growing",
	})
	if err != nil {
		t.Fatalf("insert cluster: %v", err)
	}

	id, _ := db.InsertRecord(&database.Record{Content: "orthogonal", Type: "pattern", Domain: "ci"})
	join, err := c.TryJoinCluster(id, []float32{1, 0, 0, 0}, "ci", 0.6)
	if err != nil {
		t.Fatalf("try join cluster failed: %v", err)
	}
	if join.Joined {
		t.Fatalf("expected no join for orthogonal vector, got %+v", join)
	}
}

func TestValidateAdjustsConfidenceAndEvidence(t *testing.T) {
	db, idx := newTestStore(t)
	c := New(db, idx, nil, nil, DefaultConfig())

	id, _ := db.InsertRecord(&database.Record{Content: "x", Type: "fact", Domain: "go", Confidence: 0.5})

	if err := c.Validate(id, true); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	r, _ := db.GetRecord(id)
	if r.Confidence != 0.6 {
		t.Errorf("expected confidence 0.6 after positive validation, got %f", r.Confidence)
	}
	if r.EvidenceCount != 1 {
		t.Errorf("expected evidence count 1, got %d", r.EvidenceCount)
	}

	if err := c.Validate(id, false); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	r, _ = db.GetRecord(id)
	if math.Abs(r.Confidence-0.55) > 1e-9 {
		t.Errorf("expected confidence 0.55 after negative validation, got %f", r.Confidence)
	}
	if r.EvidenceCount != 2 {
		t.Errorf("expected evidence count 2, got %d", r.EvidenceCount)
	}
}

func TestAutoBoostClampsAtNinePointZero(t *testing.T) {
	db, idx := newTestStore(t)
	c := New(db, idx, nil, nil, DefaultConfig())

	id, _ := db.InsertRecord(&database.Record{Content: "x", Type: "fact", Domain: "go", Confidence: 0.85})

	if err := c.AutoBoost(id, 0.1); err != nil {
		t.Fatalf("auto boost failed: %v", err)
	}
	r, _ := db.GetRecord(id)
	if r.Confidence != 0.9 {
		t.Errorf("expected confidence clamped to 0.9, got %f", r.Confidence)
	}
	if r.AccessCount != 1 {
		t.Errorf("expected auto boost to mark the record used, got access count %d", r.AccessCount)
	}
}

func TestMarkUsedIncrementsAccessCount(t *testing.T) {
	db, idx := newTestStore(t)
	c := New(db, idx, nil, nil, DefaultConfig())

	id, _ := db.InsertRecord(&database.Record{Content: "x", Type: "fact", Domain: "go"})
	if err := c.MarkUsed([]int64{id}); err != nil {
		t.Fatalf("mark used failed: %v", err)
	}
	r, _ := db.GetRecord(id)
	if r.AccessCount != 1 {
		t.Errorf("expected access count 1, got %d", r.AccessCount)
	}
	if r.LastAccessedAt == nil {
		t.Errorf("expected last accessed timestamp to be set")
	}
}

func TestDecayHalfLifeAtExactlyOneHalfLife(t *testing.T) {
	created := time.Now().Add(-90 * 24 * time.Hour)
	weight := Decay(created, "fact")
	if weight < 0.49 || weight > 0.51 {
		t.Errorf("expected weight near 0.5 at one half-life, got %f", weight)
	}
}

func TestDecayFloorsAtMinWeight(t *testing.T) {
	created := time.Now().Add(-3650 * 24 * time.Hour)
	weight := Decay(created, "session")
	if weight != 0.1 {
		t.Errorf("expected session decay to floor at 0.1, got %f", weight)
	}
}

func TestDecayPermanentTypesNeverDecay(t *testing.T) {
	created := time.Now().Add(-10 * 365 * 24 * time.Hour)
	if w := Decay(created, "permanent"); w != 1.0 {
		t.Errorf("expected permanent type weight 1.0, got %f", w)
	}
	if w := Decay(created, "skill"); w != 1.0 {
		t.Errorf("expected skill type weight 1.0, got %f", w)
	}
}

func TestDecayUnknownTypeDefaultsToContext(t *testing.T) {
	created := time.Now().Add(-30 * 24 * time.Hour)
	got := Decay(created, "some-unlisted-type")
	want := Decay(created, "context")
	if got != want {
		t.Errorf("expected unknown type to use context's decay params, got %f want %f", got, want)
	}
}

func TestMergeClusterFallbackWithoutStructurer(t *testing.T) {
	db, idx := newTestStore(t)
	c := New(db, idx, nil, nil, DefaultConfig())

	clusterID, err := db.InsertCluster(&database.Cluster{
		Theme: "retry-logic", Domain: "ci", Centroid: []float32{1, 0, 0, 0},
		MemberCount: 5, AvgConfidence: 0.7, Status: "mature",
	})
	if err != nil {
		t.Fatalf("insert cluster: %v", err)
	}

	var memberIDs []int64
	for _, content := range []string{"member one", "member two"} {
		id, err := db.InsertRecord(&database.Record{Content: content, Type: "pattern", Domain: "ci"})
		if err != nil {
			t.Fatalf("insert member: %v", err)
		}
		if err := db.UpdateFields(id, &database.RecordUpdate{ClusterID: &clusterID}); err != nil {
			t.Fatalf("assign member: %v", err)
		}
		memberIDs = append(memberIDs, id)
	}

	result, err := c.MergeCluster(context.Background(), clusterID)
	if err != nil {
		t.Fatalf("merge cluster failed: %v", err)
	}
	if !result.UsedFallback {
		t.Errorf("expected fallback merge without a structurer client")
	}

	merged, err := db.GetRecord(result.NewRecordID)
	if err != nil || merged == nil {
		t.Fatalf("expected merged record to be persisted: %v", err)
	}
	if merged.Source != "cluster-merge" {
		t.Errorf("expected source cluster-merge, got %s", merged.Source)
	}
	if merged.Confidence != 0.85 {
		t.Errorf("expected fallback confidence 0.85, got %f", merged.Confidence)
	}

	for _, id := range memberIDs {
		if r, _ := db.GetRecord(id); r != nil {
			t.Errorf("expected member record %d to be deleted after merge", id)
		}
	}

	updatedCluster, err := db.GetCluster(clusterID)
	if err != nil {
		t.Fatalf("get cluster: %v", err)
	}
	if updatedCluster.Status != "merged" {
		t.Errorf("expected cluster status merged, got %s", updatedCluster.Status)
	}
	if updatedCluster.EvolvedAt == nil {
		t.Errorf("expected evolved_at to be set")
	}
}

func TestInferThemeFallsBackToGeneralPattern(t *testing.T) {
	members := []*database.Record{
		{Content: "is it at in on"},
	}
	if theme := inferTheme(members); theme != "general-pattern" {
		t.Errorf("expected fallback theme, got %q", theme)
	}
}

func TestJaccardSimilarity(t *testing.T) {
	a := "the quick brown fox jumps"
	b := "the quick brown fox jumps"
	if sim := jaccard(a, b); sim != 1 {
		t.Errorf("expected identical texts to score 1.0, got %f", sim)
	}

	c := "completely different content entirely"
	if sim := jaccard(a, c); sim >= 0.95 {
		t.Errorf("expected dissimilar texts to score below threshold, got %f", sim)
	}
}
