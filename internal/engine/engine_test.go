package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mycelicmemory/memengine/internal/curator"
	"github.com/mycelicmemory/memengine/internal/retriever"
	"github.com/mycelicmemory/memengine/internal/vectorindex"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	dir := t.TempDir()
	e, err := Open(Config{
		DatabasePath:      filepath.Join(dir, "memory.db"),
		VectorPath:        filepath.Join(dir, "vectors.bin"),
		VectorConfig:      vectorindex.Config{Dimensions: 4},
		DisableEmbedder:   true,
		DisableStructurer: true,
	})
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	t.Cleanup(func() {
		if err := e.Close(); err != nil {
			t.Errorf("close engine: %v", err)
		}
	})
	return e
}

func TestOpenWiresAllComponents(t *testing.T) {
	e := newTestEngine(t)
	if e.Retriever == nil || e.Curator == nil {
		t.Fatalf("expected Retriever and Curator to be wired")
	}
	if e.Embedder != nil || e.Structurer != nil {
		t.Fatalf("expected gateway clients to be nil when disabled")
	}
}

func TestSaveThenSearchRoundTrip(t *testing.T) {
	e := newTestEngine(t)

	outcome, err := e.Curator.Save(context.Background(), "goroutines communicate over channels", curator.SaveOptions{
		Type: "fact", Domain: "go", SkipStructurize: true,
	})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !outcome.Created {
		t.Fatalf("expected created outcome, got %+v", outcome)
	}

	results, err := e.Retriever.QuickSearch("channels", 5, retriever.Filters{})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 1 || results[0].Record.ID != outcome.ID {
		t.Fatalf("expected saved record to be findable, got %+v", results)
	}
}

func TestStatsReportsStoreAndVectorIndex(t *testing.T) {
	e := newTestEngine(t)

	stats, err := e.Stats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.MemoryCount != 0 {
		t.Errorf("expected empty store, got %d memories", stats.MemoryCount)
	}
}

func TestPingReportsGatewaysDownWhenDisabled(t *testing.T) {
	e := newTestEngine(t)
	embedderUp, structurerUp := e.Ping(context.Background())
	if embedderUp || structurerUp {
		t.Errorf("expected both gateways reported down when disabled")
	}
}

func TestIsKindMatchesWrappedError(t *testing.T) {
	err := newError(KindStoreIntegrity, "test_op", context.DeadlineExceeded)
	if !IsKind(err, KindStoreIntegrity) {
		t.Errorf("expected IsKind to match the wrapped error's kind")
	}
	if IsKind(err, KindDependencyUnavailable) {
		t.Errorf("expected IsKind to reject a mismatched kind")
	}
}
