package relationships

import (
	"path/filepath"
	"testing"

	"github.com/mycelicmemory/memengine/internal/database"
	"github.com/mycelicmemory/memengine/pkg/config"
)

func newTestRelationshipService(t *testing.T) *Service {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.InitSchema(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.DefaultConfig()
	return NewService(db, cfg)
}

func createTestMemory(t *testing.T, db *database.Database, content string) int64 {
	t.Helper()

	id, err := db.InsertRecord(&database.Record{Content: content, Type: "fact", Domain: "go"})
	if err != nil {
		t.Fatalf("failed to create test memory: %v", err)
	}
	return id
}

func TestRelationshipService(t *testing.T) {
	svc := newTestRelationshipService(t)

	mem1 := createTestMemory(t, svc.db, "Memory 1 about Go programming")
	mem2 := createTestMemory(t, svc.db, "Memory 2 about Go concurrency")
	mem3 := createTestMemory(t, svc.db, "Memory 3 about Python")

	t.Run("CreateRelationship", func(t *testing.T) {
		rel, err := svc.Create(&CreateOptions{
			SourceMemoryID:   mem1,
			TargetMemoryID:   mem2,
			RelationshipType: "references",
			Strength:         0.8,
			Context:          "Both about Go",
		})
		if err != nil {
			t.Fatalf("failed to create relationship: %v", err)
		}
		if rel.ID == 0 {
			t.Error("relationship id should be generated")
		}
		if rel.RelationshipType != "references" {
			t.Errorf("expected type 'references', got %s", rel.RelationshipType)
		}
		if rel.Strength != 0.8 {
			t.Errorf("expected strength 0.8, got %f", rel.Strength)
		}
	})

	t.Run("CreateWithAllTypes", func(t *testing.T) {
		types := []string{"references", "contradicts", "expands", "similar", "sequential", "causes", "enables"}

		for _, relType := range types {
			rel, err := svc.Create(&CreateOptions{
				SourceMemoryID:   mem1,
				TargetMemoryID:   mem3,
				RelationshipType: relType,
				Strength:         0.5,
			})
			if err != nil {
				t.Errorf("failed to create %s relationship: %v", relType, err)
				continue
			}
			if rel.RelationshipType != relType {
				t.Errorf("expected type %s, got %s", relType, rel.RelationshipType)
			}
		}
	})

	t.Run("CreateInvalidType", func(t *testing.T) {
		_, err := svc.Create(&CreateOptions{
			SourceMemoryID:   mem1,
			TargetMemoryID:   mem2,
			RelationshipType: "invalid-type",
			Strength:         0.5,
		})
		if err == nil {
			t.Error("expected error for invalid relationship type")
		}
	})

	t.Run("CreateNonexistentSource", func(t *testing.T) {
		_, err := svc.Create(&CreateOptions{
			SourceMemoryID:   999999,
			TargetMemoryID:   mem2,
			RelationshipType: "references",
			Strength:         0.5,
		})
		if err == nil {
			t.Error("expected error for nonexistent source")
		}
	})

	t.Run("CreateNonexistentTarget", func(t *testing.T) {
		_, err := svc.Create(&CreateOptions{
			SourceMemoryID:   mem1,
			TargetMemoryID:   999999,
			RelationshipType: "references",
			Strength:         0.5,
		})
		if err == nil {
			t.Error("expected error for nonexistent target")
		}
	})

	t.Run("CreateDefaultStrength", func(t *testing.T) {
		rel, err := svc.Create(&CreateOptions{
			SourceMemoryID:   mem2,
			TargetMemoryID:   mem3,
			RelationshipType: "similar",
			Strength:         -1,
		})
		if err != nil {
			t.Fatalf("failed to create relationship: %v", err)
		}
		if rel.Strength != 0.5 {
			t.Errorf("expected default strength 0.5, got %f", rel.Strength)
		}
	})

	t.Run("CreateCappedStrength", func(t *testing.T) {
		rel, err := svc.Create(&CreateOptions{
			SourceMemoryID:   mem2,
			TargetMemoryID:   mem3,
			RelationshipType: "expands",
			Strength:         1.5,
		})
		if err != nil {
			t.Fatalf("failed to create relationship: %v", err)
		}
		if rel.Strength != 1.0 {
			t.Errorf("expected capped strength 1.0, got %f", rel.Strength)
		}
	})
}

func TestFindRelated(t *testing.T) {
	svc := newTestRelationshipService(t)

	memA := createTestMemory(t, svc.db, "Memory A")
	memB := createTestMemory(t, svc.db, "Memory B")
	memC := createTestMemory(t, svc.db, "Memory C")

	if _, err := svc.Create(&CreateOptions{SourceMemoryID: memA, TargetMemoryID: memB, RelationshipType: "references", Strength: 0.8}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(&CreateOptions{SourceMemoryID: memB, TargetMemoryID: memC, RelationshipType: "expands", Strength: 0.6}); err != nil {
		t.Fatalf("create: %v", err)
	}

	t.Run("FindRelatedBasic", func(t *testing.T) {
		results, err := svc.FindRelated(&FindRelatedOptions{MemoryID: memA})
		if err != nil {
			t.Fatalf("find related failed: %v", err)
		}
		if len(results) == 0 {
			t.Error("expected at least 1 related memory")
		}
	})

	t.Run("FindRelatedWithTypeFilter", func(t *testing.T) {
		results, err := svc.FindRelated(&FindRelatedOptions{MemoryID: memB, Type: "references"})
		if err != nil {
			t.Fatalf("find related failed: %v", err)
		}
		if len(results) != 1 {
			t.Errorf("expected 1 related memory with 'references' type, got %d", len(results))
		}
	})

	t.Run("FindRelatedNoID", func(t *testing.T) {
		_, err := svc.FindRelated(&FindRelatedOptions{})
		if err == nil {
			t.Error("expected error for empty memory_id")
		}
	})

	t.Run("FindRelatedNonexistent", func(t *testing.T) {
		_, err := svc.FindRelated(&FindRelatedOptions{MemoryID: 999999})
		if err == nil {
			t.Error("expected error for nonexistent memory")
		}
	})
}

func TestMapGraph(t *testing.T) {
	svc := newTestRelationshipService(t)

	memA := createTestMemory(t, svc.db, "Memory A")
	memB := createTestMemory(t, svc.db, "Memory B")
	memC := createTestMemory(t, svc.db, "Memory C")
	memD := createTestMemory(t, svc.db, "Memory D")

	if _, err := svc.Create(&CreateOptions{SourceMemoryID: memA, TargetMemoryID: memB, RelationshipType: "sequential", Strength: 0.9}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(&CreateOptions{SourceMemoryID: memB, TargetMemoryID: memC, RelationshipType: "sequential", Strength: 0.8}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(&CreateOptions{SourceMemoryID: memC, TargetMemoryID: memD, RelationshipType: "sequential", Strength: 0.7}); err != nil {
		t.Fatalf("create: %v", err)
	}

	t.Run("MapGraphDepth1", func(t *testing.T) {
		result, err := svc.MapGraph(&MapGraphOptions{RootID: memA, Depth: 1})
		if err != nil {
			t.Fatalf("map graph failed: %v", err)
		}
		if result.TotalNodes != 2 {
			t.Errorf("expected 2 nodes at depth 1, got %d", result.TotalNodes)
		}
	})

	t.Run("MapGraphDepth2", func(t *testing.T) {
		result, err := svc.MapGraph(&MapGraphOptions{RootID: memA, Depth: 2})
		if err != nil {
			t.Fatalf("map graph failed: %v", err)
		}
		if result.TotalNodes != 3 {
			t.Errorf("expected 3 nodes at depth 2, got %d", result.TotalNodes)
		}
	})

	t.Run("MapGraphDefaultDepth", func(t *testing.T) {
		result, err := svc.MapGraph(&MapGraphOptions{RootID: memA})
		if err != nil {
			t.Fatalf("map graph failed: %v", err)
		}
		if result.MaxDepth != 2 {
			t.Errorf("expected default max depth 2, got %d", result.MaxDepth)
		}
	})

	t.Run("MapGraphMaxDepth", func(t *testing.T) {
		result, err := svc.MapGraph(&MapGraphOptions{RootID: memA, Depth: 10})
		if err != nil {
			t.Fatalf("map graph failed: %v", err)
		}
		if result.MaxDepth != 5 {
			t.Errorf("expected capped max depth 5, got %d", result.MaxDepth)
		}
	})

	t.Run("MapGraphNoID", func(t *testing.T) {
		_, err := svc.MapGraph(&MapGraphOptions{})
		if err == nil {
			t.Error("expected error for empty root_id")
		}
	})

	t.Run("MapGraphNonexistent", func(t *testing.T) {
		_, err := svc.MapGraph(&MapGraphOptions{RootID: 999999})
		if err == nil {
			t.Error("expected error for nonexistent memory")
		}
	})

	t.Run("MapGraphWithTypeFilter", func(t *testing.T) {
		result, err := svc.MapGraph(&MapGraphOptions{RootID: memA, Depth: 3, IncludeTypes: []string{"sequential"}})
		if err != nil {
			t.Fatalf("map graph failed: %v", err)
		}
		for _, edge := range result.Edges {
			if edge.Type != "sequential" {
				t.Errorf("expected only 'sequential' edges, got %s", edge.Type)
			}
		}
	})

	t.Run("MapGraphWithStrengthFilter", func(t *testing.T) {
		result, err := svc.MapGraph(&MapGraphOptions{RootID: memA, Depth: 3, MinStrength: 0.85})
		if err != nil {
			t.Fatalf("map graph failed: %v", err)
		}
		for _, edge := range result.Edges {
			if edge.Strength < 0.85 {
				t.Errorf("expected only edges with strength >= 0.85, got %f", edge.Strength)
			}
		}
	})
}

func TestDiscover(t *testing.T) {
	svc := newTestRelationshipService(t)

	createTestMemory(t, svc.db, "Go programming")
	createTestMemory(t, svc.db, "Go concurrency")

	t.Run("DiscoverBasic", func(t *testing.T) {
		results, err := svc.Discover(&DiscoverOptions{Limit: 10})
		if err != nil {
			t.Fatalf("discover failed: %v", err)
		}
		_ = results
	})
}

func TestGetRelationshipTypes(t *testing.T) {
	types := GetRelationshipTypes()

	if len(types) != 7 {
		t.Errorf("expected 7 relationship types, got %d", len(types))
	}

	expectedTypes := map[string]bool{
		"references":  true,
		"contradicts": true,
		"expands":     true,
		"similar":     true,
		"sequential":  true,
		"causes":      true,
		"enables":     true,
	}

	for _, rt := range types {
		if !expectedTypes[rt.Name] {
			t.Errorf("unexpected relationship type: %s", rt.Name)
		}
		if rt.Description == "" {
			t.Errorf("relationship type %s has empty description", rt.Name)
		}
	}
}

func TestValidateRelationshipType(t *testing.T) {
	validTypes := []string{"references", "contradicts", "expands", "similar", "sequential", "causes", "enables"}
	for _, rt := range validTypes {
		if err := ValidateRelationshipType(rt); err != nil {
			t.Errorf("expected %s to be valid, got error: %v", rt, err)
		}
	}

	if err := ValidateRelationshipType("REFERENCES"); err != nil {
		t.Error("expected case-insensitive validation")
	}

	invalidTypes := []string{"invalid", "relates", "links", ""}
	for _, rt := range invalidTypes {
		if err := ValidateRelationshipType(rt); err == nil {
			t.Errorf("expected %q to be invalid", rt)
		}
	}
}
