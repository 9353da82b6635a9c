package database

import (
	"os"
	"path/filepath"
	"testing"
)

// TestDatabaseOpenClose tests database connection lifecycle
func TestDatabaseOpenClose(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}

	if err := db.Close(); err != nil {
		t.Fatalf("Failed to close database: %v", err)
	}
}

// TestDatabaseInitSchema tests schema initialization
func TestDatabaseInitSchema(t *testing.T) {
	db := newTestDB(t)

	version, err := db.GetSchemaVersion()
	if err != nil {
		t.Fatalf("Failed to get schema version: %v", err)
	}
	if version != SchemaVersion {
		t.Errorf("Expected schema version %d, got %d", SchemaVersion, version)
	}

	tables := []string{
		"memories", "clusters", "memory_relationships",
		"domains", "agent_sessions", "schema_version", "memories_fts",
	}

	for _, table := range tables {
		exists, err := db.TableExists(table)
		if err != nil {
			t.Fatalf("Failed to check table %s: %v", table, err)
		}
		if !exists {
			t.Errorf("Table %s should exist", table)
		}
	}
}

// TestRecordCRUD tests record create, read, update, delete operations
func TestRecordCRUD(t *testing.T) {
	db := newTestDB(t)

	t.Run("Create", func(t *testing.T) {
		r := &Record{
			Content:    "Test memory content",
			Confidence: 0.7,
			Tags:       []string{"test", "golang"},
			Domain:     "testing",
			Type:       "context",
		}

		id, err := db.InsertRecord(r)
		if err != nil {
			t.Fatalf("Failed to insert record: %v", err)
		}
		if id == 0 {
			t.Error("Record ID should be generated")
		}
		if r.CreatedAt.IsZero() {
			t.Error("CreatedAt should be set")
		}
	})

	t.Run("CreateWithDefaults", func(t *testing.T) {
		r := &Record{Content: "Minimal memory"}
		id, err := db.InsertRecord(r)
		if err != nil {
			t.Fatalf("Failed to insert record: %v", err)
		}

		retrieved, err := db.GetRecord(id)
		if err != nil {
			t.Fatalf("Failed to get record: %v", err)
		}
		if retrieved.Type != "context" {
			t.Errorf("Expected default type 'context', got %s", retrieved.Type)
		}
		if retrieved.Domain != "general" {
			t.Errorf("Expected default domain 'general', got %s", retrieved.Domain)
		}
		if retrieved.Source != "user" {
			t.Errorf("Expected default source 'user', got %s", retrieved.Source)
		}
	})

	t.Run("ConfidenceClamped", func(t *testing.T) {
		r := &Record{Content: "Too confident", Confidence: 2.0}
		id, _ := db.InsertRecord(r)
		retrieved, _ := db.GetRecord(id)
		if retrieved.Confidence != 0.9 {
			t.Errorf("Expected confidence clamped to 0.9, got %f", retrieved.Confidence)
		}

		r2 := &Record{Content: "Too low", Confidence: -1.0}
		id2, _ := db.InsertRecord(r2)
		retrieved2, _ := db.GetRecord(id2)
		if retrieved2.Confidence != 0.3 {
			t.Errorf("Expected confidence clamped to 0.3, got %f", retrieved2.Confidence)
		}
	})

	t.Run("Read", func(t *testing.T) {
		r := &Record{
			Content:    "Read test memory",
			Confidence: 0.8,
			Tags:       []string{"read", "test"},
			Source:     "tool",
			Domain:     "testing",
		}
		id, err := db.InsertRecord(r)
		if err != nil {
			t.Fatalf("Failed to insert record: %v", err)
		}

		retrieved, err := db.GetRecord(id)
		if err != nil {
			t.Fatalf("Failed to get record: %v", err)
		}
		if retrieved == nil {
			t.Fatal("Expected record, got nil")
		}
		if retrieved.Content != r.Content {
			t.Errorf("Content mismatch: expected %q, got %q", r.Content, retrieved.Content)
		}
		if len(retrieved.Tags) != 2 {
			t.Errorf("Expected 2 tags, got %d", len(retrieved.Tags))
		}
		if retrieved.Source != r.Source {
			t.Errorf("Source mismatch: expected %q, got %q", r.Source, retrieved.Source)
		}
	})

	t.Run("ReadNotFound", func(t *testing.T) {
		retrieved, err := db.GetRecord(999999)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if retrieved != nil {
			t.Error("Expected nil for nonexistent record")
		}
	})

	t.Run("Update", func(t *testing.T) {
		r := &Record{Content: "Original content", Confidence: 0.5}
		id, _ := db.InsertRecord(r)

		newContent := "Updated content"
		newConfidence := 0.9
		err := db.UpdateFields(id, &RecordUpdate{
			Content:    &newContent,
			Confidence: &newConfidence,
		})
		if err != nil {
			t.Fatalf("Failed to update record: %v", err)
		}

		retrieved, _ := db.GetRecord(id)
		if retrieved.Content != newContent {
			t.Errorf("Content not updated: expected %q, got %q", newContent, retrieved.Content)
		}
		if retrieved.Confidence != newConfidence {
			t.Errorf("Confidence not updated: expected %f, got %f", newConfidence, retrieved.Confidence)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		r := &Record{Content: "To be deleted"}
		id, _ := db.InsertRecord(r)

		if err := db.DeleteRecord(id); err != nil {
			t.Fatalf("Failed to delete record: %v", err)
		}

		retrieved, _ := db.GetRecord(id)
		if retrieved != nil {
			t.Error("Record should be deleted")
		}
	})
}

// TestRecentByTypeDomain tests the Curator's dedup candidate query
func TestRecentByTypeDomain(t *testing.T) {
	db := newTestDB(t)

	for i := 0; i < 5; i++ {
		db.InsertRecord(&Record{Content: "entry", Type: "pattern", Domain: "go"})
	}
	db.InsertRecord(&Record{Content: "other", Type: "context", Domain: "go"})

	results, err := db.RecentByTypeDomain("pattern", "go", 3)
	if err != nil {
		t.Fatalf("RecentByTypeDomain failed: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("expected 3 results, got %d", len(results))
	}
}

// TestUnclusteredMemories tests auto_cluster's candidate pool query
func TestUnclusteredMemories(t *testing.T) {
	db := newTestDB(t)

	id1, _ := db.InsertRecord(&Record{Content: "a", Domain: "go", Confidence: 0.8})
	db.InsertRecord(&Record{Content: "b", Domain: "go", Confidence: 0.2})

	clusterID, _ := db.InsertCluster(&Cluster{Domain: "go", Centroid: []float32{1, 0}})
	db.UpdateFields(id1, &RecordUpdate{ClusterID: &clusterID})

	results, err := db.UnclusteredMemories(UnclusteredOptions{Domain: "go", MinConfidence: 0.5})
	if err != nil {
		t.Fatalf("UnclusteredMemories failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected 0 unclustered memories above confidence threshold, got %d", len(results))
	}
}

// TestFullTextSearch tests the mixed-script lexical search paths
func TestFullTextSearch(t *testing.T) {
	db := newTestDB(t)

	testData := []struct {
		content string
	}{
		{"Go programming language basics"},
		{"Python for data science"},
		{"JavaScript frontend development"},
		{"Go advanced concurrency patterns"},
		{"数据库连接池设计与优化"},
	}

	for _, td := range testData {
		db.InsertRecord(&Record{Content: td.content, Domain: "programming"})
	}

	t.Run("AsciiPhraseSearch", func(t *testing.T) {
		results, err := db.FullTextSearch("Go", 10)
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if len(results) != 2 {
			t.Errorf("expected 2 results for 'Go', got %d", len(results))
		}
	})

	t.Run("NoResults", func(t *testing.T) {
		results, err := db.FullTextSearch("nonexistent content xyz987", 10)
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if len(results) != 0 {
			t.Errorf("expected 0 results, got %d", len(results))
		}
	})

	t.Run("CJKSubstringSearch", func(t *testing.T) {
		results, err := db.FullTextSearch("数据库连接", 10)
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if len(results) == 0 {
			t.Error("expected at least 1 CJK substring result")
		}
	})

	t.Run("SearchWithLimit", func(t *testing.T) {
		results, err := db.FullTextSearch("development", 1)
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if len(results) > 1 {
			t.Errorf("expected at most 1 result, got %d", len(results))
		}
	})

	t.Run("EmptyQuery", func(t *testing.T) {
		results, err := db.FullTextSearch("", 10)
		if err != nil {
			t.Fatalf("unexpected error on empty query: %v", err)
		}
		if len(results) != 0 {
			t.Errorf("expected 0 results for empty query, got %d", len(results))
		}
	})
}

// TestClusterCRUD tests cluster create/read/update and domain scan
func TestClusterCRUD(t *testing.T) {
	db := newTestDB(t)

	t.Run("Create", func(t *testing.T) {
		c := &Cluster{
			Theme:    "error-handling",
			Domain:   "go",
			Centroid: []float32{0.1, 0.2, 0.3},
		}
		id, err := db.InsertCluster(c)
		if err != nil {
			t.Fatalf("Failed to insert cluster: %v", err)
		}
		if id == 0 {
			t.Error("Cluster ID should be generated")
		}
		if c.Status != "growing" {
			t.Errorf("expected default status 'growing', got %s", c.Status)
		}
	})

	t.Run("CentroidRoundTrip", func(t *testing.T) {
		centroid := []float32{0.5, -0.25, 1.75, 0.0}
		c := &Cluster{Domain: "go", Centroid: centroid}
		id, _ := db.InsertCluster(c)

		retrieved, err := db.GetCluster(id)
		if err != nil {
			t.Fatalf("Failed to get cluster: %v", err)
		}
		if len(retrieved.Centroid) != len(centroid) {
			t.Fatalf("centroid length mismatch: expected %d, got %d", len(centroid), len(retrieved.Centroid))
		}
		for i, v := range centroid {
			if retrieved.Centroid[i] != v {
				t.Errorf("centroid[%d] mismatch: expected %f, got %f", i, v, retrieved.Centroid[i])
			}
		}
	})

	t.Run("Update", func(t *testing.T) {
		c := &Cluster{Domain: "go", Centroid: []float32{1, 0}, Status: "growing"}
		id, _ := db.InsertCluster(c)

		c.ID = id
		c.Status = "mature"
		c.MemberCount = 5
		if err := db.UpdateCluster(c); err != nil {
			t.Fatalf("Failed to update cluster: %v", err)
		}

		retrieved, _ := db.GetCluster(id)
		if retrieved.Status != "mature" {
			t.Errorf("expected status 'mature', got %s", retrieved.Status)
		}
		if retrieved.MemberCount != 5 {
			t.Errorf("expected member count 5, got %d", retrieved.MemberCount)
		}
	})

	t.Run("ClustersInDomain", func(t *testing.T) {
		db.InsertCluster(&Cluster{Domain: "rust", Centroid: []float32{1}})
		db.InsertCluster(&Cluster{Domain: "rust", Centroid: []float32{2}})
		mergedID, _ := db.InsertCluster(&Cluster{Domain: "rust", Centroid: []float32{3}})
		c, _ := db.GetCluster(mergedID)
		c.Status = "merged"
		db.UpdateCluster(c)

		results, err := db.ClustersInDomain("rust")
		if err != nil {
			t.Fatalf("ClustersInDomain failed: %v", err)
		}
		if len(results) != 2 {
			t.Errorf("expected 2 active clusters, got %d", len(results))
		}
	})
}

// TestClusterMembers tests the cluster membership lookup
func TestClusterMembers(t *testing.T) {
	db := newTestDB(t)

	clusterID, _ := db.InsertCluster(&Cluster{Domain: "go", Centroid: []float32{1}})
	id1, _ := db.InsertRecord(&Record{Content: "a", Domain: "go"})
	id2, _ := db.InsertRecord(&Record{Content: "b", Domain: "go"})
	db.InsertRecord(&Record{Content: "c", Domain: "go"})

	db.UpdateFields(id1, &RecordUpdate{ClusterID: &clusterID})
	db.UpdateFields(id2, &RecordUpdate{ClusterID: &clusterID})

	members, err := db.ClusterMembers(clusterID)
	if err != nil {
		t.Fatalf("ClusterMembers failed: %v", err)
	}
	if len(members) != 2 {
		t.Errorf("expected 2 cluster members, got %d", len(members))
	}
}

// TestRelationshipTypes tests validation of relationship types
func TestRelationshipTypes(t *testing.T) {
	for _, rt := range RelationshipTypes {
		if !IsValidRelationshipType(rt) {
			t.Errorf("Type %q should be valid", rt)
		}
	}

	invalidTypes := []string{"invalid", "links", ""}
	for _, rt := range invalidTypes {
		if IsValidRelationshipType(rt) {
			t.Errorf("Type %q should be invalid", rt)
		}
	}
}

// TestRecordTypes tests validation of record types
func TestRecordTypes(t *testing.T) {
	for _, rt := range RecordTypes {
		if !IsValidRecordType(rt) {
			t.Errorf("Record type %q should be valid", rt)
		}
	}

	invalidTypes := []string{"invalid", "note", ""}
	for _, rt := range invalidTypes {
		if IsValidRecordType(rt) {
			t.Errorf("Record type %q should be invalid", rt)
		}
	}
}

// TestDatabaseStats tests statistics retrieval
func TestDatabaseStats(t *testing.T) {
	db := newTestDB(t)

	for i := 0; i < 5; i++ {
		db.InsertRecord(&Record{Content: "Test memory"})
	}
	db.Exec(`INSERT INTO domains (name, created_at, updated_at) VALUES (?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`, "go")

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.MemoryCount != 5 {
		t.Errorf("Expected 5 memories, got %d", stats.MemoryCount)
	}
	if stats.DomainCount != 1 {
		t.Errorf("Expected 1 domain, got %d", stats.DomainCount)
	}
	if stats.SchemaVersion != SchemaVersion {
		t.Errorf("Expected schema version %d, got %d", SchemaVersion, stats.SchemaVersion)
	}
}

// TestCascadeDelete tests that relationships are deleted when a memory is deleted
func TestCascadeDelete(t *testing.T) {
	db := newTestDB(t)

	id1, _ := db.InsertRecord(&Record{Content: "Memory 1"})
	id2, _ := db.InsertRecord(&Record{Content: "Memory 2"})

	_, err := db.Exec(`
		INSERT INTO memory_relationships (source_memory_id, target_memory_id, relationship_type, strength, created_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, id1, id2, "references", 0.5)
	if err != nil {
		t.Fatalf("failed to insert relationship: %v", err)
	}

	var relCount int
	db.QueryRow("SELECT COUNT(*) FROM memory_relationships").Scan(&relCount)
	if relCount != 1 {
		t.Fatalf("Expected 1 relationship, got %d", relCount)
	}

	if err := db.DeleteRecord(id1); err != nil {
		t.Fatalf("failed to delete record: %v", err)
	}

	db.QueryRow("SELECT COUNT(*) FROM memory_relationships").Scan(&relCount)
	if relCount != 0 {
		t.Errorf("Expected 0 relationships after cascade delete, got %d", relCount)
	}
}

// TestFTS5Triggers tests that FTS5 triggers keep the full-text index in sync
func TestFTS5Triggers(t *testing.T) {
	db := newTestDB(t)

	r := &Record{Content: "Unique searchable content xyz123"}
	id, _ := db.InsertRecord(r)

	results, err := db.FullTextSearch("xyz123", 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("Expected 1 result after insert, got %d", len(results))
	}

	newContent := "Updated unique content abc789"
	if err := db.UpdateFields(id, &RecordUpdate{Content: &newContent}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	results, _ = db.FullTextSearch("xyz123", 10)
	if len(results) != 0 {
		t.Errorf("Expected 0 results for old content, got %d", len(results))
	}

	results, _ = db.FullTextSearch("abc789", 10)
	if len(results) != 1 {
		t.Errorf("Expected 1 result for new content, got %d", len(results))
	}

	db.DeleteRecord(id)

	results, _ = db.FullTextSearch("abc789", 10)
	if len(results) != 0 {
		t.Errorf("Expected 0 results after delete, got %d", len(results))
	}
}

// newTestDB creates a fully-initialized temp-file test database.
func newTestDB(t *testing.T) *Database {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	if err := db.InitSchema(); err != nil {
		t.Fatalf("Failed to initialize schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}
