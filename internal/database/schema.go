package database

// SchemaVersion is the current schema version.
const SchemaVersion = 1

// CoreSchema contains the relational table definitions backing the
// Record, Cluster, relationship-graph, and category/domain catalog.
const CoreSchema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- =============================================================================
-- MEMORIES TABLE
-- One row per Record.
-- =============================================================================
CREATE TABLE IF NOT EXISTS memories (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	content TEXT NOT NULL,
	structured TEXT,
	summary TEXT NOT NULL DEFAULT '',
	keywords TEXT NOT NULL DEFAULT '',
	tags TEXT NOT NULL DEFAULT '[]',
	type TEXT NOT NULL DEFAULT 'context' CHECK (
		type IN ('fact','decision','bug','pattern','context','preference','skill','session','learned','permanent')
	),
	domain TEXT NOT NULL DEFAULT 'general',
	confidence REAL NOT NULL DEFAULT 0.5 CHECK (confidence >= 0.3 AND confidence <= 0.9),
	evidence_count INTEGER NOT NULL DEFAULT 0,
	access_count INTEGER NOT NULL DEFAULT 0,
	last_accessed_at DATETIME,
	cluster_id INTEGER REFERENCES clusters(id) ON DELETE SET NULL,
	source TEXT NOT NULL DEFAULT 'user',
	session_id TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	promoted_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_memories_type_domain ON memories(type, domain);
CREATE INDEX IF NOT EXISTS idx_memories_domain ON memories(domain);
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);
CREATE INDEX IF NOT EXISTS idx_memories_cluster ON memories(cluster_id);
CREATE INDEX IF NOT EXISTS idx_memories_confidence ON memories(confidence);
CREATE INDEX IF NOT EXISTS idx_memories_session ON memories(session_id);

-- =============================================================================
-- CLUSTERS TABLE
-- One row per Cluster. centroid is a gob-encoded []float32,
-- not necessarily unit norm.
-- =============================================================================
CREATE TABLE IF NOT EXISTS clusters (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	theme TEXT NOT NULL DEFAULT 'general-pattern',
	domain TEXT NOT NULL,
	centroid BLOB NOT NULL,
	member_count INTEGER NOT NULL DEFAULT 0,
	avg_confidence REAL NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'growing' CHECK (status IN ('growing','mature','merged')),
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	evolved_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_clusters_domain ON clusters(domain);
CREATE INDEX IF NOT EXISTS idx_clusters_status ON clusters(status);

-- =============================================================================
-- MEMORY RELATIONSHIPS TABLE
-- Supplemented feature: typed graph edges between memories.
-- =============================================================================
CREATE TABLE IF NOT EXISTS memory_relationships (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_memory_id INTEGER NOT NULL,
	target_memory_id INTEGER NOT NULL,
	relationship_type TEXT NOT NULL CHECK (
		relationship_type IN ('references','contradicts','expands','similar','sequential','causes','enables')
	),
	strength REAL NOT NULL CHECK (strength >= 0.0 AND strength <= 1.0),
	context TEXT,
	auto_generated BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (source_memory_id) REFERENCES memories(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_relationships_source ON memory_relationships(source_memory_id);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON memory_relationships(target_memory_id);
CREATE INDEX IF NOT EXISTS idx_relationships_type ON memory_relationships(relationship_type);

-- =============================================================================
-- CATEGORIES / DOMAINS CATALOG
-- Supplemented feature: descriptive catalog over the
-- domain tag, used only by CLI listing/stats output.
-- =============================================================================
CREATE TABLE IF NOT EXISTS domains (
	name TEXT PRIMARY KEY,
	description TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS agent_sessions (
	session_id TEXT PRIMARY KEY,
	agent_type TEXT NOT NULL DEFAULT 'unknown',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_accessed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	is_active BOOLEAN NOT NULL DEFAULT 1
);
`

// FTS5Schema contains the standalone FTS5 virtual table and the
// insert/delete/update triggers that keep it synchronized with the
// memories table.
const FTS5Schema = `
CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
	id UNINDEXED,
	content,
	structured,
	summary,
	tags,
	keywords
);

CREATE TRIGGER IF NOT EXISTS memories_fts_insert AFTER INSERT ON memories BEGIN
	INSERT INTO memories_fts(id, content, structured, summary, tags, keywords)
	VALUES (new.id, new.content, new.structured, new.summary, new.tags, new.keywords);
END;

CREATE TRIGGER IF NOT EXISTS memories_fts_delete AFTER DELETE ON memories BEGIN
	DELETE FROM memories_fts WHERE id = old.id;
END;

CREATE TRIGGER IF NOT EXISTS memories_fts_update AFTER UPDATE ON memories BEGIN
	UPDATE memories_fts SET
		content = new.content,
		structured = new.structured,
		summary = new.summary,
		tags = new.tags,
		keywords = new.keywords
	WHERE id = old.id;
END;
`

// RelationshipTypes enumerates the valid memory_relationships.relationship_type values.
var RelationshipTypes = []string{
	"references", "contradicts", "expands", "similar", "sequential", "causes", "enables",
}

// IsValidRelationshipType reports whether t is a known relationship type.
func IsValidRelationshipType(t string) bool {
	for _, rt := range RelationshipTypes {
		if rt == t {
			return true
		}
	}
	return false
}

// RecordTypes enumerates the valid memories.type values.
var RecordTypes = []string{
	"fact", "decision", "bug", "pattern", "context", "preference", "skill", "session", "learned", "permanent",
}

// IsValidRecordType reports whether t is a known Record type.
func IsValidRecordType(t string) bool {
	for _, rt := range RecordTypes {
		if rt == t {
			return true
		}
	}
	return false
}
