package database

import (
	"database/sql"
	"fmt"
)

// InsertRelationship inserts a new edge and returns its id. The source
// side cascades on delete (schema.go); the target side does not, so a
// deleted target simply leaves a dangling edge for the caller to prune.
func (d *Database) InsertRelationship(r *Relationship) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.db.Exec(`
		INSERT INTO memory_relationships (source_memory_id, target_memory_id, relationship_type, strength, context, auto_generated)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.SourceMemoryID, r.TargetMemoryID, r.RelationshipType, r.Strength, nullString(r.Context), r.AutoGenerated)
	if err != nil {
		return 0, fmt.Errorf("insert relationship: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert relationship: read id: %w", err)
	}
	r.ID = id
	return id, nil
}

// RelationshipsFrom returns edges whose source is memoryID, optionally
// filtered by relationship type.
func (d *Database) RelationshipsFrom(memoryID int64, relType string) ([]*Relationship, error) {
	return d.queryRelationships(`
		SELECT id, source_memory_id, target_memory_id, relationship_type, strength, context, auto_generated, created_at
		FROM memory_relationships WHERE source_memory_id = ?`, memoryID, relType)
}

// RelationshipsTo returns edges whose target is memoryID, optionally
// filtered by relationship type.
func (d *Database) RelationshipsTo(memoryID int64, relType string) ([]*Relationship, error) {
	return d.queryRelationships(`
		SELECT id, source_memory_id, target_memory_id, relationship_type, strength, context, auto_generated, created_at
		FROM memory_relationships WHERE target_memory_id = ?`, memoryID, relType)
}

func (d *Database) queryRelationships(baseQuery string, memoryID int64, relType string) ([]*Relationship, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	query := baseQuery
	args := []interface{}{memoryID}
	if relType != "" {
		query += " AND relationship_type = ?"
		args = append(args, relType)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query relationships: %w", err)
	}
	defer rows.Close()

	var out []*Relationship
	for rows.Next() {
		var rel Relationship
		var context sql.NullString
		if err := rows.Scan(&rel.ID, &rel.SourceMemoryID, &rel.TargetMemoryID,
			&rel.RelationshipType, &rel.Strength, &context, &rel.AutoGenerated, &rel.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		rel.Context = context.String
		out = append(out, &rel)
	}
	return out, rows.Err()
}
