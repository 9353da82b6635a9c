package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Domain is one row of the domains descriptive catalog — listing/stats
// output only, never consulted by Store, Retriever, or Curator.
type Domain struct {
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DomainStats summarizes the memories tagged with one domain.
type DomainStats struct {
	Domain            string
	MemoryCount       int
	AverageConfidence float64
}

// Session is one row of agent_sessions.
type Session struct {
	SessionID      string
	AgentType      string
	CreatedAt      time.Time
	LastAccessedAt time.Time
	IsActive       bool
}

// UpsertDomain inserts name into the domains catalog, or updates its
// description and bumps updated_at if it already exists.
func (d *Database) UpsertDomain(name, description string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.Exec(`
		INSERT INTO domains (name, description, created_at, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET description = excluded.description, updated_at = CURRENT_TIMESTAMP
	`, name, description)
	if err != nil {
		return fmt.Errorf("upsert domain: %w", err)
	}
	return nil
}

// ListDomains returns every row of the domains catalog, alphabetically.
func (d *Database) ListDomains() ([]*Domain, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.Query(`SELECT name, description, created_at, updated_at FROM domains ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	defer rows.Close()

	var out []*Domain
	for rows.Next() {
		var dom Domain
		var desc sql.NullString
		if err := rows.Scan(&dom.Name, &desc, &dom.CreatedAt, &dom.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list domains: scan: %w", err)
		}
		dom.Description = desc.String
		out = append(out, &dom)
	}
	return out, rows.Err()
}

// GetDomainStats aggregates the memories carrying domain, regardless
// of whether the domain is registered in the catalog.
func (d *Database) GetDomainStats(domain string) (*DomainStats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := &DomainStats{Domain: domain}
	var avg sql.NullFloat64
	err := d.db.QueryRow(`
		SELECT COUNT(*), AVG(confidence) FROM memories WHERE domain = ?
	`, domain).Scan(&stats.MemoryCount, &avg)
	if err != nil {
		return nil, fmt.Errorf("domain stats: %w", err)
	}
	stats.AverageConfidence = avg.Float64
	return stats, nil
}

// TouchSession upserts an agent_sessions row, marking it active and
// advancing last_accessed_at — called on every Curator.Save carrying a
// session id.
func (d *Database) TouchSession(sessionID, agentType string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if agentType == "" {
		agentType = "unknown"
	}
	_, err := d.db.Exec(`
		INSERT INTO agent_sessions (session_id, agent_type, created_at, last_accessed_at, is_active)
		VALUES (?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP, 1)
		ON CONFLICT(session_id) DO UPDATE SET last_accessed_at = CURRENT_TIMESTAMP, is_active = 1
	`, sessionID, agentType)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// ListSessions returns every agent_sessions row, most recently active first.
func (d *Database) ListSessions() ([]*Session, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.Query(`
		SELECT session_id, agent_type, created_at, last_accessed_at, is_active
		FROM agent_sessions ORDER BY last_accessed_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.SessionID, &s.AgentType, &s.CreatedAt, &s.LastAccessedAt, &s.IsActive); err != nil {
			return nil, fmt.Errorf("list sessions: scan: %w", err)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}
