package database

import (
	"database/sql"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mycelicmemory/memengine/internal/tokenize"
)

// InsertRecord inserts a new Record and returns its assigned id. The
// full-text entry is created by the memories_fts_insert trigger as
// part of the same insert statement's transaction.
func (d *Database) InsertRecord(r *Record) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	if r.Type == "" {
		r.Type = "context"
	}
	if r.Domain == "" {
		r.Domain = "general"
	}
	if r.Source == "" {
		r.Source = "user"
	}
	r.Confidence = clampConfidence(r.Confidence)

	tagsJSON, err := json.Marshal(r.Tags)
	if err != nil {
		return 0, fmt.Errorf("marshal tags: %w", err)
	}

	res, err := d.db.Exec(`
		INSERT INTO memories (
			content, structured, summary, keywords, tags, type, domain,
			confidence, evidence_count, access_count, last_accessed_at,
			cluster_id, source, session_id, created_at, updated_at, promoted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.Content, nullString(r.Structured), r.Summary, r.Keywords, string(tagsJSON),
		r.Type, r.Domain, r.Confidence, r.EvidenceCount, r.AccessCount,
		nullTime(r.LastAccessedAt), nullInt64(r.ClusterID), r.Source,
		nullString(r.SessionID), r.CreatedAt, r.UpdatedAt, nullTime(r.PromotedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert record: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert record: read id: %w", err)
	}
	r.ID = id
	return id, nil
}

// GetRecord retrieves a Record by id; returns (nil, nil) if not found.
func (d *Database) GetRecord(id int64) (*Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	row := d.db.QueryRow(`
		SELECT id, content, structured, summary, keywords, tags, type, domain,
		       confidence, evidence_count, access_count, last_accessed_at,
		       cluster_id, source, session_id, created_at, updated_at, promoted_at
		FROM memories WHERE id = ?
	`, id)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var r Record
	var structured, sessionID sql.NullString
	var tagsJSON string
	var lastAccessed, promotedAt sql.NullTime
	var clusterID sql.NullInt64

	err := row.Scan(
		&r.ID, &r.Content, &structured, &r.Summary, &r.Keywords, &tagsJSON, &r.Type, &r.Domain,
		&r.Confidence, &r.EvidenceCount, &r.AccessCount, &lastAccessed,
		&clusterID, &r.Source, &sessionID, &r.CreatedAt, &r.UpdatedAt, &promotedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Structured = structured.String
	r.SessionID = sessionID.String
	r.Tags = parseTags(tagsJSON)
	if lastAccessed.Valid {
		t := lastAccessed.Time
		r.LastAccessedAt = &t
	}
	if promotedAt.Valid {
		t := promotedAt.Time
		r.PromotedAt = &t
	}
	if clusterID.Valid {
		id := clusterID.Int64
		r.ClusterID = &id
	}

	return &r, nil
}

// UpdateFields applies a partial RecordUpdate (update_fields).
// Confidence is clamped to [0.3, 0.9] on every mutation.
func (d *Database) UpdateFields(id int64, u *RecordUpdate) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var sets []string
	var args []interface{}

	if u.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *u.Content)
	}
	if u.Structured != nil {
		sets = append(sets, "structured = ?")
		args = append(args, *u.Structured)
	}
	if u.Summary != nil {
		sets = append(sets, "summary = ?")
		args = append(args, *u.Summary)
	}
	if u.Keywords != nil {
		sets = append(sets, "keywords = ?")
		args = append(args, *u.Keywords)
	}
	if u.Tags != nil {
		tagsJSON, _ := json.Marshal(u.Tags)
		sets = append(sets, "tags = ?")
		args = append(args, string(tagsJSON))
	}
	if u.Type != nil {
		sets = append(sets, "type = ?")
		args = append(args, *u.Type)
	}
	if u.Domain != nil {
		sets = append(sets, "domain = ?")
		args = append(args, *u.Domain)
	}
	if u.Confidence != nil {
		sets = append(sets, "confidence = ?")
		args = append(args, clampConfidence(*u.Confidence))
	}
	if u.EvidenceCount != nil {
		sets = append(sets, "evidence_count = ?")
		args = append(args, *u.EvidenceCount)
	}
	if u.AccessCount != nil {
		sets = append(sets, "access_count = ?")
		args = append(args, *u.AccessCount)
	}
	if u.LastAccessedAt != nil {
		sets = append(sets, "last_accessed_at = ?")
		args = append(args, *u.LastAccessedAt)
	}
	if u.ClearClusterID {
		sets = append(sets, "cluster_id = NULL")
	} else if u.ClusterID != nil {
		sets = append(sets, "cluster_id = ?")
		args = append(args, *u.ClusterID)
	}
	if u.Source != nil {
		sets = append(sets, "source = ?")
		args = append(args, *u.Source)
	}
	if u.PromotedAt != nil {
		sets = append(sets, "promoted_at = ?")
		args = append(args, *u.PromotedAt)
	}

	if len(sets) == 0 {
		return nil
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now())
	args = append(args, id)

	query := fmt.Sprintf("UPDATE memories SET %s WHERE id = ?", strings.Join(sets, ", "))
	_, err := d.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("update record %d: %w", id, err)
	}
	return nil
}

// DeleteRecord removes a Record (and, via trigger, its full-text
// entry). Callers are responsible for deleting the vector entry from
// the vector index separately (it is not in the relational store).
func (d *Database) DeleteRecord(id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec("DELETE FROM memories WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete record %d: %w", id, err)
	}
	return nil
}

// RecentByTypeDomain returns up to limit most recent records matching
// (type, domain), newest first — used by the Curator's dedup check.
func (d *Database) RecentByTypeDomain(recordType, domain string, limit int) ([]*Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.Query(`
		SELECT id, content, structured, summary, keywords, tags, type, domain,
		       confidence, evidence_count, access_count, last_accessed_at,
		       cluster_id, source, session_id, created_at, updated_at, promoted_at
		FROM memories
		WHERE type = ? AND domain = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, recordType, domain, limit)
	if err != nil {
		return nil, fmt.Errorf("recent by type/domain: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ClusterMembers returns all records currently assigned to clusterID.
func (d *Database) ClusterMembers(clusterID int64) ([]*Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.Query(`
		SELECT id, content, structured, summary, keywords, tags, type, domain,
		       confidence, evidence_count, access_count, last_accessed_at,
		       cluster_id, source, session_id, created_at, updated_at, promoted_at
		FROM memories WHERE cluster_id = ?
	`, clusterID)
	if err != nil {
		return nil, fmt.Errorf("cluster members: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// UnclusteredOptions narrows auto_cluster's candidate pool.
type UnclusteredOptions struct {
	Domain        string
	MinConfidence float64
	Limit         int
	Since         *time.Time
}

// UnclusteredMemories returns up to opts.Limit unclustered records
// ordered by confidence descending, for auto_cluster's batch pass.
func (d *Database) UnclusteredMemories(opts UnclusteredOptions) ([]*Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	where := []string{"cluster_id IS NULL", "confidence >= ?"}
	args := []interface{}{opts.MinConfidence}

	if opts.Domain != "" {
		where = append(where, "domain = ?")
		args = append(args, opts.Domain)
	}
	if opts.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *opts.Since)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, content, structured, summary, keywords, tags, type, domain,
		       confidence, evidence_count, access_count, last_accessed_at,
		       cluster_id, source, session_id, created_at, updated_at, promoted_at
		FROM memories
		WHERE %s
		ORDER BY confidence DESC
		LIMIT ?
	`, strings.Join(where, " AND "))

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("unclustered memories: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListOptions narrows ListRecords' candidate pool (cmd_memory's `list`).
type ListOptions struct {
	Type   string
	Domain string
	Limit  int
	Offset int
}

// ListRecords returns up to opts.Limit records matching the optional
// type/domain filters, newest first, for the CLI's `list` command.
func (d *Database) ListRecords(opts ListOptions) ([]*Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var where []string
	var args []interface{}

	if opts.Type != "" {
		where = append(where, "type = ?")
		args = append(args, opts.Type)
	}
	if opts.Domain != "" {
		where = append(where, "domain = ?")
		args = append(args, opts.Domain)
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, opts.Offset)

	query := fmt.Sprintf(`
		SELECT id, content, structured, summary, keywords, tags, type, domain,
		       confidence, evidence_count, access_count, last_accessed_at,
		       cluster_id, source, session_id, created_at, updated_at, promoted_at
		FROM memories
		%s
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, whereClause)

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// FullTextSearch implements mixed-script lexical search: an
// ASCII disjunctive-phrase FTS5 pass, a CJK bigram/trigram substring
// pass, and a whole-query substring fallback, merged by id keeping the
// maximum score.
func (d *Database) FullTextSearch(query string, k int) ([]FullTextResult, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	tq := tokenize.Tokenize(query, tokenize.Options{})
	if tq.Empty() {
		return nil, nil
	}

	scores := make(map[int64]float64)

	if len(tq.ASCIITokens) > 0 {
		hits, err := d.ftsPhraseSearch(tq.ASCIITokens, k)
		if err != nil {
			return nil, fmt.Errorf("fts phrase search: %w", err)
		}
		for id, score := range hits {
			if cur, ok := scores[id]; !ok || score > cur {
				scores[id] = score
			}
		}
	}

	if len(tq.CJKNgrams) > 0 {
		hits, err := d.cjkSubstringSearch(tq.CJKNgrams, k)
		if err != nil {
			return nil, fmt.Errorf("cjk substring search: %w", err)
		}
		for id, score := range hits {
			if cur, ok := scores[id]; !ok || score > cur {
				scores[id] = score
			}
		}
	}

	if len(scores) == 0 && tq.Raw != "" {
		hits, err := d.wholeQuerySubstringSearch(tq.Raw, k)
		if err != nil {
			return nil, fmt.Errorf("whole query substring search: %w", err)
		}
		for id, score := range hits {
			scores[id] = score
		}
	}

	results := make([]FullTextResult, 0, len(scores))
	for id, score := range scores {
		results = append(results, FullTextResult{ID: id, Score: score})
	}
	sortResultsDesc(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// ftsPhraseSearch issues a disjunctive phrase query ("tok1" OR "tok2" ...)
// against the FTS5 index, using bm25() for scoring.
func (d *Database) ftsPhraseSearch(tokens []string, k int) (map[int64]float64, error) {
	phrases := make([]string, len(tokens))
	for i, t := range tokens {
		phrases[i] = fmt.Sprintf(`"%s"`, escapeFTS5Phrase(t))
	}
	matchExpr := strings.Join(phrases, " OR ")

	rows, err := d.db.Query(`
		SELECT id, bm25(memories_fts) AS rank
		FROM memories_fts
		WHERE memories_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, matchExpr, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]float64)
	for rows.Next() {
		var id int64
		var rank float64
		if err := rows.Scan(&id, &rank); err != nil {
			return nil, err
		}
		// bm25() in SQLite FTS5 returns negative values where more
		// negative is a better match; normalize to a positive score.
		out[id] = -rank
	}
	return out, rows.Err()
}

// cjkSubstringSearch matches each ngram by substring against content
// and structured, scoring each record by (matched-ngrams * 0.5).
func (d *Database) cjkSubstringSearch(ngrams []string, k int) (map[int64]float64, error) {
	matched := make(map[int64]map[string]struct{})

	for _, gram := range ngrams {
		like := "%" + escapeLike(gram) + "%"
		rows, err := d.db.Query(`
			SELECT id FROM memories
			WHERE content LIKE ? ESCAPE '\' OR structured LIKE ? ESCAPE '\'
			LIMIT ?
		`, like, like, k*4)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			if matched[id] == nil {
				matched[id] = make(map[string]struct{})
			}
			matched[id][gram] = struct{}{}
		}
		rows.Close()
	}

	out := make(map[int64]float64, len(matched))
	for id, grams := range matched {
		out[id] = float64(len(grams)) * 0.5
	}
	return out, nil
}

// wholeQuerySubstringSearch is the final fallback when neither lexical
// path scores a hit: a plain substring match over the whole query,
// scored at a flat 0.3.
func (d *Database) wholeQuerySubstringSearch(query string, k int) (map[int64]float64, error) {
	like := "%" + escapeLike(query) + "%"
	rows, err := d.db.Query(`
		SELECT id FROM memories
		WHERE content LIKE ? ESCAPE '\' OR structured LIKE ? ESCAPE '\'
		LIMIT ?
	`, like, like, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]float64)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = 0.3
	}
	return out, rows.Err()
}

// InsertCluster inserts a new Cluster and returns its id.
func (d *Database) InsertCluster(c *Cluster) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = "growing"
	}

	centroidBlob, err := encodeCentroid(c.Centroid)
	if err != nil {
		return 0, fmt.Errorf("encode centroid: %w", err)
	}

	res, err := d.db.Exec(`
		INSERT INTO clusters (theme, domain, centroid, member_count, avg_confidence, status, created_at, updated_at, evolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.Theme, c.Domain, centroidBlob, c.MemberCount, c.AvgConfidence, c.Status, c.CreatedAt, c.UpdatedAt, nullTime(c.EvolvedAt))
	if err != nil {
		return 0, fmt.Errorf("insert cluster: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert cluster: read id: %w", err)
	}
	c.ID = id
	return id, nil
}

// GetCluster retrieves a Cluster by id; returns (nil, nil) if not found.
func (d *Database) GetCluster(id int64) (*Cluster, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	row := d.db.QueryRow(`
		SELECT id, theme, domain, centroid, member_count, avg_confidence, status, created_at, updated_at, evolved_at
		FROM clusters WHERE id = ?
	`, id)
	c, err := scanCluster(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// ClustersInDomain returns all growing|mature clusters in domain, for
// try_join_cluster's candidate scan.
func (d *Database) ClustersInDomain(domain string) ([]*Cluster, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.Query(`
		SELECT id, theme, domain, centroid, member_count, avg_confidence, status, created_at, updated_at, evolved_at
		FROM clusters
		WHERE domain = ? AND status IN ('growing', 'mature')
		ORDER BY id ASC
	`, domain)
	if err != nil {
		return nil, fmt.Errorf("clusters in domain: %w", err)
	}
	defer rows.Close()

	var out []*Cluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateCluster applies a full field set to an existing cluster (the
// Curator always has the complete updated Cluster in hand, unlike
// Record's partial RecordUpdate).
func (d *Database) UpdateCluster(c *Cluster) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	centroidBlob, err := encodeCentroid(c.Centroid)
	if err != nil {
		return fmt.Errorf("encode centroid: %w", err)
	}
	c.UpdatedAt = time.Now()

	_, err = d.db.Exec(`
		UPDATE clusters SET theme = ?, domain = ?, centroid = ?, member_count = ?,
		       avg_confidence = ?, status = ?, updated_at = ?, evolved_at = ?
		WHERE id = ?
	`, c.Theme, c.Domain, centroidBlob, c.MemberCount, c.AvgConfidence, c.Status,
		c.UpdatedAt, nullTime(c.EvolvedAt), c.ID)
	if err != nil {
		return fmt.Errorf("update cluster %d: %w", c.ID, err)
	}
	return nil
}

func scanCluster(row rowScanner) (*Cluster, error) {
	var c Cluster
	var centroidBlob []byte
	var evolvedAt sql.NullTime

	err := row.Scan(&c.ID, &c.Theme, &c.Domain, &centroidBlob, &c.MemberCount,
		&c.AvgConfidence, &c.Status, &c.CreatedAt, &c.UpdatedAt, &evolvedAt)
	if err != nil {
		return nil, err
	}

	centroid, err := decodeCentroid(centroidBlob)
	if err != nil {
		return nil, fmt.Errorf("decode centroid: %w", err)
	}
	c.Centroid = centroid
	if evolvedAt.Valid {
		t := evolvedAt.Time
		c.EvolvedAt = &t
	}

	return &c, nil
}

func encodeCentroid(v []float32) ([]byte, error) {
	var buf strings.Builder
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

func decodeCentroid(blob []byte) ([]float32, error) {
	var v []float32
	if len(blob) == 0 {
		return v, nil
	}
	if err := gob.NewDecoder(strings.NewReader(string(blob))).Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func scanRecords(rows *sql.Rows) ([]*Record, error) {
	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func parseTags(tagsJSON string) []string {
	if tagsJSON == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
		return nil
	}
	return tags
}

func clampConfidence(c float64) float64 {
	if c < 0.3 {
		return 0.3
	}
	if c > 0.9 {
		return 0.9
	}
	return c
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt64(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

// escapeFTS5Phrase escapes double quotes inside an FTS5 phrase term.
func escapeFTS5Phrase(s string) string {
	return strings.ReplaceAll(s, `"`, `""`)
}

// escapeLike escapes SQLite LIKE metacharacters so substring queries
// built from arbitrary user text behave as plain substring matches.
func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}

func sortResultsDesc(results []FullTextResult) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}
