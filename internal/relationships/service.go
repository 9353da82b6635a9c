// Package relationships provides graph algorithms and relationship
// management over the memory_relationships edge table: creation with
// validation, related-memory lookup, and BFS graph mapping, serving the
// relate/find_related/map_graph CLI surface over the int64
// database.Record/Relationship schema.
package relationships

import (
	"fmt"
	"strings"

	"github.com/mycelicmemory/memengine/internal/database"
	"github.com/mycelicmemory/memengine/internal/logging"
	"github.com/mycelicmemory/memengine/pkg/config"
)

var log = logging.GetLogger("relationships")

const (
	defaultStrength  = 0.5
	defaultDepth     = 2
	maxDepth         = 5
	defaultFindLimit = 10
)

// Service provides relationship graph operations over a Database.
type Service struct {
	db     *database.Database
	config *config.Config
}

// NewService creates a new relationship service.
func NewService(db *database.Database, cfg *config.Config) *Service {
	return &Service{db: db, config: cfg}
}

// CreateOptions holds parameters for creating a relationship edge.
type CreateOptions struct {
	SourceMemoryID   int64
	TargetMemoryID   int64
	RelationshipType string
	Strength         float64
	Context          string
}

// Create validates and inserts a new relationship edge.
func (s *Service) Create(opts *CreateOptions) (*database.Relationship, error) {
	if !database.IsValidRelationshipType(opts.RelationshipType) {
		return nil, fmt.Errorf("invalid relationship type %q: must be one of %s",
			opts.RelationshipType, strings.Join(database.RelationshipTypes, ", "))
	}

	source, err := s.db.GetRecord(opts.SourceMemoryID)
	if err != nil {
		return nil, fmt.Errorf("lookup source memory: %w", err)
	}
	if source == nil {
		return nil, fmt.Errorf("source memory %d does not exist", opts.SourceMemoryID)
	}

	target, err := s.db.GetRecord(opts.TargetMemoryID)
	if err != nil {
		return nil, fmt.Errorf("lookup target memory: %w", err)
	}
	if target == nil {
		return nil, fmt.Errorf("target memory %d does not exist", opts.TargetMemoryID)
	}

	strength := opts.Strength
	if strength < 0 {
		strength = defaultStrength
	} else if strength > 1.0 {
		strength = 1.0
	}

	rel := &database.Relationship{
		SourceMemoryID:   opts.SourceMemoryID,
		TargetMemoryID:   opts.TargetMemoryID,
		RelationshipType: opts.RelationshipType,
		Strength:         strength,
		Context:          opts.Context,
	}
	if _, err := s.db.InsertRelationship(rel); err != nil {
		return nil, fmt.Errorf("insert relationship: %w", err)
	}

	log.Debug("relationship created", "source", rel.SourceMemoryID, "target", rel.TargetMemoryID, "type", rel.RelationshipType)
	return rel, nil
}

// FindRelatedOptions holds parameters for a related-memory lookup.
type FindRelatedOptions struct {
	MemoryID int64
	Type     string
	Limit    int
}

// RelatedMemory pairs a related record with the edge that connects it
// to the queried memory.
type RelatedMemory struct {
	Memory           *database.Record
	RelationshipType string
	Strength         float64
}

// FindRelated returns memories connected to MemoryID in either
// direction, optionally filtered by relationship type.
func (s *Service) FindRelated(opts *FindRelatedOptions) ([]*RelatedMemory, error) {
	if opts.MemoryID == 0 {
		return nil, fmt.Errorf("memory_id is required")
	}

	root, err := s.db.GetRecord(opts.MemoryID)
	if err != nil {
		return nil, fmt.Errorf("lookup memory: %w", err)
	}
	if root == nil {
		return nil, fmt.Errorf("memory %d does not exist", opts.MemoryID)
	}

	outgoing, err := s.db.RelationshipsFrom(opts.MemoryID, opts.Type)
	if err != nil {
		return nil, fmt.Errorf("find outgoing relationships: %w", err)
	}
	incoming, err := s.db.RelationshipsTo(opts.MemoryID, opts.Type)
	if err != nil {
		return nil, fmt.Errorf("find incoming relationships: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultFindLimit
	}

	var out []*RelatedMemory
	add := func(otherID int64, relType string, strength float64) error {
		if len(out) >= limit {
			return nil
		}
		mem, err := s.db.GetRecord(otherID)
		if err != nil {
			return fmt.Errorf("lookup related memory %d: %w", otherID, err)
		}
		if mem == nil {
			return nil
		}
		out = append(out, &RelatedMemory{Memory: mem, RelationshipType: relType, Strength: strength})
		return nil
	}

	for _, rel := range outgoing {
		if err := add(rel.TargetMemoryID, rel.RelationshipType, rel.Strength); err != nil {
			return nil, err
		}
	}
	for _, rel := range incoming {
		if err := add(rel.SourceMemoryID, rel.RelationshipType, rel.Strength); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// MapGraphOptions holds parameters for a BFS graph traversal.
type MapGraphOptions struct {
	RootID       int64
	Depth        int
	IncludeTypes []string
	MinStrength  float64
}

// GraphEdge is one traversed relationship edge.
type GraphEdge struct {
	SourceID int64
	TargetID int64
	Type     string
	Strength float64
}

// GraphNode is one visited memory, with its BFS distance from the root.
type GraphNode struct {
	ID       int64
	Content  string
	Distance int
}

// GraphResult is the outcome of a MapGraph traversal.
type GraphResult struct {
	TotalNodes int
	TotalEdges int
	MaxDepth   int
	Nodes      []GraphNode
	Edges      []GraphEdge
}

// MapGraph performs a breadth-first traversal of the relationship graph
// starting at RootID, up to Depth hops (default 2, capped at 5).
func (s *Service) MapGraph(opts *MapGraphOptions) (*GraphResult, error) {
	if opts.RootID == 0 {
		return nil, fmt.Errorf("root_id is required")
	}

	depth := opts.Depth
	if depth <= 0 {
		depth = defaultDepth
	} else if depth > maxDepth {
		depth = maxDepth
	}

	root, err := s.db.GetRecord(opts.RootID)
	if err != nil {
		return nil, fmt.Errorf("lookup root memory: %w", err)
	}
	if root == nil {
		return nil, fmt.Errorf("memory %d does not exist", opts.RootID)
	}

	includeType := func(t string) bool {
		if len(opts.IncludeTypes) == 0 {
			return true
		}
		for _, want := range opts.IncludeTypes {
			if want == t {
				return true
			}
		}
		return false
	}

	visited := map[int64]int{opts.RootID: 0}
	result := &GraphResult{
		MaxDepth: depth,
		Nodes:    []GraphNode{{ID: root.ID, Content: root.Content, Distance: 0}},
	}

	frontier := []int64{opts.RootID}
	for d := 0; d < depth && len(frontier) > 0; d++ {
		var next []int64
		for _, id := range frontier {
			outgoing, err := s.db.RelationshipsFrom(id, "")
			if err != nil {
				return nil, fmt.Errorf("traverse outgoing edges from %d: %w", id, err)
			}
			incoming, err := s.db.RelationshipsTo(id, "")
			if err != nil {
				return nil, fmt.Errorf("traverse incoming edges to %d: %w", id, err)
			}

			type hop struct {
				other int64
				edge  GraphEdge
			}
			var hops []hop
			for _, rel := range outgoing {
				hops = append(hops, hop{rel.TargetMemoryID, GraphEdge{id, rel.TargetMemoryID, rel.RelationshipType, rel.Strength}})
			}
			for _, rel := range incoming {
				hops = append(hops, hop{rel.SourceMemoryID, GraphEdge{rel.SourceMemoryID, id, rel.RelationshipType, rel.Strength}})
			}

			for _, h := range hops {
				if !includeType(h.edge.Type) || h.edge.Strength < opts.MinStrength {
					continue
				}
				result.Edges = append(result.Edges, h.edge)

				if _, seen := visited[h.other]; seen {
					continue
				}
				mem, err := s.db.GetRecord(h.other)
				if err != nil {
					return nil, fmt.Errorf("lookup graph node %d: %w", h.other, err)
				}
				if mem == nil {
					continue
				}
				visited[h.other] = d + 1
				result.Nodes = append(result.Nodes, GraphNode{ID: mem.ID, Content: mem.Content, Distance: d + 1})
				next = append(next, h.other)
			}
		}
		frontier = next
	}

	result.TotalNodes = len(result.Nodes)
	result.TotalEdges = len(result.Edges)
	return result, nil
}

// DiscoverOptions holds parameters for AI-assisted relationship
// discovery.
type DiscoverOptions struct {
	Limit int
}

// DiscoveredRelationship is a candidate relationship surfaced by
// Discover, pending confirmation via Create.
type DiscoveredRelationship struct {
	SourceMemoryID   int64
	TargetMemoryID   int64
	RelationshipType string
	Strength         float64
	Rationale        string
}

// Discover is a placeholder for AI-assisted relationship discovery
// (pairwise memory comparison via the Structurer gateway). Not yet
// implemented; returns an empty result so CLI/toolserver callers can
// wire against the final signature ahead of the scoring pass landing.
func (s *Service) Discover(opts *DiscoverOptions) ([]*DiscoveredRelationship, error) {
	return nil, nil
}

// RelationshipType describes one valid edge type for CLI help text and
// toolserver introspection.
type RelationshipType struct {
	Name        string
	Description string
}

var relationshipTypeDescriptions = map[string]string{
	"references":  "source memory references or cites target memory",
	"contradicts": "source memory conflicts with or supersedes target memory",
	"expands":     "source memory elaborates on or adds detail to target memory",
	"similar":     "source and target memories describe closely related content",
	"sequential":  "source memory precedes target memory in a sequence of events",
	"causes":      "source memory describes a cause of what target memory describes",
	"enables":     "source memory is a precondition for target memory",
}

// GetRelationshipTypes returns all valid relationship types with a
// human-readable description of each.
func GetRelationshipTypes() []RelationshipType {
	types := make([]RelationshipType, 0, len(database.RelationshipTypes))
	for _, name := range database.RelationshipTypes {
		types = append(types, RelationshipType{Name: name, Description: relationshipTypeDescriptions[name]})
	}
	return types
}

// ValidateRelationshipType reports whether t (case-insensitive) is a
// known relationship type.
func ValidateRelationshipType(t string) error {
	if database.IsValidRelationshipType(strings.ToLower(t)) {
		return nil
	}
	return fmt.Errorf("invalid relationship type %q: must be one of %s", t, strings.Join(database.RelationshipTypes, ", "))
}
