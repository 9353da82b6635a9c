// Package engine is the composition root: it wires the Store (database
// + vectorindex), Embedder gateway, Structurer gateway, Retriever, and
// Curator into a single handle, and defines the typed error kinds
// callers need to distinguish. Follows the same top-level wiring shape
// as internal/daemon/daemon.go: a single struct holding all long-lived
// dependencies, opened once, closed once.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/mycelicmemory/memengine/internal/curator"
	"github.com/mycelicmemory/memengine/internal/database"
	"github.com/mycelicmemory/memengine/internal/embedder"
	"github.com/mycelicmemory/memengine/internal/logging"
	"github.com/mycelicmemory/memengine/internal/retriever"
	"github.com/mycelicmemory/memengine/internal/structurer"
	"github.com/mycelicmemory/memengine/internal/vectorindex"
)

var log = logging.GetLogger("engine")

// Kind enumerates the error categories callers need to
// distinguish. Reject-by-structurer and duplicate-on-save are
// deliberately NOT Kinds — they're treated as normal Save outcomes,
// not errors (see curator.SaveOutcome).
type Kind int

const (
	// KindDependencyUnavailable covers an unreachable or erroring
	// Embedder/Structurer gateway call.
	KindDependencyUnavailable Kind = iota
	// KindDeadlineExceeded covers a gateway call that timed out.
	KindDeadlineExceeded
	// KindStoreIntegrity covers a relational/vector-index mismatch, e.g.
	// a vector insert with no matching Record.
	KindStoreIntegrity
	// KindHookBudgetExceeded covers the toolserver hook path running out
	// of its time/token budget; it never reaches here as an
	// error, only as an early, silent return — Kind exists so hook code
	// can classify that return path consistently with the rest of the
	// typed-error story.
	KindHookBudgetExceeded
)

func (k Kind) String() string {
	switch k {
	case KindDependencyUnavailable:
		return "dependency_unavailable"
	case KindDeadlineExceeded:
		return "deadline_exceeded"
	case KindStoreIntegrity:
		return "store_integrity"
	case KindHookBudgetExceeded:
		return "hook_budget_exceeded"
	default:
		return "unknown"
	}
}

// Error is the typed failure type: every failure outside
// Save's {rejected, updated} outcomes surfaces as one of these.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("engine: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsKind reports whether err is an *Error of the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Config bundles the dial/construction parameters for every component.
type Config struct {
	DatabasePath     string
	VectorPath       string
	VectorConfig     vectorindex.Config
	EmbedderConfig   embedder.Config
	StructurerConfig structurer.Config
	CuratorConfig    curator.Config
	// DisableEmbedder/DisableStructurer force lexical-only / skip-
	// structurize mode without needing a reachable gateway process —
	// used by the toolserver when operators run without the optional
	// Embedder/Structurer gateways.
	DisableEmbedder   bool
	DisableStructurer bool
}

// Engine is the single composition-root handle a CLI command, daemon,
// or toolserver op pulls all five components from.
type Engine struct {
	cfg        Config
	db         *database.Database
	vectors    *vectorindex.Index
	Embedder   *embedder.Client
	Structurer *structurer.Client
	Retriever  *retriever.Retriever
	Curator    *curator.Curator
}

// Open opens the Store (database + vector index) and wires every
// component together. The embedder/structurer gateway clients are
// constructed unless disabled (they dial lazily per-call); set
// Config.Disable{Embedder,Structurer} to leave that client nil and force
// degraded mode even when the gateway happens to be reachable.
func Open(cfg Config) (*Engine, error) {
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return nil, newError(KindDependencyUnavailable, "open_database", err)
	}
	if err := db.InitSchema(); err != nil {
		db.Close()
		return nil, newError(KindStoreIntegrity, "init_schema", err)
	}

	if cfg.VectorConfig.Dimensions == 0 {
		cfg.VectorConfig.Dimensions = 1024
	}
	vectors, err := vectorindex.New(cfg.VectorConfig)
	if err != nil {
		db.Close()
		return nil, newError(KindStoreIntegrity, "open_vector_index", err)
	}
	if cfg.VectorPath != "" {
		if err := vectors.Load(cfg.VectorPath); err != nil {
			log.Warn("vector index load failed, starting empty", "path", cfg.VectorPath, "error", err)
		}
	}

	var embedClient *embedder.Client
	if !cfg.DisableEmbedder {
		embedClient = embedder.New(cfg.EmbedderConfig)
	}
	var structureClient *structurer.Client
	if !cfg.DisableStructurer {
		structureClient = structurer.New(cfg.StructurerConfig)
	}

	e := &Engine{
		cfg:        cfg,
		db:         db,
		vectors:    vectors,
		Embedder:   embedClient,
		Structurer: structureClient,
		Retriever:  retriever.New(db, vectors, embedClient),
		Curator:    curator.New(db, vectors, embedClient, structureClient, cfg.CuratorConfig),
	}
	return e, nil
}

// Close persists the vector index (if a path is configured) and closes
// the database handle.
func (e *Engine) Close() error {
	if e.cfg.VectorPath != "" {
		if err := e.vectors.Save(e.cfg.VectorPath); err != nil {
			log.Warn("vector index save failed", "path", e.cfg.VectorPath, "error", err)
		}
	}
	if err := e.vectors.Close(); err != nil {
		log.Warn("vector index close failed", "error", err)
	}
	return e.db.Close()
}

// Ping reports whether the Embedder and Structurer gateways are
// reachable, for health-endpoint and toolserver `memory_stats` use.
func (e *Engine) Ping(ctx context.Context) (embedderUp, structurerUp bool) {
	if e.Embedder != nil {
		embedderUp = e.Embedder.Ping(ctx)
	}
	if e.Structurer != nil {
		structurerUp = e.Structurer.Ping(ctx)
	}
	return
}

// Stats reports Store-level counts for `memory_stats`.
type Stats struct {
	database.Stats
	VectorIndex vectorindex.Stats
}

// Stats aggregates database.Stats with the vector index's live/orphan
// counts.
func (e *Engine) Stats() (*Stats, error) {
	dbStats, err := e.db.GetStats()
	if err != nil {
		return nil, newError(KindStoreIntegrity, "get_stats", err)
	}
	return &Stats{Stats: *dbStats, VectorIndex: e.vectors.Stats()}, nil
}

// Database returns the underlying store, for CLI commands that need
// direct access to catalog-only operations (domains, sessions) outside
// the Curator/Retriever surface.
func (e *Engine) Database() *database.Database {
	return e.db
}

// GetRecord fetches a single record by id, for the CLI's `get` command.
// Returns (nil, nil) if no such record exists.
func (e *Engine) GetRecord(id int64) (*database.Record, error) {
	r, err := e.db.GetRecord(id)
	if err != nil {
		return nil, newError(KindStoreIntegrity, "get_record", err)
	}
	return r, nil
}

// ListRecords lists records matching opts, for the CLI's `list` command.
func (e *Engine) ListRecords(opts database.ListOptions) ([]*database.Record, error) {
	records, err := e.db.ListRecords(opts)
	if err != nil {
		return nil, newError(KindStoreIntegrity, "list_records", err)
	}
	return records, nil
}

// UpdateRecord applies a partial update, for the CLI's `update` command.
func (e *Engine) UpdateRecord(id int64, u *database.RecordUpdate) error {
	if err := e.db.UpdateFields(id, u); err != nil {
		return newError(KindStoreIntegrity, "update_record", err)
	}
	return nil
}

// DeleteRecord removes a record outright, for the CLI's `forget` command.
func (e *Engine) DeleteRecord(id int64) error {
	if err := e.db.DeleteRecord(id); err != nil {
		return newError(KindStoreIntegrity, "delete_record", err)
	}
	return nil
}
