// Package toolserver is a stdio front end for the engine: a
// line-delimited-JSON request/response router, one object per line on
// stdin/stdout, the same wire idiom the Embedder and Structurer gateway
// clients speak (internal/embedder, internal/structurer) but inverted
// — here the engine is the server, and the caller is an external agent
// process. It exposes exactly the four operations an editor/agent
// integration needs: memory_search, memory_save, memory_validate,
// memory_stats, over the int64-id Curator/Retriever API and a flat
// line-JSON envelope. Optionally wraps dispatch in the
// internal/ratelimit token-bucket limiter, keyed per op name.
package toolserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/mycelicmemory/memengine/internal/curator"
	"github.com/mycelicmemory/memengine/internal/engine"
	"github.com/mycelicmemory/memengine/internal/logging"
	"github.com/mycelicmemory/memengine/internal/ratelimit"
	"github.com/mycelicmemory/memengine/internal/retriever"
)

var log = logging.GetLogger("toolserver")

// requestTimeout bounds a single op's engine work before it counts as
// a deadline-exceeded failure.
const requestTimeout = 10 * time.Second

// request is one line of stdin: an operation name, a freeform params
// object, and an opaque id echoed back so a pipelining caller can
// match replies out of order.
type request struct {
	ID     string          `json:"id"`
	Op     string          `json:"op"`
	Params json.RawMessage `json:"params"`
}

// response is one line of stdout.
type response struct {
	ID     string      `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Server routes line-delimited requests to an Engine.
type Server struct {
	eng     *engine.Engine
	limiter *ratelimit.Limiter
}

// New returns a Server backed by eng, with no rate limiting.
func New(eng *engine.Engine) *Server {
	return &Server{eng: eng}
}

// WithRateLimit attaches a per-op token-bucket limiter (global plus
// optional per-op buckets, keyed by the request's Op field as the tool
// name) to the returned Server.
func (s *Server) WithRateLimit(cfg *ratelimit.Config) *Server {
	s.limiter = ratelimit.NewLimiter(cfg)
	return s
}

// Run reads requests from r and writes responses to w, one JSON object
// per line each way, until r is exhausted or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			enc.Encode(response{Error: fmt.Sprintf("decode request: %v", err)})
			continue
		}

		resp := s.dispatch(ctx, req)
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("toolserver: write response: %w", err)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req request) response {
	if s.limiter != nil {
		if res := s.limiter.Allow(req.Op); !res.Allowed {
			return response{ID: req.ID, Error: fmt.Sprintf("rate limited on %s, retry after %s", res.LimitType, res.RetryAfter)}
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var (
		result interface{}
		err    error
	)
	switch req.Op {
	case "memory_search":
		result, err = s.memorySearch(callCtx, req.Params)
	case "memory_save":
		result, err = s.memorySave(callCtx, req.Params)
	case "memory_validate":
		result, err = s.memoryValidate(req.Params)
	case "memory_stats":
		result, err = s.memoryStats(callCtx)
	default:
		err = fmt.Errorf("unknown op %q", req.Op)
	}

	if err != nil {
		log.Warn("op failed", "op", req.Op, "id", req.ID, "error", err)
		return response{ID: req.ID, Error: err.Error()}
	}
	return response{ID: req.ID, Result: result}
}

type searchParams struct {
	Query         string  `json:"query"`
	Limit         int     `json:"limit"`
	Type          string  `json:"type"`
	Domain        string  `json:"domain"`
	MinConfidence float64 `json:"minConfidence"`
	Quick         bool    `json:"quick"`
}

type searchResultItem struct {
	ID         int64   `json:"id"`
	Content    string  `json:"content"`
	RawContent string  `json:"rawContent"`
	Type       string  `json:"type"`
	Domain     string  `json:"domain"`
	Confidence float64 `json:"confidence"`
	Combined   float64 `json:"combined"`
	BM25       float64 `json:"bm25"`
	VecSim     float64 `json:"vecSim"`
}

func (s *Server) memorySearch(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p searchParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	if p.Query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if p.Limit <= 0 {
		p.Limit = 10
	}
	filters := retriever.Filters{MinConfidence: p.MinConfidence, Type: p.Type, Domain: p.Domain}

	var (
		results []retriever.Result
		err     error
	)
	if p.Quick {
		results, err = s.eng.Retriever.QuickSearch(p.Query, p.Limit, filters)
	} else {
		results, err = s.eng.Retriever.Search(ctx, p.Query, p.Limit, filters)
	}
	if err != nil {
		return nil, err
	}

	out := make([]searchResultItem, 0, len(results))
	for _, r := range results {
		out = append(out, searchResultItem{
			ID: r.Record.ID, Content: r.Content, RawContent: r.RawContent,
			Type: r.Record.Type, Domain: r.Record.Domain, Confidence: r.Record.Confidence,
			Combined: r.Combined, BM25: r.BM25, VecSim: r.VecSim,
		})
	}
	return out, nil
}

type saveParams struct {
	Content         string   `json:"content"`
	Type            string   `json:"type"`
	Domain          string   `json:"domain"`
	Tags            []string `json:"tags"`
	Confidence      float64  `json:"confidence"`
	Source          string   `json:"source"`
	SkipStructurize bool     `json:"skipStructurize"`
	SuppressCluster bool     `json:"suppressCluster"`
	SessionID       string   `json:"sessionId"`
}

func (s *Server) memorySave(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p saveParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	if p.Content == "" {
		return nil, fmt.Errorf("content is required")
	}

	outcome, err := s.eng.Curator.Save(ctx, p.Content, curator.SaveOptions{
		Type: p.Type, Domain: p.Domain, Tags: p.Tags, Confidence: p.Confidence,
		Source: p.Source, SkipStructurize: p.SkipStructurize,
		SuppressCluster: p.SuppressCluster, SessionID: p.SessionID,
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

type validateParams struct {
	ID      int64 `json:"id"`
	IsValid bool  `json:"isValid"`
}

func (s *Server) memoryValidate(raw json.RawMessage) (interface{}, error) {
	var p validateParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	if p.ID == 0 {
		return nil, fmt.Errorf("id is required")
	}
	if err := s.eng.Curator.Validate(p.ID, p.IsValid); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) memoryStats(ctx context.Context) (interface{}, error) {
	stats, err := s.eng.Stats()
	if err != nil {
		return nil, err
	}
	embedderUp, structurerUp := s.eng.Ping(ctx)
	return map[string]interface{}{
		"stats":        stats,
		"embedderUp":   embedderUp,
		"structurerUp": structurerUp,
	}, nil
}
