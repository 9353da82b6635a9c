package toolserver

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mycelicmemory/memengine/internal/engine"
	"github.com/mycelicmemory/memengine/internal/ratelimit"
	"github.com/mycelicmemory/memengine/internal/vectorindex"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	dir := t.TempDir()
	e, err := engine.Open(engine.Config{
		DatabasePath:      filepath.Join(dir, "memory.db"),
		VectorConfig:      vectorindex.Config{Dimensions: 4},
		DisableEmbedder:   true,
		DisableStructurer: true,
	})
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func runLine(t *testing.T, s *Server, line string) response {
	t.Helper()
	var out bytes.Buffer
	if err := s.Run(context.Background(), strings.NewReader(line+"\n"), &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	var resp response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (raw: %s)", err, out.String())
	}
	return resp
}

func TestMemorySaveThenSearch(t *testing.T) {
	s := New(newTestEngine(t))

	saveResp := runLine(t, s, `{"id":"1","op":"memory_save","params":{"content":"goroutines communicate over channels","type":"fact","domain":"go","skipStructurize":true}}`)
	if saveResp.Error != "" {
		t.Fatalf("save failed: %s", saveResp.Error)
	}

	searchResp := runLine(t, s, `{"id":"2","op":"memory_search","params":{"query":"channels","quick":true}}`)
	if searchResp.Error != "" {
		t.Fatalf("search failed: %s", searchResp.Error)
	}
	results, ok := searchResp.Result.([]interface{})
	if !ok || len(results) != 1 {
		t.Fatalf("expected 1 search result, got %+v", searchResp.Result)
	}
}

func TestMemoryStats(t *testing.T) {
	s := New(newTestEngine(t))
	resp := runLine(t, s, `{"id":"1","op":"memory_stats","params":{}}`)
	if resp.Error != "" {
		t.Fatalf("stats failed: %s", resp.Error)
	}
}

func TestUnknownOp(t *testing.T) {
	s := New(newTestEngine(t))
	resp := runLine(t, s, `{"id":"1","op":"bogus","params":{}}`)
	if resp.Error == "" {
		t.Fatalf("expected error for unknown op")
	}
}

func TestMemorySearchRequiresQuery(t *testing.T) {
	s := New(newTestEngine(t))
	resp := runLine(t, s, `{"id":"1","op":"memory_search","params":{}}`)
	if resp.Error == "" {
		t.Fatalf("expected error for missing query")
	}
}

func TestMemoryValidateRequiresID(t *testing.T) {
	s := New(newTestEngine(t))
	resp := runLine(t, s, `{"id":"1","op":"memory_validate","params":{"isValid":true}}`)
	if resp.Error == "" {
		t.Fatalf("expected error for missing id")
	}
}

func TestRateLimitRejectsBurst(t *testing.T) {
	s := New(newTestEngine(t)).WithRateLimit(&ratelimit.Config{
		Enabled: true,
		Global:  ratelimit.LimitConfig{RequestsPerSecond: 1, BurstSize: 1},
	})

	first := runLine(t, s, `{"id":"1","op":"memory_stats","params":{}}`)
	if first.Error != "" {
		t.Fatalf("expected first call to pass, got error: %s", first.Error)
	}

	second := runLine(t, s, `{"id":"2","op":"memory_stats","params":{}}`)
	if second.Error == "" {
		t.Fatalf("expected second call to be rate limited")
	}
}
