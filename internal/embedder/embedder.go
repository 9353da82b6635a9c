// Package embedder is the TCP client for the Embedder gateway: a
// line-delimited-JSON service reached over a loopback socket that
// turns text into a unit-norm vector. The gateway is a separate
// long-lived process; this package never loads a model itself.
package embedder

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mycelicmemory/memengine/internal/logging"
)

var log = logging.GetLogger("embedder")

// Config addresses the gateway and bounds call latency.
type Config struct {
	Host       string
	Port       int
	Dimensions int
	DialTimeout,
	EmbedTimeout time.Duration
}

func (c Config) addr() string {
	host := c.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := c.Port
	if port == 0 {
		port = 23811
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// Client talks to the Embedder gateway. Calls never retry internally;
// a singleflight group collapses concurrent embed calls for the same
// text so a burst of identical Save calls dials once.
type Client struct {
	cfg   Config
	group singleflight.Group
}

// New returns a Client for the given gateway address.
func New(cfg Config) *Client {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 800 * time.Millisecond
	}
	if cfg.EmbedTimeout == 0 {
		cfg.EmbedTimeout = 800 * time.Millisecond
	}
	return &Client{cfg: cfg}
}

type embedRequest struct {
	Action string `json:"action"`
	Text   string `json:"text"`
}

type embedResponse struct {
	Success bool      `json:"success"`
	Vector  []float32 `json:"vector"`
	Error   string    `json:"error"`
}

// BuildEmbeddingInput implements build_embedding_input(body, domain).
func BuildEmbeddingInput(body, domain string) string {
	if domain != "" && domain != "general" {
		return "[" + domain + "] " + body
	}
	return body
}

// Embed returns a unit-norm vector for text, or (nil, false) on any
// failure or timeout — callers proceed without updating the vector
// index per the dependency-unavailable policy.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, bool) {
	v, err, _ := c.group.Do(text, func() (interface{}, error) {
		return c.embed(ctx, text)
	})
	if err != nil {
		log.Warn("embed failed", "error", err)
		return nil, false
	}
	return v.([]float32), true
}

func (c *Client) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.EmbedTimeout)
	defer cancel()

	resp, err := c.call(ctx, embedRequest{Action: "embed", Text: text})
	if err != nil {
		return nil, err
	}

	var er embedResponse
	if err := json.Unmarshal(resp, &er); err != nil {
		return nil, fmt.Errorf("embedder: decode response: %w", err)
	}
	if !er.Success {
		return nil, fmt.Errorf("embedder: %s", er.Error)
	}
	if c.cfg.Dimensions > 0 && len(er.Vector) != c.cfg.Dimensions {
		return nil, fmt.Errorf("embedder: expected dimension %d, got %d", c.cfg.Dimensions, len(er.Vector))
	}

	normalizeInPlace(er.Vector)
	return er.Vector, nil
}

// Ping checks gateway liveness.
func (c *Client) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	resp, err := c.call(ctx, embedRequest{Action: "ping"})
	if err != nil {
		return false
	}
	var out struct {
		Success bool `json:"success"`
		Ready   bool `json:"ready"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return false
	}
	return out.Success && out.Ready
}

// Stats fetches gateway-reported statistics.
func (c *Client) Stats(ctx context.Context) (map[string]interface{}, error) {
	resp, err := c.call(ctx, embedRequest{Action: "stats"})
	if err != nil {
		return nil, err
	}
	var out struct {
		Success bool                   `json:"success"`
		Stats   map[string]interface{} `json:"stats"`
		Error   string                 `json:"error"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, fmt.Errorf("embedder: decode stats: %w", err)
	}
	if !out.Success {
		return nil, fmt.Errorf("embedder: %s", out.Error)
	}
	return out.Stats, nil
}

// SearchResult mirrors the gateway's end-to-end search result shape.
// The Retriever never calls Search/QuickSearch itself — it always
// performs its own embed + vector_search + combine (see DESIGN.md) —
// this exists for wire-protocol completeness.
type SearchResult struct {
	ID                string  `json:"id"`
	Content           string  `json:"content"`
	RawContent        string  `json:"rawContent"`
	StructuredContent string  `json:"structuredContent"`
	Summary           string  `json:"summary"`
	Type              string  `json:"type"`
	Domain            string  `json:"domain"`
	Confidence        float64 `json:"confidence"`
	Tags              []string `json:"tags"`
	CreatedAt         string  `json:"createdAt"`
	Date              string  `json:"date"`
	BM25Score         float64 `json:"bm25Score"`
	VectorSimilarity  float64 `json:"vectorSimilarity"`
	VectorDistance    float64 `json:"vectorDistance"`
	CombinedScore     float64 `json:"combinedScore"`
}

type searchRequest struct {
	Action string `json:"action"`
	Query  string `json:"query"`
	Limit  int    `json:"limit"`
}

type searchResponse struct {
	Success bool           `json:"success"`
	Results []SearchResult `json:"results"`
	Error   string         `json:"error"`
}

// Search issues the gateway's end-to-end hybrid search action.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	return c.doSearch(ctx, "search", query, limit)
}

// QuickSearch issues the gateway's lexical-only search action.
func (c *Client) QuickSearch(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	return c.doSearch(ctx, "quickSearch", query, limit)
}

func (c *Client) doSearch(ctx context.Context, action, query string, limit int) ([]SearchResult, error) {
	resp, err := c.call(ctx, searchRequest{Action: action, Query: query, Limit: limit})
	if err != nil {
		return nil, err
	}
	var sr searchResponse
	if err := json.Unmarshal(resp, &sr); err != nil {
		return nil, fmt.Errorf("embedder: decode search response: %w", err)
	}
	if !sr.Success {
		return nil, fmt.Errorf("embedder: %s", sr.Error)
	}
	return sr.Results, nil
}

// Shutdown asks the gateway process to exit.
func (c *Client) Shutdown(ctx context.Context) error {
	_, err := c.call(ctx, embedRequest{Action: "shutdown"})
	return err
}

// call dials the gateway, writes one JSON line, and reads one JSON
// line back. A fresh connection is opened per call: the gateway is a
// short sidecar hop, not a persistent session.
func (c *Client) call(ctx context.Context, req interface{}) ([]byte, error) {
	var d net.Dialer
	d.Timeout = c.cfg.DialTimeout

	conn, err := d.DialContext(ctx, "tcp", c.cfg.addr())
	if err != nil {
		return nil, fmt.Errorf("embedder: dial: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("embedder: encode request: %w", err)
	}
	if _, err := conn.Write(append(payload, '\n')); err != nil {
		return nil, fmt.Errorf("embedder: write request: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("embedder: read response: %w", err)
		}
		return nil, fmt.Errorf("embedder: connection closed with no response")
	}

	return []byte(strings.TrimSpace(scanner.Text())), nil
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
