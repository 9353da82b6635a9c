// Package structurer is the TCP client for the Structurer gateway: the
// LLM-backed service that turns raw text into the structured memory
// XML, merges aggregates, and extracts candidate records from a
// transcript. Framing matches internal/embedder's line-delimited JSON
// over TCP loopback.
package structurer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/mycelicmemory/memengine/internal/logging"
)

var log = logging.GetLogger("structurer")

// Config addresses the gateway and bounds call latency with
// per-operation deadlines (structurize 15s, merge 20s, transcript
// analysis 30s, default 5s).
type Config struct {
	Host string
	Port int
	DialTimeout,
	DefaultTimeout,
	StructurizeTimeout,
	MergeTimeout,
	AnalyzeTimeout time.Duration
}

func (c Config) addr() string {
	host := c.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := c.Port
	if port == 0 {
		port = 23812
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// Client talks to the Structurer gateway.
type Client struct {
	cfg Config
}

// New returns a Client for the given gateway address, filling in the
// default deadlines for any zero-valued timeout.
func New(cfg Config) *Client {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 800 * time.Millisecond
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 5 * time.Second
	}
	if cfg.StructurizeTimeout == 0 {
		cfg.StructurizeTimeout = 15 * time.Second
	}
	if cfg.MergeTimeout == 0 {
		cfg.MergeTimeout = 20 * time.Second
	}
	if cfg.AnalyzeTimeout == 0 {
		cfg.AnalyzeTimeout = 30 * time.Second
	}
	return &Client{cfg: cfg}
}

// FieldsForType returns the field subset for a Record type, in
// document order.
func FieldsForType(recordType string) []string {
	switch recordType {
	case "fact":
		return []string{"what"}
	case "pattern":
		return []string{"what", "when", "do", "warn"}
	case "decision":
		return []string{"what", "warn"}
	case "preference":
		return []string{"what", "warn"}
	case "bug":
		return []string{"what", "do"}
	case "context":
		return []string{"what", "when"}
	case "skill":
		return []string{"what"}
	default:
		return []string{"what"}
	}
}

// StructurizeResult is the outcome of Structurize: exactly one of XML
// or Rejected is set.
type StructurizeResult struct {
	XML      string
	Rejected bool
	Reason   string
}

type structurizeRequest struct {
	Action string `json:"action"`
	Text   string `json:"text"`
	Type   string `json:"type"`
}

type structurizeWireResult struct {
	Rejected bool   `json:"__rejected"`
	Reason   string `json:"reason"`
}

type structurizeResponse struct {
	Success    bool            `json:"success"`
	Structured json.RawMessage `json:"structured"`
	Error      string          `json:"error"`
}

// Structurize implements structurize(text, type).
func (c *Client) Structurize(ctx context.Context, text, recordType string) (*StructurizeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.StructurizeTimeout)
	defer cancel()

	resp, err := c.call(ctx, structurizeRequest{Action: "structurize", Text: text, Type: recordType})
	if err != nil {
		return nil, err
	}

	var sr structurizeResponse
	if err := json.Unmarshal(resp, &sr); err != nil {
		return nil, fmt.Errorf("structurer: decode response: %w", err)
	}
	if !sr.Success {
		return nil, fmt.Errorf("structurer: %s", sr.Error)
	}

	// structured is either a JSON string (the XML) or an object carrying
	// {__rejected, reason}.
	var asString string
	if err := json.Unmarshal(sr.Structured, &asString); err == nil {
		return &StructurizeResult{XML: asString}, nil
	}
	var asRejection structurizeWireResult
	if err := json.Unmarshal(sr.Structured, &asRejection); err != nil {
		return nil, fmt.Errorf("structurer: unrecognized structurize payload: %w", err)
	}
	return &StructurizeResult{Rejected: true, Reason: asRejection.Reason}, nil
}

type mergeRequest struct {
	Action  string   `json:"action"`
	Memories []string `json:"memories"`
	Domain   string   `json:"domain"`
}

type mergeResponse struct {
	Success bool   `json:"success"`
	Merged  string `json:"merged"`
	Error   string `json:"error"`
}

// Merge implements merge(xml_list, domain) -> xml.
func (c *Client) Merge(ctx context.Context, xmlList []string, domain string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.MergeTimeout)
	defer cancel()

	resp, err := c.call(ctx, mergeRequest{Action: "merge", Memories: xmlList, Domain: domain})
	if err != nil {
		return "", err
	}

	var mr mergeResponse
	if err := json.Unmarshal(resp, &mr); err != nil {
		return "", fmt.Errorf("structurer: decode merge response: %w", err)
	}
	if !mr.Success {
		return "", fmt.Errorf("structurer: %s", mr.Error)
	}
	return mr.Merged, nil
}

// ExtractedRecord is one candidate record yielded by Extract.
type ExtractedRecord struct {
	Type       string  `json:"type"`
	Domain     string  `json:"domain"`
	Confidence float64 `json:"confidence"`
	Summary    string  `json:"summary"`
	Structured string  `json:"structuredContent"`
}

type analyzeSessionRequest struct {
	Action     string `json:"action"`
	Transcript string `json:"transcript"`
}

type analyzeSessionResponse struct {
	Success bool              `json:"success"`
	Memories []ExtractedRecord `json:"memories"`
	Error   string            `json:"error"`
}

// Extract implements extract(transcript_text), yielding at
// most three records worth persisting; an empty slice means NONE.
func (c *Client) Extract(ctx context.Context, transcript string) ([]ExtractedRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.AnalyzeTimeout)
	defer cancel()

	resp, err := c.call(ctx, analyzeSessionRequest{Action: "analyzeSession", Transcript: transcript})
	if err != nil {
		return nil, err
	}

	var ar analyzeSessionResponse
	if err := json.Unmarshal(resp, &ar); err != nil {
		return nil, fmt.Errorf("structurer: decode extract response: %w", err)
	}
	if !ar.Success {
		return nil, fmt.Errorf("structurer: %s", ar.Error)
	}
	if len(ar.Memories) > 3 {
		ar.Memories = ar.Memories[:3]
	}
	return ar.Memories, nil
}

// Ping checks gateway liveness.
func (c *Client) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	resp, err := c.call(ctx, structurizeRequest{Action: "ping"})
	if err != nil {
		return false
	}
	var out struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return false
	}
	return out.Success
}

func (c *Client) call(ctx context.Context, req interface{}) ([]byte, error) {
	var d net.Dialer
	d.Timeout = c.cfg.DialTimeout

	conn, err := d.DialContext(ctx, "tcp", c.cfg.addr())
	if err != nil {
		return nil, fmt.Errorf("structurer: dial: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("structurer: encode request: %w", err)
	}
	if _, err := conn.Write(append(payload, '\n')); err != nil {
		return nil, fmt.Errorf("structurer: write request: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("structurer: read response: %w", err)
		}
		return nil, fmt.Errorf("structurer: connection closed with no response")
	}

	return []byte(strings.TrimSpace(scanner.Text())), nil
}
