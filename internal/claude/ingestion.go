package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mycelicmemory/memengine/internal/curator"
	"github.com/mycelicmemory/memengine/internal/engine"
)

// Ingester turns Claude Code conversation transcripts into memory
// records, via the Structurer gateway's extract operation and the
// Curator's save path.
type Ingester struct {
	reader *Reader
	eng    *engine.Engine
}

// IngestOptions controls what gets ingested.
type IngestOptions struct {
	ProjectPath string // filter to specific project (empty = all)
	MinMessages int    // skip sessions with fewer messages (default 3)
}

// IngestResult contains the results of an ingestion run.
type IngestResult struct {
	SessionsProcessed int `json:"sessions_processed"`
	SessionsSkipped   int `json:"sessions_skipped"`
	RecordsCreated    int `json:"records_created"`
	RecordsRejected   int `json:"records_rejected"`
}

// NewIngester creates a new conversation ingester backed by eng.
func NewIngester(reader *Reader, eng *engine.Engine) *Ingester {
	return &Ingester{reader: reader, eng: eng}
}

// IngestAll iterates all projects and sessions under the Claude
// directory, extracting and saving memories from each conversation.
func (ing *Ingester) IngestAll(ctx context.Context, opts *IngestOptions) (*IngestResult, error) {
	if opts.MinMessages <= 0 {
		opts.MinMessages = 3
	}

	result := &IngestResult{}

	projects, err := ing.reader.ListProjects()
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	for _, project := range projects {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		if opts.ProjectPath != "" && project.Path != opts.ProjectPath {
			continue
		}

		files, err := ing.reader.ListConversationFiles(project.Hash)
		if err != nil {
			log.Warn("failed to list conversations for project", "project", project.Hash, "error", err)
			continue
		}

		for _, filePath := range files {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			default:
			}

			conv, err := ing.reader.ReadConversation(filePath)
			if err != nil {
				log.Warn("failed to read conversation", "file", filePath, "error", err)
				continue
			}

			if len(conv.Messages) < opts.MinMessages {
				result.SessionsSkipped++
				continue
			}

			result.SessionsProcessed++

			created, rejected, err := ing.IngestSession(ctx, conv)
			if err != nil {
				log.Warn("failed to ingest session", "session", conv.SessionID, "error", err)
				continue
			}
			result.RecordsCreated += created
			result.RecordsRejected += rejected
		}
	}

	return result, nil
}

// IngestSession renders one conversation as a role-tagged transcript,
// hands it to the Structurer gateway's extract operation, and saves
// whatever candidate records come back through the Curator. Returns
// the number of records created and the number not created (rejected
// by the structurer, or folded into an existing record as a duplicate).
func (ing *Ingester) IngestSession(ctx context.Context, conv *ConversationFile) (created, rejected int, err error) {
	transcript := BuildTranscript(conv)
	if transcript == "" {
		return 0, 0, nil
	}
	if ing.eng.Structurer == nil {
		return 0, 0, fmt.Errorf("structurer gateway unavailable")
	}

	records, err := ing.eng.Structurer.Extract(ctx, transcript)
	if err != nil {
		return 0, 0, fmt.Errorf("extract: %w", err)
	}

	for _, rec := range records {
		outcome, err := ing.eng.Curator.Save(ctx, rec.Summary, curator.SaveOptions{
			Type:          rec.Type,
			Domain:        rec.Domain,
			Confidence:    rec.Confidence,
			Source:        "claude-code-session",
			PreStructured: rec.Structured,
			SessionID:     conv.SessionID,
		})
		if err != nil {
			log.Warn("failed to save extracted record", "session", conv.SessionID, "error", err)
			continue
		}
		if outcome.Created {
			created++
		} else {
			rejected++
		}
	}

	return created, rejected, nil
}

// BuildTranscript renders a conversation's user/assistant messages as
// the role-tagged text the Structurer gateway's extract expects,
// skipping interrupted requests and empty turns.
func BuildTranscript(conv *ConversationFile) string {
	var b strings.Builder
	for _, raw := range conv.Messages {
		var parsed ParsedMessage
		if raw.Message != nil {
			if err := json.Unmarshal(raw.Message, &parsed); err != nil {
				continue
			}
		}

		text := ExtractTextContent(parsed.Content)
		if text == "" || strings.HasPrefix(text, "[Request interrupted") {
			continue
		}

		fmt.Fprintf(&b, "%s: %s\n\n", raw.Type, truncate(text, 4000))
	}
	return strings.TrimSpace(b.String())
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
