package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mycelicmemory/memengine/internal/curator"
	"github.com/mycelicmemory/memengine/internal/database"
	"github.com/mycelicmemory/memengine/internal/engine"
	"github.com/mycelicmemory/memengine/internal/memory"
	"github.com/mycelicmemory/memengine/internal/retriever"
	"github.com/mycelicmemory/memengine/pkg/config"
)

var (
	// remember flags
	rememberConfidence float64
	rememberType       string
	rememberTags       []string
	rememberDomain     string
	rememberSource     string

	// search flags
	searchLimit  int
	searchType   string
	searchDomain string
	searchQuick  bool

	// update flags
	updateContent    string
	updateConfidence float64
	updateTags       []string
	updateDomain     string

	// list flags
	listLimit  int
	listOffset int
	listType   string
	listDomain string
)

// rememberCmd represents the remember command
var rememberCmd = &cobra.Command{
	Use:   "remember <content>",
	Short: "Store a memory",
	Long: `Store a new memory with the given content.

Examples:
  mycelicmemory remember "Go channels are like pipes between goroutines"
  mycelicmemory remember "Important meeting notes" --confidence 0.8 --tags meeting,work
  mycelicmemory remember "Python tip" --domain programming`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		content := strings.Join(args, " ")
		runRemember(content)
	},
}

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search memories",
	Long: `Search through stored memories using hybrid BM25+vector ranking.

Examples:
  mycelicmemory search "concurrency patterns"
  mycelicmemory search "golang" --limit 10
  mycelicmemory search "api" --domain programming`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		query := strings.Join(args, " ")
		runSearch(query)
	},
}

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get memory by ID",
	Long: `Retrieve a specific memory by its numeric ID.

Examples:
  mycelicmemory get 42`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runGet(args[0])
	},
}

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored memories",
	Long: `List stored memories with optional filtering.

Examples:
  mycelicmemory list
  mycelicmemory list --limit 20
  mycelicmemory list --domain programming`,
	Run: func(cmd *cobra.Command, args []string) {
		runList()
	},
}

// updateCmd represents the update command
var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a memory",
	Long: `Update an existing memory's content, confidence, or tags.

Examples:
  mycelicmemory update 42 --content "Updated content"
  mycelicmemory update 42 --confidence 0.8
  mycelicmemory update 42 --tags newtag1,newtag2`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runUpdate(args[0])
	},
}

// forgetCmd represents the forget command
var forgetCmd = &cobra.Command{
	Use:   "forget <id>",
	Short: "Delete a memory",
	Long: `Delete a memory by its numeric ID.

Examples:
  mycelicmemory forget 42`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runForget(args[0])
	},
}

func init() {
	rootCmd.AddCommand(rememberCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(forgetCmd)

	// Remember flags
	rememberCmd.Flags().Float64VarP(&rememberConfidence, "confidence", "i", 0, "Initial confidence (0.3-0.9, default 0.5)")
	rememberCmd.Flags().StringVar(&rememberType, "type", "context", "Record type")
	rememberCmd.Flags().StringSliceVarP(&rememberTags, "tags", "t", nil, "Tags (comma-separated)")
	rememberCmd.Flags().StringVarP(&rememberDomain, "domain", "d", "", "Knowledge domain")
	rememberCmd.Flags().StringVarP(&rememberSource, "source", "s", "", "Source of the memory")

	// Search flags
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 10, "Maximum results to return")
	searchCmd.Flags().StringVar(&searchType, "type", "", "Filter by type")
	searchCmd.Flags().StringVarP(&searchDomain, "domain", "d", "", "Filter by domain")
	searchCmd.Flags().BoolVar(&searchQuick, "quick", false, "Lexical-only search, skip vector ranking")

	// Update flags
	updateCmd.Flags().StringVar(&updateContent, "content", "", "New content")
	updateCmd.Flags().Float64VarP(&updateConfidence, "confidence", "i", 0, "New confidence (0.3-0.9)")
	updateCmd.Flags().StringSliceVarP(&updateTags, "tags", "t", nil, "New tags")
	updateCmd.Flags().StringVarP(&updateDomain, "domain", "d", "", "New domain")

	// List flags
	listCmd.Flags().IntVarP(&listLimit, "limit", "l", 50, "Maximum results to return")
	listCmd.Flags().IntVarP(&listOffset, "offset", "o", 0, "Offset for pagination")
	listCmd.Flags().StringVar(&listType, "type", "", "Filter by type")
	listCmd.Flags().StringVarP(&listDomain, "domain", "d", "", "Filter by domain")
}

// getEngine loads config and opens the engine, the shared entry point
// for every memory subcommand.
func getEngine() (*engine.Engine, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	eng, err := engine.Open(cfg.EngineConfig())
	if err != nil {
		return nil, nil, err
	}

	return eng, cfg, nil
}

// currentSessionID resolves the session id to attach to a saved memory,
// per cfg.Session's configured auto-detection strategy.
func currentSessionID(cfg *config.Config) string {
	if !cfg.Session.AutoGenerate {
		return cfg.Session.ManualID
	}
	strategy := memory.SessionStrategy(cfg.Session.Strategy)
	detector := memory.NewSessionDetector(strategy)
	detector.ManualID = cfg.Session.ManualID
	return detector.DetectSessionID()
}

func parseRecordID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		fmt.Printf("Error: invalid memory id %q (expected a number)\n", s)
		os.Exit(1)
	}
	return id
}

func runRemember(content string) {
	eng, cfg, err := getEngine()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	embedderUp, structurerUp := eng.Ping(ctx)
	if !embedderUp || !structurerUp {
		fmt.Println("⚠️  One or more gateways unreachable - memory stored but with reduced indexing")
	}

	sessionID := currentSessionID(cfg)

	outcome, err := eng.Curator.Save(ctx, content, curator.SaveOptions{
		Type:       rememberType,
		Domain:     rememberDomain,
		Tags:       rememberTags,
		Confidence: rememberConfidence,
		Source:     rememberSource,
		SessionID:  sessionID,
	})
	if err != nil {
		fmt.Printf("Error storing memory: %v\n", err)
		os.Exit(1)
	}

	if outcome.Rejected {
		fmt.Println("Memory rejected by the structurer as low value.")
		fmt.Printf("   Reason: %s\n", outcome.Reason)
		return
	}

	verb := "Stored"
	if outcome.Updated {
		verb = "Reinforced"
	}
	fmt.Printf("✅ Memory %s Successfully\n", verb)
	fmt.Println("=============================")
	fmt.Println()
	fmt.Printf("🆔 Memory ID: %d\n", outcome.ID)
	if outcome.Updated {
		fmt.Printf("   (merged with existing memory, similarity %.2f)\n", outcome.Similarity)
	}
	fmt.Println()
	fmt.Println("📝 Stored Content:")
	fmt.Printf("   %s\n", content)
	fmt.Println()
	if len(rememberTags) > 0 {
		fmt.Printf("🏷️  Tags: %s\n", strings.Join(rememberTags, ", "))
	}
	if rememberDomain != "" {
		fmt.Printf("🌍 Domain: %s\n", rememberDomain)
	}
	if outcome.ClusterJoin != nil {
		fmt.Printf("🔗 Joined cluster %d\n", outcome.ClusterJoin.ClusterID)
	}
	if len(outcome.ChunkIDs) > 0 {
		fmt.Printf("📚 Split into %d chunks: %d", len(outcome.ChunkIDs)+1, outcome.ID)
		for _, id := range outcome.ChunkIDs {
			fmt.Printf(", %d", id)
		}
		fmt.Println()
		if outcome.ChunksDropped {
			fmt.Printf("⚠️  Stopped early: %s\n", outcome.Reason)
		}
	}
	fmt.Println()
	fmt.Println("💡 Use this memory ID in subsequent commands:")
	fmt.Printf("   mycelicmemory update %d --content \"new content\"\n", outcome.ID)
	fmt.Printf("   mycelicmemory relate %d <other-memory-id>\n", outcome.ID)
}

func runSearch(query string) {
	eng, _, err := getEngine()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	filters := retriever.Filters{Type: searchType, Domain: searchDomain}

	var results []retriever.Result
	if searchQuick {
		results, err = eng.Retriever.QuickSearch(query, searchLimit, filters)
	} else {
		results, err = eng.Retriever.Search(ctx, query, searchLimit, filters)
	}
	if err != nil {
		fmt.Printf("Error searching: %v\n", err)
		os.Exit(1)
	}

	mode := "hybrid (BM25 + vector)"
	if searchQuick {
		mode = "lexical-only"
	}

	fmt.Printf("Search Results for: \"%s\"\n", query)
	fmt.Println("========================================")
	fmt.Println()
	fmt.Printf("Found %d result(s) [mode: %s]:\n\n", len(results), mode)

	for i, r := range results {
		fmt.Printf("%d. %s\n", i+1, r.Content)
		fmt.Printf("   ID: %d\n", r.Record.ID)
		fmt.Printf("   Combined: %.3f (bm25: %.3f, vec: %.3f)\n", r.Combined, r.BM25, r.VecSim)
		fmt.Printf("   Confidence: %.2f\n", r.Record.Confidence)
		if len(r.Record.Tags) > 0 {
			fmt.Printf("   Tags: %s\n", strings.Join(r.Record.Tags, ", "))
		}
		if r.Record.Domain != "" {
			fmt.Printf("   Domain: %s\n", r.Record.Domain)
		}
		fmt.Printf("   Created: %s\n", r.Record.CreatedAt.Format("2006-01-02 15:04"))
		fmt.Println()
	}

	fmt.Println("💡 Suggestions:")
	if searchQuick {
		fmt.Println("   💡 Drop --quick for hybrid ranking once the embedder gateway is up")
	}
	fmt.Println("   💡 Narrow results with --domain or --type")
}

func runGet(idArg string) {
	id := parseRecordID(idArg)

	eng, _, err := getEngine()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	rec, err := eng.GetRecord(id)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if rec == nil {
		fmt.Printf("Memory not found: %d\n", id)
		os.Exit(1)
	}

	fmt.Println("Memory Details")
	fmt.Println("==============")
	fmt.Println()
	fmt.Println("📝 Content:")
	fmt.Printf("   %s\n", rec.Content)
	fmt.Println()
	fmt.Println("📊 Metadata:")
	fmt.Printf("   ID: %d\n", rec.ID)
	fmt.Printf("   Type: %s\n", rec.Type)
	fmt.Printf("   Confidence: %.2f\n", rec.Confidence)
	if len(rec.Tags) > 0 {
		fmt.Printf("   Tags: %s\n", strings.Join(rec.Tags, ", "))
	}
	if rec.Domain != "" {
		fmt.Printf("   Domain: %s\n", rec.Domain)
	}
	if rec.SessionID != "" {
		fmt.Printf("   Session: %s\n", rec.SessionID)
	}
	fmt.Printf("   Created: %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("   Updated: %s\n", rec.UpdatedAt.Format("2006-01-02 15:04:05"))
	fmt.Println()
	fmt.Println("💡 Suggestions:")
	fmt.Printf("   💡 Update this memory: mycelicmemory update %d --content \"new content\"\n", rec.ID)
	fmt.Printf("   💡 Create relationship: mycelicmemory relate %d <other-memory-id>\n", rec.ID)
}

func runList() {
	eng, _, err := getEngine()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	records, err := eng.ListRecords(database.ListOptions{
		Type:   listType,
		Domain: listDomain,
		Limit:  listLimit,
		Offset: listOffset,
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Memory List")
	fmt.Println("===========")
	fmt.Println()
	fmt.Printf("Found %d memories\n\n", len(records))

	var firstID int64
	for i, r := range records {
		if i == 0 {
			firstID = r.ID
		}
		fmt.Printf("%d. %s\n", i+1, truncate(r.Content, 80))
		fmt.Printf("   ID: %d | Confidence: %.2f", r.ID, r.Confidence)
		if len(r.Tags) > 0 {
			fmt.Printf(" | Tags: %s", strings.Join(r.Tags, ", "))
		}
		fmt.Printf(" | Created: %s\n\n", r.CreatedAt.Format("2006-01-02"))
	}

	if len(records) > 0 {
		fmt.Println("💡 Suggestions:")
		fmt.Printf("   💡 View details: mycelicmemory get %d\n", firstID)
		fmt.Println("   💡 Page further: mycelicmemory list --offset N")
	}
}

func runUpdate(idArg string) {
	id := parseRecordID(idArg)

	eng, _, err := getEngine()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	u := &database.RecordUpdate{}
	fmt.Printf("🔄 Updating memory %d with the following changes:\n", id)
	if updateContent != "" {
		u.Content = &updateContent
		fmt.Printf("   content: %s\n", updateContent)
	}
	if updateConfidence > 0 {
		u.Confidence = &updateConfidence
		fmt.Printf("   confidence: %.2f\n", updateConfidence)
	}
	if len(updateTags) > 0 {
		u.Tags = updateTags
		fmt.Printf("   tags: %s\n", strings.Join(updateTags, ", "))
	}
	if updateDomain != "" {
		u.Domain = &updateDomain
		fmt.Printf("   domain: %s\n", updateDomain)
	}

	if err := eng.UpdateRecord(id, u); err != nil {
		fmt.Printf("Error updating memory: %v\n", err)
		os.Exit(1)
	}

	rec, err := eng.GetRecord(id)
	if err != nil || rec == nil {
		fmt.Println("✅ Memory updated.")
		return
	}

	fmt.Println("✅ Memory Updated Successfully")
	fmt.Println("================================")
	fmt.Println()
	fmt.Printf("🆔 Memory ID: %d\n", rec.ID)
	fmt.Println()
	fmt.Println("📝 Updated Fields:")
	fmt.Printf("   Content: %s\n", rec.Content)
	fmt.Printf("   Confidence: %.2f\n", rec.Confidence)
	if len(rec.Tags) > 0 {
		fmt.Printf("   Tags: %s\n", strings.Join(rec.Tags, ", "))
	}
	fmt.Println()
	fmt.Println("💡 Suggestions:")
	fmt.Printf("   💡 Next: Search related memories with: mycelicmemory search \"%s\"\n", truncate(rec.Content, 30))
}

func runForget(idArg string) {
	id := parseRecordID(idArg)

	fmt.Printf("Are you sure you want to delete memory %d? [y/N]: ", id)
	var response string
	_, _ = fmt.Scanln(&response)
	if response != "y" && response != "Y" {
		fmt.Println("Delete cancelled.")
		return
	}

	eng, _, err := getEngine()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	if err := eng.DeleteRecord(id); err != nil {
		fmt.Printf("Error deleting memory: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("SUCCESS: Memory deleted successfully")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
