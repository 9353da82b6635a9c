package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mycelicmemory/memengine/internal/database"
)

var (
	analyzeDomain string
	analyzeType   string
	analyzeLimit  int
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Summarize memories via the structurer gateway",
	Long: `Pull the most recent matching memories and ask the structurer
gateway's merge operation to fold them into one summarizing body.

Examples:
  mycelicmemory analyze --domain go
  mycelicmemory analyze --domain go --type pattern --limit 20`,
	Run: func(cmd *cobra.Command, args []string) {
		runAnalyze()
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVarP(&analyzeDomain, "domain", "d", "", "Domain to analyze (required)")
	analyzeCmd.Flags().StringVar(&analyzeType, "type", "", "Filter by record type")
	analyzeCmd.Flags().IntVarP(&analyzeLimit, "limit", "l", 20, "Maximum memories to fold in")
}

func runAnalyze() {
	if analyzeDomain == "" {
		fmt.Println("Error: --domain is required")
		os.Exit(1)
	}

	eng, cfg, err := getEngine()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	if cfg.Structurer.Disabled {
		fmt.Println("Analysis requires the structurer gateway, which is disabled in configuration.")
		fmt.Println("Run 'mycelicmemory doctor' to check gateway status.")
		os.Exit(1)
	}

	records, err := eng.ListRecords(database.ListOptions{
		Type:   analyzeType,
		Domain: analyzeDomain,
		Limit:  analyzeLimit,
	})
	if err != nil {
		fmt.Printf("Error listing memories: %v\n", err)
		os.Exit(1)
	}
	if len(records) == 0 {
		fmt.Printf("No memories found for domain %q.\n", analyzeDomain)
		return
	}

	bodies := make([]string, 0, len(records))
	for _, r := range records {
		bodies = append(bodies, r.Body())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	merged, err := eng.Structurer.Merge(ctx, bodies, analyzeDomain)
	if err != nil {
		fmt.Printf("Error analyzing: %v\n", err)
		fmt.Println("Run 'mycelicmemory doctor' to check gateway status.")
		os.Exit(1)
	}

	fmt.Printf("📊 Analysis: %s (%d memories)\n", analyzeDomain, len(records))
	fmt.Println("========================================")
	fmt.Println()
	fmt.Println(merged)
}
