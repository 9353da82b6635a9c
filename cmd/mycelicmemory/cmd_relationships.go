package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mycelicmemory/memengine/internal/relationships"
)

var (
	// relate flags
	relateType     string
	relateStrength float64
	relateContext  string

	// find_related flags
	findRelatedLimit int
	findRelatedType  string

	// map_graph flags
	graphDepth       int
	graphMinStrength float64
)

// relateCmd represents the relate command
var relateCmd = &cobra.Command{
	Use:   "relate <source-id> <target-id>",
	Short: "Create relationship between memories",
	Long: `Create a relationship between two memories.

Relationship types: references, contradicts, expands, similar, sequential, causes, enables

Examples:
  mycelicmemory relate 1 2 --type similar
  mycelicmemory relate 1 2 --type references --strength 0.9
  mycelicmemory relate 1 2 --type causes --context "Root cause analysis"`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runRelate(args[0], args[1])
	},
}

// findRelatedCmd represents the find_related command
var findRelatedCmd = &cobra.Command{
	Use:   "find_related <id>",
	Short: "Find memories related to a specific memory",
	Long: `Find all memories that are related to the specified memory.

Examples:
  mycelicmemory find_related 1
  mycelicmemory find_related 1 --limit 20
  mycelicmemory find_related 1 --type similar`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runFindRelated(args[0])
	},
}

// mapGraphCmd represents the map_graph command
var mapGraphCmd = &cobra.Command{
	Use:   "map_graph <id>",
	Short: "Walk the relationship graph from a memory",
	Long: `Breadth-first walk of the relationship graph starting from a memory.

Examples:
  mycelicmemory map_graph 1
  mycelicmemory map_graph 1 --depth 3
  mycelicmemory map_graph 1 --min-strength 0.5`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runMapGraph(args[0])
	},
}

func init() {
	rootCmd.AddCommand(relateCmd)
	rootCmd.AddCommand(findRelatedCmd)
	rootCmd.AddCommand(mapGraphCmd)

	// Relate flags
	relateCmd.Flags().StringVarP(&relateType, "type", "t", "similar", "Relationship type (references, contradicts, expands, similar, sequential, causes, enables)")
	relateCmd.Flags().Float64VarP(&relateStrength, "strength", "s", 0.8, "Relationship strength (0.0-1.0)")
	relateCmd.Flags().StringVar(&relateContext, "context", "", "Context explaining the relationship")

	// Find related flags
	findRelatedCmd.Flags().IntVarP(&findRelatedLimit, "limit", "l", 10, "Maximum results")
	findRelatedCmd.Flags().StringVarP(&findRelatedType, "type", "t", "", "Filter by relationship type")

	// Map graph flags
	mapGraphCmd.Flags().IntVarP(&graphDepth, "depth", "d", 2, "Graph traversal depth (1-5)")
	mapGraphCmd.Flags().Float64Var(&graphMinStrength, "min-strength", 0, "Minimum relationship strength")
}

func runRelate(sourceArg, targetArg string) {
	sourceID := parseRecordID(sourceArg)
	targetID := parseRecordID(targetArg)

	fmt.Printf("Are you sure you want to create a '%s' relationship between memory %d and %d? [y/N]: ", relateType, sourceID, targetID)
	var response string
	_, _ = fmt.Scanln(&response)
	if response != "y" && response != "Y" {
		fmt.Println("Relationship creation cancelled.")
		return
	}

	eng, cfg, err := getEngine()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	svc := relationships.NewService(eng.Database(), cfg)

	_, err = svc.Create(&relationships.CreateOptions{
		SourceMemoryID:   sourceID,
		TargetMemoryID:   targetID,
		RelationshipType: relateType,
		Strength:         relateStrength,
		Context:          relateContext,
	})
	if err != nil {
		fmt.Printf("Error creating relationship: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("SUCCESS: Memory relationship created successfully!")
}

func runFindRelated(idArg string) {
	id := parseRecordID(idArg)

	eng, cfg, err := getEngine()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	svc := relationships.NewService(eng.Database(), cfg)

	results, err := svc.FindRelated(&relationships.FindRelatedOptions{
		MemoryID: id,
		Limit:    findRelatedLimit,
		Type:     findRelatedType,
	})
	if err != nil {
		fmt.Printf("Error finding related memories: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Related Memories for: %d\n", id)
	fmt.Println("════════════════════════════════════")
	fmt.Println()

	if len(results) == 0 {
		fmt.Println("No related memories found.")
		return
	}

	fmt.Printf("Found %d related memory(ies):\n\n", len(results))

	for i, r := range results {
		fmt.Printf("%d. %s\n", i+1, truncateContent(r.Memory.Content, 60))
		fmt.Printf("   ID: %d\n", r.Memory.ID)
		fmt.Printf("   Relationship: %s (strength: %.2f)\n", r.RelationshipType, r.Strength)
		fmt.Printf("   Confidence: %.2f\n", r.Memory.Confidence)
		fmt.Println()
	}
}

func runMapGraph(idArg string) {
	id := parseRecordID(idArg)

	eng, cfg, err := getEngine()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	svc := relationships.NewService(eng.Database(), cfg)

	result, err := svc.MapGraph(&relationships.MapGraphOptions{
		RootID:      id,
		Depth:       graphDepth,
		MinStrength: graphMinStrength,
	})
	if err != nil {
		fmt.Printf("Error mapping graph: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Relationship Graph for: %d\n", id)
	fmt.Println("==========================================")
	fmt.Println()
	fmt.Printf("Nodes: %d | Edges: %d | Depth: %d\n\n", result.TotalNodes, result.TotalEdges, result.MaxDepth)

	fmt.Println("Nodes:")
	for _, n := range result.Nodes {
		distMarker := strings.Repeat("  ", n.Distance)
		fmt.Printf("%s[%d] %d - %s\n", distMarker, n.Distance, n.ID, truncateContent(n.Content, 40))
	}

	fmt.Println()
	fmt.Println("Edges:")
	for _, e := range result.Edges {
		fmt.Printf("  %d -[%s (%.2f)]-> %d\n", e.SourceID, e.Type, e.Strength, e.TargetID)
	}
}

func truncateContent(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
