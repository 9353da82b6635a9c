package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// create_domain flags
	domainDescription string
)

// listDomainsCmd represents the list_domains command
var listDomainsCmd = &cobra.Command{
	Use:   "list_domains",
	Short: "List all knowledge domains",
	Long:  `List all knowledge domains in the descriptive catalog.`,
	Run: func(cmd *cobra.Command, args []string) {
		runListDomains()
	},
}

// createDomainCmd represents the create_domain command
var createDomainCmd = &cobra.Command{
	Use:   "create_domain <name>",
	Short: "Register a knowledge domain",
	Long: `Register a knowledge domain in the descriptive catalog.

Domains are also created implicitly the first time a memory is saved
against them; this command is for attaching a description up front.

Examples:
  mycelicmemory create_domain programming
  mycelicmemory create_domain "machine-learning" --description "ML and AI concepts"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runCreateDomain(args[0])
	},
}

// domainStatsCmd represents the domain_stats command
var domainStatsCmd = &cobra.Command{
	Use:   "domain_stats <domain>",
	Short: "Show statistics for a knowledge domain",
	Long: `Show statistics for a specific knowledge domain.

Examples:
  mycelicmemory domain_stats programming`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runDomainStats(args[0])
	},
}

// listSessionsCmd represents the list_sessions command
var listSessionsCmd = &cobra.Command{
	Use:   "list_sessions",
	Short: "List all agent sessions",
	Long:  `List all agent sessions that have saved memories.`,
	Run: func(cmd *cobra.Command, args []string) {
		runListSessions()
	},
}

// sessionStatsCmd represents the session_stats command
var sessionStatsCmd = &cobra.Command{
	Use:   "session_stats",
	Short: "Show overall session statistics",
	Long:  `Show aggregate statistics across all agent sessions.`,
	Run: func(cmd *cobra.Command, args []string) {
		runSessionStats()
	},
}

func init() {
	rootCmd.AddCommand(listDomainsCmd)
	rootCmd.AddCommand(createDomainCmd)
	rootCmd.AddCommand(domainStatsCmd)
	rootCmd.AddCommand(listSessionsCmd)
	rootCmd.AddCommand(sessionStatsCmd)

	createDomainCmd.Flags().StringVarP(&domainDescription, "description", "d", "", "Domain description")
}

func runListDomains() {
	eng, _, err := getEngine()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	domains, err := eng.Database().ListDomains()
	if err != nil {
		fmt.Printf("Error listing domains: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Domains (%d)\n", len(domains))
	fmt.Println("============")
	fmt.Println()

	if len(domains) == 0 {
		fmt.Println("No domains found.")
		fmt.Println("Create one with: mycelicmemory create_domain <name>")
		return
	}

	for _, d := range domains {
		fmt.Printf("- %s\n", d.Name)
		if d.Description != "" {
			fmt.Printf("  Description: %s\n", d.Description)
		}
		fmt.Println()
	}
}

func runCreateDomain(name string) {
	eng, _, err := getEngine()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	if err := eng.Database().UpsertDomain(name, domainDescription); err != nil {
		fmt.Printf("Error creating domain: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Domain Registered Successfully")
	fmt.Println("===============================")
	fmt.Println()
	fmt.Printf("Name: %s\n", name)
	if domainDescription != "" {
		fmt.Printf("Description: %s\n", domainDescription)
	}
}

func runDomainStats(domainName string) {
	eng, _, err := getEngine()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	stats, err := eng.Database().GetDomainStats(domainName)
	if err != nil {
		fmt.Printf("Error getting domain stats: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Domain Statistics: %s\n", domainName)
	fmt.Println("========================")
	fmt.Println()
	fmt.Printf("Memory Count: %d\n", stats.MemoryCount)
	fmt.Printf("Average Confidence: %.2f\n", stats.AverageConfidence)
}

func runListSessions() {
	eng, _, err := getEngine()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	sessions, err := eng.Database().ListSessions()
	if err != nil {
		fmt.Printf("Error listing sessions: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Sessions (%d)\n", len(sessions))
	fmt.Println("=============")
	fmt.Println()

	if len(sessions) == 0 {
		fmt.Println("No sessions found.")
		return
	}

	for _, s := range sessions {
		fmt.Printf("- %s\n", s.SessionID)
		fmt.Printf("  Agent: %s\n", s.AgentType)
		fmt.Printf("  Created: %s\n", s.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("  Last Active: %s\n", s.LastAccessedAt.Format("2006-01-02 15:04:05"))
		fmt.Println()
	}
}

func runSessionStats() {
	eng, cfg, err := getEngine()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	stats, err := eng.Stats()
	if err != nil {
		fmt.Printf("Error getting stats: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Session Statistics")
	fmt.Println("==================")
	fmt.Println()
	fmt.Printf("Total Sessions: %d\n", stats.SessionCount)
	fmt.Printf("Total Memories: %d\n", stats.MemoryCount)
	fmt.Printf("Database: %s\n", cfg.Database.Path)
}
