package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mycelicmemory/memengine/internal/engine"
	"github.com/mycelicmemory/memengine/internal/toolserver"
	"github.com/mycelicmemory/memengine/pkg/config"
)

var (
	// Version is set during build
	Version = "1.2.0"

	// Global flags
	mcpMode bool
	quiet   bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mycelicmemory",
	Short: "AI-powered persistent memory system (open source)",
	Long: `MyclicMemory provides persistent memory capabilities through natural language commands.
Works as both a standalone CLI tool and MCP server for AI agents.

Examples:
  mycelicmemory remember "Go channels are like pipes between goroutines"
  mycelicmemory search "concurrency patterns"
  mycelicmemory relate <id1> <id2> --type similar
  mycelicmemory forget <memory-id>

  mycelicmemory --mcp     # Run as a stdio tool server
  mycelicmemory doctor    # Check gateway and database status`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		if mcpMode {
			runToolServer()
		} else {
			_ = cmd.Help()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().String("log_level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&mcpMode, "mcp", false, "run as a stdio tool server for editor/agent integrations")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress output")
}

// runToolServer starts the line-delimited-JSON stdio tool server.
func runToolServer() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	eng, err := engine.Open(cfg.EngineConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening engine: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	server := toolserver.New(eng).WithRateLimit(&cfg.RateLimit)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		cancel()
	}()

	if err := server.Run(ctx, os.Stdin, os.Stdout); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "tool server error: %v\n", err)
		os.Exit(1)
	}
}
