package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mycelicmemory/memengine/internal/engine"
	"github.com/mycelicmemory/memengine/pkg/config"
)

// setupCmd represents the setup command
var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Run setup wizard",
	Long:  `Run the setup wizard to configure MycelicMemory.`,
	Run: func(cmd *cobra.Command, args []string) {
		runSetup()
	},
}

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate installation",
	Long:  `Validate the MycelicMemory installation and configuration.`,
	Run: func(cmd *cobra.Command, args []string) {
		runValidate()
	},
}

// installCmd represents the install command
var installCmd = &cobra.Command{
	Use:   "install [component]",
	Short: "Install MycelicMemory integration",
	Long: `Install MycelicMemory integrations.

Examples:
  mycelicmemory install mcp     # Install the tool server for editor/agent integrations
  mycelicmemory install shell   # Install shell completion`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			fmt.Println("Available installations:")
			fmt.Println("  mcp     - Install the stdio tool server for editor/agent integrations")
			fmt.Println("  shell   - Install shell completion")
			return
		}
		runInstall(args[0])
	},
}

// killCmd represents the kill command
var killCmd = &cobra.Command{
	Use:   "kill <pid>",
	Short: "Kill specific mycelicmemory process",
	Long: `Kill a specific mycelicmemory process by PID.

Examples:
  mycelicmemory kill 12345`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runKill(args[0])
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(killCmd)
}

func runSetup() {
	fmt.Println("MycelicMemory Setup Wizard")
	fmt.Println("==========================")
	fmt.Println()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Creating default configuration...\n")
		cfg = config.DefaultConfig()
	}

	if err := cfg.EnsureConfigDir(); err != nil {
		fmt.Printf("Error creating config directory: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Configuration Summary:")
	fmt.Printf("  Config Dir: %s\n", config.ConfigPath())
	fmt.Printf("  Database: %s\n", cfg.Database.Path)
	fmt.Printf("  Health endpoint: %s:%d\n", cfg.Health.Host, cfg.Health.Port)
	fmt.Printf("  Embedder gateway: %s:%d\n", cfg.Embedder.Host, cfg.Embedder.Port)
	fmt.Printf("  Structurer gateway: %s:%d\n", cfg.Structurer.Host, cfg.Structurer.Port)
	fmt.Println()
	fmt.Println("Setup complete!")
	fmt.Println()
	fmt.Println("Run 'mycelicmemory doctor' to verify all components.")
}

func runValidate() {
	fmt.Println("MycelicMemory Installation Validation")
	fmt.Println("=====================================")
	fmt.Println()

	allOk := true
	hasWarnings := false

	fmt.Print("Configuration... ")
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		allOk = false
	} else if err := cfg.Validate(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		allOk = false
	} else {
		fmt.Println("OK")
	}

	fmt.Print("Database Path... ")
	if cfg != nil {
		if _, err := os.Stat(cfg.Database.Path); os.IsNotExist(err) {
			fmt.Println("NOT FOUND (will be created on first use)")
		} else {
			fmt.Println("OK")
		}
	}

	fmt.Print("Binary... ")
	if exe, err := os.Executable(); err == nil {
		fmt.Printf("OK (%s)\n", exe)
	} else {
		fmt.Println("ERROR")
		allOk = false
	}

	if cfg != nil {
		fmt.Println()
		fmt.Println("Optional Gateways:")

		var eng *engine.Engine
		if _, statErr := os.Stat(cfg.Database.Path); statErr == nil {
			eng, err = engine.Open(cfg.EngineConfig())
		}

		fmt.Print("  Embedder... ")
		switch {
		case cfg.Embedder.Disabled:
			fmt.Println("DISABLED")
		case eng == nil:
			fmt.Println("UNKNOWN (database not initialized)")
		default:
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			embedderUp, _ := eng.Ping(ctx)
			cancel()
			if embedderUp {
				fmt.Println("OK")
			} else {
				fmt.Println("NOT AVAILABLE")
				hasWarnings = true
			}
		}

		fmt.Print("  Structurer... ")
		switch {
		case cfg.Structurer.Disabled:
			fmt.Println("DISABLED")
		case eng == nil:
			fmt.Println("UNKNOWN (database not initialized)")
		default:
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			_, structurerUp := eng.Ping(ctx)
			cancel()
			if structurerUp {
				fmt.Println("OK")
			} else {
				fmt.Println("NOT AVAILABLE")
				hasWarnings = true
			}
		}

		if eng != nil {
			eng.Close()
		}
	}

	fmt.Println()
	if allOk && !hasWarnings {
		fmt.Println("✅ Installation validated successfully!")
	} else if allOk && hasWarnings {
		fmt.Println("✅ Core installation validated.")
		fmt.Println("⚠️  Some optional gateways are unavailable.")
		fmt.Println("   Run 'mycelicmemory doctor' for details.")
	} else {
		fmt.Println("❌ Some issues found. Run 'mycelicmemory doctor' for more details.")
	}
}

func runInstall(component string) {
	switch component {
	case "mcp":
		fmt.Println("Installing the tool server for editor/agent integrations...")
		fmt.Println()
		fmt.Println("Add mycelicmemory to your editor or agent's tool config:")
		fmt.Println()
		fmt.Printf("  \"mycelicmemory\": {\n")
		fmt.Printf("    \"command\": \"%s\",\n", os.Args[0])
		fmt.Printf("    \"args\": [\"--mcp\"]\n")
		fmt.Printf("  }\n")

	case "shell":
		fmt.Println("To install shell completion, run one of:")
		fmt.Println()
		fmt.Println("  # Bash")
		fmt.Println("  mycelicmemory completion bash > /etc/bash_completion.d/mycelicmemory")
		fmt.Println()
		fmt.Println("  # Zsh")
		fmt.Println("  mycelicmemory completion zsh > \"${fpath[1]}/_mycelicmemory\"")
		fmt.Println()
		fmt.Println("  # Fish")
		fmt.Println("  mycelicmemory completion fish > ~/.config/fish/completions/mycelicmemory.fish")

	default:
		fmt.Printf("Unknown component: %s\n", component)
		fmt.Println("Available: mcp, shell")
		os.Exit(1)
	}
}

func runKill(pidStr string) {
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		fmt.Printf("Invalid PID: %s\n", pidStr)
		os.Exit(1)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		fmt.Printf("Process not found: %d\n", pid)
		os.Exit(1)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		fmt.Printf("Error killing process: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Sent SIGTERM to process %d\n", pid)
}
