// Package main implements the llmc CLI, the operator surface over the
// retrieval-augmented code-intelligence engine.
//
// This file is the entry point and command registration hub. Command
// implementations are split across multiple cmd_*.go files.
//
// # File Index
//
// Entry Point & Global State:
//   - main.go          - Entry point, rootCmd, global flags, init()
//
// Indexing & Graph:
//   - cmd_index.go     - indexCmd, syncCmd, runIndex(), runSync()
//   - cmd_graph.go     - graphCmd, graphBuildCmd, runGraphBuild()
//
// Search & Enrichment:
//   - cmd_search.go    - searchCmd, runSearch()
//   - cmd_enrich.go    - enrichCmd, runEnrich()
//
// Repo Lifecycle:
//   - cmd_repo.go      - repoCmd, repoRegisterCmd, repoBootstrapCmd,
//                        repoListCmd, repoValidateCmd, repoRmCmd, repoCleanCmd
//
// Service Daemon:
//   - cmd_service.go   - serviceCmd, serviceStartCmd, serviceStopCmd,
//                        serviceStatusCmd
//
// Helpers:
//   - registry.go      - repoRegistry, loadRegistry(), saveRegistry()
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vmlinuzx/llmc-sub017/internal/engerr"
	"github.com/vmlinuzx/llmc-sub017/internal/logging"
)

var (
	verbose   bool
	workspace string
	jsonOut   bool

	logger *zap.Logger
)

// rootCmd is the llmc base command.
var rootCmd = &cobra.Command{
	Use:   "llmc",
	Short: "Retrieval-augmented code-intelligence engine",
	Long: `llmc indexes a repository into content-addressed spans, enriches them
through a routed LLM backend cascade, links them into a graph, and answers
queries by fusing lexical, vector, and graph retrieval channels.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		return logging.Init(logging.Options{Debug: verbose, JSON: !jsonOut})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Repository root (default: current directory)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Emit machine-readable JSON output where supported")

	rootCmd.AddCommand(indexCmd, syncCmd, graphCmd, searchCmd, enrichCmd, repoCmd, serviceCmd)
}

// repoRoot resolves the workspace flag to an absolute path, defaulting to
// the current working directory.
func repoRoot() (string, error) {
	if workspace == "" {
		return os.Getwd()
	}
	return filepath.Abs(workspace)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(engerr.ExitCode(err))
	}
}
