package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vmlinuzx/llmc-sub017/internal/config"
	"github.com/vmlinuzx/llmc-sub017/internal/engine"
	"github.com/vmlinuzx/llmc-sub017/internal/indexer"
)

var (
	indexSince    string
	indexNoExport bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Walk the repository and refresh the span catalog",
	Long: `Walks the repository tree (or, with --since, only the files changed since
a commit), hashes content to detect changes, and re-splits anything new or
modified. Writes .llmc/rag_index_status.json unless --no-export is set.`,
	RunE: runIndex,
}

var syncCmd = &cobra.Command{
	Use:   "sync <paths...>",
	Short: "Re-index an explicit list of files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSync,
}

func init() {
	indexCmd.Flags().StringVar(&indexSince, "since", "", "Only re-index files changed since this git commit")
	indexCmd.Flags().BoolVar(&indexNoExport, "no-export", false, "Skip writing rag_index_status.json")
}

func runIndex(cmd *cobra.Command, args []string) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Minute)
	defer cancel()

	cfg, err := config.Load(filepath.Join(root, ".llmc", "config.yaml"))
	if err != nil {
		return err
	}
	eng, err := engine.Open(root, cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	opts := indexer.Options{
		MaxFileSize: cfg.Indexer.MaxFileSize,
		IgnoreGlobs: cfg.Indexer.IgnoreGlobs,
	}
	if indexSince != "" {
		paths, err := changedSince(ctx, root, indexSince)
		if err != nil {
			return err
		}
		opts.Paths = paths
	}

	stats, err := eng.Indexer.Run(ctx, root, opts)
	if err != nil {
		return err
	}

	if !indexNoExport {
		if err := writeIndexStatus(eng, stats); err != nil {
			logger.Warn("failed to write index status", zap.Error(err))
		}
	}

	return printIndexStats(stats)
}

func runSync(cmd *cobra.Command, args []string) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
	defer cancel()

	cfg, err := config.Load(filepath.Join(root, ".llmc", "config.yaml"))
	if err != nil {
		return err
	}
	eng, err := engine.Open(root, cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	abs := make([]string, len(args))
	for i, p := range args {
		abs[i], err = filepath.Abs(p)
		if err != nil {
			return err
		}
	}

	stats, err := eng.Indexer.Run(ctx, root, indexer.Options{
		MaxFileSize: cfg.Indexer.MaxFileSize,
		IgnoreGlobs: cfg.Indexer.IgnoreGlobs,
		Paths:       abs,
	})
	if err != nil {
		return err
	}
	return printIndexStats(stats)
}

func changedSince(ctx context.Context, root, commit string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "diff", "--name-only", commit, "--", ".")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git diff --since %s: %w", commit, err)
	}
	var paths []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		paths = append(paths, filepath.Join(root, line))
	}
	return paths, nil
}

func writeIndexStatus(eng *engine.Engine, stats indexer.Stats) error {
	status, _, err := eng.CurrentIndexStatus()
	if err != nil {
		return err
	}
	status.LastIndexedAt = time.Now()
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(eng.Config.LlmcDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(eng.Config.StatusPath, data, 0o644)
}

func printIndexStats(stats indexer.Stats) error {
	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		return enc.Encode(stats)
	}
	fmt.Printf("scanned %d files: +%d spans, %d unchanged, -%d removed, %d failed (%s)\n",
		stats.FilesScanned, stats.SpansAdded, stats.SpansUnchanged, stats.SpansRemoved, stats.FilesFailed, stats.Duration)
	for _, fe := range stats.Errors {
		fmt.Printf("  FAILED %s: %v\n", fe.Path, fe.Err)
	}
	return nil
}
