package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/vmlinuzx/llmc-sub017/internal/config"
	"github.com/vmlinuzx/llmc-sub017/internal/engine"
	"github.com/vmlinuzx/llmc-sub017/internal/enrichment"
)

var (
	enrichExecute bool
	enrichLimit   int
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Run the enrichment cascade over pending spans",
	Long: `Without --execute, reports how many spans are pending enrichment but
makes no backend calls. With --execute, runs up to --limit spans through
the router-selected backend cascade and persists the results.`,
	RunE: runEnrich,
}

func init() {
	enrichCmd.Flags().BoolVar(&enrichExecute, "execute", false, "Actually call backends and persist results")
	enrichCmd.Flags().IntVar(&enrichLimit, "limit", 50, "Maximum spans to process")
}

func runEnrich(cmd *cobra.Command, args []string) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}

	cfg, err := config.Load(filepath.Join(root, ".llmc", "config.yaml"))
	if err != nil {
		return err
	}
	eng, err := engine.Open(root, cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	if !enrichExecute {
		pending, err := eng.Store.PendingEnrichments(enrichLimit, enrichment.DefaultConfig().Cooldown)
		if err != nil {
			return err
		}
		fmt.Printf("%d spans pending enrichment (dry run, pass --execute to enrich)\n", len(pending))
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Minute)
	defer cancel()

	result, err := eng.Pipeline.ProcessBatch(ctx, enrichLimit)
	if err != nil {
		return err
	}

	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(result)
	}
	fmt.Printf("processed %d/%d pending: %d succeeded, %d failed, %d skipped (%s)\n",
		result.Attempted, result.TotalPending, result.Succeeded, result.Failed, result.Skipped, result.Duration)
	return nil
}
