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
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Classify, route, and answer a retrieval query",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "Maximum spans to return")
}

type searchResultSpan struct {
	SpanHash string  `json:"span_hash"`
	FilePath string  `json:"file_path"`
	Symbol   string  `json:"symbol"`
	Score    float64 `json:"score"`
}

type searchResult struct {
	Spans      []searchResultSpan `json:"spans"`
	Confidence float64            `json:"confidence"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]
	root, err := repoRoot()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
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

	plan, err := eng.Planner.Plan(ctx, query, nil, searchLimit*400)
	if err != nil {
		return err
	}

	result := searchResult{Confidence: plan.Confidence}
	limit := searchLimit
	if limit <= 0 || limit > len(plan.Spans) {
		limit = len(plan.Spans)
	}
	for _, fs := range plan.Spans[:limit] {
		sp, err := eng.Store.GetSpan(fs.SpanHash)
		if err != nil {
			continue
		}
		result.Spans = append(result.Spans, searchResultSpan{
			SpanHash: fs.SpanHash,
			FilePath: sp.FilePath,
			Symbol:   sp.Symbol,
			Score:    fs.Score,
		})
	}

	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(result)
	}
	for _, s := range result.Spans {
		fmt.Printf("%.4f  %s:%s\n", s.Score, s.FilePath, s.Symbol)
	}
	fmt.Printf("confidence: %.2f\n", result.Confidence)
	return nil
}
