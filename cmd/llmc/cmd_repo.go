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
	"github.com/vmlinuzx/llmc-sub017/internal/engerr"
	"github.com/vmlinuzx/llmc-sub017/internal/engine"
	"github.com/vmlinuzx/llmc-sub017/internal/indexer"
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage repos known to this llmc installation",
}

var repoRegisterCmd = &cobra.Command{
	Use:   "register <path>",
	Short: "Register an existing repo without indexing it",
	Args:  cobra.ExactArgs(1),
	RunE:  runRepoRegister,
}

var repoBootstrapCmd = &cobra.Command{
	Use:   "bootstrap <path>",
	Short: "Register a repo and run its first full index",
	Args:  cobra.ExactArgs(1),
	RunE:  runRepoBootstrap,
}

var repoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every registered repo",
	RunE:  runRepoList,
}

var repoValidateCmd = &cobra.Command{
	Use:   "validate <path>",
	Short: "Check a repo's persisted artifacts for consistency",
	Args:  cobra.ExactArgs(1),
	RunE:  runRepoValidate,
}

var repoRmCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Unregister a repo, leaving its .llmc directory on disk",
	Args:  cobra.ExactArgs(1),
	RunE:  runRepoRm,
}

var repoCleanCmd = &cobra.Command{
	Use:   "clean <path>",
	Short: "Unregister a repo and delete its .llmc directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runRepoClean,
}

func init() {
	repoCmd.AddCommand(repoRegisterCmd, repoBootstrapCmd, repoListCmd, repoValidateCmd, repoRmCmd, repoCleanCmd)
}

func resolveRepoArg(p string) (string, error) {
	return filepath.Abs(p)
}

func runRepoRegister(cmd *cobra.Command, args []string) error {
	path, err := resolveRepoArg(args[0])
	if err != nil {
		return err
	}
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	if _, ok := reg.find(path); ok {
		return engerr.Config("repo register", fmt.Errorf("%s is already registered", path))
	}
	reg.Repos = append(reg.Repos, repoEntry{Path: path, RegisteredAt: time.Now()})
	if err := saveRegistry(reg); err != nil {
		return err
	}
	fmt.Printf("registered %s\n", path)
	return nil
}

func runRepoBootstrap(cmd *cobra.Command, args []string) error {
	if err := runRepoRegister(cmd, args); err != nil {
		return err
	}
	path, err := resolveRepoArg(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Minute)
	defer cancel()

	cfg, err := config.Load(filepath.Join(path, ".llmc", "config.yaml"))
	if err != nil {
		return err
	}
	eng, err := engine.Open(path, cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	stats, err := eng.Indexer.Run(ctx, path, indexer.Options{
		MaxFileSize: cfg.Indexer.MaxFileSize,
		IgnoreGlobs: cfg.Indexer.IgnoreGlobs,
	})
	if err != nil {
		return err
	}
	return printIndexStats(stats)
}

func runRepoList(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(reg.Repos)
	}
	for _, e := range reg.Repos {
		fmt.Printf("%s  (registered %s)\n", e.Path, e.RegisteredAt.Format(time.RFC3339))
	}
	return nil
}

func runRepoValidate(cmd *cobra.Command, args []string) error {
	path, err := resolveRepoArg(args[0])
	if err != nil {
		return err
	}
	cfg, err := config.Load(filepath.Join(path, ".llmc", "config.yaml"))
	if err != nil {
		return err
	}
	eng, err := engine.Open(path, cfg)
	if err != nil {
		return engerr.Integrity("repo validate", err, map[string]any{"path": path})
	}
	defer eng.Close()

	status, spanSetHash, err := eng.CurrentIndexStatus()
	if err != nil {
		return err
	}
	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"index_state":   status.IndexState,
			"span_set_hash": spanSetHash,
			"graph_stale":   eng.Graph.Stale(),
		})
	}
	fmt.Printf("index_state=%s span_set_hash=%s graph_stale=%v\n", status.IndexState, spanSetHash, eng.Graph.Stale())
	return nil
}

func runRepoRm(cmd *cobra.Command, args []string) error {
	path, err := resolveRepoArg(args[0])
	if err != nil {
		return err
	}
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	if _, ok := reg.find(path); !ok {
		return engerr.Config("repo rm", fmt.Errorf("%s is not registered", path))
	}
	reg.remove(path)
	if err := saveRegistry(reg); err != nil {
		return err
	}
	fmt.Printf("unregistered %s\n", path)
	return nil
}

func runRepoClean(cmd *cobra.Command, args []string) error {
	path, err := resolveRepoArg(args[0])
	if err != nil {
		return err
	}
	if err := runRepoRm(cmd, args); err != nil {
		return err
	}
	llmcDir := filepath.Join(path, ".llmc")
	if err := os.RemoveAll(llmcDir); err != nil {
		return err
	}
	fmt.Printf("removed %s\n", llmcDir)
	return nil
}
