package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vmlinuzx/llmc-sub017/internal/config"
	"github.com/vmlinuzx/llmc-sub017/internal/daemon"
	"github.com/vmlinuzx/llmc-sub017/internal/engine"
)

var serviceMode string

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Run or inspect the background indexing/enrichment daemon",
}

var serviceStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon in the foreground for every registered repo",
	Long: `Starts one watcher and scheduler per registered repo and blocks until
interrupted (SIGINT/SIGTERM), at which point every in-flight job is
cancelled and every held MAASL lease is released before exit.`,
	RunE: runServiceStart,
}

var serviceStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Signal a running foreground daemon to stop",
	Long:  `Since the daemon runs in the foreground of its own process, stop it with SIGINT/SIGTERM (Ctrl-C) on that process directly; this subcommand exists for CLI surface completeness and reports how to do so.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("send SIGINT or SIGTERM to the running 'llmc service start' process to stop it")
		return nil
	},
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report registered repos (the daemon's live status requires a running process)",
	RunE:  runServiceStatus,
}

func init() {
	serviceStartCmd.Flags().StringVar(&serviceMode, "mode", "event", "Change detection mode: event or poll")
	serviceCmd.AddCommand(serviceStartCmd, serviceStopCmd, serviceStatusCmd)
}

// fleetRunner adapts engine.JobRunner to a multi-repo daemon.JobRunner by
// lazily opening and caching one Engine per repo path.
type fleetRunner struct {
	mu      sync.Mutex
	engines map[string]*engine.Engine
}

func newFleetRunner() *fleetRunner {
	return &fleetRunner{engines: map[string]*engine.Engine{}}
}

func (f *fleetRunner) engineFor(repoPath string) (*engine.Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.engines[repoPath]; ok {
		return e, nil
	}
	cfg, err := config.Load(filepath.Join(repoPath, ".llmc", "config.yaml"))
	if err != nil {
		return nil, err
	}
	e, err := engine.Open(repoPath, cfg)
	if err != nil {
		return nil, err
	}
	f.engines[repoPath] = e
	return e, nil
}

func (f *fleetRunner) Run(ctx context.Context, job daemon.Job) error {
	e, err := f.engineFor(job.RepoPath)
	if err != nil {
		return err
	}
	return (engine.JobRunner{Engine: e}).Run(ctx, job)
}

func (f *fleetRunner) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.engines {
		e.Close()
	}
}

func runServiceStart(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	if len(reg.Repos) == 0 {
		fmt.Println("no repos registered; run 'llmc repo register <path>' first")
		return nil
	}

	runner := newFleetRunner()
	defer runner.closeAll()

	d := daemon.New(runner, 4)
	if serviceMode == string(daemon.ModePoll) {
		d.SetMode(daemon.ModePoll)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	for _, r := range reg.Repos {
		if err := d.Register(ctx, r.Path); err != nil {
			return err
		}
	}
	if err := d.Start(ctx); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	fmt.Printf("daemon running for %d repos in %s mode (Ctrl-C to stop)\n", len(reg.Repos), serviceMode)
	<-sig

	fmt.Println("shutting down...")
	return d.Stop()
}

func runServiceStatus(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(reg.Repos)
	}
	fmt.Printf("%d repos registered\n", len(reg.Repos))
	for _, r := range reg.Repos {
		fmt.Printf("  %s\n", r.Path)
	}
	return nil
}
