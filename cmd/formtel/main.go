package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"formtel/pkg/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
	backend    string
	storePath  string
	collector  string
	dryRun     bool
}

func newRootCommand() *cobra.Command {
	var rf rootFlags
	root := &cobra.Command{
		Use:           "formtel",
		Short:         "Client log store and error uplink for the forms app",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&rf.configPath, "config", os.Getenv("FORMTEL_CONFIG"), "config file (.yaml, .json or .jsonc)")
	pf.StringVar(&rf.backend, "store", "", "store backend override: memory, pebble or redis")
	pf.StringVar(&rf.storePath, "store-path", "", "pebble store directory override")
	pf.StringVar(&rf.collector, "collector", "", "collector base URL override")
	pf.BoolVar(&rf.dryRun, "dry-run", false, "print error reports instead of sending them")

	root.AddCommand(
		newLogCommand(&rf),
		newLogsCommand(&rf),
		newExportCommand(&rf),
		newDownloadCommand(&rf),
		newClearCommand(&rf),
		newReportCommand(&rf),
		newAgentCommand(&rf),
	)
	return root
}

func (rf *rootFlags) load() (*config.Config, error) {
	cfg, err := config.Load(rf.configPath)
	if err != nil {
		return nil, err
	}
	config.FromEnv(cfg)
	if rf.backend != "" {
		cfg.Store.Backend = rf.backend
	}
	if rf.storePath != "" {
		cfg.Store.Path = rf.storePath
	}
	if rf.collector != "" {
		cfg.Collector.BaseURL = rf.collector
		cfg.Collector.BaseURLKey = ""
	}
	return cfg, nil
}

// withApp builds the components, runs fn and shuts everything down.
func withApp(cmd *cobra.Command, rf *rootFlags, opts appOptions, fn func(ctx context.Context, a *app) error) error {
	cfg, err := rf.load()
	if err != nil {
		return err
	}
	opts.dryRun = rf.dryRun
	if opts.stdout == nil {
		opts.stdout = cmd.OutOrStdout()
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer a.shutdown(context.WithoutCancel(ctx))
	return fn(ctx, a)
}
