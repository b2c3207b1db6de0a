// Command digest scrapes followed channels and feeds and syncs new items into a daily NotebookLM notebook.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samvad-hq/daily-digest/internal/app"
	"github.com/samvad-hq/daily-digest/internal/config"
	"github.com/samvad-hq/daily-digest/internal/logger"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "digest",
	Short:         "Daily digest pipeline",
	Long:          "Scrapes YouTube, Bilibili and RSS sources, drops already-synced items and pushes the rest into a daily NotebookLM notebook.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "digest: %v\n", err)
		os.Exit(1)
	}
}

// bootstrap loads config and logging and builds the runtime. The returned cleanup must be called.
func bootstrap() (context.Context, *config.Config, *app.Runtime, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	if _, err := logger.Init(cfg); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	rt, err := app.NewRuntime(ctx, cfg, logger.Global{})
	if err != nil {
		stop()
		_ = logger.Close()
		return nil, nil, nil, nil, err
	}
	cleanup := func() {
		rt.Close()
		stop()
		_ = logger.Close()
	}
	return ctx, cfg, rt, cleanup, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
