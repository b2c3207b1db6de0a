package main

import (
	"fmt"
	"os"

	"github.com/samvad-hq/daily-digest/internal/routine"
	"github.com/spf13/cobra"
)

var runKeepBrowser bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the routine once",
	Long:  "Scrapes every enabled source, records new items and syncs them into today's notebook. Progress is printed to stderr and the result to stdout.",
	RunE:  runRoutine,
}

func init() {
	runCmd.Flags().BoolVar(&runKeepBrowser, "keep-browser", false, "Leave the browser open after the sync for review")
	rootCmd.AddCommand(runCmd)
}

func runRoutine(_ *cobra.Command, _ []string) error {
	ctx, cfg, rt, cleanup, err := bootstrap()
	if err != nil {
		return err
	}
	defer cleanup()

	res := rt.Routine.Run(ctx, routine.RunOptions{
		CloseOnFinish: cfg.CloseBrowserOnFinish && !runKeepBrowser,
		Progress:      func(msg string) { fmt.Fprintln(os.Stderr, msg) },
	})
	if err := printJSON(res); err != nil {
		return err
	}
	if res.Status == routine.StatusFailed {
		return fmt.Errorf("run failed: %s", res.Message)
	}
	return nil
}
