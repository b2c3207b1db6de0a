package main

import (
	"fmt"
	"os"

	"github.com/samvad-hq/daily-digest/internal/routine"
	"github.com/spf13/cobra"
)

var resyncCmd = &cobra.Command{
	Use:   "resync <run-id>",
	Short: "Sync the items of an earlier run into today's notebook again",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		ctx, _, rt, cleanup, err := bootstrap()
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := rt.Routine.Resync(ctx, args[0], routine.RunOptions{
			Progress: func(msg string) { fmt.Fprintln(os.Stderr, msg) },
		})
		if err != nil {
			return err
		}
		if err := printJSON(res); err != nil {
			return err
		}
		if res.Status != routine.StatusSuccess {
			return fmt.Errorf("resync failed: %s", res.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resyncCmd)
}
