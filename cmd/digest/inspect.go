package main

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which platforms have a usable session",
	RunE: func(_ *cobra.Command, _ []string) error {
		_, _, rt, cleanup, err := bootstrap()
		if err != nil {
			return err
		}
		defer cleanup()

		status, err := rt.Status()
		if err != nil {
			return err
		}
		return printJSON(status)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List remembered item URLs, oldest first",
	RunE: func(_ *cobra.Command, _ []string) error {
		_, _, rt, cleanup, err := bootstrap()
		if err != nil {
			return err
		}
		defer cleanup()

		urls, err := rt.History()
		if err != nil {
			return err
		}
		if urls == nil {
			urls = []string{}
		}
		return printJSON(urls)
	},
}

var logsLimit int

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "List run log entries, newest first",
	RunE: func(_ *cobra.Command, _ []string) error {
		_, _, rt, cleanup, err := bootstrap()
		if err != nil {
			return err
		}
		defer cleanup()

		runs, err := rt.Runs()
		if err != nil {
			return err
		}
		if logsLimit > 0 && len(runs) > logsLimit {
			runs = runs[:logsLimit]
		}
		return printJSON(runs)
	},
}

func init() {
	logsCmd.Flags().IntVarP(&logsLimit, "limit", "n", 0, "Show at most n entries")
	rootCmd.AddCommand(statusCmd, historyCmd, logsCmd)
}
