package main

import (
	"github.com/samvad-hq/daily-digest/internal/app"
	"github.com/spf13/cobra"
)

var (
	serveAddr     string
	serveSchedule string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and run the routine on a schedule",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (defaults to LISTEN_ADDR)")
	serveCmd.Flags().StringVar(&serveSchedule, "schedule", "", "Cron schedule (defaults to SCHEDULE); \"off\" disables it")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, cfg, rt, cleanup, err := bootstrap()
	if err != nil {
		return err
	}
	defer cleanup()

	addr := cfg.ListenAddr
	if serveAddr != "" {
		addr = serveAddr
	}
	schedule := cfg.Schedule
	switch serveSchedule {
	case "":
	case "off":
		schedule = ""
	default:
		schedule = serveSchedule
	}
	return app.NewDaemon(rt, schedule, addr).Run(ctx)
}
