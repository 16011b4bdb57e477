package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"AffineNews/internal/app"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the pipeline on a schedule",
	Long: `Worker runs crawl, translation, embedding and annotation once at start
and then on every scheduler.interval tick until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if every, _ := cmd.Flags().GetDuration("interval"); every > 0 {
			cfg.Scheduler.Interval = every
		}
		return withApp(cmd, func(ctx context.Context, a *app.Application) error {
			return a.RunWorker(ctx)
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single pipeline cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.Application) error {
			return a.Pipeline().RunCycle(ctx, time.Now().UTC())
		})
	},
}

func init() {
	workerCmd.Flags().Duration("interval", 0, "override scheduler.interval")

	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(runCmd)
}
