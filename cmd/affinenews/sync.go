package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"AffineNews/internal/app"
	"AffineNews/internal/usecase"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile registered papers with a sources file",
	Long: `Sync reads a JSON or YAML list of papers and creates or updates the
matching records. Categories missing from the file are kept unless --prune is
given. --dry-run prints the changes without applying them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		prune, _ := cmd.Flags().GetBool("prune")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		return withApp(cmd, func(ctx context.Context, a *app.Application) error {
			report, err := a.SyncSources(ctx, file, usecase.SyncOptions{PruneMissing: prune, DryRun: dryRun})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, ch := range report.Changes {
				fmt.Fprintf(out, "%s\n", ch.Summary())
			}
			prefix := ""
			if report.DryRun {
				prefix = "dry run: "
			}
			fmt.Fprintf(out, "%screated %d, updated %d, pruned %d categories\n", prefix, report.Created, report.Updated, report.Pruned)
			return nil
		})
	},
}

func init() {
	syncCmd.Flags().String("file", "", "sources file (default: crawler.sourcesFile)")
	syncCmd.Flags().Bool("prune", false, "remove categories not present in the file")
	syncCmd.Flags().Bool("dry-run", false, "report changes without applying them")

	rootCmd.AddCommand(syncCmd)
}
