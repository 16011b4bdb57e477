package main

import (
	"context"

	"github.com/spf13/cobra"

	"AffineNews/internal/app"
)

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Translate pending titles to English",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit := limitFlag(cmd, cfg.Translation.Limit)
		return withApp(cmd, func(ctx context.Context, a *app.Application) error {
			res, err := a.Translation().TranslatePending(ctx, limit)
			if err != nil {
				return err
			}
			printStage(cmd, "translate", res)
			return nil
		})
	},
}

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Embed translated titles",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit := limitFlag(cmd, cfg.Embedding.Limit)
		return withApp(cmd, func(ctx context.Context, a *app.Application) error {
			res, err := a.Embedding().EmbedPending(ctx, limit)
			if err != nil {
				return err
			}
			printStage(cmd, "embed", res)
			return nil
		})
	},
}

var annotateCmd = &cobra.Command{
	Use:   "annotate",
	Short: "Annotate which foreign country each recent title is about",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit := limitFlag(cmd, cfg.Annotation.Limit)
		return withApp(cmd, func(ctx context.Context, a *app.Application) error {
			res, err := a.Annotation().AnnotatePending(ctx, limit)
			if err != nil {
				return err
			}
			printStage(cmd, "annotate", res)
			return nil
		})
	},
}

func limitFlag(cmd *cobra.Command, fallback int) int {
	if n, _ := cmd.Flags().GetInt("limit"); n > 0 {
		return n
	}
	return fallback
}

func init() {
	for _, c := range []*cobra.Command{translateCmd, embedCmd, annotateCmd} {
		c.Flags().Int("limit", 0, "maximum articles to process (default from config)")
		rootCmd.AddCommand(c)
	}
}
