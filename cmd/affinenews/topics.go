package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"AffineNews/internal/app"
)

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Manage the published topics document",
}

var topicsPublishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Upload the latest topics to the configured bucket",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.Application) error {
			batch, err := a.PublishTopics(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %d topics to s3://%s/%s\n",
				len(batch.Topics), cfg.Storage.S3.Bucket, cfg.Storage.S3.TopicsKey)
			return nil
		})
	},
}

func init() {
	topicsCmd.AddCommand(topicsPublishCmd)
	rootCmd.AddCommand(topicsCmd)
}
