package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"AffineNews/internal/app"
	"AffineNews/internal/usecase"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl registered papers for new articles",
	Long: `Crawl scans every category page of the registered papers, fetches the
articles not yet stored and inserts them. With --paper only one paper is
crawled; it may be given by id or by URL.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		paper, _ := cmd.Flags().GetString("paper")
		maxArticles, _ := cmd.Flags().GetInt("max")
		if maxArticles <= 0 {
			maxArticles = cfg.Crawler.MaxArticles
		}

		return withApp(cmd, func(ctx context.Context, a *app.Application) error {
			out := cmd.OutOrStdout()
			if paper != "" {
				res, err := a.Crawler().CrawlPaper(ctx, paper, maxArticles)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s %s: inserted %d, skipped %d, errors %d in %s\n",
					res.PaperURL, res.Status, res.Inserted, res.Skipped, len(res.Errors), res.Elapsed.Round(time.Millisecond))
				return nil
			}

			report, err := a.Crawler().CrawlAll(ctx, maxArticles)
			if err != nil {
				return err
			}
			fmt.Fprint(out, usecase.FormatBatchReport(report))
			return nil
		})
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete the crawls and articles of one day",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetString("day")
		day, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return fmt.Errorf("--day must be YYYY-MM-DD: %w", err)
		}
		return withApp(cmd, func(ctx context.Context, a *app.Application) error {
			articles, crawls, err := a.Crawler().PurgeDay(ctx, day)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d articles and %d crawls of %s\n", articles, crawls, raw)
			return nil
		})
	},
}

func init() {
	crawlCmd.Flags().String("paper", "", "crawl only this paper (id or URL)")
	crawlCmd.Flags().Int("max", 0, "maximum new articles per paper (default: crawler.maxArticles)")

	purgeCmd.Flags().String("day", "", "UTC day to purge (YYYY-MM-DD)")
	_ = purgeCmd.MarkFlagRequired("day")

	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(purgeCmd)
}
