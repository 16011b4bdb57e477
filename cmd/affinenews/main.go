// Package main is the entry point for the affinenews CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"AffineNews/internal/app"
	"AffineNews/internal/config"
	"AffineNews/internal/domain"
	"AffineNews/internal/logging"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "affinenews",
	Short: "Crawl world news and query how countries cover each other",
	Long: `affinenews crawls the international sections of registered newspapers,
translates and embeds their headlines, annotates which foreign country each
headline is about, and serves keyword, semantic and statistics queries over
the results.

The worker subcommand runs the whole pipeline on a schedule; each stage is
also available as its own subcommand.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if path, _ := cmd.Flags().GetString("config"); path != "" {
			if err := os.Setenv("AFFINE_NEWS_CONFIG", path); err != nil {
				return fmt.Errorf("set config path: %w", err)
			}
		}
		cfg = config.Load()
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			cfg.Logging.Level = level
		}
		logger = logging.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "YAML config file (default: $AFFINE_NEWS_CONFIG)")
	rootCmd.PersistentFlags().String("log-level", "", "override logging.level (debug, info, warn, error)")
}

// withApp opens the application for one command and cancels on SIGINT/SIGTERM.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.Application) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close application", "error", err)
		}
	}()
	return fn(ctx, a)
}

func printStage(cmd *cobra.Command, name string, res domain.StageResult) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s: processed %d, errors %d\n", name, res.Processed, len(res.Errors))
	for _, e := range res.Errors {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", e.Error())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
