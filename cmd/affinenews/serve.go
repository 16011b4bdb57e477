package main

import (
	"context"

	"github.com/spf13/cobra"

	"AffineNews/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the query API",
	Long: `Serve starts the HTTP API exposing keyword search, semantic search,
rolling country counts, papers per country and country comparisons. Responses
carry an ETag and a Cache-Control max-age.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}
		return withApp(cmd, func(ctx context.Context, a *app.Application) error {
			return a.Serve(ctx)
		})
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default: server.addr)")

	rootCmd.AddCommand(serveCmd)
}
