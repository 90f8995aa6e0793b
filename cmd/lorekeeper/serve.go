package main

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/lorekeeper/internal/mcp"
	"github.com/dshills/lorekeeper/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio",
	Long: `Run the MCP server on stdio.

When LOREKEEPER_METRICS_ADDR is set, Prometheus metrics, /healthz and
/status are served on that address alongside the MCP transport.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, log, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := a.Close(); cerr != nil {
				log.Error().Err(cerr).Msg("shutdown error")
			}
		}()

		log.Info().
			Str("version", version).
			Str("store", a.Config.StoreDriver).
			Str("feed", a.Config.FeedDriver).
			Bool("poll_backstop", a.Config.Poll).
			Msg("lorekeeper starting")

		g, gctx := errgroup.WithContext(ctx)
		gctx, cancel := context.WithCancel(gctx)
		defer cancel()

		// The metrics listener stops with the MCP transport
		g.Go(func() error {
			defer cancel()
			return mcp.NewServer(a, log).Serve(gctx)
		})

		if addr := a.Config.MetricsAddr; addr != "" {
			handler := metrics.NewHandler(a.Store, func() any { return a.Status() })
			g.Go(func() error {
				return metrics.Serve(gctx, addr, handler, log)
			})
		}

		err = g.Wait()
		log.Info().Msg("server stopped")
		return err
	},
}
