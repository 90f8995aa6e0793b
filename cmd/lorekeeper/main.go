package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dshills/lorekeeper/internal/app"
	"github.com/dshills/lorekeeper/internal/config"
	"github.com/dshills/lorekeeper/internal/logging"
	"github.com/dshills/lorekeeper/internal/mcp"
	"github.com/dshills/lorekeeper/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "lorekeeper",
	Short: "Campaign knowledge search with live session sync",
	Long: `Lorekeeper ranks a tabletop campaign's NPCs, locations, monsters and quests
and keeps session transcripts and search results current as they change.

Configuration is read from LOREKEEPER_* environment variables.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Lorekeeper\n")
		fmt.Fprintf(out, "Version: %s\n", version)
		fmt.Fprintf(out, "Build Time: %s\n", buildTime)
		fmt.Fprintf(out, "Build Mode: %s\n", storage.BuildMode)
		fmt.Fprintf(out, "SQLite Driver: %s\n", storage.DriverName)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd, serveCmd, searchCmd, watchCmd, seedCmd)
}

func main() {
	mcp.ServerVersion = version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// openApp loads configuration and assembles the runtime. Logs go to stderr
// so stdout stays free for the MCP protocol and JSON output.
func openApp(ctx context.Context) (*app.App, zerolog.Logger, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("loading config: %w", err)
	}

	log := logging.New("lorekeeper", cfg.LogLevel, cfg.LogFormat)
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, log, fmt.Errorf("starting runtime: %w", err)
	}
	return a, log, nil
}
