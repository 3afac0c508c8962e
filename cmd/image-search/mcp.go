package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aryannaik/image-search/internal/mcpserver"
	"github.com/aryannaik/image-search/internal/search"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the search_images tool as an MCP server on stdio",
	Long: `Serve image search to MCP clients over stdin/stdout.

The store is loaded once at startup; run "embed" to update it. Logs go to
stderr so they never mix with protocol messages.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := search.NewEngine(a.embedder)
	if err := engine.Reload(ctx, a.table); err != nil {
		a.logger.Warn("could not load embeddings", "err", err)
	}
	if engine.Loaded() {
		a.logger.Info("embeddings loaded", "images", engine.Snapshot().Len())
	} else {
		a.logger.Warn("no embeddings found; run embed first")
	}

	return mcpserver.Run(ctx, engine, version, a.logger)
}
