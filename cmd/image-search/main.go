package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aryannaik/image-search/internal/config"
	"github.com/aryannaik/image-search/internal/embeddings"
	"github.com/aryannaik/image-search/internal/index"
	"github.com/aryannaik/image-search/internal/logging"
)

var version = "dev"

var (
	settings   *viper.Viper = config.New()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "image-search",
	Short: "Search local images with natural language",
	Long: `image-search embeds the images in a directory with a CLIP-style model and
finds them again from a text description.

Examples:
  image-search embed ~/Pictures            # index a directory
  image-search embed ~/Pictures --dry-run  # count and estimate only
  image-search serve                       # HTTP search API
  image-search search "a red bicycle"      # query a running server
  image-search mcp                         # MCP tool server on stdio`,
	Version:           version,
	SilenceUsage:      true,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Config file (default ./image-search.yaml)")
	pf.String("db", config.DefaultDBPath, "Embedding store path (.json for a JSON file, otherwise SQLite)")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("log-format", "text", "Log format: text or json")

	_ = settings.BindPFlag("db_path", pf.Lookup("db"))
	_ = settings.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = settings.BindPFlag("log.format", pf.Lookup("log-format"))

	rootCmd.AddCommand(embedCmd, serveCmd, mcpCmd, searchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds what every store-backed command needs.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	table    index.Table
	embedder embeddings.Embedder
}

func setup() (*app, error) {
	cfg, err := config.Load(settings, configFile)
	if err != nil {
		return nil, err
	}
	logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	embedder, err := embeddings.New(cfg.Embed)
	if err != nil {
		return nil, err
	}

	table, err := index.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.DBPath, err)
	}

	return &app{cfg: cfg, logger: logger, table: table, embedder: embedder}, nil
}

func (a *app) Close() {
	if err := a.table.Close(); err != nil {
		a.logger.Warn("close store", "err", err)
	}
}
