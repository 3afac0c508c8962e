package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/aryannaik/image-search/internal/embeddings"
	"github.com/aryannaik/image-search/internal/indexer"
	"github.com/aryannaik/image-search/internal/scan"
)

var (
	embedDryRun      bool
	embedNoRecursive bool
)

var embedCmd = &cobra.Command{
	Use:   "embed [directory]",
	Short: "Find images in a directory and bring the embedding store up to date",
	Long: `Scan a directory for images, embed the ones that are new or modified since
the last run, drop the ones that were removed, and rewrite the store.

The directory defaults to the configured "directory", or "." when unset.
Hidden files and directories are skipped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEmbed,
}

func init() {
	embedCmd.Flags().BoolVar(&embedDryRun, "dry-run", false, "Only count images and estimate time, don't embed or write")
	embedCmd.Flags().BoolVar(&embedNoRecursive, "no-recursive", false, "Don't search subdirectories")
	embedCmd.Flags().Bool("retry-failed", false, "Re-embed images that previously failed")
	_ = settings.BindPFlag("retry_failed", embedCmd.Flags().Lookup("retry-failed"))
}

func runEmbed(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	dir := a.cfg.Directory
	if len(args) == 1 {
		dir = args[0]
	}
	if dir == "" {
		dir = "."
	}
	root, err := scan.Resolve(dir)
	if err != nil {
		return err
	}

	out := report{w: cmd.OutOrStdout(), styled: term.IsTerminal(int(os.Stdout.Fd()))}
	out.scanning(root)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	batcher := embeddings.NewBatcher(a.embedder, a.cfg.Embed.BatchSize, a.cfg.Embed.BatchesPerSecond, a.logger)
	ix := indexer.New(a.table, batcher, indexer.Options{
		Root:        root,
		Recursive:   a.cfg.Recursive && !embedNoRecursive,
		Dimension:   a.cfg.Embed.Dimension,
		RetryFailed: a.cfg.RetryFailed,
		DryRun:      embedDryRun,
	}, a.logger)

	sum, err := ix.Sync(ctx)
	if err != nil {
		return err
	}
	out.summary(sum)
	return nil
}
