package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aryannaik/image-search/internal/config"
	"github.com/aryannaik/image-search/internal/embeddings"
	"github.com/aryannaik/image-search/internal/indexer"
	"github.com/aryannaik/image-search/internal/refresh"
	"github.com/aryannaik/image-search/internal/scan"
	"github.com/aryannaik/image-search/internal/search"
	"github.com/aryannaik/image-search/internal/server"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the search API over HTTP",
	Long: `Load the embedding store and answer search requests over HTTP.

When a directory is configured the store is kept current in the background,
re-syncing every refresh_interval. POST /api/reindex starts a pass on demand.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("addr", config.DefaultAddr, "Listen address")
	f.String("dir", "", "Image directory to keep in sync (enables background refresh)")
	f.Duration("interval", config.DefaultRefreshInterval, "Background refresh interval")
	_ = settings.BindPFlag("addr", f.Lookup("addr"))
	_ = settings.BindPFlag("directory", f.Lookup("dir"))
	_ = settings.BindPFlag("refresh_interval", f.Lookup("interval"))
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := search.NewEngine(a.embedder)
	if err := engine.Reload(ctx, a.table); err != nil {
		a.logger.Warn("could not load existing embeddings", "err", err)
	}
	a.logger.Info("embeddings loaded", "images", engine.Snapshot().Len())

	var refresher *refresh.Refresher
	if a.cfg.Directory != "" {
		root, err := scan.Resolve(a.cfg.Directory)
		if err != nil {
			return err
		}
		batcher := embeddings.NewBatcher(a.embedder, a.cfg.Embed.BatchSize, a.cfg.Embed.BatchesPerSecond, a.logger)
		ix := indexer.New(a.table, batcher, indexer.Options{
			Root:        root,
			Recursive:   a.cfg.Recursive,
			Dimension:   a.cfg.Embed.Dimension,
			RetryFailed: a.cfg.RetryFailed,
		}, a.logger)
		refresher = refresh.New(ix, engine, a.table, a.cfg.RefreshInterval, a.logger)
	} else {
		a.logger.Info("no directory configured, background refresh disabled")
	}

	srv := server.New(a.cfg.Addr, engine, a.table, a.embedder, refresher, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("server listening", "addr", "http://"+a.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if refresher != nil {
		g.Go(func() error {
			return refresher.Start(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if refresher != nil {
		refresher.Wait()
	}
	return err
}
