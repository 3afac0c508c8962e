// Package server exposes text-to-image search over HTTP.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aryannaik/image-search/internal/index"
	"github.com/aryannaik/image-search/internal/logging"
	"github.com/aryannaik/image-search/internal/refresh"
	"github.com/aryannaik/image-search/internal/search"
)

// Handler returns the routes served by the search API.
func Handler(engine *search.Engine, table index.Table, health HealthChecker, refresher *refresh.Refresher, logger *slog.Logger) http.Handler {
	handlers := NewHandlers(engine, table, health, refresher, logging.OrDiscard(logger))

	mux := http.NewServeMux()
	mux.HandleFunc("/search", handlers.HandleSearch)
	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/api/status", handlers.HandleStatus)
	mux.HandleFunc("/api/reindex", handlers.HandleReindex)
	return mux
}

func New(addr string, engine *search.Engine, table index.Table, health HealthChecker, refresher *refresh.Refresher, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           Handler(engine, table, health, refresher, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
