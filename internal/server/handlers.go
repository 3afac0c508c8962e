package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aryannaik/image-search/internal/index"
	"github.com/aryannaik/image-search/internal/refresh"
	"github.com/aryannaik/image-search/internal/search"
)

// maxRequestBody caps the size of a search request.
const maxRequestBody = 1 << 20

// HealthChecker reports whether the embedding service is reachable.
type HealthChecker interface {
	IsHealthy(ctx context.Context) bool
}

type Handlers struct {
	engine    *search.Engine
	table     index.Table
	health    HealthChecker
	refresher *refresh.Refresher // nil when background refresh is disabled
	logger    *slog.Logger
}

func NewHandlers(engine *search.Engine, table index.Table, health HealthChecker, refresher *refresh.Refresher, logger *slog.Logger) *Handlers {
	return &Handlers{
		engine:    engine,
		table:     table,
		health:    health,
		refresher: refresher,
		logger:    logger,
	}
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req searchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing field 'query'"})
		return
	}
	if req.Limit <= 0 {
		req.Limit = search.DefaultLimit
	}

	resp, err := h.engine.Search(r.Context(), req.Query, req.Limit)
	if err != nil {
		if errors.Is(err, search.ErrEmptyQuery) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		h.logger.ErrorContext(r.Context(), "search failed", "query", req.Query, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "search failed"})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

type healthResponse struct {
	Status           string `json:"status"`
	EmbeddingsLoaded bool   `json:"embeddings_loaded"`
}

func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:           "ok",
		EmbeddingsLoaded: h.engine.Loaded(),
	})
}

type statusResponse struct {
	TotalImages int             `json:"total_images"`
	UpdatedAt   string          `json:"updated_at"`
	EmbedderOK  bool            `json:"embedder_ok"`
	Refresh     *refresh.Status `json:"refresh,omitempty"`
}

func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		TotalImages: h.engine.Snapshot().Len(),
		EmbedderOK:  h.health.IsHealthy(r.Context()),
	}

	updatedAt, err := h.table.UpdatedAt(r.Context())
	if err != nil {
		h.logger.WarnContext(r.Context(), "read store timestamp", "err", err)
	}
	if !updatedAt.IsZero() {
		resp.UpdatedAt = updatedAt.UTC().Format(time.RFC3339)
	}

	if h.refresher != nil {
		st := h.refresher.Status()
		resp.Refresh = &st
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) HandleReindex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if h.refresher == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "background refresh is disabled; no directory configured"})
		return
	}

	if !h.refresher.Trigger(r.Context()) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "reindex already running"})
		return
	}

	h.logger.InfoContext(r.Context(), "reindex triggered")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reindex started"})
}

// writeJSON encodes v before writing the header so an unencodable value
// becomes a 500 instead of an empty 200.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		data = []byte(`{"error":"encode response"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(data, '\n'))
}
