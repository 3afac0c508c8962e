package server

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aryannaik/image-search/internal/index"
	"github.com/aryannaik/image-search/internal/indexer"
	"github.com/aryannaik/image-search/internal/refresh"
	"github.com/aryannaik/image-search/internal/search"
)

type fakeEmbedder struct{ healthy bool }

func (fakeEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (f fakeEmbedder) IsHealthy(ctx context.Context) bool { return f.healthy }

type blockingRunner struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingRunner) Run(ctx context.Context) indexer.Outcome {
	b.started <- struct{}{}
	<-b.release
	return indexer.Outcome{Kind: indexer.OutcomeNoop}
}

type env struct {
	engine *search.Engine
	table  index.Table
}

func newEnv(t *testing.T) env {
	t.Helper()
	table := index.NewJSONTable(filepath.Join(t.TempDir(), "embeddings.json"))
	records := []index.Record{
		{Path: "/img/cat.jpg", MTime: 1, Vector: []float32{1, 0}},
		{Path: "/img/cat2.jpg", MTime: 1, Vector: []float32{1, 1}},
		{Path: "/img/dog.jpg", MTime: 1, Vector: []float32{0, 1}},
		{Path: "/img/broken.jpg", MTime: 1, Vector: []float32{0, 0}},
	}
	require.NoError(t, table.Write(context.Background(), records, index.ModeCreate))

	engine := search.NewEngine(fakeEmbedder{})
	require.NoError(t, engine.Reload(context.Background(), table))
	return env{engine: engine, table: table}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleSearch(t *testing.T) {
	e := newEnv(t)
	h := Handler(e.engine, e.table, fakeEmbedder{}, nil, nil)

	rec := do(t, h, http.MethodPost, "/search", `{"query":"a cat"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp search.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 4, resp.TotalImages)
	require.Len(t, resp.Results, 2)
	require.Equal(t, "/img/cat.jpg", resp.Results[0].Path)
	require.Equal(t, "/img/cat2.jpg", resp.Results[1].Path)

	rec = do(t, h, http.MethodPost, "/search", `{"query":"a cat","limit":1}`)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
}

func TestHandleSearch_BadRequests(t *testing.T) {
	e := newEnv(t)
	h := Handler(e.engine, e.table, fakeEmbedder{}, nil, nil)

	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/search", `{"query":""}`).Code)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/search", `not json`).Code)
	require.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/search", "").Code)
}

func TestWriteJSON_UnencodableValue(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]float64{"score": math.NaN()})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"encode response"}`, rec.Body.String())
}

func TestHandleSearch_SkipsNonFiniteVectors(t *testing.T) {
	table := index.NewJSONTable(filepath.Join(t.TempDir(), "embeddings.json"))
	engine := search.NewEngine(fakeEmbedder{})
	engine.Swap(search.NewSnapshot([]index.Record{
		{Path: "/img/cat.jpg", MTime: 1, Vector: []float32{1, 0}},
		{Path: "/img/bad.jpg", MTime: 1, Vector: []float32{float32(math.NaN()), 1}},
	}))
	h := Handler(engine, table, fakeEmbedder{}, nil, nil)

	rec := do(t, h, http.MethodPost, "/search", `{"query":"a cat"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp search.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, []search.Result{{Path: "/img/cat.jpg", Score: 1}}, resp.Results)
}

func TestHandleHealth(t *testing.T) {
	h := Handler(search.NewEngine(fakeEmbedder{}), index.NewJSONTable(filepath.Join(t.TempDir(), "x.json")), fakeEmbedder{}, nil, nil)

	rec := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok","embeddings_loaded":false}`, rec.Body.String())

	e := newEnv(t)
	rec = do(t, Handler(e.engine, e.table, fakeEmbedder{}, nil, nil), http.MethodGet, "/health", "")
	require.JSONEq(t, `{"status":"ok","embeddings_loaded":true}`, rec.Body.String())
}

func TestHandleStatus(t *testing.T) {
	e := newEnv(t)
	h := Handler(e.engine, e.table, fakeEmbedder{healthy: true}, nil, nil)

	rec := do(t, h, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 4, resp.TotalImages)
	require.True(t, resp.EmbedderOK)
	require.NotEmpty(t, resp.UpdatedAt)
	require.Nil(t, resp.Refresh)
}

func TestHandleReindex_Disabled(t *testing.T) {
	e := newEnv(t)
	h := Handler(e.engine, e.table, fakeEmbedder{}, nil, nil)

	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/api/reindex", "").Code)
}

func TestHandleReindex_StartsOnce(t *testing.T) {
	e := newEnv(t)
	runner := &blockingRunner{started: make(chan struct{}, 1), release: make(chan struct{})}
	r := refresh.New(runner, e.engine, e.table, time.Hour, nil)
	h := Handler(e.engine, e.table, fakeEmbedder{}, r, nil)

	require.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/api/reindex", "").Code)
	require.Equal(t, http.StatusAccepted, do(t, h, http.MethodPost, "/api/reindex", "").Code)
	<-runner.started
	require.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/api/reindex", "").Code)

	rec := do(t, h, http.MethodGet, "/api/status", "")
	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Refresh)
	require.True(t, resp.Refresh.Refreshing)

	close(runner.release)
	r.Wait()
}
