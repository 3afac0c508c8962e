// Package search ranks stored images against a text query.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	"github.com/aryannaik/image-search/internal/embeddings"
	"github.com/aryannaik/image-search/internal/index"
)

// DefaultLimit is the number of results returned when none is requested.
const DefaultLimit = 10

// excludedScore is below any cosine similarity, so images without a usable
// vector never surface.
const excludedScore = -1

// ErrEmptyQuery is returned for a blank query string.
var ErrEmptyQuery = errors.New("query is empty")

// Result is one ranked image.
type Result struct {
	Path  string  `json:"path"`
	Score float64 `json:"score"`
}

// Response is returned to HTTP and MCP clients.
type Response struct {
	Results     []Result `json:"results"`
	TotalImages int      `json:"total_images"`
}

// Rank scores every image in snap against query and returns the ones with a
// positive score, best first. Equal scores are ordered by path. limit <= 0
// returns every match.
func Rank(query []float32, snap *Snapshot, limit int) []Result {
	if snap.Len() == 0 {
		return []Result{}
	}

	qn := norm(query)
	scored := make([]Result, len(snap.paths))
	for i, vec := range snap.vectors {
		scored[i] = Result{Path: snap.paths[i], Score: score(query, qn, vec, snap.norms[i])}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Path < scored[j].Path
	})

	out := make([]Result, 0, len(scored))
	for _, r := range scored {
		if !(r.Score > 0) {
			break
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func score(query []float32, queryNorm float64, vec []float32, vecNorm float64) float64 {
	if len(vec) != len(query) || vecNorm == 0 || queryNorm == 0 {
		return excludedScore
	}
	var dot float64
	for i := range vec {
		dot += float64(query[i]) * float64(vec[i])
	}
	sim := dot / (queryNorm * vecNorm)
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return excludedScore
	}
	return sim
}

// Engine answers queries against the currently installed snapshot. The
// snapshot is swapped atomically, so queries never wait on a sync pass.
type Engine struct {
	embedder embeddings.TextEmbedder
	snapshot atomic.Pointer[Snapshot]
}

func NewEngine(embedder embeddings.TextEmbedder) *Engine {
	return &Engine{embedder: embedder}
}

// Search embeds query and ranks the current snapshot.
func (e *Engine) Search(ctx context.Context, query string, limit int) (Response, error) {
	if query == "" {
		return Response{}, ErrEmptyQuery
	}
	snap := e.snapshot.Load()
	if snap.Len() == 0 {
		return Response{Results: []Result{}}, nil
	}

	vec, err := e.embedder.EmbedText(ctx, query)
	if err != nil {
		return Response{}, fmt.Errorf("embed query: %w", err)
	}
	return Response{Results: Rank(vec, snap, limit), TotalImages: snap.Len()}, nil
}

// Reload reads table into a new snapshot and installs it. On error the
// current snapshot is kept.
func (e *Engine) Reload(ctx context.Context, table index.Table) error {
	snap, err := Load(ctx, table)
	if err != nil {
		return err
	}
	e.Swap(snap)
	return nil
}

func (e *Engine) Swap(snap *Snapshot) {
	e.snapshot.Store(snap)
}

func (e *Engine) Snapshot() *Snapshot {
	return e.snapshot.Load()
}

// Loaded reports whether a non-empty snapshot is installed.
func (e *Engine) Loaded() bool {
	return e.snapshot.Load().Len() > 0
}
