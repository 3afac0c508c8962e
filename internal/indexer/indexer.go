// Package indexer keeps the embedding store in step with a directory of
// images.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/aryannaik/image-search/internal/embeddings"
	"github.com/aryannaik/image-search/internal/index"
	"github.com/aryannaik/image-search/internal/logging"
	"github.com/aryannaik/image-search/internal/scan"
)

var (
	// ErrDimensionMismatch is returned when the embedding service produces a
	// vector of the wrong length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrStoreChanged is returned when records expected in the store are gone.
	ErrStoreChanged = errors.New("store changed during sync")
)

type Options struct {
	Root        string
	Recursive   bool
	Dimension   int
	RetryFailed bool // re-embed stored sentinel vectors on every pass
	DryRun      bool // scan and diff only
}

// Indexer runs sync passes: scan, diff, embed what changed, and rewrite
// the store in one atomic write.
type Indexer struct {
	table    index.Table
	embedder embeddings.ImageEmbedder
	opts     Options
	logger   *slog.Logger
}

func New(table index.Table, embedder embeddings.ImageEmbedder, opts Options, logger *slog.Logger) *Indexer {
	return &Indexer{
		table:    table,
		embedder: embedder,
		opts:     opts,
		logger:   logging.OrDiscard(logger),
	}
}

// Sync performs one pass. On error the store is left as it was.
func (ix *Indexer) Sync(ctx context.Context) (Summary, error) {
	start := time.Now()
	log := ix.logger.With("run", uuid.NewString(), "root", ix.opts.Root)

	current, err := scan.Dir(ctx, ix.opts.Root, ix.opts.Recursive)
	if err != nil {
		return Summary{}, err
	}

	exists, err := ix.table.Exists(ctx)
	if err != nil {
		return Summary{}, err
	}
	fingerprints, err := ix.table.Fingerprints(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("read stored fingerprints: %w", err)
	}
	stored := make(map[string]int64, len(fingerprints))
	for path, fp := range fingerprints {
		stored[path] = fp.MTime
	}

	diff := ComputeDiff(current, stored)

	var retry []string
	if ix.opts.RetryFailed {
		for _, p := range diff.Unchanged {
			if fingerprints[p].Failed {
				retry = append(retry, p)
			}
		}
	}
	toEmbed := append(diff.ToEmbed(), retry...)
	sort.Strings(toEmbed)

	sum := Summary{
		Found:     len(current),
		New:       len(diff.New),
		Modified:  len(diff.Modified),
		Removed:   len(diff.Removed),
		Unchanged: len(diff.Unchanged),
		Retried:   len(retry),
		Estimated: EstimateDuration(len(toEmbed)),
		DryRun:    ix.opts.DryRun,
	}
	log.InfoContext(ctx, "sync scanned", "summary", sum)

	if len(toEmbed) == 0 && len(diff.Removed) == 0 {
		sum.NothingToDo = true
		sum.Elapsed = time.Since(start)
		log.InfoContext(ctx, "nothing to do")
		return sum, nil
	}
	if ix.opts.DryRun {
		sum.Elapsed = time.Since(start)
		return sum, nil
	}

	fresh, failed, err := ix.embed(ctx, toEmbed, current)
	if err != nil {
		return sum, err
	}
	sum.Failed = failed
	sum.Embedded = len(fresh)

	retain := without(diff.Unchanged, retry)
	retained, err := ix.table.ReadPaths(ctx, retain)
	if err != nil {
		return sum, fmt.Errorf("read retained records: %w", err)
	}
	if len(retained) != len(retain) {
		return sum, fmt.Errorf("%w: expected %d retained records, read %d", ErrStoreChanged, len(retain), len(retained))
	}

	final := make([]index.Record, 0, len(retained)+len(fresh))
	final = append(final, retained...)
	final = append(final, fresh...)

	mode := index.ModeCreate
	if exists {
		mode = index.ModeOverwrite
	}
	if err := ix.table.Write(ctx, final, mode); err != nil {
		return sum, fmt.Errorf("write store (%s): %w", mode, err)
	}

	sum.Elapsed = time.Since(start)
	log.InfoContext(ctx, "sync finished", "summary", sum, "records", len(final), "mode", mode.String())
	return sum, nil
}

// embed calls the embedding service for paths and builds their records.
// Images the service could not embed get the zero sentinel.
func (ix *Indexer) embed(ctx context.Context, paths []string, current map[string]int64) ([]index.Record, int, error) {
	vectors, err := ix.embedder.EmbedImages(ctx, paths)
	if err != nil {
		return nil, 0, fmt.Errorf("embed images: %w", err)
	}
	if len(vectors) != len(paths) {
		return nil, 0, fmt.Errorf("embed images: got %d vectors for %d images", len(vectors), len(paths))
	}

	records := make([]index.Record, 0, len(paths))
	failed := 0
	for i, p := range paths {
		vec := vectors[i]
		switch {
		case len(vec) == 0:
			vec = index.Sentinel(ix.opts.Dimension)
		case ix.opts.Dimension > 0 && len(vec) != ix.opts.Dimension:
			return nil, 0, fmt.Errorf("%w: %s has %d components, want %d", ErrDimensionMismatch, p, len(vec), ix.opts.Dimension)
		case !finite(vec):
			ix.logger.WarnContext(ctx, "embedding has non-finite components", "path", p)
			vec = index.Sentinel(len(vec))
		}
		if index.IsSentinel(vec) {
			failed++
			ix.logger.WarnContext(ctx, "image could not be embedded", "path", p)
		}
		records = append(records, index.Record{Path: p, MTime: current[p], Vector: vec})
	}
	return records, failed, nil
}

// Run performs a pass and reports it as an Outcome.
func (ix *Indexer) Run(ctx context.Context) Outcome {
	sum, err := ix.Sync(ctx)
	switch {
	case err != nil:
		return Outcome{Kind: OutcomeFailed, Summary: sum, Err: err}
	case sum.NothingToDo || sum.DryRun:
		return Outcome{Kind: OutcomeNoop, Summary: sum}
	default:
		return Outcome{Kind: OutcomeUpdated, Summary: sum}
	}
}

func finite(v []float32) bool {
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

func without(paths, drop []string) []string {
	if len(drop) == 0 {
		return paths
	}
	skip := make(map[string]struct{}, len(drop))
	for _, p := range drop {
		skip[p] = struct{}{}
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := skip[p]; !ok {
			out = append(out, p)
		}
	}
	return out
}
