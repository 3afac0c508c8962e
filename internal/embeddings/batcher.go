package embeddings

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/aryannaik/image-search/internal/logging"
)

// Batcher splits image embedding work into fixed-size batches and sends
// them one after another, optionally paced by a rate limit.
type Batcher struct {
	embedder ImageEmbedder
	size     int
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewBatcher wraps embedder. batchesPerSecond <= 0 disables pacing.
func NewBatcher(embedder ImageEmbedder, size int, batchesPerSecond float64, logger *slog.Logger) *Batcher {
	if size <= 0 {
		size = 1
	}
	b := &Batcher{
		embedder: embedder,
		size:     size,
		logger:   logging.OrDiscard(logger),
	}
	if batchesPerSecond > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(batchesPerSecond), 1)
	}
	return b
}

// EmbedImages embeds paths batch by batch. Any batch error aborts the call
// and discards the vectors gathered so far.
func (b *Batcher) EmbedImages(ctx context.Context, paths []string) ([][]float32, error) {
	out := make([][]float32, 0, len(paths))
	for start := 0; start < len(paths); start += b.size {
		end := min(start+b.size, len(paths))

		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		vectors, err := b.embedder.EmbedImages(ctx, paths[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("embed batch %d-%d: got %d vectors", start, end, len(vectors))
		}
		out = append(out, vectors...)

		b.logger.InfoContext(ctx, "embedded batch", "done", end, "total", len(paths))
	}
	return out, nil
}
