package search

import (
	"context"
	"fmt"
	"math"

	"github.com/aryannaik/image-search/internal/index"
)

// Snapshot is an immutable, in-memory copy of the store used to answer
// queries. Norms are computed once at load time.
type Snapshot struct {
	paths   []string
	vectors [][]float32
	norms   []float64
}

// NewSnapshot copies records into a snapshot.
func NewSnapshot(records []index.Record) *Snapshot {
	s := &Snapshot{
		paths:   make([]string, len(records)),
		vectors: make([][]float32, len(records)),
		norms:   make([]float64, len(records)),
	}
	for i, r := range records {
		s.paths[i] = r.Path
		s.vectors[i] = append([]float32(nil), r.Vector...)
		s.norms[i] = norm(r.Vector)
	}
	return s
}

// Load reads every record from table into a new snapshot.
func Load(ctx context.Context, table index.Table) (*Snapshot, error) {
	records, err := table.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return NewSnapshot(records), nil
}

// Len returns the number of images in the snapshot, failed ones included.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.paths)
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
