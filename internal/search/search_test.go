package search

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aryannaik/image-search/internal/index"
)

func rec(path string, v ...float32) index.Record {
	return index.Record{Path: path, MTime: 1, Vector: v}
}

func TestRank_OrdersByScore(t *testing.T) {
	snap := NewSnapshot([]index.Record{
		rec("/far", 0.1, 1),
		rec("/exact", 1, 0),
		rec("/close", 1, 0.2),
	})

	got := Rank([]float32{1, 0}, snap, 10)
	require.Len(t, got, 3)
	require.Equal(t, "/exact", got[0].Path)
	require.InDelta(t, 1.0, got[0].Score, 1e-9)
	require.Equal(t, "/close", got[1].Path)
	require.Equal(t, "/far", got[2].Path)
}

func TestRank_ExcludesSentinelsAndNonPositive(t *testing.T) {
	snap := NewSnapshot([]index.Record{
		rec("/zero", 0, 0),
		rec("/orthogonal", 0, 1),
		rec("/opposite", -1, 0),
		rec("/short", 1),
		rec("/match", 2, 0),
	})

	got := Rank([]float32{1, 0}, snap, 0)
	require.Equal(t, []Result{{Path: "/match", Score: 1}}, got)
}

func TestRank_ExcludesNonFiniteVectors(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	snap := NewSnapshot([]index.Record{
		rec("/a", 1, 0),
		rec("/nan", nan, 1),
		rec("/inf", inf, 1),
		rec("/c", 0.5, 0.5),
	})

	got := Rank([]float32{1, 0}, snap, 10)
	require.Len(t, got, 2)
	require.Equal(t, "/a", got[0].Path)
	require.Equal(t, "/c", got[1].Path)

	_, err := json.Marshal(Response{Results: got, TotalImages: snap.Len()})
	require.NoError(t, err)
}

func TestRank_TiesBreakByPath(t *testing.T) {
	snap := NewSnapshot([]index.Record{
		rec("/b", 1, 1),
		rec("/a", 1, 1),
		rec("/c", 1, 1),
	})

	got := Rank([]float32{1, 1}, snap, 2)
	require.Len(t, got, 2)
	require.Equal(t, "/a", got[0].Path)
	require.Equal(t, "/b", got[1].Path)
}

func TestRank_EmptySnapshot(t *testing.T) {
	require.Empty(t, Rank([]float32{1}, nil, 5))
	require.Empty(t, Rank([]float32{1}, NewSnapshot(nil), 5))
}

func TestRank_RandomizedProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for round := 0; round < 50; round++ {
		var records []index.Record
		for i := 0; i < 40; i++ {
			v := make([]float32, 4)
			if rng.Intn(5) != 0 {
				for j := range v {
					v[j] = rng.Float32()*2 - 1
				}
			}
			records = append(records, rec(filepath.Join("/img", string(rune('A'+i))), v...))
		}
		query := []float32{rng.Float32(), rng.Float32(), rng.Float32(), rng.Float32()}

		got := Rank(query, NewSnapshot(records), 0)
		for i, r := range got {
			require.Greater(t, r.Score, 0.0)
			if i > 0 {
				require.GreaterOrEqual(t, got[i-1].Score, r.Score)
			}
		}
		for _, r := range records {
			if index.IsSentinel(r.Vector) {
				for _, g := range got {
					require.NotEqual(t, r.Path, g.Path)
				}
			}
		}
	}
}

type fakeText struct {
	vec []float32
	err error
	n   int
}

func (f *fakeText) EmbedText(ctx context.Context, text string) ([]float32, error) {
	f.n++
	return f.vec, f.err
}

func TestEngine_Search(t *testing.T) {
	emb := &fakeText{vec: []float32{1, 0}}
	e := NewEngine(emb)

	resp, err := e.Search(context.Background(), "cat", 5)
	require.NoError(t, err)
	require.Empty(t, resp.Results)
	require.Zero(t, emb.n, "no query embedding without a snapshot")
	require.False(t, e.Loaded())

	e.Swap(NewSnapshot([]index.Record{rec("/cat.jpg", 1, 0), rec("/dog.jpg", 0, 0)}))
	require.True(t, e.Loaded())

	resp, err = e.Search(context.Background(), "cat", 5)
	require.NoError(t, err)
	require.Equal(t, 2, resp.TotalImages)
	require.Equal(t, []Result{{Path: "/cat.jpg", Score: 1}}, resp.Results)

	_, err = e.Search(context.Background(), "", 5)
	require.ErrorIs(t, err, ErrEmptyQuery)

	emb.err = errors.New("down")
	_, err = e.Search(context.Background(), "cat", 5)
	require.Error(t, err)
}

func TestEngine_ReloadKeepsSnapshotOnError(t *testing.T) {
	table := index.NewJSONTable(filepath.Join(t.TempDir(), "embeddings.json"))
	ctx := context.Background()
	require.NoError(t, table.Write(ctx, []index.Record{rec("/a.png", 1, 0)}, index.ModeCreate))

	e := NewEngine(&fakeText{vec: []float32{1, 0}})
	require.NoError(t, e.Reload(ctx, table))
	require.Equal(t, 1, e.Snapshot().Len())

	require.Error(t, e.Reload(ctx, brokenTable{table}))
	require.Equal(t, 1, e.Snapshot().Len())
}

type brokenTable struct{ index.Table }

func (brokenTable) ReadAll(context.Context) ([]index.Record, error) {
	return nil, errors.New("disk gone")
}
