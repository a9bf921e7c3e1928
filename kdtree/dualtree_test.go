package kdtree_test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coredex/spatial"
	"github.com/coredex/spatial/kdtree"
	"github.com/coredex/spatial/metrics"
)

func randomVectorsDT(n, dim int, seed int64) []spatial.Vector {
	r := rand.New(rand.NewSource(seed))
	out := make([]spatial.Vector, n)
	for i := range out {
		v := make([]float64, dim)
		for d := range v {
			v[d] = r.Float64() * 10
		}
		out[i] = spatial.DenseVector(v)
	}
	return out
}

// TestSearchDualTreeMatchesSingleTree checks that batching every query
// point through one dual-tree traversal returns the exact same k-NN sets
// (same ids, same distances) as running Search once per
// query point against the same reference tree.
func TestSearchDualTreeMatchesSingleTree(t *testing.T) {
	metric := metrics.Euclidean{}
	refVecs := randomVectorsDT(250, 5, 101)
	queryVecs := randomVectorsDT(30, 5, 202)

	ref := kdtree.New()
	require.NoError(t, ref.Build(context.Background(), false, refVecs, metric))

	query := kdtree.New()
	require.NoError(t, query.Build(context.Background(), false, queryVecs, metric))

	const k = 7
	ids, dists, err := ref.SearchDualTree(query, k)
	require.NoError(t, err)
	require.Len(t, ids, len(queryVecs))

	for qid := 0; qid < len(queryVecs); qid++ {
		wantIDs, wantDists, err := ref.Search(queryVecs[qid], k)
		require.NoError(t, err)

		gotIDs := ids[spatial.PointId(qid)]
		gotDists := dists[spatial.PointId(qid)]
		require.Len(t, gotIDs, len(wantIDs))

		for i := range wantDists {
			assert.InDelta(t, wantDists[i], gotDists[i], 1e-9)
		}
		assert.ElementsMatch(t, wantIDs, gotIDs)
	}
}

func TestSearchDualTreeInvalidArgument(t *testing.T) {
	metric := metrics.Euclidean{}
	ref := kdtree.New()
	require.NoError(t, ref.Build(context.Background(), false, randomVectorsDT(20, 3, 1), metric))
	query := kdtree.New()
	require.NoError(t, query.Build(context.Background(), false, randomVectorsDT(5, 3, 2), metric))

	_, _, err := ref.SearchDualTree(query, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, spatial.ErrInvalidArgument)
}

func TestSearchDualTreeUnbuiltQuery(t *testing.T) {
	metric := metrics.Euclidean{}
	ref := kdtree.New()
	require.NoError(t, ref.Build(context.Background(), false, randomVectorsDT(20, 3, 1), metric))
	query := kdtree.New()

	_, _, err := ref.SearchDualTree(query, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, spatial.ErrInvalidState)
}
