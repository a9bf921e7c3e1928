package dci_test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coredex/spatial"
	"github.com/coredex/spatial/dci"
	"github.com/coredex/spatial/metrics"
)

func randomVectors(n, dim int, seed int64) []spatial.Vector {
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

func bruteForceKNN(vecs []spatial.Vector, metric spatial.Metric, q spatial.Vector, k int) []float64 {
	dists := make([]float64, len(vecs))
	for i, v := range vecs {
		dists[i] = metric.Dist(q, v)
	}
	for i := 1; i < len(dists); i++ {
		for j := i; j > 0 && dists[j-1] > dists[j]; j-- {
			dists[j-1], dists[j] = dists[j], dists[j-1]
		}
	}
	if k > len(dists) {
		k = len(dists)
	}
	return dists[:k]
}

func TestSearchFindsSelfAndIsSorted(t *testing.T) {
	vecs := randomVectors(300, 8, 13)
	metric := metrics.Euclidean{}
	idx := dci.New(dci.WithM(10), dci.WithL(4), dci.WithRand(rand.New(rand.NewSource(5))))
	require.NoError(t, idx.Build(context.Background(), false, vecs, metric))

	// A query identical to a dataset point has projection gap 0 against
	// its own projections in every simple index, so it is discovered in
	// the very first round of every composite's vote loop and is
	// therefore guaranteed to surface as the top result.
	q := vecs[0]
	ids, dists, err := idx.Search(q, 10)
	require.NoError(t, err)
	require.Len(t, ids, 10)
	assert.Equal(t, spatial.PointId(0), ids[0])
	assert.InDelta(t, 0, dists[0], 1e-9)

	for i := 1; i < len(dists); i++ {
		assert.GreaterOrEqual(t, dists[i], dists[i-1]-1e-9)
	}

	expected := bruteForceKNN(vecs, metric, q, 10)
	assert.InDelta(t, expected[0], dists[0], 1e-9)
}

func TestRadiusSearchFindsKnownNeighbour(t *testing.T) {
	vecs := randomVectors(200, 6, 21)
	metric := metrics.Euclidean{}
	idx := dci.New(dci.WithM(12), dci.WithL(5))
	require.NoError(t, idx.Build(context.Background(), false, vecs, metric))

	q := vecs[0]
	got, dists, err := idx.SearchRadius(q, 0.5)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Contains(t, got, spatial.PointId(0))
	for _, d := range dists {
		assert.LessOrEqual(t, d, 0.5+1e-9)
	}
}

func TestInsertUnsupported(t *testing.T) {
	idx := dci.New()
	require.NoError(t, idx.Build(context.Background(), false, randomVectors(20, 3, 1), metrics.Euclidean{}))
	err := idx.Insert(spatial.DenseVector{0, 0, 0})
	require.Error(t, err)
	assert.ErrorIs(t, err, spatial.ErrInvalidState)
}

func TestRejectsNonEuclideanMetric(t *testing.T) {
	idx := dci.New()
	err := idx.Build(context.Background(), false, randomVectors(10, 3, 1), metrics.Manhattan{})
	require.Error(t, err)
	assert.ErrorIs(t, err, spatial.ErrInvalidMetric)
}

func TestParallelBuildMatchesSequential(t *testing.T) {
	vecs := randomVectors(100, 4, 77)
	metric := metrics.Euclidean{}

	seq := dci.New(dci.WithM(8), dci.WithL(3), dci.WithRand(rand.New(rand.NewSource(2))))
	require.NoError(t, seq.Build(context.Background(), false, vecs, metric))

	par := dci.New(dci.WithM(8), dci.WithL(3), dci.WithRand(rand.New(rand.NewSource(2))))
	require.NoError(t, par.Build(context.Background(), true, vecs, metric))

	q := spatial.DenseVector{2, 2, 2, 2}
	seqIDs, _, err := seq.Search(q, 5)
	require.NoError(t, err)
	parIDs, _, err := par.Search(q, 5)
	require.NoError(t, err)
	assert.ElementsMatch(t, seqIDs, parIDs)
}
