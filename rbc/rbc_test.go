package rbc_test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coredex/spatial"
	"github.com/coredex/spatial/metrics"
	"github.com/coredex/spatial/rbc"
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

func TestExactSearchMatchesBruteForce(t *testing.T) {
	vecs := randomVectors(300, 4, 42)
	metric := metrics.Euclidean{}
	idx := rbc.New(rbc.WithRand(rand.New(rand.NewSource(3))))
	require.NoError(t, idx.Build(context.Background(), false, vecs, metric))

	q := spatial.DenseVector{1, 2, 3, 4}
	ids, dists, err := idx.Search(q, 10)
	require.NoError(t, err)
	require.Len(t, ids, 10)

	expected := bruteForceKNN(vecs, metric, q, 10)
	for i := range dists {
		assert.InDelta(t, expected[i], dists[i], 1e-9)
	}
}

func TestRadiusSearchCompleteness(t *testing.T) {
	vecs := randomVectors(200, 3, 11)
	metric := metrics.Euclidean{}
	idx := rbc.New()
	require.NoError(t, idx.Build(context.Background(), false, vecs, metric))

	q := spatial.DenseVector{5, 5, 5}
	const rng = 3.0
	got, _, err := idx.SearchRadius(q, rng)
	require.NoError(t, err)

	var want int
	for _, v := range vecs {
		if metric.Dist(q, v) <= rng {
			want++
		}
	}
	assert.Len(t, got, want)
}

func TestOneShotApproximate(t *testing.T) {
	vecs := randomVectors(200, 3, 9)
	metric := metrics.Euclidean{}
	idx := rbc.New(rbc.WithOneShot(true))
	require.NoError(t, idx.Build(context.Background(), false, vecs, metric))

	q := spatial.DenseVector{5, 5, 5}
	ids, dists, err := idx.Search(q, 5)
	require.NoError(t, err)
	require.LessOrEqual(t, len(ids), 5)
	for i := 1; i < len(dists); i++ {
		assert.LessOrEqual(t, dists[i-1], dists[i])
	}
}

func TestInsertUnsupported(t *testing.T) {
	idx := rbc.New()
	require.NoError(t, idx.Build(context.Background(), false, randomVectors(20, 2, 3), metrics.Euclidean{}))
	err := idx.Insert(spatial.DenseVector{0, 0})
	require.Error(t, err)
	assert.ErrorIs(t, err, spatial.ErrInvalidState)
}

func TestRejectsNonSubadditiveMetric(t *testing.T) {
	idx := rbc.New()
	err := idx.Build(context.Background(), false, randomVectors(10, 2, 1), metrics.Cosine{})
	require.Error(t, err)
	assert.ErrorIs(t, err, spatial.ErrInvalidMetric)
}

func TestRootPartitionsAllPoints(t *testing.T) {
	vecs := randomVectors(80, 2, 4)
	metric := metrics.Euclidean{}
	idx := rbc.New()
	require.NoError(t, idx.Build(context.Background(), false, vecs, metric))

	root := idx.Root()
	require.NotNil(t, root)

	seen := make(map[spatial.PointId]bool)
	for k := 0; k < root.NumChildren(); k++ {
		child := root.Child(k)
		for p := 0; p < child.NumPoints(); p++ {
			seen[child.Point(p)] = true
		}
	}
	assert.Len(t, seen, len(vecs))
}
