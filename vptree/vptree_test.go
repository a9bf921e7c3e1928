package vptree_test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coredex/spatial"
	"github.com/coredex/spatial/metrics"
	"github.com/coredex/spatial/vptree"
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

func TestExactSearchMatchesBruteForce(t *testing.T) {
	vecs := randomVectors(200, 4, 42)
	metric := metrics.Euclidean{}
	tree := vptree.New(vptree.WithMaxLeafSize(6), vptree.WithRand(rand.New(rand.NewSource(7))))
	require.NoError(t, tree.Build(context.Background(), false, vecs, metric))

	q := spatial.DenseVector{1, 2, 3, 4}
	ids, dists, err := tree.Search(q, 10)
	require.NoError(t, err)
	require.Len(t, ids, 10)

	expected := make([]float64, len(vecs))
	for i, v := range vecs {
		expected[i] = metric.Dist(q, v)
	}
	insertionSort(expected)

	for i := range dists {
		assert.InDelta(t, expected[i], dists[i], 1e-9)
	}
}

func TestRadiusSearchCompleteness(t *testing.T) {
	vecs := randomVectors(150, 3, 11)
	metric := metrics.Euclidean{}
	tree := vptree.New(vptree.WithMaxLeafSize(6))
	require.NoError(t, tree.Build(context.Background(), false, vecs, metric))

	q := spatial.DenseVector{5, 5, 5}
	const rng = 3.0
	ids, _, err := tree.Search(q, 1)
	require.NoError(t, err)
	require.NotEmpty(t, ids)

	got, _, err := tree.SearchRadius(q, rng)
	require.NoError(t, err)

	var want int
	for _, v := range vecs {
		if metric.Dist(q, v) <= rng {
			want++
		}
	}
	assert.Len(t, got, want)
}

func TestInsertUnsupportedWithoutIncremental(t *testing.T) {
	tree := vptree.New()
	require.NoError(t, tree.Build(context.Background(), false, randomVectors(20, 2, 3), metrics.Euclidean{}))
	err := tree.Insert(spatial.DenseVector{0, 0})
	require.Error(t, err)
	assert.ErrorIs(t, err, spatial.ErrInvalidState)
}

func TestIncrementalInsertBuildEquivalence(t *testing.T) {
	vecs := randomVectors(60, 3, 99)
	metric := metrics.Euclidean{}

	bulk := vptree.New(vptree.WithMaxLeafSize(6))
	require.NoError(t, bulk.Build(context.Background(), false, vecs, metric))

	incremental := vptree.New(vptree.WithMaxLeafSize(6), vptree.WithIncremental(true))
	require.NoError(t, incremental.Build(context.Background(), false, vecs[:1], metric))
	for _, v := range vecs[1:] {
		require.NoError(t, incremental.Insert(v))
	}

	q := spatial.DenseVector{4, 4, 4}
	bulkIDs, bulkDists, err := bulk.Search(q, 5)
	require.NoError(t, err)
	incIDs, incDists, err := incremental.Search(q, 5)
	require.NoError(t, err)

	require.Len(t, incIDs, len(bulkIDs))
	for i := range bulkDists {
		assert.InDelta(t, bulkDists[i], incDists[i], 1e-9)
	}
}

func TestRejectsNonSubadditiveMetric(t *testing.T) {
	tree := vptree.New()
	err := tree.Build(context.Background(), false, randomVectors(10, 2, 1), metrics.Cosine{})
	require.Error(t, err)
	assert.ErrorIs(t, err, spatial.ErrInvalidMetric)
}

func insertionSort(xs []float64) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}
