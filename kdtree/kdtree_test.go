package kdtree_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coredex/spatial"
	"github.com/coredex/spatial/kdtree"
	"github.com/coredex/spatial/metrics"
)

func gridVectors() []spatial.Vector {
	var out []spatial.Vector
	for x := 0; x < 5; x++ {
		for y := 0; y < 5; y++ {
			out = append(out, spatial.DenseVector{float64(x), float64(y)})
		}
	}
	return out
}

func TestGridKNN(t *testing.T) {
	tree := kdtree.New(kdtree.WithLeafNodeSize(4))
	require.NoError(t, tree.Build(context.Background(), false, gridVectors(), metrics.Euclidean{}))

	ids, dists, err := tree.Search(spatial.DenseVector{2.1, 2.0}, 4)
	require.NoError(t, err)
	require.Len(t, ids, 4)
	for i := 1; i < len(dists); i++ {
		assert.LessOrEqual(t, dists[i-1], dists[i])
	}
	assert.InDelta(t, 0.1, dists[0], 1e-9)
}

func TestRadiusSearchEmpty(t *testing.T) {
	tree := kdtree.New()
	require.NoError(t, tree.Build(context.Background(), false, gridVectors(), metrics.Euclidean{}))

	ids, _, err := tree.SearchRadius(spatial.DenseVector{10, 10}, 0.5)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestDuplicatedPoints(t *testing.T) {
	var vecs []spatial.Vector
	for i := 0; i < 10; i++ {
		vecs = append(vecs, spatial.DenseVector{1, 1, 1, 1})
	}
	tree := kdtree.New(kdtree.WithLeafNodeSize(3))
	require.NoError(t, tree.Build(context.Background(), false, vecs, metrics.Euclidean{}))

	ids, dists, err := tree.Search(spatial.DenseVector{0, 0, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, ids, 3)
	seen := map[spatial.PointId]bool{}
	for i, id := range ids {
		assert.False(t, seen[id])
		seen[id] = true
		assert.InDelta(t, 2.0, dists[i], 1e-9)
	}
}

func TestRejectsNonPNormMetric(t *testing.T) {
	tree := kdtree.New()
	err := tree.Build(context.Background(), false, gridVectors(), metrics.Cosine{})
	require.Error(t, err)
	assert.ErrorIs(t, err, spatial.ErrInvalidMetric)
}

func TestInsertUnsupported(t *testing.T) {
	tree := kdtree.New()
	require.NoError(t, tree.Build(context.Background(), false, gridVectors(), metrics.Euclidean{}))
	err := tree.Insert(spatial.DenseVector{0, 0})
	require.Error(t, err)
	assert.ErrorIs(t, err, spatial.ErrInvalidState)
}

func TestExactSearchMatchesBruteForce(t *testing.T) {
	vecs := gridVectors()
	tree := kdtree.New(kdtree.WithLeafNodeSize(4), kdtree.WithPivotSelection(kdtree.Variance))
	require.NoError(t, tree.Build(context.Background(), false, vecs, metrics.Euclidean{}))

	metric := metrics.Euclidean{}
	q := spatial.DenseVector{1.7, 3.3}
	ids, dists, err := tree.Search(q, 5)
	require.NoError(t, err)

	expected := make([]float64, len(vecs))
	for i, v := range vecs {
		expected[i] = metric.Dist(q, v)
	}
	sortFloats(expected)

	for i := range dists {
		assert.InDelta(t, expected[i], dists[i], 1e-9)
	}
	assert.Len(t, ids, 5)
}

func sortFloats(xs []float64) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}

func TestPartitionCoversAllPoints(t *testing.T) {
	vecs := gridVectors()
	tree := kdtree.New(kdtree.WithLeafNodeSize(4))
	require.NoError(t, tree.Build(context.Background(), false, vecs, metrics.Euclidean{}))

	seen := map[spatial.PointId]bool{}
	var walk func(n spatial.IndexNode)
	walk = func(n spatial.IndexNode) {
		if n == nil {
			return
		}
		for i := 0; i < n.NumPoints(); i++ {
			seen[n.Point(i)] = true
		}
		for i := 0; i < n.NumChildren(); i++ {
			walk(n.Child(i))
		}
	}
	walk(tree.Root())
	assert.Len(t, seen, len(vecs))
}
