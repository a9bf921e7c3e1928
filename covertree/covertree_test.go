package covertree_test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coredex/spatial"
	"github.com/coredex/spatial/covertree"
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

func TestExactSearchMatchesBruteForce(t *testing.T) {
	vecs := randomVectors(150, 3, 17)
	metric := metrics.Euclidean{}
	tree := covertree.New()
	require.NoError(t, tree.Build(context.Background(), false, vecs, metric))

	q := spatial.DenseVector{5, 5, 5}
	ids, dists, err := tree.Search(q, 8)
	require.NoError(t, err)
	require.Len(t, ids, 8)

	expected := bruteForceKNN(vecs, metric, q, 8)
	for i := range dists {
		assert.InDelta(t, expected[i], dists[i], 1e-9)
	}
}

func TestRadiusSearchCompleteness(t *testing.T) {
	vecs := randomVectors(120, 2, 3)
	metric := metrics.Euclidean{}
	tree := covertree.New()
	require.NoError(t, tree.Build(context.Background(), false, vecs, metric))

	q := spatial.DenseVector{5, 5}
	const rng = 3.0
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

// TestLevelInvariant inserts points at varying separations and checks, for
// every parent/child pair in the resulting tree, that the child's point lies
// within the parent's maxdist bound: dist(parent, child) <= parent.Radius().
func TestLevelInvariant(t *testing.T) {
	vecs := []spatial.Vector{
		spatial.DenseVector{0, 0},
		spatial.DenseVector{1, 0},
		spatial.DenseVector{3, 0},
		spatial.DenseVector{100, 0},
		spatial.DenseVector{0.1, 0},
	}
	metric := metrics.Euclidean{}
	tree := covertree.New(covertree.WithRand(rand.New(rand.NewSource(1))))
	require.NoError(t, tree.Build(context.Background(), false, vecs, metric))

	root := tree.Root()
	require.NotNil(t, root)

	var walk func(n spatial.IndexNode)
	walk = func(n spatial.IndexNode) {
		for k := 0; k < n.NumChildren(); k++ {
			child := n.Child(k)
			d := metric.Dist(n.Pivot(), child.Pivot())
			assert.LessOrEqual(t, d, n.Radius()+1e-9)
			walk(child)
		}
	}
	walk(root)
}

func TestInsertIncremental(t *testing.T) {
	vecs := randomVectors(40, 3, 21)
	metric := metrics.Euclidean{}

	tree := covertree.New()
	require.NoError(t, tree.Build(context.Background(), false, vecs[:1], metric))
	for _, v := range vecs[1:] {
		require.NoError(t, tree.Insert(v))
	}
	require.Equal(t, len(vecs), tree.Size())

	q := spatial.DenseVector{4, 4, 4}
	ids, dists, err := tree.Search(q, 5)
	require.NoError(t, err)
	require.Len(t, ids, 5)

	expected := bruteForceKNN(vecs, metric, q, 5)
	for i := range dists {
		assert.InDelta(t, expected[i], dists[i], 1e-9)
	}
}

func TestLooseBoundsMode(t *testing.T) {
	vecs := randomVectors(80, 3, 5)
	metric := metrics.Euclidean{}
	tree := covertree.New(covertree.WithLooseBounds(true))
	require.NoError(t, tree.Build(context.Background(), false, vecs, metric))

	q := spatial.DenseVector{2, 2, 2}
	got, _, err := tree.SearchRadius(q, 4.0)
	require.NoError(t, err)

	var want int
	for _, v := range vecs {
		if metric.Dist(q, v) <= 4.0 {
			want++
		}
	}
	assert.Len(t, got, want)
}

func TestSearchInvalidArgument(t *testing.T) {
	tree := covertree.New()
	require.NoError(t, tree.Build(context.Background(), false, randomVectors(10, 2, 1), metrics.Euclidean{}))
	_, _, err := tree.Search(spatial.DenseVector{0, 0}, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, spatial.ErrInvalidArgument)
}

func TestRejectsInvalidMetric(t *testing.T) {
	tree := covertree.New()
	err := tree.Build(context.Background(), false, randomVectors(10, 2, 1), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, spatial.ErrInvalidMetric)
}
