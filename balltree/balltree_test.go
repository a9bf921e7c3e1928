package balltree_test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coredex/spatial"
	"github.com/coredex/spatial/balltree"
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

func TestExactSearchMatchesBruteForce_TopDownFarthest(t *testing.T) {
	vecs := randomVectors(200, 4, 42)
	metric := metrics.Euclidean{}
	tree := balltree.New(balltree.WithLeafSize(8), balltree.WithConstructionMethod(balltree.TopDownFarthest))
	require.NoError(t, tree.Build(context.Background(), false, vecs, metric))

	q := spatial.DenseVector{1, 2, 3, 4}
	ids, dists, err := tree.Search(q, 10)
	require.NoError(t, err)
	require.Len(t, ids, 10)

	expected := bruteForceKNN(vecs, metric, q, 10)
	for i := range dists {
		assert.InDelta(t, expected[i], dists[i], 1e-9)
	}
}

func TestExactSearchMatchesBruteForce_KDStyle(t *testing.T) {
	vecs := randomVectors(200, 3, 7)
	metric := metrics.Euclidean{}
	tree := balltree.New(balltree.WithLeafSize(10), balltree.WithConstructionMethod(balltree.KDStyle))
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

// TestAnchorDegeneracy builds an Anchors-Hierarchy tree over a dataset with
// many duplicated points (so multiple anchors can tie for ownership of the
// same point) and checks every point is still reachable exactly once.
func TestAnchorDegeneracy(t *testing.T) {
	var vecs []spatial.Vector
	for i := 0; i < 5; i++ {
		for j := 0; j < 40; j++ {
			vecs = append(vecs, spatial.DenseVector{float64(i) * 10, float64(i) * 10})
		}
	}
	metric := metrics.Euclidean{}
	tree := balltree.New(balltree.WithLeafSize(6), balltree.WithConstructionMethod(balltree.AnchorsHierarchy))
	require.NoError(t, tree.Build(context.Background(), false, vecs, metric))

	root := tree.Root()
	require.NotNil(t, root)

	var walk func(n spatial.IndexNode) int
	walk = func(n spatial.IndexNode) int {
		if n.NumChildren() == 0 {
			return n.NumPoints()
		}
		total := 0
		for k := 0; k < n.NumChildren(); k++ {
			total += walk(n.Child(k))
		}
		return total
	}
	assert.Equal(t, len(vecs), walk(root))

	q := spatial.DenseVector{20, 20}
	ids, dists, err := tree.Search(q, 40)
	require.NoError(t, err)
	require.Len(t, ids, 40)
	for _, d := range dists {
		assert.InDelta(t, 0.0, d, 1e-9)
	}
}

func TestRadiusSearchCompleteness(t *testing.T) {
	vecs := randomVectors(150, 3, 11)
	metric := metrics.Euclidean{}
	tree := balltree.New(balltree.WithLeafSize(6))
	require.NoError(t, tree.Build(context.Background(), false, vecs, metric))

	q := spatial.DenseVector{5, 5, 5}
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

func TestInsertEquivalence(t *testing.T) {
	vecs := randomVectors(60, 3, 99)
	metric := metrics.Euclidean{}

	bulk := balltree.New(balltree.WithLeafSize(6))
	require.NoError(t, bulk.Build(context.Background(), false, vecs, metric))

	incremental := balltree.New(balltree.WithLeafSize(6))
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
	tree := balltree.New()
	err := tree.Build(context.Background(), false, randomVectors(10, 2, 1), metrics.Cosine{})
	require.Error(t, err)
	assert.ErrorIs(t, err, spatial.ErrInvalidMetric)
}

func TestSearchInvalidArgument(t *testing.T) {
	tree := balltree.New()
	require.NoError(t, tree.Build(context.Background(), false, randomVectors(10, 2, 1), metrics.Euclidean{}))
	_, _, err := tree.Search(spatial.DenseVector{0, 0}, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, spatial.ErrInvalidArgument)
}

func TestMedoidPivotSelection(t *testing.T) {
	vecs := randomVectors(100, 3, 5)
	metric := metrics.Euclidean{}
	tree := balltree.New(balltree.WithLeafSize(8), balltree.WithPivotSelection(balltree.Medoid))
	require.NoError(t, tree.Build(context.Background(), false, vecs, metric))

	q := spatial.DenseVector{2, 2, 2}
	ids, dists, err := tree.Search(q, 5)
	require.NoError(t, err)
	require.Len(t, ids, 5)
	expected := bruteForceKNN(vecs, metric, q, 5)
	for i := range dists {
		assert.InDelta(t, expected[i], dists[i], 1e-9)
	}
}
