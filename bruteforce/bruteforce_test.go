package bruteforce_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coredex/spatial"
	"github.com/coredex/spatial/bruteforce"
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

func TestSearchGridKNN(t *testing.T) {
	c := bruteforce.New()
	require.NoError(t, c.Build(context.Background(), false, gridVectors(), metrics.Euclidean{}))

	ids, dists, err := c.Search(spatial.DenseVector{2.1, 2.0}, 4)
	require.NoError(t, err)
	require.Len(t, ids, 4)
	for i := 1; i < len(dists); i++ {
		assert.LessOrEqual(t, dists[i-1], dists[i])
	}
	assert.InDelta(t, 0.1, dists[0], 1e-9)
}

func TestSearchRadiusEmpty(t *testing.T) {
	c := bruteforce.New()
	require.NoError(t, c.Build(context.Background(), false, gridVectors(), metrics.Euclidean{}))

	ids, dists, err := c.SearchRadius(spatial.DenseVector{10, 10}, 0.5)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Empty(t, dists)
}

func TestSearchDuplicatedPoints(t *testing.T) {
	var vecs []spatial.Vector
	for i := 0; i < 10; i++ {
		vecs = append(vecs, spatial.DenseVector{1, 1, 1, 1})
	}
	c := bruteforce.New()
	require.NoError(t, c.Build(context.Background(), false, vecs, metrics.Euclidean{}))

	ids, dists, err := c.Search(spatial.DenseVector{0, 0, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, ids, 3)
	seen := map[spatial.PointId]bool{}
	for i, id := range ids {
		assert.False(t, seen[id])
		seen[id] = true
		assert.InDelta(t, 2.0, dists[i], 1e-9)
	}
}

func TestSearchKGreaterThanSize(t *testing.T) {
	c := bruteforce.New()
	require.NoError(t, c.Build(context.Background(), false, []spatial.Vector{spatial.DenseVector{0, 0}}, metrics.Euclidean{}))

	ids, _, err := c.Search(spatial.DenseVector{1, 1}, 5)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestSearchInvalidArgument(t *testing.T) {
	c := bruteforce.New()
	require.NoError(t, c.Build(context.Background(), false, gridVectors(), metrics.Euclidean{}))

	_, _, err := c.Search(spatial.DenseVector{0, 0}, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, spatial.ErrInvalidArgument)
}

func TestSearchBeforeBuild(t *testing.T) {
	c := bruteforce.New()
	_, _, err := c.Search(spatial.DenseVector{0, 0}, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, spatial.ErrInvalidState)
}
