// Package metrics provides reference spatial.Metric implementations —
// Euclidean (L2), Manhattan (L1), Chebyshev (L∞), and Cosine/Weighted-Cosine.
// Concrete metrics are external collaborators, not part of the core
// contract; this package exists so the tree families have something real to
// build and test against.
package metrics

import (
	"math"

	"github.com/coredex/spatial"
)

func toSlice(v spatial.Vector) []float64 {
	if dv, ok := v.(spatial.DenseVector); ok {
		return dv
	}
	out := make([]float64, v.Dim())
	for i := range out {
		out[i] = v.At(i)
	}
	return out
}

// squaredNormCache is the AccelerationCache every p-norm-squared-aware
// metric below shares: the precomputed squared L2 norm of each stored
// vector, so DistCached for Euclidean can use ||a||²+||b||²-2·a·b instead
// of recomputing componentwise differences from scratch.
type squaredNormCache []float64

func buildSquaredNormCache(vecs []spatial.Vector) spatial.AccelerationCache {
	out := make(squaredNormCache, len(vecs))
	for i, v := range vecs {
		s := toSlice(v)
		var sum float64
		for _, x := range s {
			sum += x * x
		}
		out[i] = sum
	}
	return out
}

type squaredNormQueryInfo struct {
	vec      []float64
	sqNorm   float64
}

func buildSquaredNormQueryInfo(q spatial.Vector) spatial.QueryInfo {
	s := toSlice(q)
	var sum float64
	for _, x := range s {
		sum += x * x
	}
	return squaredNormQueryInfo{vec: s, sqNorm: sum}
}

// Euclidean implements the L2 metric with acceleration-cache support.
type Euclidean struct{}

func (Euclidean) Dist(a, b spatial.Vector) float64 {
	sa, sb := toSlice(a), toSlice(b)
	var sum float64
	for i := range sa {
		d := sa[i] - sb[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func (Euclidean) IsSymmetric() bool     { return true }
func (Euclidean) IsIndiscernible() bool { return true }
func (Euclidean) IsSubadditive() bool   { return true }
func (Euclidean) IsValidMetric() bool   { return true }
func (Euclidean) PNorm() float64        { return 2 }
func (Euclidean) IsEuclidean() bool     { return true }

func (Euclidean) SupportsAcceleration() bool { return true }

func (Euclidean) BuildAccelerationCache(vecs []spatial.Vector) spatial.AccelerationCache {
	return buildSquaredNormCache(vecs)
}

func (Euclidean) BuildQueryInfo(q spatial.Vector) spatial.QueryInfo {
	return buildSquaredNormQueryInfo(q)
}

func (m Euclidean) DistCached(i, j spatial.PointId, vecs []spatial.Vector, cache spatial.AccelerationCache) float64 {
	c, ok := cache.(squaredNormCache)
	if !ok {
		return m.Dist(vecs[i], vecs[j])
	}
	a, b := toSlice(vecs[i]), toSlice(vecs[j])
	var dot float64
	for k := range a {
		dot += a[k] * b[k]
	}
	sq := c[i] + c[j] - 2*dot
	if sq < 0 {
		sq = 0 // numeric noise guard
	}
	return math.Sqrt(sq)
}

func (m Euclidean) DistQueryCached(i spatial.PointId, q spatial.Vector, qInfo spatial.QueryInfo, vecs []spatial.Vector, cache spatial.AccelerationCache) float64 {
	c, cok := cache.(squaredNormCache)
	qi, qok := qInfo.(squaredNormQueryInfo)
	if !cok || !qok {
		return m.Dist(vecs[i], q)
	}
	a := toSlice(vecs[i])
	var dot float64
	for k := range a {
		dot += a[k] * qi.vec[k]
	}
	sq := c[i] + qi.sqNorm - 2*dot
	if sq < 0 {
		sq = 0
	}
	return math.Sqrt(sq)
}

// Manhattan implements the L1 metric.
type Manhattan struct{}

func (Manhattan) Dist(a, b spatial.Vector) float64 {
	sa, sb := toSlice(a), toSlice(b)
	var sum float64
	for i := range sa {
		d := sa[i] - sb[i]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum
}

func (Manhattan) IsSymmetric() bool         { return true }
func (Manhattan) IsIndiscernible() bool     { return true }
func (Manhattan) IsSubadditive() bool       { return true }
func (Manhattan) IsValidMetric() bool       { return true }
func (Manhattan) PNorm() float64            { return 1 }
func (Manhattan) SupportsAcceleration() bool { return false }
func (Manhattan) BuildAccelerationCache(vecs []spatial.Vector) spatial.AccelerationCache {
	return nil
}
func (Manhattan) BuildQueryInfo(q spatial.Vector) spatial.QueryInfo { return nil }
func (m Manhattan) DistCached(i, j spatial.PointId, vecs []spatial.Vector, cache spatial.AccelerationCache) float64 {
	return m.Dist(vecs[i], vecs[j])
}
func (m Manhattan) DistQueryCached(i spatial.PointId, q spatial.Vector, qInfo spatial.QueryInfo, vecs []spatial.Vector, cache spatial.AccelerationCache) float64 {
	return m.Dist(vecs[i], q)
}

// Chebyshev implements the L∞ (max) metric.
type Chebyshev struct{}

func (Chebyshev) Dist(a, b spatial.Vector) float64 {
	sa, sb := toSlice(a), toSlice(b)
	var max float64
	for i := range sa {
		d := sa[i] - sb[i]
		if d < 0 {
			d = -d
		}
		if d > max {
			max = d
		}
	}
	return max
}

func (Chebyshev) IsSymmetric() bool         { return true }
func (Chebyshev) IsIndiscernible() bool     { return true }
func (Chebyshev) IsSubadditive() bool       { return true }
func (Chebyshev) IsValidMetric() bool       { return true }
func (Chebyshev) PNorm() float64            { return math.Inf(1) }
func (Chebyshev) SupportsAcceleration() bool { return false }
func (Chebyshev) BuildAccelerationCache(vecs []spatial.Vector) spatial.AccelerationCache {
	return nil
}
func (Chebyshev) BuildQueryInfo(q spatial.Vector) spatial.QueryInfo { return nil }
func (m Chebyshev) DistCached(i, j spatial.PointId, vecs []spatial.Vector, cache spatial.AccelerationCache) float64 {
	return m.Dist(vecs[i], vecs[j])
}
func (m Chebyshev) DistQueryCached(i spatial.PointId, q spatial.Vector, qInfo spatial.QueryInfo, vecs []spatial.Vector, cache spatial.AccelerationCache) float64 {
	return m.Dist(vecs[i], q)
}

// Cosine implements 1 - cosine similarity. Not subadditive in general, so
// trees requiring the triangle inequality reject it with
// spatial.ErrInvalidMetric.
type Cosine struct{}

func (Cosine) Dist(a, b spatial.Vector) float64 {
	sa, sb := toSlice(a), toSlice(b)
	var dot, na2, nb2 float64
	for i := range sa {
		dot += sa[i] * sb[i]
		na2 += sa[i] * sa[i]
		nb2 += sb[i] * sb[i]
	}
	if na2 == 0 && nb2 == 0 {
		return 0
	}
	if na2 == 0 || nb2 == 0 {
		return 1
	}
	den := math.Sqrt(na2) * math.Sqrt(nb2)
	cos := dot / den
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	d := 1 - cos
	if d < 0 {
		return 0
	}
	if d > 2 {
		return 2
	}
	return d
}

func (Cosine) IsSymmetric() bool         { return true }
func (Cosine) IsIndiscernible() bool     { return false }
func (Cosine) IsSubadditive() bool       { return false }
func (Cosine) IsValidMetric() bool       { return false }
func (Cosine) SupportsAcceleration() bool { return false }
func (Cosine) BuildAccelerationCache(vecs []spatial.Vector) spatial.AccelerationCache {
	return nil
}
func (Cosine) BuildQueryInfo(q spatial.Vector) spatial.QueryInfo { return nil }
func (m Cosine) DistCached(i, j spatial.PointId, vecs []spatial.Vector, cache spatial.AccelerationCache) float64 {
	return m.Dist(vecs[i], vecs[j])
}
func (m Cosine) DistQueryCached(i spatial.PointId, q spatial.Vector, qInfo spatial.QueryInfo, vecs []spatial.Vector, cache spatial.AccelerationCache) float64 {
	return m.Dist(vecs[i], q)
}

// WeightedCosine implements 1 - weighted cosine similarity; weights scale
// each axis in both the dot product and the norms. A nil or
// length-mismatched Weights falls back to plain Cosine.
type WeightedCosine struct{ Weights []float64 }

func (wc WeightedCosine) Dist(a, b spatial.Vector) float64 {
	sa, sb := toSlice(a), toSlice(b)
	w := wc.Weights
	if len(w) == 0 || len(w) != len(sa) {
		return Cosine{}.Dist(a, b)
	}
	var dot, na2, nb2 float64
	for i := range sa {
		v := w[i] * sa[i]
		dot += v * sb[i]
		na2 += v * sa[i]
		nb2 += (w[i] * sb[i]) * sb[i]
	}
	if na2 == 0 && nb2 == 0 {
		return 0
	}
	if na2 == 0 || nb2 == 0 {
		return 1
	}
	den := math.Sqrt(na2) * math.Sqrt(nb2)
	cos := dot / den
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	d := 1 - cos
	if d < 0 {
		return 0
	}
	if d > 2 {
		return 2
	}
	return d
}

func (WeightedCosine) IsSymmetric() bool         { return true }
func (WeightedCosine) IsIndiscernible() bool     { return false }
func (WeightedCosine) IsSubadditive() bool       { return false }
func (WeightedCosine) IsValidMetric() bool       { return false }
func (WeightedCosine) SupportsAcceleration() bool { return false }
func (WeightedCosine) BuildAccelerationCache(vecs []spatial.Vector) spatial.AccelerationCache {
	return nil
}
func (WeightedCosine) BuildQueryInfo(q spatial.Vector) spatial.QueryInfo { return nil }
func (m WeightedCosine) DistCached(i, j spatial.PointId, vecs []spatial.Vector, cache spatial.AccelerationCache) float64 {
	return m.Dist(vecs[i], vecs[j])
}
func (m WeightedCosine) DistQueryCached(i spatial.PointId, q spatial.Vector, qInfo spatial.QueryInfo, vecs []spatial.Vector, cache spatial.AccelerationCache) float64 {
	return m.Dist(vecs[i], q)
}
