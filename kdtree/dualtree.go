package kdtree

import (
	"math"

	"github.com/coredex/spatial"
	"github.com/coredex/spatial/internal/heap"
)

// SearchDualTree answers a batch k-NN query — every point of query against
// every point of c — in one traversal instead of one single-tree Search
// per query point. Both collections must already be built
// with the same metric.
func (c *Collection) SearchDualTree(query *Collection, k int) (map[spatial.PointId][]spatial.PointId, map[spatial.PointId][]float64, error) {
	if k <= 0 {
		return nil, nil, spatial.NewError(spatial.KindInvalidArgument, "kdtree.SearchDualTree", spatial.ErrInvalidArgument)
	}
	if !c.built || !query.built {
		return nil, nil, spatial.NewError(spatial.KindInvalidState, "kdtree.SearchDualTree", spatial.ErrInvalidState)
	}

	metric := c.store.GetDistanceMetric()
	bounded := make(map[spatial.PointId]*heap.Bounded[spatial.PointId])
	boundedFor := func(qid spatial.PointId) *heap.Bounded[spatial.PointId] {
		b, ok := bounded[qid]
		if !ok {
			b = heap.NewBounded[spatial.PointId](k)
			bounded[qid] = b
		}
		return b
	}

	base := func(rid, qid spatial.PointId) {
		d := metric.Dist(c.store.Get(rid), query.store.Get(qid))
		boundedFor(qid).Push(rid, d)
	}

	bcache := spatial.NewBCache()
	score := func(rNode, qNode spatial.IndexNode) float64 {
		minD := rNode.MinNodeDistance(qNode)
		bound := bqBound(qNode, bounded, k, bcache)
		if minD > bound {
			return math.NaN()
		}
		return minD
	}

	rRoot := c.Root()
	qRoot := query.Root()
	if rRoot == nil || qRoot == nil {
		return map[spatial.PointId][]spatial.PointId{}, map[spatial.PointId][]float64{}, nil
	}

	t := spatial.NewTraversal(true)
	t.DFS(rRoot, qRoot, base, score)

	ids := make(map[spatial.PointId][]spatial.PointId, len(bounded))
	dists := make(map[spatial.PointId][]float64, len(bounded))
	for qid, b := range bounded {
		items := b.Drain()
		idList := make([]spatial.PointId, len(items))
		distList := make([]float64, len(items))
		for i, it := range items {
			idList[i] = it.Value
			distList[i] = it.Priority
		}
		ids[qid] = idList
		dists[qid] = distList
	}
	return ids, dists, nil
}

// nodeKey returns the arena index backing n, the stable identity bcache
// keys bounds by.
func nodeKey(n spatial.IndexNode) int { return n.(indexNode).idx }

// bqBound computes B(Q), the upper bound a qNode's subtree's worst-case
// k-NN distance can't exceed, as the minimum of three terms instead of a
// fresh walk of qNode's whole subtree on every call:
//
//  1. the points qNode owns directly: their current worst k-NN distance,
//     finite only once every owned point's list has filled to k;
//  2. qNode's children's own bounds, already cached from an earlier,
//     deeper visit this same traversal;
//  3. qNode's parent's cached bound — looser (it covers qNode's siblings
//     too) but available in O(1) the moment the parent was last scored.
//
// The tightest of the three becomes qNode's own cached bound for whoever
// visits it (or its children) next.
func bqBound(qNode spatial.IndexNode, bounded map[spatial.PointId]*heap.Bounded[spatial.PointId], k int, cache *spatial.BCache) float64 {
	bound := math.Inf(1)

	ownPoints := math.Inf(1)
	allFilled := qNode.NumPoints() > 0
	for i := 0; i < qNode.NumPoints(); i++ {
		qid := qNode.Point(i)
		b, ok := bounded[qid]
		if !ok || b.Len() < k {
			allFilled = false
			break
		}
		if w := b.WorstPriority(); math.IsInf(ownPoints, 1) || w > ownPoints {
			ownPoints = w
		}
	}
	if allFilled && ownPoints < bound {
		bound = ownPoints
	}

	var childBound float64 = math.Inf(-1)
	hasChildren := qNode.NumChildren() > 0
	for i := 0; i < qNode.NumChildren(); i++ {
		cb := cache.Get(nodeKey(qNode.Child(i)))
		if cb > childBound {
			childBound = cb
		}
	}
	if hasChildren && childBound < bound {
		bound = childBound
	}

	if p := qNode.Parent(); p != nil {
		if pb := cache.Get(nodeKey(p)); pb < bound {
			bound = pb
		}
	}

	cache.Set(nodeKey(qNode), bound)
	return bound
}
