package covertree

import "github.com/coredex/spatial"

// indexNode adapts an arena slot to spatial.IndexNode (C9). Every node
// owns exactly one point, so Root() wraps it in a spatial.SelfLeafAdapter.
type indexNode struct {
	c   *Collection
	idx int
}

// Root returns the tree's root as a spatial.IndexNode, or nil if empty.
func (c *Collection) Root() spatial.IndexNode {
	if !c.built || c.root < 0 {
		return nil
	}
	return spatial.NewSelfLeafAdapter(indexNode{c: c, idx: c.root}, c.distBounds)
}

// distBounds returns the (min, max) bounds on the distance from p to any
// point reachable through n, reusing the same metric-aware bound every
// other IndexNode method here already computes.
func (c *Collection) distBounds(p spatial.Vector, n spatial.IndexNode) (min, max float64) {
	metric := c.store.GetDistanceMetric()
	d := metric.Dist(p, n.Pivot())
	r := n.Radius()
	min = d - r
	if min < 0 {
		min = 0
	}
	max = d + r
	return
}

func (n indexNode) rec() *nodeRecord { return &n.c.nodes[n.idx] }

func (n indexNode) Pivot() spatial.Vector { return n.c.store.Get(n.rec().point) }

func (n indexNode) Radius() float64 { return n.c.maxdistOf(n.idx) }

func (n indexNode) FurthestPointDistance() float64 { return 0 }

func (n indexNode) FurthestDescendantDistance() float64 { return n.c.maxdistOf(n.idx) }

func (n indexNode) MinNodeDistance(other spatial.IndexNode) float64 {
	min, _ := n.c.distBounds(n.Pivot(), other)
	return min
}

func (n indexNode) MaxNodeDistance(other spatial.IndexNode) float64 {
	_, max := n.c.distBounds(n.Pivot(), other)
	return max
}

func (n indexNode) Parent() spatial.IndexNode {
	p := n.rec().parent
	if p < 0 {
		return nil
	}
	return indexNode{c: n.c, idx: p}
}

// NumPoints is always 1: every node in this family owns exactly one
// point. The SelfLeafAdapter additionally exposes that same point as a
// zero-radius virtual child so dual-tree descent has somewhere to
// terminate.
func (n indexNode) NumPoints() int { return 1 }

func (n indexNode) Point(k int) spatial.PointId { return n.rec().point }

func (n indexNode) NumChildren() int { return len(n.rec().children) }

// Child wraps each descendant in a SelfLeafAdapter too, since every node
// in this family (not just the root) owns exactly one point.
func (n indexNode) Child(k int) spatial.IndexNode {
	child := indexNode{c: n.c, idx: n.rec().children[k]}
	return spatial.NewSelfLeafAdapter(child, n.c.distBounds)
}
