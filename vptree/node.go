package vptree

import "github.com/coredex/spatial"

// indexNode adapts an arena slot to spatial.IndexNode (C9). Branch nodes
// own exactly one point (their vantage point); leaves own their item list.
type indexNode struct {
	c   *Collection
	idx int
}

// Root returns the tree's root as a spatial.IndexNode, or nil if empty.
func (c *Collection) Root() spatial.IndexNode {
	if !c.built || c.root < 0 {
		return nil
	}
	return indexNode{c: c, idx: c.root}
}

func (n indexNode) rec() *nodeRecord { return &n.c.nodes[n.idx] }

func (n indexNode) Pivot() spatial.Vector {
	r := n.rec()
	if r.isLeaf {
		if len(r.items) == 0 {
			return spatial.DenseVector{}
		}
		return n.c.store.Get(r.items[0].id)
	}
	return n.c.store.Get(r.vp)
}

func (n indexNode) Radius() float64 { return n.FurthestDescendantDistance() }

func (n indexNode) FurthestPointDistance() float64 {
	r := n.rec()
	if !r.isLeaf {
		return 0
	}
	var max float64
	metric := n.c.store.GetDistanceMetric()
	pivot := n.Pivot()
	for _, it := range r.items {
		d := metric.Dist(pivot, n.c.store.Get(it.id))
		if d > max {
			max = d
		}
	}
	return max
}

func (n indexNode) FurthestDescendantDistance() float64 { return n.boundRadius() }

func (n indexNode) MinNodeDistance(other spatial.IndexNode) float64 {
	metric := n.c.store.GetDistanceMetric()
	d := metric.Dist(n.Pivot(), other.Pivot())
	min := d - n.boundRadius() - other.(indexNode).boundRadius()
	if min < 0 {
		return 0
	}
	return min
}

func (n indexNode) MaxNodeDistance(other spatial.IndexNode) float64 {
	metric := n.c.store.GetDistanceMetric()
	d := metric.Dist(n.Pivot(), other.Pivot())
	return d + n.boundRadius() + other.(indexNode).boundRadius()
}

// boundRadius returns a conservative bound on distance from this node's
// pivot to any point reachable through it: for a branch, the larger of
// its two children's high bounds plus their own bound radii; for a leaf,
// FurthestPointDistance.
func (n indexNode) boundRadius() float64 {
	r := n.rec()
	if r.isLeaf {
		return n.FurthestPointDistance()
	}
	left := indexNode{c: n.c, idx: r.left}
	right := indexNode{c: n.c, idx: r.right}
	lb := r.leftHigh + left.boundRadius()
	rb := r.rightHigh + right.boundRadius()
	if lb > rb {
		return lb
	}
	return rb
}

func (n indexNode) Parent() spatial.IndexNode {
	p := n.rec().parent
	if p < 0 {
		return nil
	}
	return indexNode{c: n.c, idx: p}
}

func (n indexNode) NumPoints() int {
	r := n.rec()
	if r.isLeaf {
		return len(r.items)
	}
	return 1
}

func (n indexNode) Point(k int) spatial.PointId {
	r := n.rec()
	if r.isLeaf {
		return r.items[k].id
	}
	return r.vp
}

func (n indexNode) NumChildren() int {
	r := n.rec()
	if r.isLeaf {
		return 0
	}
	return 2
}

func (n indexNode) Child(k int) spatial.IndexNode {
	r := n.rec()
	if k == 0 {
		return indexNode{c: n.c, idx: r.left}
	}
	return indexNode{c: n.c, idx: r.right}
}
