package balltree

import "github.com/coredex/spatial"

// indexNode adapts an arena slot to spatial.IndexNode (C9).
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

func (n indexNode) Pivot() spatial.Vector { return n.rec().pivot }

func (n indexNode) Radius() float64 { return n.rec().radius }

func (n indexNode) FurthestPointDistance() float64 {
	r := n.rec()
	if !r.isLeaf {
		return 0
	}
	var max float64
	metric := n.c.store.GetDistanceMetric()
	for _, id := range r.ids {
		d := metric.Dist(r.pivot, n.c.store.Get(id))
		if d > max {
			max = d
		}
	}
	return max
}

func (n indexNode) FurthestDescendantDistance() float64 { return n.rec().radius }

func (n indexNode) MinNodeDistance(other spatial.IndexNode) float64 {
	metric := n.c.store.GetDistanceMetric()
	d := metric.Dist(n.Pivot(), other.Pivot())
	min := d - n.Radius() - other.Radius()
	if min < 0 {
		return 0
	}
	return min
}

func (n indexNode) MaxNodeDistance(other spatial.IndexNode) float64 {
	metric := n.c.store.GetDistanceMetric()
	d := metric.Dist(n.Pivot(), other.Pivot())
	return d + n.Radius() + other.Radius()
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
		return len(r.ids)
	}
	return 0
}

func (n indexNode) Point(k int) spatial.PointId { return n.rec().ids[k] }

func (n indexNode) NumChildren() int {
	if n.rec().isLeaf {
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
