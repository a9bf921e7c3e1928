package rbc

import "github.com/coredex/spatial"

// rootNode is a virtual IndexNode (C9) whose children are the
// representatives; it has no owned points of its own.
type rootNode struct {
	c      *Collection
	pivot  spatial.Vector
	radius float64
}

// repNode is a leaf: its owned points, plus the representative itself.
type repNode struct {
	c   *Collection
	idx int
}

// Root returns the index as a spatial.IndexNode, or nil if empty.
func (c *Collection) Root() spatial.IndexNode {
	if !c.built || len(c.reps) == 0 {
		return nil
	}
	pivot := c.store.Get(c.reps[0].id)
	metric := c.store.GetDistanceMetric()
	var radius float64
	for i := range c.reps {
		d := metric.Dist(pivot, c.store.Get(c.reps[i].id)) + c.reps[i].radius
		if d > radius {
			radius = d
		}
	}
	return rootNode{c: c, pivot: pivot, radius: radius}
}

func (n rootNode) Pivot() spatial.Vector                  { return n.pivot }
func (n rootNode) Radius() float64                        { return n.radius }
func (n rootNode) FurthestPointDistance() float64          { return 0 }
func (n rootNode) FurthestDescendantDistance() float64      { return n.radius }

func (n rootNode) MinNodeDistance(other spatial.IndexNode) float64 {
	metric := n.c.store.GetDistanceMetric()
	d := metric.Dist(n.pivot, other.Pivot()) - n.radius - other.Radius()
	if d < 0 {
		return 0
	}
	return d
}

func (n rootNode) MaxNodeDistance(other spatial.IndexNode) float64 {
	metric := n.c.store.GetDistanceMetric()
	return metric.Dist(n.pivot, other.Pivot()) + n.radius + other.Radius()
}

func (n rootNode) Parent() spatial.IndexNode { return nil }
func (n rootNode) NumPoints() int            { return 0 }
func (n rootNode) Point(k int) spatial.PointId {
	panic("rbc: rootNode has no directly-owned points")
}
func (n rootNode) NumChildren() int { return len(n.c.reps) }
func (n rootNode) Child(k int) spatial.IndexNode { return repNode{c: n.c, idx: k} }

func (n repNode) rec() *repRecord { return &n.c.reps[n.idx] }

func (n repNode) Pivot() spatial.Vector             { return n.c.store.Get(n.rec().id) }
func (n repNode) Radius() float64                   { return n.rec().radius }
func (n repNode) FurthestPointDistance() float64     { return n.rec().radius }
func (n repNode) FurthestDescendantDistance() float64 { return n.rec().radius }

func (n repNode) MinNodeDistance(other spatial.IndexNode) float64 {
	metric := n.c.store.GetDistanceMetric()
	d := metric.Dist(n.Pivot(), other.Pivot()) - n.Radius() - other.Radius()
	if d < 0 {
		return 0
	}
	return d
}

func (n repNode) MaxNodeDistance(other spatial.IndexNode) float64 {
	metric := n.c.store.GetDistanceMetric()
	return metric.Dist(n.Pivot(), other.Pivot()) + n.Radius() + other.Radius()
}

func (n repNode) Parent() spatial.IndexNode { return n.c.Root() }

func (n repNode) NumPoints() int { return len(n.rec().owned) + 1 }

func (n repNode) Point(k int) spatial.PointId {
	if k == 0 {
		return n.rec().id
	}
	return n.rec().owned[k-1].id
}

func (n repNode) NumChildren() int                    { return 0 }
func (n repNode) Child(k int) spatial.IndexNode        { panic("rbc: repNode has no children") }
